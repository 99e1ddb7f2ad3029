package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditservice "github.com/smallbiznis/freya/internal/audit/service"
	"github.com/smallbiznis/freya/internal/authorization"
	"github.com/smallbiznis/freya/internal/clock"
	"github.com/smallbiznis/freya/internal/config"
	disputeservice "github.com/smallbiznis/freya/internal/dispute/service"
	escrowservice "github.com/smallbiznis/freya/internal/escrow/service"
	"github.com/smallbiznis/freya/internal/events"
	feeservice "github.com/smallbiznis/freya/internal/fee/service"
	invoiceservice "github.com/smallbiznis/freya/internal/invoice/service"
	ledgerservice "github.com/smallbiznis/freya/internal/ledger/service"
	receiptservice "github.com/smallbiznis/freya/internal/receipt/service"
	"github.com/smallbiznis/freya/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	issuer   = "0x00000000000000000000000000000000000000a1"
	client   = "0x00000000000000000000000000000000000000c1"
	stranger = "0x00000000000000000000000000000000000000d1"
	resolver = "0x00000000000000000000000000000000000000b1"
	owner    = "0x00000000000000000000000000000000000000b0"
	treasury = "0x00000000000000000000000000000000000000fe"
	token    = "0x00000000000000000000000000000000000000e1"
)

var start = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	engine *gin.Engine
	clock  *clock.FakeClock
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holder, err := config.NewStaticLedgerConfigHolder(config.LedgerConfig{
		EscrowPeriod:   3 * 24 * time.Hour,
		FeeBasisPoints: 100,
		FeeRecipient:   treasury,
		Owner:          owner,
		Resolvers:      []string{resolver},
	})
	require.NoError(t, err)

	st := memory.New()
	fakeClock := clock.NewFakeClock(start)
	audit := auditservice.NewService(auditservice.Params{Store: st, Log: log, GenID: node, Clock: fakeClock})

	enforcer, err := authorization.NewEnforcer(authorization.EnforcerParams{})
	require.NoError(t, err)
	authz, err := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, Config: holder, Audit: audit})
	require.NoError(t, err)

	hub := events.NewHub(log)
	outbox := events.NewOutbox(node, hub, log)

	ledger := ledgerservice.NewService(ledgerservice.Params{Log: log, GenID: node})
	fees := feeservice.NewService(feeservice.Params{
		Log:    log,
		Config: holder,
		Ledger: ledger,
		Authz:  authz,
		Store:  st,
		Clock:  fakeClock,
		Outbox: outbox,
		Audit:  audit,
	})
	vault := escrowservice.NewService(escrowservice.Params{Log: log, Store: st, Config: holder, Ledger: ledger, Fees: fees})
	disputes := disputeservice.NewService(disputeservice.Params{Log: log, Store: st, Authz: authz})
	receipts := receiptservice.NewService(receiptservice.Params{Log: log, Store: st})
	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{
		Store:    st,
		Log:      log,
		Clock:    fakeClock,
		Config:   holder,
		Vault:    vault,
		Disputes: disputes,
		Receipts: receipts,
		Fees:     fees,
		Authz:    authz,
		Outbox:   outbox,
		Audit:    audit,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(Params{
		Engine:   engine,
		Log:      log,
		Config:   holder,
		Store:    st,
		Invoices: invoices,
		Vault:    vault,
		Disputes: disputes,
		Receipts: receipts,
		Fees:     fees,
		Authz:    authz,
		Audit:    audit,
		Hub:      hub,
	})

	return testServer{engine: engine, clock: fakeClock}
}

func (ts testServer) do(t *testing.T, method, path, caller string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(HeaderAccount, caller)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func (ts testServer) createInvoice(t *testing.T, amount int64, useEscrow bool) uint64 {
	t.Helper()
	w, body := ts.do(t, http.MethodPost, "/v1/invoices", issuer, gin.H{
		"client":        client,
		"token_address": token,
		"amount":        amount,
		"due_date":      start.Add(24 * time.Hour).Unix(),
		"description":   "design work",
		"use_escrow":    useEscrow,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return uint64(data(body)["id"].(float64))
}

func data(body map[string]any) map[string]any {
	out, _ := body["data"].(map[string]any)
	return out
}

func errorCode(body map[string]any) string {
	payload, _ := body["error"].(map[string]any)
	code, _ := payload["code"].(string)
	return code
}

func TestCreateAndGetInvoice(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createInvoice(t, 100, false)
	assert.Equal(t, uint64(1), id)

	w, body := ts.do(t, http.MethodGet, "/v1/invoices/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	inv := data(body)
	assert.Equal(t, "CREATED", inv["status"])
	assert.Equal(t, issuer, inv["issuer"])
	assert.Equal(t, float64(start.Add(24*time.Hour).Unix()), inv["due_date"])
	assert.Equal(t, float64(start.Unix()), inv["created_at"])

	w, body = ts.do(t, http.MethodGet, "/v1/invoices/next-id", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), data(body)["next_invoice_id"])

	w, body = ts.do(t, http.MethodGet, "/v1/accounts/"+issuer+"/invoices", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{float64(1)}, body["data"])

	w, body = ts.do(t, http.MethodGet, "/v1/accounts/"+client+"/client-invoices", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{float64(1)}, body["data"])
}

func TestOverdueIsReportedOnRead(t *testing.T) {
	ts := newTestServer(t)
	ts.createInvoice(t, 100, false)
	ts.clock.Advance(48 * time.Hour)

	_, body := ts.do(t, http.MethodGet, "/v1/invoices/1", "", nil)
	assert.Equal(t, "OVERDUE", data(body)["status"])
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.createInvoice(t, 100, false)

	cases := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		status int
		code   string
	}{
		{"missing caller", http.MethodPost, "/v1/invoices", "", gin.H{"amount": 1}, http.StatusUnauthorized, ""},
		{"invalid amount", http.MethodPost, "/v1/invoices", issuer, gin.H{"client": client, "amount": 0, "due_date": start.Add(time.Hour).Unix()}, http.StatusBadRequest, "invalid_amount"},
		{"bad id", http.MethodGet, "/v1/invoices/abc", "", nil, http.StatusBadRequest, "invalid_invoice_id"},
		{"unknown invoice", http.MethodGet, "/v1/invoices/99", "", nil, http.StatusNotFound, "invoice_not_found"},
		{"not client", http.MethodPost, "/v1/invoices/1/pay", stranger, gin.H{"amount": 100}, http.StatusForbidden, "not_client"},
		{"partial payment", http.MethodPost, "/v1/invoices/1/pay", client, gin.H{"amount": 40}, http.StatusConflict, "partial_payment_not_supported"},
		{"empty reason", http.MethodPost, "/v1/invoices/1/dispute", client, gin.H{"reason": "  "}, http.StatusBadRequest, "invalid_reason"},
		{"no escrow", http.MethodGet, "/v1/invoices/1/escrow", "", nil, http.StatusNotFound, "escrow_not_found"},
		{"no dispute", http.MethodGet, "/v1/invoices/1/dispute", "", nil, http.StatusNotFound, "dispute_not_found"},
		{"unknown receipt", http.MethodGet, "/v1/receipts/7", "", nil, http.StatusNotFound, "receipt_not_found"},
		{"bad outcome", http.MethodPost, "/v1/admin/invoices/1/resolve", resolver, gin.H{"outcome": "PENDING"}, http.StatusBadRequest, "invalid_outcome"},
		{"bad page token", http.MethodGet, "/v1/events?page_token=%25%25", "", nil, http.StatusBadRequest, "invalid_page_token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := ts.do(t, tc.method, tc.path, tc.caller, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			if tc.code != "" {
				assert.Equal(t, tc.code, errorCode(body))
			}
		})
	}
}

func TestDirectPaymentIssuesReceipt(t *testing.T) {
	ts := newTestServer(t)
	ts.createInvoice(t, 1000, false)

	w, body := ts.do(t, http.MethodPost, "/v1/invoices/1/pay", client, gin.H{"amount": 1000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", data(body)["status"])
	assert.Equal(t, float64(1000), data(body)["amount_paid"])

	w, body = ts.do(t, http.MethodPost, "/v1/invoices/1/pay", client, gin.H{"amount": 1000})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_settled", errorCode(body))

	_, body = ts.do(t, http.MethodGet, "/v1/accounts/"+client+"/receipts", "", nil)
	assert.Equal(t, []any{float64(1)}, body["data"])

	w, body = ts.do(t, http.MethodGet, "/v1/receipts/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, client, data(body)["owner"])
	assert.Equal(t, float64(1), data(body)["invoice_id"])

	w, body = ts.do(t, http.MethodGet, "/v1/receipts/1/metadata", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(data(body)["token_uri"].(string), "data:application/json;base64,"))
	meta := data(body)["metadata"].(map[string]any)
	assert.Equal(t, "Invoice Receipt #1", meta["name"])

	w, _ = ts.do(t, http.MethodGet, "/v1/receipts/1/document", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "design work")

	w, _ = ts.do(t, http.MethodGet, "/v1/receipts/1/document?format=pdf", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="rct-`)

	w, body = ts.do(t, http.MethodGet, "/v1/accounts/"+issuer+"/balance", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	balances := data(body)["balances"].([]any)
	require.Len(t, balances, 1)
	assert.Equal(t, float64(990), balances[0].(map[string]any)["balance"])
}

func TestEscrowDisputeFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.createInvoice(t, 500, true)

	w, body := ts.do(t, http.MethodPost, "/v1/invoices/1/pay", client, gin.H{"amount": 500})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PAID", data(body)["status"])
	assert.Equal(t, float64(start.Add(3*24*time.Hour).Unix()), data(body)["escrow_release_time"])

	w, body = ts.do(t, http.MethodGet, "/v1/invoices/1/escrow", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HELD", data(body)["state"])
	assert.Equal(t, float64(500), data(body)["balance"])

	w, body = ts.do(t, http.MethodPost, "/v1/invoices/1/escrow/release", issuer, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "escrow_locked", errorCode(body))

	w, body = ts.do(t, http.MethodPost, "/v1/invoices/1/dispute", client, gin.H{"reason": "not delivered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "DISPUTED", data(body)["status"])

	w, body = ts.do(t, http.MethodGet, "/v1/invoices/1/dispute", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", data(body)["outcome"])
	assert.Equal(t, "not delivered", data(body)["reason"])

	w, body = ts.do(t, http.MethodPost, "/v1/admin/invoices/1/resolve", stranger, gin.H{"outcome": "FAVOR_CLIENT"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_resolver", errorCode(body))

	w, body = ts.do(t, http.MethodPost, "/v1/admin/invoices/1/resolve", resolver, gin.H{"outcome": "FAVOR_CLIENT"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", data(body)["status"])

	_, body = ts.do(t, http.MethodGet, "/v1/invoices/1/escrow", "", nil)
	assert.Equal(t, "REFUNDED", data(body)["state"])
}

func TestEscrowReleaseAfterPeriod(t *testing.T) {
	ts := newTestServer(t)
	ts.createInvoice(t, 500, true)
	w, _ := ts.do(t, http.MethodPost, "/v1/invoices/1/pay", client, gin.H{"amount": 500})
	require.Equal(t, http.StatusOK, w.Code)

	ts.clock.Advance(3 * 24 * time.Hour)

	w, body := ts.do(t, http.MethodPost, "/v1/invoices/1/escrow/release", stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_issuer", errorCode(body))

	w, body = ts.do(t, http.MethodPost, "/v1/invoices/1/escrow/release", issuer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", data(body)["status"])

	_, body = ts.do(t, http.MethodGet, "/v1/accounts/"+treasury+"/balance", "", nil)
	balances := data(body)["balances"].([]any)
	require.Len(t, balances, 1)
	assert.Equal(t, float64(5), balances[0].(map[string]any)["balance"])
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)
	newRecipient := "0x00000000000000000000000000000000000000f2"

	w, body := ts.do(t, http.MethodPut, "/v1/admin/fee-recipient", stranger, gin.H{"recipient": newRecipient})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_owner", errorCode(body))

	w, body = ts.do(t, http.MethodPut, "/v1/admin/fee-recipient", owner, gin.H{"recipient": "0x0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_recipient", errorCode(body))

	w, body = ts.do(t, http.MethodPut, "/v1/admin/fee-recipient", owner, gin.H{"recipient": newRecipient})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, newRecipient, data(body)["recipient"])
	assert.Equal(t, float64(100), data(body)["basis_points"])

	w, _ = ts.do(t, http.MethodPost, "/v1/admin/resolvers", stranger, gin.H{"address": stranger})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = ts.do(t, http.MethodPost, "/v1/admin/resolvers", owner, gin.H{"address": stranger})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, authorization.RoleResolver, data(body)["role"])

	ts.createInvoice(t, 100, false)
	w, _ = ts.do(t, http.MethodPost, "/v1/invoices/1/dispute", client, gin.H{"reason": "late"})
	require.Equal(t, http.StatusOK, w.Code)
	w, body = ts.do(t, http.MethodPost, "/v1/admin/invoices/1/resolve", stranger, gin.H{"outcome": "issuer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CREATED", data(body)["status"])
}

func TestAuditLogEndpoint(t *testing.T) {
	ts := newTestServer(t)
	newRecipient := "0x00000000000000000000000000000000000000f2"

	w, _ := ts.do(t, http.MethodPut, "/v1/admin/fee-recipient", owner, gin.H{"recipient": newRecipient})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = ts.do(t, http.MethodPost, "/v1/admin/resolvers", owner, gin.H{"address": stranger})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ts.createInvoice(t, 100, false)
	w, _ = ts.do(t, http.MethodPost, "/v1/invoices/1/dispute", client, gin.H{"reason": "late"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodPost, "/v1/admin/invoices/1/resolve", resolver, gin.H{"outcome": "client"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body := ts.do(t, http.MethodGet, "/v1/admin/audit-logs", resolver, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorCode(body))

	w, body = ts.do(t, http.MethodGet, "/v1/admin/audit-logs?page_size=2", owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := body["data"].([]any)
	require.Len(t, page, 2)
	assert.Equal(t, "dispute.resolved", page[0].(map[string]any)["action"])
	assert.Equal(t, resolver, page[0].(map[string]any)["actor"])
	assert.Equal(t, "role.granted", page[1].(map[string]any)["action"])
	info := body["page_info"].(map[string]any)
	require.Equal(t, true, info["has_more"])

	w, body = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/admin/audit-logs?page_size=2&page_token=%s", info["next_page_token"]), owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rest := body["data"].([]any)
	require.Len(t, rest, 1)
	assert.Equal(t, "fee.recipient_set", rest[0].(map[string]any)["action"])
	assert.Equal(t, owner, rest[0].(map[string]any)["actor"])

	w, body = ts.do(t, http.MethodGet, "/v1/admin/audit-logs?action=role.granted", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["data"].([]any), 1)

	w, body = ts.do(t, http.MethodGet, "/v1/admin/audit-logs?page_token=garbage", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_page_token", errorCode(body))
}

func TestEventFeedPagination(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		ts.createInvoice(t, 100, false)
	}

	w, body := ts.do(t, http.MethodGet, "/v1/events?page_size=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := body["data"].([]any)
	require.Len(t, first, 2)
	info := body["page_info"].(map[string]any)
	assert.Equal(t, true, info["has_more"])

	token := info["next_page_token"].(string)
	w, body = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/events?page_size=2&page_token=%s", token), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := body["data"].([]any)
	require.Len(t, second, 1)
	assert.Equal(t, false, body["page_info"].(map[string]any)["has_more"])

	last := second[0].(map[string]any)
	assert.Equal(t, "invoice.created", last["type"])
	assert.Equal(t, float64(3), last["invoice_id"])
	assert.Equal(t, float64(3), last["seq"])
	assert.Equal(t, float64(2), first[1].(map[string]any)["seq"])
}
