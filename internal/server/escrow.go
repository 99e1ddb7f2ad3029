package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
)

type escrowResponse struct {
	InvoiceID   uint64 `json:"invoice_id"`
	Depositor   string `json:"depositor"`
	Beneficiary string `json:"beneficiary"`
	Client      string `json:"client"`
	Token       string `json:"token"`
	Amount      int64  `json:"amount"`
	Balance     int64  `json:"balance"`
	DepositedAt int64  `json:"deposited_at"`
	ReleaseAt   int64  `json:"release_at"`
	State       string `json:"state"`
	ResolvedAt  int64  `json:"resolved_at,omitempty"`
}

func newEscrowResponse(acct escrowdomain.Account) escrowResponse {
	resp := escrowResponse{
		InvoiceID:   acct.InvoiceID,
		Depositor:   acct.Depositor.String(),
		Beneficiary: acct.Beneficiary.String(),
		Client:      acct.Client.String(),
		Token:       acct.Token.String(),
		Amount:      acct.Amount,
		Balance:     acct.Balance,
		DepositedAt: unixOrZero(acct.DepositedAt.Unix()),
		ReleaseAt:   unixOrZero(acct.ReleaseAt.Unix()),
		State:       string(acct.State),
	}
	if acct.ResolvedAt != nil {
		resp.ResolvedAt = unixOrZero(acct.ResolvedAt.Unix())
	}
	return resp
}

type disputeResponse struct {
	InvoiceID  uint64 `json:"invoice_id"`
	Reason     string `json:"reason"`
	RaisedBy   string `json:"raised_by"`
	RaisedAt   int64  `json:"raised_at"`
	Outcome    string `json:"outcome"`
	ResolvedBy string `json:"resolved_by,omitempty"`
	ResolvedAt int64  `json:"resolved_at,omitempty"`
}

func newDisputeResponse(d disputedomain.Dispute) disputeResponse {
	resp := disputeResponse{
		InvoiceID:  d.InvoiceID,
		Reason:     d.Reason,
		RaisedBy:   d.RaisedBy.String(),
		RaisedAt:   unixOrZero(d.RaisedAt.Unix()),
		Outcome:    string(d.Outcome),
		ResolvedBy: d.ResolvedBy.String(),
	}
	if d.ResolvedAt != nil {
		resp.ResolvedAt = unixOrZero(d.ResolvedAt.Unix())
	}
	return resp
}

func (s *Server) GetEscrow(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	acct, err := s.vault.GetAccount(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newEscrowResponse(*acct)})
}

func (s *Server) ReleaseEscrow(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoices.ReleaseEscrow(c.Request.Context(), invoicedomain.ReleaseEscrowRequest{
		InvoiceID: id,
		Caller:    callerFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newInvoiceResponse(inv)})
}

type disputeInvoiceRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) DisputeInvoice(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	var req disputeInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoices.DisputeInvoice(c.Request.Context(), invoicedomain.DisputeInvoiceRequest{
		InvoiceID: id,
		Caller:    callerFrom(c),
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newInvoiceResponse(inv)})
}

func (s *Server) GetDispute(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	d, err := s.disputes.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newDisputeResponse(*d)})
}
