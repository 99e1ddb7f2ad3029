package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	"github.com/smallbiznis/freya/internal/invoice/format"
	"github.com/smallbiznis/freya/pkg/address"
)

type invoiceResponse struct {
	ID                uint64 `json:"id"`
	Number            string `json:"number"`
	Issuer            string `json:"issuer"`
	Client            string `json:"client"`
	TokenAddress      string `json:"token_address"`
	Amount            int64  `json:"amount"`
	AmountPaid        int64  `json:"amount_paid"`
	DueDate           int64  `json:"due_date"`
	CreatedAt         int64  `json:"created_at"`
	Description       string `json:"description"`
	Status            string `json:"status"`
	UseEscrow         bool   `json:"use_escrow"`
	EscrowReleaseTime int64  `json:"escrow_release_time"`
	Disputed          bool   `json:"disputed"`
}

func newInvoiceResponse(inv invoicedomain.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:           inv.ID,
		Number:       format.InvoiceNumber(inv.CreatedAt, inv.ID),
		Issuer:       inv.Issuer.String(),
		Client:       inv.Client.String(),
		TokenAddress: inv.TokenAddress.String(),
		Amount:       inv.Amount,
		AmountPaid:   inv.AmountPaid,
		DueDate:      unixOrZero(inv.DueDate.Unix()),
		CreatedAt:    unixOrZero(inv.CreatedAt.Unix()),
		Description:  inv.Description,
		Status:       string(inv.Status),
		UseEscrow:    inv.UseEscrow,
		Disputed:     inv.Disputed,
	}
	if inv.EscrowReleaseTime != nil {
		resp.EscrowReleaseTime = unixOrZero(inv.EscrowReleaseTime.Unix())
	}
	return resp
}

type createInvoiceRequest struct {
	Client       string `json:"client"`
	TokenAddress string `json:"token_address"`
	Amount       int64  `json:"amount"`
	DueDate      int64  `json:"due_date"`
	Description  string `json:"description"`
	UseEscrow    bool   `json:"use_escrow"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoices.CreateInvoice(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		Issuer:       callerFrom(c),
		Client:       address.Parse(req.Client),
		TokenAddress: address.ParseToken(req.TokenAddress),
		Amount:       req.Amount,
		DueDate:      time.Unix(req.DueDate, 0).UTC(),
		Description:  req.Description,
		UseEscrow:    req.UseEscrow,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": newInvoiceResponse(inv)})
}

func (s *Server) NextInvoiceID(c *gin.Context) {
	id, err := s.invoices.NextInvoiceID(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"next_invoice_id": id}})
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newInvoiceResponse(inv)})
}

type payInvoiceRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) PayInvoice(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	var req payInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoices.PayInvoice(c.Request.Context(), invoicedomain.PayInvoiceRequest{
		InvoiceID: id,
		Payer:     callerFrom(c),
		Amount:    req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newInvoiceResponse(inv)})
}

func (s *Server) ListIssuerInvoices(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}

	ids, err := s.invoices.GetUserInvoices(c.Request.Context(), addr)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ids})
}

func (s *Server) ListClientInvoices(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}

	ids, err := s.invoices.GetClientInvoices(c.Request.Context(), addr)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ids})
}
