package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/freya/internal/invoice/format"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
)

type receiptResponse struct {
	TokenID     uint64 `json:"token_id"`
	InvoiceID   uint64 `json:"invoice_id"`
	Issuer      string `json:"issuer"`
	Owner       string `json:"owner"`
	Token       string `json:"token"`
	Amount      int64  `json:"amount"`
	PaidAt      int64  `json:"paid_at"`
	Description string `json:"description"`
}

func newReceiptResponse(r receiptdomain.Receipt) receiptResponse {
	return receiptResponse{
		TokenID:     r.TokenID,
		InvoiceID:   r.InvoiceID,
		Issuer:      r.Issuer.String(),
		Owner:       r.Owner.String(),
		Token:       r.Token.String(),
		Amount:      r.Amount,
		PaidAt:      unixOrZero(r.PaidAt.Unix()),
		Description: r.Description,
	}
}

func (s *Server) ListReceipts(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}

	ids, err := s.receipts.GetUserReceipts(c.Request.Context(), addr)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ids})
}

func (s *Server) GetReceipt(c *gin.Context) {
	tokenID, ok := tokenIDParam(c)
	if !ok {
		return
	}

	r, err := s.receipts.GetReceiptData(c.Request.Context(), tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newReceiptResponse(r)})
}

func (s *Server) GetReceiptMetadata(c *gin.Context) {
	tokenID, ok := tokenIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	meta, err := s.receipts.Metadata(ctx, tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	uri, err := s.receipts.TokenURI(ctx, tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"token_uri": uri,
		"metadata":  meta,
	}})
}

func (s *Server) GetReceiptDocument(c *gin.Context) {
	tokenID, ok := tokenIDParam(c)
	if !ok {
		return
	}

	if c.Query("format") == "pdf" {
		s.getReceiptPDF(c, tokenID)
		return
	}

	doc, err := s.receipts.Document(c.Request.Context(), tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

func (s *Server) getReceiptPDF(c *gin.Context, tokenID uint64) {
	ctx := c.Request.Context()
	r, err := s.receipts.GetReceiptData(ctx, tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	pdf, err := s.receipts.DocumentPDF(ctx, tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := slug.Make(format.ReceiptNumber(r.PaidAt, r.TokenID)) + ".pdf"
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
