package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	"github.com/smallbiznis/freya/internal/authorization"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	"github.com/smallbiznis/freya/pkg/address"
)

type resolveDisputeRequest struct {
	Outcome string `json:"outcome"`
}

func (s *Server) ResolveDispute(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := disputedomain.ParseOutcome(req.Outcome)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoices.ResolveDispute(c.Request.Context(), invoicedomain.ResolveDisputeRequest{
		InvoiceID: id,
		Outcome:   outcome,
		Resolver:  callerFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newInvoiceResponse(inv)})
}

type feeRecipientRequest struct {
	Recipient string `json:"recipient"`
}

func (s *Server) SetFeeRecipient(c *gin.Context) {
	var req feeRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.fees.SetRecipient(c.Request.Context(), callerFrom(c), address.Parse(req.Recipient)); err != nil {
		AbortWithError(c, err)
		return
	}

	s.GetFeeRecipient(c)
}

func (s *Server) GetFeeRecipient(c *gin.Context) {
	recipient, err := s.fees.Recipient(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp := gin.H{"recipient": recipient.String()}
	if s.cfg != nil {
		resp["basis_points"] = s.cfg.Get().FeeBasisPoints
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type grantResolverRequest struct {
	Address string `json:"address"`
}

func (s *Server) GrantResolver(c *gin.Context) {
	var req grantResolverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subject := address.Parse(req.Address)
	if err := s.authz.GrantRole(c.Request.Context(), callerFrom(c), subject, authorization.RoleResolver); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"address": subject.String(), "role": authorization.RoleResolver}})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if err := s.authz.Authorize(c.Request.Context(), callerFrom(c), authorization.ObjectAudit, authorization.ActionAuditRead); err != nil {
		AbortWithError(c, err)
		return
	}

	var req auditdomain.ListAuditLogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.audit.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.AuditLogs,
		"page_info": resp.PageInfo,
	})
}
