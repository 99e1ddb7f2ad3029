package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	"github.com/smallbiznis/freya/pkg/address"
)

func parseUintParam(c *gin.Context, name string) (uint64, bool) {
	trimmed := strings.TrimSpace(c.Param(name))
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil || parsed == 0 {
		return 0, false
	}
	return parsed, true
}

func invoiceIDParam(c *gin.Context) (uint64, bool) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		AbortWithError(c, invoicedomain.ErrInvalidID)
	}
	return id, ok
}

func tokenIDParam(c *gin.Context) (uint64, bool) {
	id, ok := parseUintParam(c, "tokenId")
	if !ok {
		AbortWithError(c, newValidationError("token_id", "invalid_token_id", "invalid token id"))
	}
	return id, ok
}

func addressParam(c *gin.Context) (address.Address, bool) {
	addr := address.Parse(c.Param("address"))
	if addr.IsZero() {
		AbortWithError(c, newValidationError("address", "invalid_address", "invalid address"))
		return "", false
	}
	return addr, true
}

func unixOrZero(seconds int64) int64 {
	if seconds < 0 {
		return 0
	}
	return seconds
}
