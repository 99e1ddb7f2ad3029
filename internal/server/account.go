package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
)

type balanceResponse struct {
	Token   string `json:"token"`
	Balance int64  `json:"balance"`
}

// GetBalance reports the journal balance of an account for every token it has touched.
func (s *Server) GetBalance(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	account := ledgerdomain.PartyAccount(addr)
	tokens, err := s.store.ListAccountTokens(ctx, account)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balances := make([]balanceResponse, 0, len(tokens))
	for _, token := range tokens {
		amount, err := s.store.AccountBalance(ctx, account, token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		balances = append(balances, balanceResponse{Token: token.String(), Balance: amount})
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"account":  account.String(),
		"balances": balances,
	}})
}
