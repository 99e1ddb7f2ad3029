package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/freya/internal/observability/context"
	"github.com/smallbiznis/freya/pkg/address"
)

const (
	HeaderAccount    = "X-Account-Address"
	contextCallerKey = "caller"
)

// RequireCaller resolves the acting account from the request header.
func (s *Server) RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := address.Parse(c.GetHeader(HeaderAccount))
		if caller.IsZero() {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextCallerKey, caller)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), caller.String()))
		c.Next()
	}
}

func callerFrom(c *gin.Context) address.Address {
	if v, ok := c.Get(contextCallerKey); ok {
		if caller, ok := v.(address.Address); ok {
			return caller
		}
	}
	return address.Parse(c.GetHeader(HeaderAccount))
}

// RateLimit throttles mutations per caller when a limiter is configured.
func (s *Server) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		res, _ := s.limiter.Allow(c.Request.Context(), callerFrom(c).String(), endpoint)
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			seconds := int(res.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
