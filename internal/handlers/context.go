package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notistore/internal/middleware"
	"github.com/charlesng35/notistore/internal/policy"
	"github.com/charlesng35/notistore/pkg/errors"
	"github.com/charlesng35/notistore/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireCaller returns the authenticated caller or writes a 401 response.
func requireCaller(c *gin.Context) (policy.Caller, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return policy.Caller{}, false
	}
	return caller, true
}
