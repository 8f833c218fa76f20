package main

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qorzen/kernel/internal/kernel"
	"github.com/qorzen/kernel/internal/router"
)

// newDispatchHandler adapts every unmatched gin route onto the router
// core: router.Router owns path matching, auth, rate limiting, and error
// translation, so this handler's only job is the HTTP <-> router.Request/
// Response value conversion.
func newDispatchHandler(orch *kernel.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)

		headers := make(map[string]string, len(c.Request.Header))
		for k := range c.Request.Header {
			headers[k] = c.Request.Header.Get(k)
		}

		query := make(map[string]string, len(c.Request.URL.Query()))
		for k := range c.Request.URL.Query() {
			query[k] = c.Request.URL.Query().Get(k)
		}

		req := router.Request{
			Method:        c.Request.Method,
			Path:          c.Request.URL.Path,
			Headers:       headers,
			Query:         query,
			Body:          body,
			CorrelationID: uuid.NewString(),
		}

		resp := orch.Router.Dispatch(c.Request.Context(), req)

		for k, v := range resp.Headers {
			c.Header(k, v)
		}
		contentType := resp.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(resp.Status, contentType, resp.Body)
	}
}
