package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// GinMiddleware counts requests by route template so ids do not explode
// label cardinality.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}
