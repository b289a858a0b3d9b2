package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for request metrics. The route
// template is used as the path label to keep cardinality bounded.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one remote call.
type Timer struct {
	start    time.Time
	metrics  *Metrics
	endpoint string
}

// NewTimer starts timing a call to endpoint.
func NewTimer(metrics *Metrics, endpoint string) *Timer {
	return &Timer{start: time.Now(), metrics: metrics, endpoint: endpoint}
}

// Stop records the call with its status. A nil receiver is a no-op.
func (t *Timer) Stop(status string) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.RecordRemoteCall(t.endpoint, status, time.Since(t.start))
}
