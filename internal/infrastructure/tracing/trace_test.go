package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(tracer *Tracer, seen *TraceID) *gin.Engine {
	r := gin.New()
	r.Use(HTTPMiddleware(tracer))
	r.GET("/ping", func(c *gin.Context) {
		*seen = TraceIDFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"continues caller trace", "trace_caller"},
		{"starts new trace", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer := New("test", nil)
			defer tracer.Close()
			var seen TraceID

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderTraceID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			newRouter(tracer, &seen).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, string(seen), rec.Header().Get(HeaderTraceID))
			assert.NotEmpty(t, rec.Header().Get(HeaderSpanID))
			if tt.incoming != "" {
				assert.Equal(t, TraceID(tt.incoming), seen)
			} else {
				assert.True(t, strings.HasPrefix(string(seen), "trace_"))
			}
		})
	}
}

func TestStartSpanNests(t *testing.T) {
	tracer := New("test", nil)
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "outer")
	child, ctx := tracer.StartSpan(ctx, "inner")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.TraceID, TraceIDFrom(ctx))

	h := http.Header{}
	Inject(ctx, h)
	traceID, spanID := Extract(h)
	assert.Equal(t, child.TraceID, traceID)
	assert.Equal(t, child.SpanID, spanID)
}

func TestCloseDrainsSpans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))

	for i := 0; i < 3; i++ {
		span, _ := tracer.StartSpan(context.Background(), "op")
		span.Finish()
		tracer.Submit(span)
	}
	tracer.Close()

	require.Equal(t, 3, logs.FilterMessage("span completed").Len())

	span, _ := tracer.StartSpan(context.Background(), "late")
	tracer.Submit(span)
	tracer.Close()
	assert.Equal(t, 3, logs.Len())
}
