package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_ObserveReminderPass(t *testing.T) {
	passes := testutil.ToFloat64(ReminderPasses)
	sent := testutil.ToFloat64(RemindersProcessed.WithLabelValues("sent"))
	failed := testutil.ToFloat64(RemindersProcessed.WithLabelValues("failed"))

	NewRecorder().ObserveReminderPass(3, 2, 1, time.Second)

	assert.Equal(t, passes+1, testutil.ToFloat64(ReminderPasses))
	assert.Equal(t, sent+2, testutil.ToFloat64(RemindersProcessed.WithLabelValues("sent")))
	assert.Equal(t, failed+1, testutil.ToFloat64(RemindersProcessed.WithLabelValues("failed")))
}

func TestRecorder_ObserveAIRequest(t *testing.T) {
	before := testutil.ToFloat64(AIRequests.WithLabelValues("chat", "502"))
	NewRecorder().ObserveAIRequest("chat", 502, 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(AIRequests.WithLabelValues("chat", "502")))
}

func TestRecorder_ObserveHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/health", "200"))
	NewRecorder().ObserveHTTPRequest("GET", "/api/health", 200, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/health", "200")))
}
