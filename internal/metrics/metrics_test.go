package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint", "200")
		ObserveStore("create", 15*time.Millisecond)
		IncNotification("sent")
	})

	before := testutil.ToFloat64(allocations.WithLabelValues("allocate", "SLOT_FULL"))
	ObserveAllocation("allocate", "SLOT_FULL")
	assert.Equal(t, before+1, testutil.ToFloat64(allocations.WithLabelValues("allocate", "SLOT_FULL")))

	before = testutil.ToFloat64(retries.WithLabelValues("reschedule"))
	IncRetry("reschedule")
	assert.Equal(t, before+1, testutil.ToFloat64(retries.WithLabelValues("reschedule")))
}

func TestHandler(t *testing.T) {
	Register()
	IncHTTP("handler_test", "200")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "slotkeeper_http_requests_total")
}
