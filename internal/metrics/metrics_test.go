package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodmail/internal/dbmysql"
	"gomodmail/internal/events"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RelayDelivered("outbound")
	m.RelayDelivered("outbound")
	m.RelayFailed("delivery_unreachable")
	m.ThreadClosed("scheduled")
	require.NoError(t, m.Update(events.Event{
		Type:          events.ThreadMessageType,
		ThreadMessage: &dbmysql.ThreadMessage{MessageType: dbmysql.MessageFromUser},
	}))
	require.NoError(t, m.Update(events.Event{Type: events.ThreadClosedType}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.relayed.WithLabelValues("outbound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("delivery_unreachable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed.WithLabelValues("scheduled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transcriptLog.WithLabelValues("from_user")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ThreadClosed("manual")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `modmail_threads_closed_total{trigger="manual"} 1`)
}
