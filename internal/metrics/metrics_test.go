package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/studyplan/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStageLabelsByKind(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStage("extract", time.Second, nil)
	m.ObserveStage("extract", time.Second, fmt.Errorf("x: %w", domain.ErrExtractionParse))
	m.ObserveStage("plan", time.Second, errors.New("boom"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.stageTotal.WithLabelValues("extract", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stageTotal.WithLabelValues("extract", domain.KindExtractionParse)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stageTotal.WithLabelValues("plan", domain.KindInternal)), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveStage("extract", time.Second, nil)
	m.ObserveGateway(time.Second, nil)
	m.SocketOpened()
	m.SocketClosed()
}

func TestHandlerExposesCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveGateway(200*time.Millisecond, fmt.Errorf("%w: down", domain.ErrModelUnavailable))
	m.SocketOpened()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `studyplan_gateway_calls_total{outcome="ModelUnavailable"} 1`), text)
	assert.Contains(t, text, "studyplan_chat_sockets_active 1")
}
