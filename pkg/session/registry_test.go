package session

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/capture"
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

func newTestRegistry(t *testing.T, config *Config) (*Registry, *metrics.Handler) {
	t.Helper()
	log, err := logger.New("test", logger.Options{Format: logger.JSONLogFormat})
	require.NoError(t, err)
	metric, err := metrics.New("test")
	require.NoError(t, err)

	r := NewRegistry(config, log, metric)
	t.Cleanup(r.Close)
	return r, metric
}

func TestRegistryLifecycle(t *testing.T) {
	r, metric := newTestRegistry(t, nil)

	s := r.Create("https://shop.example/cart")
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "https://shop.example/cart", s.PageURL())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metric.SessionsActive))

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Delete(s.ID))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, float64(0), testutil.ToFloat64(metric.SessionsActive))

	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.ErrorIs(t, r.Delete(s.ID), ErrUnknownSession)

	err = s.Enqueue(context.Background(), "console", []logtypes.LogEntry{{Level: "log"}})
	assert.ErrorIs(t, err, capture.ErrPumpStopped)
}

func TestSessionCapture(t *testing.T) {
	r, _ := newTestRegistry(t, &Config{BufferCapacity: 3})
	s := r.Create("https://app.example/")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue(ctx, "console", []logtypes.LogEntry{{Level: "error", Args: []json.RawMessage{json.RawMessage(strconv.Itoa(i))}}}))
	}
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, 3, s.Buffer().Len())
	entries := s.Buffer().Snapshot(-1)
	require.Len(t, entries, 3)
	assert.Equal(t, []json.RawMessage{json.RawMessage("2")}, entries[0].Args)
	assert.Equal(t, "console", entries[0].Source)
}

func TestSessionPageURL(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	s := r.Create("https://a.example/")

	s.SetPageURL("")
	assert.Equal(t, "https://a.example/", s.PageURL())
	s.SetPageURL("https://a.example/next")
	assert.Equal(t, "https://a.example/next", s.PageURL())
}

func TestSessionExpiry(t *testing.T) {
	r, metric := newTestRegistry(t, &Config{TTL: 30 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	s := r.Create("https://a.example/")

	assert.Eventually(t, func() bool {
		_, err := r.Get(s.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return r.Len() == 0 && testutil.ToFloat64(metric.SessionsActive) == 0
	}, time.Second, 10*time.Millisecond)

	err := s.Enqueue(context.Background(), "console", []logtypes.LogEntry{{Level: "log"}})
	assert.ErrorIs(t, err, capture.ErrPumpStopped)
}

func TestSessionBriefLimit(t *testing.T) {
	r, _ := newTestRegistry(t, &Config{BriefPerMinute: 1, BriefBurst: 2})
	s := r.Create("")

	assert.True(t, s.AllowBrief())
	assert.True(t, s.AllowBrief())
	assert.False(t, s.AllowBrief())
}
