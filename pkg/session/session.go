package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kumarabd/console-brief/pkg/capture"
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

// Session stands in for one browser tab: a capture buffer, the pump feeding
// it and the page it belongs to.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.RWMutex
	pageURL string

	buffer  *capture.Buffer
	pump    *capture.Pump
	limiter *rate.Limiter
}

// PageURL returns the last known page address.
func (s *Session) PageURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageURL
}

// SetPageURL records a navigation. Empty values are ignored.
func (s *Session) SetPageURL(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	s.pageURL = url
	s.mu.Unlock()
}

// Buffer exposes the capture buffer for report building.
func (s *Session) Buffer() *capture.Buffer {
	return s.buffer
}

// Enqueue hands a batch to the session pump.
func (s *Session) Enqueue(ctx context.Context, source string, entries []logtypes.LogEntry) error {
	return s.pump.Enqueue(ctx, source, entries)
}

// Flush waits for earlier batches to land in the buffer.
func (s *Session) Flush(ctx context.Context) error {
	return s.pump.Flush(ctx)
}

// AllowBrief reports whether another brief may be requested now.
func (s *Session) AllowBrief() bool {
	return s.limiter.Allow()
}

// Close stops the pump. Buffered events stay readable.
func (s *Session) Close() {
	s.pump.Stop()
}
