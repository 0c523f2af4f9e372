package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kumarabd/console-brief/pkg/capture"
	"github.com/kumarabd/console-brief/pkg/ingest"
)

// cliIngest accepts whole capture files rather than single pushes.
var cliIngest = ingest.NewHandler(&ingest.Config{
	MaxBodyBytes: 256 << 20,
	MaxBatchSize: 1 << 20,
	MaxArgs:      64,
	ValidateUTF8: true,
}, nil, nil)

// open returns the named file, or stdin for "-".
func open(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// loadCapture replays a capture file into a bounded buffer, keeping the most
// recent capacity events the way a live tab would.
func loadCapture(path string, stdin io.Reader, capacity int) (*capture.Buffer, error) {
	r, err := open(path, stdin)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries, err := cliIngest.DecodeJSON(r)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	now := time.Now()
	for i := range entries {
		entries[i].Fill(now)
	}

	buf := capture.NewBuffer(capacity)
	buf.AppendAll(entries)
	return buf, nil
}
