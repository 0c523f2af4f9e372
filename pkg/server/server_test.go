package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	svc, log, metric := newTestService(t)

	t.Run("no listeners", func(t *testing.T) {
		_, err := New(log, metric, &Config{}, svc)
		assert.Error(t, err)
	})

	t.Run("http only", func(t *testing.T) {
		h, err := New(log, metric, &Config{HTTP: &HTTPConfig{Host: "127.0.0.1", Port: "0"}}, svc)
		require.NoError(t, err)
		assert.NotNil(t, h.HTTP)
		assert.Nil(t, h.GRPC)
		assert.Len(t, h.listeners, 1)
	})

	t.Run("both, stop before start", func(t *testing.T) {
		h, err := New(log, metric, &Config{
			HTTP: &HTTPConfig{Host: "127.0.0.1", Port: "0"},
			GRPC: &GRPCConfig{Host: "127.0.0.1", Port: "0"},
		}, svc)
		require.NoError(t, err)
		assert.Len(t, h.listeners, 2)
		assert.NoError(t, h.Stop(context.Background()))
	})
}
