package settings

import (
	"context"

	"github.com/kumarabd/gokit/logger"

	"github.com/kumarabd/console-brief/pkg/cache"
)

type memoryKV struct {
	cache *cache.Handler[string]
}

func (m *memoryKV) get(_ context.Context, key string) (string, error) {
	v, _ := m.cache.Get(key)
	return v, nil
}

func (m *memoryKV) set(_ context.Context, values map[string]string) error {
	for k, v := range values {
		m.cache.Set(k, v)
	}
	return nil
}

func (m *memoryKV) del(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// NewMemory creates a process-local store. Settings are lost on restart.
func NewMemory(log *logger.Handler) Store {
	return &store{
		kv:  &memoryKV{cache: cache.New[string](cache.Never, 0)},
		log: log,
	}
}
