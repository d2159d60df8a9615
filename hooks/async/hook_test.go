package asynchook

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unkn0wn-root/docsource"
)

type counting struct {
	docsource.NopHooks
	mu   sync.Mutex
	hits int
	heal []string
}

func (c *counting) CacheHit(string, string) {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *counting) SelfHeal(_, reason string) {
	c.mu.Lock()
	c.heal = append(c.heal, reason)
	c.mu.Unlock()
}

func TestAsyncHooksDeliverBeforeClose(t *testing.T) {
	inner := &counting{}
	h := New(inner, 2, 64)
	for i := 0; i < 10; i++ {
		h.CacheHit("users", "id")
	}
	h.SelfHeal("users:id:1", "corrupt")
	h.Close()

	assert.Equal(t, 10, inner.hits)
	assert.Equal(t, []string{"corrupt"}, inner.heal)
}

func TestAsyncHooksDropAfterClose(t *testing.T) {
	inner := &counting{}
	h := New(inner, 1, 1)
	h.Close()
	h.Close()
	h.CacheHit("users", "id") // must not panic on the closed queue
	assert.Zero(t, inner.hits)
}
