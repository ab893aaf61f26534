package sessioncache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

func TestMemoryGetPut(t *testing.T) {
	t.Parallel()
	m := New()

	_, ok := m.Get("a")
	assert.False(t, ok)

	rec := domain.SessionRecord{Token: "tok", TokenExpiresAt: time.Now().Add(time.Hour)}
	m.Put("a", rec)

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "tok", got.Token)

	// Records are independent per account.
	_, ok = m.Get("b")
	assert.False(t, ok)
}

func TestMemoryPutReplacesWholesale(t *testing.T) {
	t.Parallel()
	m := New()
	m.Put("a", domain.SessionRecord{Token: "t1", Session: "s1", SessionToken: "t1"})
	m.Put("a", domain.SessionRecord{Token: "t2"})

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "t2", got.Token)
	assert.Empty(t, got.Session)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	t.Parallel()
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("acc-%d", i%4)
			m.Put(id, domain.SessionRecord{Token: id})
			m.Get(id)
		}(i)
	}
	wg.Wait()
}
