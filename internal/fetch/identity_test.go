package fetch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotator_RoundRobin(t *testing.T) {
	t.Parallel()

	pool := []Identity{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	r := NewRotator(pool)

	require.Equal(t, 3, r.Size())
	require.Equal(t, "a", r.Next().Name)
	require.Equal(t, "b", r.Next().Name)
	require.Equal(t, "c", r.Next().Name)
	require.Equal(t, "a", r.Next().Name, "rotation wraps around")
}

func TestRotator_EmptyPoolUsesDefaults(t *testing.T) {
	t.Parallel()

	r := NewRotator(nil)

	require.Equal(t, len(DefaultIdentities()), r.Size())
	require.NotEmpty(t, r.Next().UserAgent)
}

func TestRotator_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := NewRotator(DefaultIdentities())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				require.NotEmpty(t, r.Next().UserAgent)
			}
		}()
	}
	wg.Wait()
}

func TestDefaultIdentities_Distinct(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, id := range DefaultIdentities() {
		require.NotEmpty(t, id.UserAgent)
		require.NotEmpty(t, id.Headers["Accept"])
		require.False(t, seen[id.UserAgent], "duplicate user agent %s", id.UserAgent)
		seen[id.UserAgent] = true
	}
}

func TestIdentitiesFromUserAgents(t *testing.T) {
	t.Parallel()

	pool := IdentitiesFromUserAgents([]string{"ua-one", "ua-two"})
	require.Len(t, pool, 2)
	require.Equal(t, "ua-one", pool[0].UserAgent)
	require.NotEmpty(t, pool[0].Headers["Accept"])

	require.Equal(t, DefaultIdentities(), IdentitiesFromUserAgents(nil))
}
