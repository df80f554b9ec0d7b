package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/resolver"
)

func testConfig() Config {
	return Config{
		Timeout:     5 * time.Second,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
}

func TestClient_FetchPage_Succeeds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>article</body></html>"))
	}))
	defer srv.Close()

	client := New(testConfig(), NewRotator(DefaultIdentities()), nil, zap.NewNop())
	page, err := client.FetchPage(context.Background(), srv.URL)

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "article")
	require.NotEmpty(t, page.Identity)
}

func TestClient_FetchPage_RotatesOnForbidden(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		agents []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		n := len(agents)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<html>let in</html>"))
	}))
	defer srv.Close()

	client := New(testConfig(), NewRotator(DefaultIdentities()), nil, zap.NewNop())
	page, err := client.FetchPage(context.Background(), srv.URL)

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, agents, 2)
	require.NotEqual(t, agents[0], agents[1], "expected a different identity on retry")
}

func TestClient_FetchPage_ExhaustsPool(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		count int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	pool := DefaultIdentities()
	client := New(testConfig(), NewRotator(pool), nil, zap.NewNop())
	_, err := client.FetchPage(context.Background(), srv.URL)

	require.Error(t, err)
	require.Contains(t, err.Error(), "blocked")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, len(pool), count, "one attempt per identity")
}

type stubRenderer struct {
	page resolver.Page
	err  error
	urls []string
}

func (s *stubRenderer) Render(_ context.Context, url string, _ Identity) (resolver.Page, error) {
	s.urls = append(s.urls, url)
	return s.page, s.err
}

func TestClient_FetchPage_EscalatesToRenderedFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	renderer := &stubRenderer{page: resolver.Page{
		StatusCode: http.StatusOK,
		Body:       []byte("<html>rendered content</html>"),
		Rendered:   true,
	}}
	client := New(testConfig(), NewRotator(DefaultIdentities()), renderer, zap.NewNop())
	page, err := client.FetchPage(context.Background(), srv.URL)

	require.NoError(t, err)
	require.True(t, page.Rendered)
	require.Len(t, renderer.urls, 1, "rendered fetch happens exactly once")
}

func TestClient_FetchPage_RenderedFailureSurfacesBlockError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	renderer := &stubRenderer{err: context.DeadlineExceeded}
	client := New(testConfig(), NewRotator(DefaultIdentities()), renderer, zap.NewNop())
	_, err := client.FetchPage(context.Background(), srv.URL)

	require.Error(t, err)
	require.Contains(t, err.Error(), "blocked")
}

func TestClient_FetchPage_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(testConfig(), NewRotator(DefaultIdentities()), nil, zap.NewNop())
	_, err := client.FetchPage(ctx, srv.URL)

	require.Error(t, err)
}
