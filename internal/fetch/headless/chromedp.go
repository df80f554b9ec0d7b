// Package headless renders bot-walled pages with a real browser engine.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/curator/metadata-resolver/internal/fetch"
	"github.com/curator/metadata-resolver/internal/resolver"
)

// Config controls the behavior of the rendered fetcher.
type Config struct {
	MaxParallel       int
	NavigationTimeout time.Duration
}

// Renderer implements fetch.RenderedFetcher using chromedp. A shared exec
// allocator keeps browser startup cost off the per-fetch path; MaxParallel
// bounds concurrent tabs.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewRenderer creates a rendered fetcher backed by headless Chrome.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates with a headless browser under the given identity and
// returns the fully rendered DOM.
func (r *Renderer) Render(ctx context.Context, url string, identity fetch.Identity) (resolver.Page, error) {
	if err := r.acquire(ctx); err != nil {
		return resolver.Page{}, err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	start := time.Now()
	var html string
	actions := []chromedp.Action{
		r.networkSetupAction(identity),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return resolver.Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	return resolver.Page{
		URL:        url,
		StatusCode: 200,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Identity:   identity.Name,
		Rendered:   true,
	}, nil
}

func (r *Renderer) networkSetupAction(identity fetch.Identity) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if identity.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(identity.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(identity.Headers) > 0 {
			headers := network.Headers{}
			for key, value := range identity.Headers {
				headers[key] = value
			}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}
