package browser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/usagedash/internal/interfaces"
)

// PacedLauncher spaces browser launches at least interval apart.
// Accounts that never launch a browser do not consume a slot.
type PacedLauncher struct {
	next    interfaces.BrowserLauncher
	limiter *rate.Limiter
}

// NewPacedLauncher wraps next. interval <= 0 returns next unchanged.
func NewPacedLauncher(next interfaces.BrowserLauncher, interval time.Duration) interfaces.BrowserLauncher {
	if interval <= 0 {
		return next
	}
	return &PacedLauncher{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Launch waits for a launch slot, then delegates
func (p *PacedLauncher) Launch(ctx context.Context) (interfaces.BrowserPage, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for launch slot: %w", err)
	}
	return p.next.Launch(ctx)
}
