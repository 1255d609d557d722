package gotrue

import (
	"context"
	"time"
)

// StartAutoRefresh refreshes the persisted session in the background whenever
// it comes within the refresh margin of expiry. The returned function stops the
// loop; Close also stops it.
func (c *Client) StartAutoRefresh(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.C:
				c.autoRefreshTick(ctx)
			}
		}
	}()
	return cancel
}

func (c *Client) autoRefreshTick(ctx context.Context) {
	s, err := c.loadSession(ctx)
	if err != nil {
		c.logger.Warn("auto refresh could not load session", "error", err)
		return
	}
	if s == nil || s.RefreshToken == "" || !s.ExpiresWithin(c.refreshMargin, c.now()) {
		return
	}

	if _, err := c.refresh(ctx, s.RefreshToken); err != nil {
		if rejected(err) {
			c.logger.Info("auto refresh rejected, signing out", "error", err)
			c.signedOut(ctx)
			return
		}
		c.logger.Warn("auto refresh failed", "error", err)
	}
}
