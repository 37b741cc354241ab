package report

import (
	"context"
	"time"
)

// Schedule generates a report from req every interval until ctx is done.
// Failures are logged and the next tick tries again.
func (c *Compiler) Schedule(ctx context.Context, interval time.Duration, req Request) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.log.Info("scheduled reports enabled", "interval", interval.String(), "format", req.Format)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Generate(ctx, req); err != nil {
				c.log.Error("scheduled report failed", "error", err)
			}
		}
	}
}
