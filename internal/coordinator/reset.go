package coordinator

import (
	"context"
	"time"
)

// scheduleHourlyReset starts a background timer firing at the next
// wall-clock hour boundary and every hour after that. On fire it drains
// the in-flight cohort, kills outstanding hash batches, clears the
// gate's submission failure tally, and re-initializes the ROM for the
// current challenge before resuming — bounding memory growth and
// recovering from any latent worker wedging (§4.7). The returned
// function stops the timer.
func (c *Coordinator) scheduleHourlyReset(ctx context.Context) func() {
	stop := make(chan struct{})

	go func() {
		timer := time.NewTimer(durationToNextHour(time.Now()))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-timer.C:
				c.performHourlyReset(ctx)
				timer.Reset(time.Hour)
			}
		}
	}()

	return func() { close(stop) }
}

func durationToNextHour(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}

func (c *Coordinator) performHourlyReset(ctx context.Context) {
	c.mu.Lock()
	cancel := c.cohortCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	_ = c.engine.KillWorkers(ctx)

	if c.gate != nil {
		c.gate.ResetFailureCounts()
	}

	if err := c.reinitROM(ctx); err != nil && c.logger != nil {
		c.logger.WithError(err).Error("ROM re-initialization failed during hourly reset")
	}

	if c.logger != nil {
		c.logger.Info("hourly reset completed")
	}
}
