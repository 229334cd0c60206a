package upload

import (
	"context"
	"time"

	"github.com/omnidrive/omnidrive/internal/logger"
)

// DefaultJanitorInterval is how often expired sessions are swept.
const DefaultJanitorInterval = 15 * time.Minute

// StartJanitor launches the background sweep that cancels expired
// sessions, releasing their spool files and remote multipart state. It
// stops when ctx is cancelled.
func (o *Orchestrator) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.sweepExpired(ctx)
			}
		}
	}()
}

func (o *Orchestrator) sweepExpired(ctx context.Context) {
	expired, err := o.sessions.ListExpired(ctx, time.Now())
	if err != nil {
		logger.Error("upload janitor: listing expired sessions: %v", err)
		return
	}

	for _, session := range expired {
		if err := o.Cancel(ctx, session.ID); err != nil {
			logger.Warn("upload janitor: cancelling session %s: %v", session.ID, err)
			continue
		}
		logger.Info("upload janitor: expired session %s cancelled", session.ID)
	}
}
