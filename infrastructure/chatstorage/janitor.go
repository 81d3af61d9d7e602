package chatstorage

import (
	"context"
	"time"

	"github.com/govconnect/channel-gateway/domains/chat"
	"github.com/sirupsen/logrus"
)

// Janitor sweeps terminal pending-message rows older than the retention
// window so the queue table never grows unbounded.
type Janitor struct {
	pending   chat.IPendingRepository
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

func NewJanitor(pending chat.IPendingRepository) *Janitor {
	return &Janitor{
		pending:   pending,
		interval:  time.Hour,
		retention: 24 * time.Hour,
		stopCh:    make(chan struct{}),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.sweep(ctx)
			case <-j.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	logrus.Infof("[JANITOR] Started, interval=%s retention=%s", j.interval, j.retention)
}

func (j *Janitor) Stop() {
	close(j.stopCh)
}

func (j *Janitor) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)
	removed, err := j.pending.SweepOlderThan(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).Warn("[JANITOR] Pending sweep failed")
		return
	}
	if removed > 0 {
		logrus.Infof("[JANITOR] Removed %d terminal pending rows", removed)
	}
}
