package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// FlushResult counts one pass over the pending queue.
type FlushResult struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

// Syncer pushes queued edits to the server. There is no conflict check:
// a queued value overwrites whatever the server holds.
type Syncer struct {
	remote   Remote
	local    Local
	interval time.Duration
	logger   logrus.FieldLogger
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a syncer but does not start it. interval <= 0 selects 30s.
func New(remote Remote, local Local, interval time.Duration, logger logrus.FieldLogger) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		remote:   remote,
		local:    local,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Flush drains the queue in insertion order. Accepted entries are cleared
// along with older entries for the same field; rejected ones stay queued. Once the server is unreachable the rest of the
// queue is left for the next pass.
func (s *Syncer) Flush(ctx context.Context) (FlushResult, error) {
	var res FlushResult

	pending, err := s.local.PendingUpdates(ctx)
	if err != nil {
		return res, err
	}

	for _, pu := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++

		if _, err := s.remote.UpdateField(ctx, pu.RecordID, pu.Field, pu.NewValue); err != nil {
			res.Failed++
			s.logger.WithError(err).WithFields(logrus.Fields{
				"pending_id": pu.ID,
				"record_id":  pu.RecordID,
			}).Warn("sync push failed")
			if errors.Is(err, types.ErrStoreUnavailable) {
				break
			}
			continue
		}

		if err := s.local.ClearPendingThrough(ctx, pu); err != nil {
			return res, err
		}
		res.Synced++
	}
	return res, nil
}

// Start runs Flush on every tick while the server answers its health
// probe. The loop exits when ctx is cancelled or Stop is called.
func (s *Syncer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	s.logger.WithField("interval", s.interval.String()).Info("syncer started")
}

// Stop signals the loop to exit and waits for it to finish. It is a no-op
// if Start was never called.
func (s *Syncer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Done is closed when the loop has exited.
func (s *Syncer) Done() <-chan struct{} { return s.done }

func (s *Syncer) loop(ctx context.Context) {
	defer close(s.done)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Syncer) tick(ctx context.Context) {
	if _, err := s.remote.Health(ctx); err != nil {
		s.logger.WithError(err).Debug("server unreachable, skipping sync")
		return
	}
	res, err := s.Flush(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Warn("sync flush error")
		}
		return
	}
	if res.Attempted > 0 {
		s.logger.WithFields(logrus.Fields{
			"attempted": res.Attempted,
			"synced":    res.Synced,
			"failed":    res.Failed,
		}).Info("sync flush")
	}
}
