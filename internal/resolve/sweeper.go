package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pkordes/tripcrew/backend/internal/repo"
)

// Sweeper purges conversation sessions that outlived the TTL. Expired
// sessions are already ignored by Resolve; sweeping only keeps the table small.
type Sweeper struct {
	sessions repo.SessionRepo
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSweeper builds a Sweeper. A nil now uses time.Now.
func NewSweeper(sessions repo.SessionRepo, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		sessions: sessions,
		ttl:      ttl,
		now:      now,
		logger:   logger.With(slog.String("component", "session_sweeper")),
	}
}

// Sweep deletes every session idle for longer than the TTL.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	n, err := s.sessions.DeleteOlderThan(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("resolve.Sweeper.Sweep: %w", err)
	}
	return n, nil
}

// Schedule registers Sweep on a new cron scheduler. The caller starts it and
// stops it on shutdown.
func (s *Sweeper) Schedule(spec string, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New(cron.WithLogger(cronLogger{s.logger}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := s.Sweep(ctx)
		if err != nil {
			s.logger.Error("session sweep failed", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			s.logger.Info("expired sessions purged", slog.Int64("deleted", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("resolve.Sweeper.Schedule: %w", err)
	}
	return c, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
