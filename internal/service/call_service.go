package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
	"github.com/devrev/hvac-voice-agent/internal/resilience"
	"github.com/devrev/hvac-voice-agent/internal/session"
	"github.com/devrev/hvac-voice-agent/internal/store"
	"github.com/devrev/hvac-voice-agent/internal/workerpool"
)

// CallStatus is a Twilio call status callback
type CallStatus struct {
	CallSID    string
	CallStatus string
}

// CallService persists call records and retires sessions once calls end
type CallService struct {
	sessions session.Store
	logs     store.CallLogStore
	pool     *workerpool.WorkerPool
	executor *resilience.Executor
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewCallService creates a call service
func NewCallService(
	sessions session.Store,
	logs store.CallLogStore,
	pool *workerpool.WorkerPool,
	executor *resilience.Executor,
	recorder Recorder,
	logger *zap.Logger,
) *CallService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallService{
		sessions: sessions,
		logs:     logs,
		pool:     pool,
		executor: executor,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Persist writes the call log for a session in the background. The
// conversation may still be speaking its final reply, so the log has no end
// time until the status callback arrives.
func (c *CallService) Persist(s *dialog.Session) {
	log := s.CallLog(nil)
	write := func(ctx context.Context) error {
		return c.executor.Do(ctx, func(ctx context.Context) error {
			return c.logs.UpsertCallLog(ctx, &log)
		})
	}

	if c.pool != nil {
		err := c.pool.Submit(workerpool.Task{
			Name:    "calllog-" + s.CallSID,
			Timeout: 10 * time.Second,
			Run:     write,
		})
		if err == nil {
			return
		}
		c.logger.Warn("Call log queue full, writing inline",
			zap.String("call_sid", s.CallSID),
			zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := write(ctx); err != nil {
		c.logger.Error("Failed to persist call log",
			zap.String("call_sid", s.CallSID),
			zap.Error(err))
	}
}

// Finalize handles the end of a call: the session's outcome is fixed, the
// call log is written with its end time and the session is deleted.
func (c *CallService) Finalize(ctx context.Context, status CallStatus) error {
	release, err := c.sessions.Lock(ctx, status.CallSID)
	if err != nil {
		if errors.Is(err, session.ErrLockTimeout) {
			c.recorder.RecordLockTimeout()
		}
		return fmt.Errorf("failed to lock session: %w", err)
	}
	defer release()

	s, err := c.sessions.Get(ctx, status.CallSID)
	if errors.Is(err, session.ErrNotFound) {
		c.logger.Debug("No session to finalize", zap.String("call_sid", status.CallSID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if !s.Finished() {
		s.Outcome = dialog.OutcomeAbandoned
		c.recorder.RecordAbandoned()
	}
	if err := c.retire(ctx, s, status.CallStatus); err != nil {
		return err
	}

	c.logger.Info("Call finalized",
		zap.String("call_sid", s.CallSID),
		zap.String("outcome", string(s.Outcome)),
		zap.String("call_status", status.CallStatus),
		zap.Int("turns", s.Turn))
	return nil
}

// SweepAbandoned finalizes sessions idle for longer than idle whose status
// callback never arrived. It returns the number of sessions retired.
func (c *CallService) SweepAbandoned(ctx context.Context, idle time.Duration) (int, error) {
	sessions, err := c.sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cutoff := c.now().Add(-idle)
	retired := 0
	for _, s := range sessions {
		if s.UpdatedAt.After(cutoff) {
			continue
		}
		ok, err := c.sweepOne(ctx, s.CallSID, cutoff)
		if err != nil {
			c.logger.Warn("Failed to retire idle session",
				zap.String("call_sid", s.CallSID),
				zap.Error(err))
			continue
		}
		if ok {
			retired++
		}
	}
	return retired, nil
}

func (c *CallService) sweepOne(ctx context.Context, callSID string, cutoff time.Time) (bool, error) {
	release, err := c.sessions.Lock(ctx, callSID)
	if err != nil {
		return false, err
	}
	defer release()

	// Reload under the lock; a webhook may have advanced the call meanwhile.
	s, err := c.sessions.Get(ctx, callSID)
	if errors.Is(err, session.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.UpdatedAt.After(cutoff) {
		return false, nil
	}

	if !s.Finished() {
		s.Outcome = dialog.OutcomeAbandoned
		c.recorder.RecordAbandoned()
	}
	if err := c.retire(ctx, s, ""); err != nil {
		return false, err
	}
	c.logger.Info("Retired idle session",
		zap.String("call_sid", callSID),
		zap.String("outcome", string(s.Outcome)),
		zap.Time("updated_at", s.UpdatedAt))
	return true, nil
}

func (c *CallService) retire(ctx context.Context, s *dialog.Session, callStatus string) error {
	ended := c.now().UTC()
	log := s.CallLog(&ended)
	log.CallStatus = callStatus

	err := c.executor.Do(ctx, func(ctx context.Context) error {
		return c.logs.UpsertCallLog(ctx, &log)
	})
	if err != nil {
		// The session is kept so the sweep can try again.
		return fmt.Errorf("failed to write call log: %w", err)
	}

	if err := c.sessions.Delete(ctx, s.CallSID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
