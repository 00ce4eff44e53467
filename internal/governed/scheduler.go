// Copyright 2025 James Ross
package governed

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/incontrol/trust-kernel/internal/auditlog"
)

// RetentionScheduler drives the kernel's periodic housekeeping: audit-log
// age-based trimming and Memory retention/capacity enforcement. It wraps a
// single shared *cron.Cron rather than one goroutine per job.
type RetentionScheduler struct {
	cron   *cron.Cron
	audit  *auditlog.Log
	memory *Memory
	logger *zap.Logger

	auditRetention time.Duration
}

// SchedulerOption configures a RetentionScheduler at construction time.
type SchedulerOption func(*RetentionScheduler)

// WithSchedulerLogger attaches a zap logger for sweep diagnostics.
func WithSchedulerLogger(l *zap.Logger) SchedulerOption {
	return func(s *RetentionScheduler) { s.logger = l }
}

// WithAuditRetention sets the age past which audit entries are trimmed by
// the audit sweep. Zero disables audit trimming (the ring buffer's count
// bound still applies).
func WithAuditRetention(d time.Duration) SchedulerOption {
	return func(s *RetentionScheduler) { s.auditRetention = d }
}

// NewRetentionScheduler constructs a scheduler bound to audit and memory.
// Either may be nil, in which case the corresponding sweep is a no-op.
func NewRetentionScheduler(audit *auditlog.Log, memory *Memory, opts ...SchedulerOption) *RetentionScheduler {
	s := &RetentionScheduler{
		cron:   cron.New(),
		audit:  audit,
		memory: memory,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the retention and capacity sweeps at the given cron
// expressions and starts the underlying cron instance. Returns the first
// parse error encountered, if any; a scheduler whose Start failed must not
// be reused.
func (s *RetentionScheduler) Start(retentionExpr, capacityExpr string) error {
	if _, err := s.cron.AddFunc(retentionExpr, s.runRetentionSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(capacityExpr, s.runCapacitySweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to finish.
func (s *RetentionScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunRetentionSweepNow runs the audit/memory age-based retention sweep
// synchronously, outside the cron schedule; exposed so callers and tests
// can exercise the sweep logic without waiting on a tick.
func (s *RetentionScheduler) RunRetentionSweepNow() {
	s.runRetentionSweep()
}

// RunCapacitySweepNow runs the memory count-limit sweep synchronously.
func (s *RetentionScheduler) RunCapacitySweepNow() {
	s.runCapacitySweep()
}

func (s *RetentionScheduler) runRetentionSweep() {
	if s.audit != nil && s.auditRetention > 0 {
		removed := s.audit.TrimOlderThan(time.Now().UTC().Add(-s.auditRetention))
		if removed > 0 {
			s.logger.Info("audit retention sweep trimmed entries", zap.Int("removed", removed))
		}
	}
	if s.memory != nil {
		removed := s.memory.ApplyRetentionPolicy()
		if removed > 0 {
			s.logger.Info("memory retention sweep removed items", zap.Int("removed", removed))
		}
	}
}

func (s *RetentionScheduler) runCapacitySweep() {
	if s.memory == nil {
		return
	}
	if removed := s.memory.EnforceCountLimit(); removed > 0 {
		s.logger.Info("memory capacity sweep removed items", zap.Int("removed", removed))
	}
}
