// Copyright 2025 James Ross
package auditlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/incontrol/trust-kernel/internal/obs"
)

// Log is the kernel's bounded, append-only audit store. The in-memory ring
// buffer is the source of truth for Query and Stats; the optional file
// sink is a write-only JSONL mirror for offline inspection and does not
// participate in reads.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	maxCount int
	seq      uint64
	file     *lumberjack.Logger
	logger   *zap.Logger
	metrics  *obs.Metrics
}

// Option configures a Log at construction time.
type Option func(*Log)

// WithFileSink mirrors every appended entry to a rotating JSONL file.
func WithFileSink(path string, rotateSizeMB, maxBackups int, compress bool) Option {
	return func(l *Log) {
		if path == "" {
			return
		}
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		l.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotateSizeMB,
			MaxBackups: maxBackups,
			Compress:   compress,
		}
	}
}

// WithLogger attaches a zap logger for diagnostic output alongside entries.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithMetrics attaches a Prometheus metrics recorder.
func WithMetrics(m *obs.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// New constructs a Log bounded to maxCount entries. maxCount must be >= 1.
func New(maxCount int, opts ...Option) *Log {
	if maxCount < 1 {
		maxCount = 1
	}
	l := &Log{maxCount: maxCount, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records entry, stamping its timestamp if unset, dropping the
// oldest entry in insertion order once the bound is exceeded.
func (l *Log) Append(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.seq++
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxCount {
		l.entries = l.entries[len(l.entries)-l.maxCount:]
	}
	file := l.file
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.AuditEntries.Inc()
	}
	if file != nil {
		if b, err := json.Marshal(entry); err == nil {
			_, _ = file.Write(append(b, '\n'))
		}
	}
	l.logger.Debug("audit entry", zap.String("event_type", string(entry.EventType)), zap.String("plugin_id", entry.PluginID))
}

// Query returns entries matching filter, ordered by timestamp descending,
// ties broken by insertion order (most recently appended first).
func (l *Log) Query(filter Filter) []Entry {
	l.mu.Lock()
	snapshot := make([]Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	// Walk newest-appended first so the stable sort leaves timestamp ties
	// in reverse insertion order.
	out := make([]Entry, 0, len(snapshot))
	for i := len(snapshot) - 1; i >= 0; i-- {
		if matches(snapshot[i], filter) {
			out = append(out, snapshot[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func matches(e Entry, f Filter) bool {
	if f.PluginID != "" && e.PluginID != f.PluginID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}

// Stats derives summary statistics from the current entry list.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	snapshot := make([]Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	s := Stats{
		CountsByType:   make(map[EventType]int),
		CountsByPlugin: make(map[string]int),
	}
	var totalDuration time.Duration
	var durationCount int
	var successCount, outcomeCount int

	for i, e := range snapshot {
		s.TotalEntries++
		s.CountsByType[e.EventType]++
		if e.PluginID != "" {
			s.CountsByPlugin[e.PluginID]++
		}
		if e.EventType == EventResourceAccess && e.Permitted != nil && !*e.Permitted {
			s.DeniedAccesses++
		}
		if e.Duration > 0 {
			totalDuration += e.Duration
			durationCount++
		}
		if e.Success != nil {
			outcomeCount++
			if *e.Success {
				successCount++
			}
		}
		ts := snapshot[i].Timestamp
		if s.FirstTimestamp == nil || ts.Before(*s.FirstTimestamp) {
			t := ts
			s.FirstTimestamp = &t
		}
		if s.LastTimestamp == nil || ts.After(*s.LastTimestamp) {
			t := ts
			s.LastTimestamp = &t
		}
	}

	if durationCount > 0 {
		s.AverageDuration = totalDuration / time.Duration(durationCount)
	}
	if outcomeCount > 0 {
		s.SuccessRate = float64(successCount) / float64(outcomeCount)
	}
	return s
}

// Clear removes every entry, for operator-triggered resets; does not
// truncate the file sink. The policy engine's evaluation log is separate
// and is cleared by policy.Engine.ClearAuditLog.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// TrimOlderThan drops entries timestamped before cutoff and returns the
// count removed. Intended for a periodic retention sweep (internal/governed
// schedules one via cron) independent of the append-time count bound.
func (l *Log) TrimOlderThan(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0:0]
	removed := 0
	for _, e := range l.entries {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return removed
}

// Close releases the file sink, if any.
func (l *Log) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// LogResourceAccess is a convenience constructor for the mediator audit
// invariant: every mediator call produces exactly one ResourceAccess entry.
func (l *Log) LogResourceAccess(pluginID, resourceType, resource string, permitted bool, details map[string]interface{}) {
	l.Append(Entry{
		PluginID:     pluginID,
		EventType:    EventResourceAccess,
		ResourceType: resourceType,
		Resource:     resource,
		Permitted:    boolPtr(permitted),
		Details:      details,
	})
}
