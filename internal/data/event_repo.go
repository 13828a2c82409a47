package data

import (
	"context"
	"math"
	"sync"
	"time"

	"AIResilience/internal/model"
	pkgerrors "AIResilience/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

const (
	// eventQueueSize bounds pending writes; further events are dropped with a warning.
	eventQueueSize = 1000
	// maxWriteAttempts covers the first write and retries of transient errors.
	maxWriteAttempts = 3
	writeRetryDelay  = 100 * time.Millisecond
	writeTimeout     = 5 * time.Second
)

// RequestPO is the GORM model for the requests table
type RequestPO struct {
	ID                  int64     `gorm:"primaryKey;column:id"`
	Service             string    `gorm:"column:service;type:varchar(64);not null;index:idx_requests_service_ts,priority:1"`
	Prompt              string    `gorm:"column:prompt;type:text"`
	Success             bool      `gorm:"column:success;not null"`
	UsedRealAPI         bool      `gorm:"column:used_real_api;not null"`
	LatencyMs           int64     `gorm:"column:latency_ms;not null"`
	ResponseSize        int       `gorm:"column:response_size;default:0"`
	ErrorType           string    `gorm:"column:error_type;type:varchar(32)"`
	ErrorMessage        string    `gorm:"column:error_message;type:text"`
	CircuitBreakerState string    `gorm:"column:circuit_breaker_state;type:varchar(16)"`
	ChaosActive         bool      `gorm:"column:chaos_active;not null"`
	Timestamp           time.Time `gorm:"column:timestamp;not null;index:idx_requests_service_ts,priority:2;index"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (RequestPO) TableName() string {
	return "requests"
}

// CircuitBreakerEventPO is the GORM model for the circuit_breaker_events table
type CircuitBreakerEventPO struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	Service   string    `gorm:"column:service;type:varchar(64);not null;index"`
	FromState string    `gorm:"column:from_state;type:varchar(16);not null"`
	ToState   string    `gorm:"column:to_state;type:varchar(16);not null"`
	Reason    string    `gorm:"column:reason;type:varchar(255)"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index"`
}

// TableName specifies the table name for GORM
func (CircuitBreakerEventPO) TableName() string {
	return "circuit_breaker_events"
}

// ChaosExperimentPO is the GORM model for the chaos_experiments table
type ChaosExperimentPO struct {
	ID             int64      `gorm:"primaryKey;column:id"`
	ExperimentID   string     `gorm:"column:experiment_id;type:varchar(128);not null;uniqueIndex"`
	Service        string     `gorm:"column:service;type:varchar(64);not null"`
	ChaosType      string     `gorm:"column:chaos_type;type:varchar(32);not null"`
	Intensity      int        `gorm:"column:intensity;not null"`
	DurationSec    int        `gorm:"column:duration_seconds;not null"`
	StartTime      time.Time  `gorm:"column:start_time;not null"`
	EndTime        *time.Time `gorm:"column:end_time"`
	TotalRequests  int64      `gorm:"column:total_requests;default:0"`
	FailedRequests int64      `gorm:"column:failed_requests;default:0"`
	Notes          string     `gorm:"column:notes;type:text"`
}

// TableName specifies the table name for GORM
func (ChaosExperimentPO) TableName() string {
	return "chaos_experiments"
}

// MetricsSnapshotPO is the GORM model for the metrics_snapshots table
type MetricsSnapshotPO struct {
	ID                 int64     `gorm:"primaryKey;column:id"`
	Timestamp          time.Time `gorm:"column:timestamp;not null;index"`
	TotalRequests      int64     `gorm:"column:total_requests"`
	SuccessfulRequests int64     `gorm:"column:successful_requests"`
	FailedRequests     int64     `gorm:"column:failed_requests"`
	FallbackResponses  int64     `gorm:"column:fallback_responses"`
	SuccessRate        float64   `gorm:"column:success_rate"`
	AvgLatency         float64   `gorm:"column:avg_latency"`
	UptimeSec          int64     `gorm:"column:uptime_seconds"`
	MetricsJSON        string    `gorm:"column:metrics_json;type:json"`
}

// TableName specifies the table name for GORM
func (MetricsSnapshotPO) TableName() string {
	return "metrics_snapshots"
}

// writeJob is one queued insert or update.
type writeJob struct {
	kind string
	key  string
	run  func(ctx context.Context, db *gorm.DB) error
}

// EventRepo implements biz.EventRepo interface.
// Save* methods enqueue onto a buffered channel drained by a single writer goroutine.
// Without a database every write is skipped and queries return pkgerrors.ErrStoreUnavailable.
type EventRepo struct {
	db         *gorm.DB
	logger     *log.Helper
	retryDelay time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan writeJob
	wg     sync.WaitGroup
}

// NewEventRepo creates a new event repository and starts its writer.
// The cleanup function drains pending writes.
func NewEventRepo(data *Data, logger log.Logger) (*EventRepo, func()) {
	r := newEventRepo(data.GetDB(), logger)
	return r, r.Close
}

func newEventRepo(db *gorm.DB, logger log.Logger) *EventRepo {
	r := &EventRepo{
		db:         db,
		logger:     log.NewHelper(logger),
		retryDelay: writeRetryDelay,
	}
	if db != nil {
		r.queue = make(chan writeJob, eventQueueSize)
		r.wg.Add(1)
		go r.start()
	}
	return r
}

// Close stops accepting writes and waits for the queue to drain.
func (r *EventRepo) Close() {
	r.mu.Lock()
	if r.closed || r.queue == nil {
		r.closed = true
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("event writer stopped")
}

// start processes write jobs from the queue
func (r *EventRepo) start() {
	defer r.wg.Done()
	for job := range r.queue {
		if err := r.write(job); err != nil {
			r.logger.Errorw("msg", "failed to write event",
				"kind", job.kind,
				"key", job.key,
				"error", err)
		} else {
			r.logger.Debugw("msg", "event written", "kind", job.kind, "key", job.key)
		}
	}
}

func (r *EventRepo) write(job writeJob) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = job.run(ctx, r.db)
		cancel()
		if err == nil || !pkgerrors.IsRetryable(err) || attempt == maxWriteAttempts {
			return err
		}
		r.logger.Warnw("msg", "retrying event write",
			"kind", job.kind,
			"attempt", attempt,
			"error", err)
		time.Sleep(r.retryDelay * time.Duration(attempt))
	}
	return err
}

// enqueue sends a job to the writer (non-blocking)
func (r *EventRepo) enqueue(job writeJob) {
	if r.db == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warnw("msg", "event writer closed, dropping event", "kind", job.kind, "key", job.key)
		return
	}

	select {
	case r.queue <- job:
		// Successfully queued
	default:
		r.logger.Warnw("msg", "event queue full, dropping event",
			"kind", job.kind,
			"key", job.key)
	}
}

// SaveRequest queues a request log row.
func (r *EventRepo) SaveRequest(_ context.Context, rec *model.RequestLog) {
	po := toRequestPO(rec)
	r.enqueue(writeJob{kind: "request", key: rec.Service, run: func(ctx context.Context, db *gorm.DB) error {
		return db.WithContext(ctx).Create(po).Error
	}})
}

// SaveTransition queues a breaker transition row.
func (r *EventRepo) SaveTransition(_ context.Context, ev *model.CircuitBreakerEvent) {
	po := &CircuitBreakerEventPO{
		Service:   ev.Service,
		FromState: ev.FromState,
		ToState:   ev.ToState,
		Reason:    ev.Reason,
		Timestamp: ev.Timestamp,
	}
	r.enqueue(writeJob{kind: "transition", key: ev.Service, run: func(ctx context.Context, db *gorm.DB) error {
		return db.WithContext(ctx).Create(po).Error
	}})
}

// SaveChaosStarted queues the insert of a running experiment.
func (r *EventRepo) SaveChaosStarted(_ context.Context, exp *model.ChaosExperiment) {
	po := toChaosExperimentPO(exp)
	r.enqueue(writeJob{kind: "chaos_started", key: exp.ExperimentID, run: func(ctx context.Context, db *gorm.DB) error {
		return db.WithContext(ctx).Create(po).Error
	}})
}

// SaveChaosEnded queues the update that closes an experiment.
// The row is created when its start was never persisted.
func (r *EventRepo) SaveChaosEnded(_ context.Context, exp *model.ChaosExperiment) {
	po := toChaosExperimentPO(exp)
	r.enqueue(writeJob{kind: "chaos_ended", key: exp.ExperimentID, run: func(ctx context.Context, db *gorm.DB) error {
		res := db.WithContext(ctx).Model(&ChaosExperimentPO{}).
			Where("experiment_id = ?", po.ExperimentID).
			Updates(map[string]interface{}{
				"end_time":        po.EndTime,
				"total_requests":  po.TotalRequests,
				"failed_requests": po.FailedRequests,
				"notes":           po.Notes,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return db.WithContext(ctx).Create(po).Error
		}
		return nil
	}})
}

// SaveSnapshot writes a metrics snapshot synchronously.
func (r *EventRepo) SaveSnapshot(ctx context.Context, snap *model.MetricsSnapshot) error {
	if r.db == nil {
		return pkgerrors.ErrStoreUnavailable
	}

	po := &MetricsSnapshotPO{
		Timestamp:          snap.Timestamp,
		TotalRequests:      snap.TotalRequests,
		SuccessfulRequests: snap.SuccessfulRequests,
		FailedRequests:     snap.FailedRequests,
		FallbackResponses:  snap.FallbackResponses,
		SuccessRate:        snap.SuccessRate,
		AvgLatency:         snap.AvgLatency,
		UptimeSec:          snap.UptimeSec,
		MetricsJSON:        snap.MetricsJSON,
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return pkgerrors.ClassifyDBError(err)
	}
	return nil
}

// serviceStatsColumns selects one serviceStatsRow per service.
const serviceStatsColumns = "service, COUNT(*) AS total, " +
	"SUM(CASE WHEN success THEN 1 ELSE 0 END) AS successful, " +
	"AVG(latency_ms) AS avg_latency, MIN(latency_ms) AS min_latency, MAX(latency_ms) AS max_latency, " +
	"AVG(response_size) AS avg_response_size"

// serviceStatsRow is the scan target of the statistics query.
type serviceStatsRow struct {
	Service         string
	Total           int64
	Successful      int64
	AvgLatency      float64
	MinLatency      int64
	MaxLatency      int64
	AvgResponseSize float64
}

// ServiceStatistics aggregates request rows since the given time, grouped by service.
// An empty service selects every service.
func (r *EventRepo) ServiceStatistics(ctx context.Context, service string, since time.Time) (map[string]*model.ServiceStats, error) {
	if r.db == nil {
		return nil, pkgerrors.ErrStoreUnavailable
	}

	query := r.db.WithContext(ctx).Model(&RequestPO{}).
		Select(serviceStatsColumns).
		Where("timestamp >= ?", since)
	if service != "" {
		query = query.Where("service = ?", service)
	}

	var rows []serviceStatsRow
	if err := query.Group("service").Scan(&rows).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(err)
	}

	return toServiceStats(rows), nil
}

func toServiceStats(rows []serviceStatsRow) map[string]*model.ServiceStats {
	stats := make(map[string]*model.ServiceStats, len(rows))
	for _, row := range rows {
		s := &model.ServiceStats{
			Service:            row.Service,
			TotalRequests:      row.Total,
			SuccessfulRequests: row.Successful,
			FailedRequests:     row.Total - row.Successful,
			AvgLatency:         math.Round(row.AvgLatency*100) / 100,
			MinLatency:         row.MinLatency,
			MaxLatency:         row.MaxLatency,
			AvgResponseSize:    math.Round(row.AvgResponseSize*100) / 100,
		}
		if row.Total > 0 {
			s.SuccessRate = math.Round(float64(row.Successful)/float64(row.Total)*10000) / 100
		}
		stats[row.Service] = s
	}
	return stats
}

func toRequestPO(rec *model.RequestLog) *RequestPO {
	return &RequestPO{
		Service:             rec.Service,
		Prompt:              rec.Prompt,
		Success:             rec.Success,
		UsedRealAPI:         rec.UsedRealCall,
		LatencyMs:           rec.LatencyMs,
		ResponseSize:        rec.ResponseSize,
		ErrorType:           rec.ErrorType,
		ErrorMessage:        rec.ErrorMessage,
		CircuitBreakerState: rec.CircuitBreakerState,
		ChaosActive:         rec.ChaosActive,
		Timestamp:           rec.Timestamp,
	}
}

func toChaosExperimentPO(exp *model.ChaosExperiment) *ChaosExperimentPO {
	return &ChaosExperimentPO{
		ExperimentID:   exp.ExperimentID,
		Service:        exp.Service,
		ChaosType:      exp.ChaosType,
		Intensity:      exp.Intensity,
		DurationSec:    exp.DurationSec,
		StartTime:      exp.StartTime,
		EndTime:        exp.EndTime,
		TotalRequests:  exp.TotalRequests,
		FailedRequests: exp.FailedRequests,
		Notes:          exp.Notes,
	}
}
