package biz

import (
	"context"

	"AIResilience/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// EventRecorder persists bus events through the EventRepo.
type EventRecorder struct {
	repo   EventRepo
	logger *log.Helper
}

// NewEventRecorder creates an EventRecorder and subscribes it to bus.
func NewEventRecorder(repo EventRepo, bus *EventBus, logger log.Logger) *EventRecorder {
	r := &EventRecorder{
		repo:   repo,
		logger: log.NewHelper(logger),
	}
	bus.Subscribe(r)
	return r
}

// HandleEvent implements EventHandler.
func (r *EventRecorder) HandleEvent(ctx context.Context, e Event) {
	switch e.Type {
	case EventRequest:
		if e.Request != nil {
			r.repo.SaveRequest(ctx, requestLog(e.Request, e))
		}
	case EventTransition:
		if t := e.Transition; t != nil {
			r.repo.SaveTransition(ctx, &model.CircuitBreakerEvent{
				Service:   t.Upstream,
				FromState: t.From.String(),
				ToState:   t.To.String(),
				Reason:    t.Reason,
				Timestamp: t.Timestamp,
			})
		}
	case EventChaosStarted:
		if e.Chaos != nil {
			r.repo.SaveChaosStarted(ctx, chaosExperiment(e.Chaos))
		}
	case EventChaosEnded:
		if e.Chaos != nil {
			r.repo.SaveChaosEnded(ctx, chaosExperiment(e.Chaos))
		}
	default:
		r.logger.Warnw("msg", "unknown event type", "type", e.Type)
	}
}

func requestLog(rec *RequestRecord, e Event) *model.RequestLog {
	return &model.RequestLog{
		Service:             rec.Upstream,
		Prompt:              rec.Prompt,
		Success:             rec.Success,
		UsedRealCall:        rec.UsedRealCall,
		LatencyMs:           rec.Latency.Milliseconds(),
		ResponseSize:        rec.ResponseSize,
		ErrorType:           string(rec.ErrorKind),
		ErrorMessage:        rec.ErrorMessage,
		CircuitBreakerState: rec.BreakerState.String(),
		ChaosActive:         rec.ChaosActive,
		Timestamp:           e.At,
	}
}

func chaosExperiment(rec *ChaosRecord) *model.ChaosExperiment {
	exp := &model.ChaosExperiment{
		ExperimentID:   rec.ID,
		Service:        rec.Upstream,
		ChaosType:      string(rec.Type),
		Intensity:      rec.Intensity,
		DurationSec:    int(rec.Duration.Seconds()),
		StartTime:      rec.StartTime,
		TotalRequests:  rec.TotalRequests,
		FailedRequests: rec.FailedRequests,
		Notes:          rec.Note,
	}
	if !rec.EndTime.IsZero() {
		end := rec.EndTime
		exp.EndTime = &end
	}
	return exp
}
