package service

import (
	"context"

	"AIResilience/internal/biz"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names, used by middleware selectors.
const (
	OperationGenerate             = "/resilience.v1.Resilience/Generate"
	OperationGetMetrics           = "/resilience.v1.Resilience/GetMetrics"
	OperationCircuitBreakerStatus = "/resilience.v1.Resilience/CircuitBreakerStatus"
	OperationResetCircuitBreaker  = "/resilience.v1.Resilience/ResetCircuitBreaker"
	OperationInjectChaos          = "/resilience.v1.Resilience/InjectChaos"
	OperationStopChaos            = "/resilience.v1.Resilience/StopChaos"
	OperationChaosStatus          = "/resilience.v1.Resilience/ChaosStatus"
	OperationHealth               = "/resilience.v1.Resilience/Health"
	OperationStats                = "/resilience.v1.Resilience/Stats"
	OperationGetConfig            = "/resilience.v1.Resilience/GetConfig"
	OperationUpdateFailureConfig  = "/resilience.v1.Resilience/UpdateFailureConfig"
)

// AdminOperations are the operations guarded by the admin token.
var AdminOperations = []string{
	OperationResetCircuitBreaker,
	OperationInjectChaos,
	OperationStopChaos,
	OperationUpdateFailureConfig,
}

// RegisterResilienceHTTPServer registers the routes of srv on s.
func RegisterResilienceHTTPServer(s *http.Server, srv *ResilienceService) {
	r := s.Route("/")
	r.POST("/ai", _Resilience_Generate_HTTP_Handler(srv))
	r.POST("/ai/{service}", _Resilience_Generate_HTTP_Handler(srv))
	r.GET("/ai/health", _Resilience_Health_HTTP_Handler(srv))
	r.GET("/metrics", _Resilience_GetMetrics_HTTP_Handler(srv))
	r.GET("/circuit-breaker/status", _Resilience_CircuitBreakerStatus_HTTP_Handler(srv))
	r.POST("/circuit-breaker/reset", _Resilience_ResetCircuitBreaker_HTTP_Handler(srv))
	r.POST("/chaos/inject", _Resilience_InjectChaos_HTTP_Handler(srv))
	r.POST("/chaos/stop", _Resilience_StopChaos_HTTP_Handler(srv))
	r.GET("/chaos/status", _Resilience_ChaosStatus_HTTP_Handler(srv))
	r.GET("/stats", _Resilience_Stats_HTTP_Handler(srv))
	r.GET("/config", _Resilience_GetConfig_HTTP_Handler(srv))
	r.POST("/admin/failure-config", _Resilience_UpdateFailureConfig_HTTP_Handler(srv))
}

func _Resilience_Generate_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GenerateRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		if service := ctx.Vars().Get("service"); service != "" {
			in.Service = service
		}
		http.SetOperation(ctx, OperationGenerate)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Generate(ctx, req.(*GenerateRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*GenerateReply))
	}
}

func _Resilience_GetMetrics_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in EmptyRequest
		http.SetOperation(ctx, OperationGetMetrics)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetMetrics(ctx, req.(*EmptyRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*MetricsReply))
	}
}

func _Resilience_CircuitBreakerStatus_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in EmptyRequest
		http.SetOperation(ctx, OperationCircuitBreakerStatus)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.CircuitBreakerStatus(ctx, req.(*EmptyRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*BreakerStatusReply))
	}
}

func _Resilience_ResetCircuitBreaker_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ResetBreakerRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationResetCircuitBreaker)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ResetCircuitBreaker(ctx, req.(*ResetBreakerRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*AckReply))
	}
}

func _Resilience_InjectChaos_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in InjectChaosRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationInjectChaos)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.InjectChaos(ctx, req.(*InjectChaosRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*InjectChaosReply))
	}
}

func _Resilience_StopChaos_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in StopChaosRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationStopChaos)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.StopChaos(ctx, req.(*StopChaosRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*AckReply))
	}
}

func _Resilience_ChaosStatus_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in EmptyRequest
		http.SetOperation(ctx, OperationChaosStatus)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ChaosStatus(ctx, req.(*EmptyRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ChaosStatusReply))
	}
}

func _Resilience_Health_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in EmptyRequest
		http.SetOperation(ctx, OperationHealth)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Health(ctx, req.(*EmptyRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*HealthReply))
	}
}

func _Resilience_Stats_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in StatsRequest
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationStats)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Stats(ctx, req.(*StatsRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*biz.ServiceStatsResult))
	}
}

func _Resilience_GetConfig_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in EmptyRequest
		http.SetOperation(ctx, OperationGetConfig)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetConfig(ctx, req.(*EmptyRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ConfigReply))
	}
}

func _Resilience_UpdateFailureConfig_HTTP_Handler(srv *ResilienceService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in FailureConfigRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationUpdateFailureConfig)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.UpdateFailureConfig(ctx, req.(*FailureConfigRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*FailureConfigReply))
	}
}
