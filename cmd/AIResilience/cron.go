package main

import (
	"context"
	"fmt"
	"time"

	"AIResilience/internal/biz"
	"AIResilience/internal/conf"
	pkgerrors "AIResilience/pkg/errors"
	pkglog "AIResilience/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// chaosSweepSpec 每 10 秒清理一次过期的混沌实验
const chaosSweepSpec = "@every 10s"

// Scheduler 定时任务调度器，实现 kratos transport.Server，随应用启停
type Scheduler struct {
	cron    *cron.Cron
	alerts  *biz.AlertMonitor
	enabled bool
	logger  *pkglog.LogHelper
}

// newScheduler 注册告警检查、指标快照和混沌实验清理任务
//
// 执行频率（默认值）：
//   - 告警检查：每 30 秒（alert.interval，alert.enabled=false 时不注册）
//   - 指标快照：每 1 分钟（alert.snapshot_interval，<=0 时不注册）
//   - 过期实验清理：每 10 秒
func newScheduler(c *conf.Bootstrap, alerts *biz.AlertMonitor, stats *biz.StatsUsecase, chaos *biz.ChaosController, l log.Logger) (*Scheduler, error) {
	logger := pkglog.NewLogHelper(l)
	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		alerts: alerts,
		logger: logger,
	}

	if c.Alert != nil && c.Alert.Enabled && c.Alert.Interval > 0 {
		s.enabled = true
		if err := s.every(c.Alert.Interval, func(ctx context.Context) {
			if sent := alerts.Check(ctx); len(sent) > 0 {
				logger.Scheduler("Alert check completed", "alerts_sent", len(sent))
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to register alert check job: %w", err)
		}
	}

	if c.Alert != nil && c.Alert.SnapshotInterval > 0 {
		if err := s.every(c.Alert.SnapshotInterval, func(ctx context.Context) {
			if err := stats.SaveSnapshot(ctx); err != nil && !pkgerrors.IsUnavailable(err) {
				logger.Database("Metrics snapshot failed", "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to register snapshot job: %w", err)
		}
	}

	if _, err := s.cron.AddFunc(chaosSweepSpec, func() {
		if n := chaos.SweepExpired(); n > 0 {
			logger.Chaos("Expired chaos experiments cleared", "count", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to register chaos sweep job: %w", err)
	}

	return s, nil
}

func (s *Scheduler) every(d time.Duration, job func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", d), func() {
		ctx, cancel := context.WithTimeout(context.Background(), d)
		defer cancel()
		job(ctx)
	})
	return err
}

// Start 启动调度器
func (s *Scheduler) Start(ctx context.Context) error {
	if s.enabled {
		s.alerts.Start(ctx)
	}
	s.cron.Start()
	s.logger.Scheduler("Scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Scheduler("Scheduler stopped")
	return nil
}
