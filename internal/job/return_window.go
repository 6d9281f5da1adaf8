package job

import (
	"context"
	"time"
	"ztuff-backend/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// WindowExpirer 关闭过期退货窗口
type WindowExpirer interface {
	ExpireReturnWindows(ctx context.Context) (int64, error)
}

// Scheduler 定时任务调度
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		timeout: time.Minute,
	}
}

// RegisterReturnWindowSweep 按 cron 表达式定期清理 is_returnable 标记
func (s *Scheduler) RegisterReturnWindowSweep(spec string, expirer WindowExpirer) error {
	_, err := s.cron.AddFunc(spec, func() {
		SweepReturnWindows(context.Background(), expirer, s.timeout)
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// SweepReturnWindows 执行一次清理
func SweepReturnWindows(ctx context.Context, expirer WindowExpirer, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	affected, err := expirer.ExpireReturnWindows(ctx)
	if err != nil {
		util.Logger.Error("清理过期退货窗口失败", zap.Error(err))
		return
	}
	util.Logger.Debug("退货窗口清理完成", zap.Int64("orders", affected))
}
