package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// sweepTimeout 单次清扫的超时时间
const sweepTimeout = time.Minute

// expiredInvitationJob 把过期的 pending 邀请标记为 expired
type expiredInvitationJob struct {
	invitations *InvitationService
}

// Run 实现 cron.Job
func (j *expiredInvitationJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := j.invitations.SweepExpired(ctx)
	if err != nil {
		log.Printf("[invitation-sweeper] 清扫失败: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[invitation-sweeper] 已标记 %d 条过期邀请", n)
	}
}

// Scheduler 定时任务
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler 创建定时任务调度器，单个任务 panic 不影响其他任务，上次未结束时跳过本次
func NewScheduler() *Scheduler {
	c := cron.New(
		cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		),
	)
	return &Scheduler{cron: c}
}

// AddInvitationSweep 按 cron 表达式（标准 5 段或 @hourly 等描述符）注册邀请过期清扫
func (s *Scheduler) AddInvitationSweep(spec string, invitations *InvitationService) error {
	if _, err := s.cron.AddJob(spec, &expiredInvitationJob{invitations: invitations}); err != nil {
		return fmt.Errorf("注册邀请清扫任务失败: %w", err)
	}
	log.Printf("邀请过期清扫已启用: %s", spec)
	return nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
