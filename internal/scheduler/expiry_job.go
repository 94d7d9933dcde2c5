package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cupOJoseph/meatboard/internal/lifecycle"
	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/internal/service"
	"github.com/cupOJoseph/meatboard/pkg/logger"
)

const sweepBatchSize = 500

// ExpiryScheduler 定时扫描截止时间已过的赏金并转为expired。
// 状态写入走条件更新，和并发的认领、验收请求竞争时以先落库者为准。
type ExpiryScheduler struct {
	cron     *cron.Cron
	bounties service.BountyStore
	stats    service.StatsStore
	cronExpr string
}

func NewExpiryScheduler(bounties service.BountyStore, stats service.StatsStore, cronExpr string) *ExpiryScheduler {
	if cronExpr == "" {
		cronExpr = "0 * * * * *"
	}
	return &ExpiryScheduler{
		cron:     cron.New(cron.WithSeconds()),
		bounties: bounties,
		stats:    stats,
		cronExpr: cronExpr,
	}
}

func (s *ExpiryScheduler) Start() error {
	_, err := s.cron.AddFunc(s.cronExpr, s.sweepExpired)
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("Expiry scheduler started")
	return nil
}

func (s *ExpiryScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Expiry scheduler stopped")
}

func (s *ExpiryScheduler) sweepExpired() {
	ctx := context.Background()
	now := time.Now()

	overdue, err := s.bounties.ListOverdue(ctx, now, sweepBatchSize)
	if err != nil {
		logger.Error("Failed to list overdue bounties:", err)
		return
	}
	if len(overdue) == 0 {
		return
	}

	expired := 0
	for i := range overdue {
		if s.expireOne(ctx, &overdue[i]) {
			expired++
		}
	}

	logger.WithFields(map[string]interface{}{
		"scanned": len(overdue),
		"expired": expired,
	}).Info("过期扫描完成")
}

// expireOne 单条过期处理，返回是否实际转移
func (s *ExpiryScheduler) expireOne(ctx context.Context, bounty *models.Bounty) bool {
	// 扫描快照可能已过时（扫描后有人认领），转移前状态和认领者
	// 必须在条件更新的回调里取，统计才不会按旧快照错记
	var prev models.BountyStatus
	claimer := ""

	applied, err := s.bounties.UpdateStatusIf(ctx, bounty.ID,
		lifecycle.SourceStates(lifecycle.TriggerExpire), models.StatusExpired,
		func(b *models.Bounty) {
			prev = b.Status
			if b.ClaimerAddress != nil {
				claimer = *b.ClaimerAddress
			}
		})
	if err != nil {
		logger.Error("Failed to expire bounty:", bounty.ID, err)
		return false
	}
	if !applied {
		// 扫描到落库之间进入了终态（验收、取消），放过
		return false
	}

	if err := service.ApplyExpiryStats(ctx, s.stats, bounty, prev, claimer); err != nil {
		logger.Error("Failed to update stats for expired bounty:", bounty.ID, err)
	}

	return true
}
