package service

import (
	"context"
	"math/big"

	"github.com/cupOJoseph/meatboard/internal/lifecycle"
	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/internal/repository"
	"github.com/cupOJoseph/meatboard/pkg/errors"
	"github.com/cupOJoseph/meatboard/pkg/logger"
)

// applyCreationStats 建单计入发布方统计
func applyCreationStats(ctx context.Context, stats StatsStore, agent string, amount *big.Int) error {
	return stats.ApplyAgentDelta(ctx, agent, repository.AgentDelta{
		TotalBounties:  1,
		ActiveBounties: 1,
		Spent:          amount,
	})
}

// applyTransitionStats 按状态转移调整统计。增量严格由已落库的
// prev->to转移推导：同一事件重复投递时条件更新不会再次应用，
// 这里也就不会再次计数。prev为终态时不再回减active计数。
func applyTransitionStats(ctx context.Context, stats StatsStore, bounty *models.Bounty, prev models.BountyStatus, trigger lifecycle.Trigger, claimer string) error {
	amount, _ := new(big.Int).SetString(bounty.RewardRaw, 10)
	if amount == nil {
		amount = big.NewInt(0)
	}

	wasActive := int64(0)
	if !prev.IsTerminal() {
		wasActive = 1
	}

	switch trigger {
	case lifecycle.TriggerClaim:
		if prev != models.StatusOpen {
			// 乱序回放：有序重放时已计过数
			return nil
		}
		return stats.ApplyClaimerDelta(ctx, claimer, repository.ClaimerDelta{
			TotalClaimed: 1,
			ActiveClaims: 1,
		})

	case lifecycle.TriggerApprove, lifecycle.TriggerResolvePaid:
		if err := stats.ApplyAgentDelta(ctx, bounty.AgentAddress, repository.AgentDelta{
			ActiveBounties:    -wasActive,
			CompletedBounties: 1,
		}); err != nil {
			return err
		}
		if claimer != "" {
			return stats.ApplyClaimerDelta(ctx, claimer, repository.ClaimerDelta{
				ActiveClaims:      -wasActive,
				CompletedBounties: 1,
				Earned:            amount,
			})
		}
		return nil

	case lifecycle.TriggerReject:
		if claimer != "" && prev == models.StatusSubmitted {
			return stats.ApplyClaimerDelta(ctx, claimer, repository.ClaimerDelta{
				ActiveClaims: -1,
			})
		}
		return nil

	case lifecycle.TriggerCancel, lifecycle.TriggerResolveRefunded:
		if err := stats.ApplyAgentDelta(ctx, bounty.AgentAddress, repository.AgentDelta{
			ActiveBounties:    -wasActive,
			CancelledBounties: 1,
		}); err != nil {
			return err
		}
		if claimer != "" {
			return stats.ApplyClaimerDelta(ctx, claimer, repository.ClaimerDelta{
				ActiveClaims: -wasActive,
			})
		}
		return nil

	case lifecycle.TriggerExpire:
		if err := stats.ApplyAgentDelta(ctx, bounty.AgentAddress, repository.AgentDelta{
			ActiveBounties: -wasActive,
		}); err != nil {
			return err
		}
		if claimer != "" {
			return stats.ApplyClaimerDelta(ctx, claimer, repository.ClaimerDelta{
				ActiveClaims: -wasActive,
			})
		}
		return nil
	}

	// submit、dispute不动统计
	return nil
}

// ApplyExpiryStats 过期转移的统计增量，供过期扫描任务调用
func ApplyExpiryStats(ctx context.Context, stats StatsStore, bounty *models.Bounty, prev models.BountyStatus, claimer string) error {
	return applyTransitionStats(ctx, stats, bounty, prev, lifecycle.TriggerExpire, claimer)
}

// logStatsError 统计落库失败只记日志，不回滚已生效的状态转移
func logStatsError(bountyID string, err error) {
	if err == nil {
		return
	}
	logger.WithFields(map[string]interface{}{
		"bounty_id": bountyID,
		"error":     errors.New(errors.ErrStatsUpdate, "统计更新失败", err).Error(),
	}).Error("统计更新失败")
}
