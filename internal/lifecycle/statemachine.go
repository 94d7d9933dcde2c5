package lifecycle

import (
	"strings"

	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/pkg/errors"
)

// Trigger 状态机触发器。API直写路径和链上事件调和引擎
// 共用同一张转移表，保证两条路径行为一致。
type Trigger string

const (
	TriggerClaim           Trigger = "claim"
	TriggerSubmit          Trigger = "submit"
	TriggerApprove         Trigger = "approve"
	TriggerReject          Trigger = "reject"
	TriggerCancel          Trigger = "cancel"
	TriggerDispute         Trigger = "dispute"
	TriggerResolvePaid     Trigger = "resolve_paid"
	TriggerResolveRefunded Trigger = "resolve_refunded"
	TriggerExpire          Trigger = "expire"
)

type transition struct {
	from []models.BountyStatus
	to   models.BountyStatus
}

var transitions = map[Trigger]transition{
	TriggerClaim:   {from: []models.BountyStatus{models.StatusOpen}, to: models.StatusClaimed},
	TriggerSubmit:  {from: []models.BountyStatus{models.StatusClaimed}, to: models.StatusSubmitted},
	TriggerApprove: {from: []models.BountyStatus{models.StatusSubmitted}, to: models.StatusPaid},
	// 拒绝回到open重新开放认领，认领人和证明信息被清空
	TriggerReject:  {from: []models.BountyStatus{models.StatusSubmitted}, to: models.StatusOpen},
	TriggerCancel:  {from: []models.BountyStatus{models.StatusOpen}, to: models.StatusCancelled},
	TriggerDispute: {from: []models.BountyStatus{models.StatusSubmitted}, to: models.StatusDisputed},
	TriggerResolvePaid: {
		from: []models.BountyStatus{models.StatusDisputed},
		to:   models.StatusPaid,
	},
	TriggerResolveRefunded: {
		from: []models.BountyStatus{models.StatusDisputed},
		to:   models.StatusCancelled,
	},
	TriggerExpire: {
		from: []models.BountyStatus{models.StatusOpen, models.StatusClaimed, models.StatusSubmitted},
		to:   models.StatusExpired,
	},
}

// SourceStates 返回触发器允许的源状态
func SourceStates(trigger Trigger) []models.BountyStatus {
	return transitions[trigger].from
}

// Target 返回触发器的目标状态
func Target(trigger Trigger) models.BountyStatus {
	return transitions[trigger].to
}

// Can 判断当前状态下能否执行触发器
func Can(current models.BountyStatus, trigger Trigger) bool {
	t, ok := transitions[trigger]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == current {
			return true
		}
	}
	return false
}

// Next 执行状态转移，非法转移返回INVALID_STATUS错误，
// 错误信息带上当前状态和要求的状态。
func Next(current models.BountyStatus, trigger Trigger) (models.BountyStatus, error) {
	t, ok := transitions[trigger]
	if !ok {
		return current, errors.Newf(errors.CodeInvalidStatus, "unknown trigger %q", trigger)
	}
	if !Can(current, trigger) {
		return current, errors.Newf(errors.CodeInvalidStatus,
			"bounty is %s, %s requires status %s", current, trigger, joinStatuses(t.from))
	}
	return t.to, nil
}

func joinStatuses(statuses []models.BountyStatus) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, "|")
}
