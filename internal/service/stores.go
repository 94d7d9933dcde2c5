package service

import (
	"context"
	"time"

	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/internal/repository"
)

// BountyStore 赏金存储抽象。直写API路径和链上事件调和引擎
// 都通过它落库，后端可以是数据库也可以是链上索引镜像。
type BountyStore interface {
	Create(ctx context.Context, bounty *models.Bounty) error
	GetByID(ctx context.Context, id string) (*models.Bounty, error)
	GetByOnchainID(ctx context.Context, onchainID string) (*models.Bounty, error)
	List(ctx context.Context, status models.BountyStatus, limit, offset int) ([]models.Bounty, error)
	GetByMetadataURI(ctx context.Context, uri string) (*models.Bounty, error)
	// UpdateStatusIf 条件状态更新：当前状态在from内才应用，返回是否应用。
	// mutate在状态赋值前执行，回调里读到的是转移前的行。
	UpdateStatusIf(ctx context.Context, id string, from []models.BountyStatus, to models.BountyStatus, mutate func(*models.Bounty)) (bool, error)
	// Update 行锁内重读最新行再应用mutate，慢路径不能拿旧快照整行覆盖
	Update(ctx context.Context, id string, mutate func(*models.Bounty)) error
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Bounty, error)
}

// StatsStore 按主体地址聚合的统计存储
type StatsStore interface {
	GetAgent(ctx context.Context, address string) (*models.AgentStats, error)
	GetClaimer(ctx context.Context, address string) (*models.ClaimerStats, error)
	ApplyAgentDelta(ctx context.Context, address string, delta repository.AgentDelta) error
	ApplyClaimerDelta(ctx context.Context, address string, delta repository.ClaimerDelta) error
}
