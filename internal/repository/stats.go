package repository

import (
	"context"
	"errors"
	"math/big"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cupOJoseph/meatboard/internal/models"
)

// AgentDelta 单次事件对发布方统计的增量
type AgentDelta struct {
	TotalBounties     int64
	ActiveBounties    int64
	CompletedBounties int64
	CancelledBounties int64
	Spent             *big.Int
}

// ClaimerDelta 单次事件对接单方统计的增量
type ClaimerDelta struct {
	TotalClaimed      int64
	ActiveClaims      int64
	CompletedBounties int64
	Earned            *big.Int
}

type StatsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetAgent 未找到返回(nil, nil)
func (r *StatsRepository) GetAgent(ctx context.Context, address string) (*models.AgentStats, error) {
	var stats models.AgentStats
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetClaimer 未找到返回(nil, nil)
func (r *StatsRepository) GetClaimer(ctx context.Context, address string) (*models.ClaimerStats, error) {
	var stats models.ClaimerStats
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ApplyAgentDelta 首次引用时惰性建档，之后按增量更新。
// 行锁加事务，保证计数调整原子生效。
func (r *StatsRepository) ApplyAgentDelta(ctx context.Context, address string, delta AgentDelta) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats := &models.AgentStats{Address: address, TotalSpent: "0"}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("address = ?", address).
			FirstOrCreate(stats).Error
		if err != nil {
			return err
		}

		stats.TotalBounties += delta.TotalBounties
		stats.ActiveBounties += delta.ActiveBounties
		stats.CompletedBounties += delta.CompletedBounties
		stats.CancelledBounties += delta.CancelledBounties
		if delta.Spent != nil {
			spent, _ := new(big.Int).SetString(stats.TotalSpent, 10)
			if spent == nil {
				spent = big.NewInt(0)
			}
			stats.TotalSpent = spent.Add(spent, delta.Spent).String()
		}

		return tx.Save(stats).Error
	})
}

// ApplyClaimerDelta 同ApplyAgentDelta，作用于接单方
func (r *StatsRepository) ApplyClaimerDelta(ctx context.Context, address string, delta ClaimerDelta) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats := &models.ClaimerStats{Address: address, TotalEarned: "0"}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("address = ?", address).
			FirstOrCreate(stats).Error
		if err != nil {
			return err
		}

		stats.TotalClaimed += delta.TotalClaimed
		stats.ActiveClaims += delta.ActiveClaims
		stats.CompletedBounties += delta.CompletedBounties
		if delta.Earned != nil {
			earned, _ := new(big.Int).SetString(stats.TotalEarned, 10)
			if earned == nil {
				earned = big.NewInt(0)
			}
			stats.TotalEarned = earned.Add(earned, delta.Earned).String()
		}

		return tx.Save(stats).Error
	})
}
