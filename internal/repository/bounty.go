package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cupOJoseph/meatboard/internal/models"
)

type BountyRepository struct {
	db *gorm.DB
}

func NewBountyRepository(db *gorm.DB) *BountyRepository {
	return &BountyRepository{db: db}
}

func (r *BountyRepository) Create(ctx context.Context, bounty *models.Bounty) error {
	return r.db.WithContext(ctx).Create(bounty).Error
}

// GetByID 按本地id查询，未找到返回(nil, nil)
func (r *BountyRepository) GetByID(ctx context.Context, id string) (*models.Bounty, error) {
	var bounty models.Bounty
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&bounty).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

// GetByOnchainID 按链上id查询，未找到返回(nil, nil)
func (r *BountyRepository) GetByOnchainID(ctx context.Context, onchainID string) (*models.Bounty, error) {
	var bounty models.Bounty
	err := r.db.WithContext(ctx).
		Where("onchain_id = ?", onchainID).
		First(&bounty).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

// List 按状态过滤并分页，创建时间倒序
func (r *BountyRepository) List(ctx context.Context, status models.BountyStatus, limit, offset int) ([]models.Bounty, error) {
	var bounties []models.Bounty
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Limit(limit).Offset(offset).Find(&bounties).Error
	return bounties, err
}

// UpdateStatusIf 条件状态更新：仅当当前状态在from集合内才转移到to并应用mutate。
// mutate在状态赋值前执行，回调里能读到转移前的行（来源状态、当时的认领者）。
// 行锁加事务保证并发下的认领互斥——两个并发claim最多一个成功。
// 返回是否实际应用，幂等统计依赖这个返回值。
func (r *BountyRepository) UpdateStatusIf(ctx context.Context, id string, from []models.BountyStatus, to models.BountyStatus, mutate func(*models.Bounty)) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bounty models.Bounty
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&bounty).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		match := false
		for _, s := range from {
			if bounty.Status == s {
				match = true
				break
			}
		}
		if !match {
			return nil
		}

		if mutate != nil {
			mutate(&bounty)
		}
		bounty.Status = to

		if err := tx.Save(&bounty).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// GetByMetadataURI 按元数据URI查询，未找到返回(nil, nil)
func (r *BountyRepository) GetByMetadataURI(ctx context.Context, uri string) (*models.Bounty, error) {
	var bounty models.Bounty
	err := r.db.WithContext(ctx).
		Where("metadata_uri = ?", uri).
		First(&bounty).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

// Update 行锁内重读最新行并应用mutate后落库。元数据回填这类慢路径
// 拿旧快照整行Save会覆盖拉取期间落库的状态转移，必须走这里。
func (r *BountyRepository) Update(ctx context.Context, id string, mutate func(*models.Bounty)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bounty models.Bounty
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&bounty).Error; err != nil {
			return err
		}
		mutate(&bounty)
		return tx.Save(&bounty).Error
	})
}

// ListOverdue 返回截止时间已过且仍处于非终态的赏金
func (r *BountyRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Bounty, error) {
	var bounties []models.Bounty
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?",
			[]models.BountyStatus{models.StatusOpen, models.StatusClaimed, models.StatusSubmitted}, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&bounties).Error
	return bounties, err
}
