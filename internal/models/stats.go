package models

import (
	"time"
)

// AgentStats 发布方的累计统计，按钱包地址聚合
type AgentStats struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Address           string    `gorm:"uniqueIndex;size:42;not null" json:"address"`
	TotalBounties     int64     `gorm:"not null;default:0" json:"total_bounties"`
	TotalSpent        string    `gorm:"type:decimal(65,0);not null;default:0" json:"total_spent"`
	ActiveBounties    int64     `gorm:"not null;default:0" json:"active_bounties"`
	CompletedBounties int64     `gorm:"not null;default:0" json:"completed_bounties"`
	CancelledBounties int64     `gorm:"not null;default:0" json:"cancelled_bounties"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AgentStats) TableName() string {
	return "agent_stats"
}

// ClaimerStats 接单方的累计统计，按钱包地址聚合
type ClaimerStats struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Address           string    `gorm:"uniqueIndex;size:42;not null" json:"address"`
	TotalClaimed      int64     `gorm:"not null;default:0" json:"total_claimed"`
	TotalEarned       string    `gorm:"type:decimal(65,0);not null;default:0" json:"total_earned"`
	ActiveClaims      int64     `gorm:"not null;default:0" json:"active_claims"`
	CompletedBounties int64     `gorm:"not null;default:0" json:"completed_bounties"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ClaimerStats) TableName() string {
	return "claimer_stats"
}
