package models

import (
	"time"
)

type BountyStatus string

const (
	StatusOpen      BountyStatus = "open"
	StatusClaimed   BountyStatus = "claimed"
	StatusSubmitted BountyStatus = "submitted"
	StatusPaid      BountyStatus = "paid"
	StatusCancelled BountyStatus = "cancelled"
	StatusDisputed  BountyStatus = "disputed"
	StatusExpired   BountyStatus = "expired"
)

// IsTerminal 终态不再参与状态流转
func (s BountyStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExpired
}

type ProofType string

const (
	ProofPhoto      ProofType = "photo"
	ProofReceipt    ProofType = "receipt"
	ProofSignature  ProofType = "signature"
	ProofCustom     ProofType = "custom"
	ProofScreenshot ProofType = "screenshot"
	ProofAny        ProofType = "any"
)

func ValidProofType(p ProofType) bool {
	switch p {
	case ProofPhoto, ProofReceipt, ProofSignature, ProofCustom, ProofScreenshot, ProofAny:
		return true
	}
	return false
}

// Bounty 赏金记录。ID是本地分配的uuid，OnchainID是合约分配的自增id，
// 两套id空间互不混用。
type Bounty struct {
	ID        string  `gorm:"primaryKey;size:36" json:"id"`
	OnchainID *string `gorm:"size:78;uniqueIndex" json:"onchain_id,omitempty"`

	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	RewardRaw     string `gorm:"type:decimal(65,0);not null" json:"reward_raw"`
	TokenAddress  string `gorm:"size:42;not null" json:"token_address"`
	TokenSymbol   string `gorm:"size:20;not null" json:"token_symbol"`
	TokenDecimals int    `gorm:"not null" json:"token_decimals"`

	DeadlineInput string    `gorm:"size:64" json:"deadline"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expires_at"`

	ProofType ProofType `gorm:"type:enum('photo','receipt','signature','custom','screenshot','any');not null;default:'photo'" json:"proof_type"`

	LocationLat     *float64 `json:"location_lat,omitempty"`
	LocationLng     *float64 `json:"location_lng,omitempty"`
	LocationRadiusM *int     `json:"location_radius_m,omitempty"`

	WebhookURL  string `gorm:"size:512" json:"webhook_url,omitempty"`
	MetadataURI string `gorm:"size:512" json:"metadata_uri,omitempty"`

	Status BountyStatus `gorm:"type:enum('open','claimed','submitted','paid','cancelled','disputed','expired');not null;default:'open';index" json:"status"`

	AgentAddress   string  `gorm:"size:42;not null;index" json:"agent_address"`
	ClaimerAddress *string `gorm:"size:42;index" json:"claimer_address,omitempty"`

	ProofURL    *string  `gorm:"size:512" json:"proof_url,omitempty"`
	ProofNote   *string  `gorm:"type:text" json:"proof_note,omitempty"`
	ProofLat    *float64 `json:"proof_lat,omitempty"`
	ProofLng    *float64 `json:"proof_lng,omitempty"`
	EvidenceURI *string  `gorm:"size:512" json:"evidence_uri,omitempty"`

	EscrowTx *string `gorm:"size:66" json:"escrow_tx,omitempty"`
	PayoutTx *string `gorm:"size:66" json:"payout_tx,omitempty"`

	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	DisputedAt  *time.Time `json:"disputed_at,omitempty"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Bounty) TableName() string {
	return "bounties"
}
