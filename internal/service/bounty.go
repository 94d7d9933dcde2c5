package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cupOJoseph/meatboard/internal/config"
	"github.com/cupOJoseph/meatboard/internal/deadline"
	"github.com/cupOJoseph/meatboard/internal/escrow"
	"github.com/cupOJoseph/meatboard/internal/lifecycle"
	"github.com/cupOJoseph/meatboard/internal/metadata"
	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/internal/token"
	"github.com/cupOJoseph/meatboard/pkg/errors"
	"github.com/cupOJoseph/meatboard/pkg/logger"
)

type CreateBountyInput struct {
	Title       string
	Description string
	Reward      string
	Deadline    string
	Token       string
	ProofType   string
	Location    *metadata.Location
	WebhookURL  string
}

type SubmitProofInput struct {
	ProofURL string
	Location *metadata.Location
	Note     string
}

// CreateResult 创建结果：已落库的赏金记录加上待调用方签名广播的
// 托管资金交易（先approve再createBounty）。
type CreateResult struct {
	Bounty      *models.Bounty
	MetadataURI string
	ApproveTx   escrow.UnsignedTx
	CreateTx    escrow.UnsignedTx
}

// BountyService 赏金生命周期的直写路径。所有状态转移都走
// lifecycle转移表，和链上事件调和引擎保持同一套规则。
type BountyService struct {
	bounties  BountyStore
	stats     StatsStore
	publisher *metadata.Publisher
	builder   *escrow.Builder
	minReward string
	maxReward string
}

func NewBountyService(bounties BountyStore, stats StatsStore, publisher *metadata.Publisher, builder *escrow.Builder, cfg config.BountyConfig) *BountyService {
	return &BountyService{
		bounties:  bounties,
		stats:     stats,
		publisher: publisher,
		builder:   builder,
		minReward: cfg.MinReward,
		maxReward: cfg.MaxReward,
	}
}

// Create 校验并归一化输入，外置元数据，构造托管交易，落库open状态。
// 校验全部通过之前不产生任何持久化副作用。
func (s *BountyService) Create(ctx context.Context, agentAddress string, in CreateBountyInput) (*CreateResult, error) {
	if in.Title == "" {
		return nil, errors.New(errors.CodeMissingField, "title is required", nil)
	}
	if in.Reward == "" {
		return nil, errors.New(errors.CodeMissingField, "reward is required", nil)
	}
	if in.Deadline == "" {
		return nil, errors.New(errors.CodeMissingField, "deadline is required", nil)
	}

	tokenInput := in.Token
	if tokenInput == "" {
		tokenInput = "USDC"
	}
	tokenInfo, err := token.Resolve(tokenInput)
	if err != nil {
		return nil, errors.New(errors.CodeUnknownToken, err.Error(), nil)
	}

	rewardRaw, err := token.ParseAmount(in.Reward, tokenInfo.Decimals)
	if err != nil || rewardRaw.Sign() <= 0 {
		return nil, errors.New(errors.CodeInvalidAmount, "reward must be a positive decimal amount", err)
	}

	minRaw, _ := token.ParseAmount(s.minReward, tokenInfo.Decimals)
	maxRaw, _ := token.ParseAmount(s.maxReward, tokenInfo.Decimals)
	if minRaw != nil && rewardRaw.Cmp(minRaw) < 0 || maxRaw != nil && rewardRaw.Cmp(maxRaw) > 0 {
		return nil, errors.Newf(errors.CodeInvalidReward,
			"reward must be between %s and %s %s", s.minReward, s.maxReward, tokenInfo.Symbol)
	}

	deadlineUnix, err := deadline.Parse(in.Deadline)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidDeadline, err.Error(), nil)
	}
	expiresAt := time.Unix(deadlineUnix, 0)
	if !expiresAt.After(time.Now()) {
		return nil, errors.New(errors.CodeInvalidDeadline, "deadline must be in the future", nil)
	}

	proofType := models.ProofType(in.ProofType)
	if in.ProofType == "" {
		proofType = models.ProofPhoto
	} else if !models.ValidProofType(proofType) {
		return nil, errors.Newf(errors.CodeMissingField, "invalid proof_type %q", in.ProofType)
	}

	meta := &metadata.BountyMetadata{
		Title:       in.Title,
		Description: in.Description,
		ProofType:   string(proofType),
		Location:    in.Location,
		WebhookURL:  in.WebhookURL,
	}
	metadataURI, err := s.publisher.Publish(ctx, meta)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to publish metadata", err)
	}

	tokenAddr := common.HexToAddress(tokenInfo.Address)
	approveTx, err := s.builder.BuildApprove(tokenAddr, rewardRaw)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to build approve transaction", err)
	}
	createTx, err := s.builder.BuildCreateBounty(tokenAddr, rewardRaw, big.NewInt(deadlineUnix), metadataURI)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to build create transaction", err)
	}

	bounty := &models.Bounty{
		ID:            uuid.NewString(),
		Title:         in.Title,
		Description:   in.Description,
		RewardRaw:     rewardRaw.String(),
		TokenAddress:  tokenInfo.Address,
		TokenSymbol:   tokenInfo.Symbol,
		TokenDecimals: tokenInfo.Decimals,
		DeadlineInput: in.Deadline,
		ExpiresAt:     expiresAt,
		ProofType:     proofType,
		WebhookURL:    in.WebhookURL,
		MetadataURI:   metadataURI,
		Status:        models.StatusOpen,
		AgentAddress:  agentAddress,
	}
	if in.Location != nil {
		bounty.LocationLat = &in.Location.Lat
		bounty.LocationLng = &in.Location.Lng
		bounty.LocationRadiusM = in.Location.RadiusM
	}

	if err := s.bounties.Create(ctx, bounty); err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to create bounty", err)
	}

	logStatsError(bounty.ID, applyCreationStats(ctx, s.stats, agentAddress, rewardRaw))

	logger.WithFields(map[string]interface{}{
		"bounty_id": bounty.ID,
		"agent":     agentAddress,
		"reward":    rewardRaw.String(),
		"token":     tokenInfo.Symbol,
	}).Info("赏金已创建")

	return &CreateResult{
		Bounty:      bounty,
		MetadataURI: metadataURI,
		ApproveTx:   approveTx,
		CreateTx:    createTx,
	}, nil
}

// Get 按id查询
func (s *BountyService) Get(ctx context.Context, id string) (*models.Bounty, error) {
	bounty, err := s.bounties.GetByID(ctx, id)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to fetch bounty", err)
	}
	if bounty == nil {
		return nil, errors.New(errors.CodeNotFound, "bounty not found", nil)
	}
	return bounty, nil
}

// List 状态过滤加分页
func (s *BountyService) List(ctx context.Context, status models.BountyStatus, limit, offset int) ([]models.Bounty, error) {
	bounties, err := s.bounties.List(ctx, status, limit, offset)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to list bounties", err)
	}
	return bounties, nil
}

// Claim 认领。存储层的条件更新保证并发下只有一个认领者成功，
// 第二个并发请求拿到INVALID_STATUS而不是悄悄覆盖。
func (s *BountyService) Claim(ctx context.Context, id, claimerAddress string) (*models.Bounty, error) {
	bounty, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	applied, err := s.bounties.UpdateStatusIf(ctx, bounty.ID,
		lifecycle.SourceStates(lifecycle.TriggerClaim), models.StatusClaimed,
		func(b *models.Bounty) {
			b.ClaimerAddress = &claimerAddress
			b.ClaimedAt = &now
		})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to claim bounty", err)
	}
	if !applied {
		return nil, s.invalidStatus(ctx, id, lifecycle.TriggerClaim)
	}

	logStatsError(id, applyTransitionStats(ctx, s.stats, bounty, models.StatusOpen, lifecycle.TriggerClaim, claimerAddress))

	return s.Get(ctx, id)
}

// Submit 提交完成证明，仅限当前认领者
func (s *BountyService) Submit(ctx context.Context, id, claimerAddress string, in SubmitProofInput) (*models.Bounty, error) {
	if in.ProofURL == "" {
		return nil, errors.New(errors.CodeMissingField, "proof_url is required", nil)
	}

	bounty, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bounty.ClaimerAddress == nil || *bounty.ClaimerAddress != claimerAddress {
		return nil, errors.New(errors.CodeForbidden, "only the claimer may submit proof", nil)
	}

	now := time.Now()
	applied, err := s.bounties.UpdateStatusIf(ctx, bounty.ID,
		lifecycle.SourceStates(lifecycle.TriggerSubmit), models.StatusSubmitted,
		func(b *models.Bounty) {
			b.ProofURL = &in.ProofURL
			b.SubmittedAt = &now
			if in.Note != "" {
				b.ProofNote = &in.Note
			}
			if in.Location != nil {
				b.ProofLat = &in.Location.Lat
				b.ProofLng = &in.Location.Lng
			}
		})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to submit proof", err)
	}
	if !applied {
		return nil, s.invalidStatus(ctx, id, lifecycle.TriggerSubmit)
	}

	return s.Get(ctx, id)
}

// Verify 发布方验收。approved=true转为paid；approved=false拒绝，
// 回到open并清空认领者和证明，等待重新认领。
func (s *BountyService) Verify(ctx context.Context, id, agentAddress string, approved bool) (*models.Bounty, error) {
	bounty, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bounty.AgentAddress != agentAddress {
		return nil, errors.New(errors.CodeForbidden, "not your bounty", nil)
	}

	now := time.Now()
	trigger := lifecycle.TriggerApprove
	target := models.StatusPaid
	var claimer string

	if approved {
		applied, err := s.bounties.UpdateStatusIf(ctx, bounty.ID,
			lifecycle.SourceStates(trigger), target,
			func(b *models.Bounty) {
				if b.ClaimerAddress != nil {
					claimer = *b.ClaimerAddress
				}
				b.VerifiedAt = &now
				b.PaidAt = &now
			})
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to verify bounty", err)
		}
		if !applied {
			return nil, s.invalidStatus(ctx, id, trigger)
		}
	} else {
		trigger = lifecycle.TriggerReject
		target = models.StatusOpen
		applied, err := s.bounties.UpdateStatusIf(ctx, bounty.ID,
			lifecycle.SourceStates(trigger), target,
			func(b *models.Bounty) {
				if b.ClaimerAddress != nil {
					claimer = *b.ClaimerAddress
				}
				b.VerifiedAt = &now
				clearClaim(b)
			})
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to verify bounty", err)
		}
		if !applied {
			return nil, s.invalidStatus(ctx, id, trigger)
		}
	}

	logStatsError(id, applyTransitionStats(ctx, s.stats, bounty, models.StatusSubmitted, trigger, claimer))

	return s.Get(ctx, id)
}

// Cancel 取消，仅限发布方，且仅限open状态（从未有人认领过）
func (s *BountyService) Cancel(ctx context.Context, id, agentAddress string) (*models.Bounty, error) {
	bounty, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bounty.AgentAddress != agentAddress {
		return nil, errors.New(errors.CodeForbidden, "not your bounty", nil)
	}

	now := time.Now()
	applied, err := s.bounties.UpdateStatusIf(ctx, bounty.ID,
		lifecycle.SourceStates(lifecycle.TriggerCancel), models.StatusCancelled,
		func(b *models.Bounty) {
			b.CancelledAt = &now
		})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to cancel bounty", err)
	}
	if !applied {
		return nil, s.invalidStatus(ctx, id, lifecycle.TriggerCancel)
	}

	logStatsError(id, applyTransitionStats(ctx, s.stats, bounty, models.StatusOpen, lifecycle.TriggerCancel, ""))

	return s.Get(ctx, id)
}

// Dispute 对已提交的证明发起争议，发布方或认领者均可
func (s *BountyService) Dispute(ctx context.Context, id, callerAddress, evidenceURI string) (*models.Bounty, error) {
	bounty, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	isAgent := bounty.AgentAddress == callerAddress
	isClaimer := bounty.ClaimerAddress != nil && *bounty.ClaimerAddress == callerAddress
	if !isAgent && !isClaimer {
		return nil, errors.New(errors.CodeForbidden, "only the agent or claimer may dispute", nil)
	}

	now := time.Now()
	applied, err := s.bounties.UpdateStatusIf(ctx, bounty.ID,
		lifecycle.SourceStates(lifecycle.TriggerDispute), models.StatusDisputed,
		func(b *models.Bounty) {
			b.DisputedAt = &now
			if evidenceURI != "" {
				b.EvidenceURI = &evidenceURI
			}
		})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to dispute bounty", err)
	}
	if !applied {
		return nil, s.invalidStatus(ctx, id, lifecycle.TriggerDispute)
	}

	return s.Get(ctx, id)
}

// ResolveDispute 争议裁决：认领者胜诉视同验收通过，发布方胜诉退款。
// 仅限发布方操作。
func (s *BountyService) ResolveDispute(ctx context.Context, id, agentAddress string, claimerWins bool) (*models.Bounty, error) {
	bounty, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bounty.AgentAddress != agentAddress {
		return nil, errors.New(errors.CodeForbidden, "not your bounty", nil)
	}

	now := time.Now()
	trigger := lifecycle.TriggerResolvePaid
	target := models.StatusPaid
	if !claimerWins {
		trigger = lifecycle.TriggerResolveRefunded
		target = models.StatusCancelled
	}

	var claimer string
	applied, err := s.bounties.UpdateStatusIf(ctx, bounty.ID,
		lifecycle.SourceStates(trigger), target,
		func(b *models.Bounty) {
			if b.ClaimerAddress != nil {
				claimer = *b.ClaimerAddress
			}
			if claimerWins {
				b.VerifiedAt = &now
				b.PaidAt = &now
			} else {
				b.CancelledAt = &now
			}
		})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to resolve dispute", err)
	}
	if !applied {
		return nil, s.invalidStatus(ctx, id, trigger)
	}

	logStatsError(id, applyTransitionStats(ctx, s.stats, bounty, models.StatusDisputed, trigger, claimer))

	return s.Get(ctx, id)
}

// invalidStatus 条件更新未生效时，重读当前状态生成带上下文的错误
func (s *BountyService) invalidStatus(ctx context.Context, id string, trigger lifecycle.Trigger) error {
	current, err := s.bounties.GetByID(ctx, id)
	if err != nil || current == nil {
		return errors.New(errors.CodeNotFound, "bounty not found", err)
	}
	_, stateErr := lifecycle.Next(current.Status, trigger)
	if stateErr != nil {
		return stateErr
	}
	// 状态机允许但条件更新没生效，说明并发竞争输了
	return errors.Newf(errors.CodeInvalidStatus,
		"bounty is %s, %s requires status %s", current.Status, trigger,
		statusList(lifecycle.SourceStates(trigger)))
}

func statusList(statuses []models.BountyStatus) string {
	out := ""
	for i, s := range statuses {
		if i > 0 {
			out += "|"
		}
		out += string(s)
	}
	return out
}

// clearClaim 拒绝后回到open，认领者和证明信息全部清空
func clearClaim(b *models.Bounty) {
	b.ClaimerAddress = nil
	b.ClaimedAt = nil
	b.ProofURL = nil
	b.ProofNote = nil
	b.ProofLat = nil
	b.ProofLng = nil
	b.SubmittedAt = nil
}
