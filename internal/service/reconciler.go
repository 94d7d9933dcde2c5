package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cupOJoseph/meatboard/internal/escrow"
	"github.com/cupOJoseph/meatboard/internal/lifecycle"
	"github.com/cupOJoseph/meatboard/internal/metadata"
	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/internal/token"
	"github.com/cupOJoseph/meatboard/pkg/logger"
)

// MetadataFetcher 调和引擎回填元数据用的只读接口
type MetadataFetcher interface {
	Fetch(ctx context.Context, uri string) (*metadata.BountyMetadata, error)
}

// Dispatcher 按赏金id取模分片的工作池。同一赏金的事件固定
// 落在同一个worker上串行处理，不同赏金并行，既保证单实体
// 事件有序又不牺牲吞吐。
type Dispatcher struct {
	workers int
	queues  []chan *escrow.Event
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDispatcher(workers int, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	queues := make([]chan *escrow.Event, workers)
	for i := range queues {
		queues[i] = make(chan *escrow.Event, queueSize)
	}
	return &Dispatcher{
		workers: workers,
		queues:  queues,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Dispatcher) Start(handler func(*escrow.Event)) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i, handler)
	}
}

func (d *Dispatcher) worker(id int, handler func(*escrow.Event)) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case event := <-d.queues[id]:
			handler(event)
		}
	}
}

// Dispatch 按赏金id路由事件，队列满时阻塞等待
func (d *Dispatcher) Dispatch(event *escrow.Event) bool {
	h := fnv.New32a()
	h.Write([]byte(event.BountyID))
	idx := int(h.Sum32()) % d.workers
	if idx < 0 {
		idx = -idx
	}

	select {
	case d.queues[idx] <- event:
		return true
	case <-d.ctx.Done():
		return false
	}
}

func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) QueueLength() int {
	total := 0
	for _, q := range d.queues {
		total += len(q)
	}
	return total
}

// Reconciler 链上事件调和引擎。以链上事件为准更新本地记录：
// 状态写入走条件更新，统计增量严格由实际生效的转移推导，
// 同一事件重复投递不会二次计数。
type Reconciler struct {
	bounties   BountyStore
	stats      StatsStore
	fetcher    MetadataFetcher
	dispatcher *Dispatcher
}

func NewReconciler(bounties BountyStore, stats StatsStore, fetcher MetadataFetcher, dispatcher *Dispatcher) *Reconciler {
	return &Reconciler{
		bounties:   bounties,
		stats:      stats,
		fetcher:    fetcher,
		dispatcher: dispatcher,
	}
}

// Run 消费监听器的事件通道，按赏金id分发到工作池
func (r *Reconciler) Run(ctx context.Context, events <-chan *escrow.Event) {
	r.dispatcher.Start(func(event *escrow.Event) {
		r.Apply(ctx, event)
	})

	for {
		select {
		case <-ctx.Done():
			r.dispatcher.Stop()
			return
		case event, ok := <-events:
			if !ok {
				r.dispatcher.Stop()
				return
			}
			r.dispatcher.Dispatch(event)
		}
	}
}

// Apply 处理单个事件。未知事件类型跳过，未知赏金id跳过，
// 处理失败只记日志不中断后续事件。
func (r *Reconciler) Apply(ctx context.Context, event *escrow.Event) {
	var err error
	switch event.Type {
	case escrow.EventBountyCreated:
		err = r.handleCreated(ctx, event)
	case escrow.EventBountyClaimed:
		err = r.handleTransition(ctx, event, lifecycle.TriggerClaim)
	case escrow.EventBountySubmitted:
		err = r.handleTransition(ctx, event, lifecycle.TriggerSubmit)
	case escrow.EventBountyPaid:
		err = r.handleTransition(ctx, event, lifecycle.TriggerApprove)
	case escrow.EventBountyCancelled:
		err = r.handleTransition(ctx, event, lifecycle.TriggerCancel)
	case escrow.EventBountyRejected:
		err = r.handleTransition(ctx, event, lifecycle.TriggerReject)
	case escrow.EventBountyDisputed:
		err = r.handleTransition(ctx, event, lifecycle.TriggerDispute)
	case escrow.EventBountyDisputeResolved:
		trigger := lifecycle.TriggerResolveRefunded
		if event.ClaimerWins {
			trigger = lifecycle.TriggerResolvePaid
		}
		err = r.handleTransition(ctx, event, trigger)
	default:
		logger.WithFields(map[string]interface{}{
			"event_type": string(event.Type),
			"bounty_id":  event.BountyID,
		}).Warn("跳过未知事件类型")
		return
	}

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"event_type": string(event.Type),
			"bounty_id":  event.BountyID,
			"tx_hash":    event.TxHash,
			"error":      err.Error(),
		}).Error("事件调和失败")
	}
}

// handleCreated 建立链上赏金的本地镜像记录。
// 同一链上id的重复事件直接跳过，不会重复建单和计数。
// 直写API先建单、随后上链确权的记录按元数据URI关联，补上链上id
// 而不是再建一条镜像。
func (r *Reconciler) handleCreated(ctx context.Context, event *escrow.Event) error {
	existing, err := r.bounties.GetByOnchainID(ctx, event.BountyID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if event.MetadataURI != "" {
		local, err := r.bounties.GetByMetadataURI(ctx, event.MetadataURI)
		if err != nil {
			return err
		}
		if local != nil && local.OnchainID == nil {
			return r.attachOnchain(ctx, local, event)
		}
	}

	// 事件里不带token地址，镜像记录默认USDC，元数据回填后修正
	usdc, err := token.Resolve("USDC")
	if err != nil {
		return err
	}

	expiresAt := event.Timestamp.Add(7 * 24 * time.Hour)
	if event.Deadline != nil && event.Deadline.Sign() > 0 {
		expiresAt = time.Unix(event.Deadline.Int64(), 0)
	}

	onchainID := event.BountyID
	now := event.Timestamp
	bounty := &models.Bounty{
		ID:            uuid.NewString(),
		OnchainID:     &onchainID,
		Title:         "Bounty #" + event.BountyID,
		RewardRaw:     "0",
		TokenAddress:  usdc.Address,
		TokenSymbol:   usdc.Symbol,
		TokenDecimals: usdc.Decimals,
		ExpiresAt:     expiresAt,
		ProofType:     models.ProofPhoto,
		MetadataURI:   event.MetadataURI,
		Status:        models.StatusOpen,
		AgentAddress:  event.Agent,
		EscrowTx:      &event.TxHash,
		CreatedAt:     now,
	}
	if event.Amount != nil {
		bounty.RewardRaw = event.Amount.String()
	}

	if err := r.bounties.Create(ctx, bounty); err != nil {
		return err
	}

	logStatsError(bounty.ID, applyCreationStats(ctx, r.stats, event.Agent, event.Amount))

	// 元数据回填尽力而为，失败不影响记录本身。拉取可能耗时较长，
	// 期间别的转移可能已落库，只允许改描述性字段，不碰状态和认领者
	if r.fetcher != nil && event.MetadataURI != "" {
		if meta, err := r.fetcher.Fetch(ctx, event.MetadataURI); err != nil {
			logger.WithFields(map[string]interface{}{
				"bounty_id":    bounty.ID,
				"metadata_uri": event.MetadataURI,
				"error":        err.Error(),
			}).Warn("元数据回填失败")
		} else {
			if err := r.bounties.Update(ctx, bounty.ID, func(b *models.Bounty) {
				b.Title = meta.Title
				b.Description = meta.Description
				if models.ValidProofType(models.ProofType(meta.ProofType)) {
					b.ProofType = models.ProofType(meta.ProofType)
				}
				if meta.Location != nil {
					b.LocationLat = &meta.Location.Lat
					b.LocationLng = &meta.Location.Lng
					b.LocationRadiusM = meta.Location.RadiusM
				}
				b.WebhookURL = meta.WebhookURL
			}); err != nil {
				return err
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"bounty_id":  bounty.ID,
		"onchain_id": event.BountyID,
		"agent":      event.Agent,
		"tx_hash":    event.TxHash,
	}).Info("链上赏金已入库")

	return nil
}

// attachOnchain 把链上id和托管交易哈希补到直写API建的记录上。
// 建单统计在API路径已计过，这里不再计数。
func (r *Reconciler) attachOnchain(ctx context.Context, local *models.Bounty, event *escrow.Event) error {
	onchainID := event.BountyID
	txHash := event.TxHash
	if err := r.bounties.Update(ctx, local.ID, func(b *models.Bounty) {
		b.OnchainID = &onchainID
		b.EscrowTx = &txHash
	}); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"bounty_id":  local.ID,
		"onchain_id": event.BountyID,
		"tx_hash":    event.TxHash,
	}).Info("链上赏金关联到已有记录")

	return nil
}

// handleTransition 把链上事件落为状态转移。链上状态是事实来源：
// 合法转移照常应用，本地落后时向前追平，重复投递跳过；
// 统计侧用转移前状态做守卫，保证每个语义动作只计一次。
func (r *Reconciler) handleTransition(ctx context.Context, event *escrow.Event, trigger lifecycle.Trigger) error {
	bounty, err := r.bounties.GetByOnchainID(ctx, event.BountyID)
	if err != nil {
		return err
	}
	if bounty == nil {
		logger.WithFields(map[string]interface{}{
			"event_type": string(event.Type),
			"onchain_id": event.BountyID,
		}).Warn("跳过未知赏金的事件")
		return nil
	}

	// 同一赏金的事件在同一worker上串行，这里读到的就是转移前状态
	prev := bounty.Status
	target := lifecycle.Target(trigger)
	if !shouldApply(prev, trigger, target) {
		// 重复投递或游标回退后的重放，这次转移已经生效过
		logger.WithFields(map[string]interface{}{
			"event_type": string(event.Type),
			"onchain_id": event.BountyID,
			"status":     string(prev),
		}).Debug("跳过已生效的事件")
		return nil
	}

	ts := event.Timestamp
	// 统计用已落库的认领者，事件字段只在首次绑定（claim）时兜底
	claimer := ""
	if bounty.ClaimerAddress != nil {
		claimer = *bounty.ClaimerAddress
	}
	if claimer == "" {
		claimer = event.Claimer
	}

	applied, err := r.bounties.UpdateStatusIf(ctx, bounty.ID, []models.BountyStatus{prev}, target,
		func(b *models.Bounty) {
			switch trigger {
			case lifecycle.TriggerClaim:
				if event.Claimer != "" {
					b.ClaimerAddress = &event.Claimer
				}
				b.ClaimedAt = &ts
			case lifecycle.TriggerSubmit:
				if event.ProofURI != "" {
					b.ProofURL = &event.ProofURI
				}
				b.SubmittedAt = &ts
			case lifecycle.TriggerApprove, lifecycle.TriggerResolvePaid:
				b.VerifiedAt = &ts
				b.PaidAt = &ts
				b.PayoutTx = &event.TxHash
			case lifecycle.TriggerReject:
				b.VerifiedAt = &ts
				clearClaim(b)
			case lifecycle.TriggerCancel, lifecycle.TriggerResolveRefunded:
				b.CancelledAt = &ts
			case lifecycle.TriggerDispute:
				b.DisputedAt = &ts
				if event.EvidenceURI != "" {
					b.EvidenceURI = &event.EvidenceURI
				}
			}
		})
	if err != nil {
		return err
	}
	if !applied {
		// 读取和写入之间状态被API路径改了，下一批事件会重新对齐
		return nil
	}

	logStatsError(bounty.ID, applyTransitionStats(ctx, r.stats, bounty, prev, trigger, claimer))

	logger.WithFields(map[string]interface{}{
		"bounty_id":  bounty.ID,
		"onchain_id": event.BountyID,
		"from":       string(prev),
		"to":         string(target),
		"tx_hash":    event.TxHash,
	}).Info("链上事件已调和")

	return nil
}

// statusRank 生命周期的推进程度，终态并列最高
func statusRank(s models.BountyStatus) int {
	switch s {
	case models.StatusOpen:
		return 0
	case models.StatusClaimed:
		return 1
	case models.StatusSubmitted:
		return 2
	case models.StatusDisputed:
		return 3
	default:
		return 4
	}
}

// shouldApply 转移表允许的照常应用；本地记录落后于链上时
// （中间事件缺口）允许向前追平；倒退和重复一律跳过。
func shouldApply(prev models.BountyStatus, trigger lifecycle.Trigger, target models.BountyStatus) bool {
	if lifecycle.Can(prev, trigger) {
		return true
	}
	return !prev.IsTerminal() && statusRank(target) > statusRank(prev)
}
