package blockchain

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cupOJoseph/meatboard/internal/config"
	"github.com/cupOJoseph/meatboard/internal/escrow"
	"github.com/cupOJoseph/meatboard/internal/repository"
	"github.com/cupOJoseph/meatboard/pkg/logger"
)

// EventListener 轮询式事件监听器。按确认深度和批大小拉取日志，
// 解码后按链上规范顺序（块号、日志序号）送入事件通道。
// 游标在入队后推进；崩溃后的重放由调和引擎的幂等性兜底。
type EventListener struct {
	chainCfg     *config.ChainConfig
	client       *Client
	blockRepo    *repository.BlockRepository
	eventChan    chan *escrow.Event
	stopChan     chan struct{}
	isProcessing int32
}

func NewEventListener(chainCfg *config.ChainConfig, client *Client, blockRepo *repository.BlockRepository) *EventListener {
	return &EventListener{
		chainCfg:  chainCfg,
		client:    client,
		blockRepo: blockRepo,
		eventChan: make(chan *escrow.Event, 1000),
		stopChan:  make(chan struct{}),
	}
}

// Start 启动事件监听器
func (l *EventListener) Start(ctx context.Context, startBlock int64) {
	ticker := time.NewTicker(time.Duration(l.chainCfg.PullInterval) * time.Second)
	defer ticker.Stop()

	lastProcessedBlock := startBlock

	for {
		select {
		case <-ctx.Done():
			logger.Info("事件监听器已停止：上下文已取消")
			return
		case <-l.stopChan:
			logger.Info("事件监听器已停止：收到停止信号")
			return
		case <-ticker.C:
			// 检查是否正在处理
			if atomic.LoadInt32(&l.isProcessing) == 1 {
				logger.WithFields(map[string]interface{}{
					"chain_id": l.chainCfg.ID,
				}).Warn("上一次处理尚未完成，跳过本次触发")
				continue
			}

			atomic.StoreInt32(&l.isProcessing, 1)

			block, err := l.processNewBlocks(ctx, lastProcessedBlock)
			if err != nil {
				logger.Error("处理区块失败:", err)
			} else if block > lastProcessedBlock {
				lastProcessedBlock = block
			}

			atomic.StoreInt32(&l.isProcessing, 0)
		}
	}
}

// Stop 停止事件监听器
func (l *EventListener) Stop() {
	close(l.stopChan)
}

// GetEventChannel 获取事件通道
func (l *EventListener) GetEventChannel() <-chan *escrow.Event {
	return l.eventChan
}

// processNewBlocks 处理新区块
func (l *EventListener) processNewBlocks(ctx context.Context, lastBlock int64) (int64, error) {
	confirmedBlock, err := l.client.GetConfirmBlockNumber(ctx)
	if err != nil {
		return lastBlock, err
	}

	if confirmedBlock <= lastBlock {
		return lastBlock, nil
	}

	startBlock := lastBlock + 1
	if startBlock == 1 && l.chainCfg.StartBlock > 0 {
		startBlock = l.chainCfg.StartBlock
	}

	batchSize := int64(l.chainCfg.BatchSize)
	if batchSize <= 0 {
		batchSize = 100
	}
	maxBatchSize := int64(5000)
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	if confirmedBlock-startBlock >= batchSize {
		confirmedBlock = startBlock + batchSize - 1
	}

	logs, err := l.client.GetBountyLogs(ctx, startBlock, confirmedBlock)
	if err != nil {
		return lastBlock, err
	}

	events := make([]*escrow.Event, 0, len(logs))
	blockTimes := make(map[uint64]time.Time)
	for _, log := range logs {
		event, err := escrow.ParseLog(log)
		if err != nil {
			// 无法解码的日志跳过，不能阻塞消费
			logger.Error("解析日志失败:", err)
			continue
		}

		ts, ok := blockTimes[event.BlockNumber]
		if !ok {
			ts, err = l.client.GetBlockTimestamp(ctx, int64(event.BlockNumber))
			if err != nil {
				logger.Error("获取区块时间戳失败:", err)
				ts = time.Now()
			}
			blockTimes[event.BlockNumber] = ts
		}
		event.Timestamp = ts

		events = append(events, event)
	}

	// 保证链上规范顺序：块号优先，块内按日志序号
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	for _, event := range events {
		select {
		case l.eventChan <- event:
		case <-ctx.Done():
			return lastBlock, ctx.Err()
		}
	}

	if err := l.blockRepo.MarkProcessed(ctx, l.chainCfg.ID, confirmedBlock); err != nil {
		logger.Error("标记区块已处理失败:", err)
		return lastBlock, err
	}

	return confirmedBlock, nil
}
