package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cupOJoseph/meatboard/internal/config"
	"github.com/cupOJoseph/meatboard/internal/escrow"
	"github.com/cupOJoseph/meatboard/pkg/errors"
	"github.com/cupOJoseph/meatboard/pkg/logger"
)

type Client struct {
	chainCfg   *config.ChainConfig
	escrowAddr common.Address
	client     *ethclient.Client
}

// NewClient 创建指定链的区块链客户端
func NewClient(chainCfg *config.ChainConfig, escrowAddress string) (*Client, error) {
	if !common.IsHexAddress(escrowAddress) {
		return nil, errors.New(errors.ErrRPConnect,
			fmt.Sprintf("托管合约地址非法: %s", escrowAddress), nil)
	}

	client, err := ethclient.Dial(chainCfg.RPCURL)
	if err != nil {
		return nil, errors.New(errors.ErrRPConnect,
			fmt.Sprintf("连接RPC失败: %s", chainCfg.RPCURL), err)
	}

	return &Client{
		chainCfg:   chainCfg,
		escrowAddr: common.HexToAddress(escrowAddress),
		client:     client,
	}, nil
}

// Close 关闭区块链客户端连接
func (c *Client) Close() {
	c.client.Close()
}

// GetLatestBlockNumber 获取区块链最新区块号
func (c *Client) GetLatestBlockNumber(ctx context.Context) (int64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, errors.New(errors.ErrBlockFetch, "获取最新区块失败", err)
	}
	return header.Number.Int64(), nil
}

// GetConfirmBlockNumber 获取已确认的最新区块号
// 应用确认区块阈值后返回
func (c *Client) GetConfirmBlockNumber(ctx context.Context) (int64, error) {
	latest, err := c.GetLatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	confirmed := latest - int64(c.chainCfg.ConfirmationBlocks)
	if confirmed < 0 {
		confirmed = 0
	}

	return confirmed, nil
}

// GetBlockTimestamp 获取区块的时间戳
func (c *Client) GetBlockTimestamp(ctx context.Context, blockNumber int64) (time.Time, error) {
	header, err := c.client.HeaderByNumber(ctx, big.NewInt(blockNumber))
	if err != nil {
		return time.Time{}, errors.New(errors.ErrBlockFetch,
			fmt.Sprintf("获取区块 %d 失败", blockNumber), err)
	}
	return time.Unix(int64(header.Time), 0), nil
}

// GetBountyLogs 获取指定区块范围内托管合约的赏金生命周期事件日志
// 注意：RPC节点通常限制每次请求最多10,000个区块
func (c *Client) GetBountyLogs(ctx context.Context, startBlock, endBlock int64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(startBlock),
		ToBlock:   big.NewInt(endBlock),
		Addresses: []common.Address{c.escrowAddr},
		Topics:    [][]common.Hash{escrow.EventTopics()},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, errors.New(errors.ErrEventParse, "过滤赏金事件失败", err)
	}

	logger.WithFields(map[string]interface{}{
		"chain_id":    c.chainCfg.ID,
		"start_block": startBlock,
		"end_block":   endBlock,
		"logs_count":  len(logs),
	}).Debug("获取赏金事件日志")

	return logs, nil
}
