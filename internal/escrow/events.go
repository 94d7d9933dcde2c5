package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type EventType string

const (
	EventBountyCreated         EventType = "BountyCreated"
	EventBountyClaimed         EventType = "BountyClaimed"
	EventBountySubmitted       EventType = "BountySubmitted"
	EventBountyPaid            EventType = "BountyPaid"
	EventBountyCancelled       EventType = "BountyCancelled"
	EventBountyRejected        EventType = "BountyRejected"
	EventBountyDisputed        EventType = "BountyDisputed"
	EventBountyDisputeResolved EventType = "BountyDisputeResolved"
)

// Event 从托管合约日志解码出的生命周期事件。
// BlockNumber和LogIndex用于链上规范顺序（块号优先，块内按日志序号）。
type Event struct {
	Type        EventType
	BountyID    string // 链上自增id的十进制表示
	Agent       string
	Claimer     string
	Amount      *big.Int
	MetadataURI string
	ProofURI    string
	EvidenceURI string
	Deadline    *big.Int
	ClaimerWins bool
	BlockNumber uint64
	LogIndex    uint
	TxHash      string
	Timestamp   time.Time // 区块时间戳，由监听器回填
}

// EventTopics 返回全部赏金事件的topic0，供日志过滤使用
func EventTopics() []common.Hash {
	topics := make([]common.Hash, 0, len(escrowABI.Events))
	for _, ev := range escrowABI.Events {
		topics = append(topics, ev.ID)
	}
	return topics
}

// ParseLog 把原始日志解码为类型化事件。
// 未知topic或缺字段的日志返回错误，由调用方跳过。
func ParseLog(log types.Log) (*Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	var name string
	for n, ev := range escrowABI.Events {
		if ev.ID == log.Topics[0] {
			name = n
			break
		}
	}
	if name == "" {
		return nil, fmt.Errorf("unknown event topic %s", log.Topics[0].Hex())
	}
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("%s: missing indexed bounty id", name)
	}

	event := &Event{
		Type:        EventType(name),
		BountyID:    new(big.Int).SetBytes(log.Topics[1].Bytes()).String(),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		TxHash:      log.TxHash.Hex(),
	}

	data, err := escrowABI.Unpack(name, log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", name, err)
	}

	switch event.Type {
	case EventBountyCreated:
		if len(log.Topics) < 3 || len(data) < 3 {
			return nil, fmt.Errorf("BountyCreated: malformed log")
		}
		event.Agent = common.BytesToAddress(log.Topics[2].Bytes()).Hex()
		event.Amount = data[0].(*big.Int)
		event.MetadataURI = data[1].(string)
		event.Deadline = data[2].(*big.Int)
	case EventBountyClaimed:
		if len(log.Topics) < 3 {
			return nil, fmt.Errorf("BountyClaimed: missing indexed claimer")
		}
		event.Claimer = common.BytesToAddress(log.Topics[2].Bytes()).Hex()
	case EventBountySubmitted:
		if len(data) < 1 {
			return nil, fmt.Errorf("BountySubmitted: malformed log")
		}
		event.ProofURI = data[0].(string)
	case EventBountyPaid:
		if len(log.Topics) < 3 || len(data) < 1 {
			return nil, fmt.Errorf("BountyPaid: malformed log")
		}
		event.Claimer = common.BytesToAddress(log.Topics[2].Bytes()).Hex()
		event.Amount = data[0].(*big.Int)
	case EventBountyCancelled, EventBountyRejected:
		// id only
	case EventBountyDisputed:
		if len(data) < 1 {
			return nil, fmt.Errorf("BountyDisputed: malformed log")
		}
		event.EvidenceURI = data[0].(string)
	case EventBountyDisputeResolved:
		if len(data) < 1 {
			return nil, fmt.Errorf("BountyDisputeResolved: malformed log")
		}
		event.ClaimerWins = data[0].(bool)
	}

	return event, nil
}
