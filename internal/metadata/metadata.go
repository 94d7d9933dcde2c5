package metadata

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/cupOJoseph/meatboard/internal/config"
	"github.com/cupOJoseph/meatboard/pkg/logger"
)

// BountyMetadata 赏金的描述性字段，外置到可寻址URI
type BountyMetadata struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ProofType   string    `json:"proofType"`
	Location    *Location `json:"location,omitempty"`
	WebhookURL  string    `json:"webhookUrl,omitempty"`
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM *int    `json:"radius_m,omitempty"`
}

const dataURIPrefix = "data:application/json;base64,"

type Publisher struct {
	sh         *shell.Shell
	gatewayURL string
	httpClient *http.Client
}

func NewPublisher(cfg config.IPFSConfig) *Publisher {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var sh *shell.Shell
	if cfg.NodeURL != "" {
		sh = shell.NewShell(cfg.NodeURL)
		sh.SetTimeout(timeout)
	}

	gateway := cfg.GatewayURL
	if gateway == "" {
		gateway = "https://ipfs.io/ipfs/"
	}

	return &Publisher{
		sh:         sh,
		gatewayURL: gateway,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Publish 把元数据JSON固定到IPFS，返回ipfs://<cid>。
// 未配置节点或固定失败时退回data URI，创建流程不因此中断。
func (p *Publisher) Publish(ctx context.Context, meta *BountyMetadata) (string, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	if p.sh != nil {
		cid, err := p.sh.Add(bytes.NewReader(payload))
		if err == nil {
			return "ipfs://" + cid, nil
		}
		logger.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Warn("IPFS固定失败，退回data URI")
	}

	return dataURIPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// Fetch 按URI取回元数据JSON。支持ipfs://（走网关）、data:和http(s)。
// 调用方决定失败时如何降级，本函数不改任何状态。
func (p *Publisher) Fetch(ctx context.Context, uri string) (*BountyMetadata, error) {
	switch {
	case strings.HasPrefix(uri, dataURIPrefix):
		payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, dataURIPrefix))
		if err != nil {
			return nil, fmt.Errorf("decode data uri: %w", err)
		}
		return decodeMetadata(payload)
	case strings.HasPrefix(uri, "ipfs://"):
		return p.fetchHTTP(ctx, p.gatewayURL+strings.TrimPrefix(uri, "ipfs://"))
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return p.fetchHTTP(ctx, uri)
	default:
		return nil, fmt.Errorf("unsupported metadata uri: %s", uri)
	}
}

func (p *Publisher) fetchHTTP(ctx context.Context, url string) (*BountyMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return decodeMetadata(payload)
}

func decodeMetadata(payload []byte) (*BountyMetadata, error) {
	var meta BountyMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &meta, nil
}
