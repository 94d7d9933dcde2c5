package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cupOJoseph/meatboard/internal/auth"
	"github.com/cupOJoseph/meatboard/internal/config"
	"github.com/cupOJoseph/meatboard/internal/escrow"
	"github.com/cupOJoseph/meatboard/internal/metadata"
	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/internal/repository"
	"github.com/cupOJoseph/meatboard/internal/service"
)

const (
	agentKey   = "agent-key"
	claimerKey = "claimer-key"
	agentAddr  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	clmrAddr   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type memStore struct {
	mu   sync.Mutex
	byID map[string]*models.Bounty
}

func (s *memStore) Create(ctx context.Context, b *models.Bounty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	c := *b
	s.byID[b.ID] = &c
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.byID[id]; ok {
		c := *b
		return &c, nil
	}
	return nil, nil
}

func (s *memStore) GetByOnchainID(ctx context.Context, onchainID string) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.byID {
		if b.OnchainID != nil && *b.OnchainID == onchainID {
			c := *b
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) List(ctx context.Context, status models.BountyStatus, limit, offset int) ([]models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bounty
	for _, b := range s.byID {
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, *b)
	}
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpdateStatusIf(ctx context.Context, id string, from []models.BountyStatus, to models.BountyStatus, mutate func(*models.Bounty)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if b.Status == st {
			c := *b
			if mutate != nil {
				mutate(&c)
			}
			c.Status = to
			s.byID[id] = &c
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetByMetadataURI(ctx context.Context, uri string) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.byID {
		if b.MetadataURI == uri {
			c := *b
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) Update(ctx context.Context, id string, mutate func(*models.Bounty)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.byID[id]; ok {
		c := *b
		mutate(&c)
		s.byID[id] = &c
	}
	return nil
}

func (s *memStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Bounty, error) {
	return nil, nil
}

type memStats struct {
	mu       sync.Mutex
	agents   map[string]*models.AgentStats
	claimers map[string]*models.ClaimerStats
}

func (s *memStats) GetAgent(ctx context.Context, address string) (*models.AgentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.agents[address]; ok {
		c := *st
		return &c, nil
	}
	return nil, nil
}

func (s *memStats) GetClaimer(ctx context.Context, address string) (*models.ClaimerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.claimers[address]; ok {
		c := *st
		return &c, nil
	}
	return nil, nil
}

func (s *memStats) ApplyAgentDelta(ctx context.Context, address string, delta repository.AgentDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.agents[address]
	if !ok {
		st = &models.AgentStats{Address: address, TotalSpent: "0"}
		s.agents[address] = st
	}
	st.TotalBounties += delta.TotalBounties
	st.ActiveBounties += delta.ActiveBounties
	st.CompletedBounties += delta.CompletedBounties
	st.CancelledBounties += delta.CancelledBounties
	return nil
}

func (s *memStats) ApplyClaimerDelta(ctx context.Context, address string, delta repository.ClaimerDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.claimers[address]
	if !ok {
		st = &models.ClaimerStats{Address: address, TotalEarned: "0"}
		s.claimers[address] = st
	}
	st.TotalClaimed += delta.TotalClaimed
	st.ActiveClaims += delta.ActiveClaims
	st.CompletedBounties += delta.CompletedBounties
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	bounties := &memStore{byID: make(map[string]*models.Bounty)}
	stats := &memStats{
		agents:   make(map[string]*models.AgentStats),
		claimers: make(map[string]*models.ClaimerStats),
	}
	publisher := metadata.NewPublisher(config.IPFSConfig{})
	builder, err := escrow.NewBuilder("0x1111111111111111111111111111111111111111", 42161)
	require.NoError(t, err)

	svc := service.NewBountyService(bounties, stats, publisher, builder,
		config.BountyConfig{MinReward: "1", MaxReward: "1000"})

	authenticator := auth.NewAuthenticator(map[string]string{
		agentKey:   agentAddr,
		claimerKey: clmrAddr,
	})

	return NewRouter(NewBountyHandler(svc, stats, authenticator, builder), nil)
}

func doJSON(t *testing.T, router http.Handler, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createBounty(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/bounty", agentKey, map[string]interface{}{
		"title":    "Photograph the shop front",
		"reward":   "5.00",
		"deadline": "4h",
		"token":    "USDC",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	return decode(t, rec)["id"].(string)
}

func TestCreateBountyEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/bounty", agentKey, map[string]interface{}{
		"title":    "Photograph the shop front",
		"reward":   "5.00",
		"deadline": "4h",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "open", body["status"])
	assert.Equal(t, "5000000", body["reward_raw"])
	assert.Equal(t, "5", body["reward"])
	assert.Equal(t, "USDC", body["token_symbol"])
	assert.NotEmpty(t, body["created_at"])
	assert.NotEmpty(t, body["expires_at"])

	txs := body["transactions"].(map[string]interface{})
	approve := txs["approve"].(map[string]interface{})
	create := txs["createBounty"].(map[string]interface{})
	assert.NotEmpty(t, approve["data"])
	assert.NotEmpty(t, create["data"])
	assert.Equal(t, float64(42161), create["chainId"])
}

func TestCreateBountyRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/bounty", "", map[string]interface{}{
		"title": "x", "reward": "5", "deadline": "4h",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rec)["code"])
}

func TestCreateBountyValidationError(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/bounty", agentKey, map[string]interface{}{
		"reward": "5", "deadline": "4h",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FIELD", decode(t, rec)["code"])
}

func TestLifecycleEndpoints(t *testing.T) {
	router := newTestRouter(t)
	id := createBounty(t, router)

	rec := doJSON(t, router, http.MethodPost, "/bounty/"+id+"/claim", claimerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "claimed", decode(t, rec)["status"])

	rec = doJSON(t, router, http.MethodPost, "/bounty/"+id+"/submit", claimerKey, map[string]interface{}{
		"proof_url": "https://example.com/proof.jpg",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "submitted", decode(t, rec)["status"])

	rec = doJSON(t, router, http.MethodPost, "/bounty/"+id+"/verify", agentKey, map[string]interface{}{
		"approved": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paid", decode(t, rec)["status"])

	rec = doJSON(t, router, http.MethodGet, "/bounty/"+id+"/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", decode(t, rec)["status"])
}

func TestClaimTwiceConflicts(t *testing.T) {
	router := newTestRouter(t)
	id := createBounty(t, router)

	rec := doJSON(t, router, http.MethodPost, "/bounty/"+id+"/claim", claimerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/bounty/"+id+"/claim", claimerKey, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "INVALID_STATUS", body["code"])
	assert.Contains(t, body["error"], "claimed")
}

func TestVerifyForbiddenForNonAgent(t *testing.T) {
	router := newTestRouter(t)
	id := createBounty(t, router)

	doJSON(t, router, http.MethodPost, "/bounty/"+id+"/claim", claimerKey, nil)
	doJSON(t, router, http.MethodPost, "/bounty/"+id+"/submit", claimerKey, map[string]interface{}{
		"proof_url": "https://example.com/p",
	})

	rec := doJSON(t, router, http.MethodPost, "/bounty/"+id+"/verify", claimerKey, map[string]interface{}{
		"approved": true,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, rec)["code"])
}

func TestListBounties(t *testing.T) {
	router := newTestRouter(t)
	createBounty(t, router)
	createBounty(t, router)

	rec := doJSON(t, router, http.MethodGet, "/bounty?status=open", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["count"])

	rec = doJSON(t, router, http.MethodGet, "/bounty?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
}

func TestGetBountyNotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/bounty/does-not-exist", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec)["code"])
}

func TestStatsEndpoints(t *testing.T) {
	router := newTestRouter(t)
	id := createBounty(t, router)
	doJSON(t, router, http.MethodPost, "/bounty/"+id+"/claim", claimerKey, nil)

	rec := doJSON(t, router, http.MethodGet, "/agent/"+agentAddr+"/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["total_bounties"])

	rec = doJSON(t, router, http.MethodGet, "/claimer/"+clmrAddr+"/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total_claimed"])

	// 没有记录的地址返回零值而不是404
	rec = doJSON(t, router, http.MethodGet, "/agent/0x1234/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["total_bounties"])
}

func TestTokensEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/tokens", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	tokens := body["tokens"].([]interface{})
	assert.Len(t, tokens, 5)
}

func TestActionViewAttachesOnchainTransaction(t *testing.T) {
	builder, err := escrow.NewBuilder("0x1111111111111111111111111111111111111111", 42161)
	require.NoError(t, err)
	h := NewBountyHandler(nil, nil, nil, builder)

	onchainID := "42"
	offchain := &models.Bounty{ID: "local", RewardRaw: "5000000", TokenDecimals: 6}
	onchain := &models.Bounty{ID: "mirror", OnchainID: &onchainID, RewardRaw: "5000000", TokenDecimals: 6}

	// 纯链下赏金没有链上交易可构造
	resp := h.actionView(offchain, h.builder.BuildClaimBounty)
	assert.Nil(t, resp.Transaction)

	resp = h.actionView(onchain, h.builder.BuildClaimBounty)
	require.NotNil(t, resp.Transaction)
	assert.NotEmpty(t, resp.Transaction.Data)
	assert.Equal(t, uint64(42161), resp.Transaction.ChainID)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}
