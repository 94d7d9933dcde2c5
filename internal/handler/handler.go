package handler

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	apperrors "github.com/cupOJoseph/meatboard/pkg/errors"

	"github.com/cupOJoseph/meatboard/internal/auth"
	"github.com/cupOJoseph/meatboard/internal/escrow"
	"github.com/cupOJoseph/meatboard/internal/metadata"
	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/internal/service"
	"github.com/cupOJoseph/meatboard/internal/token"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError 统一的{error, code}错误响应
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		writeJSON(w, appErr.HTTPStatus, map[string]string{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal error",
		"code":  apperrors.CodeInternal,
	})
}

// bountyView 在模型JSON的基础上附带人类可读的reward字段
type bountyView struct {
	*models.Bounty
	Reward string `json:"reward"`
}

func viewOf(b *models.Bounty) bountyView {
	reward := b.RewardRaw
	if raw, ok := new(big.Int).SetString(b.RewardRaw, 10); ok {
		reward = token.FormatAmount(raw, b.TokenDecimals)
	}
	return bountyView{Bounty: b, Reward: reward}
}

type BountyHandler struct {
	bountySvc *service.BountyService
	stats     service.StatsStore
	auth      *auth.Authenticator
	builder   *escrow.Builder
}

func NewBountyHandler(bountySvc *service.BountyService, stats service.StatsStore, authenticator *auth.Authenticator, builder *escrow.Builder) *BountyHandler {
	return &BountyHandler{
		bountySvc: bountySvc,
		stats:     stats,
		auth:      authenticator,
		builder:   builder,
	}
}

// actionResponse 状态转移接口的响应：赏金本体，外加对应的
// 链上托管交易（仅当赏金有链上id时）
type actionResponse struct {
	bountyView
	Transaction *escrow.UnsignedTx `json:"transaction,omitempty"`
}

func (h *BountyHandler) actionView(b *models.Bounty, build func(id *big.Int) (escrow.UnsignedTx, error)) actionResponse {
	resp := actionResponse{bountyView: viewOf(b)}
	if b.OnchainID == nil || build == nil {
		return resp
	}
	onchainID, ok := new(big.Int).SetString(*b.OnchainID, 10)
	if !ok {
		return resp
	}
	tx, err := build(onchainID)
	if err != nil {
		return resp
	}
	resp.Transaction = &tx
	return resp
}

type locationRequest struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM *int    `json:"radius_m,omitempty"`
}

func (l *locationRequest) toMetadata() *metadata.Location {
	if l == nil {
		return nil
	}
	return &metadata.Location{Lat: l.Lat, Lng: l.Lng, RadiusM: l.RadiusM}
}

type createBountyRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Reward      string           `json:"reward"`
	Deadline    string           `json:"deadline"`
	Token       string           `json:"token,omitempty"`
	ProofType   string           `json:"proof_type,omitempty"`
	Location    *locationRequest `json:"location,omitempty"`
	WebhookURL  string           `json:"webhook_url,omitempty"`
}

// CreateBounty POST /bounty
func (h *BountyHandler) CreateBounty(w http.ResponseWriter, r *http.Request) {
	agent, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createBountyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeMissingField, "invalid JSON body", err))
		return
	}

	result, err := h.bountySvc.Create(r.Context(), agent, service.CreateBountyInput{
		Title:       req.Title,
		Description: req.Description,
		Reward:      req.Reward,
		Deadline:    req.Deadline,
		Token:       req.Token,
		ProofType:   req.ProofType,
		Location:    req.Location.toMetadata(),
		WebhookURL:  req.WebhookURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		bountyView:  viewOf(result.Bounty),
		MetadataURI: result.MetadataURI,
		Transactions: createTransactions{
			Approve:      result.ApproveTx,
			CreateBounty: result.CreateTx,
		},
	})
}

type createTransactions struct {
	Approve      escrow.UnsignedTx `json:"approve"`
	CreateBounty escrow.UnsignedTx `json:"createBounty"`
}

// createResponse 赏金字段平铺在顶层，托管交易对随附
type createResponse struct {
	bountyView
	MetadataURI  string             `json:"metadata_uri"`
	Transactions createTransactions `json:"transactions"`
}

// ListBounties GET /bounty?status=&limit=&offset=
func (h *BountyHandler) ListBounties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}

	bounties, err := h.bountySvc.List(r.Context(), models.BountyStatus(q.Get("status")), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]bountyView, len(bounties))
	for i := range bounties {
		views[i] = viewOf(&bounties[i])
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bounties": views,
		"count":    len(views),
	})
}

// GetBounty GET /bounty/{id}
func (h *BountyHandler) GetBounty(w http.ResponseWriter, r *http.Request) {
	bounty, err := h.bountySvc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(bounty))
}

// GetBountyStatus GET /bounty/{id}/status
func (h *BountyHandler) GetBountyStatus(w http.ResponseWriter, r *http.Request) {
	bounty, err := h.bountySvc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         bounty.ID,
		"status":     bounty.Status,
		"expires_at": bounty.ExpiresAt.Format(time.RFC3339),
	})
}

// ClaimBounty POST /bounty/{id}/claim
func (h *BountyHandler) ClaimBounty(w http.ResponseWriter, r *http.Request) {
	claimer, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	bounty, err := h.bountySvc.Claim(r.Context(), mux.Vars(r)["id"], claimer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.actionView(bounty, h.builder.BuildClaimBounty))
}

type submitProofRequest struct {
	ProofURL string           `json:"proof_url"`
	Note     string           `json:"note,omitempty"`
	Location *locationRequest `json:"location,omitempty"`
}

// SubmitProof POST /bounty/{id}/submit
func (h *BountyHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	claimer, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req submitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeMissingField, "invalid JSON body", err))
		return
	}

	bounty, err := h.bountySvc.Submit(r.Context(), mux.Vars(r)["id"], claimer, service.SubmitProofInput{
		ProofURL: req.ProofURL,
		Note:     req.Note,
		Location: req.Location.toMetadata(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.actionView(bounty, func(id *big.Int) (escrow.UnsignedTx, error) {
		return h.builder.BuildSubmitProof(id, req.ProofURL)
	}))
}

type verifyRequest struct {
	Approved bool `json:"approved"`
}

// VerifyBounty POST /bounty/{id}/verify
func (h *BountyHandler) VerifyBounty(w http.ResponseWriter, r *http.Request) {
	agent, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeMissingField, "invalid JSON body", err))
		return
	}

	bounty, err := h.bountySvc.Verify(r.Context(), mux.Vars(r)["id"], agent, req.Approved)
	if err != nil {
		writeError(w, err)
		return
	}

	var build func(id *big.Int) (escrow.UnsignedTx, error)
	if req.Approved {
		build = h.builder.BuildReleaseBounty
	}
	writeJSON(w, http.StatusOK, h.actionView(bounty, build))
}

// CancelBounty POST /bounty/{id}/cancel
func (h *BountyHandler) CancelBounty(w http.ResponseWriter, r *http.Request) {
	agent, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	bounty, err := h.bountySvc.Cancel(r.Context(), mux.Vars(r)["id"], agent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.actionView(bounty, h.builder.BuildCancelBounty))
}

type disputeRequest struct {
	EvidenceURI string `json:"evidence_uri,omitempty"`
}

// DisputeBounty POST /bounty/{id}/dispute
func (h *BountyHandler) DisputeBounty(w http.ResponseWriter, r *http.Request) {
	caller, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req disputeRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	bounty, err := h.bountySvc.Dispute(r.Context(), mux.Vars(r)["id"], caller, req.EvidenceURI)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(bounty))
}

type resolveDisputeRequest struct {
	ClaimerWins bool `json:"claimer_wins"`
}

// ResolveDispute POST /bounty/{id}/dispute/resolve
func (h *BountyHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	agent, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeMissingField, "invalid JSON body", err))
		return
	}

	bounty, err := h.bountySvc.ResolveDispute(r.Context(), mux.Vars(r)["id"], agent, req.ClaimerWins)
	if err != nil {
		writeError(w, err)
		return
	}

	build := h.builder.BuildCancelBounty
	if req.ClaimerWins {
		build = h.builder.BuildReleaseBounty
	}
	writeJSON(w, http.StatusOK, h.actionView(bounty, build))
}

// GetAgentStats GET /agent/{address}/stats
func (h *BountyHandler) GetAgentStats(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	stats, err := h.stats.GetAgent(r.Context(), address)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeInternal, "failed to fetch stats", err))
		return
	}
	if stats == nil {
		stats = &models.AgentStats{Address: address, TotalSpent: "0"}
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetClaimerStats GET /claimer/{address}/stats
func (h *BountyHandler) GetClaimerStats(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	stats, err := h.stats.GetClaimer(r.Context(), address)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeInternal, "failed to fetch stats", err))
		return
	}
	if stats == nil {
		stats = &models.ClaimerStats{Address: address, TotalEarned: "0"}
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListTokens GET /tokens
func (h *BountyHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": token.All(),
	})
}

// Health GET /health
func (h *BountyHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// NewRouter 注册全部路由并套CORS
func NewRouter(h *BountyHandler, corsOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/tokens", h.ListTokens).Methods(http.MethodGet)

	r.HandleFunc("/bounty", h.CreateBounty).Methods(http.MethodPost)
	r.HandleFunc("/bounty", h.ListBounties).Methods(http.MethodGet)
	r.HandleFunc("/bounty/{id}", h.GetBounty).Methods(http.MethodGet)
	r.HandleFunc("/bounty/{id}/status", h.GetBountyStatus).Methods(http.MethodGet)
	r.HandleFunc("/bounty/{id}/claim", h.ClaimBounty).Methods(http.MethodPost)
	r.HandleFunc("/bounty/{id}/submit", h.SubmitProof).Methods(http.MethodPost)
	r.HandleFunc("/bounty/{id}/verify", h.VerifyBounty).Methods(http.MethodPost)
	r.HandleFunc("/bounty/{id}/cancel", h.CancelBounty).Methods(http.MethodPost)
	r.HandleFunc("/bounty/{id}/dispute", h.DisputeBounty).Methods(http.MethodPost)
	r.HandleFunc("/bounty/{id}/dispute/resolve", h.ResolveDispute).Methods(http.MethodPost)

	r.HandleFunc("/agent/{address}/stats", h.GetAgentStats).Methods(http.MethodGet)
	r.HandleFunc("/claimer/{address}/stats", h.GetClaimerStats).Methods(http.MethodGet)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}
