package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"ipchain/crypto"
)

// ReconRunner triggers a reconciliation pass on demand.
type ReconRunner interface {
	Run(ctx context.Context, opts ReconRunOptions) (ReconResult, error)
}

// Server exposes the royalty gateway HTTP API.
type Server struct {
	store    *SQLiteStore
	node     NodeClient
	recon    ReconRunner
	auth     *Authenticator
	limiter  *RateLimiter
	logger   *slog.Logger
	operator string
	nowFn    func() time.Time
	newID    func() string
}

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	Store    *SQLiteStore
	Node     NodeClient
	Recon    ReconRunner
	Auth     *Authenticator
	Limiter  *RateLimiter
	Logger   *slog.Logger
	Operator string
	Now      func() time.Time
	NewID    func() string
}

// NewServer builds a Server, defaulting the clock and id generator.
func NewServer(cfg ServerConfig) *Server {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(60, 10)
	}
	return &Server{
		store:    cfg.Store,
		node:     cfg.Node,
		recon:    cfg.Recon,
		auth:     cfg.Auth,
		limiter:  limiter,
		logger:   logger,
		operator: cfg.Operator,
		nowFn:    now,
		newID:    newID,
	}
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.With(RequireRole(RolePayer), s.limiter.Middleware).Post("/payments", s.handleCreatePayment)
		r.With(RequireRole(RolePayer), s.limiter.Middleware).Post("/fees", s.handleCreateFee)
		r.With(RequireRole(RolePayer, RoleTreasurer, RoleAuditor)).Get("/payments/{id}", s.handleGetPayment)
		r.With(RequireRole(RoleTreasurer)).Post("/vaults/{asset}/snapshots", s.handleSnapshot)
		r.With(RequireRole(RoleTreasurer)).Post("/claims", s.handleClaim)
		r.With(RequireRole(RolePayer, RoleTreasurer, RoleAuditor)).Get("/vaults/{asset}", s.handleVault)
		r.With(RequireRole(RolePayer, RoleTreasurer, RoleAuditor)).Get("/vaults/{asset}/pending", s.handlePending)
		r.With(RequireRole(RolePayer, RoleTreasurer, RoleAuditor)).Get("/assets/{asset}/graph", s.handleGraph)
		r.With(RequireRole(RoleAuditor)).Post("/recon/run", s.handleReconRun)
	})

	return r
}

type paymentRequest struct {
	ReceiverIPAsset string `json:"receiverIpAsset"`
	PayerIPAsset    string `json:"payerIpAsset,omitempty"`
	Token           string `json:"token"`
	Amount          string `json:"amount"`
}

type feeRequest struct {
	ReceiverIPAsset string `json:"receiverIpAsset"`
	Payer           string `json:"payer"`
	Token           string `json:"token"`
	Amount          string `json:"amount"`
}

type paymentResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

type paymentDetail struct {
	PaymentID       string    `json:"paymentId"`
	Kind            string    `json:"kind"`
	ReceiverIPAsset string    `json:"receiverIpAsset"`
	PayerIPAsset    string    `json:"payerIpAsset,omitempty"`
	Token           string    `json:"token"`
	Amount          string    `json:"amount"`
	Status          string    `json:"status"`
	SubmittedBy     string    `json:"submittedBy"`
	Detail          string    `json:"detail,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type snapshotResponse struct {
	IPAsset    string `json:"ipAsset"`
	SnapshotID uint64 `json:"snapshotId"`
}

type claimRequest struct {
	IPAsset    string   `json:"ipAsset"`
	Claimer    string   `json:"claimer"`
	SnapshotID uint64   `json:"snapshotId"`
	Tokens     []string `json:"tokens"`
}

type claimResponse struct {
	IPAsset    string       `json:"ipAsset"`
	SnapshotID uint64       `json:"snapshotId"`
	Claims     []ClaimEntry `json:"claims"`
}

type reconRunRequest struct {
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	DryRun bool   `json:"dryRun,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, nil, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	body, key, hash, ok := s.beginIdempotent(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, body, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := validatePaymentRequest(req); err != nil {
		s.writeError(w, r, body, http.StatusBadRequest, err.Error())
		return
	}
	rec := s.newPaymentRecord(r, KindRoyalty, req.ReceiverIPAsset, req.PayerIPAsset, req.Token, req.Amount)
	if err := s.store.InsertPayment(r.Context(), rec); err != nil {
		s.logger.Error("insert payment", "error", err)
		s.writeError(w, r, body, http.StatusInternalServerError, "persist payment failed")
		return
	}
	err := s.node.PayRoyalty(r.Context(), s.operator, req.ReceiverIPAsset, req.PayerIPAsset, req.Token, req.Amount)
	s.settlePayment(w, r, body, key, hash, rec.ID, err)
}

func (s *Server) handleCreateFee(w http.ResponseWriter, r *http.Request) {
	body, key, hash, ok := s.beginIdempotent(w, r)
	if !ok {
		return
	}
	var req feeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, body, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := validateFeeRequest(req); err != nil {
		s.writeError(w, r, body, http.StatusBadRequest, err.Error())
		return
	}
	rec := s.newPaymentRecord(r, KindFee, req.ReceiverIPAsset, "", req.Token, req.Amount)
	if err := s.store.InsertPayment(r.Context(), rec); err != nil {
		s.logger.Error("insert fee", "error", err)
		s.writeError(w, r, body, http.StatusInternalServerError, "persist payment failed")
		return
	}
	err := s.node.PayMintingFee(r.Context(), s.operator, req.ReceiverIPAsset, req.Payer, req.Token, req.Amount)
	s.settlePayment(w, r, body, key, hash, rec.ID, err)
}

// beginIdempotent reads the body, enforces the Idempotency-Key header and
// replays a cached response when the same request was already served.
func (s *Server) beginIdempotent(w http.ResponseWriter, r *http.Request) (body []byte, key, hash string, ok bool) {
	body, ok = s.readBody(w, r)
	if !ok {
		return nil, "", "", false
	}
	key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		s.writeError(w, r, body, http.StatusBadRequest, "Idempotency-Key header required")
		return nil, "", "", false
	}
	hash = hashRequest(r.Method, canonicalRequestPath(r), body)
	cached, err := s.store.LookupIdempotency(r.Context(), key, hash)
	if errors.Is(err, ErrIdempotencyConflict) {
		s.writeError(w, r, body, http.StatusConflict, "idempotency key reused with different request")
		return nil, "", "", false
	}
	if err != nil {
		s.logger.Error("idempotency lookup", "error", err)
		s.writeError(w, r, body, http.StatusInternalServerError, "idempotency lookup failed")
		return nil, "", "", false
	}
	if cached != nil {
		s.writeJSONBytes(w, r, body, cached.ResponseStatus, cached.ResponseBody)
		return nil, "", "", false
	}
	return body, key, hash, true
}

func (s *Server) newPaymentRecord(r *http.Request, kind, receiver, payer, token, amount string) PaymentRecord {
	now := s.nowFn()
	return PaymentRecord{
		ID:          s.newID(),
		Kind:        kind,
		ReceiverIP:  receiver,
		PayerIP:     payer,
		Token:       token,
		Amount:      amount,
		Status:      StatusPending,
		SubmittedBy: actor(r),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// settlePayment records the node outcome and serves the idempotent response.
func (s *Server) settlePayment(w http.ResponseWriter, r *http.Request, body []byte, key, hash, paymentID string, nodeErr error) {
	status := http.StatusCreated
	resp := paymentResponse{PaymentID: paymentID, Status: StatusConfirmed}
	if nodeErr != nil {
		status = nodeErrorStatus(nodeErr)
		resp.Status = StatusFailed
		resp.Detail = nodeErr.Error()
		if err := s.store.UpdatePaymentStatus(r.Context(), paymentID, StatusFailed, nodeErr.Error(), s.nowFn()); err != nil {
			s.logger.Error("mark payment failed", "payment", paymentID, "error", err)
		}
	} else if err := s.store.UpdatePaymentStatus(r.Context(), paymentID, StatusConfirmed, "", s.nowFn()); err != nil {
		s.logger.Error("mark payment confirmed", "payment", paymentID, "error", err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.writeError(w, r, body, http.StatusInternalServerError, "encode response failed")
		return
	}
	record := IdempotencyRecord{
		Key:            key,
		RequestHash:    hash,
		ResponseStatus: status,
		ResponseBody:   data,
		CreatedAt:      s.nowFn(),
	}
	if err := s.store.SaveIdempotency(r.Context(), record); err != nil {
		s.logger.Error("save idempotency", "error", err)
	}
	s.writeJSONBytes(w, r, body, status, data)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetPayment(r.Context(), id)
	if err != nil {
		s.logger.Error("get payment", "error", err)
		s.writeError(w, r, nil, http.StatusInternalServerError, "load payment failed")
		return
	}
	if rec == nil {
		s.writeError(w, r, nil, http.StatusNotFound, "payment not found")
		return
	}
	s.writeJSON(w, r, nil, http.StatusOK, paymentDetail{
		PaymentID:       rec.ID,
		Kind:            rec.Kind,
		ReceiverIPAsset: rec.ReceiverIP,
		PayerIPAsset:    rec.PayerIP,
		Token:           rec.Token,
		Amount:          rec.Amount,
		Status:          rec.Status,
		SubmittedBy:     rec.SubmittedBy,
		Detail:          rec.Detail,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	if err := validateAddress("asset", asset); err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.node.TakeSnapshot(r.Context(), asset)
	if err != nil {
		s.writeError(w, r, nil, nodeErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, r, nil, http.StatusCreated, snapshotResponse{IPAsset: asset, SnapshotID: id})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, body, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := validateClaimRequest(req); err != nil {
		s.writeError(w, r, body, http.StatusBadRequest, err.Error())
		return
	}
	claims, err := s.node.ClaimRevenue(r.Context(), req.Claimer, req.IPAsset, req.SnapshotID, req.Tokens)
	if err != nil {
		s.writeError(w, r, body, nodeErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, r, body, http.StatusOK, claimResponse{
		IPAsset:    req.IPAsset,
		SnapshotID: req.SnapshotID,
		Claims:     claims,
	})
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	if err := validateAddress("asset", asset); err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, err.Error())
		return
	}
	info, err := s.node.Vault(r.Context(), asset)
	if err != nil {
		s.writeError(w, r, nil, nodeErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, r, nil, http.StatusOK, info)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if err := validateAddress("asset", asset); err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateAddress("token", token); err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := s.node.PendingRevenue(r.Context(), asset, token)
	if err != nil {
		s.writeError(w, r, nil, nodeErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, r, nil, http.StatusOK, map[string]string{
		"ipAsset": asset,
		"token":   token,
		"amount":  amount,
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	if err := validateAddress("asset", asset); err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, err.Error())
		return
	}
	info, err := s.node.Graph(r.Context(), asset)
	if err != nil {
		s.writeError(w, r, nil, nodeErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, r, nil, http.StatusOK, info)
}

func (s *Server) handleReconRun(w http.ResponseWriter, r *http.Request) {
	if s.recon == nil {
		s.writeError(w, r, nil, http.StatusServiceUnavailable, "reconciliation disabled")
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req reconRunRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, r, body, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}
	end := s.nowFn()
	if req.End != "" {
		parsed, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			s.writeError(w, r, body, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		end = parsed
	}
	start := end.Add(-24 * time.Hour)
	if req.Start != "" {
		parsed, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			s.writeError(w, r, body, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		start = parsed
	}
	if !start.Before(end) {
		s.writeError(w, r, body, http.StatusBadRequest, "start must precede end")
		return
	}
	result, err := s.recon.Run(r.Context(), ReconRunOptions{Start: start, End: end, DryRun: req.DryRun})
	if err != nil {
		s.logger.Error("recon run", "error", err)
		s.writeError(w, r, body, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	s.writeJSON(w, r, body, http.StatusOK, result)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, "read request body failed")
		return nil, false
	}
	return body, true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, reqBody []byte, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "encode response failed", http.StatusInternalServerError)
		return
	}
	s.writeJSONBytes(w, r, reqBody, status, data)
}

func (s *Server) writeJSONBytes(w http.ResponseWriter, r *http.Request, reqBody []byte, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", "error", err)
	}
	s.audit(r, reqBody, status, data)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, reqBody []byte, status int, message string) {
	s.writeJSON(w, r, reqBody, status, map[string]string{"error": message})
}

// audit runs on a background context so a canceled request cannot drop the entry.
func (s *Server) audit(r *http.Request, reqBody []byte, status int, respBody []byte) {
	entry := AuditEntry{
		Actor:          actor(r),
		Method:         r.Method,
		Path:           canonicalRequestPath(r),
		RequestBody:    string(reqBody),
		ResponseStatus: status,
		ResponseBody:   string(respBody),
		Timestamp:      s.nowFn(),
	}
	if err := s.store.InsertAudit(context.Background(), entry); err != nil {
		s.logger.Error("audit insert", "error", err)
	}
}

func actor(r *http.Request) string {
	if identity, ok := IdentityFromContext(r.Context()); ok {
		return identity.Subject
	}
	return ""
}

func canonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if r.URL.RawQuery == "" {
		return path
	}
	values := r.URL.Query()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		vals := append([]string(nil), values[key]...)
		sort.Strings(vals)
		for _, val := range vals {
			parts = append(parts, key+"="+val)
		}
	}
	return path + "?" + strings.Join(parts, "&")
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256([]byte(method + "\n" + path + "\n" + string(body)))
	return hex.EncodeToString(sum[:])
}

func nodeErrorStatus(err error) int {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) && nodeErr.Status >= 400 && nodeErr.Status < 500 {
		return nodeErr.Status
	}
	return http.StatusBadGateway
}

func validatePaymentRequest(req paymentRequest) error {
	if err := validateAddress("receiverIpAsset", req.ReceiverIPAsset); err != nil {
		return err
	}
	if req.PayerIPAsset != "" {
		if err := validateAddress("payerIpAsset", req.PayerIPAsset); err != nil {
			return err
		}
	}
	if err := validateAddress("token", req.Token); err != nil {
		return err
	}
	return validateAmount(req.Amount)
}

func validateFeeRequest(req feeRequest) error {
	if err := validateAddress("receiverIpAsset", req.ReceiverIPAsset); err != nil {
		return err
	}
	if err := validateAddress("payer", req.Payer); err != nil {
		return err
	}
	if err := validateAddress("token", req.Token); err != nil {
		return err
	}
	return validateAmount(req.Amount)
}

func validateClaimRequest(req claimRequest) error {
	if err := validateAddress("ipAsset", req.IPAsset); err != nil {
		return err
	}
	if err := validateAddress("claimer", req.Claimer); err != nil {
		return err
	}
	if req.SnapshotID == 0 {
		return errors.New("snapshotId required")
	}
	if len(req.Tokens) == 0 {
		return errors.New("tokens required")
	}
	for _, token := range req.Tokens {
		if err := validateAddress("token", token); err != nil {
			return err
		}
	}
	return nil
}

func validateAddress(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s required", field)
	}
	if _, err := crypto.DecodeAddress(value); err != nil {
		return fmt.Errorf("%s invalid: %v", field, err)
	}
	return nil
}

func validateAmount(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("amount %q is not a base-10 integer", raw)
	}
	if amount.Sign() <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}
