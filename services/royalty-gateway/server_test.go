package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ipchain/crypto"
)

func testAddr(tag byte) string {
	var raw [20]byte
	raw[0] = tag
	raw[19] = tag
	return crypto.NewAddress(crypto.IPPrefix, raw[:]).String()
}

var (
	testReceiverAddr = testAddr(0x01)
	testPayerIPAddr  = testAddr(0x02)
	testTokenAddr    = testAddr(0x03)
	testHolderAddr   = testAddr(0x04)
	testAccountAddr  = testAddr(0x05)
)

type stubNodeClient struct {
	payFn      func(ctx context.Context, caller, receiverIP, payerIP, token, amount string) error
	feeFn      func(ctx context.Context, caller, receiverIP, payer, token, amount string) error
	snapshotFn func(ctx context.Context, ipAsset string) (uint64, error)
	claimFn    func(ctx context.Context, claimer, ipAsset string, snapshotID uint64, tokens []string) ([]ClaimEntry, error)
	vaultFn    func(ctx context.Context, ipAsset string) (VaultInfo, error)
	pendingFn  func(ctx context.Context, ipAsset, token string) (string, error)
	graphFn    func(ctx context.Context, ipAsset string) (GraphInfo, error)
	eventsFn   func(ctx context.Context, cursor string) ([]EventEntry, error)

	payCalls int
	feeCalls int
}

func (s *stubNodeClient) PayRoyalty(ctx context.Context, caller, receiverIP, payerIP, token, amount string) error {
	s.payCalls++
	if s.payFn == nil {
		return nil
	}
	return s.payFn(ctx, caller, receiverIP, payerIP, token, amount)
}

func (s *stubNodeClient) PayMintingFee(ctx context.Context, caller, receiverIP, payer, token, amount string) error {
	s.feeCalls++
	if s.feeFn == nil {
		return nil
	}
	return s.feeFn(ctx, caller, receiverIP, payer, token, amount)
}

func (s *stubNodeClient) TakeSnapshot(ctx context.Context, ipAsset string) (uint64, error) {
	if s.snapshotFn == nil {
		return 1, nil
	}
	return s.snapshotFn(ctx, ipAsset)
}

func (s *stubNodeClient) ClaimRevenue(ctx context.Context, claimer, ipAsset string, snapshotID uint64, tokens []string) ([]ClaimEntry, error) {
	if s.claimFn == nil {
		return nil, nil
	}
	return s.claimFn(ctx, claimer, ipAsset, snapshotID, tokens)
}

func (s *stubNodeClient) Vault(ctx context.Context, ipAsset string) (VaultInfo, error) {
	if s.vaultFn == nil {
		return VaultInfo{IPAsset: ipAsset}, nil
	}
	return s.vaultFn(ctx, ipAsset)
}

func (s *stubNodeClient) PendingRevenue(ctx context.Context, ipAsset, token string) (string, error) {
	if s.pendingFn == nil {
		return "0", nil
	}
	return s.pendingFn(ctx, ipAsset, token)
}

func (s *stubNodeClient) Graph(ctx context.Context, ipAsset string) (GraphInfo, error) {
	if s.graphFn == nil {
		return GraphInfo{IPAsset: ipAsset}, nil
	}
	return s.graphFn(ctx, ipAsset)
}

func (s *stubNodeClient) ListEvents(ctx context.Context, cursor string) ([]EventEntry, error) {
	if s.eventsFn == nil {
		return nil, nil
	}
	return s.eventsFn(ctx, cursor)
}

type stubRecon struct {
	lastOpts ReconRunOptions
	result   ReconResult
	err      error
	calls    int
}

func (s *stubRecon) Run(ctx context.Context, opts ReconRunOptions) (ReconResult, error) {
	s.calls++
	s.lastOpts = opts
	if s.err != nil {
		return ReconResult{}, s.err
	}
	return s.result, nil
}

func newGatewayServer(t *testing.T, node NodeClient, recon ReconRunner) (*Server, *SQLiteStore) {
	t.Helper()
	store := newTestStore(t)
	seq := 0
	srv := NewServer(ServerConfig{
		Store:    store,
		Node:     node,
		Recon:    recon,
		Auth:     newTestAuthenticator(t),
		Limiter:  NewRateLimiter(6000, 100),
		Operator: testOperatorAddr,
		Now:      func() time.Time { return testAuthTime },
		NewID: func() string {
			seq++
			return fmt.Sprintf("payment-%d", seq)
		},
	})
	return srv, store
}

func doGatewayRequest(srv *Server, method, path, token string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	res := httptest.NewRecorder()
	srv.Handler().ServeHTTP(res, req)
	return res
}

func paymentBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(paymentRequest{
		ReceiverIPAsset: testReceiverAddr,
		PayerIPAsset:    testPayerIPAddr,
		Token:           testTokenAddr,
		Amount:          "2500",
	})
	if err != nil {
		t.Fatalf("marshal payment: %v", err)
	}
	return body
}

func TestHealthEndpointIsPublic(t *testing.T) {
	srv, _ := newGatewayServer(t, &stubNodeClient{}, nil)
	res := doGatewayRequest(srv, http.MethodGet, "/healthz", "", nil, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestCreatePaymentConfirmed(t *testing.T) {
	var gotCaller, gotReceiver, gotPayer, gotToken, gotAmount string
	node := &stubNodeClient{
		payFn: func(ctx context.Context, caller, receiverIP, payerIP, token, amount string) error {
			gotCaller, gotReceiver, gotPayer, gotToken, gotAmount = caller, receiverIP, payerIP, token, amount
			return nil
		},
	}
	srv, store := newGatewayServer(t, node, nil)

	res := doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer),
		paymentBody(t), map[string]string{"Idempotency-Key": "idem-1"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var resp paymentResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PaymentID != "payment-1" || resp.Status != StatusConfirmed {
		t.Fatalf("unexpected response %+v", resp)
	}

	if gotCaller != testOperatorAddr {
		t.Fatalf("expected operator caller, got %q", gotCaller)
	}
	if gotReceiver != testReceiverAddr || gotPayer != testPayerIPAddr {
		t.Fatalf("unexpected assets %q %q", gotReceiver, gotPayer)
	}
	if gotToken != testTokenAddr || gotAmount != "2500" {
		t.Fatalf("unexpected transfer %q %q", gotToken, gotAmount)
	}

	rec, err := store.GetPayment(context.Background(), "payment-1")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if rec == nil || rec.Status != StatusConfirmed {
		t.Fatalf("expected confirmed record, got %+v", rec)
	}
	if rec.SubmittedBy != "user-1" {
		t.Fatalf("expected submitter recorded, got %q", rec.SubmittedBy)
	}
}

func TestCreatePaymentIdempotentReplay(t *testing.T) {
	node := &stubNodeClient{}
	srv, _ := newGatewayServer(t, node, nil)
	body := paymentBody(t)
	headers := map[string]string{"Idempotency-Key": "idem-replay"}

	first := doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer), body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("first request failed: %s", first.Body.String())
	}
	second := doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer), body, headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay failed: %s", second.Body.String())
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatal("replay returned different body")
	}
	if node.payCalls != 1 {
		t.Fatalf("expected single node call, got %d", node.payCalls)
	}
}

func TestCreatePaymentKeyReuseConflicts(t *testing.T) {
	srv, _ := newGatewayServer(t, &stubNodeClient{}, nil)
	headers := map[string]string{"Idempotency-Key": "idem-conflict"}

	first := doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer), paymentBody(t), headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("first request failed: %s", first.Body.String())
	}
	other, _ := json.Marshal(paymentRequest{
		ReceiverIPAsset: testReceiverAddr,
		Token:           testTokenAddr,
		Amount:          "9999",
	})
	second := doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer), other, headers)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.Code)
	}
}

func TestCreatePaymentRequiresIdempotencyKey(t *testing.T) {
	node := &stubNodeClient{}
	srv, _ := newGatewayServer(t, node, nil)
	res := doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer), paymentBody(t), nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if node.payCalls != 0 {
		t.Fatal("node should not be called without idempotency key")
	}
}

func TestCreatePaymentRoleEnforcement(t *testing.T) {
	srv, _ := newGatewayServer(t, &stubNodeClient{}, nil)
	headers := map[string]string{"Idempotency-Key": "idem-role"}

	res := doGatewayRequest(srv, http.MethodPost, "/v1/payments", "", paymentBody(t), headers)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}
	res = doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RoleAuditor), paymentBody(t), headers)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for auditor, got %d", res.Code)
	}
	res = doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RoleAdmin), paymentBody(t), headers)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d", res.Code)
	}
}

func TestCreatePaymentRejectsBadRequest(t *testing.T) {
	node := &stubNodeClient{}
	srv, _ := newGatewayServer(t, node, nil)
	headers := map[string]string{"Idempotency-Key": "idem-bad"}

	bad, _ := json.Marshal(paymentRequest{
		ReceiverIPAsset: testReceiverAddr,
		Token:           testTokenAddr,
		Amount:          "-5",
	})
	res := doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer), bad, headers)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
	}

	bad, _ = json.Marshal(paymentRequest{
		ReceiverIPAsset: "ip1garbage",
		Token:           testTokenAddr,
		Amount:          "10",
	})
	res = doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer), bad, map[string]string{"Idempotency-Key": "idem-bad2"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", res.Code)
	}
	if node.payCalls != 0 {
		t.Fatal("node should not be called for invalid requests")
	}
}

func TestCreatePaymentNodeRejectionMarksFailed(t *testing.T) {
	node := &stubNodeClient{
		payFn: func(ctx context.Context, caller, receiverIP, payerIP, token, amount string) error {
			return &NodeError{Status: http.StatusNotFound, Code: -32000, Message: "vault not found"}
		},
	}
	srv, store := newGatewayServer(t, node, nil)

	res := doGatewayRequest(srv, http.MethodPost, "/v1/payments", mintToken(t, RolePayer),
		paymentBody(t), map[string]string{"Idempotency-Key": "idem-fail"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	var resp paymentResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusFailed || resp.Detail == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec, err := store.GetPayment(context.Background(), resp.PaymentID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("expected failed record, got %s", rec.Status)
	}
}

func TestCreateFeeRoutesToMintingFee(t *testing.T) {
	var gotPayer string
	node := &stubNodeClient{
		feeFn: func(ctx context.Context, caller, receiverIP, payer, token, amount string) error {
			gotPayer = payer
			return nil
		},
	}
	srv, _ := newGatewayServer(t, node, nil)

	body, _ := json.Marshal(feeRequest{
		ReceiverIPAsset: testReceiverAddr,
		Payer:           testAccountAddr,
		Token:           testTokenAddr,
		Amount:          "400",
	})
	res := doGatewayRequest(srv, http.MethodPost, "/v1/fees", mintToken(t, RolePayer),
		body, map[string]string{"Idempotency-Key": "idem-fee"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if node.feeCalls != 1 || gotPayer != testAccountAddr {
		t.Fatalf("unexpected fee call state calls=%d payer=%q", node.feeCalls, gotPayer)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	node := &stubNodeClient{
		snapshotFn: func(ctx context.Context, ipAsset string) (uint64, error) {
			return 9, nil
		},
	}
	srv, _ := newGatewayServer(t, node, nil)

	res := doGatewayRequest(srv, http.MethodPost, "/v1/vaults/"+testReceiverAddr+"/snapshots",
		mintToken(t, RoleTreasurer), nil, nil)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var resp snapshotResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SnapshotID != 9 || resp.IPAsset != testReceiverAddr {
		t.Fatalf("unexpected response %+v", resp)
	}

	// payer cannot trigger snapshots
	res = doGatewayRequest(srv, http.MethodPost, "/v1/vaults/"+testReceiverAddr+"/snapshots",
		mintToken(t, RolePayer), nil, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for payer, got %d", res.Code)
	}
}

func TestSnapshotCooldownPassesThrough(t *testing.T) {
	node := &stubNodeClient{
		snapshotFn: func(ctx context.Context, ipAsset string) (uint64, error) {
			return 0, &NodeError{Status: http.StatusTooManyRequests, Code: -32020, Message: "snapshot cooldown active"}
		},
	}
	srv, _ := newGatewayServer(t, node, nil)
	res := doGatewayRequest(srv, http.MethodPost, "/v1/vaults/"+testReceiverAddr+"/snapshots",
		mintToken(t, RoleTreasurer), nil, nil)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.Code)
	}
}

func TestClaimEndpoint(t *testing.T) {
	var gotClaimer string
	var gotSnapshot uint64
	node := &stubNodeClient{
		claimFn: func(ctx context.Context, claimer, ipAsset string, snapshotID uint64, tokens []string) ([]ClaimEntry, error) {
			gotClaimer = claimer
			gotSnapshot = snapshotID
			return []ClaimEntry{{Token: tokens[0], Amount: "1250"}}, nil
		},
	}
	srv, _ := newGatewayServer(t, node, nil)

	body, _ := json.Marshal(claimRequest{
		IPAsset:    testReceiverAddr,
		Claimer:    testHolderAddr,
		SnapshotID: 3,
		Tokens:     []string{testTokenAddr},
	})
	res := doGatewayRequest(srv, http.MethodPost, "/v1/claims", mintToken(t, RoleTreasurer), body, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp claimResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Claims) != 1 || resp.Claims[0].Amount != "1250" {
		t.Fatalf("unexpected claims %+v", resp.Claims)
	}
	if gotClaimer != testHolderAddr || gotSnapshot != 3 {
		t.Fatalf("unexpected forwarding claimer=%q snapshot=%d", gotClaimer, gotSnapshot)
	}

	// snapshot id zero is rejected before hitting the node
	body, _ = json.Marshal(claimRequest{
		IPAsset: testReceiverAddr,
		Claimer: testHolderAddr,
		Tokens:  []string{testTokenAddr},
	})
	res = doGatewayRequest(srv, http.MethodPost, "/v1/claims", mintToken(t, RoleTreasurer), body, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestVaultAndGraphQueries(t *testing.T) {
	node := &stubNodeClient{
		vaultFn: func(ctx context.Context, ipAsset string) (VaultInfo, error) {
			return VaultInfo{IPAsset: ipAsset, Vault: "rtv1example", CreatedAt: 42, SnapshotCount: 2}, nil
		},
		graphFn: func(ctx context.Context, ipAsset string) (GraphInfo, error) {
			return GraphInfo{IPAsset: ipAsset, Parents: []string{testPayerIPAddr}, Ancestors: []string{testPayerIPAddr}}, nil
		},
	}
	srv, _ := newGatewayServer(t, node, nil)

	res := doGatewayRequest(srv, http.MethodGet, "/v1/vaults/"+testReceiverAddr, mintToken(t, RoleAuditor), nil, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("vault query failed: %d %s", res.Code, res.Body.String())
	}
	var vault VaultInfo
	if err := json.Unmarshal(res.Body.Bytes(), &vault); err != nil {
		t.Fatalf("decode vault: %v", err)
	}
	if vault.SnapshotCount != 2 || vault.Vault != "rtv1example" {
		t.Fatalf("unexpected vault %+v", vault)
	}

	res = doGatewayRequest(srv, http.MethodGet, "/v1/assets/"+testReceiverAddr+"/graph", mintToken(t, RoleAuditor), nil, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("graph query failed: %d %s", res.Code, res.Body.String())
	}
	var graph GraphInfo
	if err := json.Unmarshal(res.Body.Bytes(), &graph); err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	if len(graph.Parents) != 1 || graph.Parents[0] != testPayerIPAddr {
		t.Fatalf("unexpected graph %+v", graph)
	}
}

func TestPendingRevenueQuery(t *testing.T) {
	node := &stubNodeClient{
		pendingFn: func(ctx context.Context, ipAsset, token string) (string, error) {
			return "777", nil
		},
	}
	srv, _ := newGatewayServer(t, node, nil)

	res := doGatewayRequest(srv, http.MethodGet,
		"/v1/vaults/"+testReceiverAddr+"/pending?token="+testTokenAddr, mintToken(t, RoleAuditor), nil, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("pending query failed: %d %s", res.Code, res.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["amount"] != "777" {
		t.Fatalf("unexpected amount %q", resp["amount"])
	}

	// token query parameter is mandatory
	res = doGatewayRequest(srv, http.MethodGet, "/v1/vaults/"+testReceiverAddr+"/pending",
		mintToken(t, RoleAuditor), nil, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", res.Code)
	}
}

func TestGetPaymentEndpoint(t *testing.T) {
	srv, store := newGatewayServer(t, &stubNodeClient{}, nil)
	rec := PaymentRecord{
		ID:          "pay-lookup",
		Kind:        KindRoyalty,
		ReceiverIP:  testReceiverAddr,
		Token:       testTokenAddr,
		Amount:      "55",
		Status:      StatusConfirmed,
		SubmittedBy: "user-1",
		CreatedAt:   testAuthTime,
		UpdatedAt:   testAuthTime,
	}
	if err := store.InsertPayment(context.Background(), rec); err != nil {
		t.Fatalf("insert payment: %v", err)
	}

	res := doGatewayRequest(srv, http.MethodGet, "/v1/payments/pay-lookup", mintToken(t, RoleAuditor), nil, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var detail paymentDetail
	if err := json.Unmarshal(res.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.PaymentID != "pay-lookup" || detail.Amount != "55" {
		t.Fatalf("unexpected detail %+v", detail)
	}

	res = doGatewayRequest(srv, http.MethodGet, "/v1/payments/nope", mintToken(t, RoleAuditor), nil, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestReconRunEndpoint(t *testing.T) {
	recon := &stubRecon{result: ReconResult{Rows: 4}}
	srv, _ := newGatewayServer(t, &stubNodeClient{}, recon)

	res := doGatewayRequest(srv, http.MethodPost, "/v1/recon/run", mintToken(t, RoleAuditor), []byte(`{}`), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if recon.calls != 1 {
		t.Fatalf("expected recon invoked once, got %d", recon.calls)
	}
	if !recon.lastOpts.End.Equal(testAuthTime) {
		t.Fatalf("unexpected window end %s", recon.lastOpts.End)
	}
	if !recon.lastOpts.Start.Equal(testAuthTime.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected window start %s", recon.lastOpts.Start)
	}
	var result ReconResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Rows != 4 {
		t.Fatalf("unexpected rows %d", result.Rows)
	}

	// explicit window
	body := []byte(`{"start":"2025-04-10T00:00:00Z","end":"2025-04-11T00:00:00Z","dryRun":true}`)
	res = doGatewayRequest(srv, http.MethodPost, "/v1/recon/run", mintToken(t, RoleAuditor), body, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !recon.lastOpts.DryRun {
		t.Fatal("expected dry run forwarded")
	}
	if recon.lastOpts.Start.Format(time.RFC3339) != "2025-04-10T00:00:00Z" {
		t.Fatalf("unexpected start %s", recon.lastOpts.Start)
	}

	// payer role cannot trigger reconciliation
	res = doGatewayRequest(srv, http.MethodPost, "/v1/recon/run", mintToken(t, RolePayer), []byte(`{}`), nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}
