package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// NodeClient is the operations the gateway needs from the registry node.
type NodeClient interface {
	PayRoyalty(ctx context.Context, caller, receiverIP, payerIP, token, amount string) error
	PayMintingFee(ctx context.Context, caller, receiverIP, payer, token, amount string) error
	TakeSnapshot(ctx context.Context, ipAsset string) (uint64, error)
	ClaimRevenue(ctx context.Context, claimer, ipAsset string, snapshotID uint64, tokens []string) ([]ClaimEntry, error)
	Vault(ctx context.Context, ipAsset string) (VaultInfo, error)
	PendingRevenue(ctx context.Context, ipAsset, token string) (string, error)
	Graph(ctx context.Context, ipAsset string) (GraphInfo, error)
	ListEvents(ctx context.Context, cursor string) ([]EventEntry, error)
}

// ClaimEntry is one token payout from a revenue claim.
type ClaimEntry struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// VaultInfo mirrors the node's vault query result.
type VaultInfo struct {
	IPAsset        string `json:"ipAsset"`
	Vault          string `json:"vault"`
	CreatedAt      uint64 `json:"createdAt"`
	SnapshotCount  uint64 `json:"snapshotCount"`
	LastSnapshotAt uint64 `json:"lastSnapshotAt,omitempty"`
}

// GraphInfo mirrors the node's ancestry query result.
type GraphInfo struct {
	IPAsset   string   `json:"ipAsset"`
	Parents   []string `json:"parents"`
	Ancestors []string `json:"ancestors"`
	Policies  []string `json:"policies"`
}

// EventEntry is one entry from the node's royalty event stream.
type EventEntry struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Timestamp  int64             `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// RPCClient speaks JSON-RPC to an ipchain node.
type RPCClient struct {
	url        string
	authToken  string
	httpClient *http.Client
	nextID     atomic.Int64
}

// RPCClientConfig configures the node client.
type RPCClientConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

// NewRPCClient builds a client for the node at cfg.URL.
func NewRPCClient(cfg RPCClientConfig) *RPCClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RPCClient{
		url:        cfg.URL,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NodeError is a JSON-RPC error envelope returned by the node.
type NodeError struct {
	Status  int
	Code    int
	Message string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("noderpc: error %d %s", e.Code, e.Message)
}

func (c *RPCClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  []interface{}{params},
	})
	if err != nil {
		return fmt.Errorf("noderpc: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("noderpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("noderpc: %w", err)
	}
	defer resp.Body.Close()
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("noderpc: decode response: %w", err)
	}
	if decoded.Error != nil {
		return &NodeError{Status: resp.StatusCode, Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("noderpc: decode result: %w", err)
		}
	}
	return nil
}

// PayRoyalty submits royalty_payRoyaltyOnBehalf.
func (c *RPCClient) PayRoyalty(ctx context.Context, caller, receiverIP, payerIP, token, amount string) error {
	params := map[string]string{
		"caller":          caller,
		"receiverIpAsset": receiverIP,
		"token":           token,
		"amount":          amount,
	}
	if payerIP != "" {
		params["payerIpAsset"] = payerIP
	}
	var result string
	return c.call(ctx, "royalty_payRoyaltyOnBehalf", params, &result)
}

// PayMintingFee submits royalty_payLicenseMintingFee.
func (c *RPCClient) PayMintingFee(ctx context.Context, caller, receiverIP, payer, token, amount string) error {
	params := map[string]string{
		"caller":          caller,
		"receiverIpAsset": receiverIP,
		"payer":           payer,
		"token":           token,
		"amount":          amount,
	}
	var result string
	return c.call(ctx, "royalty_payLicenseMintingFee", params, &result)
}

// TakeSnapshot triggers royalty_snapshot and returns the new snapshot id.
func (c *RPCClient) TakeSnapshot(ctx context.Context, ipAsset string) (uint64, error) {
	var result struct {
		SnapshotID uint64 `json:"snapshotId"`
	}
	err := c.call(ctx, "royalty_snapshot", map[string]string{"ipAsset": ipAsset}, &result)
	if err != nil {
		return 0, err
	}
	return result.SnapshotID, nil
}

// ClaimRevenue submits royalty_claimRevenue for the caller.
func (c *RPCClient) ClaimRevenue(ctx context.Context, claimer, ipAsset string, snapshotID uint64, tokens []string) ([]ClaimEntry, error) {
	params := map[string]interface{}{
		"claimer":    claimer,
		"ipAsset":    ipAsset,
		"snapshotId": snapshotID,
		"tokens":     tokens,
	}
	var result []ClaimEntry
	if err := c.call(ctx, "royalty_claimRevenue", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Vault fetches royalty_getVault for an IP asset.
func (c *RPCClient) Vault(ctx context.Context, ipAsset string) (VaultInfo, error) {
	var result VaultInfo
	err := c.call(ctx, "royalty_getVault", map[string]string{"ipAsset": ipAsset}, &result)
	return result, err
}

// PendingRevenue fetches royalty_getPendingRevenue for a vault token.
func (c *RPCClient) PendingRevenue(ctx context.Context, ipAsset, token string) (string, error) {
	var result struct {
		Amount string `json:"amount"`
	}
	params := map[string]string{"ipAsset": ipAsset, "token": token}
	if err := c.call(ctx, "royalty_getPendingRevenue", params, &result); err != nil {
		return "", err
	}
	return result.Amount, nil
}

// Graph fetches royalty_getGraph for an IP asset.
func (c *RPCClient) Graph(ctx context.Context, ipAsset string) (GraphInfo, error) {
	var result GraphInfo
	err := c.call(ctx, "royalty_getGraph", map[string]string{"ipAsset": ipAsset}, &result)
	return result, err
}

// ListEvents pages the royalty event stream starting after cursor.
func (c *RPCClient) ListEvents(ctx context.Context, cursor string) ([]EventEntry, error) {
	params := map[string]string{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	var result []EventEntry
	if err := c.call(ctx, "royalty_listEvents", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}
