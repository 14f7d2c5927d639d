package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ipchain/crypto"
	"ipchain/native/royalty"
	"ipchain/observability"
)

type graphLimitsParams struct {
	Caller                 string `json:"caller"`
	MaxParents             uint64 `json:"maxParents"`
	MaxAncestors           uint64 `json:"maxAncestors"`
	MaxAccumulatedPolicies uint64 `json:"maxAccumulatedPolicies"`
}

type policyWhitelistParams struct {
	Caller  string `json:"caller"`
	Policy  string `json:"policy"`
	Allowed bool   `json:"allowed"`
}

type tokenWhitelistParams struct {
	Caller  string `json:"caller"`
	Token   string `json:"token"`
	Allowed bool   `json:"allowed"`
}

type externalPolicyParams struct {
	Caller string `json:"caller"`
	Policy string `json:"policy"`
}

type licenseMintingParams struct {
	Caller       string `json:"caller"`
	IPAsset      string `json:"ipAsset"`
	Policy       string `json:"policy"`
	Percent      uint64 `json:"percent"`
	ExternalData string `json:"externalData,omitempty"`
}

type linkToParentsParams struct {
	Caller       string   `json:"caller"`
	IPAsset      string   `json:"ipAsset"`
	Parents      []string `json:"parents"`
	Policies     []string `json:"policies"`
	Percents     []uint64 `json:"percents"`
	ExternalData string   `json:"externalData,omitempty"`
}

type payRoyaltyParams struct {
	Caller          string `json:"caller"`
	ReceiverIPAsset string `json:"receiverIpAsset"`
	PayerIPAsset    string `json:"payerIpAsset,omitempty"`
	Token           string `json:"token"`
	Amount          string `json:"amount"`
}

type payMintingFeeParams struct {
	Caller          string `json:"caller"`
	ReceiverIPAsset string `json:"receiverIpAsset"`
	Payer           string `json:"payer"`
	Token           string `json:"token"`
	Amount          string `json:"amount"`
}

type snapshotParams struct {
	IPAsset string `json:"ipAsset"`
}

type claimRevenueParams struct {
	Claimer    string   `json:"claimer"`
	IPAsset    string   `json:"ipAsset"`
	SnapshotID uint64   `json:"snapshotId"`
	Tokens     []string `json:"tokens"`
}

type claimAsAncestorParams struct {
	ChildIPAsset    string   `json:"childIpAsset"`
	AncestorIPAsset string   `json:"ancestorIpAsset"`
	SnapshotID      uint64   `json:"snapshotId"`
	Tokens          []string `json:"tokens"`
}

type collectTokensParams struct {
	Policy          string `json:"policy"`
	ChildIPAsset    string `json:"childIpAsset"`
	AncestorIPAsset string `json:"ancestorIpAsset"`
}

type mintTokenParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type policyQueryParams struct {
	Policy string `json:"policy"`
}

type tokenQueryParams struct {
	Token string `json:"token"`
}

type assetQueryParams struct {
	IPAsset string `json:"ipAsset"`
}

type lapQueryParams struct {
	Policy  string `json:"policy"`
	IPAsset string `json:"ipAsset"`
}

type rtBalanceParams struct {
	IPAsset string `json:"ipAsset"`
	Holder  string `json:"holder"`
}

type pendingRevenueParams struct {
	IPAsset string `json:"ipAsset"`
	Token   string `json:"token"`
}

type snapshotQueryParams struct {
	IPAsset    string `json:"ipAsset"`
	SnapshotID uint64 `json:"snapshotId"`
}

type claimQueryParams struct {
	IPAsset    string `json:"ipAsset"`
	SnapshotID uint64 `json:"snapshotId"`
	Token      string `json:"token"`
	Claimer    string `json:"claimer"`
}

type tokenBalanceParams struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type listEventsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

func (s *Server) handleSetIpGraphLimits(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params graphLimitsParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	limits := royalty.GraphLimits{
		MaxParents:             params.MaxParents,
		MaxAncestors:           params.MaxAncestors,
		MaxAccumulatedPolicies: params.MaxAccumulatedPolicies,
	}
	if err := s.node.SetIpGraphLimits(caller, limits); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleWhitelistPolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params policyWhitelistParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	policy, err := decodeBech32(params.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy address", err.Error())
		return
	}
	if err := s.node.WhitelistRoyaltyPolicy(caller, policy, params.Allowed); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleWhitelistToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenWhitelistParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	token, err := decodeBech32(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	if err := s.node.WhitelistRoyaltyToken(caller, token, params.Allowed); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleRegisterExternalPolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params externalPolicyParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	policy, err := decodeBech32(params.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy address", err.Error())
		return
	}
	if err := s.node.RegisterExternalRoyaltyPolicy(caller, policy); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleOnLicenseMinting(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params licenseMintingParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	policy, err := decodeBech32(params.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy address", err.Error())
		return
	}
	externalData, err := decodeOptionalHex(params.ExternalData)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid externalData", err.Error())
		return
	}
	if err := s.node.OnLicenseMinting(caller, ip, policy, params.Percent, externalData); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	vault, ok, err := s.node.VaultOf(ip)
	if err != nil || !ok {
		writeResult(w, req.ID, "ok")
		return
	}
	writeResult(w, req.ID, vaultResultFrom(vault))
}

func (s *Server) handleOnLinkToParents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params linkToParentsParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	parents, err := decodeBech32List(params.Parents)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parent address", err.Error())
		return
	}
	policies, err := decodeBech32List(params.Policies)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy address", err.Error())
		return
	}
	externalData, err := decodeOptionalHex(params.ExternalData)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid externalData", err.Error())
		return
	}
	if err := s.node.OnLinkToParents(caller, ip, parents, policies, params.Percents, externalData); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	graph, err := s.node.IPGraphOf(ip)
	if err != nil {
		writeResult(w, req.ID, "ok")
		return
	}
	writeResult(w, req.ID, graphResultFrom(ip, graph))
}

func (s *Server) handlePayRoyaltyOnBehalf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params payRoyaltyParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	receiver, err := decodeBech32(params.ReceiverIPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid receiverIpAsset address", err.Error())
		return
	}
	payer, err := decodeOptionalBech32(params.PayerIPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payerIpAsset address", err.Error())
		return
	}
	token, err := decodeBech32(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	source := s.clientSource(r)
	if !s.allowSource(source, time.Now()) {
		observability.RPCMetrics().RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "payment rate limit exceeded", source)
		return
	}
	if err := s.node.PayRoyaltyOnBehalf(caller, receiver, payer, token, amount); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handlePayLicenseMintingFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params payMintingFeeParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	receiver, err := decodeBech32(params.ReceiverIPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid receiverIpAsset address", err.Error())
		return
	}
	payer, err := decodeBech32(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payer address", err.Error())
		return
	}
	token, err := decodeBech32(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.PayLicenseMintingFee(caller, receiver, payer, token, amount); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params snapshotParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	id, err := s.node.TakeSnapshot(ip)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"snapshotId": id})
}

func (s *Server) handleClaimRevenue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimRevenueParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	claimer, err := decodeBech32(params.Claimer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid claimer address", err.Error())
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	tokens, err := decodeBech32List(params.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	amounts, err := s.node.ClaimRevenueByTokenBatch(claimer, ip, params.SnapshotID, tokens)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimResultsFrom(tokens, amounts))
}

func (s *Server) handleClaimAsAncestor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimAsAncestorParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	child, err := decodeBech32(params.ChildIPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid childIpAsset address", err.Error())
		return
	}
	ancestor, err := decodeBech32(params.AncestorIPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ancestorIpAsset address", err.Error())
		return
	}
	tokens, err := decodeBech32List(params.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	amounts, err := s.node.ClaimBySnapshotBatchAsSelf(child, ancestor, params.SnapshotID, tokens)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimResultsFrom(tokens, amounts))
}

func (s *Server) handleCollectTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params collectTokensParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	policy, err := decodeBech32(params.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy address", err.Error())
		return
	}
	child, err := decodeBech32(params.ChildIPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid childIpAsset address", err.Error())
		return
	}
	ancestor, err := decodeBech32(params.AncestorIPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ancestorIpAsset address", err.Error())
		return
	}
	amount, err := s.node.CollectRoyaltyTokens(policy, child, ancestor)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": formatBigInt(amount)})
}

func (s *Server) handleMintToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintTokenParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	token, err := decodeBech32(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	to, err := decodeBech32(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.MintToken(caller, token, to, amount); err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleGetLimits(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	limits, err := s.node.GraphLimits()
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, LimitsResult{
		MaxParents:             limits.MaxParents,
		MaxAncestors:           limits.MaxAncestors,
		MaxAccumulatedPolicies: limits.MaxAccumulatedPolicies,
	})
}

func (s *Server) handleIsWhitelistedPolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params policyQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	policy, err := decodeBech32(params.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy address", err.Error())
		return
	}
	ok, err := s.node.IsWhitelistedPolicy(policy)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) handleIsWhitelistedToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	token, err := decodeBech32(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	ok, err := s.node.IsWhitelistedToken(token)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) handleIsExternalPolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params policyQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	policy, err := decodeBech32(params.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy address", err.Error())
		return
	}
	ok, err := s.node.IsExternalPolicy(policy)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) handleGetVault(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	vault, ok, err := s.node.VaultOf(ip)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "vault not found", params.IPAsset)
		return
	}
	writeResult(w, req.ID, vaultResultFrom(vault))
}

func (s *Server) handleGetGraph(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	graph, err := s.node.IPGraphOf(ip)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, graphResultFrom(ip, graph))
}

func (s *Server) handleGetLapRoyalty(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lapQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	policy, err := decodeBech32(params.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy address", err.Error())
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	rec, ok, err := s.node.LAPRoyalty(policy, ip)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "royalty record not found", params.IPAsset)
		return
	}
	writeResult(w, req.ID, lapRoyaltyResultFrom(policy, ip, rec))
}

func (s *Server) handleGetRtBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rtBalanceParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	holder, err := decodeBech32(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder address", err.Error())
		return
	}
	balance, err := s.node.RTBalanceOf(ip, holder)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": formatBigInt(balance)})
}

func (s *Server) handleGetPendingRevenue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pendingRevenueParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	token, err := decodeBech32(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	amount, err := s.node.PendingRevenueOf(ip, token)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": formatBigInt(amount)})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params snapshotQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return
	}
	snap, err := s.node.VaultSnapshot(ip, params.SnapshotID)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, snapshotResultFrom(ip, snap))
}

func (s *Server) handleClaimableRevenue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	ip, token, claimer, ok := decodeClaimQuery(w, req, &params)
	if !ok {
		return
	}
	amount, err := s.node.ClaimableRevenue(ip, params.SnapshotID, token, claimer)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": formatBigInt(amount)})
}

func (s *Server) handleIsClaimed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimQueryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	ip, token, claimer, ok := decodeClaimQuery(w, req, &params)
	if !ok {
		return
	}
	claimed, err := s.node.RevenueClaimed(ip, params.SnapshotID, token, claimer)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimed)
}

func (s *Server) handleGetTokenBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	token, err := decodeBech32(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.node.TokenBalanceOf(token, addr)
	if err != nil {
		writeRoyaltyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": formatBigInt(balance)})
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "too many parameters", nil)
		return
	}
	var params listEventsParams
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
			return
		}
	}
	entries := s.node.EventsSince(strings.TrimSpace(params.Cursor))
	results := make([]EventResult, len(entries))
	for i := range entries {
		results[i] = eventResultFrom(entries[i])
	}
	writeResult(w, req.ID, results)
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func decodeClaimQuery(w http.ResponseWriter, req *RPCRequest, params *claimQueryParams) ([20]byte, [20]byte, [20]byte, bool) {
	var zero [20]byte
	ip, err := decodeBech32(params.IPAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ipAsset address", err.Error())
		return zero, zero, zero, false
	}
	token, err := decodeBech32(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return zero, zero, zero, false
	}
	claimer, err := decodeBech32(params.Claimer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid claimer address", err.Error())
		return zero, zero, zero, false
	}
	return ip, token, claimer, true
}

func writeRoyaltyError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, royalty.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, royalty.ErrVaultNotFound),
		errors.Is(err, royalty.ErrSnapshotNotFound),
		errors.Is(err, royalty.ErrNotAncestor):
		writeError(w, http.StatusNotFound, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, royalty.ErrPolicyAlreadyRegistered),
		errors.Is(err, royalty.ErrAlreadyClaimed),
		errors.Is(err, royalty.ErrAlreadyCollected):
		writeError(w, http.StatusConflict, id, codeDuplicate, err.Error(), nil)
	case errors.Is(err, royalty.ErrSnapshotCooldown):
		writeError(w, http.StatusTooManyRequests, id, codeRateLimited, err.Error(), nil)
	case errors.Is(err, royalty.ErrPolicyNotWhitelisted),
		errors.Is(err, royalty.ErrTokenNotWhitelisted),
		errors.Is(err, royalty.ErrAboveParentLimit),
		errors.Is(err, royalty.ErrAboveAncestorLimit),
		errors.Is(err, royalty.ErrAbovePolicyLimit),
		errors.Is(err, royalty.ErrAbovePercentLimit),
		errors.Is(err, royalty.ErrInvalidLimits),
		errors.Is(err, royalty.ErrArrayLengthMismatch),
		errors.Is(err, royalty.ErrNoParents),
		errors.Is(err, royalty.ErrDuplicateParent),
		errors.Is(err, royalty.ErrSelfLink),
		errors.Is(err, royalty.ErrIPUnlinkable),
		errors.Is(err, royalty.ErrUnlinkableToParent),
		errors.Is(err, royalty.ErrNoRTBalance),
		errors.Is(err, royalty.ErrInsufficientBalance),
		errors.Is(err, royalty.ErrZeroAmount),
		errors.Is(err, royalty.ErrZeroAddress):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "royalty operation failed", err.Error())
	}
}

func decodeBech32(addr string) ([20]byte, error) {
	var zero [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(addr))
	if err != nil {
		return zero, err
	}
	copy(zero[:], decoded.Bytes())
	return zero, nil
}

func decodeOptionalBech32(addr string) ([20]byte, error) {
	if strings.TrimSpace(addr) == "" {
		return [20]byte{}, nil
	}
	return decodeBech32(addr)
}

func decodeBech32List(addrs []string) ([][20]byte, error) {
	out := make([][20]byte, len(addrs))
	for i := range addrs {
		decoded, err := decodeBech32(addrs[i])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = decoded
	}
	return out, nil
}

func decodeOptionalHex(value string) ([]byte, error) {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.TrimPrefix(cleaned, "0x")
	if cleaned == "" {
		return nil, nil
	}
	return hex.DecodeString(cleaned)
}
