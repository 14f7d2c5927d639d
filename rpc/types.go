package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"ipchain/core"
	"ipchain/crypto"
	"ipchain/native/royalty"
)

// LimitsResult mirrors the ancestry ceilings enforced on linking.
type LimitsResult struct {
	MaxParents             uint64 `json:"maxParents"`
	MaxAncestors           uint64 `json:"maxAncestors"`
	MaxAccumulatedPolicies uint64 `json:"maxAccumulatedPolicies"`
}

// VaultResult summarises a royalty vault for RPC consumers.
type VaultResult struct {
	IPAsset        string `json:"ipAsset"`
	Vault          string `json:"vault"`
	CreatedAt      uint64 `json:"createdAt"`
	SnapshotCount  uint64 `json:"snapshotCount"`
	LastSnapshotAt uint64 `json:"lastSnapshotAt,omitempty"`
}

// GraphResult reflects the recorded ancestry of an IP asset.
type GraphResult struct {
	IPAsset   string   `json:"ipAsset"`
	Parents   []string `json:"parents"`
	Ancestors []string `json:"ancestors"`
	Policies  []string `json:"policies"`
}

type LapAncestorResult struct {
	Address   string `json:"address"`
	Percent   uint64 `json:"percent"`
	Collected bool   `json:"collected"`
}

// LapRoyaltyResult exposes the per-policy royalty bookkeeping of an asset.
type LapRoyaltyResult struct {
	IPAsset      string              `json:"ipAsset"`
	Policy       string              `json:"policy"`
	Unlinkable   bool                `json:"unlinkable"`
	RoyaltyStack uint64              `json:"royaltyStack"`
	Ancestors    []LapAncestorResult `json:"ancestors"`
}

type HolderResult struct {
	Holder  string `json:"holder"`
	Balance string `json:"balance"`
}

type RevenueResult struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// SnapshotResult is the frozen holder and revenue table of one snapshot.
type SnapshotResult struct {
	IPAsset    string          `json:"ipAsset"`
	SnapshotID uint64          `json:"snapshotId"`
	Timestamp  uint64          `json:"timestamp"`
	Digest     string          `json:"digest"`
	Holders    []HolderResult  `json:"holders"`
	Revenue    []RevenueResult `json:"revenue"`
}

type ClaimResult struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// EventResult is one entry of the royalty event stream.
type EventResult struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Timestamp  int64             `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func formatAccount(addr [20]byte) string {
	return crypto.NewAddress(crypto.IPPrefix, addr[:]).String()
}

func formatVault(addr [20]byte) string {
	return crypto.NewAddress(crypto.VaultPrefix, addr[:]).String()
}

func formatAccounts(addrs [][20]byte) []string {
	out := make([]string, len(addrs))
	for i := range addrs {
		out[i] = formatAccount(addrs[i])
	}
	return out
}

func formatBigInt(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func vaultResultFrom(vault *royalty.Vault) VaultResult {
	return VaultResult{
		IPAsset:        formatAccount(vault.IPAsset),
		Vault:          formatVault(vault.Address),
		CreatedAt:      vault.CreatedAt,
		SnapshotCount:  vault.SnapshotCount,
		LastSnapshotAt: vault.LastSnapshotAt,
	}
}

func graphResultFrom(ip [20]byte, graph *royalty.IPGraph) GraphResult {
	return GraphResult{
		IPAsset:   formatAccount(ip),
		Parents:   formatAccounts(graph.Parents),
		Ancestors: formatAccounts(graph.Ancestors),
		Policies:  formatAccounts(graph.Policies),
	}
}

func lapRoyaltyResultFrom(policy, ip [20]byte, rec *royalty.LAPRecord) LapRoyaltyResult {
	ancestors := make([]LapAncestorResult, len(rec.Ancestors))
	for i := range rec.Ancestors {
		ancestors[i] = LapAncestorResult{
			Address:   formatAccount(rec.Ancestors[i]),
			Percent:   rec.AncestorPercents[i],
			Collected: rec.Collected[i],
		}
	}
	return LapRoyaltyResult{
		IPAsset:      formatAccount(ip),
		Policy:       formatAccount(policy),
		Unlinkable:   rec.Unlinkable,
		RoyaltyStack: rec.RoyaltyStack,
		Ancestors:    ancestors,
	}
}

func snapshotResultFrom(ip [20]byte, snap *royalty.Snapshot) SnapshotResult {
	holders := make([]HolderResult, len(snap.Holders))
	for i := range snap.Holders {
		holders[i] = HolderResult{
			Holder:  formatAccount(snap.Holders[i].Holder),
			Balance: formatBigInt(snap.Holders[i].Balance),
		}
	}
	revenue := make([]RevenueResult, len(snap.Revenue))
	for i := range snap.Revenue {
		revenue[i] = RevenueResult{
			Token:  formatAccount(snap.Revenue[i].Token),
			Amount: formatBigInt(snap.Revenue[i].Amount),
		}
	}
	return SnapshotResult{
		IPAsset:    formatAccount(ip),
		SnapshotID: snap.ID,
		Timestamp:  snap.Timestamp,
		Digest:     "0x" + hex.EncodeToString(snap.Digest[:]),
		Holders:    holders,
		Revenue:    revenue,
	}
}

func eventResultFrom(entry core.StoredEvent) EventResult {
	attributes := make(map[string]string, len(entry.Event.Attributes))
	for k, v := range entry.Event.Attributes {
		attributes[k] = v
	}
	return EventResult{
		Sequence:   entry.Sequence,
		Cursor:     entry.Cursor,
		Timestamp:  entry.Timestamp,
		Type:       entry.Event.Type,
		Attributes: attributes,
	}
}

func claimResultsFrom(tokens [][20]byte, amounts []*big.Int) []ClaimResult {
	out := make([]ClaimResult, len(tokens))
	for i := range tokens {
		amount := "0"
		if i < len(amounts) {
			amount = formatBigInt(amounts[i])
		}
		out[i] = ClaimResult{Token: formatAccount(tokens[i]), Amount: amount}
	}
	return out
}
