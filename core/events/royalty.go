package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"ipchain/core/types"
	"ipchain/crypto"
)

const (
	// TypeRoyaltyPolicyWhitelistUpdated is emitted when governance flips the
	// whitelist flag of a royalty policy.
	TypeRoyaltyPolicyWhitelistUpdated = "royalty.policy.whitelist.updated"
	// TypeRoyaltyTokenWhitelistUpdated is emitted when governance flips the
	// whitelist flag of a payment token.
	TypeRoyaltyTokenWhitelistUpdated = "royalty.token.whitelist.updated"
	// TypeRoyaltyExternalPolicyRegistered is emitted when a policy address is
	// added to the append-only external registry.
	TypeRoyaltyExternalPolicyRegistered = "royalty.policy.external.registered"
	// TypeRoyaltyLimitsUpdated is emitted when governance replaces the
	// ancestry graph ceilings.
	TypeRoyaltyLimitsUpdated = "royalty.limits.updated"
	// TypeRoyaltyVaultDeployed is emitted the first time an asset receives a
	// royalty vault.
	TypeRoyaltyVaultDeployed = "royalty.vault.deployed"
	// TypeRoyaltyLicenseMinted is emitted when the licensing module reports a
	// freshly minted license to the royalty system.
	TypeRoyaltyLicenseMinted = "royalty.license.minted"
	// TypeRoyaltyParentsLinked is emitted when an asset registers as a
	// derivative of its parents.
	TypeRoyaltyParentsLinked = "royalty.parents.linked"
	// TypeRoyaltyPaid is emitted when royalty revenue lands in a vault.
	TypeRoyaltyPaid = "royalty.paid"
	// TypeRoyaltyMintingFeePaid is emitted when a license minting fee lands
	// in a vault.
	TypeRoyaltyMintingFeePaid = "royalty.fee.paid"
	// TypeRoyaltySnapshotTaken is emitted when a vault freezes its holder
	// distribution and pending revenue.
	TypeRoyaltySnapshotTaken = "royalty.vault.snapshot"
	// TypeRoyaltyRevenueClaimed is emitted for every (token, claimer) pair
	// settled against a snapshot.
	TypeRoyaltyRevenueClaimed = "royalty.revenue.claimed"
	// TypeRoyaltyTokensCollected is emitted when royalty tokens reserved for
	// an ancestor are released into the ancestor's vault.
	TypeRoyaltyTokensCollected = "royalty.tokens.collected"
)

// RoyaltyPolicyWhitelistUpdated captures a policy whitelist change.
type RoyaltyPolicyWhitelistUpdated struct {
	Policy  [20]byte
	Allowed bool
}

func (RoyaltyPolicyWhitelistUpdated) EventType() string { return TypeRoyaltyPolicyWhitelistUpdated }

func (e RoyaltyPolicyWhitelistUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyPolicyWhitelistUpdated,
		Attributes: map[string]string{
			"policy":  accountString(e.Policy),
			"allowed": strconv.FormatBool(e.Allowed),
		},
	}
}

// RoyaltyTokenWhitelistUpdated captures a payment token whitelist change.
type RoyaltyTokenWhitelistUpdated struct {
	Token   [20]byte
	Allowed bool
}

func (RoyaltyTokenWhitelistUpdated) EventType() string { return TypeRoyaltyTokenWhitelistUpdated }

func (e RoyaltyTokenWhitelistUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyTokenWhitelistUpdated,
		Attributes: map[string]string{
			"token":   accountString(e.Token),
			"allowed": strconv.FormatBool(e.Allowed),
		},
	}
}

// RoyaltyExternalPolicyRegistered captures an external policy registration.
type RoyaltyExternalPolicyRegistered struct {
	Policy    [20]byte
	Registrar [20]byte
}

func (RoyaltyExternalPolicyRegistered) EventType() string {
	return TypeRoyaltyExternalPolicyRegistered
}

func (e RoyaltyExternalPolicyRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyExternalPolicyRegistered,
		Attributes: map[string]string{
			"policy":    accountString(e.Policy),
			"registrar": accountString(e.Registrar),
		},
	}
}

// RoyaltyLimitsUpdated captures the new ancestry graph ceilings.
type RoyaltyLimitsUpdated struct {
	MaxParents             uint64
	MaxAncestors           uint64
	MaxAccumulatedPolicies uint64
}

func (RoyaltyLimitsUpdated) EventType() string { return TypeRoyaltyLimitsUpdated }

func (e RoyaltyLimitsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyLimitsUpdated,
		Attributes: map[string]string{
			"maxParents":             strconv.FormatUint(e.MaxParents, 10),
			"maxAncestors":           strconv.FormatUint(e.MaxAncestors, 10),
			"maxAccumulatedPolicies": strconv.FormatUint(e.MaxAccumulatedPolicies, 10),
		},
	}
}

// RoyaltyVaultDeployed captures the lazy creation of an asset's vault.
type RoyaltyVaultDeployed struct {
	IPAsset [20]byte
	Vault   [20]byte
}

func (RoyaltyVaultDeployed) EventType() string { return TypeRoyaltyVaultDeployed }

func (e RoyaltyVaultDeployed) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyVaultDeployed,
		Attributes: map[string]string{
			"ipAsset": accountString(e.IPAsset),
			"vault":   vaultString(e.Vault),
		},
	}
}

// RoyaltyLicenseMinted captures a license handled by the royalty system.
type RoyaltyLicenseMinted struct {
	IPAsset [20]byte
	Policy  [20]byte
	Percent uint64
}

func (RoyaltyLicenseMinted) EventType() string { return TypeRoyaltyLicenseMinted }

func (e RoyaltyLicenseMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyLicenseMinted,
		Attributes: map[string]string{
			"ipAsset": accountString(e.IPAsset),
			"policy":  accountString(e.Policy),
			"percent": strconv.FormatUint(e.Percent, 10),
		},
	}
}

// RoyaltyParentsLinked captures a derivative registration. Parents, Policies
// and Percents are aligned per link.
type RoyaltyParentsLinked struct {
	IPAsset  [20]byte
	Parents  [][20]byte
	Policies [][20]byte
	Percents []uint64
}

func (RoyaltyParentsLinked) EventType() string { return TypeRoyaltyParentsLinked }

func (e RoyaltyParentsLinked) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyParentsLinked,
		Attributes: map[string]string{
			"ipAsset":  accountString(e.IPAsset),
			"parents":  joinAccounts(e.Parents),
			"policies": joinAccounts(e.Policies),
			"percents": joinUints(e.Percents),
		},
	}
}

// RoyaltyPaid captures revenue landing in a vault.
type RoyaltyPaid struct {
	ReceiverIPAsset [20]byte
	PayerIPAsset    [20]byte
	Sender          [20]byte
	Vault           [20]byte
	Token           [20]byte
	Amount          *big.Int
}

func (RoyaltyPaid) EventType() string { return TypeRoyaltyPaid }

func (e RoyaltyPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyPaid,
		Attributes: map[string]string{
			"receiverIpAsset": accountString(e.ReceiverIPAsset),
			"payerIpAsset":    accountString(e.PayerIPAsset),
			"sender":          accountString(e.Sender),
			"vault":           vaultString(e.Vault),
			"token":           accountString(e.Token),
			"amount":          formatBig(e.Amount),
		},
	}
}

// RoyaltyMintingFeePaid captures a license minting fee landing in a vault.
type RoyaltyMintingFeePaid struct {
	ReceiverIPAsset [20]byte
	Payer           [20]byte
	Vault           [20]byte
	Token           [20]byte
	Amount          *big.Int
}

func (RoyaltyMintingFeePaid) EventType() string { return TypeRoyaltyMintingFeePaid }

func (e RoyaltyMintingFeePaid) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyMintingFeePaid,
		Attributes: map[string]string{
			"receiverIpAsset": accountString(e.ReceiverIPAsset),
			"payer":           accountString(e.Payer),
			"vault":           vaultString(e.Vault),
			"token":           accountString(e.Token),
			"amount":          formatBig(e.Amount),
		},
	}
}

// RoyaltySnapshotTaken captures a frozen vault snapshot.
type RoyaltySnapshotTaken struct {
	IPAsset    [20]byte
	Vault      [20]byte
	SnapshotID uint64
	Timestamp  uint64
	Digest     [32]byte
}

func (RoyaltySnapshotTaken) EventType() string { return TypeRoyaltySnapshotTaken }

func (e RoyaltySnapshotTaken) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltySnapshotTaken,
		Attributes: map[string]string{
			"ipAsset":    accountString(e.IPAsset),
			"vault":      vaultString(e.Vault),
			"snapshotId": strconv.FormatUint(e.SnapshotID, 10),
			"timestamp":  strconv.FormatUint(e.Timestamp, 10),
			"digest":     hex.EncodeToString(e.Digest[:]),
		},
	}
}

// RoyaltyRevenueClaimed captures one settled (token, claimer) pair.
type RoyaltyRevenueClaimed struct {
	IPAsset    [20]byte
	SnapshotID uint64
	Claimer    [20]byte
	Token      [20]byte
	Amount     *big.Int
}

func (RoyaltyRevenueClaimed) EventType() string { return TypeRoyaltyRevenueClaimed }

func (e RoyaltyRevenueClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyRevenueClaimed,
		Attributes: map[string]string{
			"ipAsset":    accountString(e.IPAsset),
			"snapshotId": strconv.FormatUint(e.SnapshotID, 10),
			"claimer":    accountString(e.Claimer),
			"token":      accountString(e.Token),
			"amount":     formatBig(e.Amount),
		},
	}
}

// RoyaltyTokensCollected captures royalty tokens released to an ancestor's
// vault.
type RoyaltyTokensCollected struct {
	ChildIPAsset    [20]byte
	AncestorIPAsset [20]byte
	Policy          [20]byte
	Amount          *big.Int
}

func (RoyaltyTokensCollected) EventType() string { return TypeRoyaltyTokensCollected }

func (e RoyaltyTokensCollected) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyTokensCollected,
		Attributes: map[string]string{
			"childIpAsset":    accountString(e.ChildIPAsset),
			"ancestorIpAsset": accountString(e.AncestorIPAsset),
			"policy":          accountString(e.Policy),
			"amount":          formatBig(e.Amount),
		},
	}
}

func accountString(addr [20]byte) string {
	return crypto.NewAddress(crypto.IPPrefix, addr[:]).String()
}

func vaultString(addr [20]byte) string {
	return crypto.NewAddress(crypto.VaultPrefix, addr[:]).String()
}

func joinAccounts(addrs [][20]byte) string {
	parts := make([]string, len(addrs))
	for i, addr := range addrs {
		parts[i] = accountString(addr)
	}
	return strings.Join(parts, ",")
}

func joinUints(values []uint64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ",")
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
