package royalty

import "math/big"

// State is the ledger surface the royalty engine mutates. Implementations are
// expected to be transactional at the call boundary: the node discards every
// write of an operation that returns an error.
//
// RTHolders and RevenueTokens return only entries with a non-zero balance,
// sorted bytewise, so snapshots stay deterministic across nodes. TransferToken
// reports ErrInsufficientBalance when the sender's balance is short.
type State interface {
	HasRole(role string, addr [20]byte) bool

	GraphLimits() (GraphLimits, bool, error)
	SetGraphLimits(limits GraphLimits) error

	PolicyWhitelisted(policy [20]byte) (bool, error)
	SetPolicyWhitelisted(policy [20]byte, allowed bool) error
	TokenWhitelisted(token [20]byte) (bool, error)
	SetTokenWhitelisted(token [20]byte, allowed bool) error
	ExternalPolicyRegistered(policy [20]byte) (bool, error)
	RegisterExternalPolicy(policy [20]byte) error

	IPGraph(ip [20]byte) (*IPGraph, error)
	PutIPGraph(ip [20]byte, graph *IPGraph) error

	Vault(ip [20]byte) (*Vault, bool, error)
	PutVault(vault *Vault) error

	RTBalance(vault [20]byte, holder [20]byte) (*big.Int, error)
	SetRTBalance(vault [20]byte, holder [20]byte, balance *big.Int) error
	RTHolders(vault [20]byte) ([][20]byte, error)

	PendingRevenue(vault [20]byte, token [20]byte) (*big.Int, error)
	SetPendingRevenue(vault [20]byte, token [20]byte, amount *big.Int) error
	RevenueTokens(vault [20]byte) ([][20]byte, error)

	Snapshot(vault [20]byte, id uint64) (*Snapshot, bool, error)
	PutSnapshot(vault [20]byte, snap *Snapshot) error

	Claimed(vault [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) (bool, error)
	MarkClaimed(vault [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) error

	LAPRoyalty(policy [20]byte, ip [20]byte) (*LAPRecord, bool, error)
	PutLAPRoyalty(policy [20]byte, ip [20]byte, rec *LAPRecord) error

	TokenBalance(token [20]byte, addr [20]byte) (*big.Int, error)
	TransferToken(token [20]byte, from [20]byte, to [20]byte, amount *big.Int) error
}
