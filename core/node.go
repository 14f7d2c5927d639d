package core

import (
	"fmt"
	"math/big"
	"sync"

	"ipchain/core/events"
	"ipchain/native/royalty"
	"ipchain/state/royaltystate"
	"ipchain/storage"
)

// Genesis seeds the registry on first start: role grants, the licensing
// module identity, the native policy address, whitelists and initial token
// funding. State seeding runs once; engine wiring is applied on every start.
type Genesis struct {
	Admins           [][20]byte
	LicensingModule  [20]byte
	LAPPolicy        [20]byte
	GraphLimits      *royalty.GraphLimits
	SnapshotInterval int64
	Tokens           [][20]byte
	Balances         []GenesisBalance
}

// GenesisBalance funds an account of the payment-token ledger.
type GenesisBalance struct {
	Token   [20]byte
	Account [20]byte
	Amount  *big.Int
}

// Node owns the royalty state and serializes every operation against it.
// State-mutating calls run inside an overlay window: writes reach the backing
// store only when the engine call succeeds, and the events emitted during the
// call are published only after the commit.
type Node struct {
	db      storage.Database
	manager *royaltystate.Manager
	engine  *royalty.Engine

	stateMu sync.Mutex
	pending []events.Event

	streamMu      sync.Mutex
	streamSeq     uint64
	streamNextID  uint64
	streamHistory []StoredEvent
	streamSubs    map[uint64]chan StoredEvent
}

// collector funnels engine emissions into the node's per-call buffer. The
// state mutex is held for the whole call, so the plain slice is safe.
type collector struct {
	node *Node
}

func (c collector) Emit(ev events.Event) {
	if c.node == nil || ev == nil {
		return
	}
	c.node.pending = append(c.node.pending, ev)
}

// NewNode builds a node over the backing store and wires the royalty engine
// to it.
func NewNode(db storage.Database) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: nil database")
	}
	n := &Node{
		db:         db,
		manager:    royaltystate.NewManager(db),
		engine:     royalty.NewEngine(),
		streamSubs: make(map[uint64]chan StoredEvent),
	}
	n.engine.SetState(n.manager)
	n.engine.SetEmitter(collector{node: n})
	return n, nil
}

// Engine exposes the wired engine for test harnesses.
func (n *Node) Engine() *royalty.Engine { return n.engine }

// Bootstrap wires the engine from the genesis document and, on the first
// start only, seeds roles, whitelists, limits and token balances.
func (n *Node) Bootstrap(genesis Genesis) error {
	n.engine.SetSnapshotInterval(genesis.SnapshotInterval)
	n.engine.SetLicensingModule(genesis.LicensingModule)
	if !isZero(genesis.LAPPolicy) {
		if err := n.engine.RegisterPolicy(royalty.NewLAPPolicy(genesis.LAPPolicy)); err != nil {
			return err
		}
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	applied, err := n.manager.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	defer n.manager.Discard()

	for _, admin := range genesis.Admins {
		if err := n.manager.GrantRole(royalty.RoleRoyaltyAdmin, admin); err != nil {
			return err
		}
	}
	if !isZero(genesis.LAPPolicy) {
		if err := n.manager.SetPolicyWhitelisted(genesis.LAPPolicy, true); err != nil {
			return err
		}
	}
	for _, token := range genesis.Tokens {
		if err := n.manager.SetTokenWhitelisted(token, true); err != nil {
			return err
		}
	}
	if genesis.GraphLimits != nil {
		if err := genesis.GraphLimits.Validate(); err != nil {
			return err
		}
		if err := n.manager.SetGraphLimits(*genesis.GraphLimits); err != nil {
			return err
		}
	}
	for _, balance := range genesis.Balances {
		if err := n.manager.MintToken(balance.Token, balance.Account, balance.Amount); err != nil {
			return err
		}
	}
	if err := n.manager.MarkGenesisApplied(); err != nil {
		return err
	}
	return n.manager.Commit()
}

// withWrite runs fn under the state mutex, commits its writes when it
// succeeds and publishes the events it emitted. A failing fn leaves the
// backing store untouched and publishes nothing.
func (n *Node) withWrite(fn func() error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.pending = n.pending[:0]
	if err := fn(); err != nil {
		n.manager.Discard()
		n.pending = n.pending[:0]
		return err
	}
	if err := n.manager.Commit(); err != nil {
		n.manager.Discard()
		n.pending = n.pending[:0]
		return err
	}
	emitted := make([]events.Event, len(n.pending))
	copy(emitted, n.pending)
	n.pending = n.pending[:0]
	for _, ev := range emitted {
		n.publishEvent(ev)
	}
	return nil
}

func (n *Node) withRead(fn func() error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return fn()
}

// SetIpGraphLimits replaces the global ancestry ceilings.
func (n *Node) SetIpGraphLimits(caller [20]byte, limits royalty.GraphLimits) error {
	return n.withWrite(func() error { return n.engine.SetIpGraphLimits(caller, limits) })
}

// WhitelistRoyaltyPolicy flips the whitelist flag of a royalty policy.
func (n *Node) WhitelistRoyaltyPolicy(caller [20]byte, policy [20]byte, allowed bool) error {
	return n.withWrite(func() error { return n.engine.WhitelistRoyaltyPolicy(caller, policy, allowed) })
}

// WhitelistRoyaltyToken flips the whitelist flag of a payment token.
func (n *Node) WhitelistRoyaltyToken(caller [20]byte, token [20]byte, allowed bool) error {
	return n.withWrite(func() error { return n.engine.WhitelistRoyaltyToken(caller, token, allowed) })
}

// RegisterExternalRoyaltyPolicy appends to the external policy registry.
func (n *Node) RegisterExternalRoyaltyPolicy(caller [20]byte, policy [20]byte) error {
	return n.withWrite(func() error { return n.engine.RegisterExternalRoyaltyPolicy(caller, policy) })
}

// OnLicenseMinting forwards the licensing hook for a freshly minted license.
func (n *Node) OnLicenseMinting(caller [20]byte, ip [20]byte, policy [20]byte, percent uint64, externalData []byte) error {
	return n.withWrite(func() error {
		return n.engine.OnLicenseMinting(caller, ip, policy, percent, externalData)
	})
}

// OnLinkToParents registers a derivative atomically: either the whole link is
// recorded or nothing is.
func (n *Node) OnLinkToParents(caller [20]byte, ip [20]byte, parents [][20]byte, policies [][20]byte, percents []uint64, externalData []byte) error {
	return n.withWrite(func() error {
		return n.engine.OnLinkToParents(caller, ip, parents, policies, percents, externalData)
	})
}

// PayRoyaltyOnBehalf books revenue into the receiver's vault.
func (n *Node) PayRoyaltyOnBehalf(caller [20]byte, receiverIP [20]byte, payerIP [20]byte, token [20]byte, amount *big.Int) error {
	return n.withWrite(func() error {
		return n.engine.PayRoyaltyOnBehalf(caller, receiverIP, payerIP, token, amount)
	})
}

// PayLicenseMintingFee books a license minting fee into the receiver's vault.
func (n *Node) PayLicenseMintingFee(caller [20]byte, receiverIP [20]byte, payer [20]byte, token [20]byte, amount *big.Int) error {
	return n.withWrite(func() error {
		return n.engine.PayLicenseMintingFee(caller, receiverIP, payer, token, amount)
	})
}

// TakeSnapshot freezes the vault's distribution and pending revenue.
func (n *Node) TakeSnapshot(ip [20]byte) (uint64, error) {
	var id uint64
	err := n.withWrite(func() error {
		var innerErr error
		id, innerErr = n.engine.TakeSnapshot(ip)
		return innerErr
	})
	return id, err
}

// ClaimRevenueByTokenBatch settles the claimer's share of a snapshot.
func (n *Node) ClaimRevenueByTokenBatch(claimer [20]byte, ip [20]byte, snapshotID uint64, tokens [][20]byte) ([]*big.Int, error) {
	var amounts []*big.Int
	err := n.withWrite(func() error {
		var innerErr error
		amounts, innerErr = n.engine.ClaimRevenueByTokenBatch(claimer, ip, snapshotID, tokens)
		return innerErr
	})
	return amounts, err
}

// ClaimBySnapshotBatchAsSelf forwards an ancestor vault's share of a
// descendant snapshot into the ancestor's vault.
func (n *Node) ClaimBySnapshotBatchAsSelf(childIP [20]byte, ancestorIP [20]byte, snapshotID uint64, tokens [][20]byte) ([]*big.Int, error) {
	var amounts []*big.Int
	err := n.withWrite(func() error {
		var innerErr error
		amounts, innerErr = n.engine.ClaimBySnapshotBatchAsSelf(childIP, ancestorIP, snapshotID, tokens)
		return innerErr
	})
	return amounts, err
}

// CollectRoyaltyTokens releases an ancestor's reserved royalty tokens.
func (n *Node) CollectRoyaltyTokens(policy [20]byte, childIP [20]byte, ancestorIP [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.withWrite(func() error {
		var innerErr error
		amount, innerErr = n.engine.CollectRoyaltyTokens(policy, childIP, ancestorIP)
		return innerErr
	})
	return amount, err
}

// MintToken credits payment tokens to an account. Restricted to royalty
// admins; meant for development networks and test fixtures.
func (n *Node) MintToken(caller [20]byte, token [20]byte, to [20]byte, amount *big.Int) error {
	return n.withWrite(func() error {
		if !n.manager.HasRole(royalty.RoleRoyaltyAdmin, caller) {
			return fmt.Errorf("%w: caller lacks %s", royalty.ErrUnauthorized, royalty.RoleRoyaltyAdmin)
		}
		return n.manager.MintToken(token, to, amount)
	})
}

// GraphLimits returns the active ancestry ceilings.
func (n *Node) GraphLimits() (royalty.GraphLimits, error) {
	var limits royalty.GraphLimits
	err := n.withRead(func() error {
		var innerErr error
		limits, innerErr = n.engine.GraphLimits()
		return innerErr
	})
	return limits, err
}

// IsWhitelistedPolicy reports whether the policy is whitelisted.
func (n *Node) IsWhitelistedPolicy(policy [20]byte) (bool, error) {
	var ok bool
	err := n.withRead(func() error {
		var innerErr error
		ok, innerErr = n.engine.IsWhitelistedPolicy(policy)
		return innerErr
	})
	return ok, err
}

// IsWhitelistedToken reports whether the token is whitelisted.
func (n *Node) IsWhitelistedToken(token [20]byte) (bool, error) {
	var ok bool
	err := n.withRead(func() error {
		var innerErr error
		ok, innerErr = n.engine.IsWhitelistedToken(token)
		return innerErr
	})
	return ok, err
}

// IsExternalPolicy reports whether the policy sits in the external registry.
func (n *Node) IsExternalPolicy(policy [20]byte) (bool, error) {
	var ok bool
	err := n.withRead(func() error {
		var innerErr error
		ok, innerErr = n.engine.IsExternalPolicy(policy)
		return innerErr
	})
	return ok, err
}

// VaultOf returns the asset's vault record.
func (n *Node) VaultOf(ip [20]byte) (*royalty.Vault, bool, error) {
	var (
		vault *royalty.Vault
		ok    bool
	)
	err := n.withRead(func() error {
		var innerErr error
		vault, ok, innerErr = n.engine.VaultOf(ip)
		return innerErr
	})
	return vault, ok, err
}

// IPGraphOf returns the asset's ancestry record.
func (n *Node) IPGraphOf(ip [20]byte) (*royalty.IPGraph, error) {
	var graph *royalty.IPGraph
	err := n.withRead(func() error {
		var innerErr error
		graph, innerErr = n.engine.IPGraphOf(ip)
		return innerErr
	})
	return graph, err
}

// LAPRoyalty returns the LAP accounting record for the asset.
func (n *Node) LAPRoyalty(policy [20]byte, ip [20]byte) (*royalty.LAPRecord, bool, error) {
	var (
		rec *royalty.LAPRecord
		ok  bool
	)
	err := n.withRead(func() error {
		var innerErr error
		rec, ok, innerErr = n.engine.LAPRoyalty(policy, ip)
		return innerErr
	})
	return rec, ok, err
}

// RTBalanceOf returns a holder's live royalty-token balance.
func (n *Node) RTBalanceOf(ip [20]byte, holder [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.withRead(func() error {
		var innerErr error
		balance, innerErr = n.engine.RTBalanceOf(ip, holder)
		return innerErr
	})
	return balance, err
}

// PendingRevenueOf returns revenue accrued since the last snapshot.
func (n *Node) PendingRevenueOf(ip [20]byte, token [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.withRead(func() error {
		var innerErr error
		amount, innerErr = n.engine.PendingRevenueOf(ip, token)
		return innerErr
	})
	return amount, err
}

// VaultSnapshot returns a stored snapshot.
func (n *Node) VaultSnapshot(ip [20]byte, snapshotID uint64) (*royalty.Snapshot, error) {
	var snap *royalty.Snapshot
	err := n.withRead(func() error {
		var innerErr error
		snap, innerErr = n.engine.VaultSnapshot(ip, snapshotID)
		return innerErr
	})
	return snap, err
}

// ClaimableRevenue reports what a claim would pay out right now.
func (n *Node) ClaimableRevenue(ip [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.withRead(func() error {
		var innerErr error
		amount, innerErr = n.engine.ClaimableRevenue(ip, snapshotID, token, claimer)
		return innerErr
	})
	return amount, err
}

// RevenueClaimed reports whether a (snapshot, token, claimer) pair settled.
func (n *Node) RevenueClaimed(ip [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) (bool, error) {
	var claimed bool
	err := n.withRead(func() error {
		var innerErr error
		claimed, innerErr = n.engine.RevenueClaimed(ip, snapshotID, token, claimer)
		return innerErr
	})
	return claimed, err
}

// TokenBalanceOf returns an account's payment-token balance.
func (n *Node) TokenBalanceOf(token [20]byte, addr [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.withRead(func() error {
		var innerErr error
		balance, innerErr = n.manager.TokenBalance(token, addr)
		return innerErr
	})
	return balance, err
}

func isZero(addr [20]byte) bool {
	return addr == [20]byte{}
}
