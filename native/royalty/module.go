package royalty

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"ipchain/core/events"
)

var (
	errNilState     = errors.New("royalty engine: state not configured")
	errNilLicensing = errors.New("royalty engine: licensing module not configured")
)

// Engine orchestrates the royalty system: it guards the policy and token
// whitelists, validates ancestry links against the graph limits, manages
// vault lifecycles and routes licensing hooks to the native policy
// implementations. Licensing hooks may only be invoked by the configured
// licensing module address; whitelist and limit mutations require the
// royalty admin role.
type Engine struct {
	state            State
	emitter          events.Emitter
	policies         map[[20]byte]Policy
	licensing        [20]byte
	nowFn            func() int64
	snapshotInterval int64
}

// NewEngine creates a royalty engine with a no-op emitter and the default
// snapshot interval. Callers wire state, emitter and policies afterwards.
func NewEngine() *Engine {
	return &Engine{
		emitter:          events.NoopEmitter{},
		policies:         make(map[[20]byte]Policy),
		nowFn:            func() int64 { return time.Now().Unix() },
		snapshotInterval: DefaultSnapshotInterval,
	}
}

// SetState configures the ledger backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets the engine to a
// no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for vault timestamps and the
// snapshot interval. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetLicensingModule configures the only address allowed to invoke the
// licensing hooks.
func (e *Engine) SetLicensingModule(addr [20]byte) { e.licensing = addr }

// SetSnapshotInterval overrides the minimum number of seconds between two
// snapshots of the same vault. Non-positive values reset the default.
func (e *Engine) SetSnapshotInterval(seconds int64) {
	if seconds <= 0 {
		e.snapshotInterval = DefaultSnapshotInterval
		return
	}
	e.snapshotInterval = seconds
}

// RegisterPolicy wires a native policy implementation into the dispatch
// table. Whitelisting the policy address remains a separate governance step.
func (e *Engine) RegisterPolicy(policy Policy) error {
	if policy == nil {
		return fmt.Errorf("royalty engine: nil policy")
	}
	addr := policy.Address()
	if isZeroAddress(addr) {
		return fmt.Errorf("%w: policy address", ErrZeroAddress)
	}
	e.policies[addr] = policy
	return nil
}

func (e *Engine) requireState() (State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state, nil
}

func (e *Engine) requireAdmin(st State, caller [20]byte) error {
	if st.HasRole(RoleRoyaltyAdmin, caller) {
		return nil
	}
	return fmt.Errorf("%w: caller lacks %s", ErrUnauthorized, RoleRoyaltyAdmin)
}

func (e *Engine) requireLicensing(caller [20]byte) error {
	if isZeroAddress(e.licensing) {
		return errNilLicensing
	}
	if caller != e.licensing {
		return fmt.Errorf("%w: caller is not the licensing module", ErrUnauthorized)
	}
	return nil
}

func (e *Engine) emit(ev events.Event) {
	if e == nil || e.emitter == nil || ev == nil {
		return
	}
	e.emitter.Emit(ev)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) limits(st State) (GraphLimits, error) {
	limits, ok, err := st.GraphLimits()
	if err != nil {
		return GraphLimits{}, err
	}
	if !ok {
		return DefaultGraphLimits(), nil
	}
	return limits, nil
}

// policyRecognized reports whether the address may appear on a license:
// either governance whitelisted it or it was registered as external.
func (e *Engine) policyRecognized(st State, policy [20]byte) (bool, bool, error) {
	whitelisted, err := st.PolicyWhitelisted(policy)
	if err != nil {
		return false, false, err
	}
	if whitelisted {
		return true, false, nil
	}
	external, err := st.ExternalPolicyRegistered(policy)
	if err != nil {
		return false, false, err
	}
	return external, external, nil
}

// SetIpGraphLimits replaces the global ancestry ceilings. Requires the
// royalty admin role; already-linked assets keep their recorded ancestry even
// when a new ceiling would no longer admit it.
func (e *Engine) SetIpGraphLimits(caller [20]byte, limits GraphLimits) error {
	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := e.requireAdmin(st, caller); err != nil {
		return err
	}
	if err := limits.Validate(); err != nil {
		return err
	}
	if err := st.SetGraphLimits(limits); err != nil {
		return err
	}
	e.emit(events.RoyaltyLimitsUpdated{
		MaxParents:             limits.MaxParents,
		MaxAncestors:           limits.MaxAncestors,
		MaxAccumulatedPolicies: limits.MaxAccumulatedPolicies,
	})
	return nil
}

// WhitelistRoyaltyPolicy flips the whitelist flag for a policy address.
// Removing a policy stops new licenses and links; recorded ancestry and
// reserved royalty tokens are unaffected.
func (e *Engine) WhitelistRoyaltyPolicy(caller [20]byte, policy [20]byte, allowed bool) error {
	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := e.requireAdmin(st, caller); err != nil {
		return err
	}
	if isZeroAddress(policy) {
		return fmt.Errorf("%w: policy", ErrZeroAddress)
	}
	if err := st.SetPolicyWhitelisted(policy, allowed); err != nil {
		return err
	}
	e.emit(events.RoyaltyPolicyWhitelistUpdated{Policy: policy, Allowed: allowed})
	return nil
}

// WhitelistRoyaltyToken flips the whitelist flag for a payment token.
// Removing a token stops new payments; claims against existing snapshots
// keep working so funds already in vaults stay reachable.
func (e *Engine) WhitelistRoyaltyToken(caller [20]byte, token [20]byte, allowed bool) error {
	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := e.requireAdmin(st, caller); err != nil {
		return err
	}
	if isZeroAddress(token) {
		return fmt.Errorf("%w: token", ErrZeroAddress)
	}
	if err := st.SetTokenWhitelisted(token, allowed); err != nil {
		return err
	}
	e.emit(events.RoyaltyTokenWhitelistUpdated{Token: token, Allowed: allowed})
	return nil
}

// RegisterExternalRoyaltyPolicy appends a policy address to the append-only
// external registry. The call is permissionless; the engine records graph
// edges for external policies but performs no royalty-token accounting for
// them.
func (e *Engine) RegisterExternalRoyaltyPolicy(caller [20]byte, policy [20]byte) error {
	st, err := e.requireState()
	if err != nil {
		return err
	}
	if isZeroAddress(policy) {
		return fmt.Errorf("%w: policy", ErrZeroAddress)
	}
	whitelisted, err := st.PolicyWhitelisted(policy)
	if err != nil {
		return err
	}
	if whitelisted {
		return fmt.Errorf("%w: whitelisted policy", ErrPolicyAlreadyRegistered)
	}
	registered, err := st.ExternalPolicyRegistered(policy)
	if err != nil {
		return err
	}
	if registered {
		return ErrPolicyAlreadyRegistered
	}
	if err := st.RegisterExternalPolicy(policy); err != nil {
		return err
	}
	e.emit(events.RoyaltyExternalPolicyRegistered{Policy: policy, Registrar: caller})
	return nil
}

// OnLicenseMinting handles a license being minted for an asset under a
// policy: it ensures the asset's vault exists, grows the asset's accumulated
// policy set and lets the native policy validate the offered percentage.
// Only the licensing module may call it.
func (e *Engine) OnLicenseMinting(caller [20]byte, ip [20]byte, policy [20]byte, percent uint64, externalData []byte) error {
	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := e.requireLicensing(caller); err != nil {
		return err
	}
	if isZeroAddress(ip) {
		return fmt.Errorf("%w: ip asset", ErrZeroAddress)
	}
	if isZeroAddress(policy) {
		return fmt.Errorf("%w: policy", ErrZeroAddress)
	}
	recognized, external, err := e.policyRecognized(st, policy)
	if err != nil {
		return err
	}
	if !recognized {
		return fmt.Errorf("%w: %x", ErrPolicyNotWhitelisted, policy)
	}
	if percent > TotalRTSupply {
		return fmt.Errorf("%w: percent %d exceeds %d", ErrAbovePercentLimit, percent, TotalRTSupply)
	}

	graph, err := st.IPGraph(ip)
	if err != nil {
		return err
	}
	if graph == nil {
		graph = &IPGraph{}
	}
	newPolicy := !containsAddress(graph.Policies, policy)
	if newPolicy {
		limits, err := e.limits(st)
		if err != nil {
			return err
		}
		if uint64(len(graph.Policies))+1 > limits.MaxAccumulatedPolicies {
			return fmt.Errorf("%w: %d policies, limit %d",
				ErrAbovePolicyLimit, len(graph.Policies)+1, limits.MaxAccumulatedPolicies)
		}
	}

	if !external {
		impl, ok := e.policies[policy]
		if !ok {
			return fmt.Errorf("royalty engine: no implementation registered for policy %x", policy)
		}
		if err := impl.OnLicenseMinting(st, ip, percent, externalData); err != nil {
			return err
		}
	}

	vault, created, err := e.ensureVault(st, ip)
	if err != nil {
		return err
	}
	if newPolicy {
		graph.Policies = append(graph.Policies, policy)
		sortAddresses(graph.Policies)
		if err := st.PutIPGraph(ip, graph); err != nil {
			return err
		}
	}
	if created {
		e.emit(events.RoyaltyVaultDeployed{IPAsset: ip, Vault: vault.Address})
	}
	e.emit(events.RoyaltyLicenseMinted{IPAsset: ip, Policy: policy, Percent: percent})
	return nil
}

// OnLinkToParents registers an asset as a derivative of the given parents.
// The three argument slices are aligned per parent. Linking happens at most
// once per asset and only before the asset mints any license of its own; the
// whole call succeeds or fails as a unit. Only the licensing module may call
// it.
func (e *Engine) OnLinkToParents(caller [20]byte, ip [20]byte, parents [][20]byte, policies [][20]byte, percents []uint64, externalData []byte) error {
	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := e.requireLicensing(caller); err != nil {
		return err
	}
	if isZeroAddress(ip) {
		return fmt.Errorf("%w: ip asset", ErrZeroAddress)
	}
	if err := validateLinkShape(ip, parents, policies, percents); err != nil {
		return err
	}

	graph, err := st.IPGraph(ip)
	if err != nil {
		return err
	}
	if graph == nil {
		graph = &IPGraph{}
	}
	if graph.HasParents() || len(graph.Policies) > 0 {
		return fmt.Errorf("%w: %x", ErrIPUnlinkable, ip)
	}

	for _, policy := range policies {
		recognized, _, err := e.policyRecognized(st, policy)
		if err != nil {
			return err
		}
		if !recognized {
			return fmt.Errorf("%w: %x", ErrPolicyNotWhitelisted, policy)
		}
	}

	parentGraphs := make([]*IPGraph, len(parents))
	for i, parent := range parents {
		if _, ok, err := st.Vault(parent); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: parent %x never licensed", ErrUnlinkableToParent, parent)
		}
		parentGraphs[i], err = st.IPGraph(parent)
		if err != nil {
			return err
		}
	}

	limits, err := e.limits(st)
	if err != nil {
		return err
	}
	next, err := buildAncestry(graph, parents, parentGraphs, policies, limits)
	if err != nil {
		return err
	}

	vault, created, err := e.ensureVault(st, ip)
	if err != nil {
		return err
	}

	// Dispatch one hook per distinct policy, each carrying only the links
	// it governs. External policies record edges without native accounting.
	dispatched := make(map[[20]byte]struct{}, len(policies))
	for i := range policies {
		policy := policies[i]
		if _, done := dispatched[policy]; done {
			continue
		}
		dispatched[policy] = struct{}{}
		var groupParents [][20]byte
		var groupPercents []uint64
		for j := range policies {
			if policies[j] == policy {
				groupParents = append(groupParents, parents[j])
				groupPercents = append(groupPercents, percents[j])
			}
		}
		impl, ok := e.policies[policy]
		if !ok {
			external, err := st.ExternalPolicyRegistered(policy)
			if err != nil {
				return err
			}
			if external {
				continue
			}
			return fmt.Errorf("royalty engine: no implementation registered for policy %x", policy)
		}
		if err := impl.OnLinkToParents(st, ip, vault.Address, groupParents, groupPercents, externalData); err != nil {
			return err
		}
	}

	if err := st.PutIPGraph(ip, next); err != nil {
		return err
	}
	if created {
		e.emit(events.RoyaltyVaultDeployed{IPAsset: ip, Vault: vault.Address})
	}
	e.emit(events.RoyaltyParentsLinked{
		IPAsset:  ip,
		Parents:  copyAddresses(parents),
		Policies: copyAddresses(policies),
		Percents: append([]uint64(nil), percents...),
	})
	return nil
}

// PayRoyaltyOnBehalf pulls a whitelisted token from the caller into the
// receiver asset's vault and books it as pending revenue for the next
// snapshot. payerIP is attribution only and may be zero when the payer is not
// an asset.
func (e *Engine) PayRoyaltyOnBehalf(caller [20]byte, receiverIP [20]byte, payerIP [20]byte, token [20]byte, amount *big.Int) error {
	st, err := e.requireState()
	if err != nil {
		return err
	}
	if isZeroAddress(receiverIP) {
		return fmt.Errorf("%w: receiver", ErrZeroAddress)
	}
	vault, err := e.creditRevenue(st, receiverIP, caller, token, amount)
	if err != nil {
		return err
	}
	e.emit(events.RoyaltyPaid{
		ReceiverIPAsset: receiverIP,
		PayerIPAsset:    payerIP,
		Sender:          caller,
		Vault:           vault.Address,
		Token:           token,
		Amount:          cloneBigInt(amount),
	})
	return nil
}

// PayLicenseMintingFee charges the minting fee for a new license: the token
// moves from the minter's address into the receiver asset's vault. Only the
// licensing module may call it.
func (e *Engine) PayLicenseMintingFee(caller [20]byte, receiverIP [20]byte, payer [20]byte, token [20]byte, amount *big.Int) error {
	st, err := e.requireState()
	if err != nil {
		return err
	}
	if err := e.requireLicensing(caller); err != nil {
		return err
	}
	if isZeroAddress(receiverIP) {
		return fmt.Errorf("%w: receiver", ErrZeroAddress)
	}
	if isZeroAddress(payer) {
		return fmt.Errorf("%w: payer", ErrZeroAddress)
	}
	vault, err := e.creditRevenue(st, receiverIP, payer, token, amount)
	if err != nil {
		return err
	}
	e.emit(events.RoyaltyMintingFeePaid{
		ReceiverIPAsset: receiverIP,
		Payer:           payer,
		Vault:           vault.Address,
		Token:           token,
		Amount:          cloneBigInt(amount),
	})
	return nil
}

func (e *Engine) creditRevenue(st State, receiverIP [20]byte, from [20]byte, token [20]byte, amount *big.Int) (*Vault, error) {
	if isZeroAddress(token) {
		return nil, fmt.Errorf("%w: token", ErrZeroAddress)
	}
	whitelisted, err := st.TokenWhitelisted(token)
	if err != nil {
		return nil, err
	}
	if !whitelisted {
		return nil, fmt.Errorf("%w: %x", ErrTokenNotWhitelisted, token)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	vault, ok, err := st.Vault(receiverIP)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrVaultNotFound, receiverIP)
	}
	if err := st.TransferToken(token, from, vault.Address, amount); err != nil {
		return nil, err
	}
	pending, err := st.PendingRevenue(vault.Address, token)
	if err != nil {
		return nil, err
	}
	if err := st.SetPendingRevenue(vault.Address, token, pending.Add(pending, amount)); err != nil {
		return nil, err
	}
	return vault, nil
}

// CollectRoyaltyTokens releases the royalty tokens a link reserved for an
// ancestor into the ancestor's vault. Permissionless: the destination is
// fixed by the recorded ancestry.
func (e *Engine) CollectRoyaltyTokens(policy [20]byte, childIP [20]byte, ancestorIP [20]byte) (*big.Int, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	whitelisted, err := st.PolicyWhitelisted(policy)
	if err != nil {
		return nil, err
	}
	if !whitelisted {
		return nil, fmt.Errorf("%w: %x", ErrPolicyNotWhitelisted, policy)
	}
	impl, ok := e.policies[policy]
	if !ok {
		return nil, fmt.Errorf("royalty engine: no implementation registered for policy %x", policy)
	}
	amount, err := impl.CollectRoyaltyTokens(st, childIP, ancestorIP)
	if err != nil {
		return nil, err
	}
	e.emit(events.RoyaltyTokensCollected{
		ChildIPAsset:    childIP,
		AncestorIPAsset: ancestorIP,
		Policy:          policy,
		Amount:          cloneBigInt(amount),
	})
	return amount, nil
}

// GraphLimits returns the active ancestry ceilings, falling back to the
// defaults when governance never configured any.
func (e *Engine) GraphLimits() (GraphLimits, error) {
	st, err := e.requireState()
	if err != nil {
		return GraphLimits{}, err
	}
	return e.limits(st)
}

// IsWhitelistedPolicy reports whether the policy address is whitelisted.
func (e *Engine) IsWhitelistedPolicy(policy [20]byte) (bool, error) {
	st, err := e.requireState()
	if err != nil {
		return false, err
	}
	return st.PolicyWhitelisted(policy)
}

// IsWhitelistedToken reports whether the payment token is whitelisted.
func (e *Engine) IsWhitelistedToken(token [20]byte) (bool, error) {
	st, err := e.requireState()
	if err != nil {
		return false, err
	}
	return st.TokenWhitelisted(token)
}

// IsExternalPolicy reports whether the address sits in the external registry.
func (e *Engine) IsExternalPolicy(policy [20]byte) (bool, error) {
	st, err := e.requireState()
	if err != nil {
		return false, err
	}
	return st.ExternalPolicyRegistered(policy)
}

// VaultOf returns the asset's vault record when one exists.
func (e *Engine) VaultOf(ip [20]byte) (*Vault, bool, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, false, err
	}
	return st.Vault(ip)
}

// IPGraphOf returns the asset's ancestry record. Assets that never linked or
// licensed return an empty record.
func (e *Engine) IPGraphOf(ip [20]byte) (*IPGraph, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	graph, err := st.IPGraph(ip)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		graph = &IPGraph{}
	}
	return graph, nil
}

// LAPRoyalty returns the liquid-absolute-percentage accounting record stored
// for the asset under the policy address.
func (e *Engine) LAPRoyalty(policy [20]byte, ip [20]byte) (*LAPRecord, bool, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, false, err
	}
	return st.LAPRoyalty(policy, ip)
}

// RTBalanceOf returns the holder's live royalty-token balance in the asset's
// vault.
func (e *Engine) RTBalanceOf(ip [20]byte, holder [20]byte) (*big.Int, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	vault, ok, err := st.Vault(ip)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrVaultNotFound, ip)
	}
	return st.RTBalance(vault.Address, holder)
}

// PendingRevenueOf returns the revenue accrued for the token since the
// asset's last snapshot.
func (e *Engine) PendingRevenueOf(ip [20]byte, token [20]byte) (*big.Int, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	vault, ok, err := st.Vault(ip)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrVaultNotFound, ip)
	}
	return st.PendingRevenue(vault.Address, token)
}

// VaultSnapshot returns a stored snapshot of the asset's vault.
func (e *Engine) VaultSnapshot(ip [20]byte, snapshotID uint64) (*Snapshot, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	_, snap, err := e.snapshotFor(st, ip, snapshotID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// RevenueClaimed reports whether the claimer already settled the (snapshot,
// token) pair.
func (e *Engine) RevenueClaimed(ip [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) (bool, error) {
	st, err := e.requireState()
	if err != nil {
		return false, err
	}
	vault, ok, err := st.Vault(ip)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %x", ErrVaultNotFound, ip)
	}
	return st.Claimed(vault.Address, snapshotID, token, claimer)
}
