package royalty

import (
	"fmt"
	"math/big"
)

// LAPPolicy implements the liquid absolute percentage policy. Every license
// names an absolute percentage of the licensee's revenue. When a child links
// to a parent the child owes the parent the licensed percentage and
// additionally inherits, unscaled, every (ancestor, percentage) obligation
// recorded on the parent; obligations reaching the same ancestor through
// several paths add up. The royalty stack is the sum of all obligations and
// may never exceed one hundred percent.
//
// Obligations are settled in royalty tokens: at link time the child's vault
// moves stack-many tokens from the asset's holding to the policy address,
// where they stay reserved until CollectRoyaltyTokens releases each
// ancestor's share into that ancestor's vault.
type LAPPolicy struct {
	addr [20]byte
}

// NewLAPPolicy returns a policy bound to its on-chain address.
func NewLAPPolicy(addr [20]byte) *LAPPolicy {
	return &LAPPolicy{addr: addr}
}

// Address implements Policy.
func (p *LAPPolicy) Address() [20]byte { return p.addr }

// OnLicenseMinting validates that the asset can still offer the percentage on
// top of what it already owes its ancestors, and marks the asset unlinkable:
// once a license exists the ancestry of the asset is frozen.
func (p *LAPPolicy) OnLicenseMinting(st State, ip [20]byte, percent uint64, externalData []byte) error {
	if percent > TotalRTSupply {
		return fmt.Errorf("%w: license percent %d exceeds %d", ErrAbovePercentLimit, percent, TotalRTSupply)
	}
	rec, ok, err := st.LAPRoyalty(p.addr, ip)
	if err != nil {
		return err
	}
	if !ok {
		rec = &LAPRecord{}
	}
	if rec.RoyaltyStack+percent > TotalRTSupply {
		return fmt.Errorf("%w: stack %d plus license percent %d exceeds %d",
			ErrAbovePercentLimit, rec.RoyaltyStack, percent, TotalRTSupply)
	}
	rec.Unlinkable = true
	return st.PutLAPRoyalty(p.addr, ip, rec)
}

// OnLinkToParents records the child's obligations and reserves the royalty
// tokens backing them. Each parent must already participate in the policy,
// which is the case exactly when it minted a license or linked under it.
func (p *LAPPolicy) OnLinkToParents(st State, ip [20]byte, vault [20]byte, parents [][20]byte, percents []uint64, externalData []byte) error {
	rec, ok, err := st.LAPRoyalty(p.addr, ip)
	if err != nil {
		return err
	}
	if ok && rec.Unlinkable {
		return fmt.Errorf("%w: %x already minted or linked", ErrIPUnlinkable, ip)
	}
	if !ok {
		rec = &LAPRecord{}
	}

	totals := make(map[[20]byte]uint64, len(parents))
	for i, parent := range parents {
		parentRec, found, err := st.LAPRoyalty(p.addr, parent)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: parent %x", ErrUnlinkableToParent, parent)
		}
		totals[parent] += percents[i]
		for j, ancestor := range parentRec.Ancestors {
			totals[ancestor] += parentRec.AncestorPercents[j]
		}
	}

	var stack uint64
	for _, owed := range totals {
		stack += owed
	}
	if stack > TotalRTSupply {
		return fmt.Errorf("%w: royalty stack %d exceeds %d", ErrAbovePercentLimit, stack, TotalRTSupply)
	}

	ancestors := make([][20]byte, 0, len(totals))
	for ancestor := range totals {
		ancestors = append(ancestors, ancestor)
	}
	sortAddresses(ancestors)
	rec.Ancestors = ancestors
	rec.AncestorPercents = make([]uint64, len(ancestors))
	rec.Collected = make([]bool, len(ancestors))
	for i, ancestor := range ancestors {
		rec.AncestorPercents[i] = totals[ancestor]
	}
	rec.RoyaltyStack = stack
	rec.Unlinkable = true

	if stack > 0 {
		if err := moveRT(st, vault, ip, p.addr, new(big.Int).SetUint64(stack)); err != nil {
			return err
		}
	}
	return st.PutLAPRoyalty(p.addr, ip, rec)
}

// CollectRoyaltyTokens releases the tokens reserved for the ancestor into the
// ancestor's vault. The reservation is released whole and exactly once.
func (p *LAPPolicy) CollectRoyaltyTokens(st State, child [20]byte, ancestor [20]byte) (*big.Int, error) {
	rec, ok, err := st.LAPRoyalty(p.addr, child)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x has no royalty data", ErrNotAncestor, child)
	}
	idx := rec.AncestorIndex(ancestor)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %x", ErrNotAncestor, ancestor)
	}
	if rec.Collected[idx] {
		return nil, ErrAlreadyCollected
	}
	childVault, ok, err := st.Vault(child)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: child %x", ErrVaultNotFound, child)
	}
	ancestorVault, ok, err := st.Vault(ancestor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: ancestor %x", ErrVaultNotFound, ancestor)
	}

	amount := new(big.Int).SetUint64(rec.AncestorPercents[idx])
	if amount.Sign() > 0 {
		if err := moveRT(st, childVault.Address, p.addr, ancestorVault.Address, amount); err != nil {
			return nil, err
		}
	}
	rec.Collected[idx] = true
	if err := st.PutLAPRoyalty(p.addr, child, rec); err != nil {
		return nil, err
	}
	return amount, nil
}
