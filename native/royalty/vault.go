package royalty

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"ipchain/core/events"
	"ipchain/crypto"
)

// ensureVault returns the asset's vault, creating it when the asset touches
// the royalty system for the first time. Creation mints the full royalty
// token supply to the asset itself.
func (e *Engine) ensureVault(st State, ip [20]byte) (*Vault, bool, error) {
	vault, ok, err := st.Vault(ip)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return vault, false, nil
	}
	vault = &Vault{
		IPAsset:   ip,
		Address:   crypto.DeriveVaultAddress(ip),
		CreatedAt: uint64(e.now()),
	}
	if err := st.PutVault(vault); err != nil {
		return nil, false, err
	}
	if err := st.SetRTBalance(vault.Address, ip, TotalRTSupplyBig()); err != nil {
		return nil, false, err
	}
	return vault, true, nil
}

// TakeSnapshot freezes the vault's royalty-token distribution together with
// the revenue accrued since the previous snapshot and resets the pending
// revenue counters. Anyone may trigger a snapshot; the interval between two
// snapshots of the same vault is rate limited.
func (e *Engine) TakeSnapshot(ip [20]byte) (uint64, error) {
	st, err := e.requireState()
	if err != nil {
		return 0, err
	}
	vault, ok, err := st.Vault(ip)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %x", ErrVaultNotFound, ip)
	}
	now := uint64(e.now())
	if vault.SnapshotCount > 0 {
		next := vault.LastSnapshotAt + uint64(e.snapshotInterval)
		if now < next {
			return 0, fmt.Errorf("%w: next snapshot at %d", ErrSnapshotCooldown, next)
		}
	}

	snap := &Snapshot{ID: vault.SnapshotCount + 1, Timestamp: now}
	holders, err := st.RTHolders(vault.Address)
	if err != nil {
		return 0, err
	}
	for _, holder := range holders {
		balance, err := st.RTBalance(vault.Address, holder)
		if err != nil {
			return 0, err
		}
		if balance.Sign() == 0 {
			continue
		}
		snap.Holders = append(snap.Holders, RTHolding{Holder: holder, Balance: balance})
	}
	tokens, err := st.RevenueTokens(vault.Address)
	if err != nil {
		return 0, err
	}
	for _, token := range tokens {
		amount, err := st.PendingRevenue(vault.Address, token)
		if err != nil {
			return 0, err
		}
		if amount.Sign() == 0 {
			continue
		}
		snap.Revenue = append(snap.Revenue, TokenRevenue{Token: token, Amount: amount})
	}
	digest, err := snapshotDigest(snap)
	if err != nil {
		return 0, err
	}
	snap.Digest = digest

	for _, captured := range snap.Revenue {
		if err := st.SetPendingRevenue(vault.Address, captured.Token, big.NewInt(0)); err != nil {
			return 0, err
		}
	}
	if err := st.PutSnapshot(vault.Address, snap); err != nil {
		return 0, err
	}
	vault.SnapshotCount = snap.ID
	vault.LastSnapshotAt = now
	if err := st.PutVault(vault); err != nil {
		return 0, err
	}
	e.emit(events.RoyaltySnapshotTaken{
		IPAsset:    ip,
		Vault:      vault.Address,
		SnapshotID: snap.ID,
		Timestamp:  now,
		Digest:     digest,
	})
	return snap.ID, nil
}

// ClaimRevenueByTokenBatch pays the claimer its pro-rata share of the revenue
// captured at the snapshot for each requested token. The whole batch succeeds
// or fails: a single already-claimed pair rejects the call before any token
// moves. Shares round down; dust below one token unit stays in the vault.
func (e *Engine) ClaimRevenueByTokenBatch(claimer [20]byte, ip [20]byte, snapshotID uint64, tokens [][20]byte) ([]*big.Int, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	vault, snap, err := e.snapshotFor(st, ip, snapshotID)
	if err != nil {
		return nil, err
	}
	balance := snap.HolderBalance(claimer)
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("%w: snapshot %d", ErrNoRTBalance, snapshotID)
	}
	amounts, err := e.claimAmounts(st, vault, snap, claimer, tokens)
	if err != nil {
		return nil, err
	}
	for i, token := range tokens {
		if err := st.MarkClaimed(vault.Address, snapshotID, token, claimer); err != nil {
			return nil, err
		}
		if amounts[i].Sign() > 0 {
			if err := st.TransferToken(token, vault.Address, claimer, amounts[i]); err != nil {
				return nil, err
			}
		}
		e.emit(events.RoyaltyRevenueClaimed{
			IPAsset:    ip,
			SnapshotID: snapshotID,
			Claimer:    claimer,
			Token:      token,
			Amount:     amounts[i],
		})
	}
	return amounts, nil
}

// ClaimBySnapshotBatchAsSelf settles the share an ancestor's vault holds in a
// descendant's snapshot. The claimant is fixed to the ancestor's vault
// address; the proceeds land in the ancestor's vault and join its pending
// revenue, so the ancestor's own holders settle them at the next snapshot.
// The call is permissionless because funds can only move between the two
// vaults.
func (e *Engine) ClaimBySnapshotBatchAsSelf(childIP [20]byte, ancestorIP [20]byte, snapshotID uint64, tokens [][20]byte) ([]*big.Int, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	ancestorVault, ok, err := st.Vault(ancestorIP)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: ancestor %x", ErrVaultNotFound, ancestorIP)
	}
	childVault, snap, err := e.snapshotFor(st, childIP, snapshotID)
	if err != nil {
		return nil, err
	}
	claimer := ancestorVault.Address
	balance := snap.HolderBalance(claimer)
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("%w: snapshot %d", ErrNoRTBalance, snapshotID)
	}
	amounts, err := e.claimAmounts(st, childVault, snap, claimer, tokens)
	if err != nil {
		return nil, err
	}
	for i, token := range tokens {
		if err := st.MarkClaimed(childVault.Address, snapshotID, token, claimer); err != nil {
			return nil, err
		}
		if amounts[i].Sign() > 0 {
			if err := st.TransferToken(token, childVault.Address, ancestorVault.Address, amounts[i]); err != nil {
				return nil, err
			}
			pending, err := st.PendingRevenue(ancestorVault.Address, token)
			if err != nil {
				return nil, err
			}
			if err := st.SetPendingRevenue(ancestorVault.Address, token, pending.Add(pending, amounts[i])); err != nil {
				return nil, err
			}
		}
		e.emit(events.RoyaltyRevenueClaimed{
			IPAsset:    childIP,
			SnapshotID: snapshotID,
			Claimer:    claimer,
			Token:      token,
			Amount:     amounts[i],
		})
	}
	return amounts, nil
}

// ClaimableRevenue reports the amount a claim for the (snapshot, token,
// claimer) triple would pay out right now. Already-claimed pairs report zero.
func (e *Engine) ClaimableRevenue(ip [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) (*big.Int, error) {
	st, err := e.requireState()
	if err != nil {
		return nil, err
	}
	vault, snap, err := e.snapshotFor(st, ip, snapshotID)
	if err != nil {
		return nil, err
	}
	claimed, err := st.Claimed(vault.Address, snapshotID, token, claimer)
	if err != nil {
		return nil, err
	}
	if claimed {
		return big.NewInt(0), nil
	}
	return proRata(snap.HolderBalance(claimer), snap.TokenAmount(token)), nil
}

func (e *Engine) snapshotFor(st State, ip [20]byte, snapshotID uint64) (*Vault, *Snapshot, error) {
	vault, ok, err := st.Vault(ip)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %x", ErrVaultNotFound, ip)
	}
	if snapshotID == 0 || snapshotID > vault.SnapshotCount {
		return nil, nil, fmt.Errorf("%w: id %d", ErrSnapshotNotFound, snapshotID)
	}
	snap, ok, err := st.Snapshot(vault.Address, snapshotID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: id %d", ErrSnapshotNotFound, snapshotID)
	}
	return vault, snap, nil
}

// claimAmounts validates the batch and computes every payout before any state
// is written, so a rejection never leaves a partial claim behind.
func (e *Engine) claimAmounts(st State, vault *Vault, snap *Snapshot, claimer [20]byte, tokens [][20]byte) ([]*big.Int, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("royalty: empty token batch")
	}
	balance := snap.HolderBalance(claimer)
	amounts := make([]*big.Int, len(tokens))
	seen := make(map[[20]byte]struct{}, len(tokens))
	for i, token := range tokens {
		if _, dup := seen[token]; dup {
			return nil, fmt.Errorf("%w: token %x repeated in batch", ErrAlreadyClaimed, token)
		}
		seen[token] = struct{}{}
		claimed, err := st.Claimed(vault.Address, snap.ID, token, claimer)
		if err != nil {
			return nil, err
		}
		if claimed {
			return nil, fmt.Errorf("%w: token %x", ErrAlreadyClaimed, token)
		}
		amounts[i] = proRata(balance, snap.TokenAmount(token))
	}
	return amounts, nil
}

// proRata computes balance * revenue / TotalRTSupply rounded towards zero.
func proRata(balance, revenue *big.Int) *big.Int {
	if balance == nil || revenue == nil || balance.Sign() <= 0 || revenue.Sign() <= 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(balance, revenue)
	return share.Quo(share, TotalRTSupplyBig())
}

// moveRT moves royalty tokens between two holders of the same vault.
func moveRT(st State, vault [20]byte, from [20]byte, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	fromBalance, err := st.RTBalance(vault, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: royalty tokens", ErrInsufficientBalance)
	}
	if err := st.SetRTBalance(vault, from, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := st.RTBalance(vault, to)
	if err != nil {
		return err
	}
	return st.SetRTBalance(vault, to, toBalance.Add(toBalance, amount))
}

// snapshotDigest hashes the deterministic encoding of a snapshot's content.
// The digest commits to holders and revenue but not to itself.
func snapshotDigest(snap *Snapshot) ([32]byte, error) {
	payload := struct {
		ID        uint64
		Timestamp uint64
		Holders   []RTHolding
		Revenue   []TokenRevenue
	}{snap.ID, snap.Timestamp, snap.Holders, snap.Revenue}
	encoded, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(encoded), nil
}
