package royaltystate

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"ipchain/native/royalty"
	"ipchain/storage"
)

// Manager implements the royalty engine's State over a key-value store. Keys
// are keccak hashes of prefixed logical keys and values are RLP encoded.
//
// Writes accumulate in an overlay until Commit flushes them to the backing
// store; Discard drops them. The node wraps every state-mutating operation in
// an overlay window so a failed operation leaves no partial writes behind.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
}

var _ royalty.State = (*Manager)(nil)

// NewManager wraps the backing store with an empty overlay.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, overlay: make(map[string][]byte)}
}

// Commit flushes the overlay to the backing store. Keys flush in sorted order
// so repeated runs produce identical write sequences.
func (m *Manager) Commit() error {
	if len(m.overlay) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.overlay))
	for k := range m.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.db.Put([]byte(k), m.overlay[k]); err != nil {
			return fmt.Errorf("royaltystate: commit: %w", err)
		}
	}
	m.overlay = make(map[string][]byte)
	return nil
}

// Discard drops every pending write.
func (m *Manager) Discard() {
	if len(m.overlay) > 0 {
		m.overlay = make(map[string][]byte)
	}
}

// Dirty reports whether uncommitted writes are pending.
func (m *Manager) Dirty() bool { return len(m.overlay) > 0 }

func hashedKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) rawGet(key []byte) ([]byte, bool, error) {
	hashed := hashedKey(key)
	if value, ok := m.overlay[string(hashed)]; ok {
		return value, len(value) > 0, nil
	}
	value, err := m.db.Get(hashed)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, len(value) > 0, nil
}

func (m *Manager) kvPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("royaltystate: encode %q: %w", key, err)
	}
	m.overlay[string(hashedKey(key))] = encoded
	return nil
}

func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.rawGet(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("royaltystate: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) flag(key []byte) (bool, error) {
	var v bool
	ok, err := m.kvGet(key, &v)
	if err != nil || !ok {
		return false, err
	}
	return v, nil
}

func (m *Manager) bigInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.kvGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// GenesisApplied reports whether the one-shot genesis seeding already ran.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.flag(genesisKey)
}

// MarkGenesisApplied records that genesis seeding completed.
func (m *Manager) MarkGenesisApplied() error {
	return m.kvPut(genesisKey, true)
}

// HasRole reports whether the address holds the role. Read failures count as
// no grant.
func (m *Manager) HasRole(role string, addr [20]byte) bool {
	granted, err := m.flag(roleKey(role, addr))
	if err != nil {
		return false
	}
	return granted
}

// GrantRole records a role grant for the address.
func (m *Manager) GrantRole(role string, addr [20]byte) error {
	if role == "" {
		return fmt.Errorf("royaltystate: empty role")
	}
	return m.kvPut(roleKey(role, addr), true)
}

// RevokeRole removes a role grant.
func (m *Manager) RevokeRole(role string, addr [20]byte) error {
	return m.kvPut(roleKey(role, addr), false)
}

func (m *Manager) GraphLimits() (royalty.GraphLimits, bool, error) {
	var limits royalty.GraphLimits
	ok, err := m.kvGet(limitsKey, &limits)
	if err != nil || !ok {
		return royalty.GraphLimits{}, false, err
	}
	return limits, true, nil
}

func (m *Manager) SetGraphLimits(limits royalty.GraphLimits) error {
	return m.kvPut(limitsKey, limits)
}

func (m *Manager) PolicyWhitelisted(policy [20]byte) (bool, error) {
	return m.flag(addrKey(policyWhitelistPref, policy))
}

func (m *Manager) SetPolicyWhitelisted(policy [20]byte, allowed bool) error {
	return m.kvPut(addrKey(policyWhitelistPref, policy), allowed)
}

func (m *Manager) TokenWhitelisted(token [20]byte) (bool, error) {
	return m.flag(addrKey(tokenWhitelistPref, token))
}

func (m *Manager) SetTokenWhitelisted(token [20]byte, allowed bool) error {
	return m.kvPut(addrKey(tokenWhitelistPref, token), allowed)
}

func (m *Manager) ExternalPolicyRegistered(policy [20]byte) (bool, error) {
	return m.flag(addrKey(externalPolicyPref, policy))
}

// RegisterExternalPolicy records the address in the append-only external
// registry. Entries are never removed.
func (m *Manager) RegisterExternalPolicy(policy [20]byte) error {
	return m.kvPut(addrKey(externalPolicyPref, policy), true)
}

func (m *Manager) IPGraph(ip [20]byte) (*royalty.IPGraph, error) {
	graph := new(royalty.IPGraph)
	ok, err := m.kvGet(addrKey(graphPref, ip), graph)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &royalty.IPGraph{}, nil
	}
	return graph, nil
}

func (m *Manager) PutIPGraph(ip [20]byte, graph *royalty.IPGraph) error {
	if graph == nil {
		return fmt.Errorf("royaltystate: nil graph")
	}
	return m.kvPut(addrKey(graphPref, ip), graph)
}

func (m *Manager) Vault(ip [20]byte) (*royalty.Vault, bool, error) {
	vault := new(royalty.Vault)
	ok, err := m.kvGet(addrKey(vaultPref, ip), vault)
	if err != nil || !ok {
		return nil, false, err
	}
	return vault, true, nil
}

func (m *Manager) PutVault(vault *royalty.Vault) error {
	if vault == nil {
		return fmt.Errorf("royaltystate: nil vault")
	}
	return m.kvPut(addrKey(vaultPref, vault.IPAsset), vault)
}

func (m *Manager) RTBalance(vault [20]byte, holder [20]byte) (*big.Int, error) {
	return m.bigInt(pairKey(rtBalancePref, vault, holder))
}

// SetRTBalance stores the holder's balance and maintains the sorted non-zero
// holder index the snapshot logic iterates.
func (m *Manager) SetRTBalance(vault [20]byte, holder [20]byte, balance *big.Int) error {
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("royaltystate: negative royalty token balance")
	}
	if err := m.kvPut(pairKey(rtBalancePref, vault, holder), balance); err != nil {
		return err
	}
	return m.updateIndex(addrKey(rtHoldersPref, vault), holder, balance.Sign() > 0)
}

func (m *Manager) RTHolders(vault [20]byte) ([][20]byte, error) {
	return m.readIndex(addrKey(rtHoldersPref, vault))
}

func (m *Manager) PendingRevenue(vault [20]byte, token [20]byte) (*big.Int, error) {
	return m.bigInt(pairKey(pendingRevenuePref, vault, token))
}

// SetPendingRevenue stores the accrued amount and maintains the sorted index
// of tokens with a non-zero pending balance.
func (m *Manager) SetPendingRevenue(vault [20]byte, token [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("royaltystate: negative pending revenue")
	}
	if err := m.kvPut(pairKey(pendingRevenuePref, vault, token), amount); err != nil {
		return err
	}
	return m.updateIndex(addrKey(revenueTokensPref, vault), token, amount.Sign() > 0)
}

func (m *Manager) RevenueTokens(vault [20]byte) ([][20]byte, error) {
	return m.readIndex(addrKey(revenueTokensPref, vault))
}

func (m *Manager) Snapshot(vault [20]byte, id uint64) (*royalty.Snapshot, bool, error) {
	snap := new(royalty.Snapshot)
	ok, err := m.kvGet(snapshotKey(vault, id), snap)
	if err != nil || !ok {
		return nil, false, err
	}
	return snap, true, nil
}

func (m *Manager) PutSnapshot(vault [20]byte, snap *royalty.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("royaltystate: nil snapshot")
	}
	return m.kvPut(snapshotKey(vault, snap.ID), snap)
}

func (m *Manager) Claimed(vault [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) (bool, error) {
	return m.flag(claimKey(vault, snapshotID, token, claimer))
}

func (m *Manager) MarkClaimed(vault [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) error {
	return m.kvPut(claimKey(vault, snapshotID, token, claimer), true)
}

func (m *Manager) LAPRoyalty(policy [20]byte, ip [20]byte) (*royalty.LAPRecord, bool, error) {
	rec := new(royalty.LAPRecord)
	ok, err := m.kvGet(pairKey(lapPref, policy, ip), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

func (m *Manager) PutLAPRoyalty(policy [20]byte, ip [20]byte, rec *royalty.LAPRecord) error {
	if rec == nil {
		return fmt.Errorf("royaltystate: nil royalty record")
	}
	return m.kvPut(pairKey(lapPref, policy, ip), rec)
}

func (m *Manager) TokenBalance(token [20]byte, addr [20]byte) (*big.Int, error) {
	return m.bigInt(pairKey(tokenBalancePref, token, addr))
}

// TransferToken moves payment tokens between two accounts of the module's
// token ledger.
func (m *Manager) TransferToken(token [20]byte, from [20]byte, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("royaltystate: transfer amount must be positive")
	}
	fromBalance, err := m.TokenBalance(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %x", royalty.ErrInsufficientBalance, token)
	}
	if err := m.kvPut(pairKey(tokenBalancePref, token, from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := m.TokenBalance(token, to)
	if err != nil {
		return err
	}
	return m.kvPut(pairKey(tokenBalancePref, token, to), toBalance.Add(toBalance, amount))
}

// MintToken credits freshly minted payment tokens to an account. Used by the
// genesis bootstrap and by tests.
func (m *Manager) MintToken(token [20]byte, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("royaltystate: mint amount must be positive")
	}
	balance, err := m.TokenBalance(token, to)
	if err != nil {
		return err
	}
	return m.kvPut(pairKey(tokenBalancePref, token, to), balance.Add(balance, amount))
}

func (m *Manager) readIndex(key []byte) ([][20]byte, error) {
	var index [][20]byte
	if _, err := m.kvGet(key, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// updateIndex inserts or removes the address from the sorted index stored
// under key, keeping the stored list deterministic.
func (m *Manager) updateIndex(key []byte, addr [20]byte, present bool) error {
	index, err := m.readIndex(key)
	if err != nil {
		return err
	}
	pos := sort.Search(len(index), func(i int) bool {
		return bytes.Compare(index[i][:], addr[:]) >= 0
	})
	found := pos < len(index) && index[pos] == addr
	switch {
	case present && !found:
		index = append(index, [20]byte{})
		copy(index[pos+1:], index[pos:])
		index[pos] = addr
	case !present && found:
		index = append(index[:pos], index[pos+1:]...)
	default:
		return nil
	}
	return m.kvPut(key, index)
}
