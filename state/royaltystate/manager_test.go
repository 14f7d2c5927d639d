package royaltystate

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"ipchain/native/royalty"
	"ipchain/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestManagerWhitelistsAndLimits(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	_, ok, err := m.GraphLimits()
	require.NoError(t, err)
	require.False(t, ok)

	limits := royalty.GraphLimits{MaxParents: 4, MaxAncestors: 32, MaxAccumulatedPolicies: 8}
	require.NoError(t, m.SetGraphLimits(limits))
	got, ok, err := m.GraphLimits()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, limits, got)

	policy := addr(0x01)
	whitelisted, err := m.PolicyWhitelisted(policy)
	require.NoError(t, err)
	require.False(t, whitelisted)
	require.NoError(t, m.SetPolicyWhitelisted(policy, true))
	whitelisted, err = m.PolicyWhitelisted(policy)
	require.NoError(t, err)
	require.True(t, whitelisted)
	require.NoError(t, m.SetPolicyWhitelisted(policy, false))
	whitelisted, err = m.PolicyWhitelisted(policy)
	require.NoError(t, err)
	require.False(t, whitelisted)

	external := addr(0x02)
	require.NoError(t, m.RegisterExternalPolicy(external))
	registered, err := m.ExternalPolicyRegistered(external)
	require.NoError(t, err)
	require.True(t, registered)
}

func TestManagerVaultAndGraphRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	ip := addr(0x10)
	graph, err := m.IPGraph(ip)
	require.NoError(t, err)
	require.Empty(t, graph.Parents)

	stored := &royalty.IPGraph{
		Parents:   [][20]byte{addr(0x11)},
		Ancestors: [][20]byte{addr(0x11), addr(0x12)},
		Policies:  [][20]byte{addr(0x20)},
	}
	require.NoError(t, m.PutIPGraph(ip, stored))
	loaded, err := m.IPGraph(ip)
	require.NoError(t, err)
	require.Equal(t, stored, loaded)

	_, ok, err := m.Vault(ip)
	require.NoError(t, err)
	require.False(t, ok)
	vault := &royalty.Vault{IPAsset: ip, Address: addr(0x30), CreatedAt: 99, SnapshotCount: 2, LastSnapshotAt: 77}
	require.NoError(t, m.PutVault(vault))
	loadedVault, ok, err := m.Vault(ip)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vault, loadedVault)
}

func TestManagerRTBalanceIndex(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	vault := addr(0x30)

	balance, err := m.RTBalance(vault, addr(0x01))
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, m.SetRTBalance(vault, addr(0x02), big.NewInt(500)))
	require.NoError(t, m.SetRTBalance(vault, addr(0x01), big.NewInt(250)))
	holders, err := m.RTHolders(vault)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{addr(0x01), addr(0x02)}, holders)

	require.NoError(t, m.SetRTBalance(vault, addr(0x02), big.NewInt(0)))
	holders, err = m.RTHolders(vault)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{addr(0x01)}, holders)

	require.Error(t, m.SetRTBalance(vault, addr(0x01), big.NewInt(-1)))
}

func TestManagerPendingRevenueIndex(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	vault := addr(0x30)
	usd := addr(0x40)

	require.NoError(t, m.SetPendingRevenue(vault, usd, big.NewInt(1_000)))
	tokens, err := m.RevenueTokens(vault)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{usd}, tokens)

	amount, err := m.PendingRevenue(vault, usd)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), amount)

	require.NoError(t, m.SetPendingRevenue(vault, usd, big.NewInt(0)))
	tokens, err = m.RevenueTokens(vault)
	require.NoError(t, err)
	require.Empty(t, tokens)
}

func TestManagerSnapshotAndClaims(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	vault := addr(0x30)

	snap := &royalty.Snapshot{
		ID:        1,
		Timestamp: 1234,
		Holders:   []royalty.RTHolding{{Holder: addr(0x01), Balance: big.NewInt(90_000_000)}},
		Revenue:   []royalty.TokenRevenue{{Token: addr(0x40), Amount: big.NewInt(1_000_000)}},
		Digest:    [32]byte{0xAB},
	}
	require.NoError(t, m.PutSnapshot(vault, snap))
	loaded, ok, err := m.Snapshot(vault, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap, loaded)

	_, ok, err = m.Snapshot(vault, 2)
	require.NoError(t, err)
	require.False(t, ok)

	claimed, err := m.Claimed(vault, 1, addr(0x40), addr(0x01))
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, m.MarkClaimed(vault, 1, addr(0x40), addr(0x01)))
	claimed, err = m.Claimed(vault, 1, addr(0x40), addr(0x01))
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestManagerLAPRoyaltyRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	policy := addr(0x20)
	ip := addr(0x10)

	_, ok, err := m.LAPRoyalty(policy, ip)
	require.NoError(t, err)
	require.False(t, ok)

	rec := &royalty.LAPRecord{
		Unlinkable:       true,
		RoyaltyStack:     20_000_000,
		Ancestors:        [][20]byte{addr(0x11), addr(0x12)},
		AncestorPercents: []uint64{10_000_000, 10_000_000},
		Collected:        []bool{true, false},
	}
	require.NoError(t, m.PutLAPRoyalty(policy, ip, rec))
	loaded, ok, err := m.LAPRoyalty(policy, ip)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, loaded)
}

func TestManagerTokenLedger(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	token := addr(0x40)
	payer := addr(0x50)
	vault := addr(0x30)

	require.NoError(t, m.MintToken(token, payer, big.NewInt(1_000)))
	require.NoError(t, m.TransferToken(token, payer, vault, big.NewInt(400)))

	payerBalance, err := m.TokenBalance(token, payer)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(600), payerBalance)
	vaultBalance, err := m.TokenBalance(token, vault)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(400), vaultBalance)

	err = m.TransferToken(token, payer, vault, big.NewInt(601))
	require.ErrorIs(t, err, royalty.ErrInsufficientBalance)
}

func TestManagerRoles(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	admin := addr(0x60)

	require.False(t, m.HasRole(royalty.RoleRoyaltyAdmin, admin))
	require.NoError(t, m.GrantRole(royalty.RoleRoyaltyAdmin, admin))
	require.True(t, m.HasRole(royalty.RoleRoyaltyAdmin, admin))
	require.NoError(t, m.RevokeRole(royalty.RoleRoyaltyAdmin, admin))
	require.False(t, m.HasRole(royalty.RoleRoyaltyAdmin, admin))
}

func TestManagerOverlayCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	token := addr(0x40)
	holder := addr(0x50)

	require.NoError(t, m.MintToken(token, holder, big.NewInt(77)))
	require.True(t, m.Dirty())
	m.Discard()
	require.False(t, m.Dirty())
	balance, err := m.TokenBalance(token, holder)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, m.MintToken(token, holder, big.NewInt(88)))
	require.NoError(t, m.Commit())
	require.False(t, m.Dirty())

	fresh := NewManager(db)
	balance, err = fresh.TokenBalance(token, holder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(88), balance)
}
