package royalty

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"testing"

	"ipchain/core/events"
)

var (
	adminAddr     = testAddr(0xA1)
	licensingAddr = testAddr(0xB1)
	lapAddr       = testAddr(0xC1)
	usdcAddr      = testAddr(0xD1)
)

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[0] = b
	a[19] = b
	return a
}

type mockState struct {
	roles    map[string]map[[20]byte]bool
	limits   *GraphLimits
	policyWL map[[20]byte]bool
	tokenWL  map[[20]byte]bool
	external map[[20]byte]bool
	graphs   map[[20]byte]*IPGraph
	vaults   map[[20]byte]*Vault
	rt       map[[20]byte]map[[20]byte]*big.Int
	pending  map[[20]byte]map[[20]byte]*big.Int
	snaps    map[[20]byte]map[uint64]*Snapshot
	claims   map[string]bool
	lap      map[string]*LAPRecord
	tokens   map[[20]byte]map[[20]byte]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		roles:    make(map[string]map[[20]byte]bool),
		policyWL: make(map[[20]byte]bool),
		tokenWL:  make(map[[20]byte]bool),
		external: make(map[[20]byte]bool),
		graphs:   make(map[[20]byte]*IPGraph),
		vaults:   make(map[[20]byte]*Vault),
		rt:       make(map[[20]byte]map[[20]byte]*big.Int),
		pending:  make(map[[20]byte]map[[20]byte]*big.Int),
		snaps:    make(map[[20]byte]map[uint64]*Snapshot),
		claims:   make(map[string]bool),
		lap:      make(map[string]*LAPRecord),
		tokens:   make(map[[20]byte]map[[20]byte]*big.Int),
	}
}

func (m *mockState) grantRole(role string, addr [20]byte) {
	if m.roles[role] == nil {
		m.roles[role] = make(map[[20]byte]bool)
	}
	m.roles[role][addr] = true
}

func (m *mockState) HasRole(role string, addr [20]byte) bool {
	return m.roles[role][addr]
}

func (m *mockState) GraphLimits() (GraphLimits, bool, error) {
	if m.limits == nil {
		return GraphLimits{}, false, nil
	}
	return *m.limits, true, nil
}

func (m *mockState) SetGraphLimits(limits GraphLimits) error {
	m.limits = &limits
	return nil
}

func (m *mockState) PolicyWhitelisted(policy [20]byte) (bool, error) {
	return m.policyWL[policy], nil
}

func (m *mockState) SetPolicyWhitelisted(policy [20]byte, allowed bool) error {
	m.policyWL[policy] = allowed
	return nil
}

func (m *mockState) TokenWhitelisted(token [20]byte) (bool, error) {
	return m.tokenWL[token], nil
}

func (m *mockState) SetTokenWhitelisted(token [20]byte, allowed bool) error {
	m.tokenWL[token] = allowed
	return nil
}

func (m *mockState) ExternalPolicyRegistered(policy [20]byte) (bool, error) {
	return m.external[policy], nil
}

func (m *mockState) RegisterExternalPolicy(policy [20]byte) error {
	m.external[policy] = true
	return nil
}

func (m *mockState) IPGraph(ip [20]byte) (*IPGraph, error) {
	if g, ok := m.graphs[ip]; ok {
		return g.Clone(), nil
	}
	return &IPGraph{}, nil
}

func (m *mockState) PutIPGraph(ip [20]byte, graph *IPGraph) error {
	m.graphs[ip] = graph.Clone()
	return nil
}

func (m *mockState) Vault(ip [20]byte) (*Vault, bool, error) {
	if v, ok := m.vaults[ip]; ok {
		return v.Clone(), true, nil
	}
	return nil, false, nil
}

func (m *mockState) PutVault(vault *Vault) error {
	m.vaults[vault.IPAsset] = vault.Clone()
	return nil
}

func (m *mockState) balanceIn(book map[[20]byte]map[[20]byte]*big.Int, outer, inner [20]byte) *big.Int {
	if book[outer] == nil {
		return big.NewInt(0)
	}
	if v, ok := book[outer][inner]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (m *mockState) setIn(book map[[20]byte]map[[20]byte]*big.Int, outer, inner [20]byte, v *big.Int) {
	if book[outer] == nil {
		book[outer] = make(map[[20]byte]*big.Int)
	}
	book[outer][inner] = new(big.Int).Set(v)
}

func (m *mockState) RTBalance(vault [20]byte, holder [20]byte) (*big.Int, error) {
	return m.balanceIn(m.rt, vault, holder), nil
}

func (m *mockState) SetRTBalance(vault [20]byte, holder [20]byte, balance *big.Int) error {
	if balance.Sign() < 0 {
		return fmt.Errorf("mock: negative rt balance")
	}
	m.setIn(m.rt, vault, holder, balance)
	return nil
}

func (m *mockState) RTHolders(vault [20]byte) ([][20]byte, error) {
	return sortedNonZero(m.rt[vault]), nil
}

func (m *mockState) PendingRevenue(vault [20]byte, token [20]byte) (*big.Int, error) {
	return m.balanceIn(m.pending, vault, token), nil
}

func (m *mockState) SetPendingRevenue(vault [20]byte, token [20]byte, amount *big.Int) error {
	m.setIn(m.pending, vault, token, amount)
	return nil
}

func (m *mockState) RevenueTokens(vault [20]byte) ([][20]byte, error) {
	return sortedNonZero(m.pending[vault]), nil
}

func (m *mockState) Snapshot(vault [20]byte, id uint64) (*Snapshot, bool, error) {
	if s, ok := m.snaps[vault][id]; ok {
		return s.Clone(), true, nil
	}
	return nil, false, nil
}

func (m *mockState) PutSnapshot(vault [20]byte, snap *Snapshot) error {
	if m.snaps[vault] == nil {
		m.snaps[vault] = make(map[uint64]*Snapshot)
	}
	m.snaps[vault][snap.ID] = snap.Clone()
	return nil
}

func claimID(vault [20]byte, id uint64, token, claimer [20]byte) string {
	return fmt.Sprintf("%x/%d/%x/%x", vault, id, token, claimer)
}

func (m *mockState) Claimed(vault [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) (bool, error) {
	return m.claims[claimID(vault, snapshotID, token, claimer)], nil
}

func (m *mockState) MarkClaimed(vault [20]byte, snapshotID uint64, token [20]byte, claimer [20]byte) error {
	m.claims[claimID(vault, snapshotID, token, claimer)] = true
	return nil
}

func lapID(policy, ip [20]byte) string {
	return fmt.Sprintf("%x/%x", policy, ip)
}

func (m *mockState) LAPRoyalty(policy [20]byte, ip [20]byte) (*LAPRecord, bool, error) {
	if rec, ok := m.lap[lapID(policy, ip)]; ok {
		return rec.Clone(), true, nil
	}
	return nil, false, nil
}

func (m *mockState) PutLAPRoyalty(policy [20]byte, ip [20]byte, rec *LAPRecord) error {
	m.lap[lapID(policy, ip)] = rec.Clone()
	return nil
}

func (m *mockState) TokenBalance(token [20]byte, addr [20]byte) (*big.Int, error) {
	return m.balanceIn(m.tokens, token, addr), nil
}

func (m *mockState) TransferToken(token [20]byte, from [20]byte, to [20]byte, amount *big.Int) error {
	balance := m.balanceIn(m.tokens, token, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %x", ErrInsufficientBalance, token)
	}
	m.setIn(m.tokens, token, from, balance.Sub(balance, amount))
	toBalance := m.balanceIn(m.tokens, token, to)
	m.setIn(m.tokens, token, to, toBalance.Add(toBalance, amount))
	return nil
}

func (m *mockState) mint(token, to [20]byte, amount int64) {
	balance := m.balanceIn(m.tokens, token, to)
	m.setIn(m.tokens, token, to, balance.Add(balance, big.NewInt(amount)))
}

func sortedNonZero(book map[[20]byte]*big.Int) [][20]byte {
	out := make([][20]byte, 0, len(book))
	for addr, v := range book {
		if v.Sign() > 0 {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

var _ State = (*mockState)(nil)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) {
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) typesSeen() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType()
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *recordingEmitter) {
	t.Helper()
	st := newMockState()
	st.grantRole(RoleRoyaltyAdmin, adminAddr)
	eng := NewEngine()
	eng.SetState(st)
	eng.SetNowFunc(func() int64 { return 1_700_000_000 })
	eng.SetLicensingModule(licensingAddr)
	if err := eng.RegisterPolicy(NewLAPPolicy(lapAddr)); err != nil {
		t.Fatalf("register policy: %v", err)
	}
	if err := eng.WhitelistRoyaltyPolicy(adminAddr, lapAddr, true); err != nil {
		t.Fatalf("whitelist policy: %v", err)
	}
	if err := eng.WhitelistRoyaltyToken(adminAddr, usdcAddr, true); err != nil {
		t.Fatalf("whitelist token: %v", err)
	}
	rec := &recordingEmitter{}
	eng.SetEmitter(rec)
	return eng, st, rec
}

// mintLicense drives the licensing hook the way the licensing module would.
func mintLicense(t *testing.T, eng *Engine, ip [20]byte, percent uint64) {
	t.Helper()
	if err := eng.OnLicenseMinting(licensingAddr, ip, lapAddr, percent, nil); err != nil {
		t.Fatalf("license minting for %x: %v", ip, err)
	}
}

// linkToParents registers ip as a derivative with every link under the LAP
// policy at the given percents.
func linkToParents(t *testing.T, eng *Engine, ip [20]byte, parents [][20]byte, percents []uint64) {
	t.Helper()
	policies := make([][20]byte, len(parents))
	for i := range policies {
		policies[i] = lapAddr
	}
	if err := eng.OnLinkToParents(licensingAddr, ip, parents, policies, percents, nil); err != nil {
		t.Fatalf("link %x: %v", ip, err)
	}
}

func TestSetIpGraphLimits(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	limits, err := eng.GraphLimits()
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	if limits != DefaultGraphLimits() {
		t.Fatalf("expected defaults before configuration, got %+v", limits)
	}

	update := GraphLimits{MaxParents: 2, MaxAncestors: 8, MaxAccumulatedPolicies: 3}
	if err := eng.SetIpGraphLimits(testAddr(0x99), update); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := eng.SetIpGraphLimits(adminAddr, GraphLimits{MaxParents: 0, MaxAncestors: 8, MaxAccumulatedPolicies: 3}); !errors.Is(err, ErrInvalidLimits) {
		t.Fatalf("expected ErrInvalidLimits, got %v", err)
	}
	if err := eng.SetIpGraphLimits(adminAddr, update); err != nil {
		t.Fatalf("set limits: %v", err)
	}
	limits, err = eng.GraphLimits()
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	if limits != update {
		t.Fatalf("limits not applied: %+v", limits)
	}
}

func TestWhitelistRoundTrips(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	policy := testAddr(0x31)
	token := testAddr(0x32)

	if err := eng.WhitelistRoyaltyPolicy(testAddr(0x99), policy, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := eng.WhitelistRoyaltyPolicy(adminAddr, [20]byte{}, true); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}

	if err := eng.WhitelistRoyaltyPolicy(adminAddr, policy, true); err != nil {
		t.Fatalf("whitelist policy: %v", err)
	}
	ok, err := eng.IsWhitelistedPolicy(policy)
	if err != nil || !ok {
		t.Fatalf("policy should be whitelisted, ok=%v err=%v", ok, err)
	}
	if err := eng.WhitelistRoyaltyPolicy(adminAddr, policy, false); err != nil {
		t.Fatalf("de-whitelist policy: %v", err)
	}
	ok, err = eng.IsWhitelistedPolicy(policy)
	if err != nil || ok {
		t.Fatalf("policy should be removed, ok=%v err=%v", ok, err)
	}

	if err := eng.WhitelistRoyaltyToken(adminAddr, token, true); err != nil {
		t.Fatalf("whitelist token: %v", err)
	}
	ok, err = eng.IsWhitelistedToken(token)
	if err != nil || !ok {
		t.Fatalf("token should be whitelisted, ok=%v err=%v", ok, err)
	}

	seen := rec.typesSeen()
	wantPolicy, wantToken := 0, 0
	for _, typ := range seen {
		switch typ {
		case events.TypeRoyaltyPolicyWhitelistUpdated:
			wantPolicy++
		case events.TypeRoyaltyTokenWhitelistUpdated:
			wantToken++
		}
	}
	if wantPolicy != 2 || wantToken != 1 {
		t.Fatalf("unexpected whitelist events: %v", seen)
	}
}

func TestRegisterExternalRoyaltyPolicy(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	external := testAddr(0x41)

	if err := eng.RegisterExternalRoyaltyPolicy(testAddr(0x55), external); err != nil {
		t.Fatalf("register external: %v", err)
	}
	ok, err := eng.IsExternalPolicy(external)
	if err != nil || !ok {
		t.Fatalf("external policy missing, ok=%v err=%v", ok, err)
	}
	if err := eng.RegisterExternalRoyaltyPolicy(testAddr(0x55), external); !errors.Is(err, ErrPolicyAlreadyRegistered) {
		t.Fatalf("expected ErrPolicyAlreadyRegistered, got %v", err)
	}
	if err := eng.RegisterExternalRoyaltyPolicy(testAddr(0x55), lapAddr); !errors.Is(err, ErrPolicyAlreadyRegistered) {
		t.Fatalf("whitelisted policy must not register as external, got %v", err)
	}
}

func TestOnLicenseMintingAuthorization(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ip := testAddr(0x01)

	if err := eng.OnLicenseMinting(testAddr(0x99), ip, lapAddr, 10_000_000, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := eng.OnLicenseMinting(licensingAddr, ip, testAddr(0x66), 10_000_000, nil); !errors.Is(err, ErrPolicyNotWhitelisted) {
		t.Fatalf("expected ErrPolicyNotWhitelisted, got %v", err)
	}
	if err := eng.OnLicenseMinting(licensingAddr, ip, lapAddr, TotalRTSupply+1, nil); !errors.Is(err, ErrAbovePercentLimit) {
		t.Fatalf("expected ErrAbovePercentLimit, got %v", err)
	}
}

func TestOnLicenseMintingDeploysVault(t *testing.T) {
	eng, st, rec := newTestEngine(t)
	ip := testAddr(0x01)

	mintLicense(t, eng, ip, 10_000_000)

	vault, ok, err := eng.VaultOf(ip)
	if err != nil || !ok {
		t.Fatalf("vault missing, ok=%v err=%v", ok, err)
	}
	balance, err := st.RTBalance(vault.Address, ip)
	if err != nil {
		t.Fatalf("rt balance: %v", err)
	}
	if balance.Cmp(TotalRTSupplyBig()) != 0 {
		t.Fatalf("expected full supply minted to asset, got %s", balance)
	}
	graph, err := eng.IPGraphOf(ip)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if !containsAddress(graph.Policies, lapAddr) {
		t.Fatalf("policy not accumulated: %+v", graph)
	}

	// A second license under the same policy must not redeploy the vault.
	mintLicense(t, eng, ip, 5_000_000)
	deploys := 0
	for _, typ := range rec.typesSeen() {
		if typ == events.TypeRoyaltyVaultDeployed {
			deploys++
		}
	}
	if deploys != 1 {
		t.Fatalf("expected exactly one vault deployment, got %d", deploys)
	}
}

func TestLicenseFreezesAncestry(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	parent := testAddr(0x01)
	child := testAddr(0x02)

	mintLicense(t, eng, parent, 10_000_000)
	mintLicense(t, eng, child, 10_000_000)

	err := eng.OnLinkToParents(licensingAddr, child, [][20]byte{parent}, [][20]byte{lapAddr}, []uint64{10_000_000}, nil)
	if !errors.Is(err, ErrIPUnlinkable) {
		t.Fatalf("expected ErrIPUnlinkable after minting, got %v", err)
	}
}

func TestLinkShapeValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	parent := testAddr(0x01)
	child := testAddr(0x02)
	mintLicense(t, eng, parent, 10_000_000)

	cases := []struct {
		name     string
		parents  [][20]byte
		policies [][20]byte
		percents []uint64
		want     error
	}{
		{"no parents", nil, nil, nil, ErrNoParents},
		{"length mismatch", [][20]byte{parent}, [][20]byte{lapAddr, lapAddr}, []uint64{1}, ErrArrayLengthMismatch},
		{"duplicate parent", [][20]byte{parent, parent}, [][20]byte{lapAddr, lapAddr}, []uint64{1, 1}, ErrDuplicateParent},
		{"self link", [][20]byte{child}, [][20]byte{lapAddr}, []uint64{1}, ErrSelfLink},
		{"zero parent", [][20]byte{{}}, [][20]byte{lapAddr}, []uint64{1}, ErrZeroAddress},
		{"percent above cap", [][20]byte{parent}, [][20]byte{lapAddr}, []uint64{TotalRTSupply + 1}, ErrAbovePercentLimit},
	}
	for _, tc := range cases {
		err := eng.OnLinkToParents(licensingAddr, child, tc.parents, tc.policies, tc.percents, nil)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLinkEnforcesGraphLimits(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if err := eng.SetIpGraphLimits(adminAddr, GraphLimits{MaxParents: 1, MaxAncestors: 1, MaxAccumulatedPolicies: 4}); err != nil {
		t.Fatalf("set limits: %v", err)
	}

	p1 := testAddr(0x01)
	p2 := testAddr(0x02)
	child := testAddr(0x03)
	mintLicense(t, eng, p1, 10_000_000)
	mintLicense(t, eng, p2, 10_000_000)

	err := eng.OnLinkToParents(licensingAddr, child,
		[][20]byte{p1, p2}, [][20]byte{lapAddr, lapAddr}, []uint64{1_000_000, 1_000_000}, nil)
	if !errors.Is(err, ErrAboveParentLimit) {
		t.Fatalf("expected ErrAboveParentLimit, got %v", err)
	}

	// One parent with one ancestor of its own overflows MaxAncestors=1.
	linkToParents(t, eng, child, [][20]byte{p1}, []uint64{1_000_000})
	mintLicense(t, eng, child, 10_000_000)
	grandchild := testAddr(0x04)
	err = eng.OnLinkToParents(licensingAddr, grandchild,
		[][20]byte{child}, [][20]byte{lapAddr}, []uint64{1_000_000}, nil)
	if !errors.Is(err, ErrAboveAncestorLimit) {
		t.Fatalf("expected ErrAboveAncestorLimit, got %v", err)
	}
}

func TestLinkReservesRoyaltyTokens(t *testing.T) {
	eng, st, rec := newTestEngine(t)
	parent := testAddr(0x01)
	child := testAddr(0x02)

	mintLicense(t, eng, parent, 10_000_000)
	linkToParents(t, eng, child, [][20]byte{parent}, []uint64{10_000_000})

	childVault, ok, err := eng.VaultOf(child)
	if err != nil || !ok {
		t.Fatalf("child vault missing, ok=%v err=%v", ok, err)
	}
	ipBalance, _ := st.RTBalance(childVault.Address, child)
	reserved, _ := st.RTBalance(childVault.Address, lapAddr)
	if ipBalance.Cmp(big.NewInt(90_000_000)) != 0 {
		t.Fatalf("asset balance after reservation: %s", ipBalance)
	}
	if reserved.Cmp(big.NewInt(10_000_000)) != 0 {
		t.Fatalf("reserved balance: %s", reserved)
	}

	recData, ok, err := eng.LAPRoyalty(lapAddr, child)
	if err != nil || !ok {
		t.Fatalf("royalty record missing, ok=%v err=%v", ok, err)
	}
	if recData.RoyaltyStack != 10_000_000 {
		t.Fatalf("stack: %d", recData.RoyaltyStack)
	}
	if recData.AncestorIndex(parent) < 0 {
		t.Fatalf("parent not recorded as ancestor: %+v", recData)
	}

	graph, err := eng.IPGraphOf(child)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if !containsAddress(graph.Parents, parent) || !containsAddress(graph.Ancestors, parent) {
		t.Fatalf("ancestry not recorded: %+v", graph)
	}

	linked := false
	for _, typ := range rec.typesSeen() {
		if typ == events.TypeRoyaltyParentsLinked {
			linked = true
		}
	}
	if !linked {
		t.Fatalf("missing link event: %v", rec.typesSeen())
	}
}

func TestLinkToUnlicensedParentFails(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	child := testAddr(0x02)

	err := eng.OnLinkToParents(licensingAddr, child,
		[][20]byte{testAddr(0x01)}, [][20]byte{lapAddr}, []uint64{1_000_000}, nil)
	if !errors.Is(err, ErrUnlinkableToParent) {
		t.Fatalf("expected ErrUnlinkableToParent, got %v", err)
	}
}

func TestRelinkFails(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	parent := testAddr(0x01)
	other := testAddr(0x03)
	child := testAddr(0x02)

	mintLicense(t, eng, parent, 10_000_000)
	mintLicense(t, eng, other, 10_000_000)
	linkToParents(t, eng, child, [][20]byte{parent}, []uint64{10_000_000})

	err := eng.OnLinkToParents(licensingAddr, child,
		[][20]byte{other}, [][20]byte{lapAddr}, []uint64{1_000_000}, nil)
	if !errors.Is(err, ErrIPUnlinkable) {
		t.Fatalf("expected ErrIPUnlinkable on relink, got %v", err)
	}
}

func TestMintingAfterLinkChecksStack(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	parent := testAddr(0x01)
	child := testAddr(0x02)

	mintLicense(t, eng, parent, 10_000_000)
	linkToParents(t, eng, child, [][20]byte{parent}, []uint64{40_000_000})

	// Stack is 40%; offering 60% still fits, 61% does not.
	mintLicense(t, eng, child, 60_000_000)
	err := eng.OnLicenseMinting(licensingAddr, child, lapAddr, 61_000_000, nil)
	if !errors.Is(err, ErrAbovePercentLimit) {
		t.Fatalf("expected ErrAbovePercentLimit, got %v", err)
	}
}

func TestExternalPolicyLinksSkipAccounting(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	external := testAddr(0x41)
	parent := testAddr(0x01)
	child := testAddr(0x02)

	if err := eng.RegisterExternalRoyaltyPolicy(testAddr(0x55), external); err != nil {
		t.Fatalf("register external: %v", err)
	}
	// Parent licenses under the external policy, so it has a vault but no
	// native accounting record.
	if err := eng.OnLicenseMinting(licensingAddr, parent, external, 10_000_000, nil); err != nil {
		t.Fatalf("external license: %v", err)
	}
	if err := eng.OnLinkToParents(licensingAddr, child,
		[][20]byte{parent}, [][20]byte{external}, []uint64{10_000_000}, nil); err != nil {
		t.Fatalf("external link: %v", err)
	}

	childVault, ok, err := eng.VaultOf(child)
	if err != nil || !ok {
		t.Fatalf("child vault missing, ok=%v err=%v", ok, err)
	}
	balance, _ := st.RTBalance(childVault.Address, child)
	if balance.Cmp(TotalRTSupplyBig()) != 0 {
		t.Fatalf("external links must not reserve royalty tokens, balance %s", balance)
	}
	if _, ok, _ := eng.LAPRoyalty(external, child); ok {
		t.Fatalf("no native record expected for external policy")
	}
}
