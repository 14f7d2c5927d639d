package royalty

import (
	"bytes"
	"math/big"
	"sort"
)

// Vault is the per-asset account that custodies revenue and tracks royalty
// tokens. The record is created lazily the first time the asset mints a
// license or links to parents.
type Vault struct {
	IPAsset        [20]byte
	Address        [20]byte
	CreatedAt      uint64
	SnapshotCount  uint64
	LastSnapshotAt uint64
}

// Clone returns a deep copy of the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// RTHolding pairs a royalty-token holder with its balance at a snapshot.
type RTHolding struct {
	Holder  [20]byte
	Balance *big.Int
}

// TokenRevenue pairs a payment token with the revenue captured for it at a
// snapshot.
type TokenRevenue struct {
	Token  [20]byte
	Amount *big.Int
}

// Snapshot freezes a vault's royalty-token distribution together with the
// revenue accrued since the previous snapshot. Claims always settle against a
// snapshot, never against live balances.
type Snapshot struct {
	ID        uint64
	Timestamp uint64
	Holders   []RTHolding
	Revenue   []TokenRevenue
	Digest    [32]byte
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := &Snapshot{ID: s.ID, Timestamp: s.Timestamp, Digest: s.Digest}
	if len(s.Holders) > 0 {
		clone.Holders = make([]RTHolding, len(s.Holders))
		for i, h := range s.Holders {
			clone.Holders[i] = RTHolding{Holder: h.Holder, Balance: cloneBigInt(h.Balance)}
		}
	}
	if len(s.Revenue) > 0 {
		clone.Revenue = make([]TokenRevenue, len(s.Revenue))
		for i, r := range s.Revenue {
			clone.Revenue[i] = TokenRevenue{Token: r.Token, Amount: cloneBigInt(r.Amount)}
		}
	}
	return clone
}

// HolderBalance returns the royalty-token balance the holder had when the
// snapshot was taken, or zero when the holder is absent.
func (s *Snapshot) HolderBalance(holder [20]byte) *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	for _, h := range s.Holders {
		if h.Holder == holder {
			return cloneBigInt(h.Balance)
		}
	}
	return big.NewInt(0)
}

// TokenAmount returns the revenue captured for the token at the snapshot, or
// zero when the token saw no revenue in the covered window.
func (s *Snapshot) TokenAmount(token [20]byte) *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	for _, r := range s.Revenue {
		if r.Token == token {
			return cloneBigInt(r.Amount)
		}
	}
	return big.NewInt(0)
}

// IPGraph records an asset's position in the ancestry DAG: its direct
// parents, the transitive ancestor set and every distinct royalty policy
// encountered on the asset or its ancestry. All three slices are kept sorted
// so stored records stay deterministic.
type IPGraph struct {
	Parents   [][20]byte
	Ancestors [][20]byte
	Policies  [][20]byte
}

// Clone returns a deep copy of the graph record.
func (g *IPGraph) Clone() *IPGraph {
	if g == nil {
		return nil
	}
	return &IPGraph{
		Parents:   copyAddresses(g.Parents),
		Ancestors: copyAddresses(g.Ancestors),
		Policies:  copyAddresses(g.Policies),
	}
}

// HasParents reports whether the asset already linked to at least one parent.
func (g *IPGraph) HasParents() bool {
	return g != nil && len(g.Parents) > 0
}

// LAPRecord is the per-asset accounting state of the liquid absolute
// percentage policy. AncestorPercents is aligned with Ancestors and expressed
// in parts of TotalRTSupply; Collected marks the ancestors whose reserved
// royalty tokens were already moved into their vaults.
type LAPRecord struct {
	Unlinkable       bool
	RoyaltyStack     uint64
	Ancestors        [][20]byte
	AncestorPercents []uint64
	Collected        []bool
}

// Clone returns a deep copy of the record.
func (r *LAPRecord) Clone() *LAPRecord {
	if r == nil {
		return nil
	}
	clone := &LAPRecord{Unlinkable: r.Unlinkable, RoyaltyStack: r.RoyaltyStack}
	if len(r.Ancestors) > 0 {
		clone.Ancestors = copyAddresses(r.Ancestors)
		clone.AncestorPercents = append([]uint64(nil), r.AncestorPercents...)
		clone.Collected = append([]bool(nil), r.Collected...)
	}
	return clone
}

// AncestorIndex returns the position of the ancestor in the record, or -1
// when the address is not a recorded ancestor.
func (r *LAPRecord) AncestorIndex(ancestor [20]byte) int {
	if r == nil {
		return -1
	}
	for i, a := range r.Ancestors {
		if a == ancestor {
			return i
		}
	}
	return -1
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func copyAddresses(addrs [][20]byte) [][20]byte {
	if len(addrs) == 0 {
		return nil
	}
	return append([][20]byte(nil), addrs...)
}

func sortAddresses(addrs [][20]byte) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}

func containsAddress(addrs [][20]byte, addr [20]byte) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}

var zeroAddress [20]byte

func isZeroAddress(addr [20]byte) bool {
	return addr == zeroAddress
}
