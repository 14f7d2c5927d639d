package royalty

import (
	"fmt"
	"math/big"
)

const (
	// TotalRTSupply is the fixed royalty-token supply minted into every
	// vault. One token represents one hundred-millionth of the vault's
	// revenue, so a balance of 10_000_000 entitles the holder to ten
	// percent of every revenue snapshot. Royalty percentages share the
	// same denominator, which keeps the percent-to-token conversion
	// exact.
	TotalRTSupply uint64 = 100_000_000

	// RoleRoyaltyAdmin guards whitelist and limit mutations.
	RoleRoyaltyAdmin = "ROLE_ROYALTY_ADMIN"

	// DefaultSnapshotInterval is the minimum number of seconds between two
	// snapshots of the same vault.
	DefaultSnapshotInterval int64 = 7 * 24 * 60 * 60
)

// Default graph ceilings applied until governance overrides them.
const (
	DefaultMaxParents             uint64 = 16
	DefaultMaxAncestors           uint64 = 256
	DefaultMaxAccumulatedPolicies uint64 = 16
)

// TotalRTSupplyBig returns the royalty-token supply as a fresh big integer.
func TotalRTSupplyBig() *big.Int {
	return new(big.Int).SetUint64(TotalRTSupply)
}

// GraphLimits bounds the ancestry graph so linking costs stay predictable.
// All three ceilings must be positive.
type GraphLimits struct {
	MaxParents             uint64
	MaxAncestors           uint64
	MaxAccumulatedPolicies uint64
}

// DefaultGraphLimits returns the ceilings used before governance configures
// explicit ones.
func DefaultGraphLimits() GraphLimits {
	return GraphLimits{
		MaxParents:             DefaultMaxParents,
		MaxAncestors:           DefaultMaxAncestors,
		MaxAccumulatedPolicies: DefaultMaxAccumulatedPolicies,
	}
}

// Validate rejects limit sets containing a zero ceiling. A zero ceiling would
// silently forbid every future link, which is never the intent of a limits
// update.
func (l GraphLimits) Validate() error {
	if l.MaxParents == 0 {
		return fmt.Errorf("%w: max parents must be positive", ErrInvalidLimits)
	}
	if l.MaxAncestors == 0 {
		return fmt.Errorf("%w: max ancestors must be positive", ErrInvalidLimits)
	}
	if l.MaxAccumulatedPolicies == 0 {
		return fmt.Errorf("%w: max accumulated policies must be positive", ErrInvalidLimits)
	}
	return nil
}
