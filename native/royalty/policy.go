package royalty

import "math/big"

// Policy is a native royalty-policy implementation. The engine dispatches the
// licensing hooks to the policy whose on-chain address the license names.
// External policies registered through RegisterExternalRoyaltyPolicy have no
// native implementation; the engine records graph edges for them and skips
// the hooks.
type Policy interface {
	// Address is the on-chain identity of the policy. Whitelisting and
	// dispatch are keyed by it.
	Address() [20]byte

	// OnLicenseMinting runs when the licensing module mints a license token
	// for the asset under this policy. Implementations validate that the
	// offered percentage still fits and record whatever bookkeeping future
	// links need.
	OnLicenseMinting(st State, ip [20]byte, percent uint64, externalData []byte) error

	// OnLinkToParents runs when the asset registers as a derivative. The
	// engine has already created the child vault and validated graph shape
	// and limits; parents and percents carry only the links governed by
	// this policy.
	OnLinkToParents(st State, ip [20]byte, vault [20]byte, parents [][20]byte, percents []uint64, externalData []byte) error

	// CollectRoyaltyTokens moves the royalty tokens reserved for the
	// ancestor during linking into the ancestor's vault and returns the
	// amount moved. A second collection for the same pair fails.
	CollectRoyaltyTokens(st State, child [20]byte, ancestor [20]byte) (*big.Int, error)
}
