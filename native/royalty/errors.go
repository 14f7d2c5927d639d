package royalty

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the role or the
	// collaborator identity an operation requires.
	ErrUnauthorized = errors.New("royalty: unauthorized")
	// ErrPolicyNotWhitelisted is returned when a royalty policy is neither
	// whitelisted nor registered as an external policy.
	ErrPolicyNotWhitelisted = errors.New("royalty: policy not whitelisted")
	// ErrTokenNotWhitelisted is returned when a payment token has not been
	// whitelisted by governance.
	ErrTokenNotWhitelisted = errors.New("royalty: token not whitelisted")
	// ErrPolicyAlreadyRegistered is returned when an external policy address
	// is already present in the external registry or the whitelist.
	ErrPolicyAlreadyRegistered = errors.New("royalty: policy already registered")

	// ErrAboveParentLimit is returned when a link names more parents than the
	// configured ceiling allows.
	ErrAboveParentLimit = errors.New("royalty: parent count above limit")
	// ErrAboveAncestorLimit is returned when a link would give the child more
	// ancestors than the configured ceiling allows.
	ErrAboveAncestorLimit = errors.New("royalty: ancestor count above limit")
	// ErrAbovePolicyLimit is returned when an operation would grow an asset's
	// accumulated royalty-policy set beyond the configured ceiling.
	ErrAbovePolicyLimit = errors.New("royalty: accumulated policy count above limit")
	// ErrAbovePercentLimit is returned when a royalty percentage, or a sum of
	// percentages owed to ancestors, exceeds one hundred percent.
	ErrAbovePercentLimit = errors.New("royalty: royalty percentage above limit")
	// ErrInvalidLimits is returned when graph limits contain a zero ceiling.
	ErrInvalidLimits = errors.New("royalty: invalid graph limits")

	// ErrArrayLengthMismatch is returned when the parent, policy and percent
	// slices of a link request differ in length.
	ErrArrayLengthMismatch = errors.New("royalty: array length mismatch")
	// ErrNoParents is returned when a link request names no parents.
	ErrNoParents = errors.New("royalty: no parents provided")
	// ErrDuplicateParent is returned when the same parent appears twice in a
	// single link request.
	ErrDuplicateParent = errors.New("royalty: duplicate parent")
	// ErrSelfLink is returned when an asset attempts to link to itself.
	ErrSelfLink = errors.New("royalty: cannot link to self")
	// ErrIPUnlinkable is returned when an asset that already minted a license
	// or already linked to parents attempts to link again.
	ErrIPUnlinkable = errors.New("royalty: ip asset is unlinkable")
	// ErrUnlinkableToParent is returned when a named parent never minted a
	// license under the policy the link claims.
	ErrUnlinkableToParent = errors.New("royalty: parent not licensed under policy")

	// ErrVaultNotFound is returned when an operation references an asset that
	// has no royalty vault yet.
	ErrVaultNotFound = errors.New("royalty: vault not found")
	// ErrSnapshotNotFound is returned when a claim references a snapshot id
	// the vault never produced.
	ErrSnapshotNotFound = errors.New("royalty: snapshot not found")
	// ErrSnapshotCooldown is returned when a snapshot is requested before the
	// configured interval since the previous one has elapsed.
	ErrSnapshotCooldown = errors.New("royalty: snapshot interval not elapsed")
	// ErrAlreadyClaimed is returned when a claimant retries a (snapshot,
	// token) pair it already claimed.
	ErrAlreadyClaimed = errors.New("royalty: revenue already claimed")
	// ErrNoRTBalance is returned when the claimant held no royalty tokens at
	// the referenced snapshot.
	ErrNoRTBalance = errors.New("royalty: no royalty token balance at snapshot")

	// ErrNotAncestor is returned when a collection names an address outside
	// the child's recorded ancestor set.
	ErrNotAncestor = errors.New("royalty: not a recorded ancestor")
	// ErrAlreadyCollected is returned when the royalty tokens reserved for an
	// ancestor were already moved to its vault.
	ErrAlreadyCollected = errors.New("royalty: royalty tokens already collected")

	// ErrInsufficientBalance is returned when a token transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("royalty: insufficient balance")
	// ErrZeroAmount is returned when a payment carries a nil or zero amount.
	ErrZeroAmount = errors.New("royalty: amount must be positive")
	// ErrZeroAddress is returned when an operation receives an empty address.
	ErrZeroAddress = errors.New("royalty: zero address")
)
