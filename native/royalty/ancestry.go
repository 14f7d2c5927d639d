package royalty

import "fmt"

// buildAncestry computes the graph record a child would hold after linking to
// the supplied parents, enforcing every configured ceiling. parentGraphs is
// aligned with parents. The child graph passed in carries the policies the
// asset accumulated through its own license mints; the function never mutates
// its inputs.
func buildAncestry(child *IPGraph, parents [][20]byte, parentGraphs []*IPGraph, linkPolicies [][20]byte, limits GraphLimits) (*IPGraph, error) {
	if uint64(len(parents)) > limits.MaxParents {
		return nil, fmt.Errorf("%w: %d parents, limit %d", ErrAboveParentLimit, len(parents), limits.MaxParents)
	}

	ancestorSet := make(map[[20]byte]struct{})
	for i, parent := range parents {
		ancestorSet[parent] = struct{}{}
		if parentGraphs[i] == nil {
			continue
		}
		for _, a := range parentGraphs[i].Ancestors {
			ancestorSet[a] = struct{}{}
		}
	}
	if uint64(len(ancestorSet)) > limits.MaxAncestors {
		return nil, fmt.Errorf("%w: %d ancestors, limit %d", ErrAboveAncestorLimit, len(ancestorSet), limits.MaxAncestors)
	}

	policySet := make(map[[20]byte]struct{})
	if child != nil {
		for _, p := range child.Policies {
			policySet[p] = struct{}{}
		}
	}
	for _, p := range linkPolicies {
		policySet[p] = struct{}{}
	}
	for _, g := range parentGraphs {
		if g == nil {
			continue
		}
		for _, p := range g.Policies {
			policySet[p] = struct{}{}
		}
	}
	if uint64(len(policySet)) > limits.MaxAccumulatedPolicies {
		return nil, fmt.Errorf("%w: %d policies, limit %d", ErrAbovePolicyLimit, len(policySet), limits.MaxAccumulatedPolicies)
	}

	next := &IPGraph{
		Parents:   copyAddresses(parents),
		Ancestors: make([][20]byte, 0, len(ancestorSet)),
		Policies:  make([][20]byte, 0, len(policySet)),
	}
	sortAddresses(next.Parents)
	for a := range ancestorSet {
		next.Ancestors = append(next.Ancestors, a)
	}
	sortAddresses(next.Ancestors)
	for p := range policySet {
		next.Policies = append(next.Policies, p)
	}
	sortAddresses(next.Policies)
	return next, nil
}

// validateLinkShape rejects malformed link requests before any state is read:
// empty parent sets, misaligned argument slices, zero addresses, self links
// and duplicate parents.
func validateLinkShape(ip [20]byte, parents [][20]byte, policies [][20]byte, percents []uint64) error {
	if len(parents) == 0 {
		return ErrNoParents
	}
	if len(parents) != len(policies) || len(parents) != len(percents) {
		return fmt.Errorf("%w: %d parents, %d policies, %d percents",
			ErrArrayLengthMismatch, len(parents), len(policies), len(percents))
	}
	seen := make(map[[20]byte]struct{}, len(parents))
	for i, parent := range parents {
		if isZeroAddress(parent) {
			return fmt.Errorf("%w: parent %d", ErrZeroAddress, i)
		}
		if parent == ip {
			return ErrSelfLink
		}
		if _, dup := seen[parent]; dup {
			return ErrDuplicateParent
		}
		seen[parent] = struct{}{}
		if isZeroAddress(policies[i]) {
			return fmt.Errorf("%w: policy %d", ErrZeroAddress, i)
		}
		if percents[i] > TotalRTSupply {
			return fmt.Errorf("%w: percent %d exceeds %d", ErrAbovePercentLimit, percents[i], TotalRTSupply)
		}
	}
	return nil
}
