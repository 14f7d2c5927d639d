package royaltystate

import "encoding/binary"

// Logical key prefixes. Every key is keccak-hashed before it reaches the
// backing store, so the prefixes only need to be mutually distinct.
var (
	genesisKey          = []byte("royalty/genesis")
	limitsKey           = []byte("royalty/limits")
	policyWhitelistPref = []byte("royalty/policy/whitelist/")
	tokenWhitelistPref  = []byte("royalty/token/whitelist/")
	externalPolicyPref  = []byte("royalty/policy/external/")
	graphPref           = []byte("royalty/graph/")
	vaultPref           = []byte("royalty/vault/")
	rtBalancePref       = []byte("royalty/rt/balance/")
	rtHoldersPref       = []byte("royalty/rt/holders/")
	pendingRevenuePref  = []byte("royalty/revenue/pending/")
	revenueTokensPref   = []byte("royalty/revenue/tokens/")
	snapshotPref        = []byte("royalty/snapshot/")
	claimPref           = []byte("royalty/claim/")
	lapPref             = []byte("royalty/lap/")
	tokenBalancePref    = []byte("royalty/erc20/balance/")
	rolePref            = []byte("royalty/role/")
)

func addrKey(prefix []byte, addr [20]byte) []byte {
	key := make([]byte, 0, len(prefix)+len(addr))
	key = append(key, prefix...)
	return append(key, addr[:]...)
}

func pairKey(prefix []byte, a [20]byte, b [20]byte) []byte {
	key := make([]byte, 0, len(prefix)+len(a)+len(b))
	key = append(key, prefix...)
	key = append(key, a[:]...)
	return append(key, b[:]...)
}

func snapshotKey(vault [20]byte, id uint64) []byte {
	key := make([]byte, 0, len(snapshotPref)+len(vault)+8)
	key = append(key, snapshotPref...)
	key = append(key, vault[:]...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(key, buf[:]...)
}

func claimKey(vault [20]byte, id uint64, token [20]byte, claimer [20]byte) []byte {
	key := make([]byte, 0, len(claimPref)+len(vault)+8+len(token)+len(claimer))
	key = append(key, claimPref...)
	key = append(key, vault[:]...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	key = append(key, buf[:]...)
	key = append(key, token[:]...)
	return append(key, claimer[:]...)
}

func roleKey(role string, addr [20]byte) []byte {
	key := make([]byte, 0, len(rolePref)+len(role)+1+len(addr))
	key = append(key, rolePref...)
	key = append(key, role...)
	key = append(key, '/')
	return append(key, addr[:]...)
}
