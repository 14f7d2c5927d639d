package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable prefixes used by registry addresses.
type AddressPrefix string

const (
	// IPPrefix is the prefix for IP assets, payment tokens, royalty policies
	// and ordinary accounts.
	IPPrefix AddressPrefix = "ip"
	// VaultPrefix is the prefix for derived royalty vault addresses.
	VaultPrefix AddressPrefix = "rtv"
)

// AddressLength is the raw byte length of every registry address.
const AddressLength = 20

// Address represents a 20-byte registry address with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps the provided raw bytes with the given prefix. The raw value
// must be exactly AddressLength bytes.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	buf := make([]byte, AddressLength)
	copy(buf, b)
	return Address{prefix: prefix, bytes: buf}
}

// MustAddress builds an address from a fixed-size array.
func MustAddress(prefix AddressPrefix, raw [AddressLength]byte) Address {
	return NewAddress(prefix, raw[:])
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes)
	return out
}

// Raw returns the fixed-size representation used by the state layer.
func (a Address) Raw() [AddressLength]byte {
	var raw [AddressLength]byte
	copy(raw[:], a.bytes)
	return raw
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Equal reports whether two addresses carry the same raw bytes, regardless of
// their display prefix.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// DecodeAddress parses a bech32 registry address. Only the known prefixes are
// accepted.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	switch AddressPrefix(prefix) {
	case IPPrefix, VaultPrefix:
	default:
		return Address{}, fmt.Errorf("unknown address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

var vaultDomainTag = []byte("ipchain/royalty-vault/v1")

// DeriveVaultAddress deterministically derives the royalty vault address for an
// IP asset. The derivation is a keccak256 over a domain tag and the asset
// address, truncated to the trailing 20 bytes, so independent deployments of
// the same registry state agree on vault locations.
func DeriveVaultAddress(ipAsset [AddressLength]byte) [AddressLength]byte {
	digest := ethcrypto.Keccak256(vaultDomainTag, ipAsset[:])
	var addr [AddressLength]byte
	copy(addr[:], digest[len(digest)-AddressLength:])
	return addr
}

// --- Key management ---

// PrivateKey wraps an ECDSA key used by tooling to mint fresh registry
// addresses.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(IPPrefix, addrBytes)
}
