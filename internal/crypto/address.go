package crypto

import "fmt"

// AddressSize is the fixed length of an Address in bytes.
const AddressSize = 20

// Address is a 20-byte identifier derived from a public key. The zero
// address is reserved for the null proposer and the null recipient.
type Address [AddressSize]byte

// ZeroAddress is the all-zero 20-byte address.
var ZeroAddress = Address{}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes returns a copy of a as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

func (a Address) String() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, AddressSize*2)
	for i, b := range a {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// AddressFromBytes copies b into an Address. b must be exactly
// AddressSize bytes.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("crypto: invalid address length %d, want %d", len(b), AddressSize)
	}
	copy(a[:], b)
	return a, nil
}
