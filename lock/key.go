package lock

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/syssam/pgkit"
)

// Key identifies an advisory lock. PostgreSQL accepts either a single
// bigint or a pair of integers, and the two key spaces do not overlap.
type Key struct {
	id     int64
	pair   [2]int32
	isPair bool
}

// SingleKey returns the single bigint key id.
func SingleKey(id int64) Key {
	return Key{id: id}
}

// PairKey returns the two integer key (a, b).
func PairKey(a, b int32) Key {
	return Key{pair: [2]int32{a, b}, isPair: true}
}

// IsPair reports whether the key uses the two integer form.
func (k Key) IsPair() bool { return k.isPair }

// ID returns the single key value. It is zero for pair keys.
func (k Key) ID() int64 { return k.id }

// Pair returns the two key values. They are zero for single keys.
func (k Key) Pair() (int32, int32) { return k.pair[0], k.pair[1] }

// Args returns the statement arguments of the key.
func (k Key) Args() []any {
	if k.isPair {
		return []any{k.pair[0], k.pair[1]}
	}
	return []any{k.id}
}

func (k Key) placeholders() string {
	if k.isPair {
		return "$1, $2"
	}
	return "$1"
}

// String returns the key in the form used by log and error messages.
func (k Key) String() string {
	if k.isPair {
		return "advisory(" + strconv.FormatInt(int64(k.pair[0]), 10) + ", " + strconv.FormatInt(int64(k.pair[1]), 10) + ")"
	}
	return "advisory(" + strconv.FormatInt(k.id, 10) + ")"
}

// KeyOf derives an advisory key from arbitrary key parts. The derivation is
// part of the contract between processes sharing a lock and never changes:
//
//  1. A single integer part that fits int64 is used as is (single key).
//  2. Two integer parts that both fit int32 are used as is (pair key).
//  3. Otherwise every part is encoded to bytes, the encodings are joined with
//     a single 0x00 byte and hashed with SHA-256. Two parts give a pair key
//     made of digest bytes [0:4] and [4:8], each read as a big-endian int32.
//     Any other number of parts gives a single key made of digest bytes [0:8]
//     read as a big-endian int64.
//
// Part encodings: a string is normalized to Unicode NFC and then encoded as
// UTF-8, so "cafe\u0301" and "caf\u00e9" lock the same key; a []byte is used
// as is, without normalization, which matches peers hashing the raw UTF-8
// bytes of a string; a uuid.UUID contributes its 16 bytes; every Go integer
// type and *big.Int is encoded as its shortest big-endian two's complement
// form (0 is 0x00, 128 is 0x00 0x80, -1 is 0xff).
//
// Distinct inputs may collide; callers sharing a key space should prefix
// string parts with a namespace such as "billing:".
func KeyOf(parts ...any) (Key, error) {
	switch len(parts) {
	case 0:
		return Key{}, fmt.Errorf("%w: advisory lock key needs at least one part", pgkit.ErrInvalidOptions)
	case 1:
		if n, ok := toBig(parts[0]); ok && n.IsInt64() {
			return SingleKey(n.Int64()), nil
		}
	case 2:
		a, aok := toBig(parts[0])
		b, bok := toBig(parts[1])
		if aok && bok && fitsInt32(a) && fitsInt32(b) {
			return PairKey(int32(a.Int64()), int32(b.Int64())), nil
		}
	}
	encoded := make([][]byte, len(parts))
	for i, p := range parts {
		b, err := encodePart(p)
		if err != nil {
			return Key{}, err
		}
		encoded[i] = b
	}
	sum := sha256.Sum256(bytes.Join(encoded, []byte{0}))
	if len(parts) == 2 {
		return PairKey(
			int32(binary.BigEndian.Uint32(sum[0:4])),
			int32(binary.BigEndian.Uint32(sum[4:8])),
		), nil
	}
	return SingleKey(int64(binary.BigEndian.Uint64(sum[0:8]))), nil
}

// MustKeyOf is like KeyOf but panics on error. It is meant for package level
// key declarations.
func MustKeyOf(parts ...any) Key {
	k, err := KeyOf(parts...)
	if err != nil {
		panic(err)
	}
	return k
}

// RawKey returns the single key for the integer v without hashing.
// It fails with *pgkit.LockKeyOverflowError if v does not fit int64.
func RawKey(v any) (Key, error) {
	n, ok := toBig(v)
	if !ok {
		return Key{}, fmt.Errorf("%w: raw advisory key must be an integer, got %T", pgkit.ErrInvalidOptions, v)
	}
	if !n.IsInt64() {
		return Key{}, pgkit.NewLockKeyOverflowError(v, 64)
	}
	return SingleKey(n.Int64()), nil
}

// RawKeyPair returns the pair key (a, b) without hashing.
// It fails with *pgkit.LockKeyOverflowError if a or b does not fit int32.
func RawKeyPair(a, b any) (Key, error) {
	var pair [2]int32
	for i, v := range []any{a, b} {
		n, ok := toBig(v)
		if !ok {
			return Key{}, fmt.Errorf("%w: raw advisory key must be an integer, got %T", pgkit.ErrInvalidOptions, v)
		}
		if !fitsInt32(n) {
			return Key{}, pgkit.NewLockKeyOverflowError(v, 32)
		}
		pair[i] = int32(n.Int64())
	}
	return PairKey(pair[0], pair[1]), nil
}

func fitsInt32(n *big.Int) bool {
	return n.IsInt64() && n.Int64() >= math.MinInt32 && n.Int64() <= math.MaxInt32
}

// toBig converts any Go integer to a big.Int.
func toBig(v any) (*big.Int, bool) {
	switch v := v.(type) {
	case int:
		return big.NewInt(int64(v)), true
	case int8:
		return big.NewInt(int64(v)), true
	case int16:
		return big.NewInt(int64(v)), true
	case int32:
		return big.NewInt(int64(v)), true
	case int64:
		return big.NewInt(v), true
	case uint:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return new(big.Int).Set(v), true
	default:
		return nil, false
	}
}

func encodePart(v any) ([]byte, error) {
	switch v := v.(type) {
	case string:
		return norm.NFC.Bytes([]byte(v)), nil
	case []byte:
		return v, nil
	case uuid.UUID:
		return v[:], nil
	}
	if n, ok := toBig(v); ok {
		return twosComplement(n), nil
	}
	return nil, fmt.Errorf("%w: unsupported advisory key part type %T", pgkit.ErrInvalidOptions, v)
}

// twosComplement returns the shortest big-endian two's complement encoding of n.
func twosComplement(n *big.Int) []byte {
	if n.Sign() >= 0 {
		b := n.Bytes()
		if len(b) == 0 || b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	// -n-1 needs one bit less than the encoded value.
	m := new(big.Int).Neg(n)
	m.Sub(m, big.NewInt(1))
	size := m.BitLen()/8 + 1
	v := new(big.Int).Lsh(big.NewInt(1), uint(8*size))
	return v.Add(v, n).Bytes()
}
