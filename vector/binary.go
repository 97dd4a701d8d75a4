package vector

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrCorrupt is returned when a binary-encoded vector cannot be decoded.
var ErrCorrupt = errors.New("vector: corrupt binary encoding")

// AppendBinary appends the binary encoding of v to dst.
// Format: [uvarint count] then per entry [uvarint index delta][float64 LE].
func (v Sparse) AppendBinary(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(v.entries)))
	var prev uint64
	for _, e := range v.entries {
		dst = binary.AppendUvarint(dst, e.Index-prev)
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(e.Value))
		prev = e.Index
	}
	return dst
}

// DecodeBinary decodes a vector from the front of b and returns the number of
// bytes consumed.
func DecodeBinary(b []byte) (Sparse, int, error) {
	n, off := binary.Uvarint(b)
	if off <= 0 {
		return Sparse{}, 0, ErrCorrupt
	}
	// Each entry takes at least 9 bytes.
	if n > uint64(len(b)-off)/9 {
		return Sparse{}, 0, ErrCorrupt
	}

	es := make([]Entry, 0, n)
	var prev uint64
	for i := uint64(0); i < n; i++ {
		delta, m := binary.Uvarint(b[off:])
		if m <= 0 {
			return Sparse{}, 0, ErrCorrupt
		}
		off += m
		if len(b)-off < 8 {
			return Sparse{}, 0, ErrCorrupt
		}
		idx := prev + delta
		if i > 0 && delta == 0 {
			return Sparse{}, 0, ErrCorrupt
		}
		val := math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
		off += 8
		if val != 0 {
			es = append(es, Entry{Index: idx, Value: val})
		}
		prev = idx
	}
	return fromSorted(es), off, nil
}

var (
	_ msgpack.CustomEncoder = Sparse{}
	_ msgpack.CustomDecoder = (*Sparse)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Sparse) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(v.AppendBinary(nil))
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Sparse) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	decoded, _, err := DecodeBinary(b)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
