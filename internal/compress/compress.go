// Package compress frames byte blocks with optional LZ4 or ZSTD compression.
//
// A frame is self-describing:
//
//	[Type uint8][UncompressedSize uint32][StoredSize uint32][CRC32C uint32][Data...]
//
// The checksum covers the uncompressed payload. Blocks that do not shrink by at
// least 10% are stored uncompressed (Type = None).
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/kmeansmr/internal/hash"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores blocks as-is.
	None Type = 0
	// LZ4 is fast block compression, used for shuffle spills by default.
	LZ4 Type = 1
	// ZSTD trades speed for a better ratio.
	ZSTD Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseType parses "none", "lz4" or "zstd".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("compress: unknown type %q", s)
	}
}

const headerSize = 13

var (
	// ErrCorrupt is returned when a frame is truncated or malformed.
	ErrCorrupt = errors.New("compress: corrupt frame")
	// ErrChecksum is returned when the payload checksum does not match.
	ErrChecksum = errors.New("compress: checksum mismatch")
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode returns data framed with the given compression type.
func Encode(data []byte, t Type) ([]byte, error) {
	var stored []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		stored = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		stored = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("compress: unknown type %d", t)
	}

	// n == 0 means incompressible for LZ4.
	if t != None && (len(stored) == 0 || float64(len(stored)) > float64(len(data))*0.9) {
		t = None
	}
	if t == None {
		stored = data
	}

	frame := make([]byte, headerSize+len(stored))
	frame[0] = byte(t)
	binary.LittleEndian.PutUint32(frame[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[5:], uint32(len(stored)))
	binary.LittleEndian.PutUint32(frame[9:], hash.CRC32C(data))
	copy(frame[headerSize:], stored)
	return frame, nil
}

// Decode returns the payload of a single frame.
func Decode(frame []byte) ([]byte, error) {
	data, n, err := DecodeNext(frame)
	if err != nil {
		return nil, err
	}
	if n != len(frame) {
		return nil, ErrCorrupt
	}
	return data, nil
}

// DecodeNext decodes the frame at the front of b and returns the number of
// bytes it occupied, so concatenated frames can be read in sequence.
func DecodeNext(b []byte) ([]byte, int, error) {
	if len(b) < headerSize {
		return nil, 0, ErrCorrupt
	}
	t := Type(b[0])
	size := binary.LittleEndian.Uint32(b[1:])
	storedSize := binary.LittleEndian.Uint32(b[5:])
	sum := binary.LittleEndian.Uint32(b[9:])
	if uint64(len(b)-headerSize) < uint64(storedSize) {
		return nil, 0, ErrCorrupt
	}
	stored := b[headerSize : headerSize+int(storedSize)]

	var data []byte
	switch t {
	case None:
		if storedSize != size {
			return nil, 0, ErrCorrupt
		}
		data = stored
	case LZ4:
		data = make([]byte, size)
		n, err := lz4.UncompressBlock(stored, data)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, 0, ErrCorrupt
		}
	case ZSTD:
		dec := getZstdDecoder()
		decoded, err := dec.DecodeAll(stored, make([]byte, 0, size))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != size {
			return nil, 0, ErrCorrupt
		}
		data = decoded
	default:
		return nil, 0, ErrCorrupt
	}

	if hash.CRC32C(data) != sum {
		return nil, 0, ErrChecksum
	}
	return data, headerSize + int(storedSize), nil
}
