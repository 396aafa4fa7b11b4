package btreestore

import "encoding/binary"

// Value is the constraint on the type a tree stores: totally ordered via
// Less, mirroring bplustree.Key's Less(other Key) bool contract from the
// teacher repo rather than Go's built-in cmp.Ordered, since T also needs
// a Codec to become serializable.
type Value[T any] interface {
	Less(other T) bool
}

// Codec tells a tree how to turn a value into exactly Size bytes and back.
// Size must be small enough that one key entry (Size bytes plus the fixed
// 33-byte link/deleted overhead from the frame layout in spec §4.5) fits
// within a single keySizeBytes-wide slot column, or building the tree
// fails with a ConfigError.
type Codec[T any] struct {
	Size   int
	Encode func(v T, buf []byte) error
	Decode func(buf []byte) (T, error)
}

// Int64Value is a ready-to-use ordered value for integer-keyed trees,
// matching the uint32 search keys simplejsondb's index stores.
type Int64Value int64

func (a Int64Value) Less(b Int64Value) bool { return a < b }

// Int64Codec encodes Int64Value as a fixed-width big-endian int64, the
// same byte order metadata-db/datafile.go uses for its block headers.
func Int64Codec() Codec[Int64Value] {
	return Codec[Int64Value]{
		Size: 8,
		Encode: func(v Int64Value, buf []byte) error {
			binary.BigEndian.PutUint64(buf, uint64(v))
			return nil
		},
		Decode: func(buf []byte) (Int64Value, error) {
			return Int64Value(binary.BigEndian.Uint64(buf)), nil
		},
	}
}

// StringValue is a simple ordered value for fixed-width string keys.
type StringValue string

func (a StringValue) Less(b StringValue) bool { return a < b }

// FixedStringCodec encodes StringValue into a fixed-width, NUL-padded
// buffer of width bytes. Values longer than width cannot be encoded and
// surface as a CapacityError when the tree tries to store them.
func FixedStringCodec(width int) Codec[StringValue] {
	return Codec[StringValue]{
		Size: width,
		Encode: func(v StringValue, buf []byte) error {
			if len(v) > width {
				return &CapacityError{Msg: "string value exceeds fixed codec width"}
			}
			for i := range buf {
				buf[i] = 0
			}
			copy(buf, v)
			return nil
		},
		Decode: func(buf []byte) (StringValue, error) {
			n := 0
			for n < len(buf) && buf[n] != 0 {
				n++
			}
			return StringValue(buf[:n]), nil
		},
	}
}
