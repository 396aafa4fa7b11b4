package btreestore

import "testing"

func TestInt64CodecRoundTrip(t *testing.T) {
	codec := Int64Codec()
	buf := make([]byte, codec.Size)

	if err := codec.Encode(Int64Value(-42), buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != -42 {
		t.Fatalf("got %d, want -42", got)
	}
}

func TestFixedStringCodecRoundTripAndPadding(t *testing.T) {
	codec := FixedStringCodec(8)
	buf := make([]byte, codec.Size)

	if err := codec.Encode(StringValue("abc"), buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

func TestFixedStringCodecRejectsOverlongValue(t *testing.T) {
	codec := FixedStringCodec(4)
	buf := make([]byte, codec.Size)

	err := codec.Encode(StringValue("toolong"), buf)
	if err == nil {
		t.Fatalf("expected an error encoding a value longer than the codec width")
	}
	if _, ok := err.(*CapacityError); !ok {
		t.Fatalf("expected a *CapacityError, got %T", err)
	}
}
