package compression

import "testing"

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility, " +
		"the quick brown fox jumps over the lazy dog")

	for _, codec := range []Codec{None, Gzip, Zstd, Snap, LZ4} {
		codec := codec
		t.Run(string(codec), func(t *testing.T) {
			compressed, err := Compress(codec, payload)
			if err != nil {
				t.Fatalf("Compress(%s): %v", codec, err)
			}
			out, err := Decompress(codec, compressed)
			if err != nil {
				t.Fatalf("Decompress(%s): %v", codec, err)
			}
			if string(out) != string(payload) {
				t.Fatalf("round trip mismatch for %s: got %q", codec, out)
			}
		})
	}
}

func TestCompressUnsupportedCodec(t *testing.T) {
	if _, err := Compress("bogus", []byte("x")); err == nil {
		t.Fatal("expected error for unsupported codec")
	}
}

func TestRatio(t *testing.T) {
	if r := Ratio(0, 0); r != 1.0 {
		t.Fatalf("Ratio(0,0) = %v, want 1.0", r)
	}
	if r := Ratio(100, 25); r != 0.25 {
		t.Fatalf("Ratio(100,25) = %v, want 0.25", r)
	}
}
