package corefmt

import (
	"bytes"
	"testing"
)

func TestBase64URLRoundTrip(t *testing.T) {
	in := []byte{0xfb, 0xff, 0x00, 0x10}
	s := EncodeBase64URL(in)
	if bytes.ContainsAny([]byte(s), "+/=") {
		t.Fatalf("not url safe: %s", s)
	}
	out, err := DecodeBase64URL(s)
	if err != nil || !bytes.Equal(in, out) {
		t.Fatalf("round trip failed: %v %x", err, out)
	}
	if _, err := DecodeBase64URL("***"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDecodeHexPrefix(t *testing.T) {
	for _, s := range []string{"0x0aff", "0aff"} {
		b, err := DecodeHex(s)
		if err != nil || !bytes.Equal(b, []byte{0x0a, 0xff}) {
			t.Fatalf("%s: got %x %v", s, b, err)
		}
	}
	if _, err := DecodeHex("0xzz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}
