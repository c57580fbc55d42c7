package memory

import (
	"bytes"
	"testing"
)

func TestLenPrefixedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte("hello"))
	writeLenPrefixed(&buf, []byte(""))
	writeLenPrefixed(&buf, []byte("world"))

	r := bytes.NewReader(buf.Bytes())
	got1, err := readLenPrefixed(r)
	if err != nil || string(got1) != "hello" {
		t.Fatalf("first: %q, %v", got1, err)
	}
	got2, err := readLenPrefixed(r)
	if err != nil || string(got2) != "" {
		t.Fatalf("second: %q, %v", got2, err)
	}
	got3, err := readLenPrefixed(r)
	if err != nil || string(got3) != "world" {
		t.Fatalf("third: %q, %v", got3, err)
	}
}

func TestReadLenPrefixed_TruncatedInputFails(t *testing.T) {
	r := bytes.NewReader([]byte{0, 0, 0, 5, 'a', 'b'})
	if _, err := readLenPrefixed(r); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
