package auth

import (
	"encoding/hex"
	"testing"
)

func TestNewResetSecret(t *testing.T) {
	raw, hash, err := NewResetSecret()
	if err != nil {
		t.Fatalf("NewResetSecret error: %v", err)
	}

	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 32 {
		t.Fatalf("raw secret must be 32 hex-encoded bytes, got %q", raw)
	}
	if hash == raw {
		t.Fatalf("hash must differ from raw secret")
	}
	if hash != HashResetSecret(raw) {
		t.Fatalf("hash must be reproducible from raw secret")
	}
	if len(hash) != 64 {
		t.Fatalf("expected sha256 hex digest, got %d chars", len(hash))
	}

	raw2, _, err := NewResetSecret()
	if err != nil {
		t.Fatalf("NewResetSecret error: %v", err)
	}
	if raw == raw2 {
		t.Fatalf("secrets must be random")
	}
}
