package vault

import (
	"bytes"
	"context"
	"io"
	"testing"

	"launcher-core/internal/encryption"
)

func TestSealedVault_RoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryVault()
	enc := encryption.NewTestEncryptor()
	dec, err := enc.Unlock("")
	if err != nil {
		t.Fatal(err)
	}
	v := NewSealedVault(inner, enc, dec)
	blob := stage(t, t.TempDir(), "secret mod")

	if err := v.Commit(ctx, blob.Hash, blob); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	raw, err := inner.Open(ctx, blob.Hash)
	if err != nil {
		t.Fatal(err)
	}
	stored, _ := io.ReadAll(raw)
	if bytes.Equal(stored, []byte("secret mod")) {
		t.Error("inner vault holds plaintext")
	}

	if got := readAll(t, v, blob.Hash); got != "secret mod" {
		t.Errorf("decrypted content = %q, want %q", got, "secret mod")
	}
}

func TestSealedVault_LockedRead(t *testing.T) {
	ctx := context.Background()
	v := NewSealedVault(NewMemoryVault(), encryption.NewTestEncryptor(), nil)
	blob := stage(t, t.TempDir(), "x")
	if err := v.Commit(ctx, blob.Hash, blob); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Open(ctx, blob.Hash); err == nil {
		t.Error("Open() on locked vault expected error")
	}
}
