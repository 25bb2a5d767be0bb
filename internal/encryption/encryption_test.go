package encryption

import (
	"bytes"
	"path/filepath"
	"testing"

	"launcher-core/internal/config"
	"launcher-core/internal/launcher"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "lcore.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "lcore.key"),
	})
}

func roundTrip(t *testing.T, enc launcher.Encryptor, passphrase string, input []byte) []byte {
	t.Helper()
	var sealed bytes.Buffer
	if err := enc.Encrypt(bytes.NewReader(input), &sealed); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(sealed.Bytes(), input) {
		t.Error("sealed output is identical to plaintext")
	}
	dec, err := enc.Unlock(passphrase)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var out bytes.Buffer
	if err := dec.Decrypt(&sealed, &out); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	return out.Bytes()
}

func TestEncryptors_RoundTrip(t *testing.T) {
	inputs := []struct {
		name  string
		input []byte
	}{
		{"text", []byte("net.minecraft.client.main.Main")},
		{"empty", []byte{}},
		{"binary", []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff}},
		{"large", bytes.Repeat([]byte("forge-47.2.0"), 20000)},
	}

	for _, in := range inputs {
		t.Run("age/"+in.name, func(t *testing.T) {
			t.Parallel()
			e := newTestAgeEncryptor(t)
			if err := e.Setup("hunter2"); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			if got := roundTrip(t, e, "hunter2", in.input); !bytes.Equal(got, in.input) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(in.input))
			}
		})
		t.Run("test/"+in.name, func(t *testing.T) {
			t.Parallel()
			e := NewTestEncryptor()
			if got := roundTrip(t, e, "", in.input); !bytes.Equal(got, in.input) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(in.input))
			}
		})
	}
}

func TestAgeEncryptor_Lifecycle(t *testing.T) {
	e := newTestAgeEncryptor(t)

	if e.IsConfigured() {
		t.Error("IsConfigured() = true before Setup")
	}
	if err := e.Encrypt(bytes.NewReader([]byte("x")), &bytes.Buffer{}); err == nil {
		t.Error("Encrypt() before Setup expected error")
	}
	if _, err := e.Unlock("pw"); err == nil {
		t.Error("Unlock() before Setup expected error")
	}
	if err := e.Setup(""); err == nil {
		t.Error("Setup() with empty passphrase expected error")
	}

	if err := e.Setup("correct"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}
	if _, err := e.Unlock("wrong"); err == nil {
		t.Error("Unlock() with wrong passphrase expected error")
	}
}

func TestAgeEncryptor_FreshInstanceReadsKeys(t *testing.T) {
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "lcore.pub"),
		PrivateKeyPath: filepath.Join(dir, "lcore.key"),
	}
	if err := NewAgeEncryptor(cfg).Setup("pw"); err != nil {
		t.Fatal(err)
	}

	got := roundTrip(t, NewAgeEncryptor(cfg), "pw", []byte("mod.jar"))
	if string(got) != "mod.jar" {
		t.Errorf("round trip = %q, want %q", got, "mod.jar")
	}
}

func TestTestDecryptionContext_BadInput(t *testing.T) {
	dec, _ := NewTestEncryptor().Unlock("")
	tests := []struct {
		name  string
		input []byte
	}{
		{"wrong header", []byte("NOTSEAL\x00payload")},
		{"truncated header", []byte("LCS")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := dec.Decrypt(bytes.NewReader(tt.input), &bytes.Buffer{}); err == nil {
				t.Error("Decrypt() expected error")
			}
		})
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		wantNil bool
		wantErr bool
	}{
		{"none", true, false},
		{"", true, false},
		{"age", false, false},
		{"test", false, false},
		{"rot13", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			enc, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if (enc == nil) != tt.wantNil {
				t.Errorf("encryptor nil = %v, want %v", enc == nil, tt.wantNil)
			}
		})
	}
}
