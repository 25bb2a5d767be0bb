package vault

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"launcher-core/internal/launcher"
	"launcher-core/internal/testutil"
)

// stage writes content to a temp file in dir and returns it as a staged blob.
func stage(t *testing.T, dir, content string) *launcher.StagedBlob {
	t.Helper()
	f, err := os.CreateTemp(dir, ".stage-*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return &launcher.StagedBlob{
		Path: f.Name(),
		Hash: testutil.SHA256Hex([]byte(content)),
		Size: int64(len(content)),
	}
}

func readAll(t *testing.T, v launcher.Vault, hash string) string {
	t.Helper()
	rc, err := v.Open(context.Background(), hash)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	return string(data)
}

func TestNewFileSystemVault(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	v, err := NewFileSystemVault(root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if info, err := os.Stat(filepath.Join(root, "content")); err != nil || !info.IsDir() {
		t.Errorf("content directory not created: %v", err)
	}
	if err := v.ValidateSetup(context.Background()); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}

func TestFileSystemVault_CommitRenames(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	v, err := NewFileSystemVault(filepath.Join(root, "vault"))
	if err != nil {
		t.Fatal(err)
	}

	blob := stage(t, root, "jar bytes")
	if err := v.Commit(ctx, blob.Hash, blob); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if _, err := os.Stat(blob.Path); !os.IsNotExist(err) {
		t.Errorf("staged file still present after commit")
	}
	want := filepath.Join(root, "vault", "content", blob.Hash[:2], blob.Hash)
	if got := v.Location(blob.Hash); got != want {
		t.Errorf("Location() = %q, want %q", got, want)
	}
	if got := readAll(t, v, blob.Hash); got != "jar bytes" {
		t.Errorf("content = %q, want %q", got, "jar bytes")
	}
	exists, err := v.Exists(ctx, blob.Hash)
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v; want true, nil", exists, err)
	}
}

func TestFileSystemVault_OpenNotFound(t *testing.T) {
	v, err := NewFileSystemVault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = v.Open(context.Background(), strings.Repeat("a", 64))
	if !errors.Is(err, launcher.ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}

func TestFileSystemVault_Delete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	v, err := NewFileSystemVault(filepath.Join(root, "vault"))
	if err != nil {
		t.Fatal(err)
	}
	blob := stage(t, root, "to delete")
	if err := v.Commit(ctx, blob.Hash, blob); err != nil {
		t.Fatal(err)
	}

	if err := v.Delete(ctx, blob.Hash); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, _ := v.Exists(ctx, blob.Hash)
	if exists {
		t.Error("blob still exists after Delete")
	}
	if err := v.Delete(ctx, blob.Hash); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestFileSystemVault_WriteFileSizeMismatch(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault(root)
	if err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(root, "content", "out")
	if err := v.writeFile(dest, strings.NewReader("short"), 99); err == nil {
		t.Fatal("writeFile() expected size mismatch error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination written despite size mismatch")
	}
	entries, _ := os.ReadDir(filepath.Join(root, "content"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestFileSystemVault_ValidateSetup_Missing(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(filepath.Join(root, "content")); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() expected error for missing content dir")
	}
}
