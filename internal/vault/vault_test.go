package vault

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	v, err := CreateMemoryOnly("passphrase")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}

	secret := []byte(`{"access_key_id":"AKIAEXAMPLE","secret_access_key":"s3cr3t"}`)
	if err := v.Put(SessionKey("sess-1"), secret); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := v.Get(SessionKey("sess-1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("got %q, want %q", got, secret)
	}
}

func TestPersistAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), VaultFileName)

	v, err := Create(path, "passphrase")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}
	if err := v.Put(IntegrationKey("int-1"), []byte("portal-token")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("reopening vault: %v", err)
	}
	got, err := reopened.Get(IntegrationKey("int-1"))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got) != "portal-token" {
		t.Errorf("got %q, want portal-token", got)
	}
}

func TestWrongPassphraseRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), VaultFileName)

	v, err := Create(path, "correct")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}
	if err := v.Put(SessionKey("sess-1"), []byte("secret")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := Open(path, "wrong"); err == nil {
		t.Error("expected an error opening with the wrong passphrase")
	}
}

func TestDeleteAbsentKeyIsNotAnError(t *testing.T) {
	v, err := CreateMemoryOnly("passphrase")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}
	if err := v.Delete(SessionKey("never-existed")); err != nil {
		t.Errorf("delete of absent key: %v", err)
	}
}

func TestKeyAsAdditionalData(t *testing.T) {
	v, err := CreateMemoryOnly("passphrase")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}
	if err := v.Put(SessionKey("sess-1"), []byte("secret")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// An entry moved to another key must not decrypt.
	v.entries[SessionKey("sess-2")] = v.entries[SessionKey("sess-1")]
	if _, err := v.Get(SessionKey("sess-2")); err == nil {
		t.Error("expected decryption failure for a relocated entry")
	}
}
