package keys

import (
	"strings"
	"testing"
)

func TestKeyStore_InitDeriveExport(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}

	seed := testSeed(0x33)
	senderKey, _, err := ks.InitializeRootKey("alice", seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	if !strings.HasPrefix(senderKey, "ed25519:") {
		t.Fatalf("expected ed25519 sender key, got %q", senderKey)
	}

	roleKey, _, err := ks.DeriveKeyFromRole("alice", "admin", false)
	if err != nil {
		t.Fatalf("DeriveKeyFromRole: %v", err)
	}
	if roleKey == senderKey {
		t.Fatalf("role key must differ from root key")
	}

	exported, err := ks.ExportKey("alice", "admin")
	if err != nil {
		t.Fatalf("ExportKey: %v", err)
	}
	if exported != roleKey {
		t.Fatalf("export mismatch: got %q want %q", exported, roleKey)
	}

	entries, err := ks.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(entries) != 1 || entries[0].Identifier != "alice" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if len(entries[0].Roles) != 1 || entries[0].Roles[0] != "admin" {
		t.Fatalf("unexpected roles: %+v", entries[0].Roles)
	}
}

func TestKeyStore_RefusesOverwriteWithoutForce(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}
	if _, _, err := ks.InitializeRootKey("bob", testSeed(0x01), false); err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	if _, _, err := ks.InitializeRootKey("bob", testSeed(0x02), false); err == nil {
		t.Fatalf("expected error overwriting existing key without overwrite flag")
	}
}

func TestKeyStore_Signer(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}
	seed := testSeed(0x55)
	senderKey, _, err := ks.InitializeRootKey("carol", seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	s, err := ks.Signer("", "carol", "", "")
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if s.SenderKey() != senderKey {
		t.Fatalf("signer key mismatch: got %q want %q", s.SenderKey(), senderKey)
	}
}

func TestKeyStore_RoleDerivationIsReproducible(t *testing.T) {
	seed := testSeed(0x77)
	var senderKeys []string
	for i := 0; i < 2; i++ {
		ks, err := CreateKeyStore(t.TempDir())
		if err != nil {
			t.Fatalf("CreateKeyStore: %v", err)
		}
		if _, _, err := ks.InitializeRootKey("dave", seed, false); err != nil {
			t.Fatalf("InitializeRootKey: %v", err)
		}
		roleKey, _, err := ks.DeriveKeyFromRole("dave", "mailer", false)
		if err != nil {
			t.Fatalf("DeriveKeyFromRole: %v", err)
		}
		senderKeys = append(senderKeys, roleKey)
	}
	if senderKeys[0] != senderKeys[1] {
		t.Fatalf("same root seed and role must derive the same key: %q vs %q", senderKeys[0], senderKeys[1])
	}
}

func TestCheckKeyName_RejectsInvalid(t *testing.T) {
	for _, name := range []string{"", "a/b", "a b", "a.b"} {
		if err := CheckKeyName(name); err == nil {
			t.Errorf("expected error for identifier %q", name)
		}
	}
	if err := CheckKeyName("Valid-Name_1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
