package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps Ed25519 seeds as 0600 hex files under a single directory,
// one subdirectory per named key:
//
//	<dir>/<name>/root.key
//	<dir>/<name>/roles/<role>.key
//
// Role seeds are derived deterministically from the root seed, so the layout
// is reconstructible from root.key alone.
type KeyStore struct {
	Directory string
}

// KeyEntry is one named key as reported by ListKeys.
type KeyEntry struct {
	Identifier string
	Roles      []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".beap", "keys"), nil
}

// CreateKeyStore opens a store rooted at directory, defaulting to
// ~/.beap/keys. Nothing is created on disk until a key is written.
func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootSeedPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) roleSeedPath(identifier, role string) string {
	return filepath.Join(ks.Directory, identifier, "roles", role+".key")
}

// Key names and roles become path segments, so both are restricted to the
// same safe alphabet.
func checkPathSegment(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_':
		default:
			return fmt.Errorf("invalid character %q in %s", c, kind)
		}
	}
	return nil
}

func CheckKeyName(identifier string) error { return checkPathSegment("identifier", identifier) }

func CheckRole(role string) error { return checkPathSegment("role", role) }

// ParseSeedHex decodes a 32-byte Ed25519 seed from hex, tolerating
// surrounding whitespace and an 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return seed, nil
}

func writeSeedFile(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return f.Close()
}

func readSeedFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitializeRootKey writes seed as the root key for identifier and returns
// the sender key string plus the file it was stored in. Existing files are
// preserved unless overwrite is set.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (senderKey string, filePath string, err error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", "", err
	}
	filePath = ks.rootSeedPath(identifier)
	if err := writeSeedFile(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	return SenderKeyFromSeed(seed), filePath, nil
}

// DeriveKeyFromRole derives a role seed from an existing root key and stores
// it alongside. Deriving the same role twice yields the same seed.
func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (senderKey string, filePath string, err error) {
	if err := CheckKeyName(from); err != nil {
		return "", "", err
	}
	if err := CheckRole(role); err != nil {
		return "", "", err
	}
	rootSeed, err := readSeedFile(ks.rootSeedPath(from))
	if err != nil {
		return "", "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return "", "", err
	}
	filePath = ks.roleSeedPath(from, role)
	if err := writeSeedFile(filePath, roleSeed, overwrite); err != nil {
		return "", "", err
	}
	return SenderKeyFromSeed(roleSeed), filePath, nil
}

// ExportKey returns the public sender key string for a stored key, never the
// seed. An empty role selects the root key.
func (ks *KeyStore) ExportKey(identifier string, role string) (string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", err
	}
	path := ks.rootSeedPath(identifier)
	if role != "" {
		if err := CheckRole(role); err != nil {
			return "", err
		}
		path = ks.roleSeedPath(identifier, role)
	}
	seed, err := readSeedFile(path)
	if err != nil {
		return "", err
	}
	return SenderKeyFromSeed(seed), nil
}

// LoadSeed resolves a signing seed from one of: an inline hex seed, a key file
// path, or a named store entry (optionally role-scoped). Exactly the first
// non-empty source wins.
func (ks *KeyStore) LoadSeed(seedHex, signerName, signerRole, keyFile string) ([]byte, error) {
	switch {
	case seedHex != "":
		return ParseSeedHex(seedHex)
	case keyFile != "":
		return readSeedFile(keyFile)
	case signerName != "":
		if err := CheckKeyName(signerName); err != nil {
			return nil, err
		}
		if signerRole == "" {
			return readSeedFile(ks.rootSeedPath(signerName))
		}
		if err := CheckRole(signerRole); err != nil {
			return nil, err
		}
		return readSeedFile(ks.roleSeedPath(signerName, signerRole))
	}
	return nil, errors.New("no signer provided")
}

// Signer loads a seed (see LoadSeed) and returns an Ed25519 signer over it.
func (ks *KeyStore) Signer(seedHex, signerName, signerRole, keyFile string) (*Ed25519Signer, error) {
	seed, err := ks.LoadSeed(seedHex, signerName, signerRole, keyFile)
	if err != nil {
		return nil, err
	}
	return NewEd25519SignerFromSeed(seed)
}

// ListKeys enumerates stored keys and their derived roles, both sorted. A
// store directory that does not exist yet lists as empty.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var result []KeyEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		roles, err := ks.listRoles(name)
		if err != nil {
			return nil, err
		}
		result = append(result, KeyEntry{Identifier: name, Roles: roles})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identifier < result[j].Identifier })
	return result, nil
}

func (ks *KeyStore) listRoles(identifier string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(ks.Directory, identifier, "roles"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var roles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if role, ok := strings.CutSuffix(entry.Name(), ".key"); ok {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles, nil
}
