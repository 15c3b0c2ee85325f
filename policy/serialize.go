package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Serialize returns the canonical JSON encoding of a policy.
//
// encoding/json emits struct fields in declaration order and map keys sorted
// lexicographically, so the output is byte-stable across processes: equal
// policies always serialize to equal bytes.
func Serialize(p *CanonicalPolicy) ([]byte, error) {
	return json.Marshal(p)
}

// Deserialize parses canonical policy JSON.
func Deserialize(data []byte) (CanonicalPolicy, error) {
	var p CanonicalPolicy
	if err := json.Unmarshal(data, &p); err != nil {
		return CanonicalPolicy{}, err
	}
	return p, nil
}

// Hash returns the hex sha256 of the canonical serialization.
//
// Hash(p) == Hash(Deserialize(Serialize(p))) for every valid policy; hash
// comparisons are the cross-process equality check for policies.
func Hash(p *CanonicalPolicy) (string, error) {
	b, err := Serialize(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
