package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for key digests.
// Version suffix enables future algorithm migration.
const (
	DomainResolver = "storekit/resolver/v1"
	DomainRequest  = "storekit/request/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ArgsKey serializes an argument tuple to canonical JSON.
// No arguments serialize to "[]".
func ArgsKey(args ...any) (string, error) {
	if args == nil {
		args = []any{}
	}
	data, err := MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("ArgsKey: %w", err)
	}
	return string(data), nil
}

// RequestKey serializes fetch parameters to canonical JSON.
// Nil parameters serialize to "{}" so that parameterless requests share one key.
func RequestKey(params any) (string, error) {
	if params == nil {
		return "{}", nil
	}
	data, err := MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("RequestKey: %w", err)
	}
	return string(data), nil
}

// ResolverKey identifies one resolution attempt: a selector of a store
// called with a specific argument tuple.
type ResolverKey struct {
	Store    string `json:"store"`
	Selector string `json:"selector"`
	Args     string `json:"args"` // canonical JSON of the argument tuple
}

// NewResolverKey builds a ResolverKey, serializing args canonically.
func NewResolverKey(store, selector string, args ...any) (ResolverKey, error) {
	argsKey, err := ArgsKey(args...)
	if err != nil {
		return ResolverKey{}, fmt.Errorf("resolver key %s/%s: %w", store, selector, err)
	}
	return ResolverKey{Store: store, Selector: selector, Args: argsKey}, nil
}

// String returns the human-readable form "store/selector(args)".
func (k ResolverKey) String() string {
	return k.Store + "/" + k.Selector + k.argsParens()
}

func (k ResolverKey) argsParens() string {
	if len(k.Args) >= 2 && k.Args[0] == '[' {
		return "(" + k.Args[1:len(k.Args)-1] + ")"
	}
	return "(" + k.Args + ")"
}

// Digest returns a fixed-length content hash of the key, used as the
// journal's index column.
func (k ResolverKey) Digest() string {
	return hashWithDomain(DomainResolver, []byte(k.Store+"\x00"+k.Selector+"\x00"+k.Args))
}

// RequestDigest returns a fixed-length content hash of a fetch request.
func RequestDigest(baseName, requestKey string) string {
	return hashWithDomain(DomainRequest, []byte(baseName+"\x00"+requestKey))
}
