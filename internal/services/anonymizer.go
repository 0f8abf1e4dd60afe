package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

const tokenLength = 6

// SaltSource provides the server-wide anonymization salt.
type SaltSource interface {
	IPSalt(ctx context.Context) (string, error)
}

// Anonymizer derives short display tokens from client addresses.
//
// The salt is provisioned once and is independent of the rotating security
// code, so it is loaded on first use and kept for the life of the process.
type Anonymizer struct {
	source SaltSource

	mu   sync.Mutex
	salt string
	ok   bool
}

// NewAnonymizer builds an Anonymizer backed by source.
func NewAnonymizer(source SaltSource) *Anonymizer {
	return &Anonymizer{source: source}
}

// Salt returns the cached salt, loading it on first use. Failed loads are
// not cached.
func (a *Anonymizer) Salt(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ok {
		return a.salt, nil
	}
	salt, err := a.source.IPSalt(ctx)
	if err != nil {
		return "", fmt.Errorf("load ip salt: %w", err)
	}
	a.salt, a.ok = salt, true
	return salt, nil
}

// Token returns the display token for ip.
func (a *Anonymizer) Token(ctx context.Context, ip string) (string, error) {
	salt, err := a.Salt(ctx)
	if err != nil {
		return "", err
	}
	return HashIP(ip, salt), nil
}

// HashIP is the first six hex characters of sha256(ip + salt).
func HashIP(ip, salt string) string {
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])[:tokenLength]
}
