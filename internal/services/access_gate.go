package services

import (
	"context"
	"fmt"
)

// CodeStore looks up the live security code.
type CodeStore interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// AccessGate admits requests presenting the live security code. The code is
// read from the store on every check so a rotation takes effect immediately.
type AccessGate struct {
	store CodeStore
}

// NewAccessGate builds an AccessGate.
func NewAccessGate(store CodeStore) *AccessGate {
	return &AccessGate{store: store}
}

// Check returns nil when code is the live security code.
func (g *AccessGate) Check(ctx context.Context, code string) error {
	if code == "" {
		return ErrCodeRequired
	}
	ok, err := g.store.CodeExists(ctx, code)
	if err != nil {
		return fmt.Errorf("lookup security code: %w", err)
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}
