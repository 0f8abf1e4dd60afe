package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrSecurityCodeNotProvisioned = errors.New("security code not provisioned")

// SecurityCodeRepository abstracts access to the single security_codes row.
type SecurityCodeRepository interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	CurrentCode(ctx context.Context) (string, error)
	IPSalt(ctx context.Context) (string, error)
	ReplaceCode(ctx context.Context, code string) error
}

// SecurityCodeRepo is a sqlx implementation of SecurityCodeRepository.
type SecurityCodeRepo struct {
	db *sqlx.DB
}

// NewSecurityCodeRepo constructs a SecurityCodeRepo.
func NewSecurityCodeRepo(db *sqlx.DB) *SecurityCodeRepo {
	return &SecurityCodeRepo{db: db}
}

// CodeExists reports whether code is the live security code.
func (r *SecurityCodeRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM security_codes WHERE code=$1)`, code)
	return exists, err
}

// CurrentCode returns the live security code.
func (r *SecurityCodeRepo) CurrentCode(ctx context.Context) (string, error) {
	var code string
	if err := r.db.GetContext(ctx, &code, `SELECT code FROM security_codes LIMIT 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSecurityCodeNotProvisioned
		}
		return "", err
	}
	return code, nil
}

// IPSalt returns the salt used to anonymize client addresses.
func (r *SecurityCodeRepo) IPSalt(ctx context.Context) (string, error) {
	var salt string
	if err := r.db.GetContext(ctx, &salt, `SELECT ip_salt FROM security_codes LIMIT 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSecurityCodeNotProvisioned
		}
		return "", err
	}
	return salt, nil
}

// ReplaceCode swaps the live code in a single statement so no two codes are
// ever valid at the same time.
func (r *SecurityCodeRepo) ReplaceCode(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE security_codes SET code=$1, created_at=NOW()`, code)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSecurityCodeNotProvisioned
	}
	return nil
}
