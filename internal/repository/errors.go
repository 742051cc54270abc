package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrDuplicate wraps a unique-constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConditionFailed means a guarded update matched no rows.
	ErrConditionFailed = errors.New("condition failed")
)

const uniqueViolation = "23505"

// translate maps driver errors onto repository sentinels. Other errors,
// including gorm.ErrRecordNotFound, pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func newID() string {
	return uuid.NewString()
}
