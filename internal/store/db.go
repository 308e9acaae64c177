package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrVersionConflict is returned by Save when the row changed since it was read.
var ErrVersionConflict = errors.New("version conflict")

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

type Tx interface {
	Execer
	Getter
}
