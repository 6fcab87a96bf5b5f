package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

func TestMapErr(t *testing.T) {
	require.NoError(t, mapErr(nil))
	require.ErrorIs(t, mapErr(pgx.ErrNoRows), target.ErrNotFound)
	require.ErrorIs(t, mapErr(fmt.Errorf("scan: %w", pgx.ErrNoRows)), target.ErrNotFound)

	for _, code := range []string{pgUniqueViolation, pgForeignKeyViolation, pgCheckViolation} {
		pgErr := &pgconn.PgError{Code: code, Message: "violation"}
		err := mapErr(pgErr)
		require.ErrorIs(t, err, target.ErrConflict, code)
		var got *pgconn.PgError
		require.True(t, errors.As(err, &got))
		require.Equal(t, code, got.Code)
	}

	other := errors.New("connection reset")
	require.Same(t, other, mapErr(other))
	require.NotErrorIs(t, mapErr(&pgconn.PgError{Code: "42P01"}), target.ErrConflict)
}

func TestNullable(t *testing.T) {
	require.Nil(t, nullable(""))
	require.Equal(t, "x", *nullable("x"))
	require.Nil(t, utcPtr(nil))
}
