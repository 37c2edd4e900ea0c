package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mockPool.ExpectExec("UPDATE widgets").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	err := RunInTx(context.Background(), mockPool, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE widgets SET n = n + 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRunInTx_RetriesSerializationFailure(t *testing.T) {
	mockPool := newMockPool(t)
	serErr := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

	mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mockPool.ExpectExec("UPDATE widgets").WillReturnError(serErr)
	mockPool.ExpectRollback()

	mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mockPool.ExpectExec("UPDATE widgets").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()

	err := RunInTx(context.Background(), mockPool, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE widgets SET n = n + 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRunInTx_GivesUpAfterMaxAttempts(t *testing.T) {
	mockPool := newMockPool(t)
	serErr := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

	for i := 0; i < maxTxAttempts; i++ {
		mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
		mockPool.ExpectExec("UPDATE widgets").WillReturnError(serErr)
		mockPool.ExpectRollback()
	}

	err := RunInTx(context.Background(), mockPool, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE widgets SET n = n + 1")
		return err
	})
	require.Error(t, err)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRunInTx_BusinessErrorsAreNotRetried(t *testing.T) {
	mockPool := newMockPool(t)
	bizErr := errors.New("seat pool exhausted")

	mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mockPool.ExpectRollback()

	err := RunInTx(context.Background(), mockPool, func(tx pgx.Tx) error {
		return bizErr
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, bizErr))
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, retryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, retryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, retryable(errors.New("plain error")))
}
