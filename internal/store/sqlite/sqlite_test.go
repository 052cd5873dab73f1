package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConflict_UniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, err := open(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, "CREATE TABLE t (name TEXT UNIQUE)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO t (name) VALUES ('a')")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO t (name) VALUES ('a')")
	require.Error(t, err)

	assert.True(t, isConflict(err))
	assert.False(t, isConflict(errors.New("boom")))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := open(context.Background(), " ")
	require.Error(t, err)
}
