package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/store"
	"github.com/frobware/go-teamsync/store/memory"
)

func TestJournalRecordsWrites(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tbl := s.Table(teamsync.LagTable)

	require.NoError(t, tbl.Set(ctx, "bond0", teamsync.FieldValues{{Field: "mtu", Value: "1500"}}))
	require.NoError(t, tbl.Del(ctx, "bond0"))

	ops := s.OpsFor(teamsync.LagTable)
	require.Len(t, ops, 2)
	assert.Equal(t, memory.OpSet, ops[0].Kind)
	assert.Equal(t, memory.OpDel, ops[1].Kind)
	assert.Equal(t, "bond0", ops[1].Key)

	_, err := tbl.Get(ctx, "bond0")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTempView(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tbl := s.Table(teamsync.LagTable)

	require.NoError(t, tbl.Set(ctx, "stale", teamsync.FieldValues{{Field: "mtu", Value: "1500"}}))
	require.NoError(t, tbl.CreateTempView(ctx))
	require.NoError(t, tbl.Set(ctx, "bond0", teamsync.FieldValues{{Field: "mtu", Value: "9100"}}))

	ops := s.OpsFor(teamsync.LagTable)
	assert.True(t, ops[len(ops)-1].Temp)

	keys, err := tbl.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, keys)

	require.NoError(t, tbl.ApplyTempView(ctx))
	keys, err = tbl.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bond0"}, keys)
	assert.Error(t, tbl.ApplyTempView(ctx))
}
