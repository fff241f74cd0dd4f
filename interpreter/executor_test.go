package interpreter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/action"
	"github.com/frobware/go-teamsync/compute"
	"github.com/frobware/go-teamsync/interpreter"
	"github.com/frobware/go-teamsync/store"
	"github.com/frobware/go-teamsync/store/memory"
)

type unknownAction struct{ action.Action }

func TestExecuteAll(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	exec := interpreter.NewExecutor(st.Table(teamsync.LagTable), st.Table(teamsync.LagMemberTable))

	require.NoError(t, exec.ExecuteAll(ctx, []action.Action{
		action.SetMemberStatus{Bundle: "bond0", Member: "Ethernet0", Enabled: true},
		action.SetMemberStatus{Bundle: "bond0", Member: "Ethernet4", Enabled: false},
	}))

	ops := st.OpsFor(teamsync.LagMemberTable)
	require.Len(t, ops, 2)
	assert.Equal(t, memory.Op{
		Table:  teamsync.LagMemberTable,
		Kind:   memory.OpSet,
		Key:    "bond0:Ethernet0",
		Fields: teamsync.FieldValues{{Field: "status", Value: "enabled"}},
	}, ops[0])
	assert.Equal(t, "disabled", ops[1].Fields.Map()["status"])

	st.ResetOps()
	require.NoError(t, exec.Execute(ctx, compute.BundleRemoval("bond0", map[string]bool{"Ethernet0": true})))
	assert.Equal(t, []memory.Op{
		{Table: teamsync.LagMemberTable, Kind: memory.OpDel, Key: "bond0:Ethernet0"},
		{Table: teamsync.LagTable, Kind: memory.OpDel, Key: "bond0"},
	}, st.Ops())
}

func TestExecute_UnknownAction(t *testing.T) {
	st := memory.New()
	exec := interpreter.NewExecutor(st.Table(teamsync.LagTable), st.Table(teamsync.LagMemberTable))

	err := exec.ExecuteAll(context.Background(), []action.Action{
		unknownAction{},
		action.DeleteBundle{Name: "never"},
	})
	assert.ErrorContains(t, err, "unknown action type")
	assert.Equal(t, []memory.Op{{Table: teamsync.LagTable, Kind: memory.OpDel, Key: "never"}}, st.Ops(),
		"a failure does not stop the actions after it")
}

// failingTable fails Set and Del for one key.
type failingTable struct {
	store.Table
	key string
}

func (t failingTable) Set(ctx context.Context, key string, fvs teamsync.FieldValues) error {
	if key == t.key {
		return errors.New("store unavailable")
	}
	return t.Table.Set(ctx, key, fvs)
}

func (t failingTable) Del(ctx context.Context, key string) error {
	if key == t.key {
		return errors.New("store unavailable")
	}
	return t.Table.Del(ctx, key)
}

func TestExecute_RemovalContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	members := failingTable{Table: st.Table(teamsync.LagMemberTable), key: "bond0:Ethernet0"}
	exec := interpreter.NewExecutor(st.Table(teamsync.LagTable), members)

	err := exec.Execute(ctx, compute.BundleRemoval("bond0", map[string]bool{"Ethernet0": true, "Ethernet4": true}))
	assert.ErrorContains(t, err, "store unavailable")
	assert.Equal(t, []memory.Op{
		{Table: teamsync.LagMemberTable, Kind: memory.OpDel, Key: "bond0:Ethernet4"},
		{Table: teamsync.LagTable, Kind: memory.OpDel, Key: "bond0"},
	}, st.Ops())
}

func TestExecuteAll_JoinsFailures(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	members := failingTable{Table: st.Table(teamsync.LagMemberTable), key: "bond0:Ethernet0"}
	exec := interpreter.NewExecutor(st.Table(teamsync.LagTable), members)

	err := exec.ExecuteAll(ctx, []action.Action{
		action.SetMemberStatus{Bundle: "bond0", Member: "Ethernet0", Enabled: true},
		action.SetMemberStatus{Bundle: "bond0", Member: "Ethernet4", Enabled: true},
		unknownAction{},
	})
	assert.ErrorContains(t, err, "store unavailable")
	assert.ErrorContains(t, err, "unknown action type")
	require.Len(t, st.Ops(), 1)
	assert.Equal(t, "bond0:Ethernet4", st.Ops()[0].Key)
}
