package teamsync_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-teamsync"
)

func TestMemberKey(t *testing.T) {
	key := teamsync.MemberKey("bond0", "eth0")
	assert.Equal(t, "bond0:eth0", key)

	bundle, member, ok := teamsync.SplitMemberKey(key)
	require.True(t, ok)
	assert.Equal(t, "bond0", bundle)
	assert.Equal(t, "eth0", member)

	bundle, member, ok = teamsync.SplitMemberKey("bond0:eth0:1")
	require.True(t, ok)
	assert.Equal(t, "bond0", bundle)
	assert.Equal(t, "eth0:1", member)

	_, _, ok = teamsync.SplitMemberKey("bond0")
	assert.False(t, ok)
}

func TestFieldValues(t *testing.T) {
	fvs := teamsync.FromMap(map[string]string{"mtu": "1500", "admin_status": "up", "oper_status": "down"})
	assert.Equal(t, teamsync.FieldValues{
		{Field: "admin_status", Value: "up"},
		{Field: "mtu", Value: "1500"},
		{Field: "oper_status", Value: "down"},
	}, fvs)

	v, ok := fvs.Get("mtu")
	assert.True(t, ok)
	assert.Equal(t, "1500", v)
	_, ok = fvs.Get("state")
	assert.False(t, ok)

	clone := fvs.Clone()
	clone[0].Value = "down"
	assert.Equal(t, "up", fvs[0].Value)

	dup := teamsync.FieldValues{{Field: "mtu", Value: "1500"}, {Field: "mtu", Value: "9100"}}
	assert.Equal(t, map[string]string{"mtu": "9100"}, dup.Map())
}

func TestBundleAttrs(t *testing.T) {
	a := teamsync.BundleAttrs{Name: "bond0", IfIndex: 4, AdminUp: true, OperUp: false, MTU: 9100}

	assert.Equal(t, teamsync.FieldValues{
		{Field: teamsync.FieldAdminStatus, Value: "up"},
		{Field: teamsync.FieldOperStatus, Value: "down"},
		{Field: teamsync.FieldMTU, Value: "9100"},
	}, a.Fields())

	state := a.StateFields()
	require.Len(t, state, 4)
	assert.Equal(t, teamsync.FieldValue{Field: teamsync.FieldState, Value: teamsync.StateOK}, state[3])

	b := a
	b.IfIndex = 99
	assert.True(t, a.SameState(b), "ifindex is not part of the state")
	b.OperUp = true
	assert.False(t, a.SameState(b))
}

func TestRenderers(t *testing.T) {
	assert.Equal(t, "up", teamsync.UpDown(true))
	assert.Equal(t, "down", teamsync.UpDown(false))
	assert.Equal(t, "enabled", teamsync.EnabledDisabled(true))
	assert.Equal(t, "disabled", teamsync.EnabledDisabled(false))
}

func TestErrors(t *testing.T) {
	cause := errors.New("ENOMEM")
	err := error(&teamsync.MonitorInitError{Bundle: "bond0", IfIndex: 4, Attempts: 3, Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 3 attempts")

	var notTracked teamsync.ErrBundleNotTracked
	wrapped := errors.Join(errors.New("get dump"), teamsync.ErrBundleNotTracked{Name: "bond9"})
	require.ErrorAs(t, wrapped, &notTracked)
	assert.Equal(t, "bond9", notTracked.Name)
}
