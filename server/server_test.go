package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/selector"
	"github.com/frobware/go-teamsync/teamdctl"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("lookup: %w", teamsync.ErrBundleNotTracked{Name: "bond0"}), codes.NotFound},
		{fmt.Errorf("%w: bond0", teamsync.ErrTransport), codes.Unavailable},
		{selector.ErrClosed, codes.Unavailable},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(toStatus(tt.err)), tt.err.Error())
	}
}

func TestBundleToStruct(t *testing.T) {
	s := bundleToStruct(teamsync.BundleInfo{
		BundleAttrs: teamsync.BundleAttrs{Name: "bond0", IfIndex: 10, AdminUp: true, MTU: 9100},
		Members:     map[string]bool{"Ethernet0": true, "Ethernet4": false},
		Channel:     true,
	})
	assert.Equal(t, map[string]any{
		"name":         "bond0",
		"ifindex":      float64(10),
		"admin_status": "up",
		"oper_status":  "down",
		"mtu":          float64(9100),
		"members":      map[string]any{"Ethernet0": "enabled", "Ethernet4": "disabled"},
		"channel":      true,
	}, s.AsMap())
}

func TestDumpsToStruct(t *testing.T) {
	s := dumpsToStruct([]teamdctl.DumpEntry{{Bundle: "bond0", Payload: "{}"}, {Bundle: "bond2", Payload: `{"a":1}`}})
	assert.Equal(t, map[string]any{"bond0": "{}", "bond2": `{"a":1}`}, s.AsMap())
}
