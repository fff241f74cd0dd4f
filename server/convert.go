package server

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/teamdctl"
)

// Keys of a bundle struct in ListBundles.
const (
	KeyName    = "name"
	KeyIfIndex = "ifindex"
	KeyAdmin   = teamsync.FieldAdminStatus
	KeyOper    = teamsync.FieldOperStatus
	KeyMTU     = teamsync.FieldMTU
	KeyMembers = "members"
	KeyChannel = "channel"
)

func dumpsToStruct(entries []teamdctl.DumpEntry) *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(entries))}
	for _, e := range entries {
		out.Fields[e.Bundle] = structpb.NewStringValue(e.Payload)
	}
	return out
}

func bundleToStruct(b teamsync.BundleInfo) *structpb.Struct {
	members := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(b.Members))}
	for name, enabled := range b.Members {
		members.Fields[name] = structpb.NewStringValue(teamsync.EnabledDisabled(enabled))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		KeyName:    structpb.NewStringValue(b.Name),
		KeyIfIndex: structpb.NewNumberValue(float64(b.IfIndex)),
		KeyAdmin:   structpb.NewStringValue(teamsync.UpDown(b.AdminUp)),
		KeyOper:    structpb.NewStringValue(teamsync.UpDown(b.OperUp)),
		KeyMTU:     structpb.NewNumberValue(float64(b.MTU)),
		KeyMembers: structpb.NewStructValue(members),
		KeyChannel: structpb.NewBoolValue(b.Channel),
	}}
}

func bundlesToList(bundles []teamsync.BundleInfo) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(bundles))}
	for _, b := range bundles {
		out.Values = append(out.Values, structpb.NewStructValue(bundleToStruct(b)))
	}
	return out
}
