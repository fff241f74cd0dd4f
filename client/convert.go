package client

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/server"
)

// bundleFromStruct is the inverse of the server's bundle encoding.
func bundleFromStruct(s *structpb.Struct) (teamsync.BundleInfo, error) {
	if s == nil {
		return teamsync.BundleInfo{}, fmt.Errorf("bundle entry is not a struct")
	}
	f := s.GetFields()
	name := f[server.KeyName].GetStringValue()
	if name == "" {
		return teamsync.BundleInfo{}, fmt.Errorf("bundle entry has no name")
	}

	b := teamsync.BundleInfo{
		BundleAttrs: teamsync.BundleAttrs{
			Name:    name,
			IfIndex: uint32(f[server.KeyIfIndex].GetNumberValue()),
			AdminUp: f[server.KeyAdmin].GetStringValue() == teamsync.StatusUp,
			OperUp:  f[server.KeyOper].GetStringValue() == teamsync.StatusUp,
			MTU:     uint32(f[server.KeyMTU].GetNumberValue()),
		},
		Members: make(map[string]bool),
		Channel: f[server.KeyChannel].GetBoolValue(),
	}
	for member, v := range f[server.KeyMembers].GetStructValue().GetFields() {
		b.Members[member] = v.GetStringValue() == teamsync.MemberEnabled
	}
	return b, nil
}
