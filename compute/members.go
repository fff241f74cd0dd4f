// Package compute contains pure functions that turn observed bundle
// state into store actions. Nothing here performs I/O.
package compute

import (
	"maps"
	"slices"

	"github.com/frobware/go-teamsync/action"
)

// MemberDiff returns the actions that move the published member set of
// bundle from prev to next.
//
// A member that is new, or whose flag changed, gets one
// SetMemberStatus; a member only in prev gets one DeleteMember; an
// unchanged member gets nothing. All sets come before all deletes, and
// each group is in member name order.
func MemberDiff(bundle string, prev, next map[string]bool) []action.Action {
	var sets, dels []action.Action

	for _, member := range slices.Sorted(maps.Keys(next)) {
		enabled := next[member]
		if old, ok := prev[member]; ok && old == enabled {
			continue
		}
		sets = append(sets, action.SetMemberStatus{Bundle: bundle, Member: member, Enabled: enabled})
	}

	for _, member := range slices.Sorted(maps.Keys(prev)) {
		if _, ok := next[member]; !ok {
			dels = append(dels, action.DeleteMember{Bundle: bundle, Member: member})
		}
	}

	return append(sets, dels...)
}

// BundleRemoval returns the Sequence that retracts a bundle: one
// DeleteMember per known member, then the DeleteBundle.
func BundleRemoval(bundle string, members map[string]bool) action.Sequence {
	actions := make([]action.Action, 0, len(members)+1)
	for _, member := range slices.Sorted(maps.Keys(members)) {
		actions = append(actions, action.DeleteMember{Bundle: bundle, Member: member})
	}
	return action.Sequence{Actions: append(actions, action.DeleteBundle{Name: bundle})}
}
