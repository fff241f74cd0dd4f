// Package teamsync holds the data model shared by the bundle state
// synchroniser and the teamd control-channel manager: table names,
// record keys, field/value tuples and bundle attributes.
package teamsync

import (
	"slices"
	"strings"
)

// Table names in the state store.
const (
	// LagTable holds one BundleRecord per live bundle.
	LagTable = "LAG_TABLE"
	// LagMemberTable holds one MemberRecord per tracked bundle member.
	LagMemberTable = "LAG_MEMBER_TABLE"
	// StateLagTable holds the lifecycle record of each bundle.
	StateLagTable = "STATE_LAG_TABLE"
	// LagDumpTable holds the last teamd state dump of each bundle.
	LagDumpTable = "LAG_DUMP_TABLE"
	// WarmRestartTable holds per-application warm restart state.
	WarmRestartTable = "WARM_RESTART_TABLE"
	// WarmRestartEnableTable holds warm restart enablement flags.
	WarmRestartEnableTable = "WARM_RESTART_ENABLE_TABLE"
	// WarmRestartCfgTable holds warm restart timers.
	WarmRestartCfgTable = "WARM_RESTART_CFG"
)

// KeySeparator joins the components of a compound record key.
const KeySeparator = ":"

// Field names.
const (
	FieldAdminStatus = "admin_status"
	FieldOperStatus  = "oper_status"
	FieldMTU         = "mtu"
	FieldState       = "state"
	FieldStatus      = "status"
	FieldDump        = "dump"
)

// Field values.
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StateOK        = "ok"
	MemberEnabled  = "enabled"
	MemberDisabled = "disabled"
)

// MemberKey returns the LAG_MEMBER_TABLE key of member within bundle.
func MemberKey(bundle, member string) string {
	return bundle + KeySeparator + member
}

// SplitMemberKey splits a LAG_MEMBER_TABLE key into bundle and member.
// The bundle name never contains the separator, the member name may.
func SplitMemberKey(key string) (bundle, member string, ok bool) {
	return strings.Cut(key, KeySeparator)
}

// FieldValue is a single field of a record.
type FieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// FieldValues is an ordered list of record fields.
type FieldValues []FieldValue

// Get returns the value of field and whether it is present.
func (fvs FieldValues) Get(field string) (string, bool) {
	for _, fv := range fvs {
		if fv.Field == field {
			return fv.Value, true
		}
	}
	return "", false
}

// Map returns the fields as a map. Later duplicates win.
func (fvs FieldValues) Map() map[string]string {
	m := make(map[string]string, len(fvs))
	for _, fv := range fvs {
		m[fv.Field] = fv.Value
	}
	return m
}

// Clone returns a copy that does not share storage with fvs.
func (fvs FieldValues) Clone() FieldValues {
	return slices.Clone(fvs)
}

// FromMap builds FieldValues sorted by field name.
func FromMap(m map[string]string) FieldValues {
	fvs := make(FieldValues, 0, len(m))
	for k, v := range m {
		fvs = append(fvs, FieldValue{Field: k, Value: v})
	}
	slices.SortFunc(fvs, func(a, b FieldValue) int { return strings.Compare(a.Field, b.Field) })
	return fvs
}

// UpDown renders a boolean link state.
func UpDown(up bool) string {
	if up {
		return StatusUp
	}
	return StatusDown
}

// EnabledDisabled renders a member enabled flag.
func EnabledDisabled(enabled bool) string {
	if enabled {
		return MemberEnabled
	}
	return MemberDisabled
}
