package teamsync

import "strconv"

// TeamDriverKind is the rtnetlink link kind reported for bundles
// created by the kernel team driver.
const TeamDriverKind = "team"

// BundleAttrs are the kernel-reported attributes of a bundle.
type BundleAttrs struct {
	Name    string
	IfIndex uint32
	AdminUp bool
	OperUp  bool
	MTU     uint32
}

// SameState reports whether admin, oper and mtu match.
func (a BundleAttrs) SameState(b BundleAttrs) bool {
	return a.AdminUp == b.AdminUp && a.OperUp == b.OperUp && a.MTU == b.MTU
}

// Fields returns the BundleRecord fields for these attributes.
func (a BundleAttrs) Fields() FieldValues {
	return FieldValues{
		{Field: FieldAdminStatus, Value: UpDown(a.AdminUp)},
		{Field: FieldOperStatus, Value: UpDown(a.OperUp)},
		{Field: FieldMTU, Value: strconv.FormatUint(uint64(a.MTU), 10)},
	}
}

// StateFields returns the lifecycle record fields: the BundleRecord
// fields followed by state=ok.
func (a BundleAttrs) StateFields() FieldValues {
	return append(a.Fields(), FieldValue{Field: FieldState, Value: StateOK})
}

// BundleInfo describes a tracked bundle to API callers.
type BundleInfo struct {
	BundleAttrs
	// Members maps member name to its enabled flag.
	Members map[string]bool
	// Channel reports whether a teamd control channel is open.
	Channel bool
}
