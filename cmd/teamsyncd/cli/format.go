package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"k8s.io/client-go/util/jsonpath"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/client"
)

type bundleView struct {
	Name       string          `json:"name"`
	IfIndex    uint32          `json:"ifindex"`
	AdminState string          `json:"admin_status"`
	OperState  string          `json:"oper_status"`
	MTU        uint32          `json:"mtu"`
	Members    map[string]bool `json:"members"`
	Channel    bool            `json:"channel"`
}

func toBundleView(b teamsync.BundleInfo) bundleView {
	members := b.Members
	if members == nil {
		members = map[string]bool{}
	}
	return bundleView{
		Name:       b.Name,
		IfIndex:    b.IfIndex,
		AdminState: teamsync.UpDown(b.AdminUp),
		OperState:  teamsync.UpDown(b.OperUp),
		MTU:        b.MTU,
		Members:    members,
		Channel:    b.Channel,
	}
}

// FormatBundles renders bundles according to the output flags.
func FormatBundles(bundles []teamsync.BundleInfo, flags *OutputFlags) (string, error) {
	switch flags.Format() {
	case OutputFormatJSON:
		return marshalIndent(bundleViews(bundles))
	case OutputFormatJSONPath:
		return formatBundlesJSONPath(bundles, flags.JSONPathExpr())
	default:
		return formatBundlesTable(bundles), nil
	}
}

func bundleViews(bundles []teamsync.BundleInfo) []bundleView {
	views := make([]bundleView, 0, len(bundles))
	for _, b := range bundles {
		views = append(views, toBundleView(b))
	}
	return views
}

func formatBundlesJSONPath(bundles []teamsync.BundleInfo, expr string) (string, error) {
	return executeJSONPath(bundleViews(bundles), expr)
}

func formatBundlesTable(bundles []teamsync.BundleInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-8s %-6s %-6s %-6s %-8s %s\n", "NAME", "IFINDEX", "ADMIN", "OPER", "MTU", "CHANNEL", "MEMBERS")
	for _, bundle := range bundles {
		fmt.Fprintf(&b, "%-16s %-8d %-6s %-6s %-6d %-8t %s\n",
			bundle.Name,
			bundle.IfIndex,
			teamsync.UpDown(bundle.AdminUp),
			teamsync.UpDown(bundle.OperUp),
			bundle.MTU,
			bundle.Channel,
			formatMembers(bundle.Members),
		)
	}
	return b.String()
}

// formatMembers renders members in name order, disabled ones marked
// with a trailing '-'.
func formatMembers(members map[string]bool) string {
	if len(members) == 0 {
		return "-"
	}
	names := slices.Sorted(maps.Keys(members))
	for i, name := range names {
		if !members[name] {
			names[i] = name + "-"
		}
	}
	return strings.Join(names, ",")
}

// FormatDumps renders state dumps keyed by bundle name. JSON and
// JSONPath output embed payloads that are valid JSON as-is and quote
// the rest.
func FormatDumps(dumps map[string]string, flags *OutputFlags) (string, error) {
	switch flags.Format() {
	case OutputFormatJSON:
		out, err := dumpsDocument(dumps)
		if err != nil {
			return "", err
		}
		return marshalIndent(out)
	case OutputFormatJSONPath:
		return formatDumpsJSONPath(dumps, flags.JSONPathExpr())
	default:
		var b strings.Builder
		for _, name := range client.SortedNames(dumps) {
			fmt.Fprintf(&b, "%s:\n%s\n", name, dumps[name])
		}
		return b.String(), nil
	}
}

func dumpsDocument(dumps map[string]string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(dumps))
	for name, payload := range dumps {
		if json.Valid([]byte(payload)) {
			out[name] = json.RawMessage(payload)
			continue
		}
		quoted, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal dump of %s: %w", name, err)
		}
		out[name] = quoted
	}
	return out, nil
}

func formatDumpsJSONPath(dumps map[string]string, expr string) (string, error) {
	doc, err := dumpsDocument(dumps)
	if err != nil {
		return "", err
	}
	return executeJSONPath(doc, expr)
}

// executeJSONPath evaluates expr against the JSON form of v.
func executeJSONPath(v any, expr string) (string, error) {
	jp := jsonpath.New("output")
	if err := jp.Parse(expr); err != nil {
		return "", fmt.Errorf("invalid jsonpath expression %q: %w", expr, err)
	}

	// jsonpath walks generic values, not tagged structs.
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}
	var data any
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return "", fmt.Errorf("failed to unmarshal: %w", err)
	}

	var buf bytes.Buffer
	if err := jp.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("jsonpath execution failed: %w", err)
	}
	return buf.String() + "\n", nil
}

func marshalIndent(v any) (string, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(output) + "\n", nil
}
