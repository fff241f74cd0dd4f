package cli

import (
	"fmt"
	"strings"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	OutputFormatTable    OutputFormat = "table"
	OutputFormatJSON     OutputFormat = "json"
	OutputFormatJSONPath OutputFormat = "jsonpath"
)

const jsonPathPrefix = "jsonpath="

// OutputFlags provides output formatting flags.
type OutputFlags struct {
	Output string `short:"o" help:"Output format: table, json, jsonpath=EXPR." default:"table"`
}

// Format returns the base format type.
func (f *OutputFlags) Format() OutputFormat {
	switch {
	case f.Output == "json":
		return OutputFormatJSON
	case strings.HasPrefix(f.Output, jsonPathPrefix) && len(f.Output) > len(jsonPathPrefix):
		return OutputFormatJSONPath
	default:
		return OutputFormatTable
	}
}

// JSONPathExpr returns the JSONPath expression if format is jsonpath=EXPR.
func (f *OutputFlags) JSONPathExpr() string {
	if f.Format() == OutputFormatJSONPath {
		return strings.TrimPrefix(f.Output, jsonPathPrefix)
	}
	return ""
}

// Validate rejects unknown formats at parse time.
func (f *OutputFlags) Validate() error {
	if f.Output == "table" || f.Format() != OutputFormatTable {
		return nil
	}
	return fmt.Errorf("unknown output format %q", f.Output)
}
