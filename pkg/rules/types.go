// Package rules implements the routing rule engine that decides which
// storage backend receives an uploaded file.
//
// A rule matches when ANY of its condition groups matches, and a group
// matches when ALL of its conditions hold. Rules are evaluated in
// ascending priority order; the first match wins. Evaluation is a pure
// function of the rule set and the file's attributes and performs no I/O.
package rules

import "time"

// Field names a file attribute a condition can test.
type Field string

const (
	FieldName      Field = "name"
	FieldExtension Field = "extension"
	FieldSize      Field = "size"
	FieldMimeType  Field = "mime_type"
)

// Operator is a comparison a condition applies to its field.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not_equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpIn         Operator = "in"
	OpGreater    Operator = "gt"
	OpGreaterEq  Operator = "gte"
	OpLess       Operator = "lt"
	OpLessEq     Operator = "lte"
)

// numericOperators hold only for FieldSize; Validate enforces this at
// save time so evaluation never sees an ill-typed condition.
var numericOperators = map[Operator]bool{
	OpGreater: true, OpGreaterEq: true, OpLess: true, OpLessEq: true,
}

// Condition is one attribute test. Value is loosely typed because rules
// arrive as JSON; Validate pins down what each field accepts.
type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// ConditionGroup is a conjunction: every condition must hold.
type ConditionGroup struct {
	Conditions []Condition `json:"conditions"`
}

// Rule routes matching files to one provider.
type Rule struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`

	// Priority orders evaluation; lower runs first.
	Priority int `json:"priority"`

	// Active rules participate in evaluation; inactive ones are skipped
	// without being deleted.
	Active bool `json:"active"`

	// ProviderID is the destination backend configuration.
	ProviderID string `json:"provider_id"`

	// DestinationFolderID optionally places matched files under a
	// specific namespace folder instead of the workspace root.
	DestinationFolderID string `json:"destination_folder_id,omitempty"`

	// Groups are alternatives: the rule matches when any group matches.
	Groups []ConditionGroup `json:"groups"`

	// Deleted marks a soft-deleted rule. Deleted rules never evaluate and
	// are hidden from listings.
	Deleted bool `json:"deleted,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileInfo carries the attributes evaluation tests. Extension is derived
// from Name, never supplied by callers.
type FileInfo struct {
	Name     string
	Size     int64
	MimeType string
}
