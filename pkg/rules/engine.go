package rules

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ValidationError reports a structurally invalid rule. Raised at save
// time so evaluation can assume well-formed conditions.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Message)
}

// Validate checks a rule's structure: known fields and operators,
// operator/field compatibility, and value types.
func Validate(rule *Rule) error {
	fail := func(format string, args ...any) error {
		return &ValidationError{Rule: rule.Name, Message: fmt.Sprintf(format, args...)}
	}

	if rule.Name == "" {
		return fail("name is required")
	}
	if rule.ProviderID == "" {
		return fail("provider_id is required")
	}
	if len(rule.Groups) == 0 {
		return fail("at least one condition group is required")
	}

	for gi, group := range rule.Groups {
		if len(group.Conditions) == 0 {
			return fail("group %d has no conditions", gi)
		}
		for ci, cond := range group.Conditions {
			switch cond.Field {
			case FieldName, FieldExtension, FieldSize, FieldMimeType:
			default:
				return fail("group %d condition %d: unknown field %q", gi, ci, cond.Field)
			}

			switch cond.Operator {
			case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
				OpIn, OpGreater, OpGreaterEq, OpLess, OpLessEq:
			default:
				return fail("group %d condition %d: unknown operator %q", gi, ci, cond.Operator)
			}

			if numericOperators[cond.Operator] && cond.Field != FieldSize {
				return fail("group %d condition %d: operator %q only applies to size", gi, ci, cond.Operator)
			}
			if cond.Operator == OpIn && cond.Field == FieldSize {
				return fail("group %d condition %d: operator %q only applies to string fields", gi, ci, cond.Operator)
			}

			if cond.Field == FieldSize {
				if _, ok := toNumber(cond.Value); !ok {
					return fail("group %d condition %d: size comparison needs a numeric value", gi, ci)
				}
			} else if cond.Operator == OpIn {
				if _, ok := toStringList(cond.Value); !ok {
					return fail("group %d condition %d: %q needs a string list or comma-separated string", gi, ci, cond.Operator)
				}
			} else if _, ok := cond.Value.(string); !ok {
				return fail("group %d condition %d: %s comparison needs a string value", gi, ci, cond.Field)
			}
		}
	}
	return nil
}

// Evaluate runs the rule set over a file and returns the first matching
// rule, which carries the destination provider and optional folder.
//
// Rules are tried in ascending priority order. Inactive or deleted rules
// and rules pointing at a provider outside activeProviders are skipped; a
// disabled destination never swallows a file.
func Evaluate(ruleSet []*Rule, info FileInfo, activeProviders map[string]bool) (*Rule, bool) {
	ordered := make([]*Rule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, rule := range ordered {
		if !rule.Active || rule.Deleted || !activeProviders[rule.ProviderID] {
			continue
		}
		if ruleMatches(rule, info) {
			return rule, true
		}
	}
	return nil, false
}

func ruleMatches(rule *Rule, info FileInfo) bool {
	for _, group := range rule.Groups {
		if groupMatches(group, info) {
			return true
		}
	}
	return false
}

func groupMatches(group ConditionGroup, info FileInfo) bool {
	for _, cond := range group.Conditions {
		if !conditionMatches(cond, info) {
			return false
		}
	}
	return true
}

func conditionMatches(cond Condition, info FileInfo) bool {
	if cond.Field == FieldSize {
		want, ok := toNumber(cond.Value)
		if !ok {
			return false
		}
		return compareSize(cond.Operator, info.Size, want)
	}

	var got string
	switch cond.Field {
	case FieldName:
		got = info.Name
	case FieldExtension:
		got = Extension(info.Name)
	case FieldMimeType:
		got = info.MimeType
	default:
		return false
	}

	if cond.Operator == OpIn {
		values, ok := toStringList(cond.Value)
		if !ok {
			return false
		}
		got = strings.ToLower(got)
		for _, v := range values {
			if got == strings.ToLower(strings.TrimSpace(v)) {
				return true
			}
		}
		return false
	}

	want, ok := cond.Value.(string)
	if !ok {
		return false
	}
	return compareString(cond.Operator, got, want)
}

// compareString applies a string operator, case-insensitively.
func compareString(op Operator, got, want string) bool {
	got = strings.ToLower(got)
	want = strings.ToLower(want)

	switch op {
	case OpEquals:
		return got == want
	case OpNotEquals:
		return got != want
	case OpContains:
		return strings.Contains(got, want)
	case OpStartsWith:
		return strings.HasPrefix(got, want)
	case OpEndsWith:
		return strings.HasSuffix(got, want)
	}
	return false
}

func compareSize(op Operator, got, want int64) bool {
	switch op {
	case OpEquals:
		return got == want
	case OpNotEquals:
		return got != want
	case OpGreater:
		return got > want
	case OpGreaterEq:
		return got >= want
	case OpLess:
		return got < want
	case OpLessEq:
		return got <= want
	}
	return false
}

// Extension derives the lowercased extension (without the dot) from a
// file name. "archive.tar.gz" yields "gz"; a dotless name yields "".
func Extension(name string) string {
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// toStringList coerces the value forms an "in" membership accepts: a
// JSON array of strings or a single comma-separated string.
func toStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case string:
		return strings.Split(list, ","), true
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// toNumber coerces the JSON-decoded value forms a size can arrive as.
func toNumber(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
