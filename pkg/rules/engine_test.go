package rules

import (
	"context"
	"testing"
)

func strCond(field Field, op Operator, value string) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

func sizeCond(op Operator, value int64) Condition {
	// JSON decoding hands sizes over as float64; tests mirror that.
	return Condition{Field: FieldSize, Operator: op, Value: float64(value)}
}

func singleGroup(conds ...Condition) []ConditionGroup {
	return []ConditionGroup{{Conditions: conds}}
}

func TestValidateRejectsNumericOperatorOnStringField(t *testing.T) {
	rule := &Rule{
		Name:       "bad",
		ProviderID: "p1",
		Groups:     singleGroup(strCond(FieldName, OpGreater, "x")),
	}
	if err := Validate(rule); err == nil {
		t.Fatal("expected validation error for gt on name")
	}
}

func TestValidateRejectsNonNumericSizeValue(t *testing.T) {
	rule := &Rule{
		Name:       "bad-size",
		ProviderID: "p1",
		Groups:     singleGroup(strCond(FieldSize, OpGreater, "big")),
	}
	if err := Validate(rule); err == nil {
		t.Fatal("expected validation error for string size value")
	}
}

func TestValidateRejectsEmptyGroups(t *testing.T) {
	tests := []*Rule{
		{Name: "no-groups", ProviderID: "p1"},
		{Name: "empty-group", ProviderID: "p1", Groups: []ConditionGroup{{}}},
		{Name: "", ProviderID: "p1", Groups: singleGroup(strCond(FieldName, OpEquals, "x"))},
		{Name: "no-provider", Groups: singleGroup(strCond(FieldName, OpEquals, "x"))},
	}
	for _, rule := range tests {
		if err := Validate(rule); err == nil {
			t.Errorf("rule %q: expected validation error", rule.Name)
		}
	}
}

func TestEvaluateFirstMatchByPriority(t *testing.T) {
	ruleSet := []*Rule{
		{
			ID: "r2", Name: "videos", ProviderID: "bulk", Priority: 2, Active: true,
			Groups: singleGroup(strCond(FieldExtension, OpEquals, "mp4")),
		},
		{
			ID: "r1", Name: "large files", ProviderID: "archive", Priority: 1, Active: true,
			Groups: singleGroup(sizeCond(OpGreater, 100<<20)),
		},
	}

	// A large video satisfies both; the lower priority number wins.
	rule, ok := Evaluate(ruleSet, FileInfo{Name: "talk.mp4", Size: 200 << 20},
		map[string]bool{"bulk": true, "archive": true})
	if !ok || rule.ProviderID != "archive" {
		t.Fatalf("Evaluate matched %+v (%v), want archive", rule, ok)
	}

	// A small video only matches the extension rule.
	rule, ok = Evaluate(ruleSet, FileInfo{Name: "clip.mp4", Size: 5 << 20},
		map[string]bool{"bulk": true, "archive": true})
	if !ok || rule.ProviderID != "bulk" {
		t.Fatalf("Evaluate matched %+v (%v), want bulk", rule, ok)
	}
}

func TestEvaluateSkipsInactiveRulesAndProviders(t *testing.T) {
	ruleSet := []*Rule{
		{
			ID: "r1", Name: "disabled rule", ProviderID: "p1", Priority: 1, Active: false,
			Groups: singleGroup(strCond(FieldExtension, OpEquals, "pdf")),
		},
		{
			ID: "r2", Name: "dead provider", ProviderID: "gone", Priority: 2, Active: true,
			Groups: singleGroup(strCond(FieldExtension, OpEquals, "pdf")),
		},
		{
			ID: "r3", Name: "fallthrough", ProviderID: "p2", Priority: 3, Active: true,
			Groups: singleGroup(strCond(FieldExtension, OpEquals, "pdf")),
		},
	}

	rule, ok := Evaluate(ruleSet, FileInfo{Name: "doc.pdf"},
		map[string]bool{"p1": true, "p2": true})
	if !ok || rule.ProviderID != "p2" {
		t.Fatalf("Evaluate matched %+v (%v), want p2", rule, ok)
	}
}

func TestEvaluateSkipsDeletedRules(t *testing.T) {
	ruleSet := []*Rule{
		{
			ID: "r1", Name: "removed", ProviderID: "p1", Priority: 1, Active: true, Deleted: true,
			Groups: singleGroup(strCond(FieldExtension, OpEquals, "pdf")),
		},
		{
			ID: "r2", Name: "live", ProviderID: "p2", Priority: 2, Active: true,
			Groups: singleGroup(strCond(FieldExtension, OpEquals, "pdf")),
		},
	}

	rule, ok := Evaluate(ruleSet, FileInfo{Name: "doc.pdf"},
		map[string]bool{"p1": true, "p2": true})
	if !ok || rule.ProviderID != "p2" {
		t.Fatalf("Evaluate matched %+v (%v), want p2", rule, ok)
	}
}

func TestEvaluateGroupSemantics(t *testing.T) {
	// Two groups: (extension=pdf AND size>10MB) OR (name contains "invoice").
	rule := &Rule{
		ID: "r1", Name: "docs", ProviderID: "docs", Priority: 1, Active: true,
		Groups: []ConditionGroup{
			{Conditions: []Condition{
				strCond(FieldExtension, OpEquals, "pdf"),
				sizeCond(OpGreater, 10<<20),
			}},
			{Conditions: []Condition{
				strCond(FieldName, OpContains, "invoice"),
			}},
		},
	}
	active := map[string]bool{"docs": true}

	tests := []struct {
		name string
		info FileInfo
		want bool
	}{
		{"both conditions of group 1", FileInfo{Name: "big.pdf", Size: 20 << 20}, true},
		{"only one condition of group 1", FileInfo{Name: "small.pdf", Size: 1 << 20}, false},
		{"second group alone", FileInfo{Name: "invoice-march.txt", Size: 1}, true},
		{"case-insensitive match", FileInfo{Name: "INVOICE.TXT", Size: 1}, true},
		{"no group", FileInfo{Name: "notes.md", Size: 1}, false},
	}

	for _, tt := range tests {
		_, ok := Evaluate([]*Rule{rule}, tt.info, active)
		if ok != tt.want {
			t.Errorf("%s: matched = %v, want %v", tt.name, ok, tt.want)
		}
	}
}

func TestEvaluateNoMatchReturnsFalse(t *testing.T) {
	rule, ok := Evaluate(nil, FileInfo{Name: "x"}, nil)
	if ok || rule != nil {
		t.Fatalf("Evaluate on empty set = (%+v, %v), want (nil, false)", rule, ok)
	}
}

func TestInOperatorMembership(t *testing.T) {
	active := map[string]bool{"media": true}

	mk := func(value any) []*Rule {
		return []*Rule{{
			ID: "r1", Name: "images", ProviderID: "media", Priority: 1, Active: true,
			Groups: singleGroup(Condition{Field: FieldExtension, Operator: OpIn, Value: value}),
		}}
	}

	// JSON arrays decode to []any.
	listValue := []any{"jpg", "png", "gif"}

	tests := []struct {
		name  string
		value any
		file  string
		want  bool
	}{
		{"array member", listValue, "photo.png", true},
		{"array non-member", listValue, "notes.txt", false},
		{"case-insensitive member", listValue, "SHOT.JPG", true},
		{"comma list with spaces", "jpg, png , gif", "anim.gif", true},
		{"comma list non-member", "jpg,png", "clip.mp4", false},
	}

	for _, tt := range tests {
		rule, ok := Evaluate(mk(tt.value), FileInfo{Name: tt.file}, active)
		if ok != tt.want {
			t.Errorf("%s: matched = %v, want %v", tt.name, ok, tt.want)
		}
		if ok && rule.ProviderID != "media" {
			t.Errorf("%s: provider = %q, want media", tt.name, rule.ProviderID)
		}
	}
}

func TestValidateInOperator(t *testing.T) {
	ok := &Rule{
		Name: "images", ProviderID: "media",
		Groups: singleGroup(Condition{Field: FieldExtension, Operator: OpIn, Value: []any{"jpg", "png"}}),
	}
	if err := Validate(ok); err != nil {
		t.Fatalf("valid in-rule rejected: %v", err)
	}

	bad := []*Rule{
		{
			Name: "in-on-size", ProviderID: "p1",
			Groups: singleGroup(Condition{Field: FieldSize, Operator: OpIn, Value: []any{"1"}}),
		},
		{
			Name: "non-string list", ProviderID: "p1",
			Groups: singleGroup(Condition{Field: FieldExtension, Operator: OpIn, Value: []any{1, 2}}),
		},
		{
			Name: "numeric value", ProviderID: "p1",
			Groups: singleGroup(Condition{Field: FieldExtension, Operator: OpIn, Value: 42}),
		},
	}
	for _, rule := range bad {
		if err := Validate(rule); err == nil {
			t.Errorf("rule %q: expected validation error", rule.Name)
		}
	}
}

func TestEvaluateCarriesDestinationFolder(t *testing.T) {
	ruleSet := []*Rule{{
		ID: "r1", Name: "scans", ProviderID: "archive", DestinationFolderID: "folder-scans",
		Priority: 1, Active: true,
		Groups: singleGroup(strCond(FieldExtension, OpEquals, "pdf")),
	}}

	rule, ok := Evaluate(ruleSet, FileInfo{Name: "scan.pdf"}, map[string]bool{"archive": true})
	if !ok {
		t.Fatal("expected a match")
	}
	if rule.DestinationFolderID != "folder-scans" {
		t.Errorf("destination folder = %q, want folder-scans", rule.DestinationFolderID)
	}
}

func TestExtension(t *testing.T) {
	tests := []struct{ name, want string }{
		{"report.PDF", "pdf"},
		{"archive.tar.gz", "gz"},
		{"README", ""},
		{".hidden", "hidden"},
	}
	for _, tt := range tests {
		if got := Extension(tt.name); got != tt.want {
			t.Errorf("Extension(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMemoryStoreAssignsNextPriority(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	mk := func(name string) *Rule {
		return &Rule{
			WorkspaceID: "ws", Name: name, ProviderID: "p1", Active: true,
			Groups: singleGroup(strCond(FieldName, OpEquals, name)),
		}
	}

	first := mk("first")
	if err := store.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := mk("second")
	if err := store.Create(ctx, second); err != nil {
		t.Fatal(err)
	}

	if first.Priority != 1 || second.Priority != 2 {
		t.Errorf("priorities = %d, %d; want 1, 2", first.Priority, second.Priority)
	}

	listed, err := store.List(ctx, "ws")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 || listed[0].Name != "first" {
		t.Errorf("unexpected listing order: %+v", listed)
	}
}

func TestMemoryStoreSoftDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rule := &Rule{
		WorkspaceID: "ws", Name: "images", ProviderID: "p1", Active: true,
		Groups: singleGroup(strCond(FieldExtension, OpEquals, "png")),
	}
	if err := store.Create(ctx, rule); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "ws", rule.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, "ws", rule.ID); err != ErrRuleNotFound {
		t.Errorf("Get after delete = %v, want ErrRuleNotFound", err)
	}
	listed, err := store.List(ctx, "ws")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 0 {
		t.Errorf("deleted rule still listed: %+v", listed)
	}
	if err := store.Delete(ctx, "ws", rule.ID); err != ErrRuleNotFound {
		t.Errorf("second delete = %v, want ErrRuleNotFound", err)
	}

	// The priority stays reserved so survivors are never renumbered.
	next := &Rule{
		WorkspaceID: "ws", Name: "videos", ProviderID: "p1", Active: true,
		Groups: singleGroup(strCond(FieldExtension, OpEquals, "mp4")),
	}
	if err := store.Create(ctx, next); err != nil {
		t.Fatal(err)
	}
	if next.Priority != rule.Priority+1 {
		t.Errorf("priority = %d, want %d", next.Priority, rule.Priority+1)
	}
}

func TestMemoryStoreCreateRejectsInvalidRule(t *testing.T) {
	store := NewMemoryStore()
	err := store.Create(context.Background(), &Rule{WorkspaceID: "ws", Name: "bad", ProviderID: "p1"})
	if err == nil {
		t.Fatal("expected validation error at save time")
	}
}
