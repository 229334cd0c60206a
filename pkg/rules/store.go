package rules

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRuleNotFound is returned when a rule id resolves to nothing.
var ErrRuleNotFound = errors.New("rules: rule not found")

// Store persists routing rules per workspace.
type Store interface {
	// Create validates and inserts a rule. A zero Priority is assigned
	// max(existing)+1 so new rules land at the end of the evaluation
	// order by default.
	Create(ctx context.Context, rule *Rule) error

	Get(ctx context.Context, workspaceID, id string) (*Rule, error)

	// List returns the workspace's live rules sorted by priority
	// ascending.
	List(ctx context.Context, workspaceID string) ([]*Rule, error)

	// Update validates and replaces a rule.
	Update(ctx context.Context, rule *Rule) error

	// Delete soft-deletes a rule. Deleted rules disappear from Get and
	// List but their record is retained.
	Delete(ctx context.Context, workspaceID, id string) error
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule // workspaceID/id -> rule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]*Rule)}
}

func ruleKey(workspaceID, id string) string {
	return workspaceID + "/" + id
}

func (s *MemoryStore) Create(ctx context.Context, rule *Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(rule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Priority == 0 {
		max := 0
		for _, r := range s.rules {
			if r.WorkspaceID == rule.WorkspaceID && r.Priority > max {
				max = r.Priority
			}
		}
		rule.Priority = max + 1
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	clone := *rule
	s.rules[ruleKey(rule.WorkspaceID, rule.ID)] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, workspaceID, id string) (*Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[ruleKey(workspaceID, id)]
	if !ok || r.Deleted {
		return nil, ErrRuleNotFound
	}
	clone := *r
	return &clone, nil
}

func (s *MemoryStore) List(ctx context.Context, workspaceID string) ([]*Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, r := range s.rules {
		if r.WorkspaceID == workspaceID && !r.Deleted {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, rule *Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(rule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey(rule.WorkspaceID, rule.ID)
	existing, ok := s.rules[key]
	if !ok || existing.Deleted {
		return ErrRuleNotFound
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	clone := *rule
	s.rules[key] = &clone
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, workspaceID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey(workspaceID, id)
	r, ok := s.rules[key]
	if !ok || r.Deleted {
		return ErrRuleNotFound
	}
	r.Deleted = true
	r.UpdatedAt = time.Now()
	return nil
}
