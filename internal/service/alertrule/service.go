package alertrule

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	domainerrors "github.com/worldwatch/intel-backend/internal/domain/errors"
	"github.com/worldwatch/intel-backend/internal/domain/event"
)

const rulesKey = "alert_rules:v1"

type service struct {
	store    Store
	clock    event.Clock
	logger   *slog.Logger
	validate *validator.Validate

	mu    sync.RWMutex
	rules map[string]*Rule
}

// NewService builds the rule engine, loading the persisted rule set into the
// in-memory index. Storage failures at load time are logged and the engine
// starts empty.
func NewService(ctx context.Context, store Store, clock event.Clock, logger *slog.Logger) Service {
	if clock == nil {
		clock = event.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &service{
		store:    store,
		clock:    clock,
		logger:   logger,
		validate: validator.New(),
		rules:    make(map[string]*Rule),
	}
	s.loadRules(ctx)
	return s
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Rule, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, domainerrors.NewValidationError("INVALID_RULE", "invalid rule definition").WithCause(err)
	}

	now := s.clock.Now()
	rule := &Rule{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Description: input.Description,
		Enabled:     true,
		Conditions:  input.Conditions,
		Logic:       input.Logic,
		Actions:     input.Actions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.rules[rule.ID] = rule
	s.mu.Unlock()

	s.persistRules(ctx)
	s.logger.InfoContext(ctx, "alert rule created", "rule_id", rule.ID, "name", rule.Name)
	return cloneRule(rule), nil
}

func (s *service) Update(ctx context.Context, id string, input UpdateInput) (*Rule, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, domainerrors.NewValidationError("INVALID_RULE", "invalid rule update").WithCause(err)
	}

	s.mu.Lock()
	rule, ok := s.rules[id]
	if !ok {
		s.mu.Unlock()
		return nil, domainerrors.NewNotFoundError("alert rule")
	}

	// ID, CreatedAt and TriggerCount are immutable.
	if input.Name != nil {
		rule.Name = *input.Name
	}
	if input.Description != nil {
		rule.Description = *input.Description
	}
	if input.Enabled != nil {
		rule.Enabled = *input.Enabled
	}
	if input.Conditions != nil {
		rule.Conditions = *input.Conditions
	}
	if input.Logic != nil {
		rule.Logic = *input.Logic
	}
	if input.Actions != nil {
		rule.Actions = *input.Actions
	}
	rule.UpdatedAt = s.clock.Now()
	updated := cloneRule(rule)
	s.mu.Unlock()

	s.persistRules(ctx)
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	_, ok := s.rules[id]
	if ok {
		delete(s.rules, id)
	}
	s.mu.Unlock()

	if ok {
		s.persistRules(ctx)
		s.logger.InfoContext(ctx, "alert rule deleted", "rule_id", id)
	}
	return ok, nil
}

func (s *service) Toggle(ctx context.Context, id string, enabled bool) (*Rule, error) {
	return s.Update(ctx, id, UpdateInput{Enabled: &enabled})
}

func (s *service) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, domainerrors.NewNotFoundError("alert rule")
	}
	return cloneRule(rule), nil
}

func (s *service) List(_ context.Context) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *service) Evaluate(_ context.Context, ev *event.ClusteredEvent) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, rule := range s.snapshotLocked() {
		if !rule.Enabled {
			continue
		}
		if ruleMatches(rule, ev) {
			matches = append(matches, Match{
				RuleID:         rule.ID,
				RuleName:       rule.Name,
				HighlightColor: rule.Actions.HighlightColor,
			})
		}
	}
	return matches
}

func (s *service) RecordTrigger(ctx context.Context, ruleID string) error {
	s.mu.Lock()
	rule, ok := s.rules[ruleID]
	if !ok {
		s.mu.Unlock()
		return domainerrors.NewNotFoundError("alert rule")
	}
	now := s.clock.Now()
	rule.LastTriggered = &now
	rule.TriggerCount++
	s.mu.Unlock()

	s.persistRules(ctx)
	return nil
}

func (s *service) ExportAll(ctx context.Context) ([]byte, error) {
	rules := s.List(ctx)
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to serialize rules").WithCause(err)
	}
	return data, nil
}

func (s *service) ImportAll(ctx context.Context, data []byte) (int, error) {
	var incoming []Rule
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, domainerrors.NewValidationError("INVALID_IMPORT", "rule import is not valid JSON").WithCause(err)
	}

	imported := 0
	now := s.clock.Now()

	s.mu.Lock()
	for i := range incoming {
		rule := incoming[i]
		// Minimal validation; malformed entries are skipped, not fatal.
		if rule.ID == "" || rule.Name == "" || len(rule.Conditions) == 0 {
			continue
		}
		if rule.Logic != LogicAll && rule.Logic != LogicAny {
			rule.Logic = LogicAll
		}
		// Regenerate ids so imports never collide with existing rules. An
		// import is a creation: trigger statistics never carry over.
		rule.ID = uuid.NewString()
		rule.CreatedAt = now
		rule.UpdatedAt = now
		rule.TriggerCount = 0
		rule.LastTriggered = nil
		s.rules[rule.ID] = &rule
		imported++
	}
	s.mu.Unlock()

	if imported > 0 {
		s.persistRules(ctx)
	}
	s.logger.InfoContext(ctx, "alert rules imported", "imported", imported, "received", len(incoming))
	return imported, nil
}

// snapshotLocked returns rule copies ordered by creation time. Callers hold
// at least a read lock.
func (s *service) snapshotLocked() []*Rule {
	rules := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, cloneRule(rule))
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules
}

func (s *service) loadRules(ctx context.Context) {
	if s.store == nil {
		return
	}
	data, found, err := s.store.Get(ctx, rulesKey)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load alert rules, starting empty", "error", err)
		return
	}
	if !found {
		return
	}
	var rules []*Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		s.logger.WarnContext(ctx, "corrupt alert rule snapshot, starting empty", "error", err)
		return
	}
	for _, rule := range rules {
		if rule != nil && rule.ID != "" {
			s.rules[rule.ID] = rule
		}
	}
	s.logger.InfoContext(ctx, "alert rules loaded", "count", len(s.rules))
}

func (s *service) persistRules(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.RLock()
	rules := s.snapshotLocked()
	s.mu.RUnlock()

	if err := s.store.Set(ctx, rulesKey, rules); err != nil {
		s.logger.WarnContext(ctx, "failed to persist alert rules", "error", err)
	}
}

func cloneRule(rule *Rule) *Rule {
	out := *rule
	out.Conditions = append([]Condition(nil), rule.Conditions...)
	if rule.LastTriggered != nil {
		t := *rule.LastTriggered
		out.LastTriggered = &t
	}
	return &out
}
