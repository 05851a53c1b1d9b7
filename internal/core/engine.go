package core

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
)

// ErrEngineSealed is returned when registration is attempted after the load
// phase has ended.
var ErrEngineSealed = errors.New("engine sealed: registration closed")

// Engine owns the rule registry, keyed by (entity type, trigger), and the
// validator registry, keyed by entity type. Registration happens during a
// single load phase; the first Dispatch or Validate (or an explicit Seal)
// ends it, after which the registries are read-only and safe for concurrent
// readers.
type Engine struct {
	rules      map[string]map[string][]ruleapi.Rule
	validators map[string][]ruleapi.Validator
	plugins    map[string]PluginMetadata
	catalog    *domain.Catalog
	inherit    bool
	sealed     atomic.Bool
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithCatalog sets the schema catalog used for inherited lookups.
func WithCatalog(c *domain.Catalog) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.catalog = c
		}
	}
}

// WithInheritedRules makes lookups append the handlers registered for each
// schema ancestor after the exact type's handlers, nearest ancestor first.
func WithInheritedRules() EngineOption {
	return func(e *Engine) { e.inherit = true }
}

// NewEngine constructs an engine in its load phase.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		rules:      make(map[string]map[string][]ruleapi.Rule),
		validators: make(map[string][]ruleapi.Validator),
		plugins:    make(map[string]PluginMetadata),
		catalog:    domain.DefaultCatalog(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddBusinessRule appends rule to the chain for (entityType, trigger).
// Duplicate registrations are additive.
func (e *Engine) AddBusinessRule(entityType, trigger string, rule ruleapi.Rule) error {
	if e.sealed.Load() {
		return ErrEngineSealed
	}
	if entityType == "" || trigger == "" {
		return fmt.Errorf("business rule requires entity type and trigger")
	}
	if rule == nil {
		return fmt.Errorf("business rule for %s/%s is nil", entityType, trigger)
	}
	byTrigger, ok := e.rules[entityType]
	if !ok {
		byTrigger = make(map[string][]ruleapi.Rule)
		e.rules[entityType] = byTrigger
	}
	byTrigger[trigger] = append(byTrigger[trigger], rule)
	return nil
}

// AddValidator appends validator to the chain for entityType.
func (e *Engine) AddValidator(entityType string, validator ruleapi.Validator) error {
	if e.sealed.Load() {
		return ErrEngineSealed
	}
	if entityType == "" {
		return fmt.Errorf("validator requires entity type")
	}
	if validator == nil {
		return fmt.Errorf("validator for %s is nil", entityType)
	}
	e.validators[entityType] = append(e.validators[entityType], validator)
	return nil
}

// Seal ends the load phase.
func (e *Engine) Seal() { e.sealed.Store(true) }

// Sealed reports whether the load phase has ended.
func (e *Engine) Sealed() bool { return e.sealed.Load() }

// Catalog returns the schema catalog.
func (e *Engine) Catalog() *domain.Catalog { return e.catalog }

// EntityTypes returns every entity type with a rule or validator, sorted.
func (e *Engine) EntityTypes() []string {
	seen := make(map[string]struct{}, len(e.rules)+len(e.validators))
	for t := range e.rules {
		seen[t] = struct{}{}
	}
	for t := range e.validators {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Triggers returns the triggers with rules registered for entityType, sorted.
func (e *Engine) Triggers(entityType string) []string {
	out := make([]string, 0, len(e.rules[entityType]))
	for trigger := range e.rules[entityType] {
		out = append(out, trigger)
	}
	sort.Strings(out)
	return out
}

// Rules returns a copy of the chain that Dispatch runs for (entityType, trigger).
func (e *Engine) Rules(entityType, trigger string) []ruleapi.Rule {
	var out []ruleapi.Rule
	for _, t := range e.lookupTypes(entityType) {
		out = append(out, e.rules[t][trigger]...)
	}
	return out
}

// Validators returns a copy of the chain that Validate runs for entityType.
func (e *Engine) Validators(entityType string) []ruleapi.Validator {
	var out []ruleapi.Validator
	for _, t := range e.lookupTypes(entityType) {
		out = append(out, e.validators[t]...)
	}
	return out
}

func (e *Engine) lookupTypes(entityType string) []string {
	if !e.inherit {
		return []string{entityType}
	}
	return append([]string{entityType}, e.catalog.Ancestors(entityType)...)
}
