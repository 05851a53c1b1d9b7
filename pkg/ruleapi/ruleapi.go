// Package ruleapi is the contract between rule packs and the engine. Rule
// packs register business rules against (entity type, trigger) pairs and
// validators against entity types; handlers receive a simplified view and
// the capabilities they may call back into.
package ruleapi

import (
	"context"

	"carerules/pkg/domain"
	"carerules/pkg/view"
)

// Version identifies the rule API revision.
const Version = "v1"

// Canonical lifecycle triggers. Any non-empty trigger name is accepted.
const (
	BeforeInsert   = "BeforeInsert"
	AfterInsert    = "AfterInsert"
	BeforeUpdate   = "BeforeUpdate"
	AfterUpdate    = "AfterUpdate"
	BeforeObsolete = "BeforeObsolete"
	AfterObsolete  = "AfterObsolete"
	AfterQuery     = "AfterQuery"
	AfterRetrieve  = "AfterRetrieve"
)

// Capabilities are the external collaborators a handler may call. Calls are
// synchronous and have real side effects; the engine provides no rollback.
type Capabilities struct {
	Repository domain.Repository
	Assets     domain.AssetLoader
}

// Result carries the value a rule hands to the next rule in the chain.
type Result struct {
	Value *view.View
}

// Passthrough returns the input unchanged. Rules use it for "not applicable".
func Passthrough(in *view.View) Result { return Result{Value: in} }

// Rule is a business rule bound to an (entity type, trigger) pair.
type Rule interface {
	Name() string
	Apply(ctx context.Context, obj *view.View, caps Capabilities) (Result, error)
}

// Validator inspects an object and returns the issues it detects. An empty
// result means nothing was found, which includes "not applicable".
type Validator interface {
	Name() string
	Validate(ctx context.Context, obj *view.View, caps Capabilities) (domain.Issues, error)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(ctx context.Context, obj *view.View, caps Capabilities) (Result, error)

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, obj *view.View, caps Capabilities) (domain.Issues, error)

type namedRule struct {
	name string
	fn   RuleFunc
}

func (r namedRule) Name() string { return r.name }

func (r namedRule) Apply(ctx context.Context, obj *view.View, caps Capabilities) (Result, error) {
	return r.fn(ctx, obj, caps)
}

type namedValidator struct {
	name string
	fn   ValidatorFunc
}

func (v namedValidator) Name() string { return v.name }

func (v namedValidator) Validate(ctx context.Context, obj *view.View, caps Capabilities) (domain.Issues, error) {
	return v.fn(ctx, obj, caps)
}

// NewRule wraps fn as a named Rule. A nil fn yields a nil Rule.
func NewRule(name string, fn RuleFunc) Rule {
	if fn == nil {
		return nil
	}
	return namedRule{name: name, fn: fn}
}

// NewValidator wraps fn as a named Validator. A nil fn yields a nil Validator.
func NewValidator(name string, fn ValidatorFunc) Validator {
	if fn == nil {
		return nil
	}
	return namedValidator{name: name, fn: fn}
}

// Issue builds a detected issue.
func Issue(text string, priority domain.Priority) domain.DetectedIssue {
	return domain.DetectedIssue{Text: text, Priority: priority}
}

// Registry receives registrations during the engine load phase. Duplicate
// registrations are additive.
type Registry interface {
	AddBusinessRule(entityType, trigger string, rule Rule) error
	AddValidator(entityType string, validator Validator) error
}

// Plugin is a rule pack.
type Plugin interface {
	Name() string
	Version() string
	Register(Registry) error
}
