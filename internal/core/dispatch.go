package core

import (
	"context"
	"errors"
	"fmt"

	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
	"carerules/pkg/view"
)

// ErrNilResult is wrapped in a HandlerError when a rule returns no value.
var ErrNilResult = errors.New("rule returned nil value")

// Dispatch runs the rule chain for (entityType, trigger) as a pipeline: each
// rule receives the value returned by the previous one. With no rules
// registered the input is returned unchanged. The first handler failure
// stops the chain and is returned as a domain.HandlerError; side effects of
// earlier handlers are not rolled back.
func (e *Engine) Dispatch(ctx context.Context, entityType, trigger string, obj *view.View, caps ruleapi.Capabilities) (*view.View, error) {
	e.Seal()
	current := obj
	for _, rule := range e.Rules(entityType, trigger) {
		res, err := applyRule(ctx, rule, current, caps)
		if err != nil {
			return nil, wrapHandlerError(rule.Name(), entityType, trigger, err)
		}
		if res.Value == nil {
			return nil, wrapHandlerError(rule.Name(), entityType, trigger, ErrNilResult)
		}
		current = res.Value
	}
	return current, nil
}

func applyRule(ctx context.Context, rule ruleapi.Rule, obj *view.View, caps ruleapi.Capabilities) (res ruleapi.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Apply(ctx, obj, caps)
}

// wrapHandlerError always wraps, so a rule that dispatched a nested chain is
// reported as the outer handler with the inner failure as its cause.
func wrapHandlerError(name, entityType, trigger string, err error) error {
	return domain.HandlerError{Handler: name, Type: entityType, Trigger: trigger, Err: err}
}
