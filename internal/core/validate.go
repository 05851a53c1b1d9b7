package core

import (
	"context"
	"fmt"

	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
	"carerules/pkg/view"
)

// Validate invokes every validator registered for entityType against the
// same object and concatenates their issues in registration order. Identical
// issues are not deduplicated. An empty, non-nil slice is the all-clear.
// Validators must treat obj as read-only.
func (e *Engine) Validate(ctx context.Context, entityType string, obj *view.View, caps ruleapi.Capabilities) (domain.Issues, error) {
	e.Seal()
	out := make(domain.Issues, 0)
	for _, validator := range e.Validators(entityType) {
		issues, err := runValidator(ctx, validator, obj, caps)
		if err != nil {
			return nil, wrapHandlerError(validator.Name(), entityType, "", err)
		}
		for _, issue := range issues {
			if issue.Validator == "" {
				issue.Validator = validator.Name()
			}
			out = append(out, issue)
		}
	}
	return out, nil
}

func runValidator(ctx context.Context, validator ruleapi.Validator, obj *view.View, caps ruleapi.Capabilities) (issues domain.Issues, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return validator.Validate(ctx, obj, caps)
}
