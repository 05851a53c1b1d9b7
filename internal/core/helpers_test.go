package core

import (
	"context"

	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
	"carerules/pkg/view"
)

func newObservation() *view.View {
	v := view.New(domain.TypeQuantityObservation, domain.FamilyAct, domain.TypeObservation, domain.TypeAct)
	v.SetID("obs-1")
	v.Set("value", 12.5)
	return v
}

// tracingRule appends its name to the "trail" field and passes the input on.
func tracingRule(name string) ruleapi.Rule {
	return ruleapi.NewRule(name, func(_ context.Context, obj *view.View, _ ruleapi.Capabilities) (ruleapi.Result, error) {
		trail, _ := obj.Get("trail")
		list, _ := trail.([]string)
		obj.Set("trail", append(append([]string(nil), list...), name))
		return ruleapi.Passthrough(obj), nil
	})
}

func passthroughRule(name string) ruleapi.Rule {
	return ruleapi.NewRule(name, func(_ context.Context, obj *view.View, _ ruleapi.Capabilities) (ruleapi.Result, error) {
		return ruleapi.Passthrough(obj), nil
	})
}

func issuesValidator(name string, texts ...string) ruleapi.Validator {
	return ruleapi.NewValidator(name, func(context.Context, *view.View, ruleapi.Capabilities) (domain.Issues, error) {
		out := make(domain.Issues, 0, len(texts))
		for _, text := range texts {
			out = append(out, ruleapi.Issue(text, domain.PriorityWarning))
		}
		return out, nil
	})
}

type stubPlugin struct {
	name     string
	version  string
	register func(ruleapi.Registry) error
}

func (p stubPlugin) Name() string    { return p.name }
func (p stubPlugin) Version() string { return p.version }
func (p stubPlugin) Register(r ruleapi.Registry) error {
	if p.register == nil {
		return nil
	}
	return p.register(r)
}
