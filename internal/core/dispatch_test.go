package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
	"carerules/pkg/view"
)

func TestDispatchRunsChainInRegistrationOrder(t *testing.T) {
	e := NewEngine()
	for _, name := range []string{"A", "B", "C"} {
		mustAddRule(t, e, domain.TypeQuantityObservation, ruleapi.AfterInsert, tracingRule(name))
	}
	out, err := e.Dispatch(context.Background(), domain.TypeQuantityObservation, ruleapi.AfterInsert, newObservation(), ruleapi.Capabilities{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	trail, _ := out.Get("trail")
	if got := strings.Join(trail.([]string), ""); got != "ABC" {
		t.Fatalf("expected ABC, got %s", got)
	}
}

func TestDispatchThreadsReturnedValues(t *testing.T) {
	e := NewEngine()
	replacement := newObservation()
	replacement.Set("value", 99.0)
	var seen *view.View
	mustAddRule(t, e, domain.TypeQuantityObservation, ruleapi.AfterInsert, ruleapi.NewRule("swap", func(context.Context, *view.View, ruleapi.Capabilities) (ruleapi.Result, error) {
		return ruleapi.Result{Value: replacement}, nil
	}))
	mustAddRule(t, e, domain.TypeQuantityObservation, ruleapi.AfterInsert, ruleapi.NewRule("observe", func(_ context.Context, obj *view.View, _ ruleapi.Capabilities) (ruleapi.Result, error) {
		seen = obj
		return ruleapi.Passthrough(obj), nil
	}))
	out, err := e.Dispatch(context.Background(), domain.TypeQuantityObservation, ruleapi.AfterInsert, newObservation(), ruleapi.Capabilities{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if seen != replacement || out != replacement {
		t.Fatalf("second rule should receive the first rule's output")
	}
}

func TestDispatchPassthroughPreservesIdentity(t *testing.T) {
	e := NewEngine()
	mustAddRule(t, e, domain.TypeQuantityObservation, ruleapi.AfterInsert, passthroughRule("p1"))
	mustAddRule(t, e, domain.TypeQuantityObservation, ruleapi.AfterInsert, passthroughRule("p2"))
	in := newObservation()
	out, err := e.Dispatch(context.Background(), domain.TypeQuantityObservation, ruleapi.AfterInsert, in, ruleapi.Capabilities{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out != in {
		t.Fatalf("passthrough chain must return the identical object")
	}
}

func TestDispatchWithoutRulesReturnsInput(t *testing.T) {
	e := NewEngine()
	in := newObservation()
	out, err := e.Dispatch(context.Background(), domain.TypeQuantityObservation, "SomethingCustom", in, ruleapi.Capabilities{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out != in {
		t.Fatalf("expected identical object")
	}
}

func TestDispatchStopsAtFirstFailure(t *testing.T) {
	e := NewEngine()
	ran := false
	mustAddRule(t, e, domain.TypeAct, ruleapi.BeforeInsert, tracingRule("A"))
	mustAddRule(t, e, domain.TypeAct, ruleapi.BeforeInsert, ruleapi.NewRule("lookup", func(ctx context.Context, obj *view.View, caps ruleapi.Capabilities) (ruleapi.Result, error) {
		if _, err := caps.Repository.Get(ctx, "missing"); err != nil {
			return ruleapi.Result{}, err
		}
		return ruleapi.Passthrough(obj), nil
	}))
	mustAddRule(t, e, domain.TypeAct, ruleapi.BeforeInsert, ruleapi.NewRule("C", func(_ context.Context, obj *view.View, _ ruleapi.Capabilities) (ruleapi.Result, error) {
		ran = true
		return ruleapi.Passthrough(obj), nil
	}))
	in := view.New(domain.TypeAct, domain.FamilyAct)
	_, err := e.Dispatch(context.Background(), domain.TypeAct, ruleapi.BeforeInsert, in, ruleapi.Capabilities{Repository: emptyRepo{}})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if ran {
		t.Fatalf("rules after the failing rule must not run")
	}
	var he domain.HandlerError
	if !errors.As(err, &he) || he.Handler != "lookup" || he.Trigger != ruleapi.BeforeInsert || he.Type != domain.TypeAct {
		t.Fatalf("unexpected handler error %#v", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("collaborator error should stay reachable: %v", err)
	}
	if _, ok := in.Get("trail"); !ok {
		t.Fatalf("side effects of earlier rules are not rolled back")
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	e := NewEngine()
	mustAddRule(t, e, domain.TypeAct, ruleapi.AfterInsert, ruleapi.NewRule("boom", func(context.Context, *view.View, ruleapi.Capabilities) (ruleapi.Result, error) {
		panic("index out of range")
	}))
	_, err := e.Dispatch(context.Background(), domain.TypeAct, ruleapi.AfterInsert, view.New(domain.TypeAct, domain.FamilyAct), ruleapi.Capabilities{})
	if !errors.Is(err, domain.ErrHandler) || !strings.Contains(err.Error(), "index out of range") {
		t.Fatalf("expected recovered handler error, got %v", err)
	}
}

func TestDispatchRejectsNilResult(t *testing.T) {
	e := NewEngine()
	mustAddRule(t, e, domain.TypeAct, ruleapi.AfterInsert, ruleapi.NewRule("nil", func(context.Context, *view.View, ruleapi.Capabilities) (ruleapi.Result, error) {
		return ruleapi.Result{}, nil
	}))
	_, err := e.Dispatch(context.Background(), domain.TypeAct, ruleapi.AfterInsert, view.New(domain.TypeAct, domain.FamilyAct), ruleapi.Capabilities{})
	if !errors.Is(err, ErrNilResult) {
		t.Fatalf("expected ErrNilResult, got %v", err)
	}
}

type emptyRepo struct{}

func (emptyRepo) Get(_ context.Context, id string) (*domain.Object, error) {
	return nil, domain.NotFoundError{ID: id}
}

func (emptyRepo) Save(context.Context, *domain.Object) error { return nil }

func TestDispatchNestedFailureKeepsOuterRule(t *testing.T) {
	e := NewEngine()
	mustAddRule(t, e, domain.TypeAct, "Recompute", ruleapi.NewRule("inner", func(context.Context, *view.View, ruleapi.Capabilities) (ruleapi.Result, error) {
		return ruleapi.Result{}, domain.NotFoundError{ID: "clinic-9"}
	}))
	mustAddRule(t, e, domain.TypeAct, ruleapi.AfterInsert, ruleapi.NewRule("outer", func(ctx context.Context, obj *view.View, caps ruleapi.Capabilities) (ruleapi.Result, error) {
		out, err := e.Dispatch(ctx, domain.TypeAct, "Recompute", obj, caps)
		if err != nil {
			return ruleapi.Result{}, err
		}
		return ruleapi.Passthrough(out), nil
	}))

	_, err := e.Dispatch(context.Background(), domain.TypeAct, ruleapi.AfterInsert, view.New(domain.TypeAct, domain.FamilyAct), ruleapi.Capabilities{})
	var outer domain.HandlerError
	if !errors.As(err, &outer) || outer.Handler != "outer" || outer.Trigger != ruleapi.AfterInsert {
		t.Fatalf("expected outer handler error, got %#v", err)
	}
	var inner domain.HandlerError
	if !errors.As(outer.Err, &inner) || inner.Handler != "inner" || inner.Trigger != "Recompute" {
		t.Fatalf("inner failure should stay reachable, got %#v", outer.Err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("collaborator error should stay reachable: %v", err)
	}
}
