// Package stock is a sample rule pack that adjusts on-hand material
// quantities at a place when an act consumes them.
package stock

import (
	"context"
	"fmt"

	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
	"carerules/pkg/view"
)

// TagAdjusted marks acts whose stock adjustment has already been applied.
const TagAdjusted = "hasRunAdjustment"

// Plugin registers the stock adjustment rule.
type Plugin struct{}

// New constructs the stock rule pack.
func New() Plugin { return Plugin{} }

// Name returns the plugin identifier.
func (Plugin) Name() string { return "stock" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register binds the adjustment to generic acts and to substance
// administrations. An engine resolving inherited rules runs it twice for a
// substance administration; the adjustment tag makes the second run a no-op.
func (Plugin) Register(registry ruleapi.Registry) error {
	for _, typ := range []string{domain.TypeAct, domain.TypeSubstanceAdministration} {
		if err := registry.AddBusinessRule(typ, ruleapi.AfterInsert, AdjustmentRule()); err != nil {
			return err
		}
	}
	return nil
}

// AdjustmentRule decrements the location's owned quantity of the consumed
// material and saves the place through the repository.
func AdjustmentRule() ruleapi.Rule {
	return ruleapi.NewRule("stock.consumption_adjustment", applyAdjustment)
}

func applyAdjustment(ctx context.Context, obj *view.View, caps ruleapi.Capabilities) (ruleapi.Result, error) {
	act, ok := obj.AsAct()
	if !ok || adjusted(obj) {
		return ruleapi.Passthrough(obj), nil
	}
	consumable, ok := act.Participant(view.RoleConsumable)
	if !ok || consumable.Key == "" {
		return ruleapi.Passthrough(obj), nil
	}
	location, ok := act.Participant(view.RoleLocation)
	if !ok || location.Key == "" {
		return ruleapi.Passthrough(obj), nil
	}
	if caps.Repository == nil {
		return ruleapi.Result{}, fmt.Errorf("repository unavailable")
	}

	place, err := caps.Repository.Get(ctx, location.Key)
	if err != nil {
		return ruleapi.Result{}, err
	}
	if !decrement(place, consumable.Key, consumedAmount(act)) {
		return ruleapi.Passthrough(obj), nil
	}
	if err := caps.Repository.Save(ctx, place); err != nil {
		return ruleapi.Result{}, err
	}

	out := obj.Clone()
	out.SetTag(TagAdjusted, true)
	return ruleapi.Result{Value: out}, nil
}

func adjusted(obj *view.View) bool {
	v, ok := obj.Tag(TagAdjusted)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// consumedAmount is the administered dose when present, otherwise one unit.
func consumedAmount(act view.Act) float64 {
	if dose, ok := act.Float("doseQuantity"); ok && dose > 0 {
		return dose
	}
	return 1
}

func decrement(place *domain.Object, material string, amount float64) bool {
	for i := range place.Relationships {
		rel := &place.Relationships[i]
		if rel.Kind != view.RelationshipOwnedEntity || rel.TargetKey != material {
			continue
		}
		var current float64
		if rel.Quantity != nil {
			current = *rel.Quantity
		}
		next := current - amount
		rel.Quantity = &next
		return true
	}
	return false
}
