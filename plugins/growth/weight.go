package growth

import (
	"context"
	"fmt"
	"time"

	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
	"carerules/pkg/view"
)

// WeightForAgeRule sets the interpretation concept of a weight observation
// from the patient's sex and age at the time of the observation. Observations
// it cannot interpret pass through unchanged.
func WeightForAgeRule() ruleapi.Rule {
	return ruleapi.NewRule("growth.weight_for_age", applyWeightForAge)
}

func applyWeightForAge(ctx context.Context, obj *view.View, caps ruleapi.Capabilities) (ruleapi.Result, error) {
	obs, ok := weightObservation(obj)
	if !ok {
		return ruleapi.Passthrough(obj), nil
	}
	value, ok := obs.Value()
	if !ok {
		return ruleapi.Passthrough(obj), nil
	}
	patient, ok := obs.RecordTarget()
	if !ok {
		return ruleapi.Passthrough(obj), nil
	}
	asset := tableAsset(patient.GenderConcept())
	if asset == "" {
		return ruleapi.Passthrough(obj), nil
	}
	dob, ok := patient.DateOfBirth()
	if !ok {
		return ruleapi.Passthrough(obj), nil
	}
	at, ok := obs.ActTime()
	if !ok {
		return ruleapi.Passthrough(obj), nil
	}
	age := AgeInMonths(dob, at)
	if age < 0 {
		return ruleapi.Passthrough(obj), nil
	}
	if caps.Assets == nil {
		return ruleapi.Result{}, fmt.Errorf("asset loader unavailable")
	}
	raw, err := caps.Assets.LoadDataAsset(ctx, asset)
	if err != nil {
		return ruleapi.Result{}, err
	}
	table, err := ParseTable(raw)
	if err != nil {
		return ruleapi.Result{}, fmt.Errorf("%s: %w", asset, err)
	}
	band, ok := table[age]
	if !ok {
		return ruleapi.Passthrough(obj), nil
	}

	out := obj.Clone()
	out.Set("interpretationConcept", band.Interpret(value))
	return ruleapi.Result{Value: out}, nil
}

// WeightValidator flags zero, implausibly large and non-kilogram weights.
// The checks are independent.
func WeightValidator() ruleapi.Validator {
	return ruleapi.NewValidator("growth.weight", func(_ context.Context, obj *view.View, _ ruleapi.Capabilities) (domain.Issues, error) {
		issues := domain.Issues{}
		obs, ok := weightObservation(obj)
		if !ok {
			return issues, nil
		}
		if value, ok := obs.Value(); ok {
			if value == 0 {
				issues = append(issues, ruleapi.Issue(IssueOffScaleZero, domain.PriorityError))
			}
			if value >= SuperScaleKg {
				issues = append(issues, ruleapi.Issue(IssueSuperScale, domain.PriorityWarning))
			}
		}
		if obs.UnitOfMeasure() != ConceptKilogram {
			issues = append(issues, ruleapi.Issue(IssueKilogramOnly, domain.PriorityError))
		}
		return issues, nil
	})
}

func weightObservation(obj *view.View) (view.Observation, bool) {
	if !obj.IsA(domain.TypeQuantityObservation) {
		return view.Observation{}, false
	}
	obs, ok := obj.AsObservation()
	if !ok || obs.TypeConcept() != ConceptWeight {
		return view.Observation{}, false
	}
	return obs, true
}

func tableAsset(gender string) string {
	switch gender {
	case ConceptGenderFemale:
		return AssetFemale
	case ConceptGenderMale:
		return AssetMale
	default:
		return ""
	}
}

// AgeInMonths returns the number of whole months between dob and at.
func AgeInMonths(dob, at time.Time) int {
	dob, at = dob.UTC(), at.UTC()
	months := (at.Year()-dob.Year())*12 + int(at.Month()) - int(dob.Month())
	if at.Day() < dob.Day() {
		months--
	}
	return months
}
