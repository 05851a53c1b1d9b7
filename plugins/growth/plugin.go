// Package growth is a sample rule pack that interprets weight observations
// against WHO-style weight-for-age reference bands.
package growth

import (
	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
)

// Concept codes used by the rule pack.
const (
	ConceptWeight       = "a261f8cd-69b0-49aa-91f4-e6d3e5c612ed"
	ConceptBelowRange   = "6188f821-261f-420e-9520-0de240a05661"
	ConceptNormal       = "41d42abf-17ad-4144-bf97-ec3fd907f57d"
	ConceptAboveRange   = "3c4d6579-7496-4b44-aac1-18a714ff7a05"
	ConceptKilogram     = "a0a8d4db-db72-4bc7-9b8c-c07cef7bc796"
	ConceptGenderFemale = "094941e9-a3db-48b5-862c-bc289bd7f86c"
	ConceptGenderMale   = "f4e3a6bb-612e-46b2-9f77-ff844d971198"
)

// Reference table asset names.
const (
	AssetFemale = "weight-for-age-female"
	AssetMale   = "weight-for-age-male"
)

// Issue texts reported by the weight validator.
const (
	IssueOffScaleZero = "offscale0"
	IssueSuperScale   = "superscale"
	IssueKilogramOnly = "kgonly"
)

// SuperScaleKg is the weight at which a measurement is considered implausible.
const SuperScaleKg = 50

// Plugin registers the growth rules.
type Plugin struct{}

// New constructs the growth rule pack.
func New() Plugin { return Plugin{} }

// Name returns the plugin identifier.
func (Plugin) Name() string { return "growth" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register binds the interpretation rule and weight validator to
// QuantityObservation.
func (Plugin) Register(registry ruleapi.Registry) error {
	if err := registry.AddBusinessRule(domain.TypeQuantityObservation, ruleapi.AfterInsert, WeightForAgeRule()); err != nil {
		return err
	}
	return registry.AddValidator(domain.TypeQuantityObservation, WeightValidator())
}
