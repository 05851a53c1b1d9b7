package domain

import (
	"fmt"
	"slices"
	"sort"
)

// Family groups entity types that share a simplified shape.
type Family string

// Entity families recognised by the transformer.
const (
	// FamilyAct covers events (observations, administrations, procedures).
	FamilyAct Family = "act"
	// FamilyEntity covers things that participate in acts (people, places, materials).
	FamilyEntity Family = "entity"
)

// Known type discriminators.
const (
	TypeAct                     = "Act"
	TypeObservation             = "Observation"
	TypeQuantityObservation     = "QuantityObservation"
	TypeCodedObservation        = "CodedObservation"
	TypeTextObservation         = "TextObservation"
	TypeSubstanceAdministration = "SubstanceAdministration"
	TypeProcedure               = "Procedure"
	TypeEntity                  = "Entity"
	TypePerson                  = "Person"
	TypePatient                 = "Patient"
	TypePlace                   = "Place"
	TypeOrganization            = "Organization"
	TypeMaterial                = "Material"
	TypeManufacturedMaterial    = "ManufacturedMaterial"
)

// Schema describes the domain fields for a type discriminator. Fields are
// inherited from the parent schema.
type Schema struct {
	Type   string
	Family Family
	Parent string
	Fields []string
}

// Catalog indexes schemas by type discriminator.
type Catalog struct {
	schemas map[string]Schema
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{schemas: make(map[string]Schema)}
}

// Register adds a schema. The parent, when named, must already be registered
// and belong to the same family.
func (c *Catalog) Register(schema Schema) error {
	if schema.Type == "" {
		return fmt.Errorf("schema type required")
	}
	if _, exists := c.schemas[schema.Type]; exists {
		return fmt.Errorf("schema %s already registered", schema.Type)
	}
	if schema.Parent != "" {
		parent, ok := c.schemas[schema.Parent]
		if !ok {
			return fmt.Errorf("schema %s: unknown parent %s", schema.Type, schema.Parent)
		}
		if schema.Family == "" {
			schema.Family = parent.Family
		}
		if parent.Family != schema.Family {
			return fmt.Errorf("schema %s: family %s differs from parent %s", schema.Type, schema.Family, parent.Family)
		}
	}
	if schema.Family == "" {
		return fmt.Errorf("schema %s: family required", schema.Type)
	}
	schema.Fields = slices.Clone(schema.Fields)
	c.schemas[schema.Type] = schema
	return nil
}

// Lookup returns the schema registered for typ.
func (c *Catalog) Lookup(typ string) (Schema, bool) {
	s, ok := c.schemas[typ]
	return s, ok
}

// Types returns the registered type discriminators in sorted order.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.schemas))
	for typ := range c.schemas {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Ancestors returns the parent chain of typ, nearest first, excluding typ.
func (c *Catalog) Ancestors(typ string) []string {
	var out []string
	s, ok := c.schemas[typ]
	for ok && s.Parent != "" {
		out = append(out, s.Parent)
		s, ok = c.schemas[s.Parent]
	}
	return out
}

// IsA reports whether typ equals ancestor or derives from it.
func (c *Catalog) IsA(typ, ancestor string) bool {
	if _, ok := c.schemas[typ]; !ok {
		return false
	}
	if typ == ancestor {
		return true
	}
	return slices.Contains(c.Ancestors(typ), ancestor)
}

// Fields returns the full field set for typ including inherited fields.
func (c *Catalog) Fields(typ string) map[string]struct{} {
	out := make(map[string]struct{})
	chain := append([]string{typ}, c.Ancestors(typ)...)
	for _, t := range chain {
		for _, f := range c.schemas[t].Fields {
			out[f] = struct{}{}
		}
	}
	return out
}

// HasField reports whether name is a domain field of typ.
func (c *Catalog) HasField(typ, name string) bool {
	_, ok := c.Fields(typ)[name]
	return ok
}

// DefaultCatalog returns the built-in act and entity schemas.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, s := range defaultSchemas {
		if err := c.Register(s); err != nil {
			panic(fmt.Errorf("default catalog: %w", err))
		}
	}
	return c
}

var defaultSchemas = []Schema{
	{Type: TypeAct, Family: FamilyAct, Fields: []string{
		"classConcept", "typeConcept", "moodConcept", "statusConcept", "reasonConcept",
		"actTime", "startTime", "stopTime", "isNegated",
	}},
	{Type: TypeObservation, Parent: TypeAct, Fields: []string{"interpretationConcept"}},
	{Type: TypeQuantityObservation, Parent: TypeObservation, Fields: []string{"value", "unitOfMeasure"}},
	{Type: TypeCodedObservation, Parent: TypeObservation, Fields: []string{"value"}},
	{Type: TypeTextObservation, Parent: TypeObservation, Fields: []string{"value"}},
	{Type: TypeSubstanceAdministration, Parent: TypeAct, Fields: []string{
		"doseQuantity", "doseUnit", "route", "site", "sequenceId",
	}},
	{Type: TypeProcedure, Parent: TypeAct, Fields: []string{"method", "approachSite", "targetSite"}},
	{Type: TypeEntity, Family: FamilyEntity, Fields: []string{
		"classConcept", "typeConcept", "statusConcept", "determinerConcept", "name",
	}},
	{Type: TypePerson, Parent: TypeEntity, Fields: []string{"dateOfBirth", "genderConcept"}},
	{Type: TypePatient, Parent: TypePerson, Fields: []string{"deceasedDate", "multipleBirthOrder"}},
	{Type: TypePlace, Parent: TypeEntity, Fields: []string{"isMobile", "lat", "lng", "address"}},
	{Type: TypeOrganization, Parent: TypeEntity, Fields: []string{"industryConcept"}},
	{Type: TypeMaterial, Parent: TypeEntity, Fields: []string{
		"quantity", "formConcept", "quantityConcept", "expiryDate", "isAdministrative",
	}},
	{Type: TypeManufacturedMaterial, Parent: TypeMaterial, Fields: []string{"lotNumber"}},
}
