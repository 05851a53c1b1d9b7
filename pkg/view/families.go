package view

import (
	"time"

	"carerules/pkg/domain"
)

// Well-known participation roles.
const (
	RoleRecordTarget = "RecordTarget"
	RoleLocation     = "Location"
	RoleAuthor       = "Author"
	RoleProduct      = "Product"
	RoleConsumable   = "Consumable"
	RolePerformer    = "Performer"
)

// Well-known relationship kinds.
const (
	RelationshipOwnedEntity  = "OwnedEntity"
	RelationshipMother       = "Mother"
	RelationshipDedicated    = "DedicatedServiceDeliveryLocation"
	RelationshipManufactured = "ManufacturedProduct"
)

// Act is a typed accessor over an act-family view.
type Act struct{ *View }

// Entity is a typed accessor over an entity-family view.
type Entity struct{ *View }

// Observation is a typed accessor over observation views.
type Observation struct{ Act }

// Person is a typed accessor over person and patient views.
type Person struct{ Entity }

// Material is a typed accessor over material views.
type Material struct{ Entity }

// AsAct returns the act accessor when the view belongs to the act family.
func (v *View) AsAct() (Act, bool) {
	if v == nil || v.family != domain.FamilyAct {
		return Act{}, false
	}
	return Act{v}, true
}

// AsEntity returns the entity accessor when the view belongs to the entity family.
func (v *View) AsEntity() (Entity, bool) {
	if v == nil || v.family != domain.FamilyEntity {
		return Entity{}, false
	}
	return Entity{v}, true
}

// AsObservation returns the observation accessor for Observation subtypes.
func (v *View) AsObservation() (Observation, bool) {
	act, ok := v.AsAct()
	if !ok || !v.IsA(domain.TypeObservation) {
		return Observation{}, false
	}
	return Observation{act}, true
}

// AsPerson returns the person accessor for Person subtypes.
func (v *View) AsPerson() (Person, bool) {
	ent, ok := v.AsEntity()
	if !ok || !v.IsA(domain.TypePerson) {
		return Person{}, false
	}
	return Person{ent}, true
}

// AsMaterial returns the material accessor for Material subtypes.
func (v *View) AsMaterial() (Material, bool) {
	ent, ok := v.AsEntity()
	if !ok || !v.IsA(domain.TypeMaterial) {
		return Material{}, false
	}
	return Material{ent}, true
}

func (a Act) TypeConcept() string   { return a.String("typeConcept") }
func (a Act) MoodConcept() string   { return a.String("moodConcept") }
func (a Act) StatusConcept() string { return a.String("statusConcept") }

// ActTime returns the time the act occurred.
func (a Act) ActTime() (time.Time, bool) { return a.Time("actTime") }

// RecordTarget returns the materialized patient the act is about.
func (a Act) RecordTarget() (Person, bool) {
	player, ok := a.Player(RoleRecordTarget)
	if !ok {
		return Person{}, false
	}
	return player.AsPerson()
}

// Location returns the materialized place where the act occurred.
func (a Act) Location() (Entity, bool) {
	player, ok := a.Player(RoleLocation)
	if !ok {
		return Entity{}, false
	}
	return player.AsEntity()
}

// Value returns the numeric observation value.
func (o Observation) Value() (float64, bool) { return o.Float("value") }

func (o Observation) UnitOfMeasure() string         { return o.String("unitOfMeasure") }
func (o Observation) InterpretationConcept() string { return o.String("interpretationConcept") }

// SetInterpretationConcept records the interpretation code.
func (o Observation) SetInterpretationConcept(code string) { o.Set("interpretationConcept", code) }

func (e Entity) ClassConcept() string { return e.String("classConcept") }
func (e Entity) TypeConcept() string  { return e.String("typeConcept") }
func (e Entity) Name() string         { return e.String("name") }

// OwnedEntities returns the OwnedEntity relationship links.
func (e Entity) OwnedEntities() []*Link { return e.Relationship(RelationshipOwnedEntity) }

// DateOfBirth returns the person's date of birth.
func (p Person) DateOfBirth() (time.Time, bool) { return p.Time("dateOfBirth") }

func (p Person) GenderConcept() string { return p.String("genderConcept") }

// Quantity returns the material quantity.
func (m Material) Quantity() (float64, bool) { return m.Float("quantity") }
