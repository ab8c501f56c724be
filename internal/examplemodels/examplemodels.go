// Package examplemodels is a concrete model.Model set used by
// cmd/tablemanager as its managed-table set: Programmer
// (a parent), Migraine and Coffee (its children), mirroring the worked
// examples used to describe the fan-out write algorithm.
package examplemodels

import "github.com/ceyewan/tablesync/internal/model"

// Programmer is the parent model in every worked example.
type Programmer struct{}

func (Programmer) DocumentName() string { return "Programmer" }
func (Programmer) TableName() string    { return "programmer" }
func (Programmer) Attributes() []model.Attribute {
	return []model.Attribute{
		{Name: "name", SourceType: "string"},
		{Name: "handle", SourceType: "string"},
		{Name: "years_experience", SourceType: "integer"},
	}
}

// Migraine is a child of Programmer, routed by programmer_id.
type Migraine struct{}

func (Migraine) DocumentName() string { return "Migraine" }
func (Migraine) TableName() string    { return "migraine" }
func (Migraine) Attributes() []model.Attribute {
	return []model.Attribute{
		{Name: "programmer_id", SourceType: "string", Tags: map[string]string{model.TagParent: "Programmer"}},
		{Name: "severity", SourceType: "integer"},
		{Name: "onset", SourceType: "timestamp"},
	}
}

// Coffee is a child of Programmer, routed by programmer_id, named
// "Coffee" after namespace-stripping a fully-qualified "Beverage::Coffee".
type Coffee struct{}

func (Coffee) DocumentName() string { return "Coffee" }
func (Coffee) TableName() string    { return "coffee" }
func (Coffee) Attributes() []model.Attribute {
	return []model.Attribute{
		{Name: "programmer_id", SourceType: "string", Tags: map[string]string{model.TagParent: "Programmer"}},
		{Name: "roast", SourceType: "string"},
		{Name: "ounces", SourceType: "float"},
	}
}

// All returns the full managed-table set.
func All() []model.Model {
	return []model.Model{Programmer{}, Migraine{}, Coffee{}}
}
