package models

import "github.com/google/uuid"

// Manufacturer is a canonical equipment vendor (e.g. "HP", "Konica Minolta").
type Manufacturer struct {
	ID      uuid.UUID
	Name    string
	Aliases []string
}

// Series groups Product rows under a manufacturer's model-family naming
// scheme (detected from model numbers via regex patterns in classification).
type Series struct {
	ID             uuid.UUID
	ManufacturerID uuid.UUID
	Name           string
	Patterns       []string
}

// Product is a catalog entity: one sellable model. ProductType is drawn from
// a closed set of roughly 77 device-category values (printer, MFP, toner
// cartridge, fuser unit, ...); validated against the registry, not an
// exhaustive Go enum.
type Product struct {
	ID             uuid.UUID
	ManufacturerID uuid.UUID
	SeriesID       *uuid.UUID
	ModelNumber    string
	Name           string
	ProductType    string
	Aliases        []string
}

// ProductAccessory is the M:N join between a product and its compatible
// accessories, named in the schema list but not elaborated in the entity
// list; IsStandard distinguishes bundled accessories from optional add-ons.
type ProductAccessory struct {
	ProductID           uuid.UUID
	AccessoryProductID  uuid.UUID
	IsStandard          bool
	CompatibilityNotes  string
}
