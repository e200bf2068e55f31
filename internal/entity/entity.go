// Package entity describes each reference-data kind as a configuration
// value: its DePara and homologation tables, natural key, editable fields
// and spreadsheet header spellings. Every other package is generic over a
// Descriptor.
package entity

import (
	"github.com/rotisserie/eris"
)

// Field is one column of an entity's DePara table, with the spreadsheet
// header spellings that resolve to it on import. The first header is the
// canonical one used on export.
type Field struct {
	Name     string   `yaml:"name"`
	Headers  []string `yaml:"headers"`
	Required bool     `yaml:"required"`
}

// Descriptor parametrizes the generic store, reconciler and spreadsheet
// adapters for one reference-data kind.
type Descriptor struct {
	Slug string `yaml:"slug"` // URL path segment, e.g. "municipio"
	Name string `yaml:"name"` // display name used in export filenames

	MappingTable string `yaml:"mapping_table"`
	GoldenTable  string `yaml:"golden_table"`

	GoldenCodeColumn   string `yaml:"golden_code_column"`
	GoldenDescColumn   string `yaml:"golden_desc_column"`
	GoldenActiveColumn string `yaml:"golden_active_column"`

	// NaturalKey lists the field names that identify a row on import upsert.
	NaturalKey []string `yaml:"natural_key"`

	Fields []Field `yaml:"fields"`

	// Editable is the closed allow-list for single-field and batch updates.
	Editable []string `yaml:"editable"`

	// TargetCodeField is classified against the golden code set.
	// TargetDescField mirrors the golden description; empty when the entity
	// has none (manufacturer codes).
	TargetCodeField string `yaml:"target_code_field"`
	TargetDescField string `yaml:"target_desc_field"`

	// SyncOnEdit refreshes the description immediately after an inline edit
	// of the target code. Imports always sync, regardless of this flag.
	SyncOnEdit bool `yaml:"sync_on_edit"`
}

// FieldNames returns all field names in declaration order.
func (d *Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// FieldByName returns the field with the given internal name.
func (d *Descriptor) FieldByName(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IsEditable reports whether a field is on the entity's edit allow-list.
func (d *Descriptor) IsEditable(field string) bool {
	for _, f := range d.Editable {
		if f == field {
			return true
		}
	}
	return false
}

// ExportHeaders returns the canonical header row for exports.
func (d *Descriptor) ExportHeaders() []string {
	headers := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		headers[i] = f.Headers[0]
	}
	return headers
}

// HasDescription reports whether the entity mirrors a golden description.
func (d *Descriptor) HasDescription() bool {
	return d.TargetDescField != ""
}

// Validate checks internal consistency. Run on registry construction and
// on every overlay load.
func (d *Descriptor) Validate() error {
	if d.Slug == "" {
		return eris.New("entity: descriptor missing slug")
	}
	if d.MappingTable == "" || d.GoldenTable == "" {
		return eris.Errorf("entity: %s missing table names", d.Slug)
	}
	if d.GoldenCodeColumn == "" {
		return eris.Errorf("entity: %s missing golden code column", d.Slug)
	}
	if len(d.NaturalKey) == 0 {
		return eris.Errorf("entity: %s missing natural key", d.Slug)
	}
	if d.TargetCodeField == "" {
		return eris.Errorf("entity: %s missing target code field", d.Slug)
	}
	for _, f := range d.Fields {
		if f.Name == "" || len(f.Headers) == 0 {
			return eris.Errorf("entity: %s has a field without name or headers", d.Slug)
		}
	}
	for _, k := range d.NaturalKey {
		if _, ok := d.FieldByName(k); !ok {
			return eris.Errorf("entity: %s natural key %q is not a field", d.Slug, k)
		}
	}
	for _, e := range d.Editable {
		if _, ok := d.FieldByName(e); !ok {
			return eris.Errorf("entity: %s editable field %q is not a field", d.Slug, e)
		}
	}
	if _, ok := d.FieldByName(d.TargetCodeField); !ok {
		return eris.Errorf("entity: %s target code field %q is not a field", d.Slug, d.TargetCodeField)
	}
	if d.TargetDescField != "" {
		if _, ok := d.FieldByName(d.TargetDescField); !ok {
			return eris.Errorf("entity: %s target desc field %q is not a field", d.Slug, d.TargetDescField)
		}
	}
	if d.SyncOnEdit && d.TargetDescField == "" {
		return eris.Errorf("entity: %s has sync_on_edit without a description field", d.Slug)
	}
	return nil
}
