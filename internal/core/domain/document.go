package domain

import (
	"reflect"
	"time"
)

// Document is the authoritative collaborative content of one form.
// Fields are keyed by name; Version increases exactly once per durable flush.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// FormID links to the form this document was provisioned for.
	FormID string

	// Kind selects the content schema the fields follow.
	Kind DocumentKind

	// Fields maps field name to its current value.
	Fields map[string]any

	// Version is the storage version counter. Never decreases locally.
	Version int64

	// CreatedAt is when the document was provisioned.
	CreatedAt time.Time

	// UpdatedAt is when the document was last flushed.
	UpdatedAt time.Time
}

// Clone returns a deep-enough copy for handing to other goroutines.
// Field values are normalised and therefore immutable scalars or string slices.
func (d *Document) Clone() Document {
	c := *d
	c.Fields = make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		if s, ok := v.([]string); ok {
			v = append([]string(nil), s...)
		}
		c.Fields[k] = v
	}
	return c
}

// Field returns the value of a field and whether it is set.
func (d *Document) Field(name string) (any, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// Title returns the document's title field, or its ID when the field is empty.
func (d *Document) Title() string {
	if s, ok := d.Fields[FieldTitle].(string); ok && s != "" {
		return s
	}
	return d.ID
}

// SetField applies a single field value without touching the version.
func (d *Document) SetField(name string, value any) {
	if d.Fields == nil {
		d.Fields = make(map[string]any)
	}
	d.Fields[name] = NormalizeValue(value)
}

// IsStale reports whether version is older than the local version.
func (d *Document) IsStale(version int64) bool {
	return version < d.Version
}

// AdoptVersion moves the version forward. Returns false when version is older
// than the local one, in which case nothing changes.
func (d *Document) AdoptVersion(version int64) bool {
	if d.IsStale(version) {
		return false
	}
	d.Version = version
	return true
}

// ApplyBatch replaces every named field and adopts version in one step.
// A batch older than the local version is discarded as a whole.
func (d *Document) ApplyBatch(fields map[string]any, version int64) bool {
	if d.IsStale(version) {
		return false
	}
	for name, value := range fields {
		d.SetField(name, value)
	}
	d.Version = version
	return true
}

// FieldNames returns the names of the fields currently set.
func (d *Document) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		names = append(names, k)
	}
	return names
}

// NormalizeValue converts decoded wire values into their canonical Go form:
// numbers become float64 and lists of strings become []string.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return v
			}
			out = append(out, s)
		}
		return out
	default:
		return v
	}
}

// ValuesEqual compares two field values after normalisation.
func ValuesEqual(a, b any) bool {
	a, b = NormalizeValue(a), NormalizeValue(b)
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if aok && bok && len(as) == 0 && len(bs) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// DocumentAccess is what the credential gate returns: the caller's tier
// plus the full document snapshot at fetch time.
type DocumentAccess struct {
	Tier     PermissionTier
	Document Document
}
