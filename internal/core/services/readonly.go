package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
)

// Ensure ReadOnlyView implements the interface.
var _ driving.DocumentHandle = (*ReadOnlyView)(nil)

// ReadOnlyView is a fetched document with no connection, buffer or presence.
type ReadOnlyView struct {
	doc domain.Document
}

// NewReadOnlyView wraps a fetched document.
func NewReadOnlyView(doc domain.Document) *ReadOnlyView {
	return &ReadOnlyView{doc: doc.Clone()}
}

// DocumentID returns the document's ID.
func (v *ReadOnlyView) DocumentID() string {
	return v.doc.ID
}

// Content returns the document as fetched.
func (v *ReadOnlyView) Content() domain.Document {
	return v.doc.Clone()
}

// CanEdit is always false.
func (v *ReadOnlyView) CanEdit() bool {
	return false
}

// Close does nothing; there is nothing to release.
func (v *ReadOnlyView) Close() error {
	return nil
}

// RenderedField is one field prepared for display.
type RenderedField struct {
	Name  string
	Label string
	Type  domain.FieldType
	Value string
}

// RenderFields lays out a document's fields in schema order, formatted for
// display. Fields not in the schema follow in name order.
func RenderFields(doc domain.Document) []RenderedField {
	schema, _ := domain.SchemaFor(doc.Kind)
	seen := make(map[string]bool, len(schema))
	out := make([]RenderedField, 0, len(doc.Fields))

	for _, spec := range schema {
		seen[spec.Name] = true
		value, _ := doc.Field(spec.Name)
		out = append(out, RenderedField{
			Name:  spec.Name,
			Label: spec.Label,
			Type:  spec.Type,
			Value: FormatValue(value),
		})
	}

	var extra []string
	for _, name := range doc.FieldNames() {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		value, _ := doc.Field(name)
		out = append(out, RenderedField{Name: name, Label: name, Value: FormatValue(value)})
	}
	return out
}

// FormatValue renders a field value as plain text.
func FormatValue(value any) string {
	switch v := domain.NormalizeValue(value).(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}
