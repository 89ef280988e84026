package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// DocumentKind identifies one of the closed set of content schemas.
type DocumentKind string

// Available document kinds.
const (
	// KindArticle is a long-form knowledge-base article.
	KindArticle DocumentKind = "article"

	// KindFAQ is a single question with its answer.
	KindFAQ DocumentKind = "faq"

	// KindHowTo is a step-by-step procedure.
	KindHowTo DocumentKind = "how_to"
)

// IsValid returns true if the kind is recognised.
func (k DocumentKind) IsValid() bool {
	_, ok := schemas[k]
	return ok
}

// String returns the string representation.
func (k DocumentKind) String() string {
	return string(k)
}

// FieldType describes the value shape a field accepts.
type FieldType string

// Available field types.
const (
	FieldShortText      FieldType = "short_text"
	FieldLongText       FieldType = "long_text"
	FieldBoolean        FieldType = "boolean"
	FieldSingleChoice   FieldType = "single_choice"
	FieldMultipleChoice FieldType = "multiple_choice"
	FieldNumeric        FieldType = "numeric"
)

// Well-known field names shared by every schema.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
)

// shortTextLimit bounds short text values.
const shortTextLimit = 200

// FieldSpec describes one named, typed slot within a document kind.
type FieldSpec struct {
	// Name is the key used in Document.Fields and on the wire.
	Name string

	// Label is the human-readable field name.
	Label string

	// Type is the value shape.
	Type FieldType

	// Choices lists the allowed values for choice fields.
	Choices []string
}

// Schema is the ordered list of fields for a document kind.
type Schema []FieldSpec

// Field looks up a field spec by name.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

var visibility = []string{"internal", "customers", "public"}

var schemas = map[DocumentKind]Schema{
	KindArticle: {
		{Name: FieldTitle, Label: "Title", Type: FieldShortText},
		{Name: FieldDescription, Label: "Description", Type: FieldLongText},
		{Name: "body", Label: "Body", Type: FieldLongText},
		{Name: "audience", Label: "Audience", Type: FieldSingleChoice, Choices: visibility},
		{Name: "tags", Label: "Tags", Type: FieldMultipleChoice,
			Choices: []string{"billing", "accounts", "integrations", "security", "troubleshooting"}},
		{Name: "published", Label: "Published", Type: FieldBoolean},
	},
	KindFAQ: {
		{Name: FieldTitle, Label: "Question", Type: FieldShortText},
		{Name: FieldDescription, Label: "Answer", Type: FieldLongText},
		{Name: "audience", Label: "Audience", Type: FieldSingleChoice, Choices: visibility},
		{Name: "priority", Label: "Priority", Type: FieldNumeric},
		{Name: "published", Label: "Published", Type: FieldBoolean},
	},
	KindHowTo: {
		{Name: FieldTitle, Label: "Title", Type: FieldShortText},
		{Name: FieldDescription, Label: "Summary", Type: FieldLongText},
		{Name: "steps", Label: "Steps", Type: FieldLongText},
		{Name: "estimated_minutes", Label: "Estimated minutes", Type: FieldNumeric},
		{Name: "difficulty", Label: "Difficulty", Type: FieldSingleChoice,
			Choices: []string{"beginner", "intermediate", "advanced"}},
		{Name: "published", Label: "Published", Type: FieldBoolean},
	},
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// SchemaFor returns the schema of a document kind.
func SchemaFor(kind DocumentKind) (Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: document kind %q", ErrUnsupportedType, kind)
	}
	return s, nil
}

// DocumentKinds returns all known kinds in a stable order.
func DocumentKinds() []DocumentKind {
	return []DocumentKind{KindArticle, KindFAQ, KindHowTo}
}

// ZeroValue returns the empty value for a field type.
func (t FieldType) ZeroValue() any {
	switch t {
	case FieldBoolean:
		return false
	case FieldNumeric:
		return float64(0)
	case FieldMultipleChoice:
		return []string{}
	default:
		return ""
	}
}

// DefaultFields returns a field map with every schema field at its zero value.
func DefaultFields(kind DocumentKind) (map[string]any, error) {
	s, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(s))
	for _, f := range s {
		fields[f.Name] = f.Type.ZeroValue()
	}
	return fields, nil
}

// Validate checks a value against the field spec.
func (f FieldSpec) Validate(value any) error {
	value = NormalizeValue(value)
	switch f.Type {
	case FieldShortText:
		s, ok := value.(string)
		if !ok {
			return f.typeError(value)
		}
		if len(s) > shortTextLimit {
			return fmt.Errorf("%w: field %q exceeds %d characters", ErrInvalidInput, f.Name, shortTextLimit)
		}
	case FieldLongText:
		if _, ok := value.(string); !ok {
			return f.typeError(value)
		}
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return f.typeError(value)
		}
	case FieldNumeric:
		if _, ok := value.(float64); !ok {
			return f.typeError(value)
		}
	case FieldSingleChoice:
		s, ok := value.(string)
		if !ok {
			return f.typeError(value)
		}
		if s != "" && !slices.Contains(f.Choices, s) {
			return fmt.Errorf("%w: %q is not a choice of field %q", ErrInvalidInput, s, f.Name)
		}
	case FieldMultipleChoice:
		list, ok := value.([]string)
		if !ok {
			return f.typeError(value)
		}
		for _, s := range list {
			if !slices.Contains(f.Choices, s) {
				return fmt.Errorf("%w: %q is not a choice of field %q", ErrInvalidInput, s, f.Name)
			}
		}
	default:
		return fmt.Errorf("%w: field type %q", ErrUnsupportedType, f.Type)
	}
	return nil
}

// MaxLength returns the character limit of the field, or 0 for none.
func (f FieldSpec) MaxLength() int {
	if f.Type == FieldShortText {
		return shortTextLimit
	}
	return 0
}

// ParseInput converts typed text into a value of the field's type and
// validates it. Booleans accept the usual true/false spellings; multiple
// choice values are comma separated.
func (f FieldSpec) ParseInput(text string) (any, error) {
	var value any
	switch f.Type {
	case FieldBoolean:
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "true", "yes", "y", "1", "on":
			value = true
		case "false", "no", "n", "0", "off", "":
			value = false
		default:
			return nil, fmt.Errorf("%w: field %q expects yes or no", ErrInvalidInput, f.Name)
		}
	case FieldNumeric:
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			value = float64(0)
			break
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q expects a number", ErrInvalidInput, f.Name)
		}
		value = n
	case FieldMultipleChoice:
		list := []string{}
		for _, part := range strings.Split(text, ",") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
		value = list
	case FieldSingleChoice:
		value = strings.TrimSpace(text)
	default:
		value = text
	}
	if err := f.Validate(value); err != nil {
		return nil, err
	}
	return value, nil
}

func (f FieldSpec) typeError(value any) error {
	return fmt.Errorf("%w: field %q expects %s, got %T", ErrInvalidInput, f.Name, f.Type, value)
}

// ValidateChanges checks a batch of field changes against the kind's schema.
func ValidateChanges(kind DocumentKind, changes map[string]any) error {
	if len(changes) == 0 {
		return fmt.Errorf("%w: empty change set", ErrInvalidInput)
	}
	s, err := SchemaFor(kind)
	if err != nil {
		return err
	}
	for name, value := range changes {
		spec, ok := s.Field(name)
		if !ok {
			return fmt.Errorf("%w: unknown field %q for %s", ErrInvalidInput, name, kind)
		}
		if err := spec.Validate(value); err != nil {
			return err
		}
	}
	return nil
}
