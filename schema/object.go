package schema

import (
	"context"
	"fmt"
)

// FieldType classifies how a field's CSV cell is coerced before upload and how
// its value is rendered on dump.
type FieldType string

const (
	FieldTypeID        FieldType = "id"
	FieldTypeReference FieldType = "reference"
	FieldTypeInt       FieldType = "int"
	FieldTypeDouble    FieldType = "double"
	FieldTypeCurrency  FieldType = "currency"
	FieldTypePercent   FieldType = "percent"
	FieldTypeDate      FieldType = "date"
	FieldTypeDateTime  FieldType = "datetime"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeString    FieldType = "string"
)

// IsNumeric reports whether cells of this type are parsed as numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldTypeInt, FieldTypeDouble, FieldTypeCurrency, FieldTypePercent:
		return true
	}
	return false
}

type FieldDescription struct {
	Name        string
	Type        FieldType
	Createable  bool
	ReferenceTo []string
}

type ObjectDescription struct {
	Name   string
	Fields []FieldDescription
}

// FieldNames returns the schema field names in declaration order.
func (o *ObjectDescription) FieldNames() []string {
	names := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		names[i] = f.Name
	}
	return names
}

// Client fetches per-object schema from a service instance.
type Client interface {
	Describe(ctx context.Context, object string) (*ObjectDescription, error)
}

// NotFoundError is returned by Client.Describe when the instance has no object
// with the given name, and by NewDescriber when the namespace fallback also
// misses.
type NotFoundError struct {
	Object string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s is not found", e.Object)
}
