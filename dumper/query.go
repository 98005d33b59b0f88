// Package dumper walks the reference graph of a service instance outward from
// seed queries and extracts the transitive closure of related records as
// tabular data.
package dumper

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Query targets select how an object participates in a dump: "query" objects
// seed the walk, "related" objects are pulled in by reference edges.
const (
	TargetQuery   = "query"
	TargetRelated = "related"
)

// FieldList accepts either a YAML sequence of field names or one
// comma-separated string.
type FieldList []string

func (f *FieldList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var joined string
		if err := value.Decode(&joined); err != nil {
			return err
		}
		*f = splitFieldList(joined)
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*f = list
	return nil
}

func splitFieldList(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			fields = append(fields, name)
		}
	}
	return fields
}

// Query describes one object's participation in a dump. Fields wins over
// IgnoreFields; with neither, the full schema field list is used.
type Query struct {
	Object       string    `yaml:"object"`
	Target       string    `yaml:"target"`
	Fields       FieldList `yaml:"fields"`
	IgnoreFields FieldList `yaml:"ignoreFields"`
	Condition    string    `yaml:"condition"`
	OrderBy      string    `yaml:"orderby"`
	Limit        int       `yaml:"limit"`
	Offset       int       `yaml:"offset"`
	Scope        string    `yaml:"scope"`
}
