// Package loader uploads CSV datasets to a service instance, rewriting
// reference fields through a growing source→target ID map until no more rows
// can make progress.
package loader

import (
	"fmt"

	"github.com/stomita/salesforce-migration-automatic/schema"
)

// Dataset holds the parsed CSV rows for one object. Rows shrink destructively
// as upload passes move them into batches; the rows left at the fixpoint are
// the blocked ones.
type Dataset struct {
	Object  string
	Headers []string
	Rows    [][]string
}

// MissingIDColumnError is raised when a dataset has no header mapping to the
// object's id field. Without source ids no relationship can be rebuilt.
type MissingIDColumnError struct {
	Object string
}

func (e *MissingIDColumnError) Error() string {
	return fmt.Sprintf("dataset for %s has no id column", e.Object)
}

// UnknownMappingObjectError is raised when a mapping policy names an object
// that no input dataset covers.
type UnknownMappingObjectError struct {
	Object string
}

func (e *UnknownMappingObjectError) Error() string {
	return fmt.Sprintf("mapping policy refers to unknown object %s", e.Object)
}

// datasetColumns is the schema-resolved view of a dataset's header row.
type datasetColumns struct {
	objectName string                     // schema-resolved object name, used on the wire
	idIndex    int                        // index of the id column
	fields     []*schema.FieldDescription // per header; nil for headers unknown to the schema
	refs       []int                      // reference columns that can resolve within this run
}

// resolveColumns matches a dataset's headers against the described schema.
// Only reference fields pointing at an object the describer knows can ever be
// satisfied by this run, so only those participate in classification.
func resolveColumns(ds *Dataset, describer *schema.Describer) (*datasetColumns, error) {
	desc := describer.FindObject(ds.Object)
	if desc == nil {
		return nil, &schema.NotFoundError{Object: ds.Object}
	}
	cols := &datasetColumns{
		objectName: desc.Name,
		idIndex:    -1,
		fields:     make([]*schema.FieldDescription, len(ds.Headers)),
	}
	for i, header := range ds.Headers {
		field := describer.FindField(ds.Object, header)
		if field == nil {
			continue
		}
		cols.fields[i] = field
		switch field.Type {
		case schema.FieldTypeID:
			if cols.idIndex < 0 {
				cols.idIndex = i
			}
		case schema.FieldTypeReference:
			if describer.KnowsAny(field.ReferenceTo) {
				cols.refs = append(cols.refs, i)
			}
		}
	}
	if cols.idIndex < 0 {
		return nil, &MissingIDColumnError{Object: ds.Object}
	}
	return cols, nil
}
