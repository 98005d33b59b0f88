package loader

import (
	"regexp"
	"strconv"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
)

// RecordIDPair couples an outgoing record with the source-instance id of the
// row it came from. The id itself is never part of the record; the target
// instance assigns a fresh one.
type RecordIDPair struct {
	OrigID string
	Record service.Record
}

// Cells matching this render as boolean false; anything else is true.
var falseCell = regexp.MustCompile(`^(?i:0|n|f|false)?$`)

// convertRow coerces one CSV row into a typed record, rewriting reference
// cells through the ID map. Headers unknown to the schema are skipped, and
// non-createable fields are never written.
func convertRow(ds *Dataset, cols *datasetColumns, row []string, ids *IDMap) RecordIDPair {
	pair := RecordIDPair{Record: make(service.Record)}
	for i, field := range cols.fields {
		if field == nil {
			continue
		}
		cell := row[i]
		switch field.Type {
		case schema.FieldTypeID:
			if i == cols.idIndex {
				pair.OrigID = cell
			}
		case schema.FieldTypeInt:
			if !field.Createable {
				continue
			}
			if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
				pair.Record[field.Name] = service.Int(n)
			}
		case schema.FieldTypeDouble, schema.FieldTypeCurrency, schema.FieldTypePercent:
			if !field.Createable {
				continue
			}
			if f, err := strconv.ParseFloat(cell, 64); err == nil {
				pair.Record[field.Name] = service.Float(f)
			}
		case schema.FieldTypeDate, schema.FieldTypeDateTime:
			if field.Createable && cell != "" {
				pair.Record[field.Name] = service.String(cell)
			}
		case schema.FieldTypeBoolean:
			if field.Createable {
				pair.Record[field.Name] = service.Bool(!falseCell.MatchString(cell))
			}
		case schema.FieldTypeReference:
			if !field.Createable {
				continue
			}
			if mapped, ok := ids.Get(cell); ok {
				pair.Record[field.Name] = service.String(mapped)
			} else {
				pair.Record[field.Name] = service.Null()
			}
		default:
			if field.Createable {
				pair.Record[field.Name] = service.String(cell)
			}
		}
	}
	return pair
}
