package loader

import (
	"context"
	"errors"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
	"github.com/stomita/salesforce-migration-automatic/util"
)

// DefaultMapping picks a pre-existing target record for source rows no
// business key matched. Either ID carries a literal target id, or
// Condition/OrderBy/Offset select a single record on the target instance.
type DefaultMapping struct {
	ID        string
	Condition string
	OrderBy   string
	Offset    int
}

// UnmarshalYAML accepts a bare string (literal target id) or a mapping with
// condition/orderby/offset keys.
func (d *DefaultMapping) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&d.ID)
	}
	var aux struct {
		Condition string `yaml:"condition"`
		OrderBy   string `yaml:"orderby"`
		Offset    int    `yaml:"offset"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	d.Condition = aux.Condition
	d.OrderBy = aux.OrderBy
	d.Offset = aux.Offset
	return nil
}

// MappingPolicy maps source rows of one object onto records that already
// exist on the target instance, by business key and/or default mapping.
type MappingPolicy struct {
	Object         string          `yaml:"object"`
	KeyField       string          `yaml:"keyField"`
	KeyFields      []string        `yaml:"keyFields"`
	DefaultMapping *DefaultMapping `yaml:"defaultMapping"`
}

// keyFieldList normalizes the keyField shorthand into the keyFields form.
func (p MappingPolicy) keyFieldList() []string {
	if len(p.KeyFields) > 0 {
		return p.KeyFields
	}
	if p.KeyField != "" {
		return []string{p.KeyField}
	}
	return nil
}

// resolveMappings runs every policy concurrently against the target instance
// and merges the results into ids in policy order, never overwriting.
func (l *Loader) resolveMappings(ctx context.Context, datasets []*Dataset, policies []MappingPolicy, ids *IDMap) error {
	if len(policies) == 0 {
		return nil
	}
	maps, err := util.ConcurrentMapFuncWithError(policies, -1, func(p MappingPolicy) (*IDMap, error) {
		return l.resolvePolicy(ctx, datasets, p)
	})
	if err != nil {
		return err
	}
	for _, m := range maps {
		ids.Merge(m)
	}
	return nil
}

func (l *Loader) resolvePolicy(ctx context.Context, datasets []*Dataset, p MappingPolicy) (*IDMap, error) {
	ds := l.findDataset(datasets, p.Object)
	if ds == nil {
		return nil, &UnknownMappingObjectError{Object: p.Object}
	}
	out := NewIDMap()
	cols, err := resolveColumns(ds, l.describer)
	if err != nil {
		// Datasets without an id column have nothing to map.
		var missing *MissingIDColumnError
		if errors.As(err, &missing) {
			return out, nil
		}
		return nil, err
	}

	keyFields, keyIndexes := l.resolveKeyColumns(ds, p.keyFieldList())
	type localEntry struct {
		sourceID string
		key      string
	}
	var locals []localEntry
	distinct := make([]map[string]bool, len(keyFields))
	for i := range distinct {
		distinct[i] = make(map[string]bool)
	}
	for _, row := range ds.Rows {
		sourceID := row[cols.idIndex]
		if sourceID == "" {
			continue
		}
		if len(keyFields) > 0 {
			vals := make([]string, len(keyIndexes))
			for i, idx := range keyIndexes {
				if idx >= 0 {
					vals[i] = row[idx]
					if row[idx] != "" {
						distinct[i][row[idx]] = true
					}
				}
			}
			locals = append(locals, localEntry{sourceID: sourceID, key: keyTuple(vals)})
		} else {
			locals = append(locals, localEntry{sourceID: sourceID})
		}
	}

	if len(keyFields) > 0 && anyValues(distinct) {
		remote, err := l.queryRemoteKeys(ctx, cols, keyFields, distinct)
		if err != nil {
			return nil, err
		}
		for _, entry := range locals {
			if targetID, ok := remote[entry.key]; ok {
				out.Set(entry.sourceID, targetID)
			}
		}
	}

	if p.DefaultMapping != nil {
		targetID, err := l.resolveDefaultMapping(ctx, cols, p.DefaultMapping)
		if err != nil {
			return nil, err
		}
		if targetID != "" {
			for _, entry := range locals {
				out.Set(entry.sourceID, targetID)
			}
		}
	}
	return out, nil
}

// resolveKeyColumns maps policy key fields to schema names and header indexes.
// A key field absent from the headers contributes an empty cell to the tuple.
func (l *Loader) resolveKeyColumns(ds *Dataset, keyFields []string) ([]string, []int) {
	ns := l.describer.DefaultNamespace()
	names := make([]string, len(keyFields))
	indexes := make([]int, len(keyFields))
	for i, key := range keyFields {
		names[i] = key
		if field := l.describer.FindField(ds.Object, key); field != nil {
			names[i] = field.Name
		}
		indexes[i] = -1
		for j, header := range ds.Headers {
			if schema.EquivalentNames(header, key, ns) {
				indexes[i] = j
				break
			}
		}
	}
	return names, indexes
}

func (l *Loader) queryRemoteKeys(ctx context.Context, cols *datasetColumns, keyFields []string, distinct []map[string]bool) (map[string]string, error) {
	idField := l.idFieldName(cols)
	q := service.Query{
		Object: cols.objectName,
		Fields: append([]string{idField}, keyFields...),
	}
	for i, key := range keyFields {
		values := make([]string, 0, len(distinct[i]))
		for v := range distinct[i] {
			values = append(values, v)
		}
		sort.Strings(values)
		q.Filters = append(q.Filters, service.Filter{Field: key, In: values})
	}
	remote := make(map[string]string)
	err := l.conn.Query(ctx, q, func(rec service.Record) error {
		vals := make([]string, len(keyFields))
		for i, key := range keyFields {
			vals[i] = rec[key].Text()
		}
		remote[keyTuple(vals)] = rec[idField].Text()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remote, nil
}

func (l *Loader) resolveDefaultMapping(ctx context.Context, cols *datasetColumns, d *DefaultMapping) (string, error) {
	if d.ID != "" {
		return d.ID, nil
	}
	idField := l.idFieldName(cols)
	q := service.Query{
		Object:    cols.objectName,
		Fields:    []string{idField},
		Condition: d.Condition,
		OrderBy:   d.OrderBy,
		Limit:     1,
		Offset:    d.Offset,
	}
	var targetID string
	err := l.conn.Query(ctx, q, func(rec service.Record) error {
		targetID = rec[idField].Text()
		return service.ErrStopIteration
	})
	if err != nil {
		return "", err
	}
	return targetID, nil
}

func (l *Loader) idFieldName(cols *datasetColumns) string {
	if cols.idIndex >= 0 {
		if field := cols.fields[cols.idIndex]; field != nil {
			return field.Name
		}
	}
	return "Id"
}

func (l *Loader) findDataset(datasets []*Dataset, object string) *Dataset {
	ns := l.describer.DefaultNamespace()
	for _, ds := range datasets {
		if schema.EquivalentNames(ds.Object, object, ns) {
			return ds
		}
	}
	return nil
}

// keyTuple builds the composite business-key string shared by the local and
// remote sides of a policy.
func keyTuple(values []string) string {
	return strings.TrimSpace(strings.Join(values, "\t"))
}

func anyValues(distinct []map[string]bool) bool {
	for _, m := range distinct {
		if len(m) > 0 {
			return true
		}
	}
	return false
}
