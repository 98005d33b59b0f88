// Package memory implements the service interfaces over in-process maps. It
// backs the engine tests and is handy for dry-running policy and query files
// against a hand-seeded instance.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
)

type objectData struct {
	desc     *schema.ObjectDescription
	idField  string
	order    []string
	records  map[string]service.Record
	required []string
}

type Store struct {
	mu      sync.Mutex
	objects map[string]*objectData
	nextID  func() string
}

func NewStore() *Store {
	return &Store{
		objects: make(map[string]*objectData),
		nextID:  uuid.NewString,
	}
}

// SetIDGenerator replaces the id generator; tests use this for predictable
// ids.
func (s *Store) SetIDGenerator(fn func() string) {
	s.nextID = fn
}

// DefineObject registers an object schema.
func (s *Store) DefineObject(desc *schema.ObjectDescription) {
	idField := "Id"
	for _, field := range desc.Fields {
		if field.Type == schema.FieldTypeID {
			idField = field.Name
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[strings.ToLower(desc.Name)] = &objectData{
		desc:    desc,
		idField: idField,
		records: make(map[string]service.Record),
	}
}

// RequireField makes Create reject records leaving the field empty, the way a
// real instance enforces required fields.
func (s *Store) RequireField(object, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.objects[strings.ToLower(object)]; ok {
		data.required = append(data.required, field)
	}
}

// InsertRecord seeds a pre-existing record under the given id.
func (s *Store) InsertRecord(object, id string, rec service.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[strings.ToLower(object)]
	if !ok {
		return
	}
	stored := make(service.Record, len(rec)+1)
	for k, v := range rec {
		stored[k] = v
	}
	stored[data.idField] = service.String(id)
	if _, exists := data.records[id]; !exists {
		data.order = append(data.order, id)
	}
	data.records[id] = stored
}

// Records returns the stored records of an object in insertion order.
func (s *Store) Records(object string) []service.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[strings.ToLower(object)]
	if !ok {
		return nil
	}
	out := make([]service.Record, 0, len(data.order))
	for _, id := range data.order {
		out = append(out, data.records[id])
	}
	return out
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Describe(ctx context.Context, object string) (*schema.ObjectDescription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[strings.ToLower(object)]
	if !ok {
		return nil, &schema.NotFoundError{Object: object}
	}
	return data.desc, nil
}

var simpleCondition = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s*=\s*'([^']*)'\s*$`)

func (s *Store) Query(ctx context.Context, q service.Query, each func(service.Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	data, ok := s.objects[strings.ToLower(q.Object)]
	if !ok {
		s.mu.Unlock()
		return &schema.NotFoundError{Object: q.Object}
	}

	condField, condValue := "", ""
	if q.Condition != "" {
		m := simpleCondition.FindStringSubmatch(q.Condition)
		if m == nil {
			s.mu.Unlock()
			return fmt.Errorf("unsupported condition: %s", q.Condition)
		}
		condField, condValue = m[1], m[2]
	}

	var matched []service.Record
	for _, id := range data.order {
		rec := data.records[id]
		if !matchFilters(rec, q) {
			continue
		}
		if condField != "" && fieldText(rec, condField) != condValue {
			continue
		}
		matched = append(matched, rec)
	}
	s.mu.Unlock()

	if q.OrderBy != "" {
		field, desc := parseOrderBy(q.OrderBy)
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := fieldText(matched[i], field), fieldText(matched[j], field)
			if desc {
				return a > b
			}
			return a < b
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	for _, rec := range matched {
		out := make(service.Record, len(q.Fields))
		for _, name := range q.Fields {
			out[name] = fieldValue(rec, name)
		}
		if err := each(out); err != nil {
			if err == service.ErrStopIteration {
				return nil
			}
			return err
		}
	}
	return nil
}

func matchFilters(rec service.Record, q service.Query) bool {
	if len(q.Filters) == 0 {
		return true
	}
	anyOf := strings.EqualFold(q.FilterJoin, "OR")
	for _, f := range q.Filters {
		hit := false
		text := fieldText(rec, f.Field)
		for _, v := range f.In {
			if text == v {
				hit = true
				break
			}
		}
		if anyOf && hit {
			return true
		}
		if !anyOf && !hit {
			return false
		}
	}
	return !anyOf
}

func parseOrderBy(orderBy string) (field string, desc bool) {
	parts := strings.Fields(orderBy)
	if len(parts) == 0 {
		return "", false
	}
	return parts[0], len(parts) > 1 && strings.EqualFold(parts[1], "DESC")
}

func fieldValue(rec service.Record, name string) service.Value {
	if v, ok := rec[name]; ok {
		return v
	}
	for k, v := range rec {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return service.Null()
}

func fieldText(rec service.Record, name string) string {
	return fieldValue(rec, name).Text()
}

func (s *Store) Create(ctx context.Context, object string, records []service.Record) ([]service.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[strings.ToLower(object)]
	if !ok {
		return nil, &schema.NotFoundError{Object: object}
	}

	results := make([]service.SaveResult, len(records))
	for i, rec := range records {
		if field, ok := missingRequired(data, rec); ok {
			results[i] = service.SaveResult{Errors: []string{fmt.Sprintf("required field %s is missing", field)}}
			continue
		}
		id := s.nextID()
		stored := make(service.Record, len(rec)+1)
		for k, v := range rec {
			stored[k] = v
		}
		stored[data.idField] = service.String(id)
		data.records[id] = stored
		data.order = append(data.order, id)
		results[i] = service.SaveResult{Success: true, ID: id}
	}
	return results, nil
}

func missingRequired(data *objectData, rec service.Record) (string, bool) {
	for _, field := range data.required {
		if fieldText(rec, field) == "" {
			return field, true
		}
	}
	return "", false
}
