package dumper

import (
	"context"
	"strings"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
	"github.com/stomita/salesforce-migration-automatic/util"
)

// DefaultMaxFetchSize bounds the records fetched by a single query.
const DefaultMaxFetchSize = 10000

// Progress is reported after the seed phase and after every related/dependent
// expansion phase.
type Progress struct {
	FetchedCount          int
	FetchedCountPerObject map[string]int
}

// Table is the extracted data for one input query, in input order. Headers
// are the original (namespaced) schema field names.
type Table struct {
	Object  string
	Headers []string
	Rows    [][]string
}

// Dumper drives the dump fixpoint against one source instance.
type Dumper struct {
	conn         service.Connection
	describer    *schema.Describer
	maxFetchSize int
	report       func(Progress)
}

func New(conn service.Connection, describer *schema.Describer, maxFetchSize int, report func(Progress)) *Dumper {
	if maxFetchSize <= 0 {
		maxFetchSize = DefaultMaxFetchSize
	}
	if report == nil {
		report = func(Progress) {}
	}
	return &Dumper{conn: conn, describer: describer, maxFetchSize: maxFetchSize, report: report}
}

// objectState tracks the records fetched so far for one query's object.
type objectState struct {
	query      Query
	desc       *schema.ObjectDescription
	selected   []schema.FieldDescription // CSV columns
	fetchNames []string                  // selected names plus the id field
	idField    string
	order      []string
	records    map[string]service.Record
	newIDs     []string // ids added in the previous phase round
}

// Run executes the seed queries, then alternates related and dependent
// expansion until a full round adds no record, and returns one table per
// input query. reverseIDs rewrites id/reference cells back to source ids.
func (d *Dumper) Run(ctx context.Context, queries []Query, reverseIDs map[string]string) ([]Table, error) {
	states := make([]*objectState, len(queries))
	for i, q := range queries {
		state, err := d.newObjectState(q)
		if err != nil {
			return nil, err
		}
		states[i] = state
	}

	if err := d.runSeeds(ctx, states); err != nil {
		return nil, err
	}
	d.reportProgress(states)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prevNew := snapshotNewIDs(states)
		added := 0

		n, err := d.expandRelated(ctx, states, prevNew)
		if err != nil {
			return nil, err
		}
		added += n
		d.reportProgress(states)

		n, err = d.expandDependent(ctx, states)
		if err != nil {
			return nil, err
		}
		added += n
		d.reportProgress(states)

		if added == 0 {
			break
		}
	}

	tables := make([]Table, len(states))
	for i, state := range states {
		tables[i] = d.buildTable(state, reverseIDs)
	}
	return tables, nil
}

func (d *Dumper) newObjectState(q Query) (*objectState, error) {
	desc := d.describer.FindObject(q.Object)
	if desc == nil {
		return nil, &schema.NotFoundError{Object: q.Object}
	}
	ns := d.describer.DefaultNamespace()

	var selected []schema.FieldDescription
	switch {
	case len(q.Fields) > 0:
		for _, name := range q.Fields {
			if field := d.describer.FindField(q.Object, name); field != nil {
				selected = append(selected, *field)
			}
		}
	case len(q.IgnoreFields) > 0:
		for _, field := range desc.Fields {
			if !schema.ContainsName(q.IgnoreFields, field.Name, ns) {
				selected = append(selected, field)
			}
		}
	default:
		selected = append(selected, desc.Fields...)
	}

	idField := "Id"
	for _, field := range desc.Fields {
		if field.Type == schema.FieldTypeID {
			idField = field.Name
			break
		}
	}
	fetchNames := make([]string, 0, len(selected)+1)
	hasID := false
	for _, field := range selected {
		fetchNames = append(fetchNames, field.Name)
		if field.Type == schema.FieldTypeID {
			hasID = true
		}
	}
	if !hasID {
		fetchNames = append(fetchNames, idField)
	}

	return &objectState{
		query:      q,
		desc:       desc,
		selected:   selected,
		fetchNames: fetchNames,
		idField:    idField,
		records:    make(map[string]service.Record),
	}, nil
}

// runSeeds executes every target="query" entry concurrently and buffers the
// results.
func (d *Dumper) runSeeds(ctx context.Context, states []*objectState) error {
	var seeds []*objectState
	for _, state := range states {
		if state.query.Target == TargetQuery {
			seeds = append(seeds, state)
		}
	}
	results, err := util.ConcurrentMapFuncWithError(seeds, -1, func(state *objectState) ([]service.Record, error) {
		q := service.Query{
			Object:    state.desc.Name,
			Fields:    state.fetchNames,
			Scope:     state.query.Scope,
			Condition: state.query.Condition,
			OrderBy:   state.query.OrderBy,
			Limit:     state.query.Limit,
			Offset:    state.query.Offset,
		}
		return d.fetch(ctx, q)
	})
	if err != nil {
		return err
	}
	for i, records := range results {
		seeds[i].add(records)
	}
	return nil
}

// expandRelated pulls in records of related objects whose reference fields
// point at ids fetched in the previous round.
func (d *Dumper) expandRelated(ctx context.Context, states []*objectState, prevNew map[string][]string) (int, error) {
	added := 0
	for _, state := range states {
		if state.query.Target != TargetRelated {
			continue
		}
		var filters []service.Filter
		for _, field := range state.desc.Fields {
			if field.Type != schema.FieldTypeReference {
				continue
			}
			var ids []string
			for _, target := range field.ReferenceTo {
				if targetDesc := d.describer.FindObject(target); targetDesc != nil {
					ids = append(ids, prevNew[strings.ToLower(targetDesc.Name)]...)
				}
			}
			if len(ids) > 0 {
				filters = append(filters, service.Filter{Field: field.Name, In: ids})
			}
		}
		if len(filters) == 0 {
			continue
		}
		records, err := d.fetch(ctx, service.Query{
			Object:     state.desc.Name,
			Fields:     state.fetchNames,
			Filters:    filters,
			FilterJoin: "OR",
		})
		if err != nil {
			return added, err
		}
		added += state.add(records)
	}
	return added, nil
}

// expandDependent follows outgoing references of every fetched record and
// pulls in the records they point at.
func (d *Dumper) expandDependent(ctx context.Context, states []*objectState) (int, error) {
	added := 0
	for _, state := range states {
		if state.query.Target != TargetRelated {
			continue
		}
		missing := d.missingReferencedIDs(states, state)
		if len(missing) == 0 {
			continue
		}
		records, err := d.fetch(ctx, service.Query{
			Object:  state.desc.Name,
			Fields:  state.fetchNames,
			Filters: []service.Filter{{Field: state.idField, In: missing}},
		})
		if err != nil {
			return added, err
		}
		added += state.add(records)
	}
	return added, nil
}

// missingReferencedIDs scans every fetched record of every object for
// reference cells pointing at target's object that are not fetched yet.
func (d *Dumper) missingReferencedIDs(states []*objectState, target *objectState) []string {
	var missing []string
	seen := make(map[string]bool)
	ns := d.describer.DefaultNamespace()
	for _, state := range states {
		for _, field := range state.desc.Fields {
			if field.Type != schema.FieldTypeReference {
				continue
			}
			if !schema.ContainsName(field.ReferenceTo, target.desc.Name, ns) {
				continue
			}
			for _, id := range state.order {
				value := recordValue(state.records[id], field.Name, ns)
				if value == "" || seen[value] {
					continue
				}
				if _, ok := target.records[value]; ok {
					continue
				}
				seen[value] = true
				missing = append(missing, value)
			}
		}
	}
	return missing
}

// fetch buffers a query's stream, bounded by maxFetchSize.
func (d *Dumper) fetch(ctx context.Context, q service.Query) ([]service.Record, error) {
	var records []service.Record
	err := d.conn.Query(ctx, q, func(rec service.Record) error {
		records = append(records, rec)
		if len(records) >= d.maxFetchSize {
			return service.ErrStopIteration
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// add merges records into the state, deduplicating by id, and returns how
// many were new. New ids join the state's per-round delta.
func (s *objectState) add(records []service.Record) int {
	added := 0
	for _, rec := range records {
		id := recordValue(rec, s.idField, "")
		if id == "" {
			continue
		}
		if _, ok := s.records[id]; ok {
			continue
		}
		s.records[id] = rec
		s.order = append(s.order, id)
		s.newIDs = append(s.newIDs, id)
		added++
	}
	return added
}

// snapshotNewIDs collects and resets each object's previous-round additions.
func snapshotNewIDs(states []*objectState) map[string][]string {
	prev := make(map[string][]string, len(states))
	for _, state := range states {
		if len(state.newIDs) > 0 {
			key := strings.ToLower(state.desc.Name)
			prev[key] = append(prev[key], state.newIDs...)
			state.newIDs = nil
		}
	}
	return prev
}

func (d *Dumper) reportProgress(states []*objectState) {
	progress := Progress{FetchedCountPerObject: make(map[string]int, len(states))}
	for _, state := range states {
		progress.FetchedCount += len(state.order)
		progress.FetchedCountPerObject[state.desc.Name] += len(state.order)
	}
	d.report(progress)
}

// buildTable renders one object's fetched records, rewriting id and reference
// cells back through the reversed ID map when present.
func (d *Dumper) buildTable(state *objectState, reverseIDs map[string]string) Table {
	ns := d.describer.DefaultNamespace()
	headers := make([]string, len(state.selected))
	for i, field := range state.selected {
		headers[i] = field.Name
	}
	rows := make([][]string, 0, len(state.order))
	for _, id := range state.order {
		rec := state.records[id]
		row := make([]string, len(state.selected))
		for i, field := range state.selected {
			value := recordValue(rec, field.Name, ns)
			if field.Type == schema.FieldTypeID || field.Type == schema.FieldTypeReference {
				if source, ok := reverseIDs[value]; ok {
					value = source
				}
			}
			row[i] = value
		}
		rows = append(rows, row)
	}
	return Table{Object: state.query.Object, Headers: headers, Rows: rows}
}

// recordValue reads a field from a record whose keys may differ in case or
// namespace prefix from the schema name.
func recordValue(rec service.Record, name, ns string) string {
	if v, ok := rec[name]; ok {
		return v.Text()
	}
	for key, v := range rec {
		if schema.EquivalentNames(key, name, ns) {
			return v.Text()
		}
	}
	return ""
}
