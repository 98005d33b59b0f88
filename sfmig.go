// Package sfmig migrates relational records between two instances of a
// record-management service. LoadCSVData uploads CSV exports to a target
// instance while rewriting foreign-key ids so relationships survive the move;
// DumpAsCSV extracts the transitive closure of records related to a set of
// seed queries.
package sfmig

import (
	"context"
	"fmt"

	"github.com/stomita/salesforce-migration-automatic/dumper"
	"github.com/stomita/salesforce-migration-automatic/loader"
	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
)

// UploadInput is one CSV export: the object it belongs to and the raw CSV
// text, first row being the header.
type UploadInput struct {
	Object  string
	CSVData string
}

// CSVParseError wraps a parse failure of one input. Nothing is uploaded when
// any input fails to parse.
type CSVParseError struct {
	Object string
	Err    error
}

func (e *CSVParseError) Error() string {
	return fmt.Sprintf("failed to parse csv data for %s: %v", e.Object, e.Err)
}

func (e *CSVParseError) Unwrap() error {
	return e.Err
}

// UploadOptions tune a LoadCSVData run.
type UploadOptions struct {
	// DefaultNamespace enables namespace-tolerant object/field lookup.
	DefaultNamespace string
	// MappingPolicies map source rows onto pre-existing target records.
	MappingPolicies []loader.MappingPolicy
	// IDMap seeds the source→target id translation.
	IDMap map[string]string
	// TargetIDs restricts the upload to the listed source ids and whatever
	// they are connected to through reference edges.
	TargetIDs []string
	// CSVParse is forwarded to the CSV reader.
	CSVParse *CSVParseOptions
	// ReportProgress is invoked synchronously after every productive upload
	// pass.
	ReportProgress func(loader.Progress)
}

// LoadCSVData parses the inputs, seeds the id map from mapping policies, and
// drives upload passes until no further row can be loaded. Every input row
// ends up in at most one of the returned status's successes, failures and
// blocked; rows whose id is already in the id map appear in none of them.
func LoadCSVData(ctx context.Context, conn service.Connection, inputs []UploadInput, opts UploadOptions) (*loader.UploadStatus, error) {
	datasets := make([]*loader.Dataset, 0, len(inputs))
	objects := make([]string, 0, len(inputs))
	for _, in := range inputs {
		rows, err := ParseCSV(in.CSVData, opts.CSVParse)
		if err != nil {
			return nil, &CSVParseError{Object: in.Object, Err: err}
		}
		ds := &loader.Dataset{Object: in.Object}
		if len(rows) > 0 {
			ds.Headers = rows[0]
			ds.Rows = rows[1:]
		}
		datasets = append(datasets, ds)
		objects = append(objects, in.Object)
	}

	for _, p := range opts.MappingPolicies {
		if !schema.ContainsName(objects, p.Object, opts.DefaultNamespace) {
			return nil, &loader.UnknownMappingObjectError{Object: p.Object}
		}
	}

	describer, err := schema.NewDescriber(ctx, conn, objects, opts.DefaultNamespace)
	if err != nil {
		return nil, err
	}

	l := loader.New(conn, describer, opts.ReportProgress)
	return l.Run(ctx, datasets, opts.MappingPolicies, opts.IDMap, opts.TargetIDs)
}

// DumpOptions tune a DumpAsCSV run.
type DumpOptions struct {
	DefaultNamespace string
	// MaxFetchSize bounds the records fetched by a single query; defaults to
	// dumper.DefaultMaxFetchSize.
	MaxFetchSize int
	// IDMap, when given, is reversed once and used to rewrite id and
	// reference cells back to source-instance ids for round-trip use.
	IDMap map[string]string
	// ReportProgress is invoked synchronously after every dump phase.
	ReportProgress func(dumper.Progress)
}

// DumpAsCSV fetches the seed queries and expands along reference edges until
// closure, returning one CSV string per query, in input order.
func DumpAsCSV(ctx context.Context, conn service.Connection, queries []dumper.Query, opts DumpOptions) ([]string, error) {
	objects := make([]string, 0, len(queries))
	for _, q := range queries {
		objects = append(objects, q.Object)
	}
	describer, err := schema.NewDescriber(ctx, conn, objects, opts.DefaultNamespace)
	if err != nil {
		return nil, err
	}

	var reverse map[string]string
	if len(opts.IDMap) > 0 {
		reverse = loader.NewIDMapFromSeed(opts.IDMap).Reverse()
	}

	d := dumper.New(conn, describer, opts.MaxFetchSize, opts.ReportProgress)
	tables, err := d.Run(ctx, queries, reverse)
	if err != nil {
		return nil, err
	}

	csvs := make([]string, len(tables))
	for i, table := range tables {
		out, err := writeCSV(table.Headers, table.Rows)
		if err != nil {
			return nil, err
		}
		csvs[i] = out
	}
	return csvs, nil
}
