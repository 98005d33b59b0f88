package loader

import (
	"context"
	"fmt"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
	"github.com/stomita/salesforce-migration-automatic/util"
)

// UploadResult is one successfully created record.
type UploadResult struct {
	Object   string
	OrigID   string
	TargetID string
}

// UploadFailure is one record the target instance rejected. Failures do not
// retry; rows referencing a failed row end up blocked instead.
type UploadFailure struct {
	Object string
	OrigID string
	Errors []string
}

// BlockedRecord is a row that could not be uploaded at the fixpoint, with the
// first reference that never resolved. Rows left out of a non-empty target set
// with every reference resolved carry an empty BlockingField and BlockingID.
type BlockedRecord struct {
	Object        string
	OrigID        string
	BlockingField string
	BlockingID    string
}

// UploadStatus is the union of outcomes over a load run. A row appears at
// most once across successes, failures and blocked.
type UploadStatus struct {
	TotalCount int
	Successes  []UploadResult
	Failures   []UploadFailure
	Blocked    []BlockedRecord
	IDMap      *IDMap
}

// Progress is reported after every productive upload pass.
type Progress struct {
	TotalCount   int
	SuccessCount int
	FailureCount int
}

// Loader drives the upload fixpoint against one target instance.
type Loader struct {
	conn      service.Connection
	describer *schema.Describer
	report    func(Progress)
}

func New(conn service.Connection, describer *schema.Describer, report func(Progress)) *Loader {
	if report == nil {
		report = func(Progress) {}
	}
	return &Loader{conn: conn, describer: describer, report: report}
}

// objectBatch collects one pass's uploadable records for a single object.
type objectBatch struct {
	object     string // dataset object name, used in status entries
	objectName string // schema-resolved name, used on the wire
	pairs      []RecordIDPair
}

// Run classifies, converts and uploads datasets until a pass produces no
// batch. The ID map grows monotonically; ids created in one pass become
// visible to the classifier in the next. Datasets are consumed destructively.
//
// A context cancellation or transport error returns the partial status
// together with the error.
func (l *Loader) Run(ctx context.Context, datasets []*Dataset, policies []MappingPolicy, seedIDMap map[string]string, targetIDs []string) (*UploadStatus, error) {
	ids := NewIDMapFromSeed(seedIDMap)
	status := &UploadStatus{IDMap: ids}

	columns := make(map[*Dataset]*datasetColumns, len(datasets))
	for _, ds := range datasets {
		status.TotalCount += len(ds.Rows)
		if len(ds.Headers) == 0 {
			// an empty input contributes nothing
			continue
		}
		cols, err := resolveColumns(ds, l.describer)
		if err != nil {
			return status, err
		}
		columns[ds] = cols
	}

	for _, p := range policies {
		if l.findDataset(datasets, p.Object) == nil {
			return status, &UnknownMappingObjectError{Object: p.Object}
		}
	}
	if err := l.resolveMappings(ctx, datasets, policies, ids); err != nil {
		return status, err
	}

	targets := NewTargetSet(targetIDs)

	for {
		if err := ctx.Err(); err != nil {
			return status, err
		}

		batches := make(map[string]*objectBatch)
		var blocked []BlockedRecord
		for _, ds := range datasets {
			cols := columns[ds]
			if cols == nil {
				continue
			}
			c := classifyRows(ds, cols, targets, ids)
			if len(c.uploadables) > 0 {
				pairs := util.TransformSlice(c.uploadables, func(row []string) RecordIDPair {
					return convertRow(ds, cols, row, ids)
				})
				batches[ds.Object] = &objectBatch{object: ds.Object, objectName: cols.objectName, pairs: pairs}
			}
			rows := make([][]string, len(c.waitings))
			for i, w := range c.waitings {
				rows[i] = w.row
				blocked = append(blocked, BlockedRecord{
					Object:        ds.Object,
					OrigID:        w.row[cols.idIndex],
					BlockingField: w.blockingField,
					BlockingID:    w.blockingID,
				})
			}
			ds.Rows = rows
		}

		if len(batches) == 0 {
			// Fixpoint: the last unproductive pass defines what is blocked.
			status.Blocked = blocked
			return status, nil
		}

		ordered := make([]*objectBatch, 0, len(batches))
		for _, batch := range util.CanonicalMapIter(batches) {
			ordered = append(ordered, batch)
		}

		type created struct {
			batch   *objectBatch
			results []service.SaveResult
		}
		outs, err := util.ConcurrentMapFuncWithError(ordered, -1, func(batch *objectBatch) (created, error) {
			records := util.TransformSlice(batch.pairs, func(p RecordIDPair) service.Record {
				return p.Record
			})
			results, err := l.conn.Create(ctx, batch.objectName, records)
			if err != nil {
				return created{}, err
			}
			if len(results) != len(records) {
				return created{}, fmt.Errorf("create on %s returned %d results for %d records", batch.objectName, len(results), len(records))
			}
			return created{batch: batch, results: results}, nil
		})
		if err != nil {
			return status, err
		}

		for _, out := range outs {
			for i, ret := range out.results {
				pair := out.batch.pairs[i]
				if ret.Success {
					ids.Set(pair.OrigID, ret.ID)
					status.Successes = append(status.Successes, UploadResult{
						Object:   out.batch.object,
						OrigID:   pair.OrigID,
						TargetID: ret.ID,
					})
				} else {
					status.Failures = append(status.Failures, UploadFailure{
						Object: out.batch.object,
						OrigID: pair.OrigID,
						Errors: ret.Errors,
					})
				}
			}
		}

		l.report(Progress{
			TotalCount:   status.TotalCount,
			SuccessCount: len(status.Successes),
			FailureCount: len(status.Failures),
		})
	}
}
