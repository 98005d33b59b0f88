package loader

// waiting is a row held back from the current pass, with the first reference
// that failed to resolve. Only the first blocker is recorded even when several
// references are unresolved.
type waiting struct {
	row           []string
	blockingField string
	blockingID    string
}

type classified struct {
	uploadables  [][]string
	waitings     []waiting
	notLoadables [][]string
}

// classifyRows partitions a dataset's rows against the current ID map and
// target set. Rows whose id is already mapped are not loadable and do not
// participate in target propagation. The target set is mutated in place as
// reference edges connect targeted rows to their neighbors.
func classifyRows(ds *Dataset, cols *datasetColumns, targets *TargetSet, ids *IDMap) classified {
	var out classified
	for _, row := range ds.Rows {
		id := row[cols.idIndex]
		if ids.Has(id) {
			out.notLoadables = append(out.notLoadables, row)
			continue
		}
		inScope := targets.Empty() || targets.Contains(id)
		var blockingField, blockingID string
		for _, i := range cols.refs {
			refID := row[i]
			if refID == "" {
				continue
			}
			if !targets.Empty() {
				if targets.Contains(refID) {
					targets.Add(id)
					inScope = true
				} else if targets.Contains(id) {
					targets.Add(refID)
				}
			}
			if blockingField == "" && !ids.Has(refID) {
				blockingField = cols.fields[i].Name
				blockingID = refID
			}
		}
		if inScope && blockingField == "" {
			out.uploadables = append(out.uploadables, row)
		} else {
			out.waitings = append(out.waitings, waiting{
				row:           row,
				blockingField: blockingField,
				blockingID:    blockingID,
			})
		}
	}
	return out
}
