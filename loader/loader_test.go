package loader

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service/memory"
)

func accountDescription() *schema.ObjectDescription {
	return &schema.ObjectDescription{
		Name: "Account",
		Fields: []schema.FieldDescription{
			{Name: "Id", Type: schema.FieldTypeID},
			{Name: "Name", Type: schema.FieldTypeString, Createable: true},
			{Name: "Website", Type: schema.FieldTypeString, Createable: true},
			{Name: "CreatedDate", Type: schema.FieldTypeDateTime},
			{Name: "OwnerId", Type: schema.FieldTypeReference, Createable: true, ReferenceTo: []string{"User"}},
		},
	}
}

func contactDescription() *schema.ObjectDescription {
	return &schema.ObjectDescription{
		Name: "Contact",
		Fields: []schema.FieldDescription{
			{Name: "Id", Type: schema.FieldTypeID},
			{Name: "LastName", Type: schema.FieldTypeString, Createable: true},
			{Name: "AccountId", Type: schema.FieldTypeReference, Createable: true, ReferenceTo: []string{"Account"}},
			{Name: "OwnerId", Type: schema.FieldTypeReference, Createable: true, ReferenceTo: []string{"User"}},
		},
	}
}

func userDescription() *schema.ObjectDescription {
	return &schema.ObjectDescription{
		Name: "User",
		Fields: []schema.FieldDescription{
			{Name: "Id", Type: schema.FieldTypeID},
			{Name: "Name", Type: schema.FieldTypeString, Createable: true},
		},
	}
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

func newTestStore(descs ...*schema.ObjectDescription) *memory.Store {
	store := memory.NewStore()
	store.SetIDGenerator(sequentialIDs("t-"))
	for _, desc := range descs {
		store.DefineObject(desc)
	}
	return store
}

func newTestLoader(t *testing.T, store *memory.Store, objects []string, ns string) *Loader {
	t.Helper()
	describer, err := schema.NewDescriber(context.Background(), store, objects, ns)
	require.NoError(t, err)
	return New(store, describer, nil)
}

func idMapContents(m *IDMap) map[string]string {
	out := make(map[string]string, m.Len())
	m.Each(func(src, dst string) bool {
		out[src] = dst
		return true
	})
	return out
}

func TestRunEmptyInput(t *testing.T) {
	store := newTestStore()
	l := newTestLoader(t, store, nil, "")

	status, err := l.Run(context.Background(), nil, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, status.TotalCount)
	assert.Empty(t, status.Successes)
	assert.Empty(t, status.Failures)
	assert.Empty(t, status.Blocked)
	assert.Equal(t, 0, status.IDMap.Len())
}

func TestRunBlockedByMissingDependency(t *testing.T) {
	store := newTestStore(accountDescription(), userDescription())
	l := newTestLoader(t, store, []string{"Account", "User"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name", "OwnerId"},
			Rows:    [][]string{{"A1", "Account 01", "U1"}},
		},
		{
			Object:  "User",
			Headers: []string{"Id", "Name"},
		},
	}

	status, err := l.Run(context.Background(), datasets, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, status.TotalCount)
	assert.Empty(t, status.Successes)
	assert.Empty(t, status.Failures)
	require.Len(t, status.Blocked, 1)
	assert.Equal(t, BlockedRecord{
		Object:        "Account",
		OrigID:        "A1",
		BlockingField: "OwnerId",
		BlockingID:    "U1",
	}, status.Blocked[0])
	assert.Equal(t, 0, status.IDMap.Len())
}

func TestRunBlockedByFailedParent(t *testing.T) {
	store := newTestStore(accountDescription(), contactDescription())
	store.RequireField("Account", "Name")
	l := newTestLoader(t, store, []string{"Account", "Contact"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name"},
			Rows:    [][]string{{"A1", ""}},
		},
		{
			Object:  "Contact",
			Headers: []string{"Id", "LastName", "AccountId"},
			Rows:    [][]string{{"C1", "Smith", "A1"}},
		},
	}

	status, err := l.Run(context.Background(), datasets, nil, nil, nil)
	require.NoError(t, err)

	require.Len(t, status.Failures, 1)
	assert.Equal(t, "Account", status.Failures[0].Object)
	assert.Equal(t, "A1", status.Failures[0].OrigID)
	require.Len(t, status.Blocked, 1)
	assert.Equal(t, BlockedRecord{
		Object:        "Contact",
		OrigID:        "C1",
		BlockingField: "AccountId",
		BlockingID:    "A1",
	}, status.Blocked[0])
	assert.Empty(t, status.Successes)
}

func TestRunSeededIDMapPassesThrough(t *testing.T) {
	store := newTestStore(accountDescription(), userDescription())
	l := newTestLoader(t, store, []string{"Account", "User"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name", "OwnerId"},
			Rows:    [][]string{{"A1", "Account 01", "U1"}},
		},
	}

	status, err := l.Run(context.Background(), datasets, nil, map[string]string{"U1": "existing-user"}, nil)
	require.NoError(t, err)

	require.Len(t, status.Successes, 1)
	assert.Equal(t, "A1", status.Successes[0].OrigID)
	assert.Empty(t, status.Failures)
	assert.Empty(t, status.Blocked)
	assert.Equal(t, 2, status.IDMap.Len())

	records := store.Records("Account")
	require.Len(t, records, 1)
	assert.Equal(t, "existing-user", records[0]["OwnerId"].Text())
}

func TestRunUploadsInDependencyOrder(t *testing.T) {
	store := newTestStore(accountDescription(), contactDescription(), userDescription())
	l := newTestLoader(t, store, []string{"Account", "Contact", "User"}, "")

	datasets := []*Dataset{
		{
			Object:  "Contact",
			Headers: []string{"Id", "LastName", "AccountId", "OwnerId"},
			Rows:    [][]string{{"C1", "Smith", "A1", "U1"}},
		},
		{
			Object:  "Account",
			Headers: []string{"Id", "Name", "OwnerId"},
			Rows:    [][]string{{"A1", "Account 01", "U1"}},
		},
		{
			Object:  "User",
			Headers: []string{"Id", "Name"},
			Rows:    [][]string{{"U1", "User 01"}},
		},
	}

	var passes []Progress
	l.report = func(p Progress) { passes = append(passes, p) }

	status, err := l.Run(context.Background(), datasets, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, status.TotalCount)
	assert.Len(t, status.Successes, 3)
	assert.Empty(t, status.Failures)
	assert.Empty(t, status.Blocked)
	assert.Equal(t, 3, status.IDMap.Len())
	// User first, then Account, then Contact: one productive pass each.
	require.Len(t, passes, 3)
	assert.Equal(t, 1, passes[0].SuccessCount)
	assert.Equal(t, 2, passes[1].SuccessCount)
	assert.Equal(t, 3, passes[2].SuccessCount)

	contact := store.Records("Contact")
	require.Len(t, contact, 1)
	account := store.Records("Account")
	require.Len(t, account, 1)
	accountID, _ := status.IDMap.Get("A1")
	userID, _ := status.IDMap.Get("U1")
	assert.Equal(t, accountID, contact[0]["AccountId"].Text())
	assert.Equal(t, userID, contact[0]["OwnerId"].Text())
	assert.Equal(t, userID, account[0]["OwnerId"].Text())
}

func TestRunTargetIDPropagation(t *testing.T) {
	store := newTestStore(accountDescription(), userDescription())
	l := newTestLoader(t, store, []string{"Account", "User"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name", "OwnerId"},
			Rows: [][]string{
				{"A1", "Targeted", "U1"},
				{"A2", "Untargeted", "U2"},
			},
		},
		{
			Object:  "User",
			Headers: []string{"Id", "Name"},
			Rows: [][]string{
				{"U1", "User 01"},
				{"U2", "User 02"},
			},
		},
	}

	status, err := l.Run(context.Background(), datasets, nil, nil, []string{"A1"})
	require.NoError(t, err)

	// A1 pulled its owner U1 in; A2 and U2 stayed out of scope.
	uploaded := make(map[string]bool)
	for _, s := range status.Successes {
		uploaded[s.OrigID] = true
	}
	assert.True(t, uploaded["A1"])
	assert.True(t, uploaded["U1"])
	assert.False(t, uploaded["A2"])
	assert.False(t, uploaded["U2"])

	blocked := make(map[string]bool)
	for _, b := range status.Blocked {
		blocked[b.OrigID] = true
	}
	assert.True(t, blocked["A2"])
	assert.True(t, blocked["U2"])
}

// Every input row lands in exactly one of successes, failures, blocked or the
// already-mapped bucket.
func TestRunPartitionsEveryRow(t *testing.T) {
	store := newTestStore(accountDescription(), contactDescription(), userDescription())
	store.RequireField("Contact", "LastName")
	l := newTestLoader(t, store, []string{"Account", "Contact", "User"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name", "OwnerId"},
			Rows: [][]string{
				{"A1", "Account 01", "U1"},
				{"A2", "Account 02", "U-missing"},
			},
		},
		{
			Object:  "Contact",
			Headers: []string{"Id", "LastName", "AccountId"},
			Rows: [][]string{
				{"C1", "", "A1"},
				{"C2", "Jones", "A2"},
			},
		},
		{
			Object:  "User",
			Headers: []string{"Id", "Name"},
			Rows:    [][]string{{"U1", "User 01"}, {"U2", "User 02"}},
		},
	}

	status, err := l.Run(context.Background(), datasets, nil, map[string]string{"U2": "pre-mapped"}, nil)
	require.NoError(t, err)

	notLoadable := 1 // U2 is seeded
	assert.Equal(t, 6, status.TotalCount)
	assert.Equal(t, status.TotalCount,
		len(status.Successes)+len(status.Failures)+len(status.Blocked)+notLoadable)
}

func TestRunRerunIsIdempotent(t *testing.T) {
	makeDatasets := func() []*Dataset {
		return []*Dataset{
			{
				Object:  "Account",
				Headers: []string{"Id", "Name", "OwnerId"},
				Rows:    [][]string{{"A1", "Account 01", "U1"}},
			},
			{
				Object:  "User",
				Headers: []string{"Id", "Name"},
				Rows:    [][]string{{"U1", "User 01"}},
			},
		}
	}

	store := newTestStore(accountDescription(), userDescription())
	l := newTestLoader(t, store, []string{"Account", "User"}, "")

	first, err := l.Run(context.Background(), makeDatasets(), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, first.Successes, 2)

	second, err := l.Run(context.Background(), makeDatasets(), nil, idMapContents(first.IDMap), nil)
	require.NoError(t, err)

	assert.Empty(t, second.Successes)
	assert.Empty(t, second.Failures)
	assert.Empty(t, second.Blocked)
	assert.Equal(t, idMapContents(first.IDMap), idMapContents(second.IDMap))
}

func TestRunMissingIDColumn(t *testing.T) {
	store := newTestStore(accountDescription())
	l := newTestLoader(t, store, []string{"Account"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Name"},
			Rows:    [][]string{{"Account 01"}},
		},
	}

	_, err := l.Run(context.Background(), datasets, nil, nil, nil)
	var missing *MissingIDColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Account", missing.Object)
}

func TestClassifyRecordsFirstBlockerOnly(t *testing.T) {
	store := newTestStore(accountDescription(), contactDescription(), userDescription())
	l := newTestLoader(t, store, []string{"Account", "Contact", "User"}, "")

	ds := &Dataset{
		Object:  "Contact",
		Headers: []string{"Id", "LastName", "AccountId", "OwnerId"},
		Rows:    [][]string{{"C1", "Smith", "A-missing", "U-missing"}},
	}
	cols, err := resolveColumns(ds, l.describer)
	require.NoError(t, err)

	c := classifyRows(ds, cols, NewTargetSet(nil), NewIDMap())
	require.Len(t, c.waitings, 1)
	assert.Equal(t, "AccountId", c.waitings[0].blockingField)
	assert.Equal(t, "A-missing", c.waitings[0].blockingID)
}

func TestIDMapNeverOverwrites(t *testing.T) {
	m := NewIDMap()
	assert.True(t, m.Set("a", "1"))
	assert.False(t, m.Set("a", "2"))
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 1, m.Len())
}

func TestIDMapReverseFirstWins(t *testing.T) {
	m := NewIDMap()
	m.Set("a", "shared")
	m.Set("b", "shared")
	m.Set("c", "own")
	rev := m.Reverse()
	assert.Equal(t, "a", rev["shared"])
	assert.Equal(t, "c", rev["own"])
}
