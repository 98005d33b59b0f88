package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
)

func typedDescription() *schema.ObjectDescription {
	return &schema.ObjectDescription{
		Name: "Widget",
		Fields: []schema.FieldDescription{
			{Name: "Id", Type: schema.FieldTypeID},
			{Name: "Count", Type: schema.FieldTypeInt, Createable: true},
			{Name: "Price", Type: schema.FieldTypeCurrency, Createable: true},
			{Name: "Ratio", Type: schema.FieldTypePercent, Createable: true},
			{Name: "Active", Type: schema.FieldTypeBoolean, Createable: true},
			{Name: "DueDate", Type: schema.FieldTypeDate, Createable: true},
			{Name: "Title", Type: schema.FieldTypeString, Createable: true},
			{Name: "ReadOnly", Type: schema.FieldTypeString, Createable: false},
			{Name: "OwnerId", Type: schema.FieldTypeReference, Createable: true, ReferenceTo: []string{"User"}},
		},
	}
}

func testConvert(t *testing.T, headers []string, row []string, ids *IDMap) RecordIDPair {
	t.Helper()
	store := newTestStore(typedDescription(), userDescription())
	describer, err := schema.NewDescriber(context.Background(), store, []string{"Widget", "User"}, "")
	require.NoError(t, err)

	ds := &Dataset{Object: "Widget", Headers: headers, Rows: [][]string{row}}
	cols, err := resolveColumns(ds, describer)
	require.NoError(t, err)
	return convertRow(ds, cols, row, ids)
}

func TestConvertRowCoercion(t *testing.T) {
	ids := NewIDMap()
	ids.Set("U1", "target-user")

	pair := testConvert(t,
		[]string{"Id", "Count", "Price", "Ratio", "Active", "DueDate", "Title", "ReadOnly", "OwnerId", "Unknown"},
		[]string{"W1", "42", "9.95", "0.5", "false", "2021-04-01", "A widget", "nope", "U1", "junk"},
		ids)

	assert.Equal(t, "W1", pair.OrigID)
	assert.Equal(t, service.Int(42), pair.Record["Count"])
	assert.Equal(t, service.Float(9.95), pair.Record["Price"])
	assert.Equal(t, service.Float(0.5), pair.Record["Ratio"])
	assert.Equal(t, service.Bool(false), pair.Record["Active"])
	assert.Equal(t, service.String("2021-04-01"), pair.Record["DueDate"])
	assert.Equal(t, service.String("A widget"), pair.Record["Title"])
	assert.Equal(t, service.String("target-user"), pair.Record["OwnerId"])

	// the id cell never joins the outgoing record
	_, ok := pair.Record["Id"]
	assert.False(t, ok)
	// non-createable fields are dropped
	_, ok = pair.Record["ReadOnly"]
	assert.False(t, ok)
	// headers unknown to the schema are skipped
	_, ok = pair.Record["Unknown"]
	assert.False(t, ok)
}

func TestConvertRowBooleanCells(t *testing.T) {
	trueCells := []string{"1", "y", "yes", "true", "TRUE", "t", "anything"}
	falseCells := []string{"", "0", "n", "N", "f", "F", "false", "FALSE"}

	for _, cell := range trueCells {
		pair := testConvert(t, []string{"Id", "Active"}, []string{"W1", cell}, NewIDMap())
		assert.Equal(t, service.Bool(true), pair.Record["Active"], "cell %q", cell)
	}
	for _, cell := range falseCells {
		pair := testConvert(t, []string{"Id", "Active"}, []string{"W1", cell}, NewIDMap())
		assert.Equal(t, service.Bool(false), pair.Record["Active"], "cell %q", cell)
	}
}

func TestConvertRowNonNumericCellsDropped(t *testing.T) {
	pair := testConvert(t,
		[]string{"Id", "Count", "Price"},
		[]string{"W1", "not-a-number", ""},
		NewIDMap())

	_, ok := pair.Record["Count"]
	assert.False(t, ok)
	_, ok = pair.Record["Price"]
	assert.False(t, ok)
}

func TestConvertRowEmptyDateDropped(t *testing.T) {
	pair := testConvert(t, []string{"Id", "DueDate"}, []string{"W1", ""}, NewIDMap())
	_, ok := pair.Record["DueDate"]
	assert.False(t, ok)
}

func TestConvertRowUnmappedReferenceIsNull(t *testing.T) {
	pair := testConvert(t, []string{"Id", "OwnerId"}, []string{"W1", "U-unknown"}, NewIDMap())
	v, ok := pair.Record["OwnerId"]
	require.True(t, ok)
	assert.True(t, v.IsNull())
}
