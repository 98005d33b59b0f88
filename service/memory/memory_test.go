package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
)

func widgetDescription() *schema.ObjectDescription {
	return &schema.ObjectDescription{
		Name: "Widget",
		Fields: []schema.FieldDescription{
			{Name: "Id", Type: schema.FieldTypeID},
			{Name: "Name", Type: schema.FieldTypeString, Createable: true},
		},
	}
}

func TestQueryFiltersAndCondition(t *testing.T) {
	store := NewStore()
	store.DefineObject(widgetDescription())
	store.InsertRecord("Widget", "W1", service.Record{"Name": service.String("one")})
	store.InsertRecord("Widget", "W2", service.Record{"Name": service.String("two")})
	store.InsertRecord("Widget", "W3", service.Record{"Name": service.String("two")})

	collect := func(q service.Query) []string {
		var ids []string
		err := store.Query(context.Background(), q, func(rec service.Record) error {
			ids = append(ids, rec["Id"].Text())
			return nil
		})
		require.NoError(t, err)
		return ids
	}

	assert.Equal(t, []string{"W1", "W2", "W3"}, collect(service.Query{Object: "Widget", Fields: []string{"Id"}}))
	assert.Equal(t, []string{"W2", "W3"}, collect(service.Query{
		Object:    "Widget",
		Fields:    []string{"Id"},
		Condition: "Name = 'two'",
	}))
	assert.Equal(t, []string{"W1", "W2", "W3"}, collect(service.Query{
		Object:     "Widget",
		Fields:     []string{"Id"},
		Filters:    []service.Filter{{Field: "Id", In: []string{"W1"}}, {Field: "Name", In: []string{"two"}}},
		FilterJoin: "OR",
	}))
	assert.Equal(t, []string{"W2"}, collect(service.Query{
		Object:  "Widget",
		Fields:  []string{"Id"},
		Filters: []service.Filter{{Field: "Name", In: []string{"two"}}},
		Limit:   1,
	}))
	assert.Equal(t, []string{"W3"}, collect(service.Query{
		Object:  "Widget",
		Fields:  []string{"Id"},
		Filters: []service.Filter{{Field: "Name", In: []string{"two"}}},
		Offset:  1,
	}))
}

func TestCreateAssignsIDs(t *testing.T) {
	store := NewStore()
	store.DefineObject(widgetDescription())
	store.SetIDGenerator(func() string { return "fixed" })

	results, err := store.Create(context.Background(), "Widget", []service.Record{
		{"Name": service.String("one")},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "fixed", results[0].ID)

	records := store.Records("Widget")
	require.Len(t, records, 1)
	assert.Equal(t, "fixed", records[0]["Id"].Text())
}

func TestCreateRequiredField(t *testing.T) {
	store := NewStore()
	store.DefineObject(widgetDescription())
	store.RequireField("Widget", "Name")

	results, err := store.Create(context.Background(), "Widget", []service.Record{
		{"Name": service.Null()},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].Errors)
}
