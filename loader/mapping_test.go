package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/stomita/salesforce-migration-automatic/service"
)

func TestDefaultMappingUnmarshalYAML(t *testing.T) {
	var literal DefaultMapping
	require.NoError(t, yaml.Unmarshal([]byte(`"005000000000001"`), &literal))
	assert.Equal(t, "005000000000001", literal.ID)

	var query DefaultMapping
	require.NoError(t, yaml.Unmarshal([]byte("condition: Name = 'X'\norderby: CreatedDate DESC\noffset: 2\n"), &query))
	assert.Empty(t, query.ID)
	assert.Equal(t, "Name = 'X'", query.Condition)
	assert.Equal(t, "CreatedDate DESC", query.OrderBy)
	assert.Equal(t, 2, query.Offset)
}

func TestMappingPolicyKeyFieldShorthand(t *testing.T) {
	single := MappingPolicy{Object: "Account", KeyField: "Name"}
	listed := MappingPolicy{Object: "Account", KeyFields: []string{"Name"}}
	assert.Equal(t, listed.keyFieldList(), single.keyFieldList())
	assert.Nil(t, MappingPolicy{Object: "Account"}.keyFieldList())
}

func TestRunMappingByCompositeKey(t *testing.T) {
	store := newTestStore(accountDescription())
	store.InsertRecord("Account", "T-other", service.Record{
		"Name":    service.String("Account 01"),
		"Website": service.String("foo.example.org"),
	})
	store.InsertRecord("Account", "T-match", service.Record{
		"Name":    service.String("Account 01"),
		"Website": service.String("example.com"),
	})
	l := newTestLoader(t, store, []string{"Account"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name", "Website"},
			Rows:    [][]string{{"A1", "Account 01", "example.com"}},
		},
	}
	policies := []MappingPolicy{{Object: "Account", KeyFields: []string{"Name", "Website"}}}

	status, err := l.Run(context.Background(), datasets, policies, nil, nil)
	require.NoError(t, err)

	target, ok := status.IDMap.Get("A1")
	require.True(t, ok)
	assert.Equal(t, "T-match", target)
	// the mapped row is already present on the target, nothing to upload
	assert.Empty(t, status.Successes)
	assert.Empty(t, status.Blocked)
}

func TestRunDefaultMappings(t *testing.T) {
	store := newTestStore(accountDescription(), contactDescription(), userDescription())
	store.InsertRecord("Account", "T-existing", service.Record{
		"Name":        service.String("Existing Account"),
		"CreatedDate": service.String("2020-01-02T00:00:00Z"),
	})
	store.InsertRecord("Account", "T-older", service.Record{
		"Name":        service.String("Existing Account"),
		"CreatedDate": service.String("2019-01-02T00:00:00Z"),
	})
	l := newTestLoader(t, store, []string{"Account", "Contact", "User"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name"},
			Rows:    [][]string{{"A1", "Acme"}},
		},
		{
			Object:  "Contact",
			Headers: []string{"Id", "LastName", "AccountId", "OwnerId"},
			Rows:    [][]string{{"C1", "Smith", "A1", "U1"}},
		},
		{
			Object:  "User",
			Headers: []string{"Id", "Name"},
			Rows:    [][]string{{"U1", "User 01"}},
		},
	}
	policies := []MappingPolicy{
		{Object: "Account", DefaultMapping: &DefaultMapping{
			Condition: "Name = 'Existing Account'",
			OrderBy:   "CreatedDate DESC",
		}},
		{Object: "User", DefaultMapping: &DefaultMapping{ID: "U-literal"}},
	}

	status, err := l.Run(context.Background(), datasets, policies, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, status.Blocked)
	accountTarget, _ := status.IDMap.Get("A1")
	assert.Equal(t, "T-existing", accountTarget)
	userTarget, _ := status.IDMap.Get("U1")
	assert.Equal(t, "U-literal", userTarget)

	contacts := store.Records("Contact")
	require.Len(t, contacts, 1)
	assert.Equal(t, "T-existing", contacts[0]["AccountId"].Text())
	assert.Equal(t, "U-literal", contacts[0]["OwnerId"].Text())
}

func TestRunDefaultMappingOnlyFillsUnmapped(t *testing.T) {
	store := newTestStore(accountDescription())
	store.InsertRecord("Account", "T-key", service.Record{
		"Name": service.String("Account 01"),
	})
	store.InsertRecord("Account", "T-default", service.Record{
		"Name": service.String("Fallback"),
	})
	l := newTestLoader(t, store, []string{"Account"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name"},
			Rows: [][]string{
				{"A1", "Account 01"},
				{"A2", "Nowhere"},
			},
		},
	}
	policies := []MappingPolicy{{
		Object:         "Account",
		KeyField:       "Name",
		DefaultMapping: &DefaultMapping{Condition: "Name = 'Fallback'"},
	}}

	status, err := l.Run(context.Background(), datasets, policies, nil, nil)
	require.NoError(t, err)

	a1, _ := status.IDMap.Get("A1")
	a2, _ := status.IDMap.Get("A2")
	assert.Equal(t, "T-key", a1)
	assert.Equal(t, "T-default", a2)
}

func TestRunUnknownMappingObject(t *testing.T) {
	store := newTestStore(accountDescription())
	l := newTestLoader(t, store, []string{"Account"}, "")

	datasets := []*Dataset{
		{
			Object:  "Account",
			Headers: []string{"Id", "Name"},
			Rows:    [][]string{{"A1", "Acme"}},
		},
	}
	policies := []MappingPolicy{{Object: "Opportunity", KeyField: "Name"}}

	_, err := l.Run(context.Background(), datasets, policies, nil, nil)
	var unknown *UnknownMappingObjectError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Opportunity", unknown.Object)
}
