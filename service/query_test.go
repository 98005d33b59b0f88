package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteString(t *testing.T) {
	assert.Equal(t, "''", QuoteString(""))
	assert.Equal(t, "'hello world'", QuoteString("hello world"))
	assert.Equal(t, "'it''s'", QuoteString("it's"))
}

func TestQuerySOQL(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		expected string
	}{
		{
			name:     "plain",
			query:    Query{Object: "Account", Fields: []string{"Id", "Name"}},
			expected: "SELECT Id, Name FROM Account",
		},
		{
			name: "filters joined with AND plus condition",
			query: Query{
				Object:    "Account",
				Fields:    []string{"Id"},
				Filters:   []Filter{{Field: "Name", In: []string{"a", "b"}}, {Field: "Website", In: []string{"w"}}},
				Condition: "IsActive = true",
			},
			expected: "SELECT Id FROM Account WHERE (Name IN ('a', 'b') AND Website IN ('w')) AND IsActive = true",
		},
		{
			name: "filters joined with OR",
			query: Query{
				Object:     "Contact",
				Fields:     []string{"Id"},
				Filters:    []Filter{{Field: "AccountId", In: []string{"x"}}, {Field: "OwnerId", In: []string{"y"}}},
				FilterJoin: "OR",
			},
			expected: "SELECT Id FROM Contact WHERE AccountId IN ('x') OR OwnerId IN ('y')",
		},
		{
			name: "scope order limit offset",
			query: Query{
				Object:  "Account",
				Fields:  []string{"Id"},
				Scope:   "everything",
				OrderBy: "CreatedDate DESC",
				Limit:   10,
				Offset:  5,
			},
			expected: "SELECT Id FROM Account USING SCOPE everything ORDER BY CreatedDate DESC LIMIT 10 OFFSET 5",
		},
		{
			name: "empty filter is dropped",
			query: Query{
				Object:  "Account",
				Fields:  []string{"Id"},
				Filters: []Filter{{Field: "Name", In: nil}},
			},
			expected: "SELECT Id FROM Account",
		},
		{
			name: "quoted literal in filter",
			query: Query{
				Object:  "Account",
				Fields:  []string{"Id"},
				Filters: []Filter{{Field: "Name", In: []string{"O'Neil"}}},
			},
			expected: "SELECT Id FROM Account WHERE Name IN ('O''Neil')",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.query.SOQL())
		})
	}
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "", Null().Text())
	assert.Equal(t, "42", Int(42).Text())
	assert.Equal(t, "1.5", Float(1.5).Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, "x", String("x").Text())
}

func TestValueArg(t *testing.T) {
	assert.Nil(t, Null().Arg())
	assert.Equal(t, int64(42), Int(42).Arg())
	assert.Equal(t, 1.5, Float(1.5).Arg())
	assert.Equal(t, false, Bool(false).Arg())
	assert.Equal(t, "x", String("x").Arg())
}

func TestValueOf(t *testing.T) {
	assert.True(t, ValueOf(nil).IsNull())
	assert.Equal(t, KindInt, ValueOf(int64(1)).Kind())
	assert.Equal(t, KindFloat, ValueOf(1.0).Kind())
	assert.Equal(t, KindBool, ValueOf(true).Kind())
	assert.Equal(t, "abc", ValueOf([]byte("abc")).Text())
	assert.Equal(t, "abc", ValueOf("abc").Text())
}
