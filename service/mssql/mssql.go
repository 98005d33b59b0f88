// Package mssql adapts a SQL Server database to the service interfaces.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
	"github.com/stomita/salesforce-migration-automatic/util"
)

type MssqlConnection struct {
	config service.Config
	db     *sql.DB
	logger service.Logger

	mu  sync.Mutex
	pks map[string]string
}

func NewConnection(config service.Config, logger service.Logger) (*MssqlConnection, error) {
	db, err := sql.Open("sqlserver", mssqlBuildDSN(config))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = service.NullLogger{}
	}
	return &MssqlConnection{
		config: config,
		db:     db,
		logger: logger,
		pks:    make(map[string]string),
	}, nil
}

func (c *MssqlConnection) Close() error {
	return c.db.Close()
}

func (c *MssqlConnection) Describe(ctx context.Context, object string) (*schema.ObjectDescription, error) {
	table := strings.ToLower(object)
	pk, err := c.primaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	refs, err := c.foreignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT c.COLUMN_NAME, c.DATA_TYPE,
		       COLUMNPROPERTY(OBJECT_ID('dbo.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsIdentity'),
		       COLUMNPROPERTY(OBJECT_ID('dbo.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsComputed')
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = 'dbo' AND c.TABLE_NAME = @p1
		ORDER BY c.ORDINAL_POSITION`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	desc := &schema.ObjectDescription{Name: table}
	for rows.Next() {
		var (
			name, dataType       string
			isIdentity, computed sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &isIdentity, &computed); err != nil {
			return nil, err
		}
		field := schema.FieldDescription{
			Name:       name,
			Type:       mssqlFieldType(dataType),
			Createable: isIdentity.Int64 != 1 && computed.Int64 != 1,
		}
		if name == pk {
			field.Type = schema.FieldTypeID
			field.Createable = false
		} else if target, ok := refs[name]; ok {
			field.Type = schema.FieldTypeReference
			field.ReferenceTo = []string{target}
		}
		desc.Fields = append(desc.Fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(desc.Fields) == 0 {
		return nil, &schema.NotFoundError{Object: object}
	}
	return desc, nil
}

func (c *MssqlConnection) primaryKey(ctx context.Context, table string) (string, error) {
	var pk string
	err := c.db.QueryRowContext(ctx, `
		SELECT kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		  ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = 'dbo' AND tc.TABLE_NAME = @p1
		ORDER BY kcu.ORDINAL_POSITION
		OFFSET 0 ROWS FETCH NEXT 1 ROWS ONLY`, table).Scan(&pk)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.pks[table] = pk
	c.mu.Unlock()
	return pk, nil
}

func (c *MssqlConnection) foreignKeys(ctx context.Context, table string) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT cols.name, reftables.name
		FROM sys.foreign_key_columns fkc
		JOIN sys.tables tables ON tables.object_id = fkc.parent_object_id
		JOIN sys.columns cols ON cols.object_id = fkc.parent_object_id AND cols.column_id = fkc.parent_column_id
		JOIN sys.tables reftables ON reftables.object_id = fkc.referenced_object_id
		WHERE tables.name = @p1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make(map[string]string)
	for rows.Next() {
		var column, target string
		if err := rows.Scan(&column, &target); err != nil {
			return nil, err
		}
		refs[column] = target
	}
	return refs, rows.Err()
}

func mssqlFieldType(dataType string) schema.FieldType {
	switch strings.ToLower(dataType) {
	case "tinyint", "smallint", "int", "bigint":
		return schema.FieldTypeInt
	case "real", "float", "decimal", "numeric", "money", "smallmoney":
		return schema.FieldTypeDouble
	case "bit":
		return schema.FieldTypeBoolean
	case "date":
		return schema.FieldTypeDate
	case "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return schema.FieldTypeDateTime
	}
	return schema.FieldTypeString
}

func (c *MssqlConnection) Query(ctx context.Context, q service.Query, each func(service.Record) error) error {
	stmt, err := c.buildSelect(q)
	if err != nil {
		return err
	}
	c.logger.Println(stmt)

	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]any, len(q.Fields))
		ptrs := make([]any, len(q.Fields))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		rec := make(service.Record, len(q.Fields))
		for i, name := range q.Fields {
			rec[name] = service.ValueOf(vals[i])
		}
		if err := each(rec); err != nil {
			if err == service.ErrStopIteration {
				return nil
			}
			return err
		}
	}
	return rows.Err()
}

// buildSelect renders TOP for bare limits; OFFSET ... FETCH requires an ORDER
// BY in T-SQL, so offsets without one sort by the first selected field.
func (c *MssqlConnection) buildSelect(q service.Query) (string, error) {
	if q.Scope != "" {
		return "", fmt.Errorf("query scope is not supported by the mssql backend")
	}
	fields := make([]string, len(q.Fields))
	for i, name := range q.Fields {
		fields[i] = quoteIdent(name)
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.Limit > 0 && q.Offset == 0 {
		fmt.Fprintf(&b, "TOP %d ", q.Limit)
	}
	fmt.Fprintf(&b, "%s FROM %s", strings.Join(fields, ", "), quoteIdent(q.Object))
	if where := q.WhereClause(quoteIdent); where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	orderBy := q.OrderBy
	if orderBy == "" && q.Offset > 0 && len(q.Fields) > 0 {
		orderBy = quoteIdent(q.Fields[0])
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d ROWS", q.Offset)
		if q.Limit > 0 {
			fmt.Fprintf(&b, " FETCH NEXT %d ROWS ONLY", q.Limit)
		}
	}
	return b.String(), nil
}

func (c *MssqlConnection) Create(ctx context.Context, object string, records []service.Record) ([]service.SaveResult, error) {
	table := strings.ToLower(object)
	pk, err := c.cachedPrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}

	results := make([]service.SaveResult, len(records))
	for i, rec := range records {
		id := uuid.NewString()
		columns := []string{quoteIdent(pk)}
		args := []any{id}
		for name, value := range util.CanonicalMapIter(rec) {
			columns = append(columns, quoteIdent(name))
			args = append(args, value.Arg())
		}
		placeholders := make([]string, len(args))
		for j := range args {
			placeholders[j] = "@p" + strconv.Itoa(j+1)
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
		c.logger.Println(stmt)

		if _, err := c.db.ExecContext(ctx, stmt, args...); err != nil {
			results[i] = service.SaveResult{Errors: []string{err.Error()}}
			continue
		}
		results[i] = service.SaveResult{Success: true, ID: id}
	}
	return results, nil
}

func (c *MssqlConnection) cachedPrimaryKey(ctx context.Context, table string) (string, error) {
	c.mu.Lock()
	pk, ok := c.pks[table]
	c.mu.Unlock()
	if ok && pk != "" {
		return pk, nil
	}
	pk, err := c.primaryKey(ctx, table)
	if err != nil {
		return "", err
	}
	if pk == "" {
		return "", fmt.Errorf("table %s has no primary key", table)
	}
	return pk, nil
}

func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func mssqlBuildDSN(config service.Config) string {
	query := url.Values{}
	query.Add("database", config.DbName)

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(config.User, config.Password),
		Host:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
