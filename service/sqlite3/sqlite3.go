// Package sqlite3 adapts a SQLite database file to the service interfaces.
package sqlite3

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
	"github.com/stomita/salesforce-migration-automatic/util"
)

type Sqlite3Connection struct {
	config service.Config
	db     *sql.DB
	logger service.Logger

	mu  sync.Mutex
	pks map[string]string
}

func NewConnection(config service.Config, logger service.Logger) (*Sqlite3Connection, error) {
	db, err := sql.Open("sqlite", config.DbName)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = service.NullLogger{}
	}
	return &Sqlite3Connection{
		config: config,
		db:     db,
		logger: logger,
		pks:    make(map[string]string),
	}, nil
}

func (c *Sqlite3Connection) Close() error {
	return c.db.Close()
}

func (c *Sqlite3Connection) Describe(ctx context.Context, object string) (*schema.ObjectDescription, error) {
	table, err := c.tableName(ctx, object)
	if err != nil {
		return nil, err
	}
	refs, err := c.foreignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	desc := &schema.ObjectDescription{Name: table}
	for rows.Next() {
		var (
			cid      int
			name     string
			declType sql.NullString
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		field := schema.FieldDescription{
			Name:       name,
			Type:       sqliteFieldType(declType.String),
			Createable: true,
		}
		if pk > 0 {
			field.Type = schema.FieldTypeID
			field.Createable = false
			c.mu.Lock()
			c.pks[table] = name
			c.mu.Unlock()
		} else if target, ok := refs[name]; ok {
			field.Type = schema.FieldTypeReference
			field.ReferenceTo = []string{target}
		}
		desc.Fields = append(desc.Fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return desc, nil
}

// tableName resolves the stored spelling of a table, case-insensitively.
func (c *Sqlite3Connection) tableName(ctx context.Context, object string) (string, error) {
	var name string
	err := c.db.QueryRowContext(ctx, `
		SELECT tbl_name FROM sqlite_master
		WHERE type = 'table' AND tbl_name LIKE ? AND tbl_name NOT LIKE 'sqlite_%'`, object).Scan(&name)
	if err == sql.ErrNoRows {
		return "", &schema.NotFoundError{Object: object}
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (c *Sqlite3Connection) foreignKeys(ctx context.Context, table string) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make(map[string]string)
	for rows.Next() {
		var (
			id, seq                   int
			target, from              string
			to                        sql.NullString
			onUpdate, onDelete, match string
		)
		if err := rows.Scan(&id, &seq, &target, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		refs[from] = target
	}
	return refs, rows.Err()
}

func sqliteFieldType(declType string) schema.FieldType {
	decl := strings.ToUpper(declType)
	switch {
	case strings.Contains(decl, "BOOL"):
		return schema.FieldTypeBoolean
	case strings.Contains(decl, "INT"):
		return schema.FieldTypeInt
	case strings.Contains(decl, "REAL"), strings.Contains(decl, "FLOA"), strings.Contains(decl, "DOUB"), strings.Contains(decl, "NUMERIC"), strings.Contains(decl, "DECIMAL"):
		return schema.FieldTypeDouble
	case strings.Contains(decl, "DATETIME"), strings.Contains(decl, "TIMESTAMP"):
		return schema.FieldTypeDateTime
	case strings.Contains(decl, "DATE"):
		return schema.FieldTypeDate
	}
	return schema.FieldTypeString
}

func (c *Sqlite3Connection) Query(ctx context.Context, q service.Query, each func(service.Record) error) error {
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

func (c *Sqlite3Connection) buildSelect(q service.Query) (string, error) {
	if q.Scope != "" {
		return "", fmt.Errorf("query scope is not supported by the sqlite3 backend")
	}
	fields := make([]string, len(q.Fields))
	for i, name := range q.Fields {
		fields[i] = quoteIdent(name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(fields, ", "), quoteIdent(q.Object))
	if where := q.WhereClause(quoteIdent); where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	} else if q.Offset > 0 {
		b.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.Offset))
	}
	return b.String(), nil
}

func (c *Sqlite3Connection) Create(ctx context.Context, object string, records []service.Record) ([]service.SaveResult, error) {
	table, err := c.tableName(ctx, object)
	if err != nil {
		return nil, err
	}
	pk, err := c.primaryKey(ctx, table)
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
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(table), strings.Join(columns, ", "), placeholders)
		c.logger.Println(stmt)

		if _, err := c.db.ExecContext(ctx, stmt, args...); err != nil {
			results[i] = service.SaveResult{Errors: []string{err.Error()}}
			continue
		}
		results[i] = service.SaveResult{Success: true, ID: id}
	}
	return results, nil
}

func (c *Sqlite3Connection) primaryKey(ctx context.Context, table string) (string, error) {
	c.mu.Lock()
	pk, ok := c.pks[table]
	c.mu.Unlock()
	if ok && pk != "" {
		return pk, nil
	}
	desc, err := c.Describe(ctx, table)
	if err != nil {
		return "", err
	}
	for _, field := range desc.Fields {
		if field.Type == schema.FieldTypeID {
			return field.Name, nil
		}
	}
	return "", fmt.Errorf("table %s has no primary key", table)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
