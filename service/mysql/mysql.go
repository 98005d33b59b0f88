// Package mysql adapts a MySQL database to the service interfaces.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	driver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
	"github.com/stomita/salesforce-migration-automatic/util"
)

type MysqlConnection struct {
	config service.Config
	db     *sql.DB
	logger service.Logger

	mu  sync.Mutex
	pks map[string]string
}

func NewConnection(config service.Config, logger service.Logger) (*MysqlConnection, error) {
	db, err := sql.Open("mysql", mysqlBuildDSN(config))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = service.NullLogger{}
	}
	return &MysqlConnection{
		config: config,
		db:     db,
		logger: logger,
		pks:    make(map[string]string),
	}, nil
}

func (c *MysqlConnection) Close() error {
	return c.db.Close()
}

func (c *MysqlConnection) Describe(ctx context.Context, object string) (*schema.ObjectDescription, error) {
	table := strings.ToLower(object)
	refs, err := c.foreignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT column_name, data_type, column_key, extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	desc := &schema.ObjectDescription{Name: table}
	for rows.Next() {
		var name, dataType, columnKey, extra string
		if err := rows.Scan(&name, &dataType, &columnKey, &extra); err != nil {
			return nil, err
		}
		extra = strings.ToLower(extra)
		field := schema.FieldDescription{
			Name: name,
			Type: mysqlFieldType(dataType),
			Createable: !strings.Contains(extra, "auto_increment") &&
				!strings.Contains(extra, "generated"),
		}
		if columnKey == "PRI" {
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
	if len(desc.Fields) == 0 {
		return nil, &schema.NotFoundError{Object: object}
	}
	return desc, nil
}

func (c *MysqlConnection) foreignKeys(ctx context.Context, table string) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT column_name, referenced_table_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL`, table)
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

func mysqlFieldType(dataType string) schema.FieldType {
	switch strings.ToLower(dataType) {
	case "tinyint", "smallint", "mediumint", "int", "bigint":
		return schema.FieldTypeInt
	case "float", "double", "decimal":
		return schema.FieldTypeDouble
	case "date":
		return schema.FieldTypeDate
	case "datetime", "timestamp":
		return schema.FieldTypeDateTime
	}
	return schema.FieldTypeString
}

func (c *MysqlConnection) Query(ctx context.Context, q service.Query, each func(service.Record) error) error {
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

func (c *MysqlConnection) buildSelect(q service.Query) (string, error) {
	if q.Scope != "" {
		return "", fmt.Errorf("query scope is not supported by the mysql backend")
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
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.Offset))
	}
	return b.String(), nil
}

func (c *MysqlConnection) Create(ctx context.Context, object string, records []service.Record) ([]service.SaveResult, error) {
	table := strings.ToLower(object)
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

func (c *MysqlConnection) primaryKey(ctx context.Context, table string) (string, error) {
	c.mu.Lock()
	pk, ok := c.pks[table]
	c.mu.Unlock()
	if ok && pk != "" {
		return pk, nil
	}
	err := c.db.QueryRowContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ? AND column_key = 'PRI'
		ORDER BY ordinal_position
		LIMIT 1`, table).Scan(&pk)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("table %s has no primary key", table)
	}
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.pks[table] = pk
	c.mu.Unlock()
	return pk, nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func mysqlBuildDSN(config service.Config) string {
	c := driver.NewConfig()
	c.User = config.User
	c.Passwd = config.Password
	c.DBName = config.DbName
	if config.Socket == "" {
		c.Net = "tcp"
		c.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	} else {
		c.Net = "unix"
		c.Addr = config.Socket
	}
	return c.FormatDSN()
}
