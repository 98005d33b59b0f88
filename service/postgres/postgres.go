// Package postgres adapts a PostgreSQL database to the service interfaces,
// treating each table as an object: the primary key plays the id field,
// foreign keys play reference fields.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	pgquery "github.com/pganalyze/pg_query_go/v2"

	"github.com/stomita/salesforce-migration-automatic/schema"
	"github.com/stomita/salesforce-migration-automatic/service"
	"github.com/stomita/salesforce-migration-automatic/util"
)

type PostgresConnection struct {
	config service.Config
	db     *sql.DB
	logger service.Logger

	mu  sync.Mutex
	pks map[string]string // table -> primary key column
}

func NewConnection(config service.Config, logger service.Logger) (*PostgresConnection, error) {
	db, err := sql.Open("postgres", postgresBuildDSN(config))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = service.NullLogger{}
	}
	return &PostgresConnection{
		config: config,
		db:     db,
		logger: logger,
		pks:    make(map[string]string),
	}, nil
}

func (c *PostgresConnection) Close() error {
	return c.db.Close()
}

func (c *PostgresConnection) Describe(ctx context.Context, object string) (*schema.ObjectDescription, error) {
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
		SELECT column_name, data_type, is_identity, is_generated
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	desc := &schema.ObjectDescription{Name: table}
	for rows.Next() {
		var name, dataType, isIdentity, isGenerated string
		if err := rows.Scan(&name, &dataType, &isIdentity, &isGenerated); err != nil {
			return nil, err
		}
		field := schema.FieldDescription{
			Name:       name,
			Type:       postgresFieldType(dataType),
			Createable: isIdentity != "YES" && isGenerated != "ALWAYS",
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

func (c *PostgresConnection) primaryKey(ctx context.Context, table string) (string, error) {
	var pk string
	err := c.db.QueryRowContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public' AND tc.table_name = $1
		ORDER BY kcu.ordinal_position
		LIMIT 1`, table).Scan(&pk)
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

func (c *PostgresConnection) foreignKeys(ctx context.Context, table string) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT kcu.column_name, ccu.table_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public' AND tc.table_name = $1`, table)
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

func postgresFieldType(dataType string) schema.FieldType {
	switch strings.ToLower(dataType) {
	case "smallint", "integer", "bigint":
		return schema.FieldTypeInt
	case "real", "double precision", "numeric", "money":
		return schema.FieldTypeDouble
	case "boolean":
		return schema.FieldTypeBoolean
	case "date":
		return schema.FieldTypeDate
	case "timestamp without time zone", "timestamp with time zone":
		return schema.FieldTypeDateTime
	}
	return schema.FieldTypeString
}

func (c *PostgresConnection) Query(ctx context.Context, q service.Query, each func(service.Record) error) error {
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

func (c *PostgresConnection) buildSelect(q service.Query) (string, error) {
	if q.Scope != "" {
		return "", fmt.Errorf("query scope is not supported by the postgres backend")
	}
	if q.Condition != "" {
		// Fail early on malformed user conditions instead of surfacing a
		// confusing error from the spliced statement.
		if _, err := pgquery.Parse("SELECT 1 WHERE " + q.Condition); err != nil {
			return "", fmt.Errorf("invalid condition %q: %w", q.Condition, err)
		}
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

func (c *PostgresConnection) Create(ctx context.Context, object string, records []service.Record) ([]service.SaveResult, error) {
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
			placeholders[j] = "$" + strconv.Itoa(j+1)
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
		c.logger.Println(stmt)

		if _, err := c.db.ExecContext(ctx, stmt, args...); err != nil {
			slog.Debug("insert failed", "table", table, "error", err)
			results[i] = service.SaveResult{Errors: []string{err.Error()}}
			continue
		}
		results[i] = service.SaveResult{Success: true, ID: id}
	}
	return results, nil
}

func (c *PostgresConnection) cachedPrimaryKey(ctx context.Context, table string) (string, error) {
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
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func postgresBuildDSN(config service.Config) string {
	host := config.Host
	if config.Socket != "" {
		host = config.Socket
	}
	parts := []string{
		"dbname=" + quoteDSNValue(config.DbName),
		"user=" + quoteDSNValue(config.User),
		"host=" + quoteDSNValue(host),
	}
	if config.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(config.Password))
	}
	if config.Port != 0 {
		parts = append(parts, "port="+strconv.Itoa(config.Port))
	}
	sslMode := config.SslMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts = append(parts, "sslmode="+sslMode)
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
}
