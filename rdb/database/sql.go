package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/query"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

type SQLOptions struct {
	// Driver 可选 mysql、sqlite3（cgo，mattn/go-sqlite3）、sqlite（纯 Go，modernc.org/sqlite）
	Driver   string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3 sqlite"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port" def:"3306"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`
}

// SQL 基于 database/sql 的驱动
type SQL struct {
	db      *sql.DB
	dialect string
}

func buildDSN(options *SQLOptions) string {
	if options.DSN != "" {
		return options.DSN
	}
	if options.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=UTC",
			options.Username, options.Password, options.Host, options.Port, options.Database, options.Charset)
	}
	return options.Database
}

func NewSQLWithOptions(options *SQLOptions) (*SQL, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	dsn := buildDSN(options)

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open %s failed", options.Driver)
	}

	maxConns := options.MaxConns
	if isMemoryDSN(dsn) {
		// 内存数据库每个连接互相独立，只能使用单连接
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(options.MaxIdle)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping database failed")
	}

	return &SQL{db: db, dialect: dialectOf(options.Driver)}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func dialectOf(driver string) string {
	if driver == "mysql" {
		return "mysql"
	}
	return "sqlite"
}

func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) Migrate(ctx context.Context, model *rdb.TableModel) error {
	if err := model.Validate(); err != nil {
		return err
	}
	for _, stmt := range buildMigrateSQL(s.dialect, model) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil && !isAlreadyExistsError(err) {
			return errors.Wrapf(err, "migrate table %s failed", model.Table)
		}
	}
	return nil
}

func (s *SQL) Insert(ctx context.Context, model *rdb.TableModel, records []rdb.Record, opts ...rdb.InsertOption) error {
	if len(records) == 0 {
		return nil
	}
	stmt, args, err := buildInsertSQL(s.dialect, model, records, rdb.NewInsertOptions(opts...))
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		if isDuplicateKeyError(err) {
			return errors.Wrapf(rdb.ErrDuplicateKey, "insert into %s: %v", model.Table, err)
		}
		return errors.Wrapf(err, "insert into %s failed", model.Table)
	}
	return nil
}

func (s *SQL) Find(ctx context.Context, model *rdb.TableModel, q query.Query, opts ...rdb.QueryOption) ([]rdb.Record, error) {
	where, args, err := whereOf(q)
	if err != nil {
		return nil, err
	}
	options := rdb.NewQueryOptions(opts...)
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s", strings.Join(model.FieldNames(), ", "), model.Table, where, orderAndLimitSQL(options))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "select from %s failed", model.Table)
	}
	defer rows.Close()

	records := []rdb.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "select from %s failed", model.Table)
	}
	return records, nil
}

func (s *SQL) Update(ctx context.Context, model *rdb.TableModel, q query.Query, values rdb.Record) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	where, whereArgs, err := whereOf(q)
	if err != nil {
		return 0, err
	}
	sets, args, err := buildSetClause(model, values)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", model.Table, sets, where)
	result, err := s.db.ExecContext(ctx, stmt, append(args, whereArgs...)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, errors.Wrapf(rdb.ErrDuplicateKey, "update %s: %v", model.Table, err)
		}
		return 0, errors.Wrapf(err, "update %s failed", model.Table)
	}
	return result.RowsAffected()
}

func whereOf(q query.Query) (string, []any, error) {
	if q == nil {
		return "1=1", nil, nil
	}
	where, args, err := q.ToSQL()
	if err != nil {
		return "", nil, errors.WithMessage(err, "build where clause failed")
	}
	for i, arg := range args {
		args[i] = encodeSQLArg(arg)
	}
	return where, args, nil
}

func orderAndLimitSQL(options *rdb.QueryOptions) string {
	var sb strings.Builder
	if len(options.OrderBy) > 0 {
		orders := make([]string, len(options.OrderBy))
		for i, order := range options.OrderBy {
			orders[i] = order.Field + " ASC"
			if order.Desc {
				orders[i] = order.Field + " DESC"
			}
		}
		sb.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}
	if options.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", options.Limit)
		if options.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", options.Offset)
		}
	} else if options.Offset > 0 {
		// MySQL 和 SQLite 都不支持只有 OFFSET 的写法
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", int64(1)<<62, options.Offset)
	}
	return sb.String()
}

func buildMigrateSQL(dialect string, model *rdb.TableModel) []string {
	columns := make([]string, 0, len(model.Fields)+1)
	for _, field := range model.Fields {
		columns = append(columns, buildColumnDefinition(dialect, field))
	}
	columns = append(columns, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(model.PrimaryKey, ", ")))

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", model.Table, strings.Join(columns, ",\n  ")),
	}
	for _, index := range model.Indexes {
		indexType := "INDEX"
		if index.Unique {
			indexType = "UNIQUE INDEX"
		}
		// MySQL 不支持 CREATE INDEX IF NOT EXISTS，重复创建的错误在执行时忽略
		ifNotExists := " IF NOT EXISTS"
		if dialect == "mysql" {
			ifNotExists = ""
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %s%s %s ON %s (%s)",
			indexType, ifNotExists, index.Name, model.Table, strings.Join(index.Fields, ", ")))
	}
	return stmts
}

func buildColumnDefinition(dialect string, field rdb.FieldDefinition) string {
	parts := []string{field.Name, sqlType(dialect, field.Type, field.Size)}
	if field.Required {
		parts = append(parts, "NOT NULL")
	}
	if field.Default != nil {
		parts = append(parts, "DEFAULT "+formatDefaultValue(field.Default))
	}
	return strings.Join(parts, " ")
}

func sqlType(dialect string, fieldType rdb.FieldType, size int) string {
	if dialect != "mysql" {
		switch fieldType {
		case rdb.FieldTypeInt, rdb.FieldTypeBool:
			return "INTEGER"
		case rdb.FieldTypeFloat:
			return "REAL"
		}
		return "TEXT"
	}
	switch fieldType {
	case rdb.FieldTypeString:
		if size <= 0 {
			size = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case rdb.FieldTypeInt:
		return "BIGINT"
	case rdb.FieldTypeFloat:
		return "DOUBLE"
	case rdb.FieldTypeBool:
		return "BOOLEAN"
	case rdb.FieldTypeDate:
		return "DATETIME(6)"
	case rdb.FieldTypeJSON:
		return "JSON"
	}
	return "VARCHAR(255)"
}

func formatDefaultValue(value any) string {
	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(value)
}

// buildInsertSQL 以模型中的列顺序生成多行 INSERT，记录中缺失的列写入 NULL
func buildInsertSQL(dialect string, model *rdb.TableModel, records []rdb.Record, options *rdb.InsertOptions) (string, []any, error) {
	columns := insertColumns(model, records)
	if len(columns) == 0 {
		return "", nil, errors.Errorf("no column to insert into %s", model.Table)
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	rows := make([]string, len(records))
	args := make([]any, 0, len(records)*len(columns))
	for i, record := range records {
		rows[i] = placeholder
		for _, column := range columns {
			field, _ := model.Field(column)
			v, err := encodeSQLValue(field, record[column])
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
		}
	}

	verb := "INSERT INTO"
	if options.IgnoreConflict {
		verb = "INSERT OR IGNORE INTO"
		if dialect == "mysql" {
			verb = "INSERT IGNORE INTO"
		}
	}
	return fmt.Sprintf("%s %s (%s) VALUES %s", verb, model.Table, strings.Join(columns, ", "), strings.Join(rows, ", ")), args, nil
}

func insertColumns(model *rdb.TableModel, records []rdb.Record) []string {
	var columns []string
	for _, field := range model.Fields {
		for _, record := range records {
			if _, ok := record[field.Name]; ok {
				columns = append(columns, field.Name)
				break
			}
		}
	}
	return columns
}

func buildSetClause(model *rdb.TableModel, values rdb.Record) (string, []any, error) {
	var sets []string
	var args []any
	for _, field := range model.Fields {
		v, ok := values[field.Name]
		if !ok {
			continue
		}
		encoded, err := encodeSQLValue(field, v)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, field.Name+" = ?")
		args = append(args, encoded)
	}
	for name := range values {
		if !model.HasField(name) {
			return "", nil, errors.Errorf("unknown column %s in table %s", name, model.Table)
		}
	}
	return strings.Join(sets, ", "), args, nil
}

// encodeSQLValue json 字段序列化为字符串，时间统一为 UTC
func encodeSQLValue(field rdb.FieldDefinition, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if field.Type == rdb.FieldTypeJSON {
		if s, ok := v.(string); ok {
			return s, nil
		}
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal json column %s failed", field.Name)
		}
		return string(buf), nil
	}
	return encodeSQLArg(v), nil
}

func encodeSQLArg(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

type rowScanner interface {
	Columns() ([]string, error)
	Scan(dest ...any) error
}

func scanRecord(rows rowScanner) (rdb.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns failed")
	}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, errors.Wrap(err, "scan row failed")
	}
	record := make(rdb.Record, len(columns))
	for i, column := range columns {
		record[column] = values[i]
	}
	return record, nil
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	// modernc.org/sqlite 的错误类型只暴露错误码，按消息判断
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

func isAlreadyExistsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "Duplicate key name")
}
