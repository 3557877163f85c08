package database

import (
	"context"

	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/query"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type GormOptions struct {
	// Driver 可选 mysql、sqlite
	Driver   string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite sqlite3"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port" def:"3306"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`
	// LogLevel gorm 自身的 SQL 日志级别：silent、error、warn、info
	LogLevel string `cfg:"logLevel" def:"silent" validate:"omitempty,oneof=silent error warn info"`
}

// Gorm 基于 gorm 的驱动，以 map 读写记录，不依赖结构体定义
type Gorm struct {
	db      *gorm.DB
	dialect string
}

var gormLogLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
}

func NewGormWithOptions(options *GormOptions) (*Gorm, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	dsn := buildDSN(&SQLOptions{
		Driver:   options.Driver,
		DSN:      options.DSN,
		Host:     options.Host,
		Port:     options.Port,
		Database: options.Database,
		Username: options.Username,
		Password: options.Password,
		Charset:  options.Charset,
	})

	var dialector gorm.Dialector
	if options.Driver == "mysql" {
		dialector = gormmysql.Open(dsn)
	} else {
		dialector = gormsqlite.Open(dsn)
	}

	level, ok := gormLogLevels[options.LogLevel]
	if !ok {
		level = gormlogger.Silent
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "gorm.Open %s failed", options.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB failed")
	}
	maxConns := options.MaxConns
	if isMemoryDSN(dsn) {
		maxConns = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(options.MaxIdle)

	return &Gorm{db: db, dialect: dialectOf(options.Driver)}, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate 与 SQL 驱动共用建表语句，gorm 的 AutoMigrate 需要结构体定义
func (g *Gorm) Migrate(ctx context.Context, model *rdb.TableModel) error {
	if err := model.Validate(); err != nil {
		return err
	}
	for _, stmt := range buildMigrateSQL(g.dialect, model) {
		if err := g.db.WithContext(ctx).Exec(stmt).Error; err != nil && !isAlreadyExistsError(err) {
			return errors.Wrapf(err, "migrate table %s failed", model.Table)
		}
	}
	return nil
}

func (g *Gorm) Insert(ctx context.Context, model *rdb.TableModel, records []rdb.Record, opts ...rdb.InsertOption) error {
	if len(records) == 0 {
		return nil
	}
	options := rdb.NewInsertOptions(opts...)

	columns := insertColumns(model, records)
	rows := make([]map[string]any, len(records))
	for i, record := range records {
		row := make(map[string]any, len(columns))
		for _, column := range columns {
			field, _ := model.Field(column)
			v, err := encodeSQLValue(field, record[column])
			if err != nil {
				return err
			}
			row[column] = v
		}
		rows[i] = row
	}

	tx := g.db.WithContext(ctx).Table(model.Table)
	if options.IgnoreConflict {
		tx = tx.Clauses(clause.OnConflict{DoNothing: true})
	}
	if err := tx.Create(rows).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
			return errors.Wrapf(rdb.ErrDuplicateKey, "insert into %s: %v", model.Table, err)
		}
		return errors.Wrapf(err, "insert into %s failed", model.Table)
	}
	return nil
}

func (g *Gorm) Find(ctx context.Context, model *rdb.TableModel, q query.Query, opts ...rdb.QueryOption) ([]rdb.Record, error) {
	where, args, err := whereOf(q)
	if err != nil {
		return nil, err
	}
	options := rdb.NewQueryOptions(opts...)

	tx := g.db.WithContext(ctx).Table(model.Table).Select(model.FieldNames()).Where(where, args...)
	for _, order := range options.OrderBy {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: order.Field}, Desc: order.Desc})
	}
	if options.Limit > 0 {
		tx = tx.Limit(options.Limit)
	}
	if options.Offset > 0 {
		tx = tx.Offset(options.Offset)
	}

	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "select from %s failed", model.Table)
	}
	records := make([]rdb.Record, len(rows))
	for i, row := range rows {
		records[i] = rdb.Record(row)
	}
	return records, nil
}

func (g *Gorm) Update(ctx context.Context, model *rdb.TableModel, q query.Query, values rdb.Record) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	where, args, err := whereOf(q)
	if err != nil {
		return 0, err
	}
	updates := make(map[string]any, len(values))
	for name, v := range values {
		field, ok := model.Field(name)
		if !ok {
			return 0, errors.Errorf("unknown column %s in table %s", name, model.Table)
		}
		encoded, err := encodeSQLValue(field, v)
		if err != nil {
			return 0, err
		}
		updates[name] = encoded
	}

	result := g.db.WithContext(ctx).Table(model.Table).Where(where, args...).Updates(updates)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) || isDuplicateKeyError(result.Error) {
			return 0, errors.Wrapf(rdb.ErrDuplicateKey, "update %s: %v", model.Table, result.Error)
		}
		return 0, errors.Wrapf(result.Error, "update %s failed", model.Table)
	}
	return result.RowsAffected, nil
}
