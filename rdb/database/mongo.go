package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/query"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoOptions struct {
	URI         string        `cfg:"uri"`
	Host        string        `cfg:"host" def:"localhost"`
	Port        int           `cfg:"port" def:"27017"`
	Database    string        `cfg:"database" validate:"required"`
	Username    string        `cfg:"username"`
	Password    string        `cfg:"password"`
	AuthSource  string        `cfg:"authSource" def:"admin"`
	Timeout     time.Duration `cfg:"timeout" def:"30s"`
	MaxPoolSize uint64        `cfg:"maxPoolSize" def:"100"`
	MinPoolSize uint64        `cfg:"minPoolSize"`
}

// Mongo 每张表对应一个集合，主键列作为普通字段存储并建立唯一索引，_id 由 MongoDB 生成且不对外暴露
type Mongo struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoWithOptions(opts *MongoOptions) (*Mongo, error) {
	if opts == nil {
		return nil, errors.New("options is nil")
	}
	uri := opts.URI
	if uri == "" {
		if opts.Username != "" && opts.Password != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=%s",
				opts.Username, opts.Password, opts.Host, opts.Port, opts.Database, opts.AuthSource)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d/%s", opts.Host, opts.Port, opts.Database)
		}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	if opts.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	}
	clientOptions.SetMinPoolSize(opts.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb failed")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongodb failed")
	}

	return &Mongo{
		client:   client,
		database: client.Database(opts.Database),
	}, nil
}

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}

// Migrate 集合在首次写入时自动创建，这里只建立主键唯一索引和普通索引
func (m *Mongo) Migrate(ctx context.Context, model *rdb.TableModel) error {
	if err := model.Validate(); err != nil {
		return err
	}
	collection := m.database.Collection(model.Table)

	indexes := append([]rdb.IndexDefinition{{
		Name:   "pk_" + model.Table,
		Fields: model.PrimaryKey,
		Unique: true,
	}}, model.Indexes...)

	models := make([]mongo.IndexModel, len(indexes))
	for i, index := range indexes {
		keys := bson.D{}
		for _, field := range index.Fields {
			keys = append(keys, bson.E{Key: field, Value: 1})
		}
		models[i] = mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetName(index.Name).SetUnique(index.Unique),
		}
	}
	if _, err := collection.Indexes().CreateMany(ctx, models); err != nil {
		return errors.Wrapf(err, "create indexes for %s failed", model.Table)
	}
	return nil
}

func (m *Mongo) Insert(ctx context.Context, model *rdb.TableModel, records []rdb.Record, opts ...rdb.InsertOption) error {
	if len(records) == 0 {
		return nil
	}
	insertOpts := rdb.NewInsertOptions(opts...)

	docs := make([]any, len(records))
	for i, record := range records {
		doc := bson.M{}
		for k, v := range record {
			if t, ok := v.(time.Time); ok {
				v = t.UTC()
			}
			doc[k] = v
		}
		docs[i] = doc
	}

	// 忽略冲突时使用无序写入，冲突的文档被跳过，其余文档继续写入
	insertOptions := options.InsertMany().SetOrdered(!insertOpts.IgnoreConflict)
	_, err := m.database.Collection(model.Table).InsertMany(ctx, docs, insertOptions)
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		if insertOpts.IgnoreConflict && onlyDuplicateKeyErrors(err) {
			return nil
		}
		return errors.Wrapf(rdb.ErrDuplicateKey, "insert into %s: %v", model.Table, err)
	}
	return errors.Wrapf(err, "insert into %s failed", model.Table)
}

func onlyDuplicateKeyErrors(err error) bool {
	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) {
		return false
	}
	for _, writeErr := range bulkErr.WriteErrors {
		if writeErr.Code != 11000 {
			return false
		}
	}
	return bulkErr.WriteConcernError == nil
}

func (m *Mongo) Find(ctx context.Context, model *rdb.TableModel, q query.Query, opts ...rdb.QueryOption) ([]rdb.Record, error) {
	filter, err := mongoFilter(q)
	if err != nil {
		return nil, err
	}
	queryOptions := rdb.NewQueryOptions(opts...)

	findOptions := options.Find().SetProjection(bson.M{"_id": 0})
	if len(queryOptions.OrderBy) > 0 {
		sort := bson.D{}
		for _, order := range queryOptions.OrderBy {
			direction := 1
			if order.Desc {
				direction = -1
			}
			sort = append(sort, bson.E{Key: order.Field, Value: direction})
		}
		findOptions.SetSort(sort)
	}
	if queryOptions.Limit > 0 {
		findOptions.SetLimit(int64(queryOptions.Limit))
	}
	if queryOptions.Offset > 0 {
		findOptions.SetSkip(int64(queryOptions.Offset))
	}

	cursor, err := m.database.Collection(model.Table).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "find in %s failed", model.Table)
	}
	defer cursor.Close(ctx)

	records := []rdb.Record{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode document failed")
		}
		records = append(records, rdb.Record(fromBSON(doc).(map[string]any)))
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrapf(err, "find in %s failed", model.Table)
	}
	return records, nil
}

func (m *Mongo) Update(ctx context.Context, model *rdb.TableModel, q query.Query, values rdb.Record) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	filter, err := mongoFilter(q)
	if err != nil {
		return 0, err
	}
	set := bson.M{}
	for k, v := range values {
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		set[k] = v
	}
	result, err := m.database.Collection(model.Table).UpdateMany(ctx, filter, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, errors.Wrapf(rdb.ErrDuplicateKey, "update %s: %v", model.Table, err)
		}
		return 0, errors.Wrapf(err, "update %s failed", model.Table)
	}
	return result.MatchedCount, nil
}

func mongoFilter(q query.Query) (map[string]any, error) {
	if q == nil {
		return map[string]any{}, nil
	}
	filter, err := q.ToMongo()
	if err != nil {
		return nil, errors.WithMessage(err, "build mongo filter failed")
	}
	return filter, nil
}

// fromBSON 将 bson 解码出的 primitive 类型转换为普通的 map 和切片
func fromBSON(v any) any {
	switch value := v.(type) {
	case bson.M:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = fromBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(value))
		for _, e := range value {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = fromBSON(item)
		}
		return out
	case primitive.DateTime:
		return value.Time().UTC()
	}
	return v
}
