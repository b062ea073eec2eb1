package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"kalshidune/internal/etl"
	"kalshidune/internal/schema"
)

// mongoConnector implements Connector for MongoDB. Tables map to
// collections; rows map to documents keyed by column name.
type mongoConnector struct {
	client *mongo.Client
	dbName string
}

func newMongoConnector(cfg Config) (*mongoConnector, error) {
	var uri string

	// If host is already a full connection string (Atlas mongodb+srv:// or
	// standard mongodb://), use it directly. Otherwise build from host:port.
	if strings.HasPrefix(cfg.Host, "mongodb+srv://") || strings.HasPrefix(cfg.Host, "mongodb://") {
		uri = cfg.Host
		// Replace <password> placeholder commonly found in Atlas connection strings
		if cfg.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", cfg.Password)
			uri = strings.ReplaceAll(uri, "<db_password>", cfg.Password)
		}
	} else {
		port := cfg.Port
		if port == 0 {
			port = 27017
		}
		if cfg.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Username, cfg.Password, cfg.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", cfg.Host, port)
		}
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = "kalshi"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: dbName}, nil
}

func (m *mongoConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

// EnsureTable is a no-op: collections are created on first insert.
func (m *mongoConnector) EnsureTable(ctx context.Context, table schema.Table) error {
	return nil
}

func (m *mongoConnector) Clear(ctx context.Context, table string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := m.client.Database(m.dbName).Collection(table).DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

func (m *mongoConnector) InsertRows(ctx context.Context, table string, sch *etl.Schema, records []etl.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]any, 0, len(records))
	for _, rec := range records {
		doc := bson.M{}
		for _, f := range sch.Fields {
			doc[f.Name] = bindValue(f, rec.Data[f.Name])
		}
		docs = append(docs, doc)
	}
	if _, err := m.client.Database(m.dbName).Collection(table).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (m *mongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
