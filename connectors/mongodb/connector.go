// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package mongodb backs the vector-store lane. Passages live in a
// MongoDB collection with an embedding field; similarity search runs as
// an Atlas $vectorSearch aggregation when the caller supplies a query
// embedding, and degrades to a $text search over the passage body when
// it doesn't (no embedder configured, or embedding budget exhausted).
package mongodb

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/lumenquery/fusion/connectors/base"
)

const (
	// DefaultDatabase and DefaultCollection locate the passage corpus
	// unless the deployment overrides them.
	DefaultDatabase   = "fusion"
	DefaultCollection = "passages"
	// DefaultVectorIndex is the Atlas vector index name.
	DefaultVectorIndex = "passage_embedding"

	// VectorSearchOperation is the named read the vector lane issues.
	VectorSearchOperation = "vector_similarity_search"
	// FindByIDOperation fetches a single passage by its id.
	FindByIDOperation = "find_by_id"

	// candidateMultiplier oversamples $vectorSearch candidates relative
	// to the requested top-k, per Atlas guidance for recall.
	candidateMultiplier = 10
)

// MongoDBConnector implements the vector store over MongoDB.
type MongoDBConnector struct {
	config      *base.ConnectorConfig
	client      *mongo.Client
	logger      *log.Logger
	database    string
	collection  string
	vectorIndex string
}

// NewMongoDBConnector creates a vector-store connector.
func NewMongoDBConnector() *MongoDBConnector {
	return &MongoDBConnector{
		logger: log.New(os.Stdout, "[vector_mongo] ", log.LstdFlags),
	}
}

// Connect dials the cluster and verifies reachability.
func (c *MongoDBConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	if config.ConnectionURL == "" {
		return base.NewConnectorError(config.Name, "Connect", "connection URL is required", nil)
	}

	c.database = DefaultDatabase
	if db, ok := config.Options["database"].(string); ok && db != "" {
		c.database = db
	}
	c.collection = DefaultCollection
	if coll, ok := config.Options["collection"].(string); ok && coll != "" {
		c.collection = coll
	}
	c.vectorIndex = DefaultVectorIndex
	if idx, ok := config.Options["vector_index"].(string); ok && idx != "" {
		c.vectorIndex = idx
	}

	timeout := 10 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	opts := options.Client().
		ApplyURI(config.ConnectionURL).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetMaxPoolSize(25)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return base.NewConnectorError(config.Name, "Connect", "failed to ping cluster", err)
	}

	c.client = client
	c.logger.Printf("connected vector store %s (db=%s, collection=%s)", config.Name, c.database, c.collection)
	return nil
}

// Disconnect closes the client.
func (c *MongoDBConnector) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return base.NewConnectorError(c.Name(), "Disconnect", "failed to disconnect", err)
	}
	c.client = nil
	return nil
}

// HealthCheck pings the primary.
func (c *MongoDBConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{Healthy: false, Error: "client not connected", Timestamp: time.Now()}, nil
	}

	start := time.Now()
	err := c.client.Ping(ctx, readpref.Primary())
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}, nil
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   map[string]string{"database": c.database, "collection": c.collection},
		Timestamp: time.Now(),
	}, nil
}

// Query runs one of the named vector-store operations.
func (c *MongoDBConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "client not connected", nil)
	}

	coll := c.client.Database(c.database).Collection(c.collection)
	start := time.Now()

	var rows []map[string]interface{}
	var err error

	switch query.Statement {
	case VectorSearchOperation:
		rows, err = c.similaritySearch(ctx, coll, query)
	case FindByIDOperation:
		rows, err = c.findByID(ctx, coll, query)
	default:
		err = fmt.Errorf("unknown operation %q", query.Statement)
	}
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "query execution failed", err)
	}
	duration := time.Since(start)

	c.logger.Printf("%s returned %d rows in %v", query.Statement, len(rows), duration)

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  duration,
		Connector: c.Name(),
	}, nil
}

// similaritySearch prefers $vectorSearch when the caller embedded the
// query; otherwise it falls back to $text over the passage body, which
// keeps the vector lane alive in deployments without an embedder.
func (c *MongoDBConnector) similaritySearch(ctx context.Context, coll *mongo.Collection, query *base.Query) ([]map[string]interface{}, error) {
	topK := intParam(query.Parameters, "top_k", 20)
	if query.Limit > 0 && query.Limit < topK {
		topK = query.Limit
	}

	if embedding, ok := floatSlice(query.Parameters["embedding"]); ok && len(embedding) > 0 {
		pipeline := mongo.Pipeline{
			bson.D{{Key: "$vectorSearch", Value: bson.D{
				{Key: "index", Value: c.vectorIndex},
				{Key: "path", Value: "embedding"},
				{Key: "queryVector", Value: embedding},
				{Key: "numCandidates", Value: topK * candidateMultiplier},
				{Key: "limit", Value: topK},
			}}},
			bson.D{{Key: "$project", Value: bson.D{
				{Key: "url", Value: 1},
				{Key: "title", Value: 1},
				{Key: "text", Value: 1},
				{Key: "published_at", Value: 1},
				{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
			}}},
		}

		cursor, err := coll.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, err
		}
		defer func() { _ = cursor.Close(ctx) }()
		return decodeRows(ctx, cursor)
	}

	text, _ := query.Parameters["query_text"].(string)
	if text == "" {
		return nil, fmt.Errorf("%s requires an embedding or query_text", VectorSearchOperation)
	}

	filter := bson.M{"$text": bson.M{"$search": text}}
	opts := options.Find().
		SetProjection(bson.M{
			"url": 1, "title": 1, "text": 1, "published_at": 1,
			"score": bson.M{"$meta": "textScore"},
		}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(int64(topK))

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()
	return decodeRows(ctx, cursor)
}

func (c *MongoDBConnector) findByID(ctx context.Context, coll *mongo.Collection, query *base.Query) ([]map[string]interface{}, error) {
	id, _ := query.Parameters["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%s requires id", FindByIDOperation)
	}

	var doc bson.M
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{normalizeRow(doc)}, nil
}

// Execute supports "upsert_passage": replace-by-id so re-ingesting a
// passage is idempotent.
func (c *MongoDBConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "client not connected", nil)
	}
	if cmd.Action != "upsert_passage" {
		return nil, base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("unknown action %q", cmd.Action), nil)
	}

	id, _ := cmd.Parameters["id"].(string)
	if id == "" {
		return nil, base.NewConnectorError(c.Name(), "Execute", "upsert_passage requires id", nil)
	}

	doc := bson.M{"_id": id}
	for _, field := range []string{"url", "title", "text", "published_at"} {
		if v, ok := cmd.Parameters[field]; ok {
			doc[field] = v
		}
	}
	if embedding, ok := floatSlice(cmd.Parameters["embedding"]); ok {
		doc["embedding"] = embedding
	}

	coll := c.client.Database(c.database).Collection(c.collection)
	start := time.Now()

	result, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "upsert failed", err)
	}

	affected := int(result.ModifiedCount + result.UpsertedCount)
	return &base.CommandResult{
		Success:      true,
		RowsAffected: affected,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("%d passages upserted", affected),
		Connector:    c.Name(),
	}, nil
}

// Name returns the connector instance name.
func (c *MongoDBConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "mongodb-vector-store"
}

// Type returns the connector type.
func (c *MongoDBConnector) Type() string { return "mongodb" }

// Version returns the connector version.
func (c *MongoDBConnector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *MongoDBConnector) Capabilities() []string {
	return []string{"query", "execute", "vector-search", "text-search"}
}

func decodeRows(ctx context.Context, cursor *mongo.Cursor) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rows = append(rows, normalizeRow(doc))
	}
	return rows, cursor.Err()
}

// normalizeRow flattens BSON values into plain types RowMappers
// understand: ObjectIDs and DateTimes to strings, nested documents and
// arrays to plain maps and slices.
func normalizeRow(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[strings.ToLower(k)] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case primitive.A:
		arr := make([]interface{}, len(val))
		for i, item := range val {
			arr[i] = normalizeValue(item)
		}
		return arr
	case bson.M:
		return normalizeRow(val)
	case bson.D:
		m := make(bson.M, len(val))
		for _, e := range val {
			m[e.Key] = e.Value
		}
		return normalizeRow(m)
	default:
		return v
	}
}

func intParam(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}

// floatSlice coerces the embedding parameter, which may arrive as
// []float64 from in-process callers or []interface{} from JSON.
func floatSlice(v interface{}) ([]float64, bool) {
	switch vec := v.(type) {
	case []float64:
		return vec, true
	case []float32:
		out := make([]float64, len(vec))
		for i, f := range vec {
			out[i] = float64(f)
		}
		return out, true
	case []interface{}:
		out := make([]float64, 0, len(vec))
		for _, item := range vec {
			f, ok := item.(float64)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}
