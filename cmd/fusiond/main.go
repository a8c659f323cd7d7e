// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Command fusiond runs the retrieval fusion and citation pipeline as an
// HTTP service: POST /search streams a query's lifecycle as SSE, GET
// /audit/{trace_id} returns its audit record, GET /health reports
// backend reachability, and GET /metrics exposes Prometheus metrics.
//
// Usage:
//
//	./fusiond                         # serve HTTP
//	./fusiond -query "some question"  # one-shot query, events to stdout
//
// In one-shot mode the exit code reports the outcome: 0 success, 64
// configuration error, 69 no retrieval backends available, 124 deadline
// exceeded before any output.
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string for the audit store
//	REDIS_URL - Redis connection string (embedding cache, rate limiter)
//	AUDIT_SIGNING_KEY - HS256 key for the audit integrity token
//	AUDIT_ARCHIVE_BACKEND - s3 | azblob | gcs | none
//	AUDIT_RETENTION_DAYS - days before a record is archived and purged
//	EMBEDDING_CACHE_BACKEND - memory | redis
//	KEYWORD_BACKEND - postgres | mysql
//	KEYWORD_DATABASE_URL - connection string for the keyword index, if
//	  different from DATABASE_URL
//	MONGODB_URL, CASSANDRA_HOSTS - vector store / knowledge-graph backends
//	WEB_SEARCH_BASE_URL, NEWS_API_BASE_URL, MARKETS_API_BASE_URL -
//	  upstream provider base URLs; a lane is registered only if its URL
//	  is set
//	WEB_SEARCH_SECRET_ARN, NEWS_API_SECRET_ARN, MARKETS_API_SECRET_ARN -
//	  optional secret ARNs holding that provider's API key, resolved via
//	  AWS Secrets Manager (or the local env-backed fallback) at startup
//	AWS_REGION, BEDROCK_SYNTHESIS_MODEL, BEDROCK_EMBEDDING_MODEL -
//	  Bedrock LLM synthesis and embedding; falls back to the rule-based
//	  synthesizer and a nil (Jaccard-only) embedder when unset
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lumenquery/fusion/connectors/azureblob"
	"github.com/lumenquery/fusion/connectors/base"
	"github.com/lumenquery/fusion/connectors/cassandra"
	connconfig "github.com/lumenquery/fusion/connectors/config"
	"github.com/lumenquery/fusion/connectors/gcs"
	httpconn "github.com/lumenquery/fusion/connectors/http"
	"github.com/lumenquery/fusion/connectors/mongodb"
	"github.com/lumenquery/fusion/connectors/mysql"
	"github.com/lumenquery/fusion/connectors/postgres"
	redisconn "github.com/lumenquery/fusion/connectors/redis"
	s3conn "github.com/lumenquery/fusion/connectors/s3"
	"github.com/lumenquery/fusion/internal/audit"
	"github.com/lumenquery/fusion/internal/audit/archive"
	"github.com/lumenquery/fusion/internal/cache"
	"github.com/lumenquery/fusion/internal/citation"
	"github.com/lumenquery/fusion/internal/config"
	"github.com/lumenquery/fusion/internal/cost"
	"github.com/lumenquery/fusion/internal/domain"
	"github.com/lumenquery/fusion/internal/httpapi"
	"github.com/lumenquery/fusion/internal/lanes"
	"github.com/lumenquery/fusion/internal/llm"
	"github.com/lumenquery/fusion/internal/metrics"
	"github.com/lumenquery/fusion/internal/orchestrator"
	"github.com/lumenquery/fusion/internal/streaming"
)

// Exit codes for one-shot mode.
const (
	exitConfigError      = 64
	exitNoBackends       = 69
	exitDeadlineNoOutput = 124
)

func main() {
	oneShotQuery := flag.String("query", "", "run a single query, stream events to stdout, and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("fusiond: failed to load config: %v", err)
		os.Exit(exitConfigError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Without a DATABASE_URL the audit trail is disabled rather than
	// fatal, so a one-shot run or a bare dev deployment still works.
	var auditWriter orchestrator.AuditWriter = discardAudit{}
	var auditReader httpapi.AuditReader = discardAudit{}
	if cfg.DatabaseURL != "" {
		var signer *audit.Signer
		if cfg.AuditSigningKey != "" {
			var err error
			signer, err = audit.NewSigner(cfg.AuditSigningKey)
			if err != nil {
				log.Printf("fusiond: %v", err)
				os.Exit(exitConfigError)
			}
		} else {
			log.Printf("fusiond: AUDIT_SIGNING_KEY unset, audit records will be stored unsigned")
		}

		sink, err := audit.NewSink(cfg.DatabaseURL, signer)
		if err != nil {
			log.Fatalf("fusiond: failed to open audit sink: %v", err)
		}
		defer func() { _ = sink.Close() }()
		auditWriter = sink
		auditReader = sink

		archiveStore := buildArchiveStore(ctx, cfg)
		if cfg.AuditRetentionDays > 0 {
			go sink.RunRetentionLoop(ctx, cfg.AuditRetentionDays, archiveStore, 6*time.Hour)
		}
	}

	costRecorder := buildCostRecorder(cfg)

	promReg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(promReg)

	embeddingCache := buildEmbeddingCache(cfg)
	rateLimiter := buildRateLimiter(cfg)

	synth, embedder := buildLLM(ctx, embeddingCache)

	secrets := buildSecretsManager(ctx)
	registry, components := buildLaneRegistry(ctx, cfg, rateLimiter, secrets)
	if redisConn := connectRedisHealthCheck(ctx, cfg); redisConn != nil {
		components["cache_redis"] = redisConn
	}

	orch := orchestrator.New(cfg, registry, synth, embedder, auditWriter, metricsReg, costRecorder)

	if *oneShotQuery != "" {
		os.Exit(runOneShot(ctx, orch, registry, *oneShotQuery))
	}

	server := httpapi.NewServer(orch, auditReader, components)

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE responses stream past the deadline-aware budget, not a fixed timeout
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("fusiond: graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("fusiond listening on port %s", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("fusiond: server error: %v", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// discardAudit disables the audit trail when no database is configured.
type discardAudit struct{}

func (discardAudit) Write(_ domain.AuditRecord) {}

func (discardAudit) Get(_ context.Context, _ string) (*domain.AuditRecord, error) {
	return nil, nil
}

// runOneShot submits a single query, prints each event to stdout in the
// SSE wire format, and maps the outcome to an exit code.
func runOneShot(ctx context.Context, orch *orchestrator.Orchestrator, registry *lanes.Registry, text string) int {
	retrievalLanes := 0
	for _, id := range registry.Enabled() {
		if id != domain.LanePreflight {
			retrievalLanes++
		}
	}
	if retrievalLanes == 0 {
		log.Printf("fusiond: no retrieval backends configured")
		return exitNoBackends
	}

	stream, _, err := orch.Submit(ctx, orchestrator.AdmissionRequest{Text: text})
	if err != nil {
		log.Printf("fusiond: %v", err)
		return exitConfigError
	}

	producedOutput := false
	deadlinePartial := false
	for event := range stream.Events() {
		switch event.Event {
		case streaming.EventToken, streaming.EventCitation:
			producedOutput = true
		case streaming.EventFinal:
			if data, ok := event.Data.(map[string]interface{}); ok {
				if partial, _ := data["partial"].(bool); partial {
					deadlinePartial = true
				}
			}
		}
		if payload, err := event.Encode(); err == nil {
			_, _ = os.Stdout.Write(payload)
		}
	}

	if !producedOutput && deadlinePartial {
		return exitDeadlineNoOutput
	}
	return 0
}

// buildArchiveStore selects the cold-archive backend for audit records
// past retention, per AUDIT_ARCHIVE_BACKEND.
func buildArchiveStore(ctx context.Context, cfg *config.Config) archive.Store {
	switch cfg.AuditArchiveBackend {
	case "s3":
		conn := connectOrFatal(ctx, "s3-archive", func() base.Connector { return s3conn.NewS3Connector() }, map[string]interface{}{
			"bucket": os.Getenv("AUDIT_ARCHIVE_S3_BUCKET"),
		})
		return archive.NewS3Store(conn)
	case "azblob":
		conn := connectOrFatal(ctx, "azblob-archive", func() base.Connector { return azureblob.NewAzureBlobConnector() }, map[string]interface{}{
			"container": os.Getenv("AUDIT_ARCHIVE_AZBLOB_CONTAINER"),
		})
		return archive.NewAzureBlobStore(conn)
	case "gcs":
		conn := connectOrFatal(ctx, "gcs-archive", func() base.Connector { return gcs.NewGCSConnector() }, map[string]interface{}{
			"bucket": os.Getenv("AUDIT_ARCHIVE_GCS_BUCKET"),
		})
		return archive.NewGCSStore(conn)
	default:
		return archive.NoopStore{}
	}
}

// buildCostRecorder opens a dedicated Postgres connection for LLM token
// spend and per-query latency accounting, separate from the audit
// sink's own connection so a slow cost write never backs up audit
// writes. Returns nil (disabling cost accounting) when DATABASE_URL is
// unset; this is an enrichment of the audit trail, not a requirement
// for serving queries.
func buildCostRecorder(cfg *config.Config) orchestrator.CostRecorder {
	if cfg.DatabaseURL == "" {
		return nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Printf("fusiond: failed to open cost database, disabling cost accounting: %v", err)
		return nil
	}
	if err := cost.EnsureSchema(db); err != nil {
		log.Printf("fusiond: failed to create cost_events table, disabling cost accounting: %v", err)
		return nil
	}
	return cost.NewRecorder(db)
}

// connectRedisHealthCheck wires connectors/redis purely as a GET
// /health probe for the same Redis instance the embedding cache and
// rate limiter already talk to directly via go-redis; it returns nil
// when Redis isn't configured at all.
func connectRedisHealthCheck(ctx context.Context, cfg *config.Config) base.Connector {
	if cfg.EmbeddingCacheBackend != "redis" || cfg.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("fusiond: invalid REDIS_URL for health check: %v", err)
		return nil
	}
	host, portStr, err := net.SplitHostPort(opt.Addr)
	if err != nil {
		log.Printf("fusiond: could not parse redis address for health check: %v", err)
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 6379
	}
	conn := redisconn.NewRedisConnector()
	redisCfg := &base.ConnectorConfig{
		Name:        "cache-redis",
		Options:     map[string]interface{}{"host": host, "port": float64(port), "db": float64(opt.DB)},
		Credentials: map[string]string{"password": opt.Password},
		Timeout:     5 * time.Second,
	}
	if err := conn.Connect(ctx, redisCfg); err != nil {
		log.Printf("fusiond: failed to connect redis health check: %v", err)
		return nil
	}
	return conn
}

func buildEmbeddingCache(cfg *config.Config) cache.EmbeddingCache {
	if cfg.EmbeddingCacheBackend == "redis" && cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("fusiond: invalid REDIS_URL: %v", err)
		}
		return cache.NewRedisEmbeddingCache(redis.NewClient(opt))
	}
	return cache.NewMemoryEmbeddingCache(10000)
}

// buildRateLimiter shares EMBEDDING_CACHE_BACKEND/REDIS_URL with
// buildEmbeddingCache rather than exposing a second backend knob: both
// are small, high-frequency key-value stores meant to live on the same
// Redis instance in any deployment that runs one at all, and a
// single-process deployment with no Redis has no need for either to be
// distributed.
func buildRateLimiter(cfg *config.Config) cache.ProviderRateLimiter {
	if cfg.EmbeddingCacheBackend == "redis" && cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("fusiond: invalid REDIS_URL: %v", err)
		}
		return cache.NewRedisRateLimiter(redis.NewClient(opt))
	}
	return cache.NewMemoryRateLimiter()
}

// buildLLM wires the Bedrock-backed synthesizer and embedder when
// AWS_REGION is configured, falling back to the rule-based synthesizer
// and a nil embedder (citation.Align degrades to Jaccard) otherwise.
func buildLLM(ctx context.Context, embeddingCache cache.EmbeddingCache) (llm.Synthesizer, citation.Embedder) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		return llm.NewRuleBasedSynthesizer(), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Printf("fusiond: failed to load AWS config, falling back to rule-based synthesis: %v", err)
		return llm.NewRuleBasedSynthesizer(), nil
	}

	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)
	synth := llm.NewBedrockSynthesizer(bedrockClient, getEnv("BEDROCK_SYNTHESIS_MODEL", ""))
	embedder := llm.NewCachingEmbedder(llm.NewBedrockEmbedder(bedrockClient, getEnv("BEDROCK_EMBEDDING_MODEL", "")), embeddingCache)
	return synth, embedder
}

// buildSecretsManager resolves upstream provider API keys. It uses AWS
// Secrets Manager when AWS_REGION is set, falling back to a local
// env-var-backed manager for OSS and dev deployments.
func buildSecretsManager(ctx context.Context) connconfig.SecretsManager {
	if region := os.Getenv("AWS_REGION"); region != "" {
		mgr, err := connconfig.NewAWSSecretsManager(ctx, connconfig.AWSSecretsManagerOptions{Region: region})
		if err != nil {
			log.Printf("fusiond: failed to init AWS secrets manager, falling back to local: %v", err)
			return connconfig.NewLocalSecretsManager(nil)
		}
		return mgr
	}
	return connconfig.NewLocalSecretsManager(nil)
}

// providerCredentials resolves a provider's API key from the secret ARN
// named by envVar, if set, returning credentials ready for
// base.ConnectorConfig.Credentials. A missing or unset secret yields an
// empty map, leaving the connector unauthenticated.
func providerCredentials(ctx context.Context, secrets connconfig.SecretsManager, envVar string) map[string]string {
	arn := os.Getenv(envVar)
	if arn == "" {
		return nil
	}
	creds, err := secrets.GetSecret(ctx, arn)
	if err != nil {
		log.Printf("fusiond: failed to resolve secret %s: %v", envVar, err)
		return nil
	}
	return creds
}

// buildLaneRegistry connects every configured retrieval backend and
// returns the assembled Registry alongside the set of connectors the
// HTTP layer reports on in GET /health. A backend whose connection
// settings are absent from the environment is simply left out of both.
func buildLaneRegistry(ctx context.Context, cfg *config.Config, limiter cache.ProviderRateLimiter, secrets connconfig.SecretsManager) (*lanes.Registry, map[string]httpapi.HealthChecker) {
	deps := lanes.Deps{Limiter: limiter}
	components := make(map[string]httpapi.HealthChecker)

	if baseURL := os.Getenv("WEB_SEARCH_BASE_URL"); baseURL != "" {
		conn := connectOrFatalWithCredentials(ctx, "web-search", func() base.Connector { return httpconn.NewHTTPConnector() },
			map[string]interface{}{"base_url": baseURL}, providerCredentials(ctx, secrets, "WEB_SEARCH_SECRET_ARN"))
		deps.WebClient = conn
		components["web_search"] = conn
	}
	if baseURL := os.Getenv("NEWS_API_BASE_URL"); baseURL != "" {
		conn := connectOrFatalWithCredentials(ctx, "news-api", func() base.Connector { return httpconn.NewHTTPConnector() },
			map[string]interface{}{"base_url": baseURL}, providerCredentials(ctx, secrets, "NEWS_API_SECRET_ARN"))
		deps.NewsClient = conn
		components["news_api"] = conn
	}
	if baseURL := os.Getenv("MARKETS_API_BASE_URL"); baseURL != "" {
		conn := connectOrFatalWithCredentials(ctx, "markets-api", func() base.Connector { return httpconn.NewHTTPConnector() },
			map[string]interface{}{"base_url": baseURL}, providerCredentials(ctx, secrets, "MARKETS_API_SECRET_ARN"))
		deps.MarketsClient = conn
		components["markets_api"] = conn
	}
	if mongoURL := os.Getenv("MONGODB_URL"); mongoURL != "" {
		conn := connectOrFatal(ctx, "vector-store", func() base.Connector { return mongodb.NewMongoDBConnector() }, nil, mongoURL)
		deps.VectorClient = conn
		components["vector_store"] = conn
	}
	if hosts := os.Getenv("CASSANDRA_HOSTS"); hosts != "" {
		conn := connectOrFatal(ctx, "kg-store", func() base.Connector { return cassandra.NewCassandraConnector() }, nil, hosts)
		deps.KGClient = conn
		components["kg_store"] = conn
	}
	if cfg.DatabaseURL != "" || os.Getenv("KEYWORD_DATABASE_URL") != "" {
		keywordURL := os.Getenv("KEYWORD_DATABASE_URL")
		if keywordURL == "" {
			keywordURL = cfg.DatabaseURL
		}
		switch cfg.KeywordBackend {
		case "mysql":
			conn := connectOrFatal(ctx, "keyword-index", func() base.Connector { return mysql.NewMySQLConnector() }, nil, keywordURL)
			deps.KeywordClient = conn
			components["keyword_index"] = conn
		default:
			conn := connectOrFatal(ctx, "keyword-index", func() base.Connector { return postgres.NewPostgresConnector() }, nil, keywordURL)
			deps.KeywordClient = conn
			components["keyword_index"] = conn
		}
	}

	return lanes.BuildDefault(deps), components
}

// connectOrFatal builds, connects, and returns a connector. connectionURL
// is optional and merged into the config as ConnectionURL when set;
// options is merged in as-is.
func connectOrFatal(ctx context.Context, name string, factory func() base.Connector, options map[string]interface{}, connectionURL ...string) base.Connector {
	conn := factory()
	cfg := &base.ConnectorConfig{
		Name:    name,
		Options: options,
		Timeout: 10 * time.Second,
	}
	if len(connectionURL) > 0 {
		cfg.ConnectionURL = connectionURL[0]
	}
	if err := conn.Connect(ctx, cfg); err != nil {
		log.Fatalf("fusiond: failed to connect %s: %v", name, err)
	}
	return conn
}

// connectOrFatalWithCredentials is connectOrFatal plus resolved secret
// credentials (e.g. an upstream provider API key), merged into
// ConnectorConfig.Credentials.
func connectOrFatalWithCredentials(ctx context.Context, name string, factory func() base.Connector, options map[string]interface{}, credentials map[string]string) base.Connector {
	conn := factory()
	cfg := &base.ConnectorConfig{
		Name:        name,
		Options:     options,
		Credentials: credentials,
		Timeout:     10 * time.Second,
	}
	if err := conn.Connect(ctx, cfg); err != nil {
		log.Fatalf("fusiond: failed to connect %s: %v", name, err)
	}
	return conn
}
