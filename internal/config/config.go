// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the process-wide immutable configuration struct at
// startup: environment variables first, an optional YAML overrides file
// second. There are no hidden reads and no mutation after Load returns;
// the result is passed down explicitly from cmd/fusiond.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lumenquery/fusion/internal/domain"
)

// Config is the immutable, process-wide configuration. It is built once
// at startup by Load and never mutated afterward.
type Config struct {
	// SLAModeDeadlinesMS overrides the classifier's default per-mode
	// global deadline table.
	SLAModeDeadlinesMS map[domain.Mode]int64

	// LaneEnabled disables a lane entirely regardless of query content.
	LaneEnabled map[domain.LaneID]bool

	// LaneBudgetOverrideMS overrides the per-mode, per-lane budget table.
	LaneBudgetOverrideMS map[domain.LaneID]int64

	RRFK           int
	DomainBoost    float64
	RecencyBoost   float64

	CitationSimThreshold float64
	CitationTopK         int

	TTFTTargetMS         int64
	HeartbeatIntervalMS  int64

	AuditRetentionDays int

	EmbeddingCacheBackend string // memory | redis
	AuditArchiveBackend   string // s3 | azblob | gcs | none
	AuditSigningKey       string
	KeywordBackend        string // postgres | mysql

	DatabaseURL string
	RedisURL    string
}

// fileOverrides mirrors the subset of Config that may be supplied by a
// YAML file, for values operators prefer to version-control rather than
// inject as individual env vars.
type fileOverrides struct {
	SLAModeDeadlinesMS map[string]int64 `yaml:"sla_mode_deadlines_ms,omitempty"`
	LaneBudgetMS       map[string]int64 `yaml:"lane_budget_ms,omitempty"`
}

// Load builds the configuration from environment variables, applying an
// optional YAML overrides file named by FUSION_CONFIG_FILE if present.
func Load() (*Config, error) {
	cfg := &Config{
		SLAModeDeadlinesMS:   map[domain.Mode]int64{},
		LaneEnabled:          defaultLaneEnabled(),
		LaneBudgetOverrideMS: map[domain.LaneID]int64{},
		RRFK:                 getEnvInt("RRF_K", 60),
		DomainBoost:          getEnvFloat("DOMAIN_BOOST", 0.10),
		RecencyBoost:         getEnvFloat("RECENCY_BOOST", 0.05),
		CitationSimThreshold: getEnvFloat("CITATION_SIM_THRESHOLD", 0.7),
		CitationTopK:         getEnvInt("CITATION_TOP_K", 3),
		TTFTTargetMS:         getEnvInt64("TTFT_TARGET_MS", 1500),
		HeartbeatIntervalMS:  getEnvInt64("HEARTBEAT_INTERVAL_MS", 10000),
		AuditRetentionDays:   getEnvInt("AUDIT_RETENTION_DAYS", 90),
		EmbeddingCacheBackend: getEnvOrDefault("EMBEDDING_CACHE_BACKEND", "memory"),
		AuditArchiveBackend:   getEnvOrDefault("AUDIT_ARCHIVE_BACKEND", "none"),
		AuditSigningKey:       os.Getenv("AUDIT_SIGNING_KEY"),
		KeywordBackend:        getEnvOrDefault("KEYWORD_BACKEND", "postgres"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
	}

	for _, lane := range allLanes() {
		if v := os.Getenv("LANE_ENABLED_" + string(lane)); v != "" {
			cfg.LaneEnabled[lane] = v == "true" || v == "1"
		}
		if v := os.Getenv("LANE_BUDGET_MS_" + string(lane)); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				cfg.LaneBudgetOverrideMS[lane] = n
			}
		}
	}

	// SLA_MODE_DEADLINES_MS="simple=4000,research=12000" overrides the
	// per-mode deadline table without a config file.
	if v := os.Getenv("SLA_MODE_DEADLINES_MS"); v != "" {
		overrides, err := parseModeDeadlines(v)
		if err != nil {
			return nil, fmt.Errorf("parsing SLA_MODE_DEADLINES_MS: %w", err)
		}
		for mode, ms := range overrides {
			cfg.SLAModeDeadlinesMS[mode] = ms
		}
	}

	if path := os.Getenv("FUSION_CONFIG_FILE"); path != "" {
		if err := applyFileOverrides(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

func applyFileOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fo fileOverrides
	if err := yaml.Unmarshal(data, &fo); err != nil {
		return err
	}
	for mode, ms := range fo.SLAModeDeadlinesMS {
		cfg.SLAModeDeadlinesMS[domain.Mode(mode)] = ms
	}
	for lane, ms := range fo.LaneBudgetMS {
		cfg.LaneBudgetOverrideMS[domain.LaneID(lane)] = ms
	}
	return nil
}

// parseModeDeadlines decodes "mode=ms" pairs separated by commas.
func parseModeDeadlines(raw string) (map[domain.Mode]int64, error) {
	out := make(map[domain.Mode]int64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		ms, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid deadline in %q", pair)
		}
		out[domain.Mode(strings.TrimSpace(key))] = ms
	}
	return out, nil
}

func allLanes() []domain.LaneID {
	return []domain.LaneID{
		domain.LaneWeb, domain.LaneVector, domain.LaneKG, domain.LaneKeyword,
		domain.LaneNews, domain.LaneMarkets, domain.LanePreflight,
	}
}

func defaultLaneEnabled() map[domain.LaneID]bool {
	m := make(map[domain.LaneID]bool)
	for _, lane := range allLanes() {
		m[lane] = true
	}
	return m
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}
