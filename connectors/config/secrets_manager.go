// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package config resolves backend credentials at startup. Search
// provider API keys never live in the environment directly in managed
// deployments; they are referenced by secret ARN and fetched through a
// SecretsManager, cached with a short TTL. OSS and dev deployments use
// the local manager, which treats the "ARN" as an environment variable
// name instead.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a secret reference into credential key-value
// pairs ready for base.ConnectorConfig.Credentials.
type SecretsManager interface {
	GetSecret(ctx context.Context, secretARN string) (map[string]string, error)
}

// secretsAPI is the slice of the AWS client we drive; narrow so tests
// can fake it.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager resolves secrets from AWS Secrets Manager with a
// TTL cache, so a burst of lane wiring at startup costs one fetch per
// distinct secret.
type AWSSecretsManager struct {
	client secretsAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions configures NewAWSSecretsManager.
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates an AWS-backed secrets manager.
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[secrets] ", log.LstdFlags)
	}

	var cfgOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret fetches and caches one secret. A JSON object secret maps
// directly to credentials; a bare string secret (a lone API key) maps
// to {"api_key": value}.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretARN]
	s.mu.RUnlock()
	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	credentials := parseSecretValue(*result.SecretString)

	s.mu.Lock()
	s.cache[secretARN] = &secretCacheEntry{
		value:     credentials,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	s.logger.Printf("resolved secret %s", maskARN(secretARN))
	return credentials, nil
}

// Invalidate drops one secret from the cache, forcing a re-fetch on
// next use (after a rotation).
func (s *AWSSecretsManager) Invalidate(secretARN string) {
	s.mu.Lock()
	delete(s.cache, secretARN)
	s.mu.Unlock()
}

// parseSecretValue decodes a secret payload: JSON object, or a bare
// API key string.
func parseSecretValue(raw string) map[string]string {
	var credentials map[string]string
	if err := json.Unmarshal([]byte(raw), &credentials); err == nil {
		return credentials
	}
	return map[string]string{"api_key": raw}
}

// maskARN masks a secret reference for logging.
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// LocalSecretsManager serves OSS and dev deployments without AWS:
// secrets set programmatically win, and otherwise the reference is
// treated as the name of an environment variable whose value is the
// secret payload (JSON object or bare API key).
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
	logger  *log.Logger
}

// NewLocalSecretsManager creates a local secrets manager.
func NewLocalSecretsManager(logger *log.Logger) *LocalSecretsManager {
	if logger == nil {
		logger = log.New(os.Stdout, "[secrets_local] ", log.LstdFlags)
	}
	return &LocalSecretsManager{
		secrets: make(map[string]map[string]string),
		logger:  logger,
	}
}

// GetSecret resolves a reference from explicitly-set secrets, then from
// the environment variable of the same name.
func (s *LocalSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	secret, exists := s.secrets[secretARN]
	s.mu.RUnlock()
	if exists {
		return secret, nil
	}

	if raw := os.Getenv(secretARN); raw != "" {
		return parseSecretValue(raw), nil
	}

	return nil, fmt.Errorf("secret %s not found locally", maskARN(secretARN))
}

// SetSecret stores a secret for tests and development.
func (s *LocalSecretsManager) SetSecret(secretARN string, value map[string]string) {
	s.mu.Lock()
	s.secrets[secretARN] = value
	s.mu.Unlock()
}
