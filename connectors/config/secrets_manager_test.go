// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type fakeSecretsAPI struct {
	mu      sync.Mutex
	values  map[string]string
	fetches int
}

func (f *fakeSecretsAPI) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	val, ok := f.values[aws.ToString(params.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(val)}, nil
}

func awsManagerWith(fake *fakeSecretsAPI, ttl time.Duration) *AWSSecretsManager {
	return &AWSSecretsManager{
		client: fake,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: log.New(io.Discard, "", 0),
	}
}

func TestAWSSecretsManager_JSONSecret(t *testing.T) {
	fake := &fakeSecretsAPI{values: map[string]string{
		"arn:aws:secretsmanager:us-east-1:1:secret:web": `{"api_key":"k-123","header_name":"X-Search-Key"}`,
	}}
	mgr := awsManagerWith(fake, time.Minute)

	creds, err := mgr.GetSecret(context.Background(), "arn:aws:secretsmanager:us-east-1:1:secret:web")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if creds["api_key"] != "k-123" || creds["header_name"] != "X-Search-Key" {
		t.Errorf("creds = %v", creds)
	}
}

func TestAWSSecretsManager_BareStringSecret(t *testing.T) {
	fake := &fakeSecretsAPI{values: map[string]string{"arn:secret:markets": "raw-api-key"}}
	mgr := awsManagerWith(fake, time.Minute)

	creds, err := mgr.GetSecret(context.Background(), "arn:secret:markets")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if creds["api_key"] != "raw-api-key" {
		t.Errorf("creds = %v", creds)
	}
}

func TestAWSSecretsManager_CachesWithinTTL(t *testing.T) {
	fake := &fakeSecretsAPI{values: map[string]string{"arn:secret:news": `{"api_key":"n"}`}}
	mgr := awsManagerWith(fake, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := mgr.GetSecret(ctx, "arn:secret:news"); err != nil {
			t.Fatalf("GetSecret: %v", err)
		}
	}
	if fake.fetches != 1 {
		t.Errorf("fetches = %d, want 1", fake.fetches)
	}

	mgr.Invalidate("arn:secret:news")
	if _, err := mgr.GetSecret(ctx, "arn:secret:news"); err != nil {
		t.Fatalf("GetSecret after invalidate: %v", err)
	}
	if fake.fetches != 2 {
		t.Errorf("fetches = %d, want 2 after invalidate", fake.fetches)
	}
}

func TestAWSSecretsManager_MissingSecret(t *testing.T) {
	mgr := awsManagerWith(&fakeSecretsAPI{values: map[string]string{}}, time.Minute)
	if _, err := mgr.GetSecret(context.Background(), "arn:secret:absent-secret"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestLocalSecretsManager_SetAndGet(t *testing.T) {
	mgr := NewLocalSecretsManager(log.New(io.Discard, "", 0))
	mgr.SetSecret("WEB_SEARCH_KEY", map[string]string{"api_key": "local"})

	creds, err := mgr.GetSecret(context.Background(), "WEB_SEARCH_KEY")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if creds["api_key"] != "local" {
		t.Errorf("creds = %v", creds)
	}
}

func TestLocalSecretsManager_EnvFallback(t *testing.T) {
	t.Setenv("TEST_PROVIDER_SECRET", `{"api_key":"from-env"}`)

	mgr := NewLocalSecretsManager(log.New(io.Discard, "", 0))
	creds, err := mgr.GetSecret(context.Background(), "TEST_PROVIDER_SECRET")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if creds["api_key"] != "from-env" {
		t.Errorf("creds = %v", creds)
	}
}

func TestLocalSecretsManager_Missing(t *testing.T) {
	mgr := NewLocalSecretsManager(log.New(io.Discard, "", 0))
	if _, err := mgr.GetSecret(context.Background(), "NOPE_NOT_SET_ANYWHERE"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseSecretValue(t *testing.T) {
	if got := parseSecretValue(`{"token":"t"}`); got["token"] != "t" {
		t.Errorf("json secret = %v", got)
	}
	if got := parseSecretValue("bare-key"); got["api_key"] != "bare-key" {
		t.Errorf("bare secret = %v", got)
	}
}
