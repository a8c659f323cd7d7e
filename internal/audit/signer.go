// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumenquery/fusion/internal/domain"
)

// integrityClaims is the HS256 payload proving an AuditRecord was not
// altered after the pipeline wrote it: a hash of the record's durable
// fields plus standard registered claims.
type integrityClaims struct {
	RecordHash string `json:"record_hash"`
	jwt.RegisteredClaims
}

// Signer issues and verifies the compact integrity token attached to
// every AuditRecord response. It signs record provenance, not user
// identity; it proves a record was not altered after it was written.
type Signer struct {
	key []byte
}

// NewSigner builds a Signer from the configured AUDIT_SIGNING_KEY. An
// empty key is rejected so a misconfigured deployment fails fast rather
// than silently shipping unsigned audit records.
func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, fmt.Errorf("audit: signing key must not be empty")
	}
	return &Signer{key: []byte(key)}, nil
}

// Sign returns a compact JWS over the record's content hash.
func (s *Signer) Sign(record domain.AuditRecord) (string, error) {
	hash, err := recordHash(record)
	if err != nil {
		return "", err
	}
	claims := integrityClaims{
		RecordHash: hash,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   record.TraceID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify checks that token was issued by this Signer over record's
// current content, returning an error if the signature is invalid or
// the record has since been modified.
func (s *Signer) Verify(token string, record domain.AuditRecord) error {
	parsed, err := jwt.ParseWithClaims(token, &integrityClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil {
		return fmt.Errorf("audit: invalid integrity token: %w", err)
	}
	claims, ok := parsed.Claims.(*integrityClaims)
	if !ok || !parsed.Valid {
		return fmt.Errorf("audit: integrity token claims malformed")
	}
	hash, err := recordHash(record)
	if err != nil {
		return err
	}
	if claims.RecordHash != hash {
		return fmt.Errorf("audit: record hash mismatch, record was modified after signing")
	}
	return nil
}

// recordHash hashes the durable, content-bearing fields of an audit
// record (excluding WrittenAt, which legitimately changes on an
// idempotent re-write without invalidating the record's content).
func recordHash(record domain.AuditRecord) (string, error) {
	stable := record
	stable.WrittenAt = time.Time{}
	data, err := json.Marshal(stable)
	if err != nil {
		return "", fmt.Errorf("audit: failed to hash record: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
