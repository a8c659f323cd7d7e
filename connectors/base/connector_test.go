// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"errors"
	"testing"
)

func TestConnectorError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *ConnectorError
		wantMsg string
	}{
		{
			name: "with cause",
			err: &ConnectorError{
				ConnectorName: "keyword-index",
				Operation:     "Query",
				Message:       "search failed",
				Cause:         errors.New("network timeout"),
			},
			wantMsg: "keyword-index.Query: search failed (cause: network timeout)",
		},
		{
			name: "without cause",
			err: &ConnectorError{
				ConnectorName: "kg-store",
				Operation:     "Execute",
				Message:       "write failed",
			},
			wantMsg: "kg-store.Execute: write failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConnectorError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewConnectorError("vector-store", "Connect", "dial failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var connErr *ConnectorError
	if !errors.As(err, &connErr) {
		t.Fatal("errors.As should match *ConnectorError")
	}
	if connErr.ConnectorName != "vector-store" {
		t.Errorf("ConnectorName = %q, want %q", connErr.ConnectorName, "vector-store")
	}
}

func TestNewConnectorError_NilCause(t *testing.T) {
	err := NewConnectorError("web-search", "Query", "empty response", nil)
	if err.Unwrap() != nil {
		t.Error("Unwrap on nil cause should return nil")
	}
}
