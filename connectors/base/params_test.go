// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"reflect"
	"testing"
)

func TestBindNamed_Postgres(t *testing.T) {
	stmt, args, err := BindNamed(
		"SELECT url, title FROM search_documents(:term, :max_results)",
		map[string]interface{}{"term": "b-tree", "max_results": 20},
		PostgresPlaceholder,
	)
	if err != nil {
		t.Fatalf("BindNamed: %v", err)
	}
	if stmt != "SELECT url, title FROM search_documents($1, $2)" {
		t.Errorf("statement = %q", stmt)
	}
	if !reflect.DeepEqual(args, []interface{}{"b-tree", 20}) {
		t.Errorf("args = %v", args)
	}
}

func TestBindNamed_Question(t *testing.T) {
	stmt, args, err := BindNamed(
		"SELECT entity FROM facts WHERE entity_search = :entity LIMIT :max",
		map[string]interface{}{"entity": "earth", "max": 10},
		QuestionPlaceholder,
	)
	if err != nil {
		t.Fatalf("BindNamed: %v", err)
	}
	if stmt != "SELECT entity FROM facts WHERE entity_search = ? LIMIT ?" {
		t.Errorf("statement = %q", stmt)
	}
	if !reflect.DeepEqual(args, []interface{}{"earth", 10}) {
		t.Errorf("args = %v", args)
	}
}

func TestBindNamed_RepeatedPlaceholder(t *testing.T) {
	stmt, args, err := BindNamed(
		"SELECT :q AS echo WHERE title = :q",
		map[string]interface{}{"q": "paris"},
		PostgresPlaceholder,
	)
	if err != nil {
		t.Fatalf("BindNamed: %v", err)
	}
	if stmt != "SELECT $1 AS echo WHERE title = $2" {
		t.Errorf("statement = %q", stmt)
	}
	if !reflect.DeepEqual(args, []interface{}{"paris", "paris"}) {
		t.Errorf("args = %v", args)
	}
}

func TestBindNamed_OrderFollowsStatement(t *testing.T) {
	// Binding order must come from placeholder position, not map order.
	stmt, args, err := BindNamed(
		"VALUES (:c, :a, :b)",
		map[string]interface{}{"a": 1, "b": 2, "c": 3},
		QuestionPlaceholder,
	)
	if err != nil {
		t.Fatalf("BindNamed: %v", err)
	}
	if stmt != "VALUES (?, ?, ?)" {
		t.Errorf("statement = %q", stmt)
	}
	if !reflect.DeepEqual(args, []interface{}{3, 1, 2}) {
		t.Errorf("args = %v", args)
	}
}

func TestBindNamed_MissingParameter(t *testing.T) {
	_, _, err := BindNamed("SELECT :missing", map[string]interface{}{}, PostgresPlaceholder)
	if err == nil {
		t.Fatal("expected error for unknown placeholder")
	}
}

func TestBindNamed_IgnoresCasts(t *testing.T) {
	stmt, args, err := BindNamed(
		"SELECT published_at::date FROM docs WHERE id = :id",
		map[string]interface{}{"id": 7},
		PostgresPlaceholder,
	)
	if err != nil {
		t.Fatalf("BindNamed: %v", err)
	}
	if stmt != "SELECT published_at::date FROM docs WHERE id = $1" {
		t.Errorf("statement = %q", stmt)
	}
	if !reflect.DeepEqual(args, []interface{}{7}) {
		t.Errorf("args = %v", args)
	}
}

func TestBindNamed_NoPlaceholders(t *testing.T) {
	stmt, args, err := BindNamed("SELECT 1", nil, PostgresPlaceholder)
	if err != nil {
		t.Fatalf("BindNamed: %v", err)
	}
	if stmt != "SELECT 1" || len(args) != 0 {
		t.Errorf("stmt = %q, args = %v", stmt, args)
	}
}
