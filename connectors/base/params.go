// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"fmt"
	"strings"
	"unicode"
)

// BindNamed rewrites a statement containing ":name" placeholders into
// one using the driver's positional placeholder style and returns the
// arguments in the order the placeholders appear. Statement authors
// pass parameters as a map; binding order comes from the statement
// text, never from map iteration, so the same statement always binds
// the same way.
//
// positional generates the driver placeholder for the i-th (1-based)
// argument: "$1" for Postgres, "?" for MySQL and CQL.
func BindNamed(statement string, params map[string]interface{}, positional func(i int) string) (string, []interface{}, error) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(params))

	for i := 0; i < len(statement); {
		ch := statement[i]
		// "::" is a cast, not a placeholder.
		if ch == ':' && i+1 < len(statement) && statement[i+1] == ':' {
			sb.WriteString("::")
			i += 2
			continue
		}
		if ch != ':' || i+1 >= len(statement) || !isNameStart(rune(statement[i+1])) {
			sb.WriteByte(ch)
			i++
			continue
		}

		j := i + 1
		for j < len(statement) && isNameChar(rune(statement[j])) {
			j++
		}
		name := statement[i+1 : j]

		val, ok := params[name]
		if !ok {
			return "", nil, fmt.Errorf("statement references :%s but no such parameter was supplied", name)
		}
		args = append(args, val)
		sb.WriteString(positional(len(args)))
		i = j
	}

	return sb.String(), args, nil
}

// PostgresPlaceholder yields "$1", "$2", ...
func PostgresPlaceholder(i int) string { return fmt.Sprintf("$%d", i) }

// QuestionPlaceholder yields "?" regardless of position (MySQL, CQL).
func QuestionPlaceholder(_ int) string { return "?" }

func isNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
