// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package lanes

import (
	"net/url"
	"strings"
	"time"

	"github.com/lumenquery/fusion/internal/domain"
)

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func parsePublished(row map[string]interface{}, key string) *time.Time {
	raw := stringField(row, key)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// webRowMapper maps a generic web-search JSON row ({url, title, snippet,
// published}) into a Document.
func webRowMapper(row map[string]interface{}) (domain.Document, bool) {
	u := stringField(row, "url")
	if u == "" {
		return domain.Document{}, false
	}
	return domain.Document{
		URL:         u,
		Domain:      domainOf(u),
		Title:       stringField(row, "title"),
		Snippet:     stringField(row, "snippet"),
		Content:     stringField(row, "snippet"),
		PublishedAt: parsePublished(row, "published"),
	}, true
}

// newsRowMapper maps a news-API row ({link, headline, summary, source,
// published_at}).
func newsRowMapper(row map[string]interface{}) (domain.Document, bool) {
	u := stringField(row, "link")
	if u == "" {
		return domain.Document{}, false
	}
	return domain.Document{
		URL:         u,
		Domain:      domainOf(u),
		Title:       stringField(row, "headline"),
		Snippet:     stringField(row, "summary"),
		Content:     stringField(row, "summary"),
		Author:      stringField(row, "source"),
		PublishedAt: parsePublished(row, "published_at"),
	}, true
}

// marketsRowMapper maps a markets/quotes-API row ({symbol, headline,
// detail, as_of}) into a Document; markets results have no natural URL
// so one is synthesized from the symbol for dedup/citation purposes.
func marketsRowMapper(row map[string]interface{}) (domain.Document, bool) {
	symbol := stringField(row, "symbol")
	if symbol == "" {
		return domain.Document{}, false
	}
	return domain.Document{
		URL:         "markets://" + symbol,
		Domain:      "markets",
		Title:       stringField(row, "headline"),
		Snippet:     stringField(row, "detail"),
		Content:     stringField(row, "detail"),
		PublishedAt: parsePublished(row, "as_of"),
	}, true
}

// vectorRowMapper maps a MongoDB similarity-search row ({_id, url,
// title, text, score}).
func vectorRowMapper(row map[string]interface{}) (domain.Document, bool) {
	text := stringField(row, "text")
	if text == "" {
		return domain.Document{}, false
	}
	u := stringField(row, "url")
	return domain.Document{
		URL:     u,
		Domain:  domainOf(u),
		Title:   stringField(row, "title"),
		Content: text,
		Snippet: truncate(text, 280),
	}, true
}

// kgRowMapper maps a Cassandra knowledge-graph row ({entity, relation,
// target, source_url}) into a short factual Document.
func kgRowMapper(row map[string]interface{}) (domain.Document, bool) {
	entity := stringField(row, "entity")
	relation := stringField(row, "relation")
	target := stringField(row, "target")
	if entity == "" || target == "" {
		return domain.Document{}, false
	}
	content := entity + " " + relation + " " + target
	return domain.Document{
		URL:     stringField(row, "source_url"),
		Domain:  domainOf(stringField(row, "source_url")),
		Title:   entity + " — " + relation,
		Content: content,
		Snippet: content,
	}, true
}

// keywordRowMapper maps a Postgres/MySQL full-text search row ({doc_id,
// url, title, body, rank}).
func keywordRowMapper(row map[string]interface{}) (domain.Document, bool) {
	body := stringField(row, "body")
	if body == "" {
		return domain.Document{}, false
	}
	u := stringField(row, "url")
	return domain.Document{
		URL:     u,
		Domain:  domainOf(u),
		Title:   stringField(row, "title"),
		Content: body,
		Snippet: truncate(body, 280),
	}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
