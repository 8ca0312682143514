// Package analysis implements the query insight pipeline: table extraction,
// catalog metadata gathering, complexity scoring, plan interpretation and
// report rendering. Every function here is stateless; database access goes
// through an injected datasource.QueryExecutor.
package analysis

import (
	"regexp"
	"sort"
	"strings"
)

var (
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*(\n|$)`)
	whitespacePattern   = regexp.MustCompile(`\s+`)

	fromTablePattern = regexp.MustCompile(`from\s+([a-z0-9_.]+)(?:\s+as\s+[a-z0-9_]+)?`)
	joinTablePattern = regexp.MustCompile(`join\s+([a-z0-9_.]+)(?:\s+as\s+[a-z0-9_]+)?`)
)

// normalizeSQL strips comments, collapses whitespace and lowercases.
func normalizeSQL(sql string) string {
	s := blockCommentPattern.ReplaceAllString(sql, " ")
	s = lineCommentPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// ExtractTables returns the distinct table names referenced by FROM and JOIN
// clauses. Schema qualifiers are dropped. The result is sorted but should be
// treated as a set.
//
// This is a lexical heuristic. Comma-separated FROM lists only yield their
// first table, backtick-quoted names are not recognized, and subquery aliases
// may surface as table names.
func ExtractTables(sql string) []string {
	normalized := normalizeSQL(sql)
	if normalized == "" {
		return []string{}
	}

	seen := make(map[string]struct{})
	for _, pattern := range []*regexp.Regexp{fromTablePattern, joinTablePattern} {
		for _, match := range pattern.FindAllStringSubmatch(normalized, -1) {
			name := lastSegment(match[1])
			if name == "" {
				continue
			}
			seen[name] = struct{}{}
		}
	}

	tables := make([]string, 0, len(seen))
	for name := range seen {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// lastSegment returns the component after the final dot of a qualified name.
func lastSegment(identifier string) string {
	if idx := strings.LastIndex(identifier, "."); idx >= 0 {
		return identifier[idx+1:]
	}
	return identifier
}
