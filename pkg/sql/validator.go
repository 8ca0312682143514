// Package sql provides SQL validation utilities.
package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/mysql-insight/pkg/apperrors"
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks SQL for multiple statements and strips the trailing semicolon.
//
// The validation order is:
// 1. Strip trailing semicolon and whitespace (normalize)
// 2. Check for multiple statements (any remaining semicolons outside string literals)
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)

	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: apperrors.ErrMultipleStatements}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

var readOnlyPrefixes = []string{"select", "show", "explain", "describe", "desc"}

var dangerousWordPattern = regexp.MustCompile(
	`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|reset|load|optimize|repair|flush)\b`)

// ValidateReadOnly normalizes sqlQuery and checks that it is a single
// SELECT, SHOW, EXPLAIN or DESCRIBE statement with no data or schema
// modifying keyword anywhere in its text. The normalized statement is
// returned on success.
//
// Keywords match on word boundaries anywhere in the text: a column named
// "updated" passes, a column named "update" does not.
func ValidateReadOnly(sqlQuery string) (string, error) {
	result := ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return "", result.Error
	}
	normalized := result.NormalizedSQL
	if normalized == "" {
		return "", fmt.Errorf("%w: empty statement", apperrors.ErrReadOnlyViolation)
	}

	if !hasReadOnlyPrefix(strings.ToLower(normalized)) {
		return "", fmt.Errorf("%w: only SELECT, SHOW, EXPLAIN and DESCRIBE are allowed", apperrors.ErrReadOnlyViolation)
	}

	if word := dangerousWordPattern.FindString(normalized); word != "" {
		return "", fmt.Errorf("%w: statement contains %s", apperrors.ErrReadOnlyViolation, strings.ToUpper(word))
	}

	return normalized, nil
}

func hasReadOnlyPrefix(lower string) bool {
	for _, prefix := range readOnlyPrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		rest := lower[len(prefix):]
		if rest == "" {
			return true
		}
		switch rest[0] {
		case ' ', '\t', '\n', '\r', '(', '*':
			return true
		}
	}
	return false
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals and backtick-quoted identifiers.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case '`':
				state = stateBacktick
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		case stateBacktick:
			if char == '`' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
