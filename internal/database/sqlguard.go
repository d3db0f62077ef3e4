// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateReadOnlySQL checks that s is a single statement whose first keyword,
// after leading comments and whitespace, is SELECT or WITH. It returns the
// statement without its optional trailing semicolon.
//
// The database is opened read-only for serving, so this is a boundary check
// for clear errors, not the only guard against writes.
func ValidateReadOnlySQL(s string) (string, error) {
	body := skipLeadingComments(s)
	if body == "" {
		return "", fmt.Errorf("%w: empty query", ErrQueryNotReadOnly)
	}

	keyword := leadingWord(body)
	switch strings.ToUpper(keyword) {
	case "SELECT", "WITH":
	default:
		return "", fmt.Errorf("%w: statement starts with %q", ErrQueryNotReadOnly, keyword)
	}

	semi := statementEnd(body)
	if semi < 0 {
		return strings.TrimSpace(body), nil
	}
	if rest := skipLeadingComments(body[semi+1:]); rest != "" {
		return "", fmt.Errorf("%w: multiple statements", ErrQueryNotReadOnly)
	}
	return strings.TrimSpace(body[:semi]), nil
}

func leadingWord(s string) string {
	i := 0
	for i < len(s) && (unicode.IsLetter(rune(s[i])) || s[i] == '_') {
		i++
	}
	return s[:i]
}

// skipLeadingComments drops whitespace, -- line comments and /* */ block comments.
func skipLeadingComments(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			return s
		}
	}
}

// statementEnd returns the index of the first semicolon outside quotes and
// comments, or -1.
func statementEnd(s string) int {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '"':
			j := i + 1
			for j < len(s) {
				if s[j] == c {
					if j+1 < len(s) && s[j+1] == c {
						j += 2 // doubled quote escape
						continue
					}
					break
				}
				j++
			}
			i = j
		case '-':
			if i+1 < len(s) && s[i+1] == '-' {
				nl := strings.IndexByte(s[i:], '\n')
				if nl < 0 {
					return -1
				}
				i += nl
			}
		case '/':
			if i+1 < len(s) && s[i+1] == '*' {
				endComment := strings.Index(s[i+2:], "*/")
				if endComment < 0 {
					return -1
				}
				i += endComment + 3
			}
		case ';':
			return i
		}
	}
	return -1
}
