package binder

import (
	"strings"
	"unicode"
)

// suspiciousFragments are matched anywhere in a value, case-insensitively.
// URL-encoded forms catch values that were encoded twice by the client.
var suspiciousFragments = []string{
	"'",
	"%27",
	"--",
	"#",
	"%23",
	";",
	"%3b",
	"/*",
	"*/",
}

// suspiciousKeywords are matched as whole words, case-insensitively.
var suspiciousKeywords = map[string]bool{
	"UNION":    true,
	"SELECT":   true,
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"EXEC":     true,
	"EXECUTE":  true,
	"DECLARE":  true,
	"MERGE":    true,
	"GRANT":    true,
	"REVOKE":   true,
	"SHUTDOWN": true,
	"WAITFOR":  true,
}

// procedurePrefixes flag SQL Server extended and system procedure names.
var procedurePrefixes = []string{"XP_", "SP_"}

// Suspicious reports whether value looks like an injection attempt.
//
// It is a denylist heuristic: it rejects statement terminators, comment and
// quote characters (plain and URL-encoded), whole-word SQL control keywords
// and xp_/sp_ procedure names. Ordinary values such as "42", "2024-01-01" or
// "selection" pass. It is advisory and does not make textual binding safe.
func Suspicious(value string) bool {
	lower := strings.ToLower(value)
	for _, frag := range suspiciousFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}

	words := strings.FieldsFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		upper := strings.ToUpper(w)
		if suspiciousKeywords[upper] {
			return true
		}
		for _, prefix := range procedurePrefixes {
			if strings.HasPrefix(upper, prefix) {
				return true
			}
		}
	}
	return false
}
