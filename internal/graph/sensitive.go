package graph

import "strings"

// Built-in substring dictionaries for sensitive data. Matching is
// case-insensitive.
var (
	defaultSensitiveFields = []string{
		"password", "secret", "token", "key", "ssn", "credit_card",
		"api_key", "auth", "credential", "private", "salt", "hash",
	}
	defaultSensitiveTables = []string{
		"user", "account", "credential", "auth", "session", "token",
		"payment", "billing", "secret", "key", "password",
	}
)

// Sensitivity classifies field and table names by substring match.
type Sensitivity struct {
	fields []string
	tables []string
}

// DefaultSensitivity uses the built-in dictionaries only.
func DefaultSensitivity() *Sensitivity {
	return NewSensitivity(nil, nil)
}

// NewSensitivity extends the built-in dictionaries with extra patterns.
func NewSensitivity(extraFields, extraTables []string) *Sensitivity {
	return &Sensitivity{
		fields: mergePatterns(defaultSensitiveFields, extraFields),
		tables: mergePatterns(defaultSensitiveTables, extraTables),
	}
}

// IsSensitiveField reports whether a field name looks sensitive.
func (s *Sensitivity) IsSensitiveField(name string) bool {
	return containsAny(name, s.fields)
}

// IsSensitiveTable reports whether a table name looks sensitive.
func (s *Sensitivity) IsSensitiveTable(name string) bool {
	return containsAny(name, s.tables)
}

func containsAny(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func mergePatterns(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, p := range append(append([]string(nil), base...), extra...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
