package binder

import (
	"sort"
	"strings"

	"github.com/mikeschinkel/go-sqlparams"
)

// BoundQuery is the result of binding request values into a template.
// It is built per request and never cached.
type BoundQuery struct {
	// Template is the original template text.
	Template string

	// SQL is the final statement to execute.
	SQL string
}

// scan returns the placeholder occurrences of template in source order.
// "#" is masked before parsing so "#temp" and "##global" table names read as
// identifiers; the mask keeps byte offsets aligned with template.
func scan(template string) (sqlparams.QueryTokens, []sqlparams.Parameter, error) {
	masked := strings.ReplaceAll(template, "#", "_")
	parsed, err := sqlparams.ParseSQL(sqlparams.SQLQuery(masked), func(int) string { return "?" })
	if err != nil {
		return nil, nil, &BindingError{Kind: ErrMalformedTemplate, Err: err}
	}

	occurrences := make(sqlparams.QueryTokens, len(parsed.Occurrences()))
	copy(occurrences, parsed.Occurrences())
	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].Start < occurrences[j].Start
	})

	return occurrences, parsed.Parameters(), nil
}

// ExtractPlaceholders returns the distinct placeholder names in template,
// in order of first occurrence.
//
// Returns:
//   - []string: placeholder names without the ":" sigil (empty, never nil)
//   - error: a *BindingError wrapping ErrMalformedTemplate
func ExtractPlaceholders(template string) ([]string, error) {
	_, params, err := scan(template)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, string(p.Name))
	}
	return names, nil
}

// Validate reports whether template can be scanned.
// It is used at startup so malformed templates are rejected before serving.
func Validate(template string) error {
	_, _, err := scan(template)
	return err
}

// Bind substitutes values into template.
//
// Only placeholders with an entry in values are replaced; the rest stay in the
// SQL as literal tokens. Replacement happens at the scanned token offsets, so
// a value for :id never touches :idx. When injectionCheck is set every
// supplied value that is actually used is screened with Suspicious first.
//
// Parameters:
//   - template: SQL text with colon placeholders
//   - values: placeholder name to raw value
//   - injectionCheck: screen values before substitution
//
// Returns:
//   - BoundQuery: the template and final SQL
//   - error: a *BindingError wrapping ErrInjectionSuspected or ErrMalformedTemplate
func Bind(template string, values map[string]string, injectionCheck bool) (BoundQuery, error) {
	occurrences, _, err := scan(template)
	if err != nil {
		return BoundQuery{}, err
	}

	if injectionCheck {
		checked := make(map[string]bool, len(occurrences))
		for _, occ := range occurrences {
			name := string(occ.Name)
			value, ok := values[name]
			if !ok || checked[name] {
				continue
			}
			checked[name] = true
			if Suspicious(value) {
				return BoundQuery{}, &BindingError{
					Kind:        ErrInjectionSuspected,
					Placeholder: name,
					Value:       value,
				}
			}
		}
	}

	var b strings.Builder
	b.Grow(len(template))
	last := 0
	for _, occ := range occurrences {
		value, ok := values[string(occ.Name)]
		if !ok {
			continue
		}
		b.WriteString(template[last:occ.Start])
		b.WriteString(value)
		last = occ.End
	}
	b.WriteString(template[last:])

	return BoundQuery{Template: template, SQL: b.String()}, nil
}
