package sqlast

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// filterIdentifier restricts column and table names in parsed filters to
// plain identifiers. Anything else is rejected before it reaches SQL text.
var filterIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseFilter parses a textual restriction into a Predicate.
//
// The grammar covers the conditions mutation plans are built from:
//
//	filter     := comparison { "and" comparison }
//	comparison := column op literal
//	            | column "is null"
//	            | column "is not null"
//	column     := name | table "." name
//	op         := "=" | "==" | "!=" | "<" | "<=" | ">" | ">="
//	literal    := 'text' | "text" | integer | true | false
//
// "and", "is null" and "is not null" match case-insensitively; "==" is
// accepted as a spelling of "=". Values always render as placeholders, so
// literal text never appears in generated SQL.
func ParseFilter(input string) (Predicate, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty filter expression")
	}

	parts := splitAnd(input)
	predicates := make([]Predicate, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("empty condition in filter %q", input)
		}
		pred, err := parseComparison(part)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, pred)
	}
	if len(predicates) == 1 {
		return predicates[0], nil
	}
	return And{Predicates: predicates}, nil
}

// splitAnd splits a filter on the word "and" outside quotes,
// case-insensitively.
func splitAnd(filter string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(filter); i++ {
		c := filter[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case ' ':
			if i+5 <= len(filter) && strings.EqualFold(filter[i:i+5], " and ") {
				parts = append(parts, strings.TrimSpace(filter[start:i]))
				start = i + 5
				i += 4
			}
		}
	}
	parts = append(parts, strings.TrimSpace(filter[start:]))
	return parts
}

func parseComparison(expr string) (Predicate, error) {
	if column, negated, ok := cutNullTest(expr); ok {
		ref, err := parseColumnRef(column)
		if err != nil {
			return nil, err
		}
		return IsNull{Column: ref, Negated: negated}, nil
	}

	left, op, right, err := splitComparison(expr)
	if err != nil {
		return nil, err
	}
	ref, err := parseColumnRef(left)
	if err != nil {
		return nil, err
	}
	value, err := parseFilterLiteral(right)
	if err != nil {
		return nil, err
	}
	return Comparison{Column: ref, Op: op, Operand: Literal{Value: value}}, nil
}

// cutNullTest recognizes the "is null" / "is not null" comparison forms.
func cutNullTest(expr string) (column string, negated bool, ok bool) {
	lower := strings.ToLower(expr)
	if strings.HasSuffix(lower, " is not null") {
		return strings.TrimSpace(expr[:len(expr)-len(" is not null")]), true, true
	}
	if strings.HasSuffix(lower, " is null") {
		return strings.TrimSpace(expr[:len(expr)-len(" is null")]), false, true
	}
	return "", false, false
}

// splitComparison finds the first comparison operator outside quotes and
// cuts the expression around it.
func splitComparison(expr string) (left string, op CompareOp, right string, err error) {
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '!':
			if i+1 < len(expr) && expr[i+1] == '=' {
				return expr[:i], OpNe, expr[i+2:], nil
			}
			return "", "", "", fmt.Errorf("unsupported operator in %q", expr)
		case '<':
			if i+1 < len(expr) && expr[i+1] == '=' {
				return expr[:i], OpLe, expr[i+2:], nil
			}
			return expr[:i], OpLt, expr[i+1:], nil
		case '>':
			if i+1 < len(expr) && expr[i+1] == '=' {
				return expr[:i], OpGe, expr[i+2:], nil
			}
			return expr[:i], OpGt, expr[i+1:], nil
		case '=':
			if i+1 < len(expr) && expr[i+1] == '=' {
				return expr[:i], OpEq, expr[i+2:], nil
			}
			return expr[:i], OpEq, expr[i+1:], nil
		}
	}
	return "", "", "", fmt.Errorf("no comparison operator in %q", expr)
}

func parseColumnRef(s string) (ColumnRef, error) {
	s = strings.TrimSpace(s)
	if table, name, qualified := strings.Cut(s, "."); qualified {
		if !filterIdentifier.MatchString(table) || !filterIdentifier.MatchString(name) {
			return ColumnRef{}, fmt.Errorf("invalid column reference %q", s)
		}
		return ColumnRef{Table: table, Name: name}, nil
	}
	if !filterIdentifier.MatchString(s) {
		return ColumnRef{}, fmt.Errorf("invalid column reference %q", s)
	}
	return ColumnRef{Name: s}, nil
}

// parseFilterLiteral interprets the right-hand side of a comparison.
// Quoted text stays text; bare words must be integers or booleans.
func parseFilterLiteral(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("missing comparison value")
	}
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return s[1 : len(s)-1], nil
		}
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("unsupported literal %q: quote text values", s)
	}
	return n, nil
}
