package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

// Predicate reports whether an entry should be admitted.
type Predicate func(entry *logging.Entry) bool

// Compiler turns a user filter string into a Predicate. A blank string yields a nil Predicate.
type Compiler func(expr string) (Predicate, error)

type clause struct {
	field logging.Field
	op    string
	value string
}

// Compile parses clauses of the form `Label op value` joined by `&&`, e.g.
//
//	Request.Method == GET && Response.Status >= 400
//	Request.URL contains "/api/"
//
// Supported operators: == != > >= < <= contains.
func Compile(expr string) (Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	var clauses []clause
	for _, part := range splitClauses(expr) {
		c, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
		}
		clauses = append(clauses, c)
	}

	return func(entry *logging.Entry) bool {
		for _, c := range clauses {
			if !c.matches(entry) {
				return false
			}
		}
		return true
	}, nil
}

// splitClauses splits on && outside double quotes.
func splitClauses(expr string) []string {
	var (
		parts   []string
		start   int
		quoted  bool
		escaped bool
	)
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; {
		case escaped:
			escaped = false
		case c == '\\' && quoted:
			escaped = true
		case c == '"':
			quoted = !quoted
		case !quoted && c == '&' && i+1 < len(expr) && expr[i+1] == '&':
			parts = append(parts, expr[start:i])
			start = i + 2
			i++
		}
	}
	return append(parts, expr[start:])
}

func parseClause(s string) (clause, error) {
	parts := strings.SplitN(s, " ", 2)
	if len(parts) != 2 {
		return clause{}, fmt.Errorf("expected `field op value`, got %q", s)
	}
	field, ok := logging.FieldByLabel(parts[0])
	if !ok {
		return clause{}, fmt.Errorf("unknown field %q", parts[0])
	}

	rest := strings.TrimSpace(parts[1])
	opAndValue := strings.SplitN(rest, " ", 2)
	if len(opAndValue) != 2 {
		return clause{}, fmt.Errorf("missing value in %q", s)
	}
	op := opAndValue[0]
	switch op {
	case "==", "!=", ">", ">=", "<", "<=", "contains":
	default:
		return clause{}, fmt.Errorf("unknown operator %q", op)
	}

	value := strings.TrimSpace(opAndValue[1])
	if unquoted, err := strconv.Unquote(value); err == nil {
		value = unquoted
	}

	if isOrdering(op) {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return clause{}, fmt.Errorf("operator %s needs a number, got %q", op, value)
		}
	}

	return clause{field: field, op: op, value: value}, nil
}

func isOrdering(op string) bool {
	return op == ">" || op == ">=" || op == "<" || op == "<="
}

func (c clause) matches(entry *logging.Entry) bool {
	v, ok := entry.ValueByKey(c.field)
	if !ok {
		return false
	}

	if c.op == "contains" {
		return strings.Contains(stringOf(v), c.value)
	}

	if lhs, err := cast.ToFloat64E(v); err == nil {
		if rhs, err := strconv.ParseFloat(c.value, 64); err == nil {
			return compareFloat(lhs, c.op, rhs)
		}
	}
	if isOrdering(c.op) {
		return false
	}

	equal := stringOf(v) == c.value
	if c.op == "!=" {
		return !equal
	}
	return equal
}

func stringOf(v any) string {
	if list, ok := v.([]string); ok {
		return strings.Join(list, "\n")
	}
	return cast.ToString(v)
}

func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
