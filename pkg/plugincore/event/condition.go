package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseCondition compiles a textual condition into a Condition.
//
// Supported syntax, loosest binding first:
//
//	a or b
//	a and b
//	not a, !a
//	x == y, x != y, x >= y, x <= y, x > y, x < y, x contains y
//	x                  (truthiness)
//
// Operands are quoted strings, numbers, true/false/null, or event fields:
// id, type, source, namespace, version, priority, cancellable, and nested
// lookups into map data and metadata such as data.user.role or
// metadata.tenant. Unknown identifiers are treated as bare string literals.
//
// Example:
//
//	cond, err := event.ParseCondition(`data.amount >= 100 and metadata.region == "eu"`)
//	id, err := mgr.On("order:placed", h, event.WithCondition(cond))
func ParseCondition(expr string) (Condition, error) {
	n, err := parseCondExpr(expr)
	if err != nil {
		return nil, err
	}
	return func(evt *Event) bool { return n.eval(evt) }, nil
}

type condNode interface {
	eval(evt *Event) bool
}

type orNode struct{ left, right condNode }

func (n orNode) eval(evt *Event) bool { return n.left.eval(evt) || n.right.eval(evt) }

type andNode struct{ left, right condNode }

func (n andNode) eval(evt *Event) bool { return n.left.eval(evt) && n.right.eval(evt) }

type notNode struct{ inner condNode }

func (n notNode) eval(evt *Event) bool { return !n.inner.eval(evt) }

type compareNode struct {
	left, right operand
	cmp         func(l, r any) bool
}

func (n compareNode) eval(evt *Event) bool {
	return n.cmp(n.left.resolve(evt), n.right.resolve(evt))
}

type truthyNode struct{ value operand }

func (n truthyNode) eval(evt *Event) bool { return isTruthy(n.value.resolve(evt)) }

// Comparison operators, longer ones first so ">=" is not read as ">".
var comparisons = []struct {
	op  string
	cmp func(l, r any) bool
}{
	{"==", func(l, r any) bool { return fmt.Sprint(l) == fmt.Sprint(r) }},
	{"!=", func(l, r any) bool { return fmt.Sprint(l) != fmt.Sprint(r) }},
	{">=", func(l, r any) bool { return toFloat64(l) >= toFloat64(r) }},
	{"<=", func(l, r any) bool { return toFloat64(l) <= toFloat64(r) }},
	{">", func(l, r any) bool { return toFloat64(l) > toFloat64(r) }},
	{"<", func(l, r any) bool { return toFloat64(l) < toFloat64(r) }},
	{" contains ", func(l, r any) bool { return strings.Contains(fmt.Sprint(l), fmt.Sprint(r)) }},
}

func parseCondExpr(expr string) (condNode, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidCondition)
	}

	if l, r, ok := splitUnquoted(expr, " or "); ok {
		return parseBinary(l, r, func(a, b condNode) condNode { return orNode{a, b} })
	}
	if l, r, ok := splitUnquoted(expr, " and "); ok {
		return parseBinary(l, r, func(a, b condNode) condNode { return andNode{a, b} })
	}
	if rest, ok := strings.CutPrefix(expr, "not "); ok {
		inner, err := parseCondExpr(rest)
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	if rest, ok := strings.CutPrefix(expr, "!"); ok && !strings.HasPrefix(rest, "=") {
		inner, err := parseCondExpr(rest)
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}

	for _, c := range comparisons {
		l, r, ok := splitUnquoted(expr, c.op)
		if !ok {
			continue
		}
		l, r = strings.TrimSpace(l), strings.TrimSpace(r)
		if l == "" || r == "" {
			return nil, fmt.Errorf("%w: %q needs two operands", ErrInvalidCondition, strings.TrimSpace(c.op))
		}
		return compareNode{left: parseOperand(l), right: parseOperand(r), cmp: c.cmp}, nil
	}

	return truthyNode{parseOperand(expr)}, nil
}

func parseBinary(l, r string, mk func(a, b condNode) condNode) (condNode, error) {
	left, err := parseCondExpr(l)
	if err != nil {
		return nil, err
	}
	right, err := parseCondExpr(r)
	if err != nil {
		return nil, err
	}
	return mk(left, right), nil
}

// splitUnquoted splits s around the first occurrence of sep that is not
// inside single or double quotes.
func splitUnquoted(s, sep string) (string, string, bool) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(s[i:], sep):
			return s[:i], s[i+len(sep):], true
		}
	}
	return "", "", false
}

// operand is a literal or an event field reference.
type operand struct {
	literal any
	path    []string
}

func parseOperand(s string) operand {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return operand{literal: s[1 : len(s)-1]}
	}
	switch strings.ToLower(s) {
	case "true":
		return operand{literal: true}
	case "false":
		return operand{literal: false}
	case "null", "nil":
		return operand{literal: nil}
	}

	var num json.Number
	if err := json.Unmarshal([]byte(s), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return operand{literal: i}
		}
		if f, err := num.Float64(); err == nil {
			return operand{literal: f}
		}
	}

	path := strings.Split(s, ".")
	switch path[0] {
	case "id", "type", "source", "namespace", "version", "priority", "cancellable":
		if len(path) == 1 {
			return operand{path: path}
		}
	case "data", "metadata":
		return operand{path: path}
	}
	return operand{literal: s}
}

func (o operand) resolve(evt *Event) any {
	if o.path == nil {
		return o.literal
	}
	switch o.path[0] {
	case "id":
		return evt.ID
	case "type":
		return evt.Type
	case "source":
		return evt.Source
	case "namespace":
		return evt.Namespace
	case "version":
		return evt.Version
	case "priority":
		return int64(evt.Priority)
	case "cancellable":
		return evt.Cancellable
	case "data":
		return lookup(evt.Data, o.path[1:])
	case "metadata":
		return lookup(evt.Metadata, o.path[1:])
	}
	return nil
}

func lookup(v any, path []string) any {
	for _, key := range path {
		switch m := v.(type) {
		case map[string]any:
			v = m[key]
		case map[string]string:
			v = m[key]
		default:
			return nil
		}
	}
	return v
}

func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

func toFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case uint:
		return float64(val)
	case uint64:
		return float64(val)
	case string:
		var f float64
		_, _ = fmt.Sscanf(val, "%f", &f)
		return f
	default:
		return 0
	}
}
