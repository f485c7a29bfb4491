// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/genropy/gproxy/pkg/proxyerr"
)

// Predicate is one named condition inside a where expression. Value may be
// a ":name" reference to an externally bound parameter.
type Predicate struct {
	Column string
	Op     string
	Value  any
}

// whereOperators is the closed set of accepted condition operators.
var whereOperators = map[string]bool{
	"=": true, "!=": true, "<>": true,
	"<": true, ">": true, "<=": true, ">=": true,
	"LIKE": true, "ILIKE": true, "NOT LIKE": true, "NOT ILIKE": true,
	"IN": true, "NOT IN": true,
	"IS NULL": true, "IS NOT NULL": true,
	"BETWEEN": true,
}

var predicateRef = regexp.MustCompile(`\$(\w+)`)

// ParseWhereKwargs extracts named predicates from a parameter map. Two
// styles are accepted: where_<name> bound to a {column, op, value} map, or
// flattened where_<name>_column / where_<name>_op / where_<name>_value
// keys. Flattened groups missing a column entry are dropped.
func ParseWhereKwargs(kwargs map[string]any) map[string]Predicate {
	conditions := map[string]Predicate{}
	flat := map[string]map[string]any{}

	for key, value := range kwargs {
		if !strings.HasPrefix(key, "where_") {
			continue
		}
		rest := strings.TrimPrefix(key, "where_")
		if m, ok := value.(map[string]any); ok {
			if _, hasCol := m["column"]; hasCol {
				conditions[rest] = predicateFromMap(m)
				continue
			}
		}
		name, field, found := strings.Cut(rest, "_")
		if !found {
			continue
		}
		if flat[name] == nil {
			flat[name] = map[string]any{}
		}
		flat[name][field] = value
	}

	for name, fields := range flat {
		if _, hasCol := fields["column"]; hasCol {
			conditions[name] = predicateFromMap(fields)
		}
	}
	return conditions
}

func predicateFromMap(m map[string]any) Predicate {
	p := Predicate{Op: "="}
	if col, ok := m["column"].(string); ok {
		p.Column = col
	}
	if op, ok := m["op"].(string); ok && op != "" {
		p.Op = op
	}
	p.Value = m["value"]
	return p
}

// WhereBuilder renders WHERE clauses from equality maps or expressions
// over named predicates.
type WhereBuilder struct {
	adapter Adapter
}

// NewWhereBuilder returns a builder bound to an adapter's placeholder
// style.
func NewWhereBuilder(a Adapter) *WhereBuilder {
	return &WhereBuilder{adapter: a}
}

// BuildEq renders an equality map as ANDed comparisons. Columns are
// emitted in sorted order so the SQL is stable; parameters are named
// w_<column>.
func (b *WhereBuilder) BuildEq(where map[string]any) (string, map[string]any) {
	if len(where) == 0 {
		return "", map[string]any{}
	}
	parts := make([]string, 0, len(where))
	params := make(map[string]any, len(where))
	for _, col := range sortedKeys(where) {
		name := "w_" + col
		parts = append(parts, col+" = "+b.adapter.Placeholder(name))
		params[name] = where[col]
	}
	return strings.Join(parts, " AND "), params
}

// BuildExpr renders a boolean expression whose $name references are
// replaced by the SQL of the corresponding named predicate. extra holds
// values for ":param" references and is merged into the returned
// parameter map.
func (b *WhereBuilder) BuildExpr(expr string, conditions map[string]Predicate, extra map[string]any) (string, map[string]any, error) {
	params := make(map[string]any, len(extra))
	for k, v := range extra {
		params[k] = v
	}

	var buildErr error
	sql := predicateRef.ReplaceAllStringFunc(expr, func(ref string) string {
		name := strings.TrimPrefix(ref, "$")
		cond, ok := conditions[name]
		if !ok {
			if buildErr == nil {
				buildErr = proxyerr.NewConfigurationError(fmt.Sprintf("unknown condition %q in where expression", name), nil)
			}
			return ref
		}
		rendered, err := b.conditionSQL(cond, name, params)
		if err != nil {
			if buildErr == nil {
				buildErr = err
			}
			return ref
		}
		return "(" + rendered + ")"
	})
	if buildErr != nil {
		return "", nil, buildErr
	}
	return sql, params, nil
}

func (b *WhereBuilder) conditionSQL(cond Predicate, name string, params map[string]any) (string, error) {
	op := strings.ToUpper(strings.TrimSpace(cond.Op))
	if op == "" {
		op = "="
	}
	if !whereOperators[op] {
		return "", proxyerr.NewConfigurationError(fmt.Sprintf("unsupported operator %q", cond.Op), nil)
	}

	switch op {
	case "IS NULL", "IS NOT NULL":
		return cond.Column + " " + op, nil

	case "IN", "NOT IN":
		values, err := valueAsSlice(cond.Value)
		if err != nil {
			return "", proxyerr.NewConfigurationError(op+" requires a list value", err)
		}
		if len(values) == 0 {
			if op == "IN" {
				return "1=0", nil
			}
			return "1=1", nil
		}
		placeholders := make([]string, 0, len(values))
		for i, v := range values {
			paramName := "c_" + name + "_" + strconv.Itoa(i)
			placeholders = append(placeholders, b.adapter.Placeholder(paramName))
			params[paramName] = v
		}
		return cond.Column + " " + op + " (" + strings.Join(placeholders, ", ") + ")", nil

	case "BETWEEN":
		values, err := valueAsSlice(cond.Value)
		if err != nil || len(values) != 2 {
			return "", proxyerr.NewConfigurationError("BETWEEN requires a [low, high] pair", err)
		}
		low := "c_" + name + "_low"
		high := "c_" + name + "_high"
		params[low] = values[0]
		params[high] = values[1]
		return cond.Column + " BETWEEN " + b.adapter.Placeholder(low) + " AND " + b.adapter.Placeholder(high), nil
	}

	// ":param" values reference an externally bound parameter.
	if ref, ok := cond.Value.(string); ok && strings.HasPrefix(ref, ":") {
		return cond.Column + " " + op + " " + b.adapter.Placeholder(ref[1:]), nil
	}

	paramName := "c_" + name
	params[paramName] = cond.Value
	return cond.Column + " " + op + " " + b.adapter.Placeholder(paramName), nil
}

func valueAsSlice(v any) ([]any, error) {
	switch vv := v.(type) {
	case []any:
		return vv, nil
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, nil
	case []int64:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("got nil")
	default:
		return nil, fmt.Errorf("got %T", v)
	}
}
