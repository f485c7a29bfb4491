// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

// ValidateParams checks params against the method's declared parameters.
// Unknown keys are dropped, missing optional parameters receive their
// defaults, and every value is coerced to its declared type. Failures
// accumulate into a single validation error listing each bad field.
func ValidateParams(m *Method, params db.Record) (db.Record, error) {
	validated := make(db.Record, len(m.Params))
	var fields []proxyerr.FieldError

	for _, p := range m.Params {
		raw, ok := params[p.Name]
		if !ok || raw == nil {
			if p.Required {
				fields = append(fields, proxyerr.FieldError{Field: p.Name, Message: "required"})
				continue
			}
			validated[p.Name] = p.Default
			continue
		}

		value, err := coerceValue(p.Type, raw)
		if err != nil {
			fields = append(fields, proxyerr.FieldError{Field: p.Name, Message: err.Error()})
			continue
		}
		validated[p.Name] = value
	}

	if len(fields) > 0 {
		return nil, proxyerr.NewValidationError(
			fmt.Sprintf("invalid parameters for %s", m.Name), fields)
	}
	return validated, nil
}

// CoerceJSONParams decodes string values bound for object or list
// parameters. The CLI and query strings carry every value as text; a value
// that fails to parse is left in place for validation to report.
func CoerceJSONParams(m *Method, params db.Record) {
	for _, p := range m.Params {
		if !p.Type.Complex() {
			continue
		}
		s, ok := params[p.Name].(string)
		if !ok {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			params[p.Name] = decoded
		}
	}
}

// Layouts accepted for timestamp parameters, tried in order.
var paramTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func coerceValue(t ParamType, v any) (any, error) {
	switch t {
	case TypeString:
		return coerceString(v)
	case TypeInt:
		return coerceInt(v)
	case TypeFloat:
		return coerceFloat(v)
	case TypeBool:
		return coerceBool(v)
	case TypeTimestamp:
		return coerceTimestamp(v)
	case TypeObject:
		return coerceObject(v)
	case TypeList:
		return coerceList(v)
	default:
		return v, nil
	}
}

func coerceString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("expected string")
}

func coerceInt(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("expected integer")
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer")
		}
		return n, nil
	}
	return nil, fmt.Errorf("expected integer")
}

func coerceFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number")
		}
		return f, nil
	}
	return nil, fmt.Errorf("expected number")
}

func coerceBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int:
		return intAsBool(int64(x))
	case int64:
		return intAsBool(x)
	case float64:
		return intAsBool(int64(x))
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
	}
	return nil, fmt.Errorf("expected boolean")
}

func intAsBool(n int64) (any, error) {
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return nil, fmt.Errorf("expected boolean")
}

func coerceTimestamp(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range paramTimeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
	}
	return nil, fmt.Errorf("expected timestamp")
}

func coerceObject(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case db.Record:
		return map[string]any(x), nil
	}
	return nil, fmt.Errorf("expected object")
}

func coerceList(v any) (any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list")
}
