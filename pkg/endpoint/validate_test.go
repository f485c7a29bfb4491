// SPDX-FileCopyrightText: Copyright 2025 Softwell S.r.l.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genropy/gproxy/pkg/db"
	"github.com/genropy/gproxy/pkg/proxyerr"
)

func TestValidateParams(t *testing.T) {
	m := &Method{
		Name: "configure",
		Params: []Param{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "port", Type: TypeInt, Default: int64(8080)},
			{Name: "debug", Type: TypeBool, Default: false},
			{Name: "note", Type: TypeString},
		},
	}

	t.Run("defaults applied for absent optionals", func(t *testing.T) {
		out, err := ValidateParams(m, db.Record{"name": "alpha"})
		require.NoError(t, err)
		assert.Equal(t, "alpha", out["name"])
		assert.Equal(t, int64(8080), out["port"])
		assert.Equal(t, false, out["debug"])
		assert.Contains(t, out, "note")
		assert.Nil(t, out["note"])
	})

	t.Run("missing required is reported", func(t *testing.T) {
		_, err := ValidateParams(m, db.Record{})
		require.Error(t, err)
		assert.True(t, proxyerr.IsValidation(err))
		fields := proxyerr.FieldsOf(err)
		require.Len(t, fields, 1)
		assert.Equal(t, "name", fields[0].Field)
		assert.Equal(t, "required", fields[0].Message)
	})

	t.Run("unknown keys are dropped", func(t *testing.T) {
		out, err := ValidateParams(m, db.Record{"name": "a", "bogus": 1})
		require.NoError(t, err)
		assert.NotContains(t, out, "bogus")
	})

	t.Run("failures accumulate", func(t *testing.T) {
		_, err := ValidateParams(m, db.Record{"port": "not-a-number", "debug": "maybe"})
		require.Error(t, err)
		fields := proxyerr.FieldsOf(err)
		assert.Len(t, fields, 3)
	})

	t.Run("explicit null counts as absent", func(t *testing.T) {
		out, err := ValidateParams(m, db.Record{"name": "a", "port": nil})
		require.NoError(t, err)
		assert.Equal(t, int64(8080), out["port"])
	})
}

func TestCoerceValue(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	cases := []struct {
		name    string
		typ     ParamType
		in      any
		want    any
		wantErr bool
	}{
		{"string passthrough", TypeString, "x", "x", false},
		{"int to string", TypeString, 42, "42", false},
		{"json number to string", TypeString, float64(42), "42", false},
		{"bool to string", TypeString, true, "true", false},
		{"map to string fails", TypeString, map[string]any{}, nil, true},

		{"int passthrough", TypeInt, int64(7), int64(7), false},
		{"int from int", TypeInt, 7, int64(7), false},
		{"int from whole float", TypeInt, float64(7), int64(7), false},
		{"int from fractional float fails", TypeInt, 7.5, nil, true},
		{"int from string", TypeInt, "42", int64(42), false},
		{"int from padded string", TypeInt, " 42 ", int64(42), false},
		{"int from bad string fails", TypeInt, "forty", nil, true},

		{"float from string", TypeFloat, "2.5", 2.5, false},
		{"float from int", TypeFloat, 2, 2.0, false},
		{"float from bad string fails", TypeFloat, "x", nil, true},

		{"bool passthrough", TypeBool, true, true, false},
		{"bool from yes", TypeBool, "yes", true, false},
		{"bool from OFF", TypeBool, "OFF", false, false},
		{"bool from 1", TypeBool, "1", true, false},
		{"bool from int 0", TypeBool, 0, false, false},
		{"bool from int 2 fails", TypeBool, 2, nil, true},
		{"bool from maybe fails", TypeBool, "maybe", nil, true},

		{"timestamp passthrough", TypeTimestamp, ts, ts, false},
		{"timestamp rfc3339", TypeTimestamp, "2025-06-01T12:30:00Z", ts, false},
		{"timestamp date only", TypeTimestamp, "2025-06-01",
			time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"timestamp garbage fails", TypeTimestamp, "tomorrow", nil, true},

		{"object passthrough", TypeObject, map[string]any{"a": 1}, map[string]any{"a": 1}, false},
		{"object from record", TypeObject, db.Record{"a": 1}, map[string]any{"a": 1}, false},
		{"object from string fails", TypeObject, `{"a":1}`, nil, true},

		{"list passthrough", TypeList, []any{1, 2}, []any{1, 2}, false},
		{"list from strings", TypeList, []string{"a"}, []any{"a"}, false},
		{"list from scalar fails", TypeList, 3, nil, true},

		{"any passthrough", TypeAny, map[string]any{"k": "v"}, map[string]any{"k": "v"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := coerceValue(tc.typ, tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCoerceJSONParams(t *testing.T) {
	m := &Method{
		Name: "set",
		Params: []Param{
			{Name: "config", Type: TypeObject},
			{Name: "tags", Type: TypeList},
			{Name: "label", Type: TypeString},
		},
	}

	t.Run("decodes strings for complex params", func(t *testing.T) {
		params := db.Record{
			"config": `{"host": "smtp.example.com"}`,
			"tags":   `["a", "b"]`,
			"label":  `{"not": "touched"}`,
		}
		CoerceJSONParams(m, params)

		assert.Equal(t, map[string]any{"host": "smtp.example.com"}, params["config"])
		assert.Equal(t, []any{"a", "b"}, params["tags"])
		assert.Equal(t, `{"not": "touched"}`, params["label"])
	})

	t.Run("bad json left for validation", func(t *testing.T) {
		params := db.Record{"config": "{broken"}
		CoerceJSONParams(m, params)
		assert.Equal(t, "{broken", params["config"])

		_, err := ValidateParams(m, params)
		require.Error(t, err)
		assert.True(t, proxyerr.IsValidation(err))
	})

	t.Run("non-strings ignored", func(t *testing.T) {
		params := db.Record{"config": map[string]any{"k": 1}}
		CoerceJSONParams(m, params)
		assert.Equal(t, map[string]any{"k": 1}, params["config"])
	})
}
