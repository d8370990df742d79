package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() JSONSchema {
	return JSONSchema{
		Type:     "object",
		Required: []string{"dealId", "tenantId"},
		Properties: map[string]Property{
			"dealId":   {Type: "string", MinLength: IntPtr(1)},
			"tenantId": {Type: "string", MinLength: IntPtr(1), Pattern: StringPtr(`^[a-zA-Z0-9_-]+$`)},
			"note":     {Type: "string", MaxLength: IntPtr(5)},
		},
	}
}

func TestSchema_Valid(t *testing.T) {
	s := MustCompile(testSchema())

	res := s.Validate(map[string]interface{}{"dealId": "d1", "tenantId": "acme"})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestSchema_ReportsFields(t *testing.T) {
	s := MustCompile(testSchema())

	tests := []struct {
		name  string
		doc   map[string]interface{}
		field string
		code  string
	}{
		{"missing required", map[string]interface{}{"dealId": "d1"}, "tenantId", "REQUIRED"},
		{"wrong type", map[string]interface{}{"dealId": 7, "tenantId": "acme"}, "dealId", "INVALID_TYPE"},
		{"too short", map[string]interface{}{"dealId": "", "tenantId": "acme"}, "dealId", "STRING_GTE"},
		{"too long", map[string]interface{}{"dealId": "d1", "tenantId": "acme", "note": "toolong"}, "note", "STRING_LTE"},
		{"pattern", map[string]interface{}{"dealId": "d1", "tenantId": "a cme"}, "tenantId", "PATTERN"},
		{"extra field", map[string]interface{}{"dealId": "d1", "tenantId": "acme", "x": 1}, "x", "ADDITIONAL_PROPERTY_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Validate(tt.doc)
			require.False(t, res.Valid)
			require.True(t, res.HasErrors(tt.field), "%v", res.Errors)

			errs := res.GetErrorsForField(tt.field)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.NotEmpty(t, res.GetErrorMessages())
		})
	}
}

func TestSchema_AdditionalPropertiesAllowed(t *testing.T) {
	js := testSchema()
	js.AdditionalProperties = true
	s := MustCompile(js)

	res := s.Validate(map[string]interface{}{"dealId": "d1", "tenantId": "acme", "extra": true})
	assert.True(t, res.Valid)
}

func TestMustCompile_PanicsOnBadSchema(t *testing.T) {
	assert.Panics(t, func() {
		MustCompile(JSONSchema{Type: "object", Properties: map[string]Property{"a": {Type: "not-a-type"}}})
	})
}
