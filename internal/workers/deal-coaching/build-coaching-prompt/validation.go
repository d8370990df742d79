package buildcoachingprompt

import "deal-coach/internal/common/validation"

var inputSchema = validation.MustCompile(GetInputSchema())

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"dealId", "tenantId", "userId"},
		Properties: map[string]validation.Property{
			"dealId": {
				Type:        "string",
				Description: "Deal to build coaching context for",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(128),
			},
			"tenantId": {
				Type:        "string",
				Description: "Tenant that owns the deal",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(128),
				Pattern:     validation.StringPtr(`^[A-Za-z0-9_.-]+$`),
			},
			"userId": {
				Type:        "string",
				Description: "User requesting coaching",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(128),
			},
			"userMessage": {
				Type:        "string",
				Description: "Message to enrich with deal context",
				MaxLength:   validation.IntPtr(8000),
			},
		},
		// Process instances carry unrelated variables; only the fields
		// above are checked.
		AdditionalProperties: true,
	}
}
