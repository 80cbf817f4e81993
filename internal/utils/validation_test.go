package utils

import (
	"strings"
	"testing"
)

// guardConfig represents a typical configuration struct with validation tags
type guardConfig struct {
	ServerURL string  `validate:"required,url" mapstructure:"server_url"`
	Binary    string  `validate:"required" mapstructure:"binary"`
	SoftPct   float64 `validate:"gt=0,lte=100" mapstructure:"soft_pct"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name          string
		input         interface{}
		expectError   bool
		errorContains []string
	}{
		{
			name: "Valid config",
			input: &guardConfig{
				ServerURL: "http://localhost:8080",
				Binary:    "ollama",
				SoftPct:   85,
			},
			expectError: false,
		},
		{
			name: "Missing required fields",
			input: &guardConfig{
				SoftPct: 85,
			},
			expectError:   true,
			errorContains: []string{"server_url is required", "binary is required"},
		},
		{
			name: "Out of range threshold",
			input: &guardConfig{
				ServerURL: "http://localhost:8080",
				Binary:    "ollama",
				SoftPct:   150,
			},
			expectError:   true,
			errorContains: []string{"soft_pct"},
		},
		{
			name:          "Nil input",
			input:         nil,
			expectError:   true,
			errorContains: []string{"invalid validation"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)

			if tt.expectError && err == nil {
				t.Errorf("expected error but got nil")
				return
			}

			if !tt.expectError && err != nil {
				t.Errorf("expected no error but got: %v", err)
				return
			}

			if tt.expectError && err != nil {
				errStr := err.Error()
				for _, expected := range tt.errorContains {
					if !strings.Contains(errStr, expected) {
						t.Errorf("error message '%s' does not contain '%s'", errStr, expected)
					}
				}
			}
		})
	}
}
