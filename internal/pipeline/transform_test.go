// internal/pipeline/transform_test.go
package pipeline

import (
	"context"
	"testing"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

func TestTransformRule_Transform(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		rule        TransformRule
		input       string
		expected    string
		expectError bool
	}{
		{
			name:     "trim spaces",
			rule:     TransformRule{Type: "trim"},
			input:    "  Camry SE  ",
			expected: "Camry SE",
		},
		{
			name:     "normalize spaces",
			rule:     TransformRule{Type: "normalize_spaces"},
			input:    "Grand    Cherokee\n\tLimited",
			expected: "Grand Cherokee Limited",
		},
		{
			name:     "lowercase",
			rule:     TransformRule{Type: "lowercase"},
			input:    "AUTOMATIC",
			expected: "automatic",
		},
		{
			name:     "uppercase",
			rule:     TransformRule{Type: "uppercase"},
			input:    "1hgcm82633a004352",
			expected: "1HGCM82633A004352",
		},
		{
			name:     "title",
			rule:     TransformRule{Type: "title"},
			input:    "midnight blue",
			expected: "Midnight Blue",
		},
		{
			name:     "remove html",
			rule:     TransformRule{Type: "remove_html"},
			input:    "Clean <b>title</b>",
			expected: "Clean title",
		},
		{
			name:     "extract number",
			rule:     TransformRule{Type: "extract_number"},
			input:    "Odometer: 41,250 mi",
			expected: "41250",
		},
		{
			name:     "strip currency",
			rule:     TransformRule{Type: "strip_currency"},
			input:    "$24,599 USD",
			expected: "24599",
		},
		{
			name:     "regex replace",
			rule:     TransformRule{Type: "regex", Pattern: `(?i)\s+4dr$`, Replacement: ""},
			input:    "Accord EX 4dr",
			expected: "Accord EX",
		},
		{
			name:     "replace",
			rule:     TransformRule{Type: "replace", Params: map[string]interface{}{"old": "Chevy", "new": "Chevrolet"}},
			input:    "Chevy",
			expected: "Chevrolet",
		},
		{
			name:     "truncate",
			rule:     TransformRule{Type: "truncate", Params: map[string]interface{}{"length": 6}},
			input:    "Silverado 1500",
			expected: "Silver",
		},
		{
			name:        "regex without pattern",
			rule:        TransformRule{Type: "regex"},
			input:       "x",
			expectError: true,
		},
		{
			name:        "unknown type",
			rule:        TransformRule{Type: "explode"},
			input:       "x",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.rule.Apply(ctx, tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestTransformList_Apply(t *testing.T) {
	list := TransformList{
		{Type: "normalize_spaces"},
		{Type: "lowercase"},
		{Type: "title"},
	}
	result, err := list.Apply(context.Background(), "  ALL   WHEEL drive ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result != "All Wheel Drive" {
		t.Errorf("Expected %q, got %q", "All Wheel Drive", result)
	}
}

func TestParseNumbers(t *testing.T) {
	if v, err := ParseFloat("$24,599.50"); err != nil || v != 24599.5 {
		t.Errorf("Expected 24599.5, got %v (%v)", v, err)
	}
	if v, err := ParseInt("32,000"); err != nil || v != 32000 {
		t.Errorf("Expected 32000, got %v (%v)", v, err)
	}
	if _, err := ParseInt("n/a"); err == nil {
		t.Error("Expected error for non-numeric input")
	}
}

func TestRecordTransformer_Apply(t *testing.T) {
	rt := &RecordTransformer{Fields: []FieldTransform{
		{Field: "model", Rules: TransformList{{Type: "regex", Pattern: `(?i)\s+for sale$`}}},
		{Field: "exterior_color", Rules: TransformList{{Type: "title"}}},
		{Field: "interior_color", Rules: TransformList{{Type: "title"}}},
	}}
	rec := vehicle.Record{Model: "Camry SE for sale", ExteriorColor: "SILVER"}

	if err := rt.Apply(context.Background(), &rec); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec.Model != "Camry SE" {
		t.Errorf("Expected model %q, got %q", "Camry SE", rec.Model)
	}
	if rec.ExteriorColor != "Silver" {
		t.Errorf("Expected color %q, got %q", "Silver", rec.ExteriorColor)
	}
	if rec.InteriorColor != "" {
		t.Errorf("Expected unset field to stay unset, got %q", rec.InteriorColor)
	}
}

func TestValidateFieldTransforms(t *testing.T) {
	tests := []struct {
		name    string
		fields  []FieldTransform
		wantErr bool
	}{
		{"valid", []FieldTransform{{Field: "model", Rules: TransformList{{Type: "trim"}}}}, false},
		{"unknown field", []FieldTransform{{Field: "price", Rules: TransformList{{Type: "trim"}}}}, true},
		{"bad regex", []FieldTransform{{Field: "model", Rules: TransformList{{Type: "regex", Pattern: "("}}}}, true},
		{"truncate without length", []FieldTransform{{Field: "model", Rules: TransformList{{Type: "truncate"}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFieldTransforms(tt.fields)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
