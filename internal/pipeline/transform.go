// internal/pipeline/transform.go

// Package pipeline holds the text transforms applied to extracted values
// and the configurable per-field cleanup of vehicle records.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

var (
	spacesPattern   = regexp.MustCompile(`\s+`)
	htmlTagPattern  = regexp.MustCompile(`<[^>]*>`)
	numberPattern   = regexp.MustCompile(`\d[\d,]*\.?\d*`)
	currencyPattern = regexp.MustCompile(`[$€£,\s]|USD`)
)

// Casers keep state, so each call gets its own.
func titleCase(s string) string { return cases.Title(language.English).String(s) }

func lowerCase(s string) string { return cases.Lower(language.English).String(s) }

func upperCase(s string) string { return cases.Upper(language.English).String(s) }

// TransformRule defines a single transformation rule
type TransformRule struct {
	Type        string                 `yaml:"type" json:"type"`
	Pattern     string                 `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Replacement string                 `yaml:"replacement,omitempty" json:"replacement,omitempty"`
	Params      map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// TransformList represents a list of transformation rules that can be applied sequentially
type TransformList []TransformRule

// Apply applies all transformation rules in sequence to the input string
func (tl TransformList) Apply(ctx context.Context, input string) (string, error) {
	result := input
	for i, rule := range tl {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var err error
		result, err = rule.Apply(ctx, result)
		if err != nil {
			return "", fmt.Errorf("transform rule %d failed: %w", i, err)
		}
	}
	return result, nil
}

// Apply applies a single transformation rule to the input string
func (tr TransformRule) Apply(ctx context.Context, input string) (string, error) {
	switch tr.Type {
	case "trim":
		return strings.TrimSpace(input), nil

	case "normalize_spaces":
		return spacesPattern.ReplaceAllString(strings.TrimSpace(input), " "), nil

	case "lowercase":
		return lowerCase(input), nil

	case "uppercase":
		return upperCase(input), nil

	case "title":
		return titleCase(input), nil

	case "remove_html":
		return htmlTagPattern.ReplaceAllString(input, ""), nil

	case "extract_number":
		return strings.ReplaceAll(numberPattern.FindString(input), ",", ""), nil

	case "strip_currency":
		return currencyPattern.ReplaceAllString(input, ""), nil

	case "regex":
		if tr.Pattern == "" {
			return "", fmt.Errorf("regex pattern is required")
		}
		re, err := regexp.Compile(tr.Pattern)
		if err != nil {
			return "", fmt.Errorf("invalid regex pattern: %w", err)
		}
		return re.ReplaceAllString(input, tr.Replacement), nil

	case "replace":
		if tr.Params == nil || tr.Params["old"] == nil || tr.Params["new"] == nil {
			return "", fmt.Errorf("replace requires old and new parameters")
		}
		old := fmt.Sprintf("%v", tr.Params["old"])
		repl := fmt.Sprintf("%v", tr.Params["new"])
		return strings.ReplaceAll(input, old, repl), nil

	case "truncate":
		n, err := intParam(tr.Params, "length")
		if err != nil {
			return "", err
		}
		runes := []rune(input)
		if len(runes) > n {
			return strings.TrimSpace(string(runes[:n])), nil
		}
		return input, nil

	default:
		return "", fmt.Errorf("unknown transform type: %s", tr.Type)
	}
}

func intParam(params map[string]interface{}, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("%s parameter must be a number, got %T", key, v)
}

// ParseInt converts a string such as "32,000" to an integer
func ParseInt(s string) (int, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.Atoi(cleaned)
}

// ParseFloat converts a string such as "$24,599.00" to a float64
func ParseFloat(s string) (float64, error) {
	cleaned := currencyPattern.ReplaceAllString(s, "")
	return strconv.ParseFloat(cleaned, 64)
}

// Title title-cases a keyword such as "automatic" or "all wheel drive".
func Title(s string) string {
	return titleCase(lowerCase(s))
}

// FieldTransform is a rule chain applied to one string field of a record.
type FieldTransform struct {
	Field string        `json:"field" yaml:"field"`
	Rules TransformList `json:"rules" yaml:"rules"`
}

// recordFields maps configurable field names to the record's string fields.
var recordFields = map[string]func(r *vehicle.Record) *string{
	"make":           func(r *vehicle.Record) *string { return &r.Make },
	"model":          func(r *vehicle.Record) *string { return &r.Model },
	"vin":            func(r *vehicle.Record) *string { return &r.VIN },
	"transmission":   func(r *vehicle.Record) *string { return &r.Transmission },
	"fuel_type":      func(r *vehicle.Record) *string { return &r.FuelType },
	"drivetrain":     func(r *vehicle.Record) *string { return &r.Drivetrain },
	"body_style":     func(r *vehicle.Record) *string { return &r.BodyStyle },
	"exterior_color": func(r *vehicle.Record) *string { return &r.ExteriorColor },
	"interior_color": func(r *vehicle.Record) *string { return &r.InteriorColor },
	"stock_number":   func(r *vehicle.Record) *string { return &r.StockNumber },
	"description":    func(r *vehicle.Record) *string { return &r.Description },
}

// RecordTransformer applies configured cleanup rules to extracted records.
type RecordTransformer struct {
	Fields []FieldTransform
}

// Apply rewrites the configured fields of rec in place. Empty fields are
// left alone so a rule never turns "unset" into a value.
func (rt *RecordTransformer) Apply(ctx context.Context, rec *vehicle.Record) error {
	if rt == nil {
		return nil
	}
	for _, ft := range rt.Fields {
		accessor, ok := recordFields[ft.Field]
		if !ok {
			return fmt.Errorf("unknown record field: %s", ft.Field)
		}
		field := accessor(rec)
		if *field == "" {
			continue
		}
		transformed, err := ft.Rules.Apply(ctx, *field)
		if err != nil {
			return fmt.Errorf("field transform failed for %s: %w", ft.Field, err)
		}
		*field = transformed
	}
	return nil
}

// ValidateFieldTransforms checks field names and rule parameters.
func ValidateFieldTransforms(fields []FieldTransform) error {
	for _, ft := range fields {
		if _, ok := recordFields[ft.Field]; !ok {
			return fmt.Errorf("unknown record field: %s", ft.Field)
		}
		if err := ValidateTransformRules(ft.Rules); err != nil {
			return fmt.Errorf("field %s: %w", ft.Field, err)
		}
	}
	return nil
}

// ValidateTransformRules validates transformation rule configuration
func ValidateTransformRules(rules TransformList) error {
	for i, rule := range rules {
		switch rule.Type {
		case "trim", "normalize_spaces", "lowercase", "uppercase", "title", "remove_html", "extract_number", "strip_currency":
			// These transforms require no additional parameters
		case "regex":
			if rule.Pattern == "" {
				return fmt.Errorf("rule %d: regex pattern is required", i)
			}
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return fmt.Errorf("rule %d: invalid regex pattern: %w", i, err)
			}
		case "replace":
			if rule.Params == nil || rule.Params["old"] == nil || rule.Params["new"] == nil {
				return fmt.Errorf("rule %d: replace requires old and new parameters", i)
			}
		case "truncate":
			if _, err := intParam(rule.Params, "length"); err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
		default:
			return fmt.Errorf("rule %d: unknown transform type: %s", i, rule.Type)
		}
	}
	return nil
}
