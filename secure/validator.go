package secure

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// Injection detector families. Each entry names the family so audit logs can
// say what fired without echoing the payload.
var injectionDetectors = []struct {
	family  string
	pattern *regexp.Regexp
}{
	{"sql", regexp.MustCompile(`(?i)('|;)\s*(drop|delete|insert|update|alter|truncate)\b`)},
	{"sql", regexp.MustCompile(`(?i)'\s*or\s*'[^']*'\s*=\s*'`)},
	{"sql", regexp.MustCompile(`(?i);\s*--|'\s*--`)},
	{"cypher", regexp.MustCompile(`(?i)\bmatch\b[^;]*\b(delete|detach|set|remove)\b`)},
	{"cypher", regexp.MustCompile(`(?i)\b(create|merge)\s*\(.*\)\s*(delete|set)\b`)},
	{"script", regexp.MustCompile(`(?i)<\s*script\b`)},
	{"script", regexp.MustCompile(`(?i)javascript\s*:`)},
	{"command", regexp.MustCompile(`\$\(`)},
	{"command", regexp.MustCompile("`[^`]*`")},
	{"command", regexp.MustCompile(`(?i);\s*(rm|curl|wget|sh|bash)\b`)},
}

// DetectInjection scans s for SQL, Cypher, script, and command injection
// patterns, returning the first matching family.
func DetectInjection(s string) (family string, detected bool) {
	for _, d := range injectionDetectors {
		if d.pattern.MatchString(s) {
			return d.family, true
		}
	}
	return "", false
}

var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// IsValidEntityID reports whether id is safe to splice into store lookups:
// 1 to 128 characters from [A-Za-z0-9_-].
func IsValidEntityID(id string) bool {
	return entityIDPattern.MatchString(id)
}

// IsSafeCypherInput reports whether s can appear inside a query parameter:
// no null bytes and no injection patterns.
func IsSafeCypherInput(s string) bool {
	if strings.ContainsRune(s, 0) {
		return false
	}
	_, detected := DetectInjection(s)
	return !detected
}

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeString strips every HTML element and escapes what remains, so the
// result is inert in any HTML or Markdown context.
func SanitizeString(s string) string {
	return html.EscapeString(strictPolicy.Sanitize(s))
}

// Field is the validation schema for one input field.
type Field struct {
	Required bool
	// Type is one of "string", "int", "float", "bool". Empty skips the check.
	Type      string
	Min, Max  *float64
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	// Validator runs after the built-in checks.
	Validator func(value any) error
	// Sanitize passes string values through SanitizeString.
	Sanitize bool
}

// Schema validates a map of inputs field by field.
type Schema map[string]Field

// Validate checks input against the schema and returns a sanitised copy.
// String values are always scanned for null bytes and injection patterns,
// whatever the rest of the field schema says.
func (s Schema) Validate(input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))

	for name, field := range s {
		value, present := input[name]
		if !present || value == nil {
			if field.Required {
				return nil, kg.NewValidation(name, "field is required")
			}
			continue
		}

		checked, err := field.check(name, value)
		if err != nil {
			return nil, err
		}
		out[name] = checked
	}

	// Unknown fields pass through the universal string checks only.
	for name, value := range input {
		if _, known := s[name]; known {
			continue
		}
		if str, ok := value.(string); ok {
			if err := checkString(name, str); err != nil {
				return nil, err
			}
		}
		out[name] = value
	}
	return out, nil
}

func (f Field) check(name string, value any) (any, error) {
	if str, ok := value.(string); ok {
		if err := checkString(name, str); err != nil {
			return nil, err
		}
		if f.MinLength > 0 && len(str) < f.MinLength {
			return nil, kg.NewValidation(name, fmt.Sprintf("shorter than %d characters", f.MinLength))
		}
		if f.MaxLength > 0 && len(str) > f.MaxLength {
			return nil, kg.NewValidation(name, fmt.Sprintf("longer than %d characters", f.MaxLength))
		}
		if f.Pattern != nil && !f.Pattern.MatchString(str) {
			return nil, kg.NewValidation(name, "does not match the expected pattern")
		}
		if f.Sanitize {
			value = SanitizeString(str)
		}
	}

	if f.Type != "" {
		if err := checkType(name, f.Type, value); err != nil {
			return nil, err
		}
	}
	if f.Min != nil || f.Max != nil {
		num, ok := toFloat(value)
		if !ok {
			return nil, kg.NewValidation(name, "numeric bounds on a non-numeric value")
		}
		if f.Min != nil && num < *f.Min {
			return nil, kg.NewValidation(name, fmt.Sprintf("below minimum %v", *f.Min))
		}
		if f.Max != nil && num > *f.Max {
			return nil, kg.NewValidation(name, fmt.Sprintf("above maximum %v", *f.Max))
		}
	}
	if f.Validator != nil {
		if err := f.Validator(value); err != nil {
			return nil, kg.NewValidation(name, err.Error())
		}
	}
	return value, nil
}

// checkString applies the universal string rules: no null bytes, no
// injection patterns.
func checkString(name, s string) error {
	if strings.ContainsRune(s, 0) {
		return kg.NewValidation(name, "contains a null byte")
	}
	if family, detected := DetectInjection(s); detected {
		return kg.NewInjectionDetected(name, family+" injection pattern detected")
	}
	return nil
}

func checkType(name, want string, value any) error {
	ok := false
	switch want {
	case "string":
		_, ok = value.(string)
	case "int":
		switch value.(type) {
		case int, int32, int64:
			ok = true
		case float64:
			f := value.(float64)
			ok = f == float64(int64(f))
		}
	case "float":
		_, ok = toFloat(value)
	case "bool":
		_, ok = value.(bool)
	default:
		return kg.NewValidation(name, "unknown schema type "+want)
	}
	if !ok {
		return kg.NewValidation(name, "expected a "+want)
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
