package gateway

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// MaxStringLen bounds every string value accepted from a request body.
const MaxStringLen = 1000

// dangerousKeys are property names stripped at every nesting depth. They have
// no legitimate use in a request payload and are a common injection vector
// against downstream consumers.
var dangerousKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Body is the tagged result of sanitizing a raw request payload. Exactly one
// of Cleaned/Reason is meaningful depending on OK.
type Body struct {
	OK      bool
	Cleaned map[string]interface{}
	Reason  string
}

// String returns the cleaned string value for key, trimmed, or "" when absent
// or not a string.
func (b Body) String(key string) string {
	if b.Cleaned == nil {
		return ""
	}
	s, _ := b.Cleaned[key].(string)
	return s
}

// Sanitize type-checks and cleans a raw JSON request body. It never panics:
// malformed input yields a tagged failure. Dangerous property names are
// removed recursively and every string value is trimmed and truncated to
// MaxStringLen.
func Sanitize(raw []byte) Body {
	if len(raw) == 0 {
		return Body{Reason: "empty request body"}
	}
	if !gjson.ValidBytes(raw) {
		return Body{Reason: "malformed JSON"}
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Body{Reason: "malformed JSON"}
	}

	obj, ok := decoded.(map[string]interface{})
	if !ok || obj == nil {
		return Body{Reason: "request body must be a JSON object"}
	}

	return Body{OK: true, Cleaned: cleanObject(obj)}
}

func cleanObject(obj map[string]interface{}) map[string]interface{} {
	cleaned := make(map[string]interface{}, len(obj))
	for key, value := range obj {
		if dangerousKeys[key] {
			continue
		}
		cleaned[key] = cleanValue(value)
	}
	return cleaned
}

func cleanValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return cleanString(v)
	case map[string]interface{}:
		return cleanObject(v)
	case []interface{}:
		cleaned := make([]interface{}, len(v))
		for i, item := range v {
			cleaned[i] = cleanValue(item)
		}
		return cleaned
	default:
		return v
	}
}

func cleanString(s string) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > MaxStringLen {
		s = string(runes[:MaxStringLen])
	}
	return s
}
