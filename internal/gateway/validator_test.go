package gateway

import (
	"strings"
	"testing"
)

func TestSanitizeRejectsNonObjects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "null", raw: "null"},
		{name: "array", raw: `[1,2,3]`},
		{name: "string", raw: `"hello"`},
		{name: "number", raw: `42`},
		{name: "truncated", raw: `{"name":`},
		{name: "garbage", raw: `{{{{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := Sanitize([]byte(tc.raw))
			if body.OK {
				t.Fatalf("Sanitize(%q) accepted, want rejection", tc.raw)
			}
			if body.Reason == "" {
				t.Fatal("rejection carries no reason")
			}
		})
	}
}

func TestSanitizeStripsDangerousKeysAtEveryDepth(t *testing.T) {
	raw := `{
		"__proto__": {"polluted": true},
		"constructor": "bad",
		"name": "ok",
		"nested": {
			"prototype": 1,
			"deeper": [{"__proto__": {}, "keep": "yes"}]
		}
	}`

	body := Sanitize([]byte(raw))
	if !body.OK {
		t.Fatalf("Sanitize rejected valid object: %s", body.Reason)
	}

	assertClean(t, body.Cleaned)

	nested, ok := body.Cleaned["nested"].(map[string]interface{})
	if !ok {
		t.Fatal("nested object missing after sanitize")
	}
	deeper, ok := nested["deeper"].([]interface{})
	if !ok || len(deeper) != 1 {
		t.Fatal("nested array missing after sanitize")
	}
	inner, ok := deeper[0].(map[string]interface{})
	if !ok {
		t.Fatal("array element not an object")
	}
	if inner["keep"] != "yes" {
		t.Fatalf("legitimate key lost: %v", inner)
	}
}

func assertClean(t *testing.T, obj map[string]interface{}) {
	t.Helper()
	for key, value := range obj {
		if dangerousKeys[key] {
			t.Fatalf("dangerous key %q survived sanitize", key)
		}
		switch v := value.(type) {
		case map[string]interface{}:
			assertClean(t, v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					assertClean(t, m)
				}
			}
		}
	}
}

func TestSanitizeTruncatesAndTrimsStrings(t *testing.T) {
	long := strings.Repeat("x", MaxStringLen+500)
	body := Sanitize([]byte(`{"bio": "  ` + long + `  ", "name": " Test User "}`))
	if !body.OK {
		t.Fatalf("Sanitize rejected: %s", body.Reason)
	}

	bio := body.String("bio")
	if len(bio) != MaxStringLen {
		t.Fatalf("len(bio) = %d, want exactly %d", len(bio), MaxStringLen)
	}
	if got := body.String("name"); got != "Test User" {
		t.Fatalf("name = %q, want trimmed %q", got, "Test User")
	}
}

func TestSanitizeNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte{0xff, 0xfe},
		[]byte(`{"a":` + strings.Repeat(`{"a":`, 100) + `1` + strings.Repeat(`}`, 101)),
		[]byte(`{"k":"` + strings.Repeat("\x00", 50) + `"}`),
	}
	for _, raw := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Sanitize panicked on %q: %v", raw, r)
				}
			}()
			_ = Sanitize(raw)
		}()
	}
}
