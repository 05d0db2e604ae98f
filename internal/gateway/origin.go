package gateway

import "strings"

// loopbackPrefixes are the development-mode origins accepted on any port.
var loopbackPrefixes = []string{
	"http://localhost:",
	"http://127.0.0.1:",
}

// OriginGuard decides whether a request's declared origin is trustworthy.
type OriginGuard struct {
	allowed    []string
	production bool
}

// NewOriginGuard builds a guard with the production allow-list.
func NewOriginGuard(allowed []string, production bool) *OriginGuard {
	cleaned := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	return &OriginGuard{allowed: cleaned, production: production}
}

// IsTrusted applies the origin policy. A request with no Origin header at all
// is treated as same-origin and accepted; this deliberately lets non-browser
// clients through the origin check and is a documented policy decision rather
// than an oversight.
func (g *OriginGuard) IsTrusted(origin, referer string) bool {
	if origin == "" && referer == "" {
		return true
	}

	if !g.production {
		for _, prefix := range loopbackPrefixes {
			if strings.HasPrefix(origin, prefix) || strings.HasPrefix(referer, prefix) {
				return true
			}
		}
		return false
	}

	for _, allowed := range g.allowed {
		if origin == allowed {
			return true
		}
		if referer != "" && strings.HasPrefix(referer, allowed) {
			return true
		}
	}
	return false
}
