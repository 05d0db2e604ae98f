package gateway

import (
	"regexp"
	"strings"
)

const (
	maxEmailLen      = 254
	maxEmailLocalLen = 64
	minPasswordLen   = 8
	maxPasswordLen   = 128
)

// emailPattern is RFC-5322-influenced rather than a full grammar; it matches
// the practical shape of deliverable addresses.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// commonPasswords is a small case-insensitive denylist of passwords too common
// to accept.
var commonPasswords = map[string]bool{
	"password":   true,
	"password1":  true,
	"password123": true,
	"123456":     true,
	"12345678":   true,
	"123456789":  true,
	"qwerty":     true,
	"qwerty123":  true,
	"letmein":    true,
	"welcome":    true,
	"admin":      true,
	"iloveyou":   true,
	"monkey":     true,
	"dragon":     true,
	"sunshine":   true,
	"princess":   true,
	"football":   true,
	"baseball":   true,
	"abc123":     true,
	"trustno1":   true,
}

// Policy validates emails and passwords against the gateway's credential
// rules. Strength enforcement can be disabled, in which case only the length
// bounds apply.
type Policy struct {
	EnforceStrength   bool
	DisposableDomains map[string]bool
}

// NewPolicy builds a Policy. disposableDomains may be nil.
func NewPolicy(enforceStrength bool, disposableDomains []string) *Policy {
	denied := make(map[string]bool, len(disposableDomains))
	for _, d := range disposableDomains {
		denied[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &Policy{EnforceStrength: enforceStrength, DisposableDomains: denied}
}

// EmailResult is the tagged outcome of email validation.
type EmailResult struct {
	OK         bool
	Normalized string
	Reason     string
}

// ValidateEmail checks format and length, normalizes to lowercase trimmed
// form, and rejects configured disposable domains.
func (p *Policy) ValidateEmail(raw string) EmailResult {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return EmailResult{Reason: "email is required"}
	}
	if len(email) > maxEmailLen {
		return EmailResult{Reason: "email is too long"}
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return EmailResult{Reason: "invalid email format"}
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > maxEmailLocalLen {
		return EmailResult{Reason: "email local part is too long"}
	}
	if !emailPattern.MatchString(email) {
		return EmailResult{Reason: "invalid email format"}
	}
	if p.DisposableDomains[domain] {
		return EmailResult{Reason: "disposable email addresses are not allowed"}
	}

	return EmailResult{OK: true, Normalized: email}
}

// PasswordResult is the tagged outcome of password validation. Every violated
// rule is reported, not just the first.
type PasswordResult struct {
	OK      bool
	Reasons []string
}

// ValidatePassword applies length bounds always, and the composition,
// denylist, and sequential-run rules when strength enforcement is on.
func (p *Policy) ValidatePassword(password string) PasswordResult {
	var reasons []string

	if len(password) < minPasswordLen {
		reasons = append(reasons, "password must be at least 8 characters")
	}
	if len(password) > maxPasswordLen {
		reasons = append(reasons, "password must be at most 128 characters")
	}

	if p.EnforceStrength {
		var hasLower, hasUpper, hasDigit, hasSymbol bool
		for _, r := range password {
			switch {
			case r >= 'a' && r <= 'z':
				hasLower = true
			case r >= 'A' && r <= 'Z':
				hasUpper = true
			case r >= '0' && r <= '9':
				hasDigit = true
			case strings.ContainsRune("!@#$%^&*()_+-=[]{};':\",.<>/?\\|`~", r):
				hasSymbol = true
			}
		}
		if !hasLower {
			reasons = append(reasons, "password must contain a lowercase letter")
		}
		if !hasUpper {
			reasons = append(reasons, "password must contain an uppercase letter")
		}
		if !hasDigit {
			reasons = append(reasons, "password must contain a digit")
		}
		if !hasSymbol {
			reasons = append(reasons, "password must contain a symbol")
		}
		if commonPasswords[strings.ToLower(password)] {
			reasons = append(reasons, "password is too common")
		}
		if hasSequentialRun(password) {
			reasons = append(reasons, "password must not contain sequential characters")
		}
	}

	if len(reasons) > 0 {
		return PasswordResult{Reasons: reasons}
	}
	return PasswordResult{OK: true}
}

// hasSequentialRun reports whether s contains three or more consecutive
// ascending character codes ("abc", "123") anywhere.
func hasSequentialRun(s string) bool {
	runes := []rune(s)
	for i := 0; i+2 < len(runes); i++ {
		if runes[i+1] == runes[i]+1 && runes[i+2] == runes[i]+2 {
			return true
		}
	}
	return false
}
