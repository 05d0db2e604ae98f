package gateway

import "testing"

func TestOriginGuardDevelopmentMode(t *testing.T) {
	guard := NewOriginGuard(nil, false)

	cases := []struct {
		name    string
		origin  string
		referer string
		want    bool
	}{
		{name: "no origin is same-origin", want: true},
		{name: "localhost any port", origin: "http://localhost:5173", want: true},
		{name: "loopback ip", origin: "http://127.0.0.1:3000", want: true},
		{name: "loopback referer only", referer: "http://localhost:3000/login", want: true},
		{name: "external origin", origin: "https://evil.example", want: false},
		{name: "https localhost not a loopback prefix", origin: "https://localhost:3000", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := guard.IsTrusted(tc.origin, tc.referer); got != tc.want {
				t.Fatalf("IsTrusted(%q, %q) = %v, want %v", tc.origin, tc.referer, got, tc.want)
			}
		})
	}
}

func TestOriginGuardProductionMode(t *testing.T) {
	guard := NewOriginGuard([]string{"https://app.example.com"}, true)

	cases := []struct {
		name    string
		origin  string
		referer string
		want    bool
	}{
		{name: "exact allow-list match", origin: "https://app.example.com", want: true},
		{name: "referer prefix match", referer: "https://app.example.com/login", want: true},
		{name: "no origin accepted", want: true},
		{name: "localhost rejected in production", origin: "http://localhost:3000", want: false},
		{name: "subdomain spoof rejected", origin: "https://app.example.com.evil.net", want: false},
		{name: "unlisted origin", origin: "https://other.example.com", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := guard.IsTrusted(tc.origin, tc.referer); got != tc.want {
				t.Fatalf("IsTrusted(%q, %q) = %v, want %v", tc.origin, tc.referer, got, tc.want)
			}
		})
	}
}
