package ratelimit

import (
	"net/http/httptest"
	"testing"
)

func TestClientIdentifier(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "203.0.113.9", "X-Real-IP": "198.51.100.2"}, "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"blank forwarded falls through", map[string]string{"X-Forwarded-For": " ,10.0.0.1", "X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"none", nil, UnknownClient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/auth/login", nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIdentifier(r); got != tc.want {
				t.Fatalf("ClientIdentifier() = %q, want %q", got, tc.want)
			}
		})
	}
}
