package security

import (
	"net/http"
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "information retrieval", "information retrieval"},
		{"newline injection", "query\nlevel=ERROR msg=forged", "query\\nlevel=ERROR msg=forged"},
		{"carriage return", "a\rb", "a\\rb"},
		{"control chars removed", "a\x00b\x07c", "abc"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeForLogTruncates(t *testing.T) {
	got := SanitizeForLogWithLength(strings.Repeat("x", 50), 10)
	if got != strings.Repeat("x", 10)+"..." {
		t.Errorf("got %q, want 10 chars and ellipsis", got)
	}
}

func TestMaskSensitiveHeaders(t *testing.T) {
	headers := http.Header{
		"Authorization": {"ApiKey abc"},
		"X-Api-Key":     {"secret"},
		"Accept":        {"application/json"},
	}

	masked := MaskSensitiveHeaders(headers)

	if masked.Get("Authorization") != "[REDACTED]" {
		t.Errorf("Authorization = %q, want redacted", masked.Get("Authorization"))
	}
	if masked.Get("X-Api-Key") != "[REDACTED]" {
		t.Errorf("X-Api-Key = %q, want redacted", masked.Get("X-Api-Key"))
	}
	if masked.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q, want unchanged", masked.Get("Accept"))
	}
	if headers.Get("Authorization") != "ApiKey abc" {
		t.Error("original headers must not be modified")
	}
	if MaskSensitiveHeaders(nil) != nil {
		t.Error("MaskSensitiveHeaders(nil) should be nil")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"abc", "****"},
		{"VnVhQ2ZHY0JDZGJr", "VnVh********"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.input); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  library\tscience  ", "library science"},
		{"line\none", "line one"},
		{"bell\x07", "bell"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeQuery(tt.input); got != tt.want {
			t.Errorf("SanitizeQuery(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
