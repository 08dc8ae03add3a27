package engine

import (
	"strings"
	"testing"

	"github.com/meridian/hive/pkg/types"
)

func TestBuildRequestTemplateDefaults(t *testing.T) {
	tmpl, err := BuildRequestTemplate(types.BattleParams{TargetURL: "http://example.com/path?x=1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Host != "example.com" {
		t.Errorf("host = %q, want example.com", tmpl.Host)
	}
	if tmpl.Port != "80" {
		t.Errorf("port = %q, want 80 (default http port)", tmpl.Port)
	}
	if tmpl.TLS {
		t.Errorf("TLS = true, want false for http scheme")
	}

	body := string(tmpl.Body)
	if !strings.HasPrefix(body, "GET /path?x=1 HTTP/1.1\r\n") {
		t.Errorf("request line wrong: %q", body)
	}
	if !strings.Contains(body, "Host: example.com\r\n") {
		t.Errorf("missing default Host header: %q", body)
	}
	if !strings.Contains(body, "Connection: keep-alive\r\n") {
		t.Errorf("missing default Connection header: %q", body)
	}
	if !strings.HasSuffix(body, "\r\n\r\n") {
		t.Errorf("request not terminated by blank line: %q", body)
	}
}

func TestBuildRequestTemplateHTTPS(t *testing.T) {
	tmpl, err := BuildRequestTemplate(types.BattleParams{TargetURL: "https://example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tmpl.TLS {
		t.Errorf("TLS = false, want true for https scheme")
	}
	if tmpl.Port != "443" {
		t.Errorf("port = %q, want 443 (default https port)", tmpl.Port)
	}
}

func TestBuildRequestTemplateExplicitPort(t *testing.T) {
	tmpl, err := BuildRequestTemplate(types.BattleParams{TargetURL: "http://example.com:8080/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Port != "8080" {
		t.Errorf("port = %q, want 8080", tmpl.Port)
	}
}

func TestBuildRequestTemplateRejectsNonHTTPScheme(t *testing.T) {
	_, err := BuildRequestTemplate(types.BattleParams{TargetURL: "ftp://example.com"})
	if err == nil {
		t.Fatal("expected error for non-http(s) scheme, got nil")
	}
}

func TestBuildRequestTemplateCustomHeadersOverrideDefaults(t *testing.T) {
	tmpl, err := BuildRequestTemplate(types.BattleParams{
		TargetURL: "http://example.com",
		Headers: []types.Header{
			{Name: "Host", Value: "override.example.com"},
			{Name: "X-Custom", Value: "yes"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := string(tmpl.Body)
	if strings.Count(body, "Host:") != 1 {
		t.Fatalf("expected exactly one Host header, got request: %q", body)
	}
	if !strings.Contains(body, "Host: override.example.com\r\n") {
		t.Errorf("caller-supplied Host header not honored: %q", body)
	}
	if !strings.Contains(body, "X-Custom: yes\r\n") {
		t.Errorf("missing custom header: %q", body)
	}
}

func TestBuildRequestTemplateBodyAndContentLength(t *testing.T) {
	tmpl, err := BuildRequestTemplate(types.BattleParams{
		TargetURL: "http://example.com",
		Method:    "POST",
		Body:      "hello world",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := string(tmpl.Body)
	if !strings.Contains(body, "Content-Length: 11\r\n") {
		t.Errorf("missing/incorrect Content-Length header: %q", body)
	}
	if !strings.HasSuffix(body, "hello world") {
		t.Errorf("body not appended: %q", body)
	}
}

func TestBuildRequestTemplateRootPathWhenEmpty(t *testing.T) {
	tmpl, err := BuildRequestTemplate(types.BattleParams{TargetURL: "http://example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(tmpl.Body), "GET / HTTP/1.1\r\n") {
		t.Errorf("expected root path default, got: %q", tmpl.Body)
	}
}
