// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractToken_PrefersAdminHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r.Header.Set("X-Admin-Token", "admin-token")
	r.Header.Set("Authorization", "Bearer bearer-token")

	if got := ExtractToken(r); got != "admin-token" {
		t.Fatalf("ExtractToken() = %q, want %q", got, "admin-token")
	}
}

func TestExtractToken_FallsBackToBearer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r.Header.Set("Authorization", "Bearer  bearer-token ")

	if got := ExtractToken(r); got != "bearer-token" {
		t.Fatalf("ExtractToken() = %q, want %q", got, "bearer-token")
	}
}

func TestExtractToken_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	if got := ExtractToken(r); got != "" {
		t.Fatalf("ExtractToken() = %q, want empty", got)
	}
}

func TestAuthorizeToken(t *testing.T) {
	if AuthorizeToken("secret", "secret") != true {
		t.Fatal("AuthorizeToken should accept exact match")
	}
	if AuthorizeToken("secret", "other") != false {
		t.Fatal("AuthorizeToken should reject mismatch")
	}
	if AuthorizeToken("", "secret") != false {
		t.Fatal("AuthorizeToken should reject empty got token")
	}
	if AuthorizeToken("secret", "") != false {
		t.Fatal("AuthorizeToken should reject empty expected token")
	}
}

func TestAuthorizeRequest(t *testing.T) {
	expected := "secret"

	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r.Header.Set("X-Admin-Token", "secret")
	if AuthorizeRequest(r, expected) != true {
		t.Fatal("AuthorizeRequest should accept matching admin token")
	}

	r2 := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r2.Header.Set("X-Admin-Token", "wrong")
	if AuthorizeRequest(r2, expected) != false {
		t.Fatal("AuthorizeRequest should reject mismatched admin token")
	}

	if AuthorizeRequest(nil, expected) != false {
		t.Fatal("AuthorizeRequest should reject nil request")
	}
}
