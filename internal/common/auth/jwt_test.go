package auth

import (
	"testing"
	"time"

	"github.com/NeoDrive/NeoDrive/internal/common/config"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	cfg := config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
		Issuer:    "neodrive",
		Audience:  "neodrive-web",
	}

	token, exp, err := GenerateAccessToken(cfg, "u-1", "customer", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	if exp.Before(time.Now()) {
		t.Fatalf("expected exp in future")
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "u-1" {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}
	if claims.Role != "customer" {
		t.Fatalf("role mismatch: %s", claims.Role)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secret-a", Issuer: "neodrive"}
	token, _, err := GenerateAccessToken(cfg, "u-1", "admin", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	other := config.AuthConfig{JWTSecret: "secret-b", Issuer: "neodrive"}
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected invalid token error")
	}
}

func TestParseAccessTokenRejectsWrongIssuer(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secret", Issuer: "someone-else"}
	token, _, err := GenerateAccessToken(cfg, "u-1", "customer", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	want := config.AuthConfig{JWTSecret: "secret", Issuer: "neodrive"}
	if _, err := ParseAccessToken(want, token); err == nil {
		t.Fatalf("expected invalid issuer error")
	}
}
