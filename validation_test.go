package authcore

import (
	"strings"
	"testing"
)

func TestFormatRules(t *testing.T) {
	rules, err := newFormatRules(DefaultConfig())
	if err != nil {
		t.Fatalf("rules: %v", err)
	}

	emails := map[string]bool{
		"a@b.co":          true,
		"first.last@x.io": true,
		"":                false,
		"no-at.example":   false,
		"a@b":             false,
		"a b@c.de":        false,
	}
	for email, ok := range emails {
		if err := rules.checkEmail(email); (err == nil) != ok {
			t.Fatalf("checkEmail(%q) = %v", email, err)
		}
	}

	passwords := map[string]bool{
		"abc123":                 true,
		"abc12":                  false,
		"abcdefgh":               false,
		"12345678":               false,
		strings.Repeat("a1", 36): true,
		strings.Repeat("a1", 37): false,
		"пароль1":                true,
	}
	for pw, ok := range passwords {
		if err := rules.checkPassword(pw); (err == nil) != ok {
			t.Fatalf("checkPassword(%q) = %v", pw, err)
		}
	}
}

func TestCheckCredentialsNormalizesEmail(t *testing.T) {
	rules, err := newFormatRules(DefaultConfig())
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	creds, err := rules.checkCredentials(Credentials{Email: "  Alice@Example.COM ", Password: "secret1"})
	if err != nil {
		t.Fatalf("checkCredentials: %v", err)
	}
	if creds.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", creds.Email)
	}
	if _, err := rules.checkCredentials(Credentials{Email: "alice@example.com", Password: "x"}); err != ErrBadPasswordFormat {
		t.Fatalf("expected ErrBadPasswordFormat, got %v", err)
	}
}
