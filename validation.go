package authcore

import (
	"regexp"
	"strings"
	"unicode"
)

type formatRules struct {
	email         *regexp.Regexp
	minLength     int
	maxLength     int
	requireLetter bool
	requireDigit  bool
}

func newFormatRules(cfg Config) (*formatRules, error) {
	re, err := regexp.Compile(cfg.Email.Pattern)
	if err != nil {
		return nil, err
	}
	return &formatRules{
		email:         re,
		minLength:     cfg.Password.MinLength,
		maxLength:     cfg.Password.MaxLength,
		requireLetter: cfg.Password.RequireLetter,
		requireDigit:  cfg.Password.RequireDigit,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *formatRules) checkEmail(email string) error {
	if email == "" || !r.email.MatchString(email) {
		return ErrBadEmailFormat
	}
	return nil
}

// checkPassword measures length in bytes since bcrypt truncates past 72 bytes.
func (r *formatRules) checkPassword(pw string) error {
	if len(pw) < r.minLength || len(pw) > r.maxLength {
		return ErrBadPasswordFormat
	}

	var letter, digit bool
	for _, c := range pw {
		switch {
		case unicode.IsLetter(c):
			letter = true
		case unicode.IsDigit(c):
			digit = true
		}
	}
	if (r.requireLetter && !letter) || (r.requireDigit && !digit) {
		return ErrBadPasswordFormat
	}
	return nil
}

func (r *formatRules) checkCredentials(c Credentials) (Credentials, error) {
	c.Email = normalizeEmail(c.Email)
	if err := r.checkEmail(c.Email); err != nil {
		return c, err
	}
	if err := r.checkPassword(c.Password); err != nil {
		return c, err
	}
	return c, nil
}
