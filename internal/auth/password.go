package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 128
)

var (
	whitespacePattern = regexp.MustCompile(`\s`)
	specialPattern    = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// PasswordRule is one requirement of the password policy
type PasswordRule struct {
	ID    string
	Label string
	Test  func(password string) bool
}

// PasswordRules is the password policy, checked in order
var PasswordRules = []PasswordRule{
	{ID: "length", Label: "At least 8 characters", Test: func(p string) bool {
		return utf8.RuneCountInString(p) >= PasswordMinLength
	}},
	{ID: "maxLength", Label: "At most 128 characters", Test: func(p string) bool {
		return utf8.RuneCountInString(p) <= PasswordMaxLength
	}},
	{ID: "noSpaces", Label: "No spaces", Test: func(p string) bool {
		return !whitespacePattern.MatchString(p)
	}},
	{ID: "notRepeated", Label: "Not a single repeated character", Test: func(p string) bool {
		return !allRepeated(p)
	}},
	{ID: "uppercase", Label: "At least one uppercase letter", Test: func(p string) bool {
		return strings.ContainsFunc(p, func(r rune) bool { return r >= 'A' && r <= 'Z' })
	}},
	{ID: "lowercase", Label: "At least one lowercase letter", Test: func(p string) bool {
		return strings.ContainsFunc(p, func(r rune) bool { return r >= 'a' && r <= 'z' })
	}},
	{ID: "number", Label: "At least one number", Test: func(p string) bool {
		return strings.ContainsFunc(p, func(r rune) bool { return r >= '0' && r <= '9' })
	}},
	{ID: "special", Label: "At least one special character (!@#$%^&*...)", Test: func(p string) bool {
		return specialPattern.MatchString(p)
	}},
}

// Requirement is the outcome of one rule, in the shape the API reports it
type Requirement struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Met     bool   `json:"met"`
}

// PasswordValidation is the policy report returned with a 400 response
type PasswordValidation struct {
	IsValid      bool          `json:"isValid"`
	Strength     string        `json:"strength"`
	Requirements []Requirement `json:"requirements"`
}

// Password strengths
const (
	StrengthEmpty  = "empty"
	StrengthWeak   = "weak"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

// CheckPassword evaluates every rule against password
func CheckPassword(password string) PasswordValidation {
	v := PasswordValidation{IsValid: true, Requirements: make([]Requirement, 0, len(PasswordRules))}
	for _, rule := range PasswordRules {
		met := rule.Test(password)
		v.Requirements = append(v.Requirements, Requirement{ID: rule.ID, Message: rule.Label, Met: met})
		if !met {
			v.IsValid = false
		}
	}
	v.Strength = PasswordStrength(password)
	return v
}

// FirstUnmetRule returns the label of the first failing rule, or "" when all pass
func FirstUnmetRule(password string) string {
	for _, rule := range PasswordRules {
		if !rule.Test(password) {
			return rule.Label
		}
	}
	return ""
}

// PasswordStrength grades password by the number of rules it meets
func PasswordStrength(password string) string {
	if password == "" {
		return StrengthEmpty
	}
	met := 0
	for _, rule := range PasswordRules {
		if rule.Test(password) {
			met++
		}
	}
	switch {
	case utf8.RuneCountInString(password) < PasswordMinLength || met <= 3:
		return StrengthWeak
	case met <= 5:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

// allRepeated reports whether p is two or more copies of the same character
func allRepeated(p string) bool {
	if utf8.RuneCountInString(p) < 2 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(p)
	for _, r := range p {
		if r != first {
			return false
		}
	}
	return true
}
