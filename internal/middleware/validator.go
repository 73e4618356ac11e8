package middleware

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ValidationError marks bad client input (HTTP 400).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason) }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

var (
	rxCommitSHA = regexp.MustCompile(`^[0-9a-fA-F]{7,64}$`)
	rxSource    = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)
	rxRunID     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// ValidateCommitSHA accepts an empty value or a 7-64 char hex SHA.
func ValidateCommitSHA(sha string) error {
	if sha == "" {
		return nil
	}
	if !rxCommitSHA.MatchString(sha) {
		return &ValidationError{Field: "commit_sha", Reason: "must be 7-64 hex characters"}
	}
	return nil
}

// ValidateBranch follows the git check-ref-format rules that matter here.
func ValidateBranch(branch string) error {
	if branch == "" {
		return nil
	}
	if len(branch) > 255 {
		return &ValidationError{Field: "branch", Reason: "too long"}
	}
	if strings.Contains(branch, "..") || strings.HasPrefix(branch, "-") || strings.HasSuffix(branch, "/") {
		return &ValidationError{Field: "branch", Reason: "not a valid ref name"}
	}
	for _, r := range branch {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(" ~^:?*[\\`$;&|", r) {
			return &ValidationError{Field: "branch", Reason: "contains forbidden characters"}
		}
	}
	return nil
}

// ValidateSource checks the free-form trigger source (e.g. "github", "manual").
func ValidateSource(source string) error {
	if source == "" {
		return nil
	}
	if !rxSource.MatchString(source) {
		return &ValidationError{Field: "source", Reason: "alphanumeric, dot, dash, underscore only, max 64 chars"}
	}
	return nil
}

// ValidateRunID validates run ID format
func ValidateRunID(id string) error {
	if !rxRunID.MatchString(id) {
		return &ValidationError{Field: "run id", Reason: "alphanumeric, dash, underscore only, max 64 chars"}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
