package templates

import (
	"fmt"
	"regexp"
	"strings"
)

var filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateFilename checks a template filename against the device naming policy.
// Any extension is stripped first, so "Cornell.svg" and "Cornell" are equivalent.
// Only letters, digits, '-' and '_' are allowed in what remains.
func ValidateFilename(name string) error {
	return validateBase(StripExtension(name), name)
}

// validateBase matches an already stripped filename. Exactly one extension
// is ever removed, so "my.template.svg" leaves "my.template" and fails.
func validateBase(base, original string) error {
	if !filenamePattern.MatchString(base) {
		return fmt.Errorf("%w: %q (use only letters, numbers, hyphens and underscores)", ErrInvalidFilename, original)
	}
	return nil
}

// ValidateName checks a display name. Names are free text but cannot be blank.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	return nil
}
