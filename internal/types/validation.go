package types

import (
	"fmt"
	"strings"
)

// MaxTitleLen mirrors the backend's column constraint.
const MaxTitleLen = 255

// ValidateIDPresent rejects empty identifiers before a request is built.
func ValidateIDPresent(id, field string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	return nil
}

// ValidateTitle enforces the backend's title length limit.
func ValidateTitle(title string) error {
	if len(title) > MaxTitleLen {
		return fmt.Errorf("title must not exceed %d characters", MaxTitleLen)
	}
	return nil
}
