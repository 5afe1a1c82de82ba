package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MeNameek/camerasystem/internal/core/domain"

	"github.com/google/uuid"
)

const MaxDisplayNameLength = 64

// ValidateRoomCode checks a normalized room code against the configured
// length and alphabet. Failures wrap domain.ErrInvalidRoomCode.
func ValidateRoomCode(code domain.RoomCode, length int, alphabet string) error {
	if code == "" {
		return fmt.Errorf("room code is required: %w", domain.ErrInvalidRoomCode)
	}
	if length > 0 && len(code) != length {
		return fmt.Errorf("room code must be %d characters: %w", length, domain.ErrInvalidRoomCode)
	}
	for _, r := range string(code) {
		if alphabet != "" && !strings.ContainsRune(alphabet, r) {
			return fmt.Errorf("room code contains invalid character %q: %w", r, domain.ErrInvalidRoomCode)
		}
		if alphabet == "" && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("room code contains invalid character %q: %w", r, domain.ErrInvalidRoomCode)
		}
	}
	return nil
}

// ValidateDisplayName allows an empty name (the role default is used then).
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return fmt.Errorf("display name is too long (max %d characters)", MaxDisplayNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("display name contains control characters")
		}
	}
	return nil
}

// ValidateParticipantID checks that id is one the relay could have issued.
func ValidateParticipantID(id domain.ParticipantID) error {
	if id == "" {
		return fmt.Errorf("participant ID is required")
	}
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid participant ID format: %w", err)
	}
	return nil
}

func ValidateRole(role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("role %q: %w", role, domain.ErrInvalidRole)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
