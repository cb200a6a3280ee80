package domain

import (
	"fmt"
	"strings"
	"time"
)

// Platform is the device OS a push token was issued on.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

func (p Platform) String() string { return string(p) }

func (p Platform) IsValid() bool {
	switch p {
	case PlatformAndroid, PlatformIOS:
		return true
	}
	return false
}

func ParsePlatformFromString(s string) (Platform, error) {
	p := Platform(strings.TrimSpace(s))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: platform must be %q or %q", ErrValidation, PlatformAndroid, PlatformIOS)
	}
	return p, nil
}

// PushToken is a registered device address.
type PushToken struct {
	ID        string
	Token     string
	Platform  Platform
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *PushToken) Validate() error {
	if strings.TrimSpace(t.Token) == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	if !t.Platform.IsValid() {
		return fmt.Errorf("%w: invalid platform %q", ErrValidation, t.Platform)
	}
	return nil
}
