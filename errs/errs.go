// ABOUTME: Error taxonomy shared by the intake pipeline, storage and CLI
// ABOUTME: Sentinels, config validation errors, bucketing for poll summaries and exit codes
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrConfigInvalid     = errors.New("configuration invalid")
	ErrProviderAuth      = errors.New("provider rejected credentials")
	ErrProviderTransient = errors.New("provider temporarily unavailable")
	ErrUnresolved        = errors.New("sender could not be resolved to a client")
	ErrDuplicate         = errors.New("interaction already recorded")
	ErrStorage           = errors.New("storage error")

	ErrPollInProgress = errors.New("a poll is already running")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
)

// Kind names used in poll summaries.
const (
	KindConfigInvalid     = "config_invalid"
	KindProviderAuth      = "provider_auth"
	KindProviderTransient = "provider_transient"
	KindUnresolved        = "unresolved"
	KindDuplicate         = "duplicate"
	KindStorage           = "storage"
	KindOther             = "other"
)

// ConfigError reports a rule-book or config field that failed validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfigInvalid, e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// ConfigInvalid builds a ConfigError for field.
func ConfigInvalid(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}

// Storage marks err as a storage failure while keeping the original in the chain.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// ProviderAuth marks err as a credential rejection from source.
func ProviderAuth(source string, err error) error {
	return fmt.Errorf("%s: %w: %w", source, ErrProviderAuth, err)
}

// ProviderTransient marks err as a retryable provider failure from source.
func ProviderTransient(source string, err error) error {
	return fmt.Errorf("%s: %w: %w", source, ErrProviderTransient, err)
}

// Kind buckets err into the taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigInvalid):
		return KindConfigInvalid
	case errors.Is(err, ErrProviderAuth):
		return KindProviderAuth
	case errors.Is(err, ErrProviderTransient):
		return KindProviderTransient
	case errors.Is(err, ErrUnresolved):
		return KindUnresolved
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindOther
	}
}

// ExitCode maps err to the CLI exit status.
func ExitCode(err error) int {
	switch Kind(err) {
	case "":
		return 0
	case KindConfigInvalid:
		return 2
	case KindProviderAuth:
		return 3
	case KindStorage:
		return 4
	default:
		return 1
	}
}
