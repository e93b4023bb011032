// ABOUTME: Source secret lookup from the environment or the OS keyring
// ABOUTME: Passwords and client secrets are stored per source name under the tradedesk service
package sources

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/harperreed/tradedesk/errs"
)

const keyringService = "tradedesk"

// Secret returns the secret for the named source. The environment variable
// envVar wins when set; otherwise the OS keyring is consulted.
func Secret(source, envVar string) (string, error) {
	if envVar != "" {
		if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
			return v, nil
		}
	}

	v, err := keyring.Get(keyringService, source)
	if errors.Is(err, keyring.ErrNotFound) {
		reason := "no secret in the keyring; run set-secret"
		if envVar != "" {
			reason = fmt.Sprintf("%s is unset and no secret is in the keyring; run set-secret", envVar)
		}
		return "", errs.ConfigInvalid("sources."+source+".secret", reason)
	}
	if err != nil {
		return "", fmt.Errorf("keyring unavailable: %w", err)
	}
	return v, nil
}

// SetSecret stores the secret for the named source in the OS keyring.
func SetSecret(source, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.ConfigInvalid("secret", "must not be empty")
	}
	if err := keyring.Set(keyringService, source, value); err != nil {
		return fmt.Errorf("storing secret: %w", err)
	}
	return nil
}

// DeleteSecret removes the stored secret for the named source, if any.
func DeleteSecret(source string) error {
	err := keyring.Delete(keyringService, source)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting secret: %w", err)
	}
	return nil
}
