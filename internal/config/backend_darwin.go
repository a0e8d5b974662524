//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultsDomain = "com.kalambet.agora"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "agora")
	}
	return "agora-data"
}

func secretHint(account string) string {
	return fmt.Sprintf(" or macOS Keychain (service: %s, account: %s)", keychainService, account)
}

// defaultsBackend keeps settings in the agora defaults domain under their
// dotted key names, written with the type flag of the key.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain}
}

func (b *defaultsBackend) Lookup(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", b.domain, key).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading default for key '%s': %w, output: %s", key, err, s)
	}
	return s, true, nil
}

// typeFlag returns the defaults write flag and argument for v. Booleans
// read back as 1 or 0, which strconv.ParseBool accepts.
func typeFlag(v any) (string, string, error) {
	switch val := v.(type) {
	case int:
		return "-int", strconv.Itoa(val), nil
	case float64:
		return "-float", strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return "-bool", strconv.FormatBool(val), nil
	case time.Duration, string:
		s, err := formatValue(val)
		return "-string", s, err
	default:
		return "", "", fmt.Errorf("unsupported value type %T", v)
	}
}

func (b *defaultsBackend) Store(key string, v any) error {
	flag, arg, err := typeFlag(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if out, err := exec.Command("defaults", "write", b.domain, key, flag, arg).CombinedOutput(); err != nil {
		return fmt.Errorf("writing default for key '%s': %w, output: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *defaultsBackend) Delete(key string) error {
	if out, err := exec.Command("defaults", "delete", b.domain, key).CombinedOutput(); err != nil {
		return fmt.Errorf("deleting default for key '%s': %w, output: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}
