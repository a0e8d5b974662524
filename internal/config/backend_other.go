//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "agora-data"
		}
	}
	return filepath.Join(dir, "agora")
}

func secretHint(account string) string {
	return fmt.Sprintf(" or the secrets file %s (service: %s, account: %s)", secretsFilePath(), keychainService, account)
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "agora", "config.json")
}

// fileBackend keeps settings in a JSON file grouped by key section:
//
//	{"catalog": {"base_url": "https://...", "timeout": "5s"}, "server": {"port": 4100}}
//
// Flat dotted keys ({"catalog.base_url": ...}) written by hand are read as
// well and are replaced by the grouped form on the next Store.
type fileBackend struct {
	path string
	data map[string]any
}

// newFileBackend loads the JSON object at path. A missing file is an empty
// config.
func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: make(map[string]any)}
	b.load()
	return b
}

func (b *fileBackend) load() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", b.path, err)
		}
		return
	}
	if err := json.Unmarshal(data, &b.data); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", b.path, err)
		b.data = make(map[string]any)
	}
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o600)
}

func splitKey(key string) (section, name string) {
	section, name, _ = strings.Cut(key, ".")
	return section, name
}

func (b *fileBackend) section(name string, create bool) map[string]any {
	sec, ok := b.data[name].(map[string]any)
	if !ok && create {
		sec = make(map[string]any)
		b.data[name] = sec
	}
	return sec
}

func (b *fileBackend) Lookup(key string) (string, bool, error) {
	section, name := splitKey(key)
	v, ok := b.section(section, false)[name]
	if !ok {
		v, ok = b.data[key]
	}
	if !ok || v == nil {
		return "", false, nil
	}
	raw, err := formatValue(v)
	if err != nil {
		return "", true, fmt.Errorf("%s: %w", key, err)
	}
	return raw, true, nil
}

func (b *fileBackend) Store(key string, v any) error {
	if d, ok := v.(time.Duration); ok {
		v = d.String()
	}
	section, name := splitKey(key)
	b.section(section, true)[name] = v
	delete(b.data, key)
	return b.save()
}

func (b *fileBackend) Delete(key string) error {
	section, name := splitKey(key)
	if sec := b.section(section, false); sec != nil {
		delete(sec, name)
		if len(sec) == 0 {
			delete(b.data, section)
		}
	}
	delete(b.data, key)
	return b.save()
}
