package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Settings map[string]yaml.Node `yaml:"settings"`
}

// Seed stores values from a YAML file for keys that have never been written.
// A missing file is not an error. Returns the number of keys written.
func Seed(store Store, path string, now time.Time) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse YAML: %w", err)
	}

	written := 0
	for key, node := range doc.Settings {
		f, ok := lookup(key)
		if !ok {
			return written, fmt.Errorf("invalid seed %s: unknown setting %q", path, key)
		}

		value, err := nodeValue(&node)
		if err != nil {
			return written, fmt.Errorf("invalid seed %s: %s: %w", path, key, err)
		}

		scratch := Defaults()
		if err := f.decode(&scratch, value); err != nil {
			return written, fmt.Errorf("invalid seed %s: %s: %w", path, key, err)
		}

		ok, err = store.SetIfMissing(key, f.encode(&scratch), now)
		if err != nil {
			return written, err
		}
		if ok {
			written++
			slog.Debug("Setting seeded", "key", key)
		}
	}
	return written, nil
}

func nodeValue(node *yaml.Node) (string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Value, nil
	case yaml.MappingNode:
		var m map[string]float64
		if err := node.Decode(&m); err != nil {
			return "", err
		}
		b, err := json.Marshal(m)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported value")
	}
}
