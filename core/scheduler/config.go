package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/runsheet/core/model"
)

// LoadSettings loads planning settings from a JSON or YAML file. Fields
// missing from the file keep their default values.
func LoadSettings(path string) (model.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Settings{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeSettings(f, ext)
}

// DecodeSettings reads settings in the given format ("yaml", "yml" or "json").
func DecodeSettings(r io.Reader, format string) (model.Settings, error) {
	s := model.DefaultSettings()
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&s); err != nil {
			return s, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return s, err
		}
	default:
		return s, fmt.Errorf("unsupported format: %s", format)
	}
	return s.Normalized(), nil
}
