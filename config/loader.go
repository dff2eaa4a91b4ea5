package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"propertyhub/server/internal/dedup"
	"propertyhub/server/internal/ranking"
)

// Calibration holds the tunable parameters of both engines.
type Calibration struct {
	Version string          `json:"version" yaml:"version"`
	Dedup   dedup.Config    `json:"dedup" yaml:"dedup"`
	Ranking ranking.Weights `json:"ranking" yaml:"ranking"`
}

// DefaultCalibration returns the built-in engine parameters.
func DefaultCalibration() Calibration {
	return Calibration{
		Version: "default",
		Dedup:   dedup.DefaultConfig(),
		Ranking: ranking.DefaultWeights(),
	}
}

// LoadCalibration reads engine parameters from a JSON or YAML file, chosen by extension.
// Fields missing from the file keep their defaults. An empty path returns the defaults.
// On any error the defaults are returned together with the error.
func LoadCalibration(path string) (Calibration, error) {
	defaults := DefaultCalibration()
	if path == "" {
		return defaults, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return defaults, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return defaults, fmt.Errorf("failed to read calibration file: %w", err)
	}

	cal := DefaultCalibration()
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cal)
	default:
		err = json.Unmarshal(data, &cal)
	}
	if err != nil {
		return defaults, fmt.Errorf("failed to parse calibration file: %w", err)
	}

	if err := cal.Dedup.Validate(); err != nil {
		return defaults, fmt.Errorf("invalid calibration: %w", err)
	}
	if err := cal.Ranking.Validate(); err != nil {
		return defaults, fmt.Errorf("invalid calibration: %w", err)
	}
	return cal, nil
}

// SaveCalibration writes the parameters as indented JSON, or YAML for .yaml/.yml paths.
func SaveCalibration(path string, cal Calibration) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cal)
	default:
		data, err = json.MarshalIndent(cal, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}
