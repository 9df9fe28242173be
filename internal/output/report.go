// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package output writes the result of one build (resolution, unit
// graph, freshness and job outcomes) to disk in the same
// multi-format, validated-before-write shape the teacher's artifact
// writer used for its own metadata, just carrying a build report
// instead of project metadata (internal/output/artifact.go, the
// teacher's original, no longer exists under that name — grounded on
// its structure, not its content).
package output

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lfreleng-actions/cratebuild/internal/validator"
	"gopkg.in/yaml.v3"
)

// PackageSummary is one resolved package entry in a BuildReport.
type PackageSummary struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Source  string `json:"source" yaml:"source"`
}

// UnitSummary is one compiled unit's outcome in a BuildReport.
type UnitSummary struct {
	Package string `json:"package" yaml:"package"`
	Version string `json:"version" yaml:"version"`
	Target  string `json:"target" yaml:"target"`
	Mode    string `json:"mode" yaml:"mode"`
	Triple  string `json:"triple" yaml:"triple"`
	Fresh   bool   `json:"fresh" yaml:"fresh"`
}

// BuildReport is the machine-readable summary of one build run,
// analogous to `cargo build --message-format=json`'s final shape but
// collapsed into one document rather than a stream of JSON lines.
type BuildReport struct {
	Resolved  []PackageSummary  `json:"resolved" yaml:"resolved"`
	Units     []UnitSummary     `json:"units" yaml:"units"`
	Succeeded []string          `json:"succeeded" yaml:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty" yaml:"failed,omitempty"`
	Skipped   []string          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// ReportWriter writes a BuildReport to disk in one or more formats.
type ReportWriter struct {
	Enabled        bool
	NamePrefix     string
	Formats        []string
	OutputDir      string
	ValidateOutput bool
	StrictMode     bool
}

// WriteResult describes where a report landed and which files it
// produced.
type WriteResult struct {
	Path   string
	Suffix string
	Name   string
	Files  []string
}

// NewReportWriter builds a ReportWriter, defaulting an empty prefix,
// output directory and format list the same way the teacher's
// NewArtifactUploader did.
func NewReportWriter(enabled bool, namePrefix string, formats []string, outputDir string, validateOutput, strictMode bool) *ReportWriter {
	if namePrefix == "" {
		namePrefix = "cratebuild-report"
	}
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if len(formats) == 0 {
		formats = []string{"json", "yaml"}
	}
	return &ReportWriter{
		Enabled:        enabled,
		NamePrefix:     namePrefix,
		Formats:        formats,
		OutputDir:      outputDir,
		ValidateOutput: validateOutput,
		StrictMode:     strictMode,
	}
}

// Write renders report in every configured format under a fresh
// directory below OutputDir, named "<prefix>-<label>-<suffix>".
func (w *ReportWriter) Write(report *BuildReport, label string) (*WriteResult, error) {
	if !w.Enabled {
		return nil, nil
	}

	suffix, err := generateSuffix()
	if err != nil {
		return nil, fmt.Errorf("generating report suffix: %w", err)
	}
	name := fmt.Sprintf("%s-%s-%s", w.NamePrefix, label, suffix)
	dir := filepath.Join(w.OutputDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	result := &WriteResult{Path: dir, Suffix: suffix, Name: name}
	for _, format := range w.Formats {
		switch format {
		case "json":
			files, err := w.writeJSON(dir, report)
			if err != nil {
				return nil, fmt.Errorf("writing JSON report: %w", err)
			}
			result.Files = append(result.Files, files...)
		case "yaml":
			files, err := w.writeYAML(dir, report)
			if err != nil {
				return nil, fmt.Errorf("writing YAML report: %w", err)
			}
			result.Files = append(result.Files, files...)
		default:
			return nil, fmt.Errorf("unsupported report format: %s", format)
		}
	}
	return result, nil
}

func (w *ReportWriter) writeJSON(dir string, report *BuildReport) ([]string, error) {
	jsonValidator := validator.NewJSONValidator(w.StrictMode)

	compact, pretty, err := jsonValidator.ValidateAndPrettify(report)
	if err != nil {
		if w.ValidateOutput {
			return nil, err
		}
		compact, _ = json.Marshal(report)
		pretty, _ = json.MarshalIndent(report, "", "  ")
	}

	if err := os.WriteFile(filepath.Join(dir, "report.json"), compact, 0o644); err != nil {
		return nil, fmt.Errorf("writing compact JSON: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report-pretty.json"), pretty, 0o644); err != nil {
		return nil, fmt.Errorf("writing pretty JSON: %w", err)
	}
	return []string{"report.json", "report-pretty.json"}, nil
}

func (w *ReportWriter) writeYAML(dir string, report *BuildReport) ([]string, error) {
	yamlValidator := validator.NewYAMLValidator(w.StrictMode)

	data, err := yamlValidator.MarshalAndValidate(report)
	if err != nil {
		if w.ValidateOutput {
			return nil, err
		}
		data, _ = yaml.Marshal(report)
	}

	if err := os.WriteFile(filepath.Join(dir, "report.yaml"), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing YAML report: %w", err)
	}
	return []string{"report.yaml"}, nil
}

// generateSuffix returns a random 4-character lowercase-alphanumeric
// suffix for disambiguating repeated report writes to the same
// directory.
func generateSuffix() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	const length = 4

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	suffix := make([]byte, length)
	for i, b := range raw {
		suffix[i] = charset[int(b)%len(charset)]
	}
	return string(suffix), nil
}
