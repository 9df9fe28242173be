// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *BuildReport {
	return &BuildReport{
		Resolved: []PackageSummary{
			{Name: "app", Version: "0.1.0", Source: "path+file:///ws/app"},
			{Name: "left-pad", Version: "1.0.0", Source: "registry+https://github.com/rust-lang/crates.io-index"},
		},
		Units: []UnitSummary{
			{Package: "app", Version: "0.1.0", Target: "app", Mode: "build", Triple: "x86_64-unknown-linux-gnu", Fresh: false},
		},
		Succeeded: []string{"app"},
	}
}

func TestNewReportWriterDefaults(t *testing.T) {
	w := NewReportWriter(true, "", nil, "", false, false)
	require.Equal(t, "cratebuild-report", w.NamePrefix)
	require.Equal(t, []string{"json", "yaml"}, w.Formats)
	require.Equal(t, os.TempDir(), w.OutputDir)
}

func TestReportWriterDisabledReturnsNil(t *testing.T) {
	w := NewReportWriter(false, "test", []string{"json"}, t.TempDir(), false, false)
	result, err := w.Write(sampleReport(), "build")
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestReportWriterJSON(t *testing.T) {
	dir := t.TempDir()
	w := NewReportWriter(true, "test-report", []string{"json"}, dir, false, false)

	result, err := w.Write(sampleReport(), "build")
	require.NoError(t, err)
	require.Len(t, result.Files, 2)
	require.True(t, strings.HasPrefix(result.Name, "test-report-build-"))

	data, err := os.ReadFile(filepath.Join(result.Path, "report.json"))
	require.NoError(t, err)
	var parsed BuildReport
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Equal(t, "app", parsed.Resolved[0].Name)
}

func TestReportWriterYAML(t *testing.T) {
	dir := t.TempDir()
	w := NewReportWriter(true, "test-report", []string{"yaml"}, dir, false, false)

	result, err := w.Write(sampleReport(), "build")
	require.NoError(t, err)
	require.Len(t, result.Files, 1)

	data, err := os.ReadFile(filepath.Join(result.Path, "report.yaml"))
	require.NoError(t, err)
	var parsed BuildReport
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	require.Equal(t, "left-pad", parsed.Resolved[1].Name)
}

func TestReportWriterUnsupportedFormat(t *testing.T) {
	w := NewReportWriter(true, "test", []string{"xml"}, t.TempDir(), false, false)
	_, err := w.Write(sampleReport(), "build")
	require.ErrorContains(t, err, "unsupported report format")
}

func TestGenerateSuffixLengthAndCharset(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := generateSuffix()
		require.NoError(t, err)
		require.Len(t, s, 4)
		for _, c := range s {
			require.True(t, (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'))
		}
		seen[s] = true
	}
	require.Greater(t, len(seen), 30)
}
