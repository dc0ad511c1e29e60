// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Format selects how a result is written.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
)

// ParseFormat accepts markdown (md), yaml (yml), or json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown format %q (want markdown, yaml, or json)", s)
}

// FormatForPath picks the format from a file extension. Unknown extensions
// are written as markdown.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return FormatMarkdown
}

// Export writes r to w. Markdown output is the report alone; YAML and JSON
// carry the full result including every batch and source.
func Export(w io.Writer, r *types.ResearchResult, format Format) error {
	var data []byte
	var err error
	switch format {
	case FormatMarkdown:
		data = []byte(strings.TrimRight(r.ReportMarkdown, "\n") + "\n")
	case FormatYAML:
		data, err = yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
	case FormatJSON:
		data, err = json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	_, err = w.Write(data)
	return err
}

// WriteFile exports r to path in the format implied by its extension.
func WriteFile(path string, r *types.ResearchResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Export(f, r, FormatForPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
