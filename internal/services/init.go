package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
)

// InitService scaffolds a new project.
type InitService struct{}

// NewInitService creates a new initialization service
func NewInitService() *InitService {
	return &InitService{}
}

// InitOptions contains options for project initialization
type InitOptions struct {
	ProjectDir string
	// Minimal writes the config file only.
	Minimal bool
	// Force overwrites files that already exist.
	Force bool
}

type scaffoldFile struct {
	rel     string
	content []byte
}

// InitResult lists what InitProject wrote and skipped.
type InitResult struct {
	Created []string
	Skipped []string
}

const exampleStylesheet = `@use "variables" as *;

body {
  font-family: $font-stack;
  color: $text-color;
  user-select: none;
}

@media (max-width: 600px) {
  body { font-size: 14px; }
}
`

const exampleVariables = `$font-stack: system-ui, sans-serif;
$text-color: #222;
`

const examplePage = `<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>assetpipe</title>
  {{ .Styles }}
</head>
<body>
  <h1>Hello</h1>
</body>
</html>
`

// InitProject writes the default config and, unless Minimal is set, an
// example stylesheet, partial and page laid out the way the defaults expect.
func (s *InitService) InitProject(opts InitOptions) (*InitResult, error) {
	dir := opts.ProjectDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWriteFailed, "cannot create project directory", err).
			WithContext("path", dir)
	}

	cfg := config.Default()
	content, err := MarshalConfig(cfg)
	if err != nil {
		return nil, err
	}

	files := []scaffoldFile{{config.FileName, content}}
	if !opts.Minimal {
		files = append(files,
			scaffoldFile{filepath.Join(cfg.Paths.Src, "styles", "site.scss"), []byte(exampleStylesheet)},
			scaffoldFile{filepath.Join(cfg.Paths.Src, "styles", "_variables.scss"), []byte(exampleVariables)},
			scaffoldFile{filepath.Join(cfg.Paths.Src, "index.html"), []byte(examplePage)},
		)
	}

	result := &InitResult{}
	for _, file := range files {
		path := filepath.Join(dir, file.rel)
		if _, err := os.Stat(path); err == nil && !opts.Force {
			result.Skipped = append(result.Skipped, file.rel)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return result, errors.ErrWriteFailed(path, err)
		}
		if err := os.WriteFile(path, file.content, 0o644); err != nil {
			return result, errors.ErrWriteFailed(path, err)
		}
		result.Created = append(result.Created, file.rel)
	}

	return result, nil
}

// MarshalConfig renders cfg as YAML. Durations are written in their string
// form ("300ms") so the file stays readable.
func MarshalConfig(cfg *config.Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeConfigInvalid, "failed to encode config", err)
	}

	durations := map[string]string{
		"debounce": cfg.Development.Debounce.String(),
	}
	rewriteScalars(&doc, durations)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeConfigInvalid, "failed to write config", err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeConfigInvalid, "failed to write config", err)
	}

	header := fmt.Sprintf("# assetpipe configuration. Every key can be overridden with %s_* environment variables.\n", config.EnvPrefix)
	return append([]byte(header), buf.Bytes()...), nil
}

// rewriteScalars replaces the values of mapping keys named in values,
// anywhere in the tree.
func rewriteScalars(node *yaml.Node, values map[string]string) {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if replacement, ok := values[key.Value]; ok && value.Kind == yaml.ScalarNode {
				value.Tag = "!!str"
				value.Value = replacement
			}
		}
	}
	for _, child := range node.Content {
		rewriteScalars(child, values)
	}
}
