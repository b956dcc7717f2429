// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package project reads and scaffolds a crawl project directory: the
// project.yaml settings, the extraction schema, and the paths of the state
// file, downloaded content and dataset database.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citation-crawler/internal/acquire"
	"github.com/pdiddy/citation-crawler/internal/dataset"
	"github.com/pdiddy/citation-crawler/internal/frontier"
	"github.com/pdiddy/citation-crawler/internal/pipeline"
	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
)

const (
	FileName          = "project.yaml"
	DefaultSchemaFile = "schema.json"
)

// Project is the on-disk project.yaml.
type Project struct {
	Name                   string `yaml:"name" validate:"required"`
	Description            string `yaml:"description,omitempty"`
	SearchQuery            string `yaml:"search_query,omitempty"`
	RelevanceCriteria      string `yaml:"relevance_criteria" validate:"required"`
	ExtractionInstructions string `yaml:"extraction_instructions" validate:"required"`

	// SchemaFile is relative to the project directory. Empty disables
	// schema validation beyond well-formed JSON.
	SchemaFile string `yaml:"schema_file,omitempty"`

	dir string
}

var validate = validator.New()

// Load reads dir/project.yaml.
func Load(dir string) (*Project, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, crawlerr.New(crawlerr.CodeProjectLoad,
				fmt.Sprintf("%s not found (run `citation-crawler init %s`)", path, dir))
		}
		return nil, crawlerr.Wrap(err, crawlerr.CodeProjectLoad, "reading "+path)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeProjectLoad, "parsing "+path)
	}
	if err := validate.Struct(p); err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeProjectLoad, "validating "+path)
	}
	p.dir = dir
	return &p, nil
}

// Dir returns the project directory.
func (p *Project) Dir() string { return p.dir }

func (p *Project) StatePath() string {
	return filepath.Join(p.dir, frontier.DefaultFileName)
}

func (p *Project) DatasetPath() string {
	return filepath.Join(p.dir, dataset.DBFile)
}

// ContentRoot is where PDFs and metadata sidecars are stored.
func (p *Project) ContentRoot() string { return p.dir }

// SchemaPath returns the absolute schema location, or "" when none is set.
func (p *Project) SchemaPath() string {
	if p.SchemaFile == "" {
		return ""
	}
	if filepath.IsAbs(p.SchemaFile) {
		return p.SchemaFile
	}
	return filepath.Join(p.dir, p.SchemaFile)
}

// LoadSchema compiles the extraction schema. It returns nil when the
// project has none.
func (p *Project) LoadSchema() (*pipeline.Schema, error) {
	path := p.SchemaPath()
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeProjectLoad, "reading schema "+path)
	}
	s, err := pipeline.CompileSchema(raw)
	if err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeProjectLoad, "compiling schema "+path)
	}
	return s, nil
}

const schemaTemplate = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["value"],
    "properties": {
      "value": {"type": "string"},
      "context": {"type": "string"}
    }
  }
}
`

// Init scaffolds a project in dir. It refuses to overwrite an existing
// project.yaml.
func Init(dir, name string) (*Project, error) {
	if name == "" {
		name = filepath.Base(dir)
	}
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil, crawlerr.New(crawlerr.CodeProjectLoad, path+" already exists")
	}

	for _, sub := range []string{dir, filepath.Join(dir, acquire.PDFDir), filepath.Join(dir, acquire.MetadataDir)} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, crawlerr.Wrap(err, crawlerr.CodeProjectLoad, "creating "+sub)
		}
	}

	p := &Project{
		Name:                   name,
		Description:            "Describe the dataset this crawl builds.",
		SearchQuery:            "",
		RelevanceCriteria:      "Describe which papers belong in the dataset.",
		ExtractionInstructions: "Describe the data points to extract from each paper.",
		SchemaFile:             DefaultSchemaFile,
		dir:                    dir,
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling project: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeProjectLoad, "writing "+path)
	}

	schemaPath := p.SchemaPath()
	if _, err := os.Stat(schemaPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(schemaPath, []byte(schemaTemplate), 0o644); err != nil {
			return nil, crawlerr.Wrap(err, crawlerr.CodeProjectLoad, "writing "+schemaPath)
		}
	}
	return p, nil
}
