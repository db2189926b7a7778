package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed table.schema.json
var tableSchema []byte

const tableSchemaURL = "emojid://registry/table.schema.json"

// Table is the on-disk representation of a shortcut table.
//
//	[shortcuts]
//	":smile:" = "😄"
type Table struct {
	Version   int               `json:"version,omitempty" toml:"version" yaml:"version"`
	Shortcuts map[string]string `json:"shortcuts" toml:"shortcuts" yaml:"shortcuts"`
}

// Load reads a shortcut table from path. The format is chosen by
// extension: .toml, .json, .yaml or .yml. JSON tables are validated against
// the embedded schema before decoding.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a shortcut table. ext selects the format and includes the
// leading dot.
func Parse(data []byte, ext string) (*Registry, error) {
	var tbl Table
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(data), &tbl); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tbl); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := validateJSON(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &tbl); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported registry format %q", ext)
	}

	r, err := FromMap(tbl.Shortcuts)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// validateJSON checks a JSON table against the embedded schema.
func validateJSON(data []byte) error {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(tableSchemaURL, bytes.NewReader(tableSchema)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(tableSchemaURL)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("registry schema: %w", err)
	}
	return nil
}

// Save writes the registry as a TOML table.
func (r *Registry) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create registry file: %w", err)
	}
	defer f.Close()

	tbl := Table{Version: 1, Shortcuts: make(map[string]string, r.Len())}
	for k, v := range r.mappings {
		tbl.Shortcuts[k] = v
	}
	if err := toml.NewEncoder(f).Encode(tbl); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	return nil
}
