package schema

import (
	"fmt"
	"os"

	"github.com/cloudshield/eqlproxy/internal/eql"
	"gopkg.in/yaml.v3"
)

// fileColumn is the YAML shape of one column entry in a schema-source
// file. The real schema source is opaque per spec (e.g. a configuration
// table queried over SQL); this file-based loader is the one concrete
// implementation the core ships, analogous to how the teacher loads its
// tenant config from YAML.
type fileColumn struct {
	Name      string   `yaml:"name"`
	Encrypted bool     `yaml:"encrypted"`
	CastType  string   `yaml:"cast_type"`
	Indexes   []string `yaml:"indexes"`
}

type fileTable struct {
	Name    string       `yaml:"name"`
	Columns []fileColumn `yaml:"columns"`
}

type fileSchema struct {
	Tables []fileTable `yaml:"tables"`
}

// LoadFile parses a YAML schema-source file into Table definitions
// suitable for Registry.Reload.
func LoadFile(path string) ([]*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	var fs fileSchema
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parsing schema file: %w", err)
	}

	tables := make([]*Table, 0, len(fs.Tables))
	for _, ft := range fs.Tables {
		t := &Table{
			Name:    ft.Name,
			Order:   make([]string, 0, len(ft.Columns)),
			Columns: make(map[string]ColumnSpec, len(ft.Columns)),
		}
		for _, fc := range ft.Columns {
			spec := ColumnSpec{
				Encrypted: fc.Encrypted,
				CastType:  fc.CastType,
				Indexes:   map[eql.IndexKind]struct{}{},
			}
			for _, idx := range fc.Indexes {
				spec.Indexes[eql.IndexKind(idx)] = struct{}{}
			}
			name := fc.Name
			t.Order = append(t.Order, name)
			t.Columns[name] = spec
		}
		tables = append(tables, t)
	}
	return tables, nil
}
