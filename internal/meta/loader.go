package meta

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// LoadMode controls how errors are handled while loading mapping documents.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// document is the YAML wire form of a mapping file.
type document struct {
	Entities []entityDoc `yaml:"entities"`
}

// entityDoc is the YAML wire form of one entity mapping. Enum-valued fields
// arrive as strings and are converted when building the Entity.
type entityDoc struct {
	Name            string           `yaml:"name"`
	Extends         string           `yaml:"extends"`
	Abstract        bool             `yaml:"abstract"`
	Inheritance     string           `yaml:"inheritance"`
	IDProperty      string           `yaml:"id_property"`
	IDColumn        string           `yaml:"id_column"`
	IDType          string           `yaml:"id_type"`
	IDStrategy      string           `yaml:"id_strategy"`
	Tables          []Table          `yaml:"tables"`
	Properties      []propertyDoc    `yaml:"properties"`
	Collections     []Collection     `yaml:"collections"`
	BaseRestriction *ColumnCondition `yaml:"base_restriction"`
}

type propertyDoc struct {
	Name     string `yaml:"name"`
	Column   string `yaml:"column"`
	Table    string `yaml:"table"`
	ToOne    string `yaml:"to_one"`
	Nullable bool   `yaml:"nullable"`
	Version  bool   `yaml:"version"`
}

// LoadFile reads, schema-validates, and decodes one mapping document.
func LoadFile(path string) ([]*Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, File: path, Message: err.Error()}
	}
	if err := ValidateDocument(path, data); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Code: ErrCodeBadYAML, File: path, Message: fmt.Sprintf("decoding YAML: %v", err)}
	}

	entities := make([]*Entity, 0, len(doc.Entities))
	for i := range doc.Entities {
		e, err := buildEntity(path, &doc.Entities[i])
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// LoadDir loads every .yaml/.yml mapping document under dir, one goroutine
// per file. In fail-fast mode the first failing file aborts the load; in
// collect-all mode every file is processed and all errors are returned.
// Entities are returned in file-name order regardless of goroutine timing.
func LoadDir(dir string, mode LoadMode) ([]*Entity, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("mapping directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing mapping directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := findMappingFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no mapping files found in %s", dir)}}
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		perFile = make([][]*Entity, len(files))
		errs    []error
	)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			entities, err := LoadFile(path)
			if err != nil {
				if mode == LoadModeFailFast {
					return err
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			perFile[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, []error{err}
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return nil, errs
	}

	var all []*Entity
	for _, entities := range perFile {
		all = append(all, entities...)
	}
	return all, nil
}

// LoadRegistry is the common load path: read a mapping directory and build
// the validated registry from it.
func LoadRegistry(dir string, mode LoadMode) (*Registry, []error) {
	entities, errs := LoadDir(dir, mode)
	if len(errs) > 0 {
		return nil, errs
	}
	reg, verrs := NewRegistry(entities)
	if len(verrs) > 0 {
		out := make([]error, 0, len(verrs))
		for _, ve := range verrs {
			out = append(out, ve)
		}
		if mode == LoadModeFailFast {
			out = out[:1]
		}
		return nil, out
	}
	return reg, nil
}

func findMappingFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func buildEntity(path string, doc *entityDoc) (*Entity, error) {
	e := &Entity{
		Name:            doc.Name,
		Extends:         doc.Extends,
		Abstract:        doc.Abstract,
		IDProperty:      doc.IDProperty,
		IDColumn:        doc.IDColumn,
		IDType:          doc.IDType,
		Tables:          doc.Tables,
		Collections:     doc.Collections,
		BaseRestriction: doc.BaseRestriction,
	}

	switch doc.Inheritance {
	case "", "none":
		e.Inheritance = InheritanceNone
	case "joined":
		e.Inheritance = InheritanceJoined
	case "union":
		e.Inheritance = InheritanceUnion
	default:
		return nil, &LoadError{Code: ErrCodeBadEnum, File: path, Message: fmt.Sprintf("entity %s: invalid inheritance %q", doc.Name, doc.Inheritance)}
	}

	switch doc.IDStrategy {
	case "", "assigned":
		e.IDStrategy = IDAssigned
	case "identity":
		e.IDStrategy = IDIdentity
	default:
		return nil, &LoadError{Code: ErrCodeBadEnum, File: path, Message: fmt.Sprintf("entity %s: invalid id_strategy %q", doc.Name, doc.IDStrategy)}
	}

	e.Properties = make([]Property, 0, len(doc.Properties))
	for _, p := range doc.Properties {
		prop := Property{
			Name:     p.Name,
			Column:   p.Column,
			Table:    p.Table,
			Nullable: p.Nullable,
			Version:  p.Version,
		}
		if p.ToOne != "" {
			prop.Kind = KindToOne
			prop.Target = p.ToOne
		}
		e.Properties = append(e.Properties, prop)
	}
	return e, nil
}
