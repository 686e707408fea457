package meta

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// Loader error codes (L001-L099)
const (
	ErrCodeNotFound   = "L001" // path not found
	ErrCodeScanError  = "L002" // directory scan error
	ErrCodeNoFiles    = "L003" // no mapping files found
	ErrCodeReadFailed = "L004" // file read failed
	ErrCodeBadYAML    = "L005" // YAML parse failed
	ErrCodeSchema     = "L006" // CUE schema violation
	ErrCodeBadEnum    = "L007" // enum field outside its value set
)

// LoadError is an error raised while loading mapping documents.
type LoadError struct {
	Code    string
	File    string
	Message string
}

func (e *LoadError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// mappingSchema constrains mapping documents before they are decoded.
// Structural defects (missing names, unknown DDL types, bad operators)
// surface here with file positions; semantic defects (dangling references,
// constraint problems) are the Registry's job.
const mappingSchema = `
#ColumnType: "INTEGER" | "TEXT" | "REAL" | "BLOB" | "NUMERIC"

#Column: {
	name:         string & !=""
	type:         #ColumnType
	nullable?:    bool
	primary_key?: bool
}

#Table: {
	name:    string & !=""
	columns: [...#Column] & [_, ...]
}

#Property: {
	name:      string & !=""
	column:    string & !=""
	table?:    string
	to_one?:   string & !=""
	nullable?: bool
	version?:  bool
}

#Collection: {
	name:           string & !=""
	table:          string & !=""
	key_column:     string & !=""
	element_column: string & !=""
	element_type?:  #ColumnType
	target?:        string & !=""
}

#Restriction: {
	column: string & !=""
	op:     "=" | "!=" | "<" | "<=" | ">" | ">="
	value:  _
}

#Entity: {
	name:              string & !=""
	extends?:          string & !=""
	abstract?:         bool
	inheritance?:      "none" | "joined" | "union"
	id_property?:      string
	id_column?:        string
	id_type?:          #ColumnType
	id_strategy?:      "assigned" | "identity"
	tables?:           [...#Table]
	properties?:       [...#Property]
	collections?:      [...#Collection]
	base_restriction?: #Restriction
}

entities: [...#Entity] & [_, ...]
`

// ValidateDocument checks one YAML mapping document against the CUE schema.
// The returned error carries the file name and CUE's multi-line detail
// output, one line per violation.
func ValidateDocument(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(mappingSchema, cue.Filename("mapping.cue"))
	if err := schema.Err(); err != nil {
		return &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("compiling mapping schema: %v", err)}
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return &LoadError{Code: ErrCodeBadYAML, File: filename, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return &LoadError{Code: ErrCodeBadYAML, File: filename, Message: fmt.Sprintf("building document value: %v", err)}
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return &LoadError{Code: ErrCodeSchema, File: filename, Message: cueerrors.Details(err, nil)}
	}
	return nil
}
