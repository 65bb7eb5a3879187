package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "mem://liferoom/schemas/"

// Request body schema names.
const (
	SchemaRegister     = "register"
	SchemaAgentPatch   = "agent_patch"
	SchemaPersona      = "persona"
	SchemaFramework    = "framework"
	SchemaLifeDay      = "lifeday"
	SchemaIntersection = "intersection"
	SchemaSettings     = "settings"
	SchemaGeocode      = "geocode"
	SchemaSubscribe    = "subscribe"
)

// Validator checks request bodies against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func LoadSchemas() (*Validator, error) {
	ents, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	var names []string
	for _, e := range ents {
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}
	v := &Validator{schemas: map[string]*jsonschema.Schema{}}
	for _, n := range names {
		s, err := c.Compile(schemaBase + n)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", n, err)
		}
		v.schemas[strings.TrimSuffix(n, ".schema.json")] = s
	}
	return v, nil
}

func (v *Validator) Names() []string {
	out := make([]string, 0, len(v.schemas))
	for n := range v.schemas {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Validate parses raw as JSON and checks it against the named schema.
// Failures come back as *Error with a hint naming the offending field.
func (v *Validator) Validate(name string, raw []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return NewError(ErrBadRequest, "Invalid JSON body", err.Error())
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepest(ve)
			loc := leaf.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			return NewError(ErrValidation, "Request body failed validation", loc+": "+leaf.Message)
		}
		return NewError(ErrValidation, "Request body failed validation", err.Error())
	}
	return nil
}

func deepest(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
