package httpapi

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Payload schemas by name.
const (
	schemaEvent       = "event"
	schemaTaskCreate  = "task_create"
	schemaTaskReplace = "task_replace"
	schemaTaskPatch   = "task_patch"
	schemaIdentity    = "identity"
	schemaToken       = "token"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		names := []string{schemaEvent, schemaTaskCreate, schemaTaskReplace, schemaTaskPatch, schemaIdentity, schemaToken}
		compiled := make(map[string]*gojsonschema.Schema, len(names))
		for _, name := range names {
			b, err := schemaFS.ReadFile("schemas/" + name + ".json")
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

// ValidationError lists every violation of a payload schema.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + strings.Join(e.Problems, "; ")
}

// validatePayload checks a raw JSON body against the named schema.
func validatePayload(name string, body []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := all[name]
	if !ok {
		return fmt.Errorf("no schema named %q", name)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" || field == "" {
			field = desc.Context().String()
		}
		problems = append(problems, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return &ValidationError{Problems: problems}
}
