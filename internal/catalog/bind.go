package catalog

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/area/internal/ir"
)

// DefaultFieldType is the input type of a field that declares none.
const DefaultFieldType = "text"

// ErrArity is returned when a positional argument list does not match the
// number of fields of a schema.
var ErrArity = errors.New("argument count does not match schema")

// ArityError reports a binding arity mismatch.
type ArityError struct {
	Reaction string
	Want     int
	Got      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("reaction %s: %s: want %d, got %d", e.Reaction, ErrArity, e.Want, e.Got)
}

func (e *ArityError) Unwrap() error {
	return ErrArity
}

// BindReaction maps a task's positional reaction arguments onto the named
// fields of the reaction schema. Reactions without fields accept any
// argument list and bind to an empty map. A length mismatch against a
// non-empty schema is rejected; arguments are never truncated or padded.
func (c *Catalog) BindReaction(reaction string, args []string) (map[string]string, error) {
	spec, err := c.Reaction(reaction)
	if err != nil {
		return nil, err
	}
	bound := make(map[string]string, len(spec.Fields))
	if len(spec.Fields) == 0 {
		return bound, nil
	}
	if len(args) != len(spec.Fields) {
		return nil, &ArityError{Reaction: reaction, Want: len(spec.Fields), Got: len(args)}
	}
	for i, f := range spec.Fields {
		bound[f.ID] = args[i]
	}
	return bound, nil
}

// withDefaults fills the type and label of fields that omit them. The label
// falls back to the field id with underscores as spaces, first letter upper.
func withDefaults(fields []ir.Field) []ir.Field {
	out := make([]ir.Field, len(fields))
	for i, f := range fields {
		if f.Type == "" {
			f.Type = DefaultFieldType
		}
		if f.Label == "" {
			f.Label = labelFor(f.ID)
		}
		out[i] = f
	}
	return out
}

func labelFor(id string) string {
	s := strings.ReplaceAll(id, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	// Casers are stateful and not shared between goroutines.
	return cases.Upper(language.Und).String(s[:size]) + cases.Lower(language.Und).String(s[size:])
}
