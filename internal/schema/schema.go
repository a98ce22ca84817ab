// Package schema validates data contexts against CUE schemas.
//
// Templates tolerate missing data by design, so schema validation is an
// authoring aid rather than a render-time gate: the CLI validates a data
// file before rendering and reports every violation at once.
package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/htql-dev/htql/internal/value"
)

// ValidationError is one schema violation, addressed by the data path it
// occurred at.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Schema is a compiled CUE schema for a data context.
type Schema struct {
	ctx *cue.Context
	val cue.Value
}

// Compile parses CUE source into a Schema.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
func Compile(src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{ctx: ctx, val: v}, nil
}

// Validate checks a data context against the schema and returns all
// violations found (does not fail fast). An empty slice means the data
// conforms.
func (s *Schema) Validate(m value.Mapping) []ValidationError {
	data := s.ctx.Encode(value.ToAny(m))
	if err := data.Err(); err != nil {
		return []ValidationError{{Message: fmt.Sprintf("data not encodable: %v", err)}}
	}

	unified := s.val.Unify(data)
	err := unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		out = append(out, ValidationError{
			Field:   strings.Join(cueerrors.Path(e), "."),
			Message: e.Error(),
		})
	}
	return out
}
