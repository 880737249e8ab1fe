package run

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaCUE string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	runDef     cue.Value
	schemaErr  error

	// cue.Context values are not safe for concurrent use.
	schemaMu sync.Mutex
)

// loadSchema compiles schema.cue once per process.
func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile run schema: %w", err)
			return
		}
		runDef = v.LookupPath(cue.ParsePath("#Run"))
		if !runDef.Exists() {
			schemaErr = fmt.Errorf("run schema has no #Run definition")
		}
	})
	return schemaCtx, runDef, schemaErr
}

// checkSchema unifies a JSON document with #Run and reports the first
// violations in a single error.
func checkSchema(name string, data []byte) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	expr, err := cuejson.Extract(name, data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build %s: %w", name, err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", cueerrors.Details(err, nil))
	}
	return nil
}
