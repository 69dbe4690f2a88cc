package rulebook

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/autoboard/internal/automation"
)

//go:embed schema.cue
var schemaCUE string

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// schema compiles the embedded rule schema in ctx.
func schema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile rule schema: %w", err)
	}
	return v, nil
}

// CompileRule turns one rule.<id> CUE value into an automation.Rule.
// The value must already be unified with the schema.
//
// Unlike the store, which keeps unknown actions and malformed triggers so
// they can fail at run time, compilation rejects them up front.
func CompileRule(v cue.Value) (*automation.Rule, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	r := &automation.Rule{Enabled: true}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		r.ID = labels[len(labels)-1].Unquoted()
	}

	board, err := v.LookupPath(cue.ParsePath("board")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	r.BoardID = board

	r.Name = r.ID
	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		if r.Name, err = nameVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if r.Enabled, err = v.LookupPath(cue.ParsePath("enabled")).Bool(); err != nil {
		return nil, formatCUEError(err)
	}

	if err := compileTrigger(v.LookupPath(cue.ParsePath("trigger")), r); err != nil {
		return nil, err
	}

	if err := compileActions(v.LookupPath(cue.ParsePath("actions")), r); err != nil {
		return nil, err
	}

	if condVal := v.LookupPath(cue.ParsePath("conditions")); condVal.Exists() {
		raw, err := condVal.MarshalJSON()
		if err != nil {
			return nil, formatCUEError(err)
		}
		r.Conditions = json.RawMessage(raw)
	}

	return r, nil
}

func compileTrigger(v cue.Value, r *automation.Rule) error {
	typ, err := v.LookupPath(cue.ParsePath("type")).String()
	if err != nil {
		return formatCUEError(err)
	}
	tt, err := automation.ParseTriggerType(typ)
	if err != nil {
		return &CompileError{Field: "trigger.type", Message: err.Error(), Pos: v.Pos()}
	}
	r.TriggerType = tt

	raw, err := v.MarshalJSON()
	if err != nil {
		return formatCUEError(err)
	}
	trig, err := automation.DecodeTrigger(raw)
	if err != nil {
		return &CompileError{Field: "trigger.event", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("event")).Pos()}
	}

	if tt == automation.TriggerDue {
		if _, ok := trig.(automation.DueWindowTrigger); !ok {
			return &CompileError{
				Field:   "trigger.event",
				Message: fmt.Sprintf("due rules need a due.approaching or due.past event, got %s", trig.Event()),
				Pos:     v.Pos(),
			}
		}
	}
	r.Trigger = trig
	return nil
}

func compileActions(v cue.Value, r *automation.Rule) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return formatCUEError(err)
	}
	actions, err := automation.DecodeActions(raw)
	if err != nil {
		return &CompileError{Field: "actions", Message: err.Error(), Pos: v.Pos()}
	}
	for i, a := range actions {
		if u, ok := a.(automation.UnknownAction); ok {
			return &CompileError{
				Field:   fmt.Sprintf("actions[%d].type", i),
				Message: fmt.Sprintf("unknown action type %q", u.Type),
				Pos:     v.Pos(),
			}
		}
	}
	r.Actions = actions
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
