package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/roach88/autoboard/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			switch ev.Type {
			case TraceInvoke:
				fmt.Fprintf(&buf, "  [%d] %s %v\n", ev.Seq, ev.Action, ev.Args)
			case TraceRun:
				fmt.Fprintf(&buf, "  [%d]   run %s %s on %s (%s)\n", ev.Seq, ev.RuleID, ev.Status, ev.CardID, ev.Event)
			}
		}
	}
	return buf.String()
}

// runMatches reports whether a run event satisfies the optional filters of
// an assertion. Empty filters match anything.
func runMatches(ev TraceEvent, a Assertion) bool {
	if ev.Type != TraceRun || ev.RuleID != a.Rule {
		return false
	}
	if a.Status != "" && ev.Status != a.Status {
		return false
	}
	if a.Event != "" && ev.Event != a.Event {
		return false
	}
	if a.Card != "" && ev.CardID != a.Card {
		return false
	}
	return true
}

func describeRun(a Assertion) string {
	parts := []string{"rule " + a.Rule}
	if a.Status != "" {
		parts = append(parts, "status "+a.Status)
	}
	if a.Event != "" {
		parts = append(parts, "event "+a.Event)
	}
	if a.Card != "" {
		parts = append(parts, "card "+a.Card)
	}
	return strings.Join(parts, ", ")
}

// assertTraceContains checks that at least one run matches the assertion.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if runMatches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "run with " + describeRun(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first run of each rule appears in the
// given order. Runs of other rules may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int64)
	for _, ev := range trace {
		if ev.Type == TraceRun && positions[ev.RuleID] == 0 {
			positions[ev.RuleID] = ev.Seq
		}
	}

	for _, rule := range a.Rules {
		if positions[rule] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("runs of all rules: %v", a.Rules),
				Actual:   fmt.Sprintf("rule %s never ran", rule),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Rules); i++ {
		prev, curr := a.Rules[i-1], a.Rules[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("rules ran in order: %v", a.Rules),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching runs.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if runMatches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d run(s) with %s", a.Count, describeRun(a)),
			Actual:   fmt.Sprintf("%d run(s)", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCardState compares the card and its attachments with Expect.
// Only the keys present in Expect are checked.
func assertCardState(actx *AssertionContext, a Assertion) error {
	ctx, st := actx.Ctx, actx.Store

	card, err := st.GetCard(ctx, a.Card)
	exists := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	want, checkExists := a.Expect["exists"]
	if checkExists && want != exists {
		return cardMismatch(a.Card, "exists", want, exists)
	}
	if !exists {
		if checkExists {
			return nil
		}
		return &AssertionError{
			Type:     AssertCardState,
			Expected: fmt.Sprintf("card %s to exist", a.Card),
			Actual:   "card not found",
		}
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := a.Expect[key]
		var got any
		switch key {
		case "exists":
			continue
		case "list":
			got = card.ListID
		case "title":
			got = card.Title
		case "position":
			got = card.Position
		case "archived":
			got = card.Archived()
		case "due", "start":
			field := card.DueDate
			if key == "start" {
				field = card.StartDate
			}
			if !timeMatches(want, field, actx.Start) {
				return cardMismatch(a.Card, key, want, formatTimePtr(field))
			}
			continue
		case "labels", "members":
			var ids []string
			if key == "labels" {
				ids, err = st.ListCardLabels(ctx, a.Card)
			} else {
				ids, err = st.ListCardMembers(ctx, a.Card)
			}
			if err != nil {
				return err
			}
			if !sameIDs(want, ids) {
				return cardMismatch(a.Card, key, want, ids)
			}
			continue
		case "comments", "last_comment":
			comments, err := st.ListComments(ctx, a.Card)
			if err != nil {
				return err
			}
			if key == "comments" {
				got = len(comments)
			} else if len(comments) > 0 {
				got = comments[len(comments)-1].Text
			}
		case "checklists":
			lists, err := st.ListChecklists(ctx, a.Card)
			if err != nil {
				return err
			}
			got = len(lists)
		default:
			return fmt.Errorf("card_state: unknown field %q", key)
		}
		if !stateValuesEqual(want, got) {
			return cardMismatch(a.Card, key, want, got)
		}
	}
	return nil
}

func cardMismatch(cardID, key string, want, got any) error {
	return &AssertionError{
		Type:     AssertCardState,
		Expected: fmt.Sprintf("card %s %s = %v", cardID, key, want),
		Actual:   fmt.Sprintf("card %s %s = %v", cardID, key, got),
	}
}

// timeMatches compares an expected date (nil, RFC3339 or an offset from the
// scenario start) with a stored one.
func timeMatches(want any, got *time.Time, start time.Time) bool {
	if want == nil {
		return got == nil
	}
	s, ok := want.(string)
	if !ok || got == nil {
		return false
	}
	t, err := resolveTime(s, start)
	if err != nil {
		return false
	}
	return t.Equal(*got)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "<nil>"
	}
	return t.UTC().Format(time.RFC3339)
}

// sameIDs compares a YAML list of ids with stored ids, ignoring order.
func sameIDs(want any, got []string) bool {
	items, ok := want.([]any)
	if !ok && want != nil {
		return false
	}
	expected := make([]string, 0, len(items))
	for _, it := range items {
		expected = append(expected, fmt.Sprint(it))
	}
	actual := append([]string(nil), got...)
	sort.Strings(expected)
	sort.Strings(actual)
	return slices.Equal(expected, actual)
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it holds the expected values.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if a.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}

	for key, want := range a.Expect {
		got, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism and validated as identifiers.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML-decoded value to a SQL argument.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, float64:
		return val
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML-decoded expected value with a value read
// back from the store. SQLite hands integers back as int64, REAL columns as
// float64 and booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		got, ok := actual.(string)
		return ok && exp == got
	case int:
		return numberEqual(float64(exp), actual)
	case int64:
		return numberEqual(float64(exp), actual)
	case float64:
		return numberEqual(exp, actual)
	case bool:
		switch got := actual.(type) {
		case bool:
			return exp == got
		case int64:
			return exp == (got != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

func numberEqual(want float64, actual any) bool {
	switch got := actual.(type) {
	case int:
		return want == float64(got)
	case int64:
		return want == float64(got)
	case float64:
		return want == got
	}
	return false
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context

	// Start is the scenario clock start; relative dates resolve against it.
	Start time.Time
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for card_state and final_state.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertCardState, AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, a.Type)
			} else if a.Type == AssertCardState {
				err = assertCardState(actx, a)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
