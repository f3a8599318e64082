package harness

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/roach88/area/internal/store"
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
		for _, event := range e.Trace {
			switch event.Type {
			case TypeEvent:
				fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Seq, event.EventID, event.Trigger, event.Outcome)
			case TypeReaction:
				fmt.Fprintf(&buf, "  [%d]   %s (%s) %s %v\n", event.Seq, event.Task, event.Reaction, event.Outcome, event.Params)
			}
		}
	}

	return buf.String()
}

// reactionLines returns the reaction lines of trace.
func reactionLines(trace []TraceEvent) []TraceEvent {
	var out []TraceEvent
	for _, ev := range trace {
		if ev.Type == TypeReaction {
			out = append(out, ev)
		}
	}
	return out
}

// matchesTarget reports whether a reaction line belongs to the task or
// reaction an assertion names.
func matchesTarget(ev TraceEvent, a Assertion) bool {
	if a.Task != "" {
		return ev.Task == a.Task
	}
	return ev.Reaction == a.Reaction
}

func describeTarget(a Assertion) string {
	if a.Task != "" {
		return "task " + a.Task
	}
	return "reaction " + a.Reaction
}

// assertReactionCalled checks that the target was invoked at least once with
// params containing the expected ones (subset match).
func assertReactionCalled(trace []TraceEvent, assertion Assertion) error {
	for _, ev := range reactionLines(trace) {
		if matchesTarget(ev, assertion) && matchParams(ev.Params, assertion.Params) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertReactionCalled,
		Expected: fmt.Sprintf("%s invoked with params %v", describeTarget(assertion), assertion.Params),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertReactionOrder checks that the first invocations of the named tasks
// appear in the given order. Invocations need not be consecutive.
func assertReactionOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int64)
	for _, ev := range reactionLines(trace) {
		if _, seen := positions[ev.Task]; !seen {
			positions[ev.Task] = ev.Seq
		}
	}

	for _, name := range assertion.Tasks {
		if _, ok := positions[name]; !ok {
			return &AssertionError{
				Type:     AssertReactionOrder,
				Expected: fmt.Sprintf("all tasks invoked: %v", assertion.Tasks),
				Actual:   fmt.Sprintf("task %s never invoked", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Tasks); i++ {
		prev, curr := assertion.Tasks[i-1], assertion.Tasks[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertReactionOrder,
				Expected: fmt.Sprintf("tasks invoked in order: %v", assertion.Tasks),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertReactionCount checks that the target was invoked exactly Count times.
func assertReactionCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, ev := range reactionLines(trace) {
		if matchesTarget(ev, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertReactionCount,
			Expected: fmt.Sprintf("%d invocations of %s", assertion.Count, describeTarget(assertion)),
			Actual:   fmt.Sprintf("%d invocations", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertRowCount checks that a table holds exactly Count rows matching Where.
func assertRowCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	var count int
	if err := st.DB().QueryRowContext(ctx, query, whereArgs...).Scan(&count); err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("count rows of %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and holds the expected values (subset match).
//
// Table and column names are validated against a whitelist pattern since
// identifiers cannot be parameterized.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
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
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
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

// toSQLValue converts a YAML-parsed value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
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

// stateValuesEqual compares expected and actual values from state tables.
// SQLite returns integers as int64, booleans as 0/1 integers and timestamps
// as time.Time, so expected values are coerced accordingly.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case []byte:
			return exp == string(act)
		case time.Time:
			want, err := time.Parse(time.RFC3339, exp)
			return err == nil && want.Equal(act)
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		if actualInt, ok := actual.(int); ok {
			return exp == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	case time.Time:
		if actualTime, ok := actual.(time.Time); ok {
			return exp.Equal(actualTime)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// matchParams checks if actual params contain all expected params (subset match).
// Extra keys in actual are ignored.
func matchParams(actual, expected map[string]string) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || got != want {
			return false
		}
	}
	return true
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context

	// Tasks maps scenario task names to stored task ids.
	Tasks map[string]int64
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for row_count and final_state.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertReactionCalled:
			err = assertReactionCalled(result.Trace, assertion)
		case AssertReactionOrder:
			err = assertReactionOrder(result.Trace, assertion)
		case AssertReactionCount:
			err = assertReactionCount(result.Trace, assertion)
		case AssertRowCount, AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			resolved := resolveTaskRefs(assertion, actx.Tasks)
			if assertion.Type == AssertRowCount {
				err = assertRowCount(actx.Ctx, actx.Store, resolved)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, resolved)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// resolveTaskRefs replaces "$task.<name>" values in Where with stored task
// ids, so state assertions can address tasks by scenario name.
func resolveTaskRefs(a Assertion, tasks map[string]int64) Assertion {
	if len(a.Where) == 0 {
		return a
	}
	where := make(map[string]any, len(a.Where))
	for k, v := range a.Where {
		if s, ok := v.(string); ok {
			if name, found := strings.CutPrefix(s, "$task."); found {
				if id, known := tasks[name]; known {
					where[k] = id
					continue
				}
			}
		}
		where[k] = v
	}
	a.Where = where
	return a
}
