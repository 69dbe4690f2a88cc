package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/autoboard/internal/automation"
)

// DefaultNow is the clock start of a scenario that does not set one.
var DefaultNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Scenario defines an automation test scenario: a board fixture, the rules
// installed on it, a flow of board mutations, events, clock moves and polls,
// and assertions over the resulting trace and board state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the starting clock time. Defaults to DefaultNow.
	Now *time.Time `yaml:"now,omitempty"`

	Board BoardFixture `yaml:"board"`

	// Rules are installed directly, the way the store holds them. Unknown
	// action types are kept so failure paths can be exercised.
	Rules []RuleFixture `yaml:"rules,omitempty"`

	// Rulebook is a directory of CUE rule files, relative to the scenario file.
	Rulebook string `yaml:"rulebook,omitempty"`

	// Flow contains the steps to execute in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// BoardFixture describes the board a scenario starts from. Lists, labels
// and members are given by id; names default to the id.
type BoardFixture struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name,omitempty"`
	Lists   []string      `yaml:"lists"`
	Labels  []string      `yaml:"labels,omitempty"`
	Members []string      `yaml:"members,omitempty"`
	Cards   []CardFixture `yaml:"cards,omitempty"`
}

// CardFixture places a card. Due and Start accept RFC3339 or an offset from
// the scenario clock such as "+90m" or "-2h".
type CardFixture struct {
	ID         string             `yaml:"id"`
	List       string             `yaml:"list"`
	Title      string             `yaml:"title,omitempty"`
	Position   *float64           `yaml:"position,omitempty"`
	Due        string             `yaml:"due,omitempty"`
	Start      string             `yaml:"start,omitempty"`
	Archived   bool               `yaml:"archived,omitempty"`
	Labels     []string           `yaml:"labels,omitempty"`
	Members    []string           `yaml:"members,omitempty"`
	Checklists []ChecklistFixture `yaml:"checklists,omitempty"`
}

type ChecklistFixture struct {
	ID    string        `yaml:"id"`
	Title string        `yaml:"title,omitempty"`
	Items []ItemFixture `yaml:"items"`
}

type ItemFixture struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
	Done bool   `yaml:"done,omitempty"`
}

// RuleFixture is a rule in its stored JSON shape. Trigger.type selects the
// trigger type and defaults to "event".
type RuleFixture struct {
	ID      string           `yaml:"id"`
	Name    string           `yaml:"name,omitempty"`
	Enabled *bool            `yaml:"enabled,omitempty"`
	Trigger map[string]any   `yaml:"trigger"`
	Actions []map[string]any `yaml:"actions"`
}

// FlowStep invokes one operation. See the Invoke* constants.
type FlowStep struct {
	Invoke string         `yaml:"invoke"`
	Args   map[string]any `yaml:"args"`

	// Expect checks the step outcome. If nil, the step must not fail.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a flow step.
type ExpectClause struct {
	// Runs is the number of ledger entries the step appends.
	Runs *int `yaml:"runs,omitempty"`

	// Error is a substring the step error must contain.
	Error string `yaml:"error,omitempty"`
}

// Supported flow operations.
const (
	InvokeDispatch    = "event.dispatch"
	InvokePoll        = "poll.due"
	InvokeAdvance     = "clock.advance"
	InvokeSetClock    = "clock.set"
	InvokeRuleEnable  = "rule.enable"
	InvokeRuleDisable = "rule.disable"
	InvokeMove        = "card.move"
	InvokeArchive     = "card.archive"
	InvokeRestore     = "card.restore"
	InvokeDelete      = "card.delete"
	InvokeLabel       = "card.label"
	InvokeUnlabel     = "card.unlabel"
	InvokeAssign      = "card.assign"
	InvokeUnassign    = "card.unassign"
	InvokeDue         = "card.due"
	InvokeStart       = "card.start"
	InvokeComment     = "card.comment"
	InvokeCheckItem   = "checklist.check"
)

var knownInvokes = map[string]bool{
	InvokeDispatch: true, InvokePoll: true, InvokeAdvance: true, InvokeSetClock: true,
	InvokeRuleEnable: true, InvokeRuleDisable: true,
	InvokeMove: true, InvokeArchive: true, InvokeRestore: true, InvokeDelete: true,
	InvokeLabel: true, InvokeUnlabel: true, InvokeAssign: true, InvokeUnassign: true,
	InvokeDue: true, InvokeStart: true, InvokeComment: true, InvokeCheckItem: true,
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a run matching rule/status/event/card exists
	// - "trace_order": the first runs of Rules appear in this order
	// - "trace_count": rule has exactly Count runs (optionally of Status)
	// - "card_state": card fields match Expect
	// - "final_state": query table and verify expected values
	Type string `yaml:"type"`

	Rule   string   `yaml:"rule,omitempty"`
	Status string   `yaml:"status,omitempty"`
	Event  string   `yaml:"event,omitempty"`
	Card   string   `yaml:"card,omitempty"`
	Count  int      `yaml:"count,omitempty"`
	Rules  []string `yaml:"rules,omitempty"`

	// Table and Where select a row for final_state.
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected fields (subset match) for card_state and final_state.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertCardState     = "card_state"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Rulebook != "" && !filepath.IsAbs(scenario.Rulebook) {
		scenario.Rulebook = filepath.Join(filepath.Dir(path), scenario.Rulebook)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Board.ID == "" {
		return fmt.Errorf("board.id is required")
	}
	if len(s.Board.Lists) == 0 {
		return fmt.Errorf("board.lists is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Rulebook != "" {
		if _, err := os.Stat(s.Rulebook); os.IsNotExist(err) {
			return fmt.Errorf("rulebook directory not found: %s", s.Rulebook)
		}
	}

	for i, card := range s.Board.Cards {
		if card.ID == "" || card.List == "" {
			return fmt.Errorf("board.cards[%d]: id and list are required", i)
		}
	}

	for i, r := range s.Rules {
		if r.ID == "" {
			return fmt.Errorf("rules[%d]: id is required", i)
		}
		if r.Trigger == nil {
			return fmt.Errorf("rules[%d]: trigger is required", i)
		}
		if typ, ok := r.Trigger["type"]; ok {
			str, _ := typ.(string)
			if _, err := automation.ParseTriggerType(str); err != nil {
				return fmt.Errorf("rules[%d]: %w", i, err)
			}
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if !knownInvokes[step.Invoke] {
			return fmt.Errorf("flow[%d]: unknown invoke %q", i, step.Invoke)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Rules) == 0 {
			return fmt.Errorf("assertions[%d]: rules list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertCardState:
		if a.Card == "" {
			return fmt.Errorf("assertions[%d]: card is required for card_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for card_state", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// resolveTime parses an RFC3339 instant or a signed offset from now.
func resolveTime(s string, now time.Time) (time.Time, error) {
	if len(s) > 1 && (s[0] == '+' || s[0] == '-') {
		d, err := time.ParseDuration(s)
		if err == nil {
			return now.Add(d), nil
		}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: want RFC3339 or an offset like +90m", s)
	}
	return t.UTC(), nil
}
