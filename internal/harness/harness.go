package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/board"
	"github.com/roach88/autoboard/internal/engine"
	"github.com/roach88/autoboard/internal/rulebook"
	"github.com/roach88/autoboard/internal/store"
	"github.com/roach88/autoboard/internal/testutil"
)

// Harness executes one scenario against a fresh in-memory store, the real
// engine and the board service, all driven by a settable clock.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	cards   *board.Service
	clock   *testutil.SettableClock
	start   time.Time
	boardID string
	result  *Result
	runs    int
}

// recordingStore reports every ledger entry the engine appends.
type recordingStore struct {
	*store.Store
	onRun func(automation.RunLogEntry)
}

func (r *recordingStore) AppendRunLog(ctx context.Context, e automation.RunLogEntry) (automation.RunLogEntry, error) {
	saved, err := r.Store.AppendRunLog(ctx, e)
	if err == nil {
		r.onRun(saved)
	}
	return saved, err
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Create a fresh in-memory database
// 2. Seed the board fixture and install rules
// 3. Execute flow steps, recording each step and the runs it produced
// 4. Evaluate assertions against the trace and the final board state
//
// A returned error means the scenario could not be set up; step and
// assertion failures are reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, zap.NewNop())
}

// RunWithLogger is Run with engine logging sent to logger.
func RunWithLogger(scenario *Scenario, logger *zap.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := DefaultNow
	if scenario.Now != nil {
		start = scenario.Now.UTC()
	}
	clock := testutil.NewSettableClock(start)
	result := NewResult()

	h := &Harness{
		store:   st,
		clock:   clock,
		start:   start,
		boardID: scenario.Board.ID,
		result:  result,
	}
	rec := &recordingStore{Store: st, onRun: h.recordRun}
	h.engine = engine.New(rec, engine.WithClock(clock), engine.WithLogger(logger))
	h.cards = board.New(st, engine.NewEmitter(h.engine, logger), clock)

	ctx := context.Background()
	if err := h.seedBoard(ctx, scenario.Board); err != nil {
		return nil, fmt.Errorf("failed to seed board: %w", err)
	}
	if err := h.installRules(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to install rules: %w", err)
	}

	h.executeFlow(ctx, scenario.Flow)

	actx := &AssertionContext{Store: st, Ctx: ctx, Start: start}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) recordRun(e automation.RunLogEntry) {
	h.runs++
	ev := TraceEvent{
		RuleID: e.AutomationID,
		Status: string(e.Status),
		At:     e.CreatedAt.UTC().Format(time.RFC3339),
		Error:  e.ErrorText,
	}
	if ref, err := automation.ParseSnapshot(e.Payload); err == nil {
		ev.Event = string(ref.Type)
		ev.CardID = ref.CardID
	}
	h.result.AddRunTrace(ev)
}

func (h *Harness) seedBoard(ctx context.Context, b BoardFixture) error {
	name := b.Name
	if name == "" {
		name = b.ID
	}
	if _, err := h.store.CreateBoard(ctx, automation.Board{ID: b.ID, Name: name, CreatedAt: h.start}); err != nil {
		return err
	}
	for i, id := range b.Lists {
		if _, err := h.store.CreateList(ctx, automation.List{ID: id, BoardID: b.ID, Name: id, Position: float64(i+1) * 100}); err != nil {
			return err
		}
	}
	for _, id := range b.Labels {
		if _, err := h.store.CreateLabel(ctx, automation.Label{ID: id, BoardID: b.ID, Name: id}); err != nil {
			return err
		}
	}
	for _, id := range b.Members {
		if _, err := h.store.CreateMember(ctx, automation.Member{ID: id, Name: id}); err != nil {
			return err
		}
	}

	perList := make(map[string]int)
	for _, cf := range b.Cards {
		if err := h.seedCard(ctx, cf, &perList); err != nil {
			return fmt.Errorf("card %s: %w", cf.ID, err)
		}
	}
	return nil
}

func (h *Harness) seedCard(ctx context.Context, cf CardFixture, perList *map[string]int) error {
	(*perList)[cf.List]++
	card := automation.Card{
		ID:        cf.ID,
		BoardID:   h.boardID,
		ListID:    cf.List,
		Title:     cf.Title,
		Position:  float64((*perList)[cf.List]) * 100,
		CreatedAt: h.start,
	}
	if card.Title == "" {
		card.Title = "Card " + cf.ID
	}
	if cf.Position != nil {
		card.Position = *cf.Position
	}
	if cf.Due != "" {
		due, err := resolveTime(cf.Due, h.start)
		if err != nil {
			return err
		}
		card.DueDate = &due
	}
	if cf.Start != "" {
		st, err := resolveTime(cf.Start, h.start)
		if err != nil {
			return err
		}
		card.StartDate = &st
	}
	if cf.Archived {
		at := h.start
		card.ArchivedAt = &at
	}
	if _, err := h.store.CreateCard(ctx, card); err != nil {
		return err
	}

	for _, id := range cf.Labels {
		if err := h.store.AddCardLabel(ctx, cf.ID, id); err != nil {
			return err
		}
	}
	for _, id := range cf.Members {
		if err := h.store.AddCardMember(ctx, cf.ID, id); err != nil {
			return err
		}
	}
	for _, clf := range cf.Checklists {
		title := clf.Title
		if title == "" {
			title = "Checklist"
		}
		items := make([]automation.ChecklistItem, len(clf.Items))
		for i, it := range clf.Items {
			items[i] = automation.ChecklistItem{ID: it.ID, Text: it.Text, Done: it.Done, Position: float64(i+1) * 100}
		}
		if _, _, err := h.store.CreateChecklist(ctx, automation.Checklist{ID: clf.ID, CardID: cf.ID, Title: title}, items); err != nil {
			return err
		}
	}
	return nil
}

// installRules saves fixture rules as the store would hold them. A trigger
// that does not decode is stored empty so the matcher fails closed on it.
func (h *Harness) installRules(ctx context.Context, scenario *Scenario) error {
	for _, rf := range scenario.Rules {
		r := automation.Rule{
			ID:          rf.ID,
			BoardID:     h.boardID,
			Name:        rf.Name,
			Enabled:     rf.Enabled == nil || *rf.Enabled,
			TriggerType: automation.TriggerEvent,
			CreatedAt:   h.start,
		}
		if r.Name == "" {
			r.Name = rf.ID
		}
		if typ, ok := rf.Trigger["type"].(string); ok {
			r.TriggerType = automation.TriggerType(typ)
		}

		raw, err := json.Marshal(rf.Trigger)
		if err != nil {
			return fmt.Errorf("rule %s: trigger: %w", rf.ID, err)
		}
		if trig, err := automation.DecodeTrigger(raw); err == nil {
			r.Trigger = trig
		}

		if rf.Actions != nil {
			raw, err = json.Marshal(rf.Actions)
			if err != nil {
				return fmt.Errorf("rule %s: actions: %w", rf.ID, err)
			}
			if r.Actions, err = automation.DecodeActions(raw); err != nil {
				return fmt.Errorf("rule %s: %w", rf.ID, err)
			}
		}

		if _, err := h.store.SaveRule(ctx, r); err != nil {
			return err
		}
	}

	if scenario.Rulebook != "" {
		loaded, errs := rulebook.Load(scenario.Rulebook, rulebook.LoadModeFailFast)
		if len(errs) > 0 {
			return errs[0]
		}
		if _, err := rulebook.Import(ctx, h.store, loaded.Rules); err != nil {
			return err
		}
	}
	return nil
}

// executeFlow runs all flow steps. Each step is traced as an invoke event,
// the runs it caused, and a result event.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) {
	for i, step := range flow {
		var args map[string]any
		if len(step.Args) > 0 {
			args = step.Args
		}
		h.result.AddInvokeTrace(step.Invoke, args)

		before := h.runs
		err := h.invoke(ctx, step)
		runs := h.runs - before

		errText := ""
		if err != nil {
			errText = err.Error()
		}
		h.result.AddResultTrace(runs, errText)
		h.checkExpect(i, step, runs, err)
	}
}

func (h *Harness) checkExpect(i int, step FlowStep, runs int, err error) {
	prefix := fmt.Sprintf("flow[%d] %s", i, step.Invoke)
	exp := step.Expect
	if exp == nil || exp.Error == "" {
		if err != nil {
			h.result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, err))
		}
	} else {
		switch {
		case err == nil:
			h.result.AddError(fmt.Sprintf("%s: expected error containing %q, got none", prefix, exp.Error))
		case !strings.Contains(err.Error(), exp.Error):
			h.result.AddError(fmt.Sprintf("%s: expected error containing %q, got %q", prefix, exp.Error, err.Error()))
		}
	}
	if exp != nil && exp.Runs != nil && *exp.Runs != runs {
		h.result.AddError(fmt.Sprintf("%s: expected %d run(s), got %d", prefix, *exp.Runs, runs))
	}
}

func (h *Harness) invoke(ctx context.Context, step FlowStep) error {
	a := stepArgs(step.Args)
	actor := a.optional("actor")

	switch step.Invoke {
	case InvokeDispatch:
		ev, err := a.event(h.boardID)
		if err != nil {
			return err
		}
		_, err = h.engine.Dispatch(ctx, ev)
		return err

	case InvokePoll:
		_, err := h.engine.PollDue(ctx)
		return err

	case InvokeAdvance:
		by, err := a.required("by")
		if err != nil {
			return err
		}
		d, err := time.ParseDuration(by)
		if err != nil {
			return fmt.Errorf("by: %w", err)
		}
		h.clock.Advance(d)
		return nil

	case InvokeSetClock:
		to, err := a.required("to")
		if err != nil {
			return err
		}
		t, err := resolveTime(to, h.clock.Now())
		if err != nil {
			return err
		}
		h.clock.Set(t)
		return nil

	case InvokeRuleEnable, InvokeRuleDisable:
		id, err := a.required("rule")
		if err != nil {
			return err
		}
		return h.engine.SetRuleEnabled(ctx, id, step.Invoke == InvokeRuleEnable)

	case InvokeDue, InvokeStart:
		card, err := a.required("card")
		if err != nil {
			return err
		}
		var at *time.Time
		if s := a.optional("at"); s != "" {
			t, err := resolveTime(s, h.clock.Now())
			if err != nil {
				return err
			}
			at = &t
		}
		if step.Invoke == InvokeDue {
			return h.cards.SetDueDate(ctx, card, at, actor)
		}
		return h.cards.SetStartDate(ctx, card, at, actor)

	case InvokeComment:
		card, err := a.required("card")
		if err != nil {
			return err
		}
		author := a.optional("author")
		if author == "" {
			author = actor
		}
		_, err = h.cards.PostComment(ctx, card, author, a.optional("text"))
		return err

	case InvokeCheckItem:
		item, err := a.required("item")
		if err != nil {
			return err
		}
		done := true
		if v, ok := step.Args["done"].(bool); ok {
			done = v
		}
		return h.cards.SetChecklistItemDone(ctx, item, done, actor)
	}

	card, err := a.required("card")
	if err != nil {
		return err
	}
	switch step.Invoke {
	case InvokeMove:
		list, err := a.required("list")
		if err != nil {
			return err
		}
		return h.cards.MoveCard(ctx, card, list, actor)
	case InvokeArchive:
		return h.cards.ArchiveCard(ctx, card, actor)
	case InvokeRestore:
		return h.cards.RestoreCard(ctx, card, actor)
	case InvokeDelete:
		return h.cards.DeleteCard(ctx, card, actor)
	case InvokeLabel, InvokeUnlabel:
		label, err := a.required("label")
		if err != nil {
			return err
		}
		if step.Invoke == InvokeLabel {
			return h.cards.AddLabel(ctx, card, label, actor)
		}
		return h.cards.RemoveLabel(ctx, card, label, actor)
	case InvokeAssign, InvokeUnassign:
		member, err := a.required("member")
		if err != nil {
			return err
		}
		if step.Invoke == InvokeAssign {
			return h.cards.AddMember(ctx, card, member, actor)
		}
		return h.cards.RemoveMember(ctx, card, member, actor)
	default:
		return fmt.Errorf("unknown invoke %q", step.Invoke)
	}
}

// stepArgs reads YAML-decoded step arguments.
type stepArgs map[string]any

func (a stepArgs) optional(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (a stepArgs) required(key string) (string, error) {
	v := a.optional(key)
	if v == "" {
		return "", fmt.Errorf("missing arg %q", key)
	}
	return v, nil
}

// event builds a raw board event from type, card, list, from_list,
// to_list, actor and extra.
func (a stepArgs) event(boardID string) (automation.Event, error) {
	typ, err := a.required("type")
	if err != nil {
		return automation.Event{}, err
	}
	kind, err := automation.ParseEventKind(typ)
	if err != nil {
		return automation.Event{}, err
	}
	card, err := a.required("card")
	if err != nil {
		return automation.Event{}, err
	}

	var opts []automation.EventOption
	if list := a.optional("list"); list != "" {
		opts = append(opts, automation.WithList(list))
	}
	if from, to := a.optional("from_list"), a.optional("to_list"); from != "" || to != "" {
		opts = append(opts, automation.WithMove(from, to))
	}
	if actor := a.optional("actor"); actor != "" {
		opts = append(opts, automation.WithActor(actor))
	}
	if extra, ok := a["extra"].(map[string]any); ok {
		for k, v := range extra {
			opts = append(opts, automation.WithExtra(k, v))
		}
	}
	return automation.NewEvent(kind, boardID, card, opts...), nil
}
