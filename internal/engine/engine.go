package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/automation"
	"github.com/roach88/autoboard/internal/store"
)

// DispatchResult summarises one Dispatch call.
type DispatchResult struct {
	// Triggered is the number of matched rules that were executed,
	// whatever their outcome.
	Triggered int `json:"triggered"`
}

// Engine ties the matcher, executor, ledger and poller to one store.
//
// Thread-safety: Dispatch, ExecuteRule and PollDue are safe to call from
// any goroutine. Dispatches are independent; two dispatches touching the
// same card race at the store and the last write wins.
type Engine struct {
	store    Store
	clock    Clock
	logger   *zap.Logger
	executor *Executor
	poller   *Poller

	actionTimeout time.Duration
	dedupWindow   time.Duration
	pollLock      PollLock

	// rules caches board rule snapshots when ruleCacheTTL > 0.
	rules        *cache.Cache
	ruleCacheTTL time.Duration
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the time source used by the executor and the poller.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the engine's logger. Default: zap.L().
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithActionTimeout bounds each action. Default: DefaultActionTimeout.
func WithActionTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.actionTimeout = d
	}
}

// WithDedupWindow sets how far back the poller looks for prior fires.
// Default: DefaultDedupWindow.
func WithDedupWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.dedupWindow = d
	}
}

// WithPollLock replaces the in-process poll lock, e.g. with a RedisPollLock
// when several processes poll the same database.
func WithPollLock(l PollLock) EngineOption {
	return func(e *Engine) {
		e.pollLock = l
	}
}

// WithRuleCacheTTL caches each board's rule list for d.
// Rule edits become visible to dispatch after at most d. Zero disables.
func WithRuleCacheTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.ruleCacheTTL = d
	}
}

// New creates an Engine over s.
func New(s Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  s,
		clock:  SystemClock{},
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.pollLock == nil {
		e.pollLock = NewLocalPollLock()
	}
	if e.ruleCacheTTL > 0 {
		e.rules = cache.New(e.ruleCacheTTL, 2*e.ruleCacheTTL)
	}
	e.executor = NewExecutor(s, e.clock, e.logger, e.actionTimeout)
	e.poller = NewPoller(s, e.clock, e.ExecuteRule, e.pollLock, e.dedupWindow, e.logger)
	return e
}

// Dispatch runs every enabled event rule of ev's board that matches ev.
//
// Rules run sequentially in rule order and each produces one ledger entry.
// Only a failure to list the board's rules is returned; individual rule
// failures are recorded in the ledger and logged.
func (e *Engine) Dispatch(ctx context.Context, ev automation.Event) (DispatchResult, error) {
	rules, err := e.boardRules(ctx, ev.BoardID())
	if err != nil {
		return DispatchResult{}, fmt.Errorf("dispatch %s: %w", ev.Kind(), err)
	}

	matched := Match(rules, ev, e.logger)
	var result DispatchResult
	for _, rule := range matched {
		e.ExecuteRule(ctx, rule, ev)
		result.Triggered++
	}
	return result, nil
}

// ExecuteRule runs one rule against ev and appends the outcome to the run
// ledger. Used by Dispatch after matching and by the poller directly.
func (e *Engine) ExecuteRule(ctx context.Context, rule automation.Rule, ev automation.Event) automation.RunLogEntry {
	entry := e.executor.Execute(ctx, rule, ev)
	if entry.Status == automation.RunOK {
		e.logger.Info("rule fired",
			zap.String("rule_id", rule.ID),
			zap.String("board_id", rule.BoardID),
			zap.String("event", string(ev.Kind())),
			zap.String("card_id", ev.CardID()),
		)
	} else {
		e.logger.Error("rule failed",
			zap.String("rule_id", rule.ID),
			zap.String("board_id", rule.BoardID),
			zap.String("event", string(ev.Kind())),
			zap.String("card_id", ev.CardID()),
			zap.String("error", entry.ErrorText),
		)
	}
	return e.appendRun(ctx, entry)
}

// PollDue runs one schedule poller tick.
func (e *Engine) PollDue(ctx context.Context) (PollResult, error) {
	return e.poller.PollDue(ctx)
}

// SetRuleEnabled flips a rule on or off and drops its board's cached rules.
func (e *Engine) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	rule, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if err := e.store.SetRuleEnabled(ctx, ruleID, enabled); err != nil {
		return err
	}
	e.InvalidateRules(rule.BoardID)
	return nil
}

// InvalidateRules drops the cached rule snapshot of a board.
func (e *Engine) InvalidateRules(boardID string) {
	if e.rules != nil {
		e.rules.Delete(boardID)
	}
}

// boardRules returns the enabled event rules of a board, from the cache
// when one is configured.
func (e *Engine) boardRules(ctx context.Context, boardID string) ([]automation.Rule, error) {
	if e.rules != nil {
		if cached, found := e.rules.Get(boardID); found {
			return cached.([]automation.Rule), nil
		}
	}

	rules, err := e.store.ListRules(ctx, store.RuleFilter{
		BoardID:     boardID,
		TriggerType: automation.TriggerEvent,
		EnabledOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list rules for board %s: %w", boardID, err)
	}

	if e.rules != nil {
		e.rules.Set(boardID, rules, cache.DefaultExpiration)
	}
	return rules, nil
}
