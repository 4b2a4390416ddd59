package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"instaflow/internal/ai"
	"instaflow/internal/logger"
	"instaflow/internal/metrics"
	"instaflow/internal/models"
	"instaflow/internal/ratelimit"
	"instaflow/internal/store"
	"instaflow/internal/tracking"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

var (
	errNoSmartAI = errors.New("SmartAI is not configured")
	errNoAccount = errors.New("no connected Instagram account")
)

// Deps wires the engine to its collaborators. Optional fields may be nil.
type Deps struct {
	Store     Store
	Messenger Messenger
	Primary   ai.Provider
	Fallback  ai.Provider
	Limiter   ratelimit.Limiter
	Tracker   Recorder
	Notifier  Notifier
	// Cache holds follower and hashtag lookups.
	Cache         *cache.Cache
	BranchMode    string
	HistoryWindow int
}

// Engine is the entry point for inbound events: it matches an automation,
// picks the graph or legacy executor and never fails the caller.
type Engine struct {
	store    Store
	matcher  *Matcher
	smartAI  *SmartAIReplier
	graph    Executor
	legacy   Executor
	tracker  Recorder
	notifier Notifier
}

func NewEngine(deps Deps) *Engine {
	tracker := deps.Tracker
	if tracker == nil {
		tracker = nopRecorder{}
	}
	smartAI := NewSmartAIReplier(deps.Store, deps.Messenger, deps.Primary, deps.Fallback, deps.Limiter, deps.HistoryWindow)
	conditions := NewConditionEvaluator(deps.Messenger, deps.Cache)
	actions := NewActionExecutor(deps.Store, deps.Messenger, smartAI, tracker)

	return &Engine{
		store:    deps.Store,
		matcher:  NewMatcher(deps.Store),
		smartAI:  smartAI,
		graph:    NewGraphExecutor(deps.Store, conditions, actions, deps.BranchMode),
		legacy:   NewLegacyExecutor(deps.Store, deps.Messenger, smartAI, tracker),
		tracker:  tracker,
		notifier: deps.Notifier,
	}
}

// HandleEvent runs the whole pipeline for one inbound event. Failures and
// panics are logged and reported as a no-op result.
func (e *Engine) HandleEvent(ctx context.Context, ev InboundEvent) (res RunResult) {
	runID := uuid.NewString()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("run_id", runID).
				Str("sender_id", ev.SenderID).
				Interface("panic", r).
				Msg("Event processing panicked")
			res = noop(ModeNone, "processed, no action taken")
		}
		res.RunID = runID
		res.SenderID = ev.SenderID
		e.finish(res, start)
	}()

	matched, err := e.matcher.Match(ctx, ev.Kind, ev.Text, ev.PageID)
	if err != nil {
		log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("Error matching automation")
		return noop(ModeNone, "processed, no action taken")
	}
	if matched == nil {
		if ev.Kind == TriggerDM {
			return e.continueConversation(ctx, ev)
		}
		return noop(ModeNone, "no matching automation")
	}

	ec, err := e.eventContext(ctx, matched, ev)
	if err != nil {
		log.Warn().Err(err).Uint("automation_id", matched.ID).Msg("Cannot build event context")
		return noop(ModeNone, "processed, no action taken")
	}
	return e.ExecuteFlow(ctx, matched.ID, ec)
}

// ExecuteFlow runs one automation by id. Missing or inactive automations are
// a no-op.
func (e *Engine) ExecuteFlow(ctx context.Context, automationID uint, ec *EventContext) RunResult {
	a, err := e.store.GetAutomation(ctx, automationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Uint("automation_id", automationID).Msg("Error loading automation")
		}
		return noop(ModeNone, "automation not found")
	}
	if !a.Active {
		return RunResult{AutomationID: a.ID, Mode: ModeNone, Message: "automation inactive"}
	}

	ec.AutomationID = a.ID
	ec.UserID = a.UserID

	executor, mode, err := e.executorFor(ctx, a.ID)
	if err != nil {
		log.Error().Err(err).Uint("automation_id", a.ID).Msg("Error checking flow nodes")
		return RunResult{AutomationID: a.ID, Mode: ModeNone, Message: "processed, no action taken"}
	}

	res := executor.Execute(ctx, a, ec)
	res.AutomationID = a.ID
	res.Mode = mode
	return res
}

func (e *Engine) executorFor(ctx context.Context, automationID uint) (Executor, Mode, error) {
	hasNodes, err := e.store.HasFlowNodes(ctx, automationID)
	if err != nil {
		return nil, ModeNone, err
	}
	if hasNodes {
		return e.graph, ModeGraph, nil
	}
	return e.legacy, ModeLegacy, nil
}

// continueConversation treats an unmatched DM as the next turn of the
// sender's latest SmartAI conversation, if one exists.
func (e *Engine) continueConversation(ctx context.Context, ev InboundEvent) RunResult {
	if strings.TrimSpace(ev.Text) == "" {
		return noop(ModeNone, "no matching automation")
	}

	latest, err := e.store.LatestChatHistory(ctx, ev.PageID, ev.SenderID)
	if err != nil {
		log.Warn().Err(err).Str("sender_id", ev.SenderID).Msg("Error loading chat history")
		return noop(ModeNone, "no matching automation")
	}
	if latest == nil {
		return noop(ModeNone, "no matching automation")
	}

	a, err := e.store.GetAutomation(ctx, latest.AutomationID)
	if err != nil || !a.Active {
		return noop(ModeNone, "no matching automation")
	}

	prompt, found := e.smartAIPrompt(ctx, a)
	if !found {
		return noop(ModeNone, "no matching automation")
	}

	ec, err := e.eventContext(ctx, a, ev)
	if err != nil {
		log.Warn().Err(err).Uint("automation_id", a.ID).Msg("Cannot build event context")
		return noop(ModeNone, "processed, no action taken")
	}
	if !ec.IsPro() {
		return RunResult{AutomationID: a.ID, Mode: ModeNone, Message: "no matching automation"}
	}

	l := logger.ForEvent(a.ID, ev.PageID, ev.SenderID)
	l.Info().Msg("Continuing SmartAI conversation")

	res := e.smartAI.Reply(ctx, ec, prompt)
	if res.Success {
		track(e.tracker, ec, tracking.ChannelDM, SubSmartAI, ModeContinuation, nil)
	}

	out := RunResult{
		AutomationID: a.ID,
		Mode:         ModeContinuation,
		Success:      res.Success,
		Message:      res.Message,
		Attempted:    1,
		Nodes:        []NodeResult{{NodeID: "continuation", Type: NodeAction, SubType: SubSmartAI, ActionResult: res}},
	}
	if res.Success {
		out.Succeeded = 1
	}
	return out
}

// smartAIPrompt finds the prompt of a SMARTAI listener, or of the first
// SMARTAI action in the automation's flow.
func (e *Engine) smartAIPrompt(ctx context.Context, a *models.Automation) (string, bool) {
	if a.Listener != nil && a.Listener.Listener == models.ListenerSmartAI {
		return a.Listener.Prompt, true
	}

	nodes, edges, err := e.store.LoadFlow(ctx, a.ID)
	if err != nil || len(nodes) == 0 {
		return "", false
	}
	for _, n := range NewGraph(nodes, edges).NodesOfSubType(SubSmartAI) {
		if n.Type != NodeAction {
			continue
		}
		cfg, _ := n.Config.(SmartAIConfig)
		return cfg.SystemPrompt(), true
	}
	return "", false
}

// eventContext resolves the automation owner's plan, AI key and the access
// token of the page the event arrived on.
func (e *Engine) eventContext(ctx context.Context, a *models.Automation, ev InboundEvent) (*EventContext, error) {
	owner, err := e.store.GetOwner(ctx, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("load owner %d: %w", a.UserID, err)
	}

	var integration *models.Integration
	for i := range owner.Integrations {
		in := &owner.Integrations[i]
		if ev.PageID != "" && in.InstagramID == ev.PageID {
			integration = in
			break
		}
		if integration == nil {
			integration = in
		}
	}
	if integration == nil {
		return nil, errNoAccount
	}

	pageID := ev.PageID
	if pageID == "" {
		pageID = integration.InstagramID
	}

	return &EventContext{
		AutomationID: a.ID,
		UserID:       a.UserID,
		Token:        integration.Token,
		PageID:       pageID,
		SenderID:     ev.SenderID,
		Text:         ev.Text,
		CommentID:    ev.CommentID,
		MediaID:      ev.MediaID,
		Kind:         ev.Kind,
		Plan:         owner.Plan,
		AIKey:        owner.OpenAIKey,
	}, nil
}

func (e *Engine) finish(res RunResult, start time.Time) {
	metrics.FlowRunsTotal.WithLabelValues(string(res.Mode), metrics.StatusLabel(res.Success)).Inc()
	metrics.FlowRunDuration.WithLabelValues(string(res.Mode)).Observe(time.Since(start).Seconds())
	if e.notifier != nil && res.AutomationID != 0 {
		e.notifier.BroadcastEvent("flow_run", res)
	}
}
