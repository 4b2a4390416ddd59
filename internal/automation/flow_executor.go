package automation

import (
	"context"
	"fmt"
	"strings"

	"instaflow/internal/logger"
	"instaflow/internal/models"
)

// GraphExecutor runs automations that have flow nodes.
type GraphExecutor struct {
	store      Store
	conditions *ConditionEvaluator
	actions    *ActionExecutor
	branchMode string
}

func NewGraphExecutor(store Store, conditions *ConditionEvaluator, actions *ActionExecutor, branchMode string) *GraphExecutor {
	if branchMode != BranchPrune {
		branchMode = BranchNext
	}
	return &GraphExecutor{store: store, conditions: conditions, actions: actions, branchMode: branchMode}
}

func (g *GraphExecutor) Execute(ctx context.Context, a *models.Automation, ec *EventContext) RunResult {
	l := logger.ForEvent(a.ID, ec.PageID, ec.SenderID)

	nodes, edges, err := g.store.LoadFlow(ctx, a.ID)
	if err != nil {
		l.Error().Err(err).Msg("Error loading flow")
		return noop(ModeGraph, "failed to load flow")
	}
	graph := NewGraph(nodes, edges)

	if !graph.KeywordGate(ec.Text) {
		l.Debug().Msg("Flow keyword gate rejected text")
		return noop(ModeGraph, "no keyword match")
	}

	trigger := graph.TriggerFor(ec.Kind)
	if trigger == nil {
		l.Debug().Str("kind", string(ec.Kind)).Msg("No trigger node for event kind")
		return noop(ModeGraph, "no matching trigger in flow")
	}

	path := graph.ExecutionPath(trigger.ID)
	ids := make([]string, 0, len(path))
	for _, n := range path {
		ids = append(ids, n.ID)
	}
	l.Debug().Strs("path", ids).Str("branch_mode", g.branchMode).Msg("Executing flow")

	var results []NodeResult
	if g.branchMode == BranchPrune {
		results = g.walkPruned(ctx, graph, path, ec)
	} else {
		results = g.walkNext(ctx, path, ec)
	}

	res := RunResult{Mode: ModeGraph, Nodes: results}
	for _, r := range results {
		if r.Type != NodeAction || r.Skipped {
			continue
		}
		res.Attempted++
		if r.Success {
			res.Succeeded++
		}
	}
	res.Success = res.Succeeded > 0 || res.Attempted == 0
	res.Message = fmt.Sprintf("Executed %d/%d actions", res.Succeeded, res.Attempted)
	l.Info().Int("succeeded", res.Succeeded).Int("attempted", res.Attempted).Msg("Flow executed")
	return res
}

// walkNext applies the one-hop rule: a false condition skips the next node
// in path order unless that node is a NO placeholder.
func (g *GraphExecutor) walkNext(ctx context.Context, path []*Node, ec *EventContext) []NodeResult {
	var results []NodeResult
	skipNext := false

	for _, node := range path {
		if node.Type == NodeTrigger {
			continue
		}
		if skipNext {
			skipNext = false
			if node.SubType != SubNo {
				results = append(results, skipped(node))
				continue
			}
		}

		switch node.Type {
		case NodeCondition:
			passed := g.conditions.Evaluate(ctx, node, ec)
			if !passed {
				skipNext = true
			}
			results = append(results, conditionResult(node, passed))
		case NodeAction:
			results = append(results, NodeResult{NodeID: node.ID, Type: node.Type, SubType: node.SubType, ActionResult: g.actions.Execute(ctx, node, ec)})
		}
	}
	return results
}

// walkPruned only runs nodes reached through a taken edge from a node that
// itself ran. Conditions take the edges matching their outcome; YES and NO
// placeholders pass through.
func (g *GraphExecutor) walkPruned(ctx context.Context, graph *Graph, path []*Node, ec *EventContext) []NodeResult {
	var results []NodeResult
	if len(path) == 0 {
		return nil
	}
	live := map[string]bool{path[0].ID: true}

	for _, node := range path {
		if !live[node.ID] {
			if node.Type != NodeTrigger {
				results = append(results, skipped(node))
			}
			continue
		}

		outcome := true
		switch node.Type {
		case NodeCondition:
			if node.SubType == SubYes || node.SubType == SubNo {
				break
			}
			outcome = g.conditions.Evaluate(ctx, node, ec)
			results = append(results, conditionResult(node, outcome))
		case NodeAction:
			results = append(results, NodeResult{NodeID: node.ID, Type: node.Type, SubType: node.SubType, ActionResult: g.actions.Execute(ctx, node, ec)})
		}

		isBranch := node.Type == NodeCondition && node.SubType != SubYes && node.SubType != SubNo
		for _, e := range graph.Outgoing(node.ID) {
			if !isBranch || edgeTaken(graph, e, outcome) {
				live[e.Target] = true
			}
		}
	}
	return results
}

// edgeTaken decides whether a condition's outgoing edge follows its outcome.
// The source handle decides when it names a branch; otherwise a YES or NO
// target does; any other edge is the true branch.
func edgeTaken(graph *Graph, e Edge, outcome bool) bool {
	switch handleBranch(e.SourceHandle) {
	case SubYes:
		return outcome
	case SubNo:
		return !outcome
	}
	if target, ok := graph.Node(e.Target); ok {
		switch target.SubType {
		case SubYes:
			return outcome
		case SubNo:
			return !outcome
		}
	}
	return outcome
}

func handleBranch(handle string) string {
	h := strings.ToLower(strings.TrimSpace(handle))
	for _, suffix := range []string{"yes", "true"} {
		if h == suffix || strings.HasSuffix(h, "-"+suffix) || strings.HasSuffix(h, "_"+suffix) {
			return SubYes
		}
	}
	for _, suffix := range []string{"no", "false"} {
		if h == suffix || strings.HasSuffix(h, "-"+suffix) || strings.HasSuffix(h, "_"+suffix) {
			return SubNo
		}
	}
	return ""
}

func skipped(node *Node) NodeResult {
	return NodeResult{
		NodeID:       node.ID,
		Type:         node.Type,
		SubType:      node.SubType,
		Skipped:      true,
		ActionResult: fail("Skipped by condition"),
	}
}

func conditionResult(node *Node, passed bool) NodeResult {
	msg := "Condition false"
	if passed {
		msg = "Condition true"
	}
	return NodeResult{NodeID: node.ID, Type: node.Type, SubType: node.SubType, ActionResult: ActionResult{Success: passed, Message: msg}}
}
