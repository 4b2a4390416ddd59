package automation

import (
	"strings"

	"instaflow/internal/models"

	"github.com/rs/zerolog/log"
)

type Node struct {
	ID      string
	Type    string
	SubType string
	Label   string
	Config  NodeConfig
}

type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
}

// Graph is an automation's flow with decoded node configs and an adjacency
// list keyed by source node id.
type Graph struct {
	nodes     map[string]*Node
	order     []string
	adjacency map[string][]Edge
}

// NewGraph builds a graph from stored rows. Edges may reference node ids
// that do not exist; those are kept and ignored during traversal.
func NewGraph(nodes []models.FlowNode, edges []models.FlowEdge) *Graph {
	g := &Graph{
		nodes:     make(map[string]*Node, len(nodes)),
		adjacency: make(map[string][]Edge),
	}

	for _, n := range nodes {
		cfg, err := DecodeNodeConfig(n.SubType, n.Config)
		if err != nil {
			log.Warn().Err(err).
				Uint("automation_id", n.AutomationID).
				Str("node_id", n.NodeID).
				Str("sub_type", n.SubType).
				Msg("Invalid node config, using defaults")
		}
		if _, dup := g.nodes[n.NodeID]; !dup {
			g.order = append(g.order, n.NodeID)
		}
		g.nodes[n.NodeID] = &Node{
			ID:      n.NodeID,
			Type:    strings.ToLower(n.Type),
			SubType: strings.ToUpper(n.SubType),
			Label:   n.Label,
			Config:  cfg,
		}
	}

	for _, e := range edges {
		g.adjacency[e.SourceNodeID] = append(g.adjacency[e.SourceNodeID], Edge{
			ID:           e.EdgeID,
			Source:       e.SourceNodeID,
			Target:       e.TargetNodeID,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		})
	}
	return g
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) Len() int {
	return len(g.order)
}

func (g *Graph) Outgoing(id string) []Edge {
	return g.adjacency[id]
}

// Nodes returns every node in stored order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// TriggerFor returns the first trigger node for the event kind, or nil.
func (g *Graph) TriggerFor(kind TriggerKind) *Node {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Type == NodeTrigger && n.SubType == string(kind) {
			return n
		}
	}
	return nil
}

func (g *Graph) NodesOfSubType(subType string) []*Node {
	var out []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.SubType == subType {
			out = append(out, n)
		}
	}
	return out
}

// ExecutionPath flattens the nodes reachable from start in breadth-first
// order. Each node appears at most once, so cycles terminate.
func (g *Graph) ExecutionPath(start string) []*Node {
	if _, ok := g.nodes[start]; !ok {
		return nil
	}

	visited := map[string]bool{start: true}
	queue := []string{start}
	var path []*Node

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		path = append(path, n)

		for _, e := range g.adjacency[id] {
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	return path
}

// KeywordGate reports whether text passes the flow's KEYWORDS nodes. Flows
// without KEYWORDS nodes, or events without text, always pass.
func (g *Graph) KeywordGate(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	gates := g.NodesOfSubType(SubKeywords)
	if len(gates) == 0 {
		return true
	}
	for _, n := range gates {
		cfg, _ := n.Config.(KeywordsConfig)
		if matched, _ := matchKeywords(text, cfg.Keywords); matched {
			return true
		}
	}
	return false
}
