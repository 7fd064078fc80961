package graph

import (
	"context"
	"fmt"
)

// NodeID identifies a node. Callers declare their node set as typed constants
// instead of passing free-form strings around.
type NodeID string

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeLLM       NodeType = "llm"
	NodeTypeTool      NodeType = "tool"
	NodeTypeCondition NodeType = "condition"
	NodeTypeCustom    NodeType = "custom"
)

// NodeFunc is the function executed by a node. It mutates state in place.
type NodeFunc[S any] func(context.Context, S) error

// TransitionFunc picks the next node after a conditional node has executed.
type TransitionFunc[S any] func(context.Context, S) (NodeID, error)

// Node represents a node in the execution graph
type Node[S any] struct {
	ID       NodeID
	Type     NodeType
	Execute  NodeFunc[S]
	Next     NodeID            // Static outgoing edge
	Route    TransitionFunc[S] // Conditional outgoing edge; wins over Next
	Targets  []NodeID          // Nodes Route may return, validated on Build
	Terminal bool              // Execution stops after a terminal node
}

// Observer is notified at node boundaries. Observers are a side channel: they
// cannot alter control flow and a panicking observer does not abort the run.
type Observer[S any] interface {
	NodeEntered(ctx context.Context, id NodeID)
	NodeExited(ctx context.Context, id NodeID, state S, err error)
}

// Graph represents an execution flow graph
type Graph[S any] struct {
	nodes     map[NodeID]*Node[S]
	startNode NodeID
	maxVisits int
	onPanic   func(id NodeID, recovered any)
}

// NewGraph creates a new graph
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:     make(map[NodeID]*Node[S]),
		maxVisits: 10,
	}
}

func (g *Graph[S]) validateNode(node *Node[S]) {
	if node.ID == "" {
		panic("node name cannot be empty")
	}
	if node.Execute == nil {
		panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.ID, node.Type))
	}
}

// AddNode adds a node to the graph
func (g *Graph[S]) AddNode(node *Node[S]) {
	if _, exists := g.nodes[node.ID]; exists {
		panic(fmt.Sprintf("node %s already exists", node.ID))
	}
	g.validateNode(node)
	g.nodes[node.ID] = node
}

// SetStartNode sets the start node
func (g *Graph[S]) SetStartNode(id NodeID) {
	if _, exists := g.nodes[id]; !exists {
		panic(fmt.Sprintf("node %s not found", id))
	}
	g.startNode = id
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph[S]) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

// OnObserverPanic registers a hook invoked when an observer panics.
func (g *Graph[S]) OnObserverPanic(fn func(id NodeID, recovered any)) {
	g.onPanic = fn
}

// GetNode returns a node by id
func (g *Graph[S]) GetNode(id NodeID) (*Node[S], error) {
	node, exists := g.nodes[id]
	if !exists {
		return nil, fmt.Errorf("node %s not found", id)
	}
	return node, nil
}

// Transition returns the node that follows current for the given state. The
// boolean is false when current is terminal.
func (g *Graph[S]) Transition(ctx context.Context, current NodeID, state S) (NodeID, bool, error) {
	node, exists := g.nodes[current]
	if !exists {
		return "", false, fmt.Errorf("node %s not found", current)
	}
	if node.Terminal {
		return "", false, nil
	}
	if node.Route != nil {
		next, err := node.Route(ctx, state)
		if err != nil {
			return "", false, fmt.Errorf("error evaluating condition at node %s: %w", current, err)
		}
		if next == "" {
			return "", false, fmt.Errorf("no next node specified for node %s", current)
		}
		return next, true, nil
	}
	if node.Next == "" {
		return "", false, fmt.Errorf("no next node specified for node %s", current)
	}
	return node.Next, true, nil
}

// Execute runs the graph from the start node until a terminal node completes.
// Nodes run strictly one after another on the caller's goroutine; a node that
// needs concurrency fans out and joins internally. A panicking node is
// converted to an error.
func (g *Graph[S]) Execute(ctx context.Context, state S, observers ...Observer[S]) error {
	if g.startNode == "" {
		return fmt.Errorf("start node not set")
	}

	visited := make(map[NodeID]int)
	current := g.startNode
	for {
		node, exists := g.nodes[current]
		if !exists {
			return fmt.Errorf("node %s not found", current)
		}

		// Detect runaway loops by counting how many times we revisit a node.
		visited[current]++
		if visited[current] > g.maxVisits {
			return fmt.Errorf("infinite loop detected at node %s", current)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("graph cancelled before node %s: %w", current, err)
		}

		g.notifyEnter(ctx, observers, current)
		err := g.run(ctx, node, state)
		g.notifyExit(ctx, observers, current, state, err)
		if err != nil {
			return fmt.Errorf("error executing node %s: %w", current, err)
		}

		next, ok, err := g.Transition(ctx, current, state)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		current = next
	}
}

func (g *Graph[S]) run(ctx context.Context, node *Node[S], state S) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node %s panicked: %v", node.ID, r)
		}
	}()
	return node.Execute(ctx, state)
}

func (g *Graph[S]) notifyEnter(ctx context.Context, observers []Observer[S], id NodeID) {
	for _, obs := range observers {
		g.safely(id, func() { obs.NodeEntered(ctx, id) })
	}
}

func (g *Graph[S]) notifyExit(ctx context.Context, observers []Observer[S], id NodeID, state S, err error) {
	for _, obs := range observers {
		g.safely(id, func() { obs.NodeExited(ctx, id, state, err) })
	}
}

func (g *Graph[S]) safely(id NodeID, fn func()) {
	defer func() {
		if r := recover(); r != nil && g.onPanic != nil {
			g.onPanic(id, r)
		}
	}()
	fn()
}

// Builder helps build graphs fluently
type Builder[S any] struct {
	graph *Graph[S]
}

// NewBuilder creates a new graph builder
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		graph: NewGraph[S](),
	}
}

// AddNode adds a node to the graph
func (b *Builder[S]) AddNode(id NodeID, nodeType NodeType, execute NodeFunc[S]) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		ID:      id,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddEdge connects two nodes
func (b *Builder[S]) AddEdge(from, to NodeID) *Builder[S] {
	b.mustNode(from).Next = to
	return b
}

// AddConditionalEdges routes from a node through route; targets lists every
// node route may return.
func (b *Builder[S]) AddConditionalEdges(from NodeID, route TransitionFunc[S], targets ...NodeID) *Builder[S] {
	node := b.mustNode(from)
	node.Type = NodeTypeCondition
	node.Route = route
	node.Targets = append(node.Targets, targets...)
	return b
}

// SetStart sets the start node
func (b *Builder[S]) SetStart(id NodeID) *Builder[S] {
	b.graph.SetStartNode(id)
	return b
}

// SetTerminal marks nodes after which execution stops.
func (b *Builder[S]) SetTerminal(ids ...NodeID) *Builder[S] {
	for _, id := range ids {
		b.mustNode(id).Terminal = true
	}
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder[S]) SetMaxVisits(maxVisits int) *Builder[S] {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// Build validates edges and returns the constructed graph.
func (b *Builder[S]) Build() (*Graph[S], error) {
	g := b.graph
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}
	for id, node := range g.nodes {
		if node.Terminal {
			continue
		}
		edges := node.Targets
		if node.Route == nil {
			if node.Next == "" {
				return nil, fmt.Errorf("node %s has no outgoing edge and is not terminal", id)
			}
			edges = []NodeID{node.Next}
		}
		for _, target := range edges {
			if _, ok := g.nodes[target]; !ok {
				return nil, fmt.Errorf("node %s points to unknown node %s", id, target)
			}
		}
	}
	return g, nil
}

func (b *Builder[S]) mustNode(id NodeID) *Node[S] {
	node, exists := b.graph.nodes[id]
	if !exists {
		panic(fmt.Sprintf("node %s not found", id))
	}
	return node
}
