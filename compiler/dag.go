package compiler

import "fmt"

// Node kinds in the dependency graph.
const (
	kindSignal = "signal"
	kindTrend  = "trend"
	kindLogic  = "logic"
)

type nodeKey struct {
	kind string
	name string
}

// depGraph is an arena of nodes addressed by integer index. It is built
// once per compilation and never mutated afterwards, which keeps the
// evaluation order trivially serializable.
type depGraph struct {
	nodes []graphNode
	index map[nodeKey]int
}

type graphNode struct {
	kind string
	name string
	deps []int
}

func newDepGraph() *depGraph {
	return &depGraph{index: make(map[nodeKey]int)}
}

func (g *depGraph) add(kind, name string) int {
	key := nodeKey{kind, name}
	if i, ok := g.index[key]; ok {
		return i
	}
	g.nodes = append(g.nodes, graphNode{kind: kind, name: name})
	i := len(g.nodes) - 1
	g.index[key] = i
	return i
}

func (g *depGraph) lookup(kind, name string) (int, bool) {
	i, ok := g.index[nodeKey{kind, name}]
	return i, ok
}

func (g *depGraph) addEdge(from, to int) {
	g.nodes[from].deps = append(g.nodes[from].deps, to)
}

// DAGOrder is the dependency-ordered evaluation plan: every name appears
// after everything it depends on.
type DAGOrder struct {
	Signals []string `json:"signals"`
	Trends  []string `json:"trends"`
	Logic   []string `json:"logic"`
}

// cycleError reports the names participating in a dependency cycle.
type cycleError struct {
	path []string
}

func (e *cycleError) Error() string {
	return fmt.Sprintf("circular reference: %v", e.path)
}

// DFS colors for topological sorting.
const (
	colorWhite = iota // unvisited
	colorGray         // in progress
	colorBlack        // done
)

// topoSort orders the graph depth-first. Re-entering a gray node means a
// cycle, which makes any evaluation order impossible; the walk stops
// there and reports the cycle members.
func (g *depGraph) topoSort() (DAGOrder, error) {
	colors := make([]int, len(g.nodes))
	var order DAGOrder
	var stack []string

	var visit func(i int) error
	visit = func(i int) error {
		switch colors[i] {
		case colorBlack:
			return nil
		case colorGray:
			// Trim the stack to the cycle entry point.
			name := g.nodes[i].name
			for j, n := range stack {
				if n == name {
					return &cycleError{path: append(append([]string{}, stack[j:]...), name)}
				}
			}
			return &cycleError{path: []string{name}}
		}
		colors[i] = colorGray
		stack = append(stack, g.nodes[i].name)
		for _, dep := range g.nodes[i].deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		colors[i] = colorBlack

		n := g.nodes[i]
		switch n.kind {
		case kindSignal:
			order.Signals = append(order.Signals, n.name)
		case kindTrend:
			order.Trends = append(order.Trends, n.name)
		case kindLogic:
			order.Logic = append(order.Logic, n.name)
		}
		return nil
	}

	for i := range g.nodes {
		if err := visit(i); err != nil {
			return DAGOrder{}, err
		}
	}
	return order, nil
}
