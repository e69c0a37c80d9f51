package runner

import (
	"slices"
	"sort"
	"strings"

	"github.com/spachava753/sitebuild/internal/models"
)

// Node is one task in the graph together with its prerequisites.
type Node struct {
	ID        string
	Task      Task
	DependsOn []string
	// Also lists tasks re-run after this one when it is triggered on its own.
	Also []string
}

// Graph is a validated, acyclic set of nodes.
type Graph struct {
	nodes      map[string]*Node
	dependents map[string][]string
	order      []string
}

// NewGraph validates nodes and builds the graph. It rejects empty or
// duplicate ids and unknown prerequisites with a config_error, and
// self-loops or cycles with a cycle_error.
func NewGraph(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]*Node, len(nodes)),
		dependents: make(map[string][]string),
	}

	for i := range nodes {
		n := nodes[i]
		n.DependsOn = unique(n.DependsOn)
		if n.ID == "" {
			return nil, models.ConfigError("task id is required")
		}
		if _, ok := g.nodes[n.ID]; ok {
			return nil, models.ConfigError("duplicate task %q", n.ID)
		}
		g.nodes[n.ID] = &n
	}

	for _, n := range g.nodes {
		for _, dep := range n.DependsOn {
			if dep == n.ID {
				return nil, &models.BuildError{Type: models.ErrCycle, Task: n.ID, Message: "task depends on itself"}
			}
			if _, ok := g.nodes[dep]; !ok {
				return nil, models.ConfigError("task %q depends on unknown task %q", n.ID, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], n.ID)
		}
		for _, also := range n.Also {
			if _, ok := g.nodes[also]; !ok {
				return nil, models.ConfigError("task %q re-runs unknown task %q", n.ID, also)
			}
		}
	}
	for id := range g.dependents {
		sort.Strings(g.dependents[id])
	}

	order, err := g.topoOrder()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topoOrder is Kahn's algorithm with lexical tie-breaking, so the order is
// deterministic.
func (g *Graph) topoOrder() ([]string, error) {
	indeg := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indeg[id] = len(n.DependsOn)
	}

	var queue []string
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dep := range g.dependents[id] {
			indeg[dep]--
			if indeg[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}

	if len(order) != len(g.nodes) {
		cycle := g.findCycle()
		return nil, &models.BuildError{
			Type:    models.ErrCycle,
			Task:    cycle[0],
			Message: "dependency cycle: " + strings.Join(cycle, " -> "),
		}
	}
	return order, nil
}

// findCycle returns one cycle as a path whose first and last entries are
// the same task.
func (g *Graph) findCycle() []string {
	ids := g.IDs()
	state := make(map[string]int)
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = 1
		stack = append(stack, id)
		deps := append([]string(nil), g.nodes[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch state[dep] {
			case 1:
				i := slices.Index(stack, dep)
				return append(append([]string(nil), stack[i:]...), dep)
			case 0:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = 2
		return nil
	}

	for _, id := range ids {
		if state[id] == 0 {
			if c := visit(id); c != nil {
				return c
			}
		}
	}
	return []string{"?"}
}

// IDs returns every task id in lexical order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Order returns a deterministic topological order of the task ids.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Dependents returns the ids of the tasks that list id as a prerequisite.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
