package template

// Graph is a loaded template. It is read-only after Load and safe to share
// between sessions.
type Graph struct {
	name  string
	nodes []Node
	index map[string]int
}

// Name is the template's name, usually the bot it belongs to.
func (g *Graph) Name() string { return g.name }

// Len is the number of nodes; valid states are 1..Len().
func (g *Graph) Len() int { return len(g.nodes) }

// Node resolves a StateIndex.
func (g *Graph) Node(state int) (*Node, bool) {
	if state < 1 || state > len(g.nodes) {
		return nil, false
	}
	return &g.nodes[state-1], true
}

// StateOf resolves a node id to its StateIndex.
func (g *Graph) StateOf(id string) (int, bool) {
	s, ok := g.index[id]
	return s, ok
}

// Valid reports whether state addresses a node.
func (g *Graph) Valid(state int) bool {
	return state >= 1 && state <= len(g.nodes)
}

// Hashmap returns a copy of the id → StateIndex mapping.
func (g *Graph) Hashmap() map[string]int {
	out := make(map[string]int, len(g.index))
	for k, v := range g.index {
		out[k] = v
	}
	return out
}
