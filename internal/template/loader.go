package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/chatflow/types"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

type document struct {
	Nodes []Node `json:"node"`
}

// LoadFile loads the template at path. The graph is named after the file
// without its extension.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewError(types.ErrTemplate, "open template").WithCause(err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Load(name, f)
}

// Load reads a template document, validates it and builds the graph.
//
// Every failure is a TEMPLATE_ERROR: schema violations, duplicate ids,
// triggers naming unknown ids, and per-option triggers whose length differs
// from the options or that sit on a node not expecting user input.
func Load(name string, r io.Reader) (*Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, types.NewError(types.ErrTemplate, "read template").WithCause(err)
	}
	return Parse(name, data)
}

// Parse is Load over an in-memory document.
func Parse(name string, data []byte) (*Graph, error) {
	sch, err := documentSchema()
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "template schema unavailable").WithCause(err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, types.Errorf(types.ErrTemplate, "template %q is not valid JSON", name).WithCause(err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, types.Errorf(types.ErrTemplate, "template %q: %s", name,
			strings.Join(schemaViolations(err), "; "))
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.Errorf(types.ErrTemplate, "template %q: decode nodes", name).WithCause(err)
	}

	return build(name, doc.Nodes)
}

// New builds a graph from nodes constructed in code.
func New(name string, nodes []Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, types.Errorf(types.ErrTemplate, "template %q has no nodes", name)
	}
	cp := make([]Node, len(nodes))
	copy(cp, nodes)
	return build(name, cp)
}

func build(name string, nodes []Node) (*Graph, error) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			continue
		}
		if prev, dup := index[n.ID]; dup {
			return nil, types.Errorf(types.ErrTemplate,
				"template %q: node id %q declared at states %d and %d", name, n.ID, prev, i+1)
		}
		index[n.ID] = i + 1
	}

	for i := range nodes {
		if err := checkNode(name, i+1, &nodes[i], index); err != nil {
			return nil, err
		}
	}

	return &Graph{name: name, nodes: nodes, index: index}, nil
}

func checkNode(name string, state int, n *Node, index map[string]int) error {
	where := fmt.Sprintf("template %q state %d", name, state)
	if n.ID != "" {
		where = fmt.Sprintf("template %q node %q", name, n.ID)
	}

	if !n.End && !n.Trigger.IsSet() {
		return types.Errorf(types.ErrTemplate, "%s: node has neither trigger nor end", where)
	}

	for _, target := range n.Trigger.IDs {
		if _, ok := index[target]; !ok {
			return types.Errorf(types.ErrTemplate, "%s: trigger references unknown node id %q", where, target)
		}
	}

	if n.Trigger.PerOption {
		if !n.HasOptions() {
			return types.Errorf(types.ErrTemplate, "%s: per-option trigger without options", where)
		}
		if len(n.Trigger.IDs) != len(n.Options) {
			return types.Errorf(types.ErrTemplate, "%s: %d options but %d triggers",
				where, len(n.Options), len(n.Trigger.IDs))
		}
		if !n.User {
			return types.Errorf(types.ErrTemplate, "%s: per-option trigger on a node that does not expect user input", where)
		}
	}
	return nil
}
