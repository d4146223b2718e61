package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/chatflow/internal/placeholder"
	"github.com/BaSui01/chatflow/internal/template"
	"github.com/BaSui01/chatflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxChainDepth bounds the nodes visited by one Process call.
const DefaultMaxChainDepth = 32

// BindingStore reads and writes placeholder bindings.
type BindingStore interface {
	placeholder.Lookup
	Bind(ctx context.Context, name, value string) error
}

// Reply is the outcome of one processed message.
type Reply struct {
	Text      string
	NextState int
	// Type is the reply-type tag of the prompt the participant sees next,
	// empty when none was declared.
	Type string
	// InvalidOption is set when the message matched none of the offered
	// options. State is unchanged in that case.
	InvalidOption bool
	// Visited counts the nodes walked, including the starting node.
	Visited int
}

// Ended reports whether the conversation reached a terminal node.
func (r Reply) Ended() bool { return r.NextState == template.End }

// InvalidOptionText is the reply for a message matching no option.
func InvalidOptionText(message string) string {
	return fmt.Sprintf("Invalid Option: '%s'", message)
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxChainDepth sets how many nodes one message may walk.
func WithMaxChainDepth(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxChainDepth = n
		}
	}
}

// WithTracer sets the tracer used for Process spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) { m.tracer = t }
}

// Machine interprets one template graph.
type Machine struct {
	graph         *template.Graph
	bindings      BindingStore
	maxChainDepth int
	tracer        trace.Tracer
}

// New creates a machine over graph, resolving placeholders through bindings.
func New(graph *template.Graph, bindings BindingStore, opts ...Option) *Machine {
	m := &Machine{
		graph:         graph,
		bindings:      bindings,
		maxChainDepth: DefaultMaxChainDepth,
		tracer:        otel.Tracer("github.com/BaSui01/chatflow/internal/dialog"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Graph returns the template the machine runs.
func (m *Machine) Graph() *template.Graph { return m.graph }

// Process handles message received while the conversation is at state.
//
// END and out-of-range states fail with INVALID_STATE. A message matching no
// offered option is not an error: the reply carries InvalidOptionText and
// the unchanged state.
func (m *Machine) Process(ctx context.Context, message string, state int) (Reply, error) {
	ctx, span := m.tracer.Start(ctx, "dialog.Process", trace.WithAttributes(
		attribute.String("template", m.graph.Name()),
		attribute.Int("state", state),
	))
	defer span.End()

	reply, err := m.process(ctx, message, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}
	span.SetAttributes(
		attribute.Int("next_state", reply.NextState),
		attribute.Int("visited", reply.Visited),
		attribute.Bool("invalid_option", reply.InvalidOption),
	)
	return reply, nil
}

func (m *Machine) process(ctx context.Context, message string, state int) (Reply, error) {
	if !m.graph.Valid(state) {
		return Reply{}, types.Errorf(types.ErrInvalidState,
			"state %d is not addressable in template %q (1..%d)", state, m.graph.Name(), m.graph.Len())
	}

	var buf strings.Builder
	current := state

	for visited := 1; ; visited++ {
		if visited > m.maxChainDepth {
			return Reply{}, types.Errorf(types.ErrChainDepthExceeded,
				"template %q: chain from state %d exceeded %d nodes", m.graph.Name(), state, m.maxChainDepth)
		}

		node, _ := m.graph.Node(current)

		if node.Store != "" {
			if err := m.bindings.Bind(ctx, node.Store, message); err != nil {
				return Reply{}, err
			}
		}

		var target string
		if node.User && node.HasOptions() {
			idx := matchOption(node.Options, message)
			if idx < 0 {
				return Reply{
					Text:          InvalidOptionText(message),
					NextState:     current,
					InvalidOption: true,
					Visited:       visited,
				}, nil
			}
			if node.Trigger.PerOption {
				target = node.Trigger.IDs[idx]
			} else {
				target, _ = node.Trigger.Single()
			}
		}

		if node.End {
			text, err := placeholder.Expand(ctx, node.Message, m.bindings)
			if err != nil {
				return Reply{}, err
			}
			appendText(&buf, text)
			return Reply{Text: buf.String(), NextState: template.End, Visited: visited}, nil
		}

		text, err := placeholder.Render(ctx, node.Message, node.Options, m.bindings)
		if err != nil {
			return Reply{}, err
		}
		appendText(&buf, text)

		if target == "" {
			var ok bool
			if target, ok = node.Trigger.Single(); !ok {
				return Reply{}, types.Errorf(types.ErrInvalidTemplate,
					"template %q state %d: node has neither trigger nor end", m.graph.Name(), current)
			}
		}

		next, ok := m.graph.StateOf(target)
		if !ok {
			return Reply{}, types.Errorf(types.ErrInvalidTemplate,
				"template %q state %d: trigger %q does not name a node", m.graph.Name(), current, target)
		}
		nextNode, _ := m.graph.Node(next)

		if nextNode.User {
			prompt, err := placeholder.Render(ctx, nextNode.Message, nextNode.Options, m.bindings)
			if err != nil {
				return Reply{}, err
			}
			appendText(&buf, prompt)
			return Reply{Text: buf.String(), NextState: next, Type: nextNode.Type, Visited: visited}, nil
		}

		current = next
	}
}

// matchOption returns the first option equal to message, or -1.
func matchOption(options []string, message string) int {
	for i, opt := range options {
		if opt == message {
			return i
		}
	}
	return -1
}

// appendText joins reply fragments with a single line break.
func appendText(buf *strings.Builder, text string) {
	if text == "" {
		return
	}
	if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}
	buf.WriteString(text)
}
