package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/chatflow/internal/kvstore"
	"github.com/BaSui01/chatflow/internal/placeholder"
	"github.com/BaSui01/chatflow/internal/template"
	"github.com/BaSui01/chatflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signupDoc = `{"node": [
  {"id": "ask", "user": true, "store": "username", "trigger": "intro"},
  {"id": "intro", "message": "Nice to meet you {username}", "trigger": "menu"},
  {"id": "menu", "message": "Pick", "options": ["A", "B"], "user": true, "trigger": ["a", "b"], "type": "button"},
  {"id": "a", "message": "A chosen", "end": true},
  {"id": "b", "message": "B chosen, {username}", "end": true}
]}`

type fixture struct {
	graph    *template.Graph
	store    *kvstore.MemoryStore
	bindings *placeholder.Bindings
	machine  *Machine
}

func newFixture(t *testing.T, doc string, opts ...Option) *fixture {
	t.Helper()
	g, err := template.Parse("test", []byte(doc))
	require.NoError(t, err)
	store := kvstore.NewMemoryStore()
	b := placeholder.NewBindings(store, "room:test:binding:")
	return &fixture{graph: g, store: store, bindings: b, machine: New(g, b, opts...)}
}

func TestProcess_AutoChainToInteractiveNode(t *testing.T) {
	f := newFixture(t, signupDoc)
	ctx := context.Background()

	reply, err := f.machine.Process(ctx, "Ada", 1)
	require.NoError(t, err)

	v, ok, err := f.store.Get(ctx, "room:test:binding:username")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", v, "store directive writes the raw incoming message")

	menu, _ := f.graph.StateOf("menu")
	assert.Equal(t, menu, reply.NextState)
	assert.Equal(t, "Nice to meet you Ada\nPick\n0. A\n1. B\n", reply.Text)
	assert.Contains(t, reply.Text, "0. A\n1. B\n")
	assert.Equal(t, "button", reply.Type)
	assert.Equal(t, 2, reply.Visited)
	assert.False(t, reply.Ended())
}

func TestProcess_OptionLeadsThroughToTerminal(t *testing.T) {
	f := newFixture(t, signupDoc)
	ctx := context.Background()
	require.NoError(t, f.bindings.Bind(ctx, "username", "Ada"))

	menu, _ := f.graph.StateOf("menu")
	reply, err := f.machine.Process(ctx, "B", menu)
	require.NoError(t, err)

	assert.Equal(t, template.End, reply.NextState)
	assert.True(t, reply.Ended())
	assert.Equal(t, "Pick\n0. A\n1. B\nB chosen, Ada", reply.Text)
	assert.Empty(t, reply.Type)
}

func TestProcess_TerminalAbsorption(t *testing.T) {
	f := newFixture(t, signupDoc)
	ctx := context.Background()

	menu, _ := f.graph.StateOf("menu")
	reply, err := f.machine.Process(ctx, "A", menu)
	require.NoError(t, err)
	require.Equal(t, template.End, reply.NextState)

	_, err = f.machine.Process(ctx, "anything", reply.NextState)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))
}

func TestProcess_InvalidStates(t *testing.T) {
	f := newFixture(t, signupDoc)
	for _, s := range []int{template.End, 0, 6, 99} {
		_, err := f.machine.Process(context.Background(), "x", s)
		assert.True(t, types.IsCode(err, types.ErrInvalidState), "state %d: %v", s, err)
	}
}

func TestProcess_InvalidOptionKeepsState(t *testing.T) {
	f := newFixture(t, signupDoc)
	menu, _ := f.graph.StateOf("menu")

	reply, err := f.machine.Process(context.Background(), "bogus", menu)
	require.NoError(t, err)
	assert.Equal(t, menu, reply.NextState)
	assert.Equal(t, "Invalid Option: 'bogus'", reply.Text)
	assert.True(t, reply.InvalidOption)
}

func TestProcess_StoreHappensBeforeOptionMatching(t *testing.T) {
	doc := `{"node": [
	  {"id": "q", "message": "Color?", "options": ["red"], "user": true, "store": "color", "trigger": "done"},
	  {"id": "done", "message": "ok", "end": true}
	]}`
	f := newFixture(t, doc)
	ctx := context.Background()

	reply, err := f.machine.Process(ctx, "blue", 1)
	require.NoError(t, err)
	assert.True(t, reply.InvalidOption)

	v, _, err := f.bindings.Lookup(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, "blue", v)
}

func TestProcess_OptionRoundTrip(t *testing.T) {
	doc := `{"node": [
	  {"id": "q", "message": "Which?", "options": ["left", "right"], "user": true, "trigger": ["l", "r"]},
	  {"id": "l", "message": "Left door. Name?", "user": true, "trigger": "end"},
	  {"id": "r", "message": "Right door. Name?", "user": true, "trigger": "end"},
	  {"id": "end", "message": "bye", "end": true}
	]}`
	f := newFixture(t, doc)
	ctx := context.Background()
	hm := f.graph.Hashmap()

	r0, err := f.machine.Process(ctx, "left", 1)
	require.NoError(t, err)
	assert.Equal(t, hm["l"], r0.NextState)
	assert.Equal(t, "Which?\n0. left\n1. right\nLeft door. Name?", r0.Text)

	r1, err := f.machine.Process(ctx, "right", 1)
	require.NoError(t, err)
	assert.Equal(t, hm["r"], r1.NextState)
}

func TestProcess_DuplicateOptionsUseFirstIndex(t *testing.T) {
	doc := `{"node": [
	  {"id": "q", "options": ["same", "same"], "user": true, "trigger": ["first", "second"]},
	  {"id": "first", "message": "1", "user": true, "trigger": "q"},
	  {"id": "second", "message": "2", "user": true, "trigger": "q"}
	]}`
	f := newFixture(t, doc)

	reply, err := f.machine.Process(context.Background(), "same", 1)
	require.NoError(t, err)
	first, _ := f.graph.StateOf("first")
	assert.Equal(t, first, reply.NextState)
	assert.Equal(t, "0. same\n1. same\n1", reply.Text)
}

func TestProcess_SingleTriggerOnOptionNode(t *testing.T) {
	doc := `{"node": [
	  {"id": "q", "message": "Ready?", "options": ["yes", "sure"], "user": true, "trigger": "go"},
	  {"id": "go", "message": "Going", "end": true}
	]}`
	f := newFixture(t, doc)

	for _, answer := range []string{"yes", "sure"} {
		reply, err := f.machine.Process(context.Background(), answer, 1)
		require.NoError(t, err)
		assert.Equal(t, template.End, reply.NextState, answer)
	}
}

func TestProcess_FirstMessagePromptsNextQuestion(t *testing.T) {
	doc := `{"node": [
	  {"id": "hi", "message": "Welcome.", "trigger": "q"},
	  {"id": "q", "message": "Help?", "options": ["Yes", "No"], "user": true, "trigger": ["y", "n"], "type": "button"},
	  {"id": "y", "message": "On it", "end": true},
	  {"id": "n", "message": "Bye", "end": true}
	]}`
	f := newFixture(t, doc)

	reply, err := f.machine.Process(context.Background(), "hello there", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, reply.NextState)
	assert.Equal(t, "Welcome.\nHelp?\n0. Yes\n1. No\n", reply.Text)
	assert.Equal(t, "button", reply.Type)
}

func TestProcess_CycleHitsChainBound(t *testing.T) {
	doc := `{"node": [
	  {"id": "a", "message": "ping", "trigger": "b"},
	  {"id": "b", "message": "pong", "trigger": "a"}
	]}`
	f := newFixture(t, doc, WithMaxChainDepth(5))

	_, err := f.machine.Process(context.Background(), "x", 1)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrChainDepthExceeded))
}

func TestProcess_LongChainWithinBound(t *testing.T) {
	doc := `{"node": [
	  {"id": "s1", "message": "one", "trigger": "s2"},
	  {"id": "s2", "message": "two", "trigger": "s3"},
	  {"id": "s3", "message": "three", "end": true}
	]}`
	f := newFixture(t, doc, WithMaxChainDepth(3))

	reply, err := f.machine.Process(context.Background(), "go", 1)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree", reply.Text)
	assert.Equal(t, 3, reply.Visited)
	assert.True(t, reply.Ended())
}

func TestProcess_MissingBindingFails(t *testing.T) {
	doc := `{"node": [
	  {"id": "a", "message": "Hello {username}", "trigger": "b"},
	  {"id": "b", "user": true, "trigger": "a"}
	]}`
	f := newFixture(t, doc)

	_, err := f.machine.Process(context.Background(), "x", 1)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrMissingBinding))
}

func TestProcess_StoreFailurePropagates(t *testing.T) {
	f := newFixture(t, signupDoc)
	require.NoError(t, f.store.Close())

	_, err := f.machine.Process(context.Background(), "Ada", 1)
	assert.True(t, errors.Is(err, kvstore.ErrClosed))
}

func TestProcess_ChainedStoreWritesIncomingMessage(t *testing.T) {
	doc := `{"node": [
	  {"id": "q", "message": "Name?", "user": true, "trigger": "save"},
	  {"id": "save", "store": "answer", "message": "Saved", "trigger": "next"},
	  {"id": "next", "message": "Again?", "user": true, "trigger": "q"}
	]}`
	f := newFixture(t, doc)
	ctx := context.Background()

	_, err := f.machine.Process(ctx, "Grace", 1)
	require.NoError(t, err)

	v, _, err := f.bindings.Lookup(ctx, "answer")
	require.NoError(t, err)
	assert.Equal(t, "Grace", v)
}

func TestSampleTemplateConversation(t *testing.T) {
	g, err := template.LoadFile("../../templates/Susan.json")
	require.NoError(t, err)
	store := kvstore.NewMemoryStore()
	m := New(g, placeholder.NewBindings(store, "room:lobby:binding:"))
	ctx := context.Background()

	r, err := m.Process(ctx, "hello", 1)
	require.NoError(t, err)
	askName, _ := g.StateOf("ask_name")
	assert.Equal(t, askName, r.NextState)

	r, err = m.Process(ctx, "Ada", r.NextState)
	require.NoError(t, err)
	assert.Contains(t, r.Text, "Nice to meet you, Ada!")
	assert.Contains(t, r.Text, "0. Book a room\n")
	assert.Equal(t, "button", r.Type)

	r, err = m.Process(ctx, "Just browsing", r.NextState)
	require.NoError(t, err)
	assert.True(t, r.Ended())
	assert.Contains(t, r.Text, "Take your time, Ada.")
}
