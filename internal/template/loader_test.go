package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BaSui01/chatflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeterDoc = `{
  "node": [
    {"id": "greet", "message": "Hi! What's your name?", "trigger": "name"},
    {"id": "name", "user": true, "store": "username", "trigger": "hello"},
    {"id": "hello", "message": "Hello {username}!", "trigger": "menu"},
    {"id": "menu", "message": "Pick one", "options": ["Sales", "Support"], "user": true,
     "trigger": ["sales", "support"], "type": "button"},
    {"id": "sales", "message": "Sales will call you.", "end": true},
    {"id": "support", "message": "Support is on the way.", "end": true}
  ]
}`

func TestParse_BuildsSequentialIndex(t *testing.T) {
	g, err := Parse("greeter", []byte(greeterDoc))
	require.NoError(t, err)

	assert.Equal(t, "greeter", g.Name())
	assert.Equal(t, 6, g.Len())
	assert.Equal(t, map[string]int{
		"greet": 1, "name": 2, "hello": 3, "menu": 4, "sales": 5, "support": 6,
	}, g.Hashmap())

	menu, ok := g.Node(4)
	require.True(t, ok)
	assert.Equal(t, []string{"Sales", "Support"}, menu.Options)
	assert.True(t, menu.Trigger.PerOption)
	assert.Equal(t, []string{"sales", "support"}, menu.Trigger.IDs)
	assert.Equal(t, "button", menu.Type)

	greet, _ := g.Node(1)
	id, ok := greet.Trigger.Single()
	require.True(t, ok)
	assert.Equal(t, "name", id)
}

func TestGraph_NodeRange(t *testing.T) {
	g, err := Parse("greeter", []byte(greeterDoc))
	require.NoError(t, err)

	for _, s := range []int{0, -1, End, 7, 100} {
		_, ok := g.Node(s)
		assert.False(t, ok, "state %d", s)
		assert.False(t, g.Valid(s), "state %d", s)
	}
	assert.True(t, g.Valid(1))
	assert.True(t, g.Valid(6))
}

func TestParse_NodesWithoutIDKeepTheirPosition(t *testing.T) {
	doc := `{"node": [
	  {"message": "Welcome!", "trigger": "ask"},
	  {"id": "ask", "message": "Ready?", "options": ["yes"], "user": true, "trigger": "done"},
	  {"message": "unreachable aside", "end": true},
	  {"id": "done", "message": "Bye", "end": true}
	]}`
	g, err := Parse("anon", []byte(doc))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"ask": 2, "done": 4}, g.Hashmap())
	n, ok := g.Node(3)
	require.True(t, ok)
	assert.Equal(t, "unreachable aside", n.Message)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{"not json", `{"node": [`, "not valid JSON"},
		{"missing node list", `{"nodes": []}`, "template \"t\""},
		{"empty node list", `{"node": []}`, "template \"t\""},
		{"unknown field", `{"node": [{"id": "a", "triger": "b", "end": true}]}`, "template \"t\""},
		{"user must be bool", `{"node": [{"id": "a", "user": "yes", "end": true}]}`, "template \"t\""},
		{"bad store key", `{"node": [{"id": "a", "store": "user name", "end": true}]}`, "template \"t\""},
		{"duplicate id", `{"node": [{"id": "a", "trigger": "a"}, {"id": "a", "end": true}]}`, "declared at states 1 and 2"},
		{"unknown trigger target", `{"node": [{"id": "a", "trigger": "ghost"}]}`, "unknown node id \"ghost\""},
		{
			"option trigger length mismatch",
			`{"node": [{"id": "a", "options": ["x", "y"], "user": true, "trigger": ["b"]}, {"id": "b", "end": true}]}`,
			"2 options but 1 triggers",
		},
		{
			"option triggers without options",
			`{"node": [{"id": "a", "user": true, "trigger": ["b"]}, {"id": "b", "end": true}]}`,
			"without options",
		},
		{
			"option triggers without user",
			`{"node": [{"id": "a", "options": ["x"], "trigger": ["b"]}, {"id": "b", "end": true}]}`,
			"does not expect user input",
		},
		{
			"node without trigger or end",
			`{"node": [{"id": "a", "message": "start", "trigger": "b"}, {"id": "b", "message": "dangling"}]}`,
			"node \"b\": node has neither trigger nor end",
		},
		{
			"referenced node lacks id",
			`{"node": [{"id": "a", "trigger": "b"}, {"message": "I am b", "end": true}]}`,
			"unknown node id \"b\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("t", []byte(tt.doc))
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrTemplate), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Susan.json")
	require.NoError(t, os.WriteFile(path, []byte(greeterDoc), 0o644))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Susan", g.Name())

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTemplate))
}

func TestLoad_Reader(t *testing.T) {
	g, err := Load("greeter", strings.NewReader(greeterDoc))
	require.NoError(t, err)
	assert.Equal(t, 6, g.Len())
}

func TestNew_CopiesNodes(t *testing.T) {
	nodes := []Node{
		{ID: "a", Message: "one", Trigger: SingleTrigger("b")},
		{ID: "b", Message: "two", End: true},
	}
	g, err := New("code", nodes)
	require.NoError(t, err)

	nodes[0].Message = "changed"
	n, _ := g.Node(1)
	assert.Equal(t, "one", n.Message)

	_, err = New("empty", nil)
	assert.True(t, types.IsCode(err, types.ErrTemplate))
}

func TestTrigger_JSON(t *testing.T) {
	var tr Trigger
	require.NoError(t, tr.UnmarshalJSON([]byte(`"next"`)))
	assert.Equal(t, SingleTrigger("next"), tr)

	require.NoError(t, tr.UnmarshalJSON([]byte(`["a","b"]`)))
	assert.Equal(t, OptionTriggers("a", "b"), tr)

	assert.Error(t, tr.UnmarshalJSON([]byte(`42`)))

	b, err := SingleTrigger("x").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(b))

	b, err = OptionTriggers("x", "y").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["x","y"]`, string(b))
}

func TestSampleTemplatesLoad(t *testing.T) {
	for _, bot := range []string{"Susan", "Gerald"} {
		g, err := LoadFile(filepath.Join("..", "..", "templates", bot+".json"))
		require.NoError(t, err, bot)
		assert.Greater(t, g.Len(), 1, bot)
	}
}
