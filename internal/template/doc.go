// Package template loads conversation templates into an addressable node graph.
//
// A template document is a JSON object {"node": [...]} whose nodes are
// addressed by StateIndex: the 1-based position of the node in the document.
// Nodes carrying an id are also reachable by name through the graph's id
// index; nodes without an id can only be reached positionally.
package template
