// Package dialog runs a conversation template as a state machine.
//
// A Machine is owned by exactly one session and is not safe for concurrent
// use; its only shared dependency is the binding store. Process handles one
// incoming message: it resolves the node at the current state, records the
// node's store binding, matches options for nodes expecting user input and
// walks triggers through non-interactive nodes until it reaches a node that
// waits for the participant or a terminal node.
package dialog
