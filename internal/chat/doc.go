// Package chat runs chat rooms: it binds each connection to a session,
// drives the room's bot through the dialogue machine, logs every message in
// the shared store under the room counter and flushes the log to the
// database when a session leaves its room.
//
// Participants talk to bots. Operators join existing rooms for live chat
// and never move the dialogue state.
package chat
