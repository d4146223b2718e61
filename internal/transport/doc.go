/*
Package transport carries chat events between the server and its clients.

Hub is an in-memory room fan-out: every session subscribed to a room gets a
buffered channel of events and a slow subscriber misses events instead of
blocking the room. WSConn adapts a websocket connection to the Conn interface
with JSON frames of the form {"event", "room", "data"}.
*/
package transport
