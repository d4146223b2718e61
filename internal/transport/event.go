package transport

// Event names carried on the wire.
const (
	EventEnterRoom = "enter_room"
	EventExitRoom  = "exit_room"
	EventMessage   = "message"
	EventLivechat  = "livechat"
	EventHistory   = "history"
	EventError     = "error"
)

// Inbound is a client frame.
type Inbound struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Event is a server frame. Data is encoded as JSON as-is.
type Event struct {
	Name string `json:"event"`
	Room string `json:"room,omitempty"`
	Data any    `json:"data"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
