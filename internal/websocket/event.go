package websocket

// Event types sent to live endpoints.
const (
	EventChunk = "chunk"
	EventEnd   = "end"
	EventError = "error"
	EventTitle = "title"
)

// Event is the JSON frame written to the peer.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

func ChunkEvent(content string) Event { return Event{Type: EventChunk, Content: content} }

func EndEvent() Event { return Event{Type: EventEnd} }

func ErrorEvent(message string) Event { return Event{Type: EventError, Message: message} }

func TitleEvent(title string) Event { return Event{Type: EventTitle, Content: title} }
