package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Lifecycle state change of the tracked host
	MessageTypeLifecycleState MessageType = "lifecycle_state"

	// One heartbeat verdict
	MessageTypeHeartbeat MessageType = "heartbeat"

	// Wake sequence progress
	MessageTypeWakeResult MessageType = "wake_result"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// LifecycleStateData represents a lifecycle state change
type LifecycleStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewLifecycleStateMessage builds a state-change broadcast.
func NewLifecycleStateMessage(state, previous string) Message {
	return NewMessage(MessageTypeLifecycleState, LifecycleStateData{
		State:    state,
		Previous: previous,
	})
}

// NewHeartbeatMessage builds a heartbeat verdict broadcast.
func NewHeartbeatMessage(verdict interface{}) Message {
	return NewMessage(MessageTypeHeartbeat, verdict)
}
