// Package schema holds the wire types exchanged with the backend sidecar.
package schema

import "encoding/json"

type MessageType string

const (
	MessageTypeConnectionEstablished MessageType = "connection_established"
	MessageTypeAck                   MessageType = "ack"
	MessageTypeError                 MessageType = "error"
	MessageTypeAdminBroadcast        MessageType = "admin_broadcast"
)

// ClientMessage is sent by the launcher over the sidecar websocket.
type ClientMessage struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

// ServerMessage is any message the sidecar pushes back. Which fields are set
// depends on Type.
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message,omitempty"`
	Action  string      `json:"action,omitempty"`
	Status  string      `json:"status,omitempty"`
	From    string      `json:"from,omitempty"`

	// Raw keeps the original frame for fields this struct does not model.
	Raw json.RawMessage `json:"-"`
}

func (m ServerMessage) IsError() bool {
	return m.Type == MessageTypeError
}

// ParseServerMessage decodes one frame.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, err
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	return msg, nil
}
