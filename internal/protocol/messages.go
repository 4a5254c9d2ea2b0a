package protocol

import (
	"encoding/json"

	"ptz-console/internal/activity"
	"ptz-console/internal/ptz"
	"ptz-console/internal/status"
)

// Message types
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeStatus       = "status"
	TypeLog          = "log"
	TypeCommand      = "command"
	TypeJoystick     = "joystick"
	TypeSpeed        = "speed"
	TypeConnect      = "connect"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypeError        = "error"
)

// Error codes
const (
	ErrCameraDisconnected = "CAMERA_DISCONNECTED"
	ErrCommandFailed      = "COMMAND_FAILED"
	ErrPreview            = "PREVIEW_ERROR"
	ErrInvalidMessage     = "INVALID_MESSAGE"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PingPayload is sent by the client to measure latency
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload is the server response to ping
type PongPayload struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// StatusPayload carries the latest snapshot and the status line.
type StatusPayload struct {
	Snapshot status.Snapshot `json:"snapshot"`
	Message  string          `json:"message"`
	Target   string          `json:"target"`
	Speeds   ptz.Speeds      `json:"speeds"`
	Preview  bool            `json:"preview"`
}

// LogPayload carries log lines the client has not seen yet.
type LogPayload struct {
	Entries []activity.Entry `json:"entries"`
}

// CommandPayload names a console command. Arg carries the white balance
// mode or the preset number.
type CommandPayload struct {
	Name string `json:"name"`
	Arg  string `json:"arg,omitempty"`
}

// JoystickPayload is an analog control sample, each axis in [-1, 1].
type JoystickPayload struct {
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
	Zoom float64 `json:"zoom"`
}

// SpeedPayload nudges one speed setting up or down.
type SpeedPayload struct {
	Axis  string `json:"axis"`
	Delta int    `json:"delta"`
}

// ConnectPayload asks for a connection to Target, or to the current
// target when empty.
type ConnectPayload struct {
	Target string `json:"target,omitempty"`
}

// SDPPayload for WebRTC offer/answer
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload for WebRTC ICE candidates
type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Message{
		Type:    msgType,
		Payload: raw,
	}, nil
}

// ParsePayload parses the message payload into the given type
func (m *Message) ParsePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
