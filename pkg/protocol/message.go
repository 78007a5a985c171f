// Package protocol defines the websocket message types spoken between
// operator clients and the rover control plane.
//
// Every frame is a flat JSON object whose "type" field selects the shape
// of the rest of the object.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Client → Server messages
	TypeKey        MessageType = "key"         // Authentication
	TypeCommand    MessageType = "command"     // Manual drive
	TypeStartAuto  MessageType = "start_auto"  // Launch the navigator
	TypeStopServer MessageType = "stop_server" // Shut the process down

	// Server → Sender replies
	TypeConnected     MessageType = "connected"
	TypeError         MessageType = "error"
	TypeAutoStarted   MessageType = "auto_started"
	TypeServerStopped MessageType = "server_stopped"

	// Server → All clients
	TypeCameraFrame       MessageType = "camera_frame"
	TypeBattery           MessageType = "battery"
	TypeFound             MessageType = "found"
	TypeNotFound          MessageType = "not_found"
	TypeCaptured          MessageType = "captured"
	TypeFinished          MessageType = "finished"
	TypeAutoStopped       MessageType = "auto_stopped"
	TypeJudgeError        MessageType = "judge_error"
	TypeSensorUnavailable MessageType = "sensor_unavailable"
	TypeLocalizeDegraded  MessageType = "localize_degraded"
	TypeNavState          MessageType = "nav_state"
)

// Parse errors.
var (
	ErrMalformed   = errors.New("protocol: malformed message")
	ErrMissingType = errors.New("protocol: missing type")
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// Inbound is implemented by every client → server message.
type Inbound interface {
	MessageType() MessageType
}

// envelope is decoded first to find out which concrete type follows.
type envelope struct {
	Type MessageType `json:"type"`
}

// KeyMessage carries the shared secret.
type KeyMessage struct {
	Value Secret `json:"value"`
}

// CommandMessage is a joystick sample. Pointer fields distinguish a
// missing axis from a zero one.
type CommandMessage struct {
	Angle    *float64 `json:"angle"`
	Distance *float64 `json:"distance"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Mode     *int     `json:"mode"`
}

// StartAutoMessage asks for an autonomous run from InitPos.
type StartAutoMessage struct {
	InitPos *Point `json:"init_pos"`
}

// StopServerMessage asks the whole process to stop.
type StopServerMessage struct{}

// Point is an arena coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (KeyMessage) MessageType() MessageType        { return TypeKey }
func (CommandMessage) MessageType() MessageType    { return TypeCommand }
func (StartAutoMessage) MessageType() MessageType  { return TypeStartAuto }
func (StopServerMessage) MessageType() MessageType { return TypeStopServer }

// Secret accepts the key as either a JSON string or a JSON number, since
// older clients send it unquoted.
type Secret string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Secret) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = Secret(v)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("key must be a string or number: %w", err)
	}
	*s = Secret(n.String())
	return nil
}

// Parse decodes one client frame into its concrete message type.
// Unknown types return an error wrapping ErrUnknownType that carries the
// offending type name.
func Parse(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Inbound
	switch env.Type {
	case "":
		return nil, ErrMissingType
	case TypeKey:
		var m KeyMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg = m
	case TypeCommand:
		var m CommandMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg = m
	case TypeStartAuto:
		var m StartAutoMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg = m
	case TypeStopServer:
		msg = StopServerMessage{}
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
	return msg, nil
}

// UnknownTypeError reports a frame whose type is not part of the protocol.
type UnknownTypeError struct {
	Type MessageType
}

func (e *UnknownTypeError) Error() string {
	return "unknown message type: " + string(e.Type)
}

// Unwrap lets errors.Is match ErrUnknownType.
func (e *UnknownTypeError) Unwrap() error {
	return ErrUnknownType
}
