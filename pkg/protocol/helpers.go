package protocol

import (
	"encoding/base64"
)

// =============================================================================
// Server → Client message shapes
// =============================================================================

// Notice is the generic {"type","msg"} reply or event.
type Notice struct {
	Type MessageType `json:"type"`
	Msg  string      `json:"msg,omitempty"`
}

// ErrorReply reports a protocol or state error to the sender.
type ErrorReply struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

// CommandReply acknowledges a manual drive command.
type CommandReply struct {
	Type   MessageType `json:"type"`
	Status string      `json:"status"`
	Speed  float64     `json:"speed"`
}

// CameraFrame carries one base64 JPEG frame.
type CameraFrame struct {
	Type  MessageType `json:"type"`
	Frame string      `json:"frame"`
}

// Battery reports the battery level.
type Battery struct {
	Type  MessageType `json:"type"`
	Value float64     `json:"value"`
}

// Found reports a beacon the navigator is about to validate.
type Found struct {
	Type     MessageType `json:"type"`
	Msg      string      `json:"msg,omitempty"`
	ID       int         `json:"id"`
	Distance float64     `json:"distance"`
}

// Captured reports a marker the judge accepted.
type Captured struct {
	Type     MessageType `json:"type"`
	ID       int         `json:"id"`
	Sector   string      `json:"sector"`
	Inside   bool        `json:"inside"`
	Status   int         `json:"status"`
	Captures int         `json:"captures"`
}

// JudgeError makes a failed judging-service call visible to operators.
type JudgeError struct {
	Type  MessageType `json:"type"`
	Op    string      `json:"op"`
	Error string      `json:"error"`
}

// AutoStopped is broadcast when a navigator run ends, for any reason.
type AutoStopped struct {
	Type  MessageType `json:"type"`
	Msg   string      `json:"msg,omitempty"`
	Error string      `json:"error,omitempty"`
}

// NavState reports a navigator state transition.
type NavState struct {
	Type  MessageType `json:"type"`
	State string      `json:"state"`
}

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewNotice creates a {"type","msg"} message.
func NewNotice(t MessageType, msg string) Notice {
	return Notice{Type: t, Msg: msg}
}

// NewError creates an error reply.
func NewError(msg string) ErrorReply {
	return ErrorReply{Type: TypeError, Error: msg}
}

// NewCommandReply acknowledges a manual command at the given scaled speed.
func NewCommandReply(speed float64) CommandReply {
	return CommandReply{Type: TypeCommand, Status: "command received", Speed: speed}
}

// NewCameraFrame encodes raw JPEG bytes for transport.
func NewCameraFrame(jpeg []byte) CameraFrame {
	return CameraFrame{Type: TypeCameraFrame, Frame: base64.StdEncoding.EncodeToString(jpeg)}
}

// DecodeFrame decodes the base64 image data
func (f CameraFrame) DecodeFrame() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Frame)
}

// NewBattery creates a battery level message.
func NewBattery(level float64) Battery {
	return Battery{Type: TypeBattery, Value: level}
}

// NewFound creates a beacon found event. distance is in cm.
func NewFound(id int, distance float64) Found {
	return Found{Type: TypeFound, Msg: "beacon found", ID: id, Distance: distance}
}

// NewNotFound creates a beacon not found event.
func NewNotFound() Notice {
	return NewNotice(TypeNotFound, "beacon not found")
}

// NewFinished creates the end-of-course event.
func NewFinished() Notice {
	return NewNotice(TypeFinished, "course complete")
}

// NewJudgeError creates a judging-service failure event.
func NewJudgeError(op string, err error) JudgeError {
	return JudgeError{Type: TypeJudgeError, Op: op, Error: err.Error()}
}

// NewAutoStopped creates the end-of-run event. err may be nil.
func NewAutoStopped(err error) AutoStopped {
	m := AutoStopped{Type: TypeAutoStopped, Msg: "auto mode stopped"}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// NewNavState creates a navigator state transition event.
func NewNavState(state string) NavState {
	return NavState{Type: TypeNavState, State: state}
}
