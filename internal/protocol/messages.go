package protocol

import "time"

// AudioFrame represents PCM audio streamed from an edge device during a listen session.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Transcript represents STT output broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// ListenControl starts or stops a listen session on a device.
type ListenControl struct {
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEnd reports why a listen session finished.
type SessionEnd struct {
	SessionID string    `json:"session_id"`
	Cause     string    `json:"cause"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GameView is the display state published after every game change.
type GameView struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Problem   string    `json:"problem"`
	Status    string    `json:"status"`
	Result    string    `json:"result"`
	Success   bool      `json:"success"`
	Score     string    `json:"score"`
	Listening bool      `json:"listening"`
	Timestamp time.Time `json:"timestamp"`
}

// CapabilitySpeechRecognizer is advertised by nodes running the stt service.
const CapabilitySpeechRecognizer = "speech.recognizer"

const (
	ListenActionStart = "start"
	ListenActionStop  = "stop"
)

const (
	SubjectAudioFramePrefix  = "audio.frame"
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectSessionEnd        = "stt.session.end"
	SubjectListenPrefix      = "game.listen"
	SubjectGameView          = "game.view"
	SubjectNodeAnnounce      = "ctrl.node.announce"
	SubjectNodeHeartbeat     = "ctrl.node.heartbeat"
)
