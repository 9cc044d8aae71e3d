package orchestrator

// State is the conversation state. The zero value is StateIdle.
type State int32

const (
	StateIdle State = iota
	StateKeywordDetected
	StateConversationActive
)

func (s State) String() string {
	switch s {
	case StateKeywordDetected:
		return "KEYWORD_DETECTED"
	case StateConversationActive:
		return "CONVERSATION_ACTIVE"
	default:
		return "IDLE"
	}
}

// LocalKind identifies a capture pipeline signal.
type LocalKind int

const (
	SpeechStart LocalKind = iota + 1
	SpeechEnd
	KeywordDetected
)

func (k LocalKind) String() string {
	switch k {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	case KeywordDetected:
		return "keyword_detected"
	default:
		return "unknown"
	}
}

// LocalEvent is a signal from the capture pipeline. Keyword is set for
// KeywordDetected.
type LocalEvent struct {
	Kind    LocalKind
	Keyword string
}

// Status is a point-in-time view for diagnostics.
type Status struct {
	State         string `json:"state"`
	TurnDetection string `json:"turn_detection"`
	TimerArmed    bool   `json:"silence_timer_armed"`
	ToolsInFlight int    `json:"tools_in_flight"`
	PendingCalls  int    `json:"pending_calls"`
	ItemID        string `json:"playback_item_id"`
	ContentIndex  int    `json:"playback_content_index"`
}
