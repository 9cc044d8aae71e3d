package realtime

import "encoding/json"

// Server event kinds.
const (
	EventError = "error"

	EventSessionCreated = "session.created"
	EventSessionUpdated = "session.updated"

	EventConversationItemCreated          = "conversation.item.created"
	EventConversationItemTruncated        = "conversation.item.truncated"
	EventConversationItemDeleted          = "conversation.item.deleted"
	EventInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventInputAudioTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"

	EventInputAudioBufferCommitted     = "input_audio_buffer.committed"
	EventInputAudioBufferCleared       = "input_audio_buffer.cleared"
	EventInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"

	EventResponseCreated                    = "response.created"
	EventResponseDone                       = "response.done"
	EventResponseOutputItemAdded            = "response.output_item.added"
	EventResponseOutputItemDone             = "response.output_item.done"
	EventResponseContentPartAdded           = "response.content_part.added"
	EventResponseContentPartDone            = "response.content_part.done"
	EventResponseTextDelta                  = "response.text.delta"
	EventResponseTextDone                   = "response.text.done"
	EventResponseAudioTranscriptDelta       = "response.audio_transcript.delta"
	EventResponseAudioTranscriptDone        = "response.audio_transcript.done"
	EventResponseAudioDelta                 = "response.audio.delta"
	EventResponseAudioDone                  = "response.audio.done"
	EventResponseFunctionCallArgumentsDelta = "response.function_call_arguments.delta"
	EventResponseFunctionCallArgumentsDone  = "response.function_call_arguments.done"

	EventRateLimitsUpdated = "rate_limits.updated"

	// EventReconnected is emitted by the client itself after the session
	// has been re-established and re-configured.
	EventReconnected = "reconnected"
)

var knownEvents = map[string]struct{}{
	EventError:                              {},
	EventSessionCreated:                     {},
	EventSessionUpdated:                     {},
	EventConversationItemCreated:            {},
	EventConversationItemTruncated:          {},
	EventConversationItemDeleted:            {},
	EventInputAudioTranscriptionCompleted:   {},
	EventInputAudioTranscriptionFailed:      {},
	EventInputAudioBufferCommitted:          {},
	EventInputAudioBufferCleared:            {},
	EventInputAudioBufferSpeechStarted:      {},
	EventInputAudioBufferSpeechStopped:      {},
	EventResponseCreated:                    {},
	EventResponseDone:                       {},
	EventResponseOutputItemAdded:            {},
	EventResponseOutputItemDone:             {},
	EventResponseContentPartAdded:           {},
	EventResponseContentPartDone:            {},
	EventResponseTextDelta:                  {},
	EventResponseTextDone:                   {},
	EventResponseAudioTranscriptDelta:       {},
	EventResponseAudioTranscriptDone:        {},
	EventResponseAudioDelta:                 {},
	EventResponseAudioDone:                  {},
	EventResponseFunctionCallArgumentsDelta: {},
	EventResponseFunctionCallArgumentsDone:  {},
	EventRateLimitsUpdated:                  {},
	EventReconnected:                        {},
}

// Known reports whether typ is an event kind this package recognizes.
func Known(typ string) bool {
	_, ok := knownEvents[typ]
	return ok
}

// Event is the envelope for every server event. Only the fields relevant to
// Type are populated; Raw keeps the original frame.
type Event struct {
	Type         string `json:"type"`
	EventID      string `json:"event_id,omitempty"`
	ResponseID   string `json:"response_id,omitempty"`
	ItemID       string `json:"item_id,omitempty"`
	OutputIndex  int    `json:"output_index,omitempty"`
	ContentIndex int    `json:"content_index,omitempty"`

	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Text       string `json:"text,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	AudioStartMs int `json:"audio_start_ms,omitempty"`
	AudioEndMs   int `json:"audio_end_ms,omitempty"`

	Item       *Item          `json:"item,omitempty"`
	Part       *ContentPart   `json:"part,omitempty"`
	Response   *Response      `json:"response,omitempty"`
	Session    map[string]any `json:"session,omitempty"`
	RateLimits []RateLimit    `json:"rate_limits,omitempty"`
	Error      *APIError      `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type Item struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type"`
	Status    string        `json:"status,omitempty"`
	Role      string        `json:"role,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
}

// AudioTranscript returns the transcript of the first audio part, if any.
func (it *Item) AudioTranscript() string {
	if it == nil {
		return ""
	}
	for _, p := range it.Content {
		if p.Type == "audio" && p.Transcript != "" {
			return p.Transcript
		}
	}
	return ""
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type Response struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	StatusDetails map[string]any `json:"status_details,omitempty"`
	Output        []Item         `json:"output,omitempty"`
	Usage         map[string]any `json:"usage,omitempty"`
}

type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

// ParseEvent decodes a server frame.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}
