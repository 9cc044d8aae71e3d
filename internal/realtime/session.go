package realtime

// TurnDetection configures server-side voice activity detection. A nil
// value leaves turn taking to the local capture pipeline.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// ServerVAD returns the server VAD settings used when the model decides
// turn boundaries.
func ServerVAD() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 200,
	}
}

// Tool is a function definition advertised to the model.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type Transcription struct {
	Model string `json:"model"`
}

type SessionConfig struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection"`
	Tools                   []Tool         `json:"tools,omitempty"`
	ToolChoice              string         `json:"tool_choice,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
}

type clientEvent struct {
	Type     string         `json:"type"`
	EventID  string         `json:"event_id,omitempty"`
	Audio    string         `json:"audio,omitempty"`
	Item     *Item          `json:"item,omitempty"`
	Session  *SessionConfig `json:"session,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

func (o Options) sessionConfig() *SessionConfig {
	cfg := &SessionConfig{
		Modalities:              []string{"audio", "text"},
		Instructions:            o.Instructions,
		Voice:                   o.Voice,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &Transcription{Model: "whisper-1"},
		TurnDetection:           o.TurnDetection,
		Tools:                   o.Tools,
		Temperature:             o.Temperature,
	}
	if len(o.Tools) > 0 {
		cfg.ToolChoice = "auto"
	}
	return cfg
}
