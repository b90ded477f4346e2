package geminilive

import "encoding/json"

const (
	// inputMIMEType labels realtime audio chunks; the API requires the rate
	// inline in the MIME type.
	inputMIMEType = "audio/pcm;rate=16000"

	// modelPrefix qualifies bare model names inside the setup frame.
	modelPrefix = "models/"
)

// Client messages. Exactly one top-level field is set per message.

type clientMessage struct {
	Setup         *setupPayload  `json:"setup,omitempty"`
	ClientContent *clientContent `json:"clientContent,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
}

type setupPayload struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *content          `json:"systemInstruction,omitempty"`
	Tools                    []tool            `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	Temperature        *float64      `json:"temperature,omitempty"`
	TopP               *float64      `json:"topP,omitempty"`
	TopK               *int          `json:"topK,omitempty"`
	MaxOutputTokens    *int          `json:"maxOutputTokens,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig *voiceConfig `json:"voiceConfig,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type clientContent struct {
	Turns        []content `json:"turns,omitempty"`
	TurnComplete bool      `json:"turnComplete"`
}

type realtimeInput struct {
	MediaChunks    []blob `json:"mediaChunks,omitempty"`
	AudioStreamEnd bool   `json:"audioStreamEnd,omitempty"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type functionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Server messages are classified by which top-level key is present.

const (
	keySetupComplete = "setupComplete"
	keyServerContent = "serverContent"
)

// bookkeepingKeys are server messages the session has no use for yet.
var bookkeepingKeys = map[string]struct{}{
	"toolCall":                {},
	"toolCallCancellation":    {},
	"usageMetadata":           {},
	"goAway":                  {},
	"sessionResumptionUpdate": {},
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}
