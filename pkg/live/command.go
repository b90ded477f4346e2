package live

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/converse-ai/converse/pkg/audio"
)

// CommandType identifies a caller command.
type CommandType string

const (
	CommandAudio          CommandType = "audio"
	CommandText           CommandType = "text"
	CommandInterrupt      CommandType = "interrupt"
	CommandCommit         CommandType = "commit"
	CommandCreateResponse CommandType = "createResponse"
	CommandClear          CommandType = "clear"
)

// Command is one parsed caller instruction. Audio holds decoded PCM for audio
// commands; Format names the PCM layout and may be set by the caller after
// parsing (the zero value means "provider input format, no resampling").
type Command struct {
	Type   CommandType
	Audio  []byte
	Text   string
	Format audio.Format
}

type wireCommand struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// ParseCommand decodes one caller JSON command. Unknown command types are
// rejected; the caller relays the failure as an error message and keeps the
// session running.
func ParseCommand(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return Command{}, NewProtocolError("malformed command", err)
	}

	switch CommandType(w.Type) {
	case CommandAudio:
		pcm, err := base64.StdEncoding.DecodeString(w.Data)
		if err != nil {
			return Command{}, NewProtocolError("audio command: invalid base64 data", err)
		}
		return Command{Type: CommandAudio, Audio: pcm}, nil
	case CommandText:
		return Command{Type: CommandText, Text: w.Data}, nil
	case CommandInterrupt, CommandCommit, CommandCreateResponse, CommandClear:
		return Command{Type: CommandType(w.Type)}, nil
	default:
		return Command{}, NewProtocolError(fmt.Sprintf("unknown command type %q", w.Type), nil)
	}
}
