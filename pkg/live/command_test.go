package live

import (
	"bytes"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Command
	}{
		{"audio", `{"type":"audio","data":"AQID"}`,
			Command{Type: CommandAudio, Audio: []byte{1, 2, 3}}},
		{"text", `{"type":"text","data":"hello there"}`,
			Command{Type: CommandText, Text: "hello there"}},
		{"interrupt", `{"type":"interrupt"}`, Command{Type: CommandInterrupt}},
		{"commit", `{"type":"commit"}`, Command{Type: CommandCommit}},
		{"clear", `{"type":"clear"}`, Command{Type: CommandClear}},
		{"create response", `{"type":"createResponse"}`, Command{Type: CommandCreateResponse}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.in))
			if err != nil {
				t.Fatalf("ParseCommand() error: %v", err)
			}
			if got.Type != tt.want.Type {
				t.Errorf("Type = %q, want %q", got.Type, tt.want.Type)
			}
			if got.Text != tt.want.Text {
				t.Errorf("Text = %q, want %q", got.Text, tt.want.Text)
			}
			if !bytes.Equal(got.Audio, tt.want.Audio) {
				t.Errorf("Audio = %v, want %v", got.Audio, tt.want.Audio)
			}
		})
	}
}

func TestParseCommandRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"malformed json", `{"type":`},
		{"unknown type", `{"type":"hologram"}`},
		{"audio with bad base64", `{"type":"audio","data":"!!!"}`},
		{"empty type", `{"data":"AQID"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.in))
			if !IsKind(err, KindProtocolError) {
				t.Errorf("ParseCommand() = %v, want protocol error", err)
			}
		})
	}
}
