package mcptools

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/murmur/internal/voicequeue"
	"github.com/MrWong99/murmur/pkg/voice"
)

type tools struct {
	queue Queue
}

// SpeakArgs is the input of the speak tool.
type SpeakArgs struct {
	Text        string `json:"text" jsonschema:"the reply text to speak"`
	Personality string `json:"personality,omitempty" jsonschema:"personality mode such as business_mentor; unknown modes use the default voice"`
	Gender      string `json:"gender" jsonschema:"voice gender, male or female"`
}

// SpeakResult is the output of the speak tool.
type SpeakResult struct {
	ID      string `json:"id,omitempty" jsonschema:"request id, empty when dropped"`
	Dropped bool   `json:"dropped" jsonschema:"true when the mode has voice disabled and nothing was queued"`
}

// NoArgs is the input of tools that take no arguments.
type NoArgs struct{}

// StatusResult is the output of the control and status tools.
type StatusResult struct {
	Processing  bool   `json:"processing" jsonschema:"a request is being synthesized or played"`
	Playing     bool   `json:"playing" jsonschema:"audio is sounding right now"`
	Paused      bool   `json:"paused" jsonschema:"the current item is paused"`
	Pending     int    `json:"pending" jsonschema:"requests waiting behind the current one"`
	CurrentID   string `json:"current_id,omitempty" jsonschema:"id of the current request"`
	CurrentText string `json:"current_text,omitempty" jsonschema:"text of the current request"`
	CurrentMode string `json:"current_mode,omitempty" jsonschema:"personality mode of the current request"`
}

// VoicesResult is the output of the list_voices tool.
type VoicesResult struct {
	DefaultMode string       `json:"default_mode" jsonschema:"mode used for unknown personalities"`
	Modes       []ModeResult `json:"modes"`
}

// ModeResult describes one personality mode.
type ModeResult struct {
	Mode        string `json:"mode"`
	Enabled     bool   `json:"enabled"`
	MaleVoice   string `json:"male_voice,omitempty"`
	FemaleVoice string `json:"female_voice,omitempty"`
}

func (t *tools) speak(_ context.Context, _ *mcpsdk.CallToolRequest, args SpeakArgs) (*mcpsdk.CallToolResult, SpeakResult, error) {
	gender, err := voice.ParseGender(args.Gender)
	if err != nil {
		return nil, SpeakResult{}, err
	}
	id, err := t.queue.Speak(args.Text, voice.Mode(args.Personality), gender)
	if err != nil {
		return nil, SpeakResult{}, err
	}
	return nil, SpeakResult{ID: id, Dropped: id == ""}, nil
}

func (t *tools) stop(_ context.Context, _ *mcpsdk.CallToolRequest, _ NoArgs) (*mcpsdk.CallToolResult, StatusResult, error) {
	t.queue.Stop()
	return nil, statusResult(t.queue.Status()), nil
}

func (t *tools) pause(_ context.Context, _ *mcpsdk.CallToolRequest, _ NoArgs) (*mcpsdk.CallToolResult, StatusResult, error) {
	t.queue.Pause()
	return nil, statusResult(t.queue.Status()), nil
}

func (t *tools) resume(_ context.Context, _ *mcpsdk.CallToolRequest, _ NoArgs) (*mcpsdk.CallToolResult, StatusResult, error) {
	t.queue.Resume()
	return nil, statusResult(t.queue.Status()), nil
}

func (t *tools) status(_ context.Context, _ *mcpsdk.CallToolRequest, _ NoArgs) (*mcpsdk.CallToolResult, StatusResult, error) {
	return nil, statusResult(t.queue.Status()), nil
}

func (t *tools) listVoices(_ context.Context, _ *mcpsdk.CallToolRequest, _ NoArgs) (*mcpsdk.CallToolResult, VoicesResult, error) {
	p := t.queue.Policy()
	out := VoicesResult{DefaultMode: string(p.DefaultMode())}
	for _, e := range p.Catalogue() {
		m := ModeResult{Mode: string(e.Mode), Enabled: e.Enabled}
		if e.Male != nil {
			m.MaleVoice = e.Male.ID
		}
		if e.Female != nil {
			m.FemaleVoice = e.Female.ID
		}
		out.Modes = append(out.Modes, m)
	}
	return nil, out, nil
}

func statusResult(s voicequeue.Status) StatusResult {
	out := StatusResult{
		Processing: s.Processing,
		Playing:    s.Playing,
		Paused:     s.Paused,
		Pending:    s.Pending,
	}
	if s.Current != nil {
		out.CurrentID = s.Current.ID
		out.CurrentText = s.Current.Text
		out.CurrentMode = string(s.Current.Mode)
	}
	return out
}
