// Package mcptools exposes the voice queue as Model Context Protocol tools so
// an agent host can make the assistant speak and control playback.
//
// Tools:
//
//	speak            queue text for playback
//	stop_speaking    stop playback and clear the queue
//	pause_speaking   pause the current item
//	resume_speaking  resume the current item
//	voice_status     report the queue state
//	list_voices      list personality modes and their voices
//
// The same server can be served over stdio with [Serve] or over streamable
// HTTP with [Handler].
package mcptools

import (
	"context"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/murmur/internal/voicequeue"
	"github.com/MrWong99/murmur/pkg/voice"
)

// Queue is the subset of [voicequeue.Manager] the tools drive.
type Queue interface {
	Speak(text string, mode voice.Mode, gender voice.Gender) (string, error)
	Stop()
	Pause()
	Resume()
	Status() voicequeue.Status
	Policy() *voice.Policy
}

var _ Queue = (*voicequeue.Manager)(nil)

// New returns an MCP server with every voice tool registered against q.
func New(q Queue, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "murmur", Version: version}, nil)
	t := &tools{queue: q}

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "speak",
		Description: "Speak text aloud with the voice of a personality mode. Requests are played one at a time in the order they arrive. Returns the request id, or dropped=true when the mode has voice disabled.",
	}, t.speak)
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "stop_speaking",
		Description: "Stop the current playback and discard everything still queued.",
	}, t.stop)
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "pause_speaking",
		Description: "Pause the item that is currently playing.",
	}, t.pause)
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "resume_speaking",
		Description: "Resume a paused item.",
	}, t.resume)
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "voice_status",
		Description: "Report whether the assistant is speaking, paused or idle and how many requests are waiting.",
	}, t.status)
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_voices",
		Description: "List the personality modes, whether voice is enabled for each, and their male and female voices.",
	}, t.listVoices)

	return server
}

// Serve runs server over stdin/stdout until ctx is cancelled or the client
// disconnects.
func Serve(ctx context.Context, server *mcpsdk.Server) error {
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Handler serves server over the streamable HTTP transport.
func Handler(server *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return server }, nil)
}
