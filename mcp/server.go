package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/pkg/logging"
	"github.com/sweetpotato0/askflow/rag/agentic"
)

// Version is advertised in the MCP handshake.
const Version = "0.1.0"

// AskToolName is the name of the tool exposed by NewServer.
const AskToolName = "ask"

// Engine is the part of agentic.Engine the server needs.
type Engine interface {
	Run(ctx context.Context, query, convCtx string) (*agentic.State, error)
	Review(ctx context.Context, state *agentic.State) agentic.Review
	Persona() agentic.Persona
}

// AskInput is the argument schema of the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer"`
	Context  string `json:"context,omitempty" jsonschema:"prior conversation rendered oldest first"`
}

// AskOutput is the structured result of the ask tool.
type AskOutput struct {
	Answer             string   `json:"answer"`
	Confidence         int      `json:"confidence"`
	NeedsClarification bool     `json:"needs_clarification"`
	Questions          []string `json:"questions,omitempty"`
	Sources            string   `json:"sources"`
}

// NewServer returns an MCP server with the ask tool registered.
func NewServer(engine Engine) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "askflow", Version: Version}, nil)
	logger := logging.WithComponent("mcp_server")

	sdkmcp.AddTool(server,
		&sdkmcp.Tool{
			Name:        AskToolName,
			Description: fmt.Sprintf("Ask the %s. Answers from the document index and the web, and asks follow-up questions when confidence is low.", engine.Persona().Role),
		},
		func(ctx context.Context, _ *sdkmcp.CallToolRequest, in AskInput) (*sdkmcp.CallToolResult, AskOutput, error) {
			return handleAsk(ctx, engine, logger, in)
		},
	)
	return server
}

func handleAsk(ctx context.Context, engine Engine, logger *slog.Logger, in AskInput) (*sdkmcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, AskOutput{}, fmt.Errorf("question is required: %w", askerrors.ErrInvalidInput)
	}
	state, err := engine.Run(ctx, in.Question, in.Context)
	if err != nil {
		return nil, AskOutput{}, err
	}
	review := engine.Review(ctx, state)
	reply := agentic.FormatReply(engine.Persona(), state.FinalResponse, review)
	logger.Info("ask answered", "run_id", state.RunID, "confidence", review.Score, "clarify", review.NeedsClarification)

	out := AskOutput{
		Answer:             state.FinalResponse,
		Confidence:         review.Score,
		NeedsClarification: review.NeedsClarification,
		Questions:          review.Questions,
		Sources:            state.AgentFlow.String(),
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: reply}},
	}, out, nil
}

// ServeStdio serves the server over stdin/stdout until ctx is done or the
// client disconnects.
func ServeStdio(ctx context.Context, server *sdkmcp.Server) error {
	return server.Run(ctx, &sdkmcp.StdioTransport{})
}

// HTTPHandler serves the server over the streamable HTTP transport.
func HTTPHandler(server *sdkmcp.Server) http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return server
	}, nil)
}
