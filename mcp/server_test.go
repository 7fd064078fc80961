package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/askflow/rag/agentic"
)

type fakeEngine struct {
	state  *agentic.State
	review agentic.Review
	query  string
}

func (f *fakeEngine) Run(_ context.Context, query, _ string) (*agentic.State, error) {
	f.query = query
	return f.state, nil
}

func (f *fakeEngine) Review(context.Context, *agentic.State) agentic.Review {
	return f.review
}

func (f *fakeEngine) Persona() agentic.Persona {
	return agentic.EnglishPersona()
}

func connectPair(t *testing.T, engine Engine) *Client {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()

	serverSession, err := NewServer(engine).Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client, err := Connect(ctx, clientTransport)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAskToolListed(t *testing.T) {
	client := connectPair(t, &fakeEngine{})
	names, err := client.ToolNames(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(names) != 1 || names[0] != AskToolName {
		t.Fatalf("unexpected tools %v", names)
	}
}

func TestAskToolReturnsReply(t *testing.T) {
	engine := &fakeEngine{
		state: &agentic.State{RunID: "r1", FinalResponse: "File by the 25th.", AgentFlow: agentic.AllSources},
		review: agentic.Review{
			Assessment:         agentic.Assessment{Score: 40, Reasoning: "thin"},
			Questions:          []string{"Which tax year?"},
			NeedsClarification: true,
		},
	}
	client := connectPair(t, engine)

	text, err := client.CallTool(context.Background(), AskToolName, map[string]any{"question": "VAT deadline?"})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if engine.query != "VAT deadline?" {
		t.Fatalf("engine saw %q", engine.query)
	}
	if !strings.HasPrefix(text, "File by the 25th.") || !strings.Contains(text, "1. Which tax year?") {
		t.Fatalf("unexpected reply %q", text)
	}
}

func TestAskToolRejectsBlankQuestion(t *testing.T) {
	client := connectPair(t, &fakeEngine{})
	if _, err := client.CallTool(context.Background(), AskToolName, map[string]any{"question": "  "}); err == nil {
		t.Fatalf("expected error for blank question")
	}
}

func TestCallToolAfterClose(t *testing.T) {
	client := connectPair(t, &fakeEngine{})
	_ = client.Close()
	if _, err := client.CallTool(context.Background(), AskToolName, nil); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}
