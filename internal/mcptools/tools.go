package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"fun-with-ai/internal/controller"
	"fun-with-ai/internal/history"
)

type Controller interface {
	Dispatch(ctx context.Context, cmd controller.Command) error
	SubmitPrompt(ctx context.Context, text string) (history.Interaction, error)
	State() controller.State
}

type SubmitPromptParams struct {
	Prompt string `json:"prompt" mcp:"the prompt to complete with the selected engine"`
}

type SelectEngineParams struct {
	Engine string `json:"engine" mcp:"engine id, one of list_engines"`
}

type GetHistoryParams struct {
	Limit int `json:"limit,omitempty" mcp:"maximum number of interactions to return, newest first (default: all)"`
}

type NoParams struct{}

// Server exposes one controller as MCP tools.
type Server struct {
	ctrl Controller
}

func NewServer(ctrl Controller) *Server {
	return &Server{ctrl: ctrl}
}

// Register adds every tool to srv.
func (s *Server) Register(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_engines",
		Description: "Lists the available completion engines and the selected one",
	}, s.ListEngines)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "select_engine",
		Description: "Selects the engine used for subsequent prompts",
	}, s.SelectEngine)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "submit_prompt",
		Description: "Completes a prompt with the selected engine and stores the interaction",
	}, s.SubmitPrompt)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_history",
		Description: "Returns stored prompt/response interactions, newest first",
	}, s.GetHistory)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "clear_history",
		Description: "Deletes all stored interactions",
	}, s.ClearHistory)
}

func (s *Server) ListEngines(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[NoParams]) (*mcp.CallToolResultFor[any], error) {
	st := s.ctrl.State()
	if len(st.Catalog) == 0 {
		return textResult("no engines available", nil), nil
	}
	var b strings.Builder
	for _, id := range st.Catalog {
		mark := " "
		if id == st.Engine {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, id)
	}
	return textResult(b.String(), map[string]any{"selected": st.Engine, "engines": st.Catalog}), nil
}

func (s *Server) SelectEngine(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[SelectEngineParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if err := s.ctrl.Dispatch(ctx, controller.SelectEngine{EngineID: args.Engine}); err != nil {
		if errors.Is(err, controller.ErrUnknownEngine) {
			return errorResult(fmt.Sprintf("unknown engine %q, call list_engines first", args.Engine)), nil
		}
		return errorResult(controller.GenericNotice), nil
	}
	return textResult("selected engine "+args.Engine, map[string]any{"selected": args.Engine}), nil
}

func (s *Server) SubmitPrompt(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[SubmitPromptParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	log.Printf("mcp: submit_prompt (%d chars)", len(args.Prompt))
	it, err := s.ctrl.SubmitPrompt(ctx, args.Prompt)
	if err != nil {
		return errorResult(controller.GenericNotice), nil
	}
	return textResult(it.Response, map[string]any{"engine": it.Engine}), nil
}

func (s *Server) GetHistory(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[GetHistoryParams]) (*mcp.CallToolResultFor[any], error) {
	h := s.ctrl.State().History
	if limit := params.Arguments.Limit; limit > 0 && limit < len(h) {
		h = h[:limit]
	}
	if len(h) == 0 {
		return textResult("history is empty", map[string]any{"count": 0}), nil
	}
	var b strings.Builder
	for i, it := range h {
		fmt.Fprintf(&b, "%d. [%s]\nPrompt: %s\nResponse: %s\n\n", i+1, it.Engine, it.Prompt, strings.TrimSpace(it.Response))
	}
	return textResult(b.String(), map[string]any{"count": len(h)}), nil
}

func (s *Server) ClearHistory(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[NoParams]) (*mcp.CallToolResultFor[any], error) {
	if err := s.ctrl.Dispatch(ctx, controller.ClearHistory{}); err != nil {
		return errorResult(controller.GenericNotice), nil
	}
	return textResult("history cleared", nil), nil
}

func textResult(text string, meta map[string]any) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		Meta:    meta,
	}
}

func errorResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
