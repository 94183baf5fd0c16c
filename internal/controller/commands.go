package controller

import (
	"context"
	"fmt"
)

// Command is a discrete request from a presentation layer.
type Command interface{ isCommand() }

type SubmitPrompt struct{ Text string }

type SelectEngine struct{ EngineID string }

type ClearHistory struct{}

type UpdateDraft struct{ Text string }

func (SubmitPrompt) isCommand() {}
func (SelectEngine) isCommand() {}
func (ClearHistory) isCommand() {}
func (UpdateDraft) isCommand()  {}

// Dispatch routes cmd to the matching operation.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd := cmd.(type) {
	case SubmitPrompt:
		_, err := c.SubmitPrompt(ctx, cmd.Text)
		return err
	case SelectEngine:
		return c.SelectEngine(cmd.EngineID)
	case ClearHistory:
		return c.ClearHistory(ctx)
	case UpdateDraft:
		c.UpdateDraft(cmd.Text)
		return nil
	default:
		return fmt.Errorf("unsupported command %T", cmd)
	}
}
