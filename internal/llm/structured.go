package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Schema describes the JSON schema of a structured completion's output.
type Schema struct {
	// Name identifies the output shape to the model (tool function name).
	Name string
	// Description is a short hint about what the output represents.
	Description string
	// Definition is the JSON-schema document for the output object.
	Definition json.RawMessage
}

// StructuredCaller issues schema-constrained completions. Implemented by
// Client; consumers depend on the interface so tests can stub the model.
type StructuredCaller interface {
	// CompleteStructured asks the model to emit an object conforming to the
	// schema and unmarshals it into out. Any parse failure is a call failure.
	CompleteStructured(ctx context.Context, system, user string, schema Schema, out any) error
}

// CompleteStructured forces a function/tool call whose arguments conform to
// the schema and decodes them into out.
func (c *Client) CompleteStructured(ctx context.Context, system, user string, schema Schema, out any) error {
	payload := chatRequest{
		Model: c.Model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Tools: []toolSpec{
			{
				Type: "function",
				Function: toolFunction{
					Name:        schema.Name,
					Description: schema.Description,
					Parameters:  schema.Definition,
				},
			},
		},
		ToolChoice: map[string]any{
			"type":     "function",
			"function": map[string]string{"name": schema.Name},
		},
	}

	choice, err := c.complete(ctx, payload)
	if err != nil {
		return err
	}

	// Models occasionally answer in content rather than honoring the forced
	// tool call. Accept either as long as the payload parses.
	raw := ""
	if len(choice.Message.ToolCalls) > 0 {
		raw = choice.Message.ToolCalls[0].Function.Arguments
	} else {
		raw = choice.Message.Content
	}
	if raw == "" {
		return fmt.Errorf("structured call %q returned no payload", schema.Name)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("structured call %q returned invalid JSON: %w", schema.Name, err)
	}
	return nil
}
