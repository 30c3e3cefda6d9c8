package backchannel

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler is the worker side of the protocol
type Handler interface {
	// ListPublishers returns the publisher names the worker supports.
	ListPublishers(ctx context.Context) ([]string, error)

	// PublishActivities runs the publish and reports progress through emit.
	// emit fails once the session is gone.
	PublishActivities(ctx context.Context, emit func(Activity) error) error

	// RequestStop is called when pubctl asks the worker to exit.
	RequestStop(ctx context.Context)
}

// noArgs is the input schema of every tool; none of them take arguments.
var noArgs = &jsonschema.Schema{Type: "object"}

// NewServer returns an MCP server exposing h over the worker tools
func NewServer(name, version string, h Handler) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListPublishers,
		Description: "List the publishers this worker can run.",
		InputSchema: noArgs,
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ map[string]any) (*mcp.CallToolResult, ListPublishersResult, error) {
		names, err := h.ListPublishers(ctx)
		if err != nil {
			return nil, ListPublishersResult{}, err
		}
		if names == nil {
			names = []string{}
		}
		return nil, ListPublishersResult{Publishers: names}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolPublishActivities,
		Description: "Run the selected publisher, streaming activities as pubctl.activity log notifications.",
		InputSchema: noArgs,
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ map[string]any) (*mcp.CallToolResult, PublishActivitiesResult, error) {
		var seq atomic.Int64
		send := func(ev ActivityEvent) error {
			return req.Session.Log(ctx, &mcp.LoggingMessageParams{
				Logger: ActivityLogger,
				Level:  "info",
				Data:   ev,
			})
		}

		emit := func(a Activity) error {
			if a.ID == "" {
				return fmt.Errorf("activity id is required")
			}
			return send(ActivityEvent{
				Sequence:   seq.Add(1),
				ID:         a.ID,
				StatusText: a.StatusText,
				IsComplete: a.IsComplete,
				IsError:    a.IsError,
			})
		}

		runErr := h.PublishActivities(ctx, emit)

		end := seq.Add(1)
		if err := send(ActivityEvent{Sequence: end, End: true}); err != nil && runErr == nil {
			runErr = fmt.Errorf("sending end of stream: %w", err)
		}
		if runErr != nil {
			return nil, PublishActivitiesResult{}, runErr
		}
		return nil, PublishActivitiesResult{EndSequence: end}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolRequestStop,
		Description: "Ask the worker to exit once the session closes.",
		InputSchema: noArgs,
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ map[string]any) (*mcp.CallToolResult, any, error) {
		h.RequestStop(ctx)
		return nil, nil, nil
	})

	return server
}
