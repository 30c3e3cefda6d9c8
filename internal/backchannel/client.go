package backchannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/pubctl/internal/logger"
)

// endGrace bounds how long the stream waits for trailing notifications
// after the publish_activities call has returned.
const endGrace = 5 * time.Second

// ClientName identifies pubctl in the MCP handshake.
const ClientName = "pubctl"

// ErrSessionClosed is returned by calls made after the session ended.
var ErrSessionClosed = errors.New("worker session closed")

// Client is a Session backed by an MCP client session
type Client struct {
	cs    *mcp.ClientSession
	queue *activityQueue

	streamMu sync.Mutex
	streamed bool

	stopOnce sync.Once
	stopErr  error

	closed chan struct{}
	done   chan struct{}
}

var _ Session = (*Client)(nil)

// Dial performs the MCP handshake over transport and returns the session.
// version is reported to the worker as the client version.
func Dial(ctx context.Context, transport mcp.Transport, version string) (*Client, error) {
	c := &Client{
		queue:  newActivityQueue(),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    ClientName,
		Version: version,
	}, &mcp.ClientOptions{
		LoggingMessageHandler: c.handleLog,
	})

	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("worker handshake failed: %w", err)
	}
	c.cs = cs

	// Activity notifications are only sent once a level is set.
	if err := cs.SetLoggingLevel(ctx, &mcp.SetLoggingLevelParams{Level: "info"}); err != nil {
		_ = cs.Close()
		return nil, fmt.Errorf("setting worker log level: %w", err)
	}

	go func() {
		_ = cs.Wait()
		c.queue.close()
		close(c.done)
	}()

	return c, nil
}

// Done is closed once the underlying connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Dropped returns how many activity notifications were discarded as
// duplicates or late arrivals.
func (c *Client) Dropped() int64 {
	return c.queue.Dropped()
}

func (c *Client) handleLog(ctx context.Context, req *mcp.LoggingMessageRequest) {
	params := req.Params
	if params == nil {
		return
	}
	if params.Logger != ActivityLogger {
		logger.DebugContext(ctx, "worker log", "logger", params.Logger, "level", params.Level, "data", params.Data)
		return
	}

	var ev ActivityEvent
	if err := decodeJSON(params.Data, &ev); err != nil {
		logger.WarnContext(ctx, "dropping malformed activity event", "error", err)
		return
	}
	if ev.Sequence <= 0 {
		logger.WarnContext(ctx, "dropping activity event without sequence", "id", ev.ID)
		return
	}
	c.queue.push(ev)
}

// ListPublishers calls list_publishers
func (c *Client) ListPublishers(ctx context.Context) ([]string, error) {
	res, err := c.cs.CallTool(ctx, &mcp.CallToolParams{Name: ToolListPublishers, Arguments: map[string]any{}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ToolListPublishers, err)
	}
	if res.IsError {
		return nil, fmt.Errorf("%s: %s", ToolListPublishers, toolErrorText(res))
	}

	var out ListPublishersResult
	if err := decodeJSON(res.StructuredContent, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", ToolListPublishers, err)
	}
	return out.Publishers, nil
}

// PublishingActivities calls publish_activities in the background and
// streams the activities it produces. It can be called once per session.
func (c *Client) PublishingActivities(ctx context.Context) (<-chan Activity, error) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.streamed {
		return nil, fmt.Errorf("%s already requested on this session", ToolPublishActivities)
	}
	select {
	case <-c.closed:
		return nil, ErrSessionClosed
	case <-c.done:
		return nil, ErrSessionClosed
	default:
	}
	c.streamed = true

	go c.runPublish(ctx)

	out := make(chan Activity)
	go c.deliver(ctx, out)
	return out, nil
}

func (c *Client) runPublish(ctx context.Context) {
	res, err := c.cs.CallTool(ctx, &mcp.CallToolParams{Name: ToolPublishActivities, Arguments: map[string]any{}})
	switch {
	case err != nil:
		logger.DebugContext(ctx, "publish_activities call ended", "error", err)
	case res.IsError:
		logger.WarnContext(ctx, "worker reported publish failure", "error", toolErrorText(res))
	default:
		var out PublishActivitiesResult
		if err := decodeJSON(res.StructuredContent, &out); err == nil && out.EndSequence > 0 {
			c.queue.endAt(out.EndSequence)
		}
	}

	// The end marker normally arrives before the call returns. Give
	// notifications still being dispatched a moment, then end the stream.
	timer := time.NewTimer(endGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.closed:
	case <-c.done:
	case <-ctx.Done():
	}
	c.queue.close()
}

func (c *Client) deliver(ctx context.Context, out chan<- Activity) {
	defer close(out)
	for {
		items, over := c.queue.take()
		for _, a := range items {
			select {
			case out <- a:
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
		}
		if over {
			return
		}
		select {
		case <-c.queue.notify:
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// RequestStop calls request_stop and closes the session. The worker exits
// once its stdin is closed even when the call itself fails.
func (c *Client) RequestStop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		_, err := c.cs.CallTool(ctx, &mcp.CallToolParams{Name: ToolRequestStop, Arguments: map[string]any{}})
		if err != nil && !isClosedErr(err) {
			c.stopErr = fmt.Errorf("%s: %w", ToolRequestStop, err)
		}
		close(c.closed)
		if n := c.Dropped(); n > 0 {
			logger.DebugContext(ctx, "activity events dropped", "count", n)
		}
		if cerr := c.cs.Close(); cerr != nil && c.stopErr == nil && !isClosedErr(cerr) {
			c.stopErr = fmt.Errorf("closing worker session: %w", cerr)
		}
	})
	return c.stopErr
}

func toolErrorText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		if text, ok := content.(*mcp.TextContent); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "tool returned an error"
	}
	return strings.Join(parts, "; ")
}

func isClosedErr(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, context.Canceled) {
		return true
	}
	return strings.Contains(err.Error(), "closed")
}
