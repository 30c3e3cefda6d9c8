// Package backchannel implements the duplex session between pubctl and a
// worker process. The session is MCP over the worker's stdin/stdout: the
// worker serves a few tools and pushes publishing activities as logging
// notifications while the publish_activities tool call is running.
package backchannel

import (
	"context"
	"encoding/json"
	"fmt"
)

// CapabilityBackchannelV1 is advertised by workers that serve this protocol.
const CapabilityBackchannelV1 = "backchannel.v1"

// Tool names served by the worker
const (
	ToolListPublishers    = "list_publishers"
	ToolPublishActivities = "publish_activities"
	ToolRequestStop       = "request_stop"
)

// ActivityLogger is the MCP logger name carrying activity events.
const ActivityLogger = "pubctl.activity"

// Session is the caller side of one worker session
type Session interface {
	// ListPublishers asks the worker for its publisher names.
	ListPublishers(ctx context.Context) ([]string, error)

	// PublishingActivities starts the worker's publish run and returns its
	// activity stream in emission order. The channel is closed when the
	// worker ends the stream, the session closes or ctx is cancelled.
	PublishingActivities(ctx context.Context) (<-chan Activity, error)

	// RequestStop asks the worker to exit and closes the session.
	// Only the first call has an effect.
	RequestStop(ctx context.Context) error
}

// Activity is one unit of work reported by the worker
type Activity struct {
	ID         string `json:"id"`
	StatusText string `json:"status_text"`
	IsComplete bool   `json:"is_complete"`
	IsError    bool   `json:"is_error"`
}

// ActivityEvent is the payload of an activity logging notification.
// Sequence numbers start at 1 and increase by one per notification; the
// last notification of a run has End set and carries no activity.
type ActivityEvent struct {
	Sequence   int64  `json:"sequence"`
	ID         string `json:"id,omitempty"`
	StatusText string `json:"status_text,omitempty"`
	IsComplete bool   `json:"is_complete,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	End        bool   `json:"end,omitempty"`
}

// Activity returns the activity carried by the event
func (e ActivityEvent) Activity() Activity {
	return Activity{
		ID:         e.ID,
		StatusText: e.StatusText,
		IsComplete: e.IsComplete,
		IsError:    e.IsError,
	}
}

// ListPublishersResult is the structured result of list_publishers
type ListPublishersResult struct {
	Publishers []string `json:"publishers"`
}

// PublishActivitiesResult is the structured result of publish_activities
type PublishActivitiesResult struct {
	// EndSequence is the sequence number of the end marker.
	EndSequence int64 `json:"end_sequence"`
}

// decodeJSON converts an already-decoded JSON value (map[string]any and
// friends) into a typed struct.
func decodeJSON(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("re-encoding payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
