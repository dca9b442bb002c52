package httpapi

import (
	"encoding/json"

	"github.com/cyberx-ai/supplymesh/core"
)

// Frame is one JSON payload of the external event stream. The terminal
// frame has IsTaskComplete=true and is always the last frame of a stream.
type Frame struct {
	IsTaskComplete bool   `json:"is_task_complete"`
	Author         string `json:"author,omitempty"`
	Content        string `json:"content"`
	IsPartial      bool   `json:"is_partial,omitempty"`
}

// FrameFromEvent converts an internal event into its external frame.
// Content-less control events become a "working" partial frame carrying the
// flow's processing message.
func FrameFromEvent(ev core.Event, processingMessage string) Frame {
	text := ev.Text()
	if text == "" {
		return Frame{
			IsTaskComplete: ev.IsTerminal(),
			Author:         ev.Author,
			Content:        processingMessage,
			IsPartial:      !ev.IsTerminal(),
		}
	}
	return Frame{
		IsTaskComplete: ev.IsTerminal(),
		Author:         ev.Author,
		Content:        text,
		IsPartial:      ev.IsPartial(),
	}
}

// Encode renders the frame as its SSE data payload.
func (f Frame) Encode() []byte {
	data, _ := json.Marshal(f)
	return data
}
