package ollama

import (
	"context"
	"fmt"
	"io"
)

// ErrorMarker prefixes the line appended to chat output when the stream
// breaks after output has started.
const ErrorMarker = "[error] "

// StreamChat writes the model's reply to w as it arrives. A failure before
// any output is returned unchanged so the caller can still report it as a
// status code. A failure after output has started is appended to w as an
// ErrorMarker line and also returned.
func (c *Client) StreamChat(ctx context.Context, model, prompt string, w io.Writer) error {
	started := false
	flusher, _ := w.(interface{ Flush() })
	err := c.Generate(ctx, GenerateRequest{Model: model, Prompt: prompt}, func(fragment string) {
		started = true
		io.WriteString(w, fragment)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil && started {
		fmt.Fprintf(w, "\n%s%v\n", ErrorMarker, err)
	}
	return err
}
