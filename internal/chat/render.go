package chat

import (
	"fmt"
	"io"

	"github.com/octoolhq/octool/internal/markdown"
)

// ConsoleRenderer writes replies to a terminal. In streaming mode deltas are
// printed raw as they arrive; in batch mode the complete reply is rendered
// as markdown when enabled.
type ConsoleRenderer struct {
	Out       io.Writer
	Markdown  *markdown.Renderer
	Streaming bool

	wrote bool
}

// Delta implements ResponseRenderer.
func (r *ConsoleRenderer) Delta(text string) {
	if !r.Streaming {
		return
	}
	fmt.Fprint(r.Out, text)
	r.wrote = true
}

// Complete implements ResponseRenderer. After a streamed reply it only
// terminates the line; deltas already painted the text.
func (r *ConsoleRenderer) Complete(text string) {
	if r.Streaming {
		if r.wrote {
			fmt.Fprintln(r.Out)
			r.wrote = false
		}
		return
	}
	if r.Markdown != nil {
		fmt.Fprintln(r.Out, r.Markdown.Render(text))
		return
	}
	fmt.Fprintln(r.Out, text)
}
