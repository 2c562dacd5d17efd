package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes events to an io.Writer, either as human-readable
// key=value lines or as JSON Lines.
type LogEmitter struct {
	w        io.Writer
	jsonMode bool
}

// NewLogEmitter builds a LogEmitter. A nil writer defaults to os.Stderr,
// matching where a CLI-style host usually wants its diagnostics to go.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stderr
	}
	return &LogEmitter{w: w, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(e Event) {
	if l.jsonMode {
		b, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(l.w, "emit: marshal error: %v\n", err)
			return
		}
		fmt.Fprintln(l.w, string(b))
		return
	}
	fmt.Fprintf(l.w, "[%s] user=%s workflow=%s step=%s meta=%v\n", e.Msg, e.UserID, e.WorkflowID, e.StepID, e.Meta)
}

func (l *LogEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Emit(e)
	}
	return nil
}

func (l *LogEmitter) Flush(context.Context) error {
	if f, ok := l.w.(interface{ Sync() error }); ok {
		return f.Sync()
	}
	return nil
}
