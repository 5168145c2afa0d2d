package eval

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
)

// StdoutEmitter writes outcomes as JSON lines, flushing after each one.
type StdoutEmitter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

// NewStdoutEmitter returns an emitter writing to w (normally os.Stdout).
func NewStdoutEmitter(w io.Writer) *StdoutEmitter {
	bw := bufio.NewWriter(w)
	return &StdoutEmitter{w: bw, enc: json.NewEncoder(bw)}
}

// Emit writes one outcome.
func (e *StdoutEmitter) Emit(o EvaluationQueryOutcome) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enc.Encode(o); err != nil {
		return err
	}
	return e.w.Flush()
}
