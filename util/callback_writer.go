package util

import (
	"bytes"
	"io"

	"github.com/acarl005/stripansi"
)

// CallbackWriter splits subprocess output into lines and hands each one,
// stripped of ANSI escape codes, to a callback.
type CallbackWriter struct {
	buffer   bytes.Buffer
	callback func(string)
}

// Validate that the CallbackWriter implements the io.Writer interface.
var _ io.Writer = &CallbackWriter{}

// NewCallbackWriter returns a new CallbackWriter.
func NewCallbackWriter(callback func(string)) *CallbackWriter {
	return &CallbackWriter{callback: callback}
}

// Write reads the bytes until a newline or carriage return is found. If not
// found, the bytes are buffered. If a newline or carriage return is found, the
// buffer is flushed to the callback. Empty lines are not reported.
func (w *CallbackWriter) Write(p []byte) (n int, err error) {
	for i, b := range p {
		if b == '\n' || b == '\r' {
			w.flush()
		} else {
			w.buffer.WriteByte(b)
		}
		n = i + 1
	}
	return
}

// Close flushes any trailing partial line.
func (w *CallbackWriter) Close() error {
	w.flush()
	return nil
}

func (w *CallbackWriter) flush() {
	if w.buffer.Len() == 0 {
		return
	}
	line := stripansi.Strip(w.buffer.String())
	w.buffer.Reset()
	w.callback(line)
}
