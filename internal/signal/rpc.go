package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by calls made after, or pending when, the
	// signal-cli process went away.
	ErrClosed = errors.New("signal-cli connection closed")
	// ErrTimeout is returned when signal-cli does not answer a call in time.
	ErrTimeout = errors.New("signal-cli call timed out")
)

// RPCError is an error object returned by signal-cli.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("signal-cli error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// message is any line signal-cli writes: a response carries an id, a
// notification carries a method.
type message struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

func (m *message) isResponse() bool {
	return m.ID != "" && m.Method == ""
}
