package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/sigtui/internal/bus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Bus event kinds published by the client.
const (
	EventEnvelope     = "signal.envelope"
	EventDisconnected = "signal.disconnected"
)

const (
	defaultTimeout = 30 * time.Second
	maxLineSize    = 16 << 20
)

// Options selects the signal-cli binary and account.
type Options struct {
	Binary    string
	ConfigDir string
	// Account is the E.164 number to run as. Empty runs signal-cli in
	// multi-account mode, which is enough for linking and listAccounts.
	Account string
	Timeout time.Duration
}

// Args returns the signal-cli command line, without the binary.
func (o Options) Args() []string {
	var args []string
	if o.ConfigDir != "" {
		args = append(args, "--config", o.ConfigDir)
	}
	if o.Account != "" {
		args = append(args, "-a", o.Account)
	}
	return append(args, "jsonRpc")
}

// Client speaks line-delimited JSON-RPC 2.0 with a signal-cli child process.
// Inbound envelopes are published on the bus; calls are safe for concurrent use.
type Client struct {
	opts    Options
	bus     *bus.Bus
	logger  *zap.Logger
	timeout time.Duration

	// wmu serializes request lines on w; mu guards everything else so a
	// stalled write never holds up response routing.
	wmu     sync.Mutex
	mu      sync.Mutex
	w       io.WriteCloser
	pending map[string]chan *message
	closed  bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewClient creates a client. Connect starts the process.
func NewClient(opts Options, b *bus.Bus, logger *zap.Logger) *Client {
	if opts.Binary == "" {
		opts.Binary = "signal-cli"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		opts:    opts,
		bus:     b,
		logger:  logger.Named("signal"),
		timeout: timeout,
		pending: make(map[string]chan *message),
		done:    make(chan struct{}),
	}
}

// Connect spawns signal-cli in jsonRpc mode and starts reading its output.
func (c *Client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, c.opts.Binary, c.opts.Args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", c.opts.Binary, err)
	}
	c.logger.Info("signal-cli started",
		zap.String("binary", c.opts.Binary),
		zap.String("account", c.opts.Account),
		zap.Int("pid", cmd.Process.Pid),
	)
	c.run(runCtx, cancel, stdin, stdout, stderr, cmd.Wait)
	return nil
}

// run wires the client to a process's pipes. wait may be nil.
func (c *Client) run(ctx context.Context, cancel context.CancelFunc, stdin io.WriteCloser, stdout, stderr io.Reader, wait func() error) {
	c.mu.Lock()
	c.w = stdin
	c.cancel = cancel
	c.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(stdout) })
	if stderr != nil {
		g.Go(func() error { return c.drain(stderr) })
	}
	go func() {
		err := g.Wait()
		if wait != nil {
			err = errors.Join(err, wait())
		}
		c.shutdown(err)
	}()
}

func (c *Client) readLoop(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		c.dispatch(sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stdout: %w", err)
	}
	return nil
}

func (c *Client) drain(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		c.logger.Debug("signal-cli stderr", zap.String("line", sc.Text()))
	}
	return nil
}

func (c *Client) dispatch(line []byte) {
	if len(line) == 0 {
		return
	}
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		c.logger.Warn("malformed line from signal-cli", zap.Error(err))
		return
	}
	if msg.isResponse() {
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("response for unknown call", zap.String("id", msg.ID))
			return
		}
		ch <- &msg
		return
	}
	if msg.Method != "receive" {
		return
	}
	var in incoming
	if err := json.Unmarshal(msg.Params, &in); err != nil || in.Envelope == nil {
		c.logger.Debug("dropping unreadable envelope", zap.Error(err))
		return
	}
	c.bus.Emit(EventEnvelope, in.Envelope)
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	close(c.done)

	if err != nil {
		c.logger.Warn("signal-cli exited", zap.Error(err))
	} else {
		c.logger.Info("signal-cli exited")
	}
	c.bus.Emit(EventDisconnected, err)
}

// Done is closed once the signal-cli process has gone away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops signal-cli. Closing stdin lets it exit on its own; the
// process is killed if it is still running after two seconds.
func (c *Client) Close() error {
	c.mu.Lock()
	w, cancel := c.w, c.cancel
	c.mu.Unlock()
	if w == nil {
		return nil
	}
	_ = w.Close()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		if cancel != nil {
			cancel()
		}
		<-c.done
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	return c.callTimeout(ctx, c.timeout, method, params, out)
}

// callTimeout sends one request and waits for its response. A zero timeout
// waits for as long as ctx allows.
func (c *Client) callTimeout(ctx context.Context, timeout time.Duration, method string, params, out any) error {
	id := uuid.NewString()
	data, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	data = append(data, '\n')

	ch := make(chan *message, 1)
	c.mu.Lock()
	if c.closed || c.w == nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	w := c.w
	c.mu.Unlock()

	c.wmu.Lock()
	_, err = w.Write(data)
	c.wmu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("write %s: %w", method, err)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-expired:
		c.forget(id)
		return fmt.Errorf("%s: %w", method, ErrTimeout)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
