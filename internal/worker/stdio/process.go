package stdio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/pubctl/internal/backchannel"
	"github.com/HyphaGroup/pubctl/internal/launcher"
	"github.com/HyphaGroup/pubctl/internal/logger"
	"github.com/HyphaGroup/pubctl/internal/worker"
)

// process is a running worker with two single-shot futures: hsDone fires
// when the handshake settles, exited when the worker has been reaped.
type process struct {
	exec             *launcher.InteractiveExec
	stdout           *drainOnClose
	kill             context.CancelFunc
	launcher         launcher.Launcher
	handshakeTimeout time.Duration

	hsDone  chan struct{}
	session *backchannel.Client
	hsErr   error

	exited   chan struct{}
	exitCode int
	exitErr  error
}

var _ worker.Process = (*process)(nil)

func newProcess(exec *launcher.InteractiveExec, kill context.CancelFunc, l launcher.Launcher, handshakeTimeout time.Duration) *process {
	return &process{
		exec:             exec,
		stdout:           &drainOnClose{r: exec.Stdout},
		kill:             kill,
		launcher:         l,
		handshakeTimeout: handshakeTimeout,
		hsDone:           make(chan struct{}),
		exited:           make(chan struct{}),
	}
}

func (p *process) handshake(ctx context.Context, clientVersion string) {
	transport := &mcp.IOTransport{
		Reader: p.stdout,
		Writer: p.exec.Stdin,
	}
	p.session, p.hsErr = backchannel.Dial(ctx, transport, clientVersion)
	close(p.hsDone)
}

func (p *process) reap() {
	p.exitCode, p.exitErr = p.exec.Wait()
	close(p.exited)
	_ = p.launcher.Close()
	p.kill()
}

// Session waits for the handshake, the worker's exit, the optional
// handshake timeout or cancellation, whichever comes first.
func (p *process) Session(ctx context.Context) (backchannel.Session, error) {
	var timeout <-chan time.Time
	if p.handshakeTimeout > 0 {
		timer := time.NewTimer(p.handshakeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-p.hsDone:
		if p.hsErr != nil {
			p.abandon()
			return nil, &worker.HandshakeError{Err: p.hsErr}
		}
		return p.session, nil

	case <-p.exited:
		select {
		case <-p.hsDone:
			if p.hsErr == nil {
				return p.session, nil
			}
		default:
		}
		p.abandon()
		return nil, &worker.HandshakeError{Exited: true, ExitCode: p.exitCode, Err: p.exitErr}

	case <-timeout:
		logger.WarnContext(ctx, "worker handshake timed out", "timeout", p.handshakeTimeout)
		p.abandon()
		p.kill()
		return nil, &worker.HandshakeError{Err: worker.ErrHandshakeTimeout}

	case <-ctx.Done():
		p.kill()
		return nil, ctx.Err()
	}
}

// Wait returns the worker's exit code. Cancelling ctx kills the worker.
func (p *process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.exited:
		return p.exitCode, p.exitErr
	case <-ctx.Done():
		p.kill()
		return -1, ctx.Err()
	}
}

// abandon closes our side of the pipes so the worker sees EOF on stdin.
func (p *process) abandon() {
	if p.exec.Stdin != nil {
		_ = p.exec.Stdin.Close()
	}
	_ = p.stdout.Close()
}

// drainOnClose keeps reading the worker's stdout after the session lets go
// of it, so the worker never blocks writing and its exit status is not
// masked by a broken pipe.
type drainOnClose struct {
	r    io.ReadCloser
	once sync.Once
}

func (d *drainOnClose) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

func (d *drainOnClose) Close() error {
	d.once.Do(func() {
		go func() {
			_, _ = io.Copy(io.Discard, d.r)
			_ = d.r.Close()
		}()
	})
	return nil
}
