package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
)

const copyBufferSize = 32 * 1024

// HTTPTransport moves bytes over HTTP into temporary files.
type HTTPTransport struct {
	client  *http.Client
	tempDir string
	logger  *slog.Logger
}

// NewHTTP creates an HTTPTransport writing temp files under tempDir.
func NewHTTP(client *http.Client, tempDir string, logger *slog.Logger) *HTTPTransport {
	return &HTTPTransport{
		client:  client,
		tempDir: tempDir,
		logger:  logger,
	}
}

// Start begins transferring url in a new goroutine and returns its
// handle immediately. Failures after Start are reported via cb.OnError.
func (t *HTTPTransport) Start(ctx context.Context, url string, cb Callbacks) (Handle, error) {
	runCtx, cancel := context.WithCancel(ctx)
	h := newHTTPHandle(cancel)

	go t.run(runCtx, url, cb, h)
	return h, nil
}

func (t *HTTPTransport) run(ctx context.Context, url string, cb Callbacks, h *httpHandle) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cb.OnError(fmt.Errorf("create request: %w", err))
		return
	}

	resp, err := t.client.Do(req)
	if err != nil {
		cb.OnError(fmt.Errorf("request failed: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cb.OnError(fmt.Errorf("bad status: %s", resp.Status))
		return
	}

	tmp, err := os.CreateTemp(t.tempDir, "download-*")
	if err != nil {
		cb.OnError(fmt.Errorf("create temp file: %w", err))
		return
	}

	written, err := t.copy(ctx, tmp, resp.Body, resp.ContentLength, cb, h)
	closeErr := tmp.Close()

	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		cb.OnError(fmt.Errorf("transfer failed: %w", err))
		return
	}

	t.logger.Debug("transfer finished",
		"url", url,
		"bytes", written,
		"temp_path", tmp.Name(),
	)
	cb.OnFinished(tmp.Name())
}

func (t *HTTPTransport) copy(ctx context.Context, dst *os.File, src io.Reader, expected int64, cb Callbacks, h *httpHandle) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if err := h.waitIfSuspended(ctx); err != nil {
			return total, err
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				total += int64(nw)
			}
			if werr != nil {
				return total, werr
			}
			if nr != nw {
				return total, io.ErrShortWrite
			}
			if cb.OnProgress != nil {
				cb.OnProgress(total, expected)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

// httpHandle implements Handle over a cancellable context plus a gate
// channel that the copy loop parks on while suspended.
type httpHandle struct {
	cancelCtx context.CancelFunc

	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

func newHTTPHandle(cancel context.CancelFunc) *httpHandle {
	return &httpHandle{cancelCtx: cancel}
}

func (h *httpHandle) Suspend() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.paused {
		h.paused = true
		h.resumed = make(chan struct{})
	}
}

func (h *httpHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.paused {
		h.paused = false
		close(h.resumed)
	}
}

func (h *httpHandle) Cancel() {
	h.cancelCtx()
}

func (h *httpHandle) waitIfSuspended(ctx context.Context) error {
	h.mu.Lock()
	if !h.paused {
		h.mu.Unlock()
		return nil
	}
	resumed := h.resumed
	h.mu.Unlock()

	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
