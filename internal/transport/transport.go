package transport

import "context"

// Callbacks are the typed slots a transport operation reports through.
// They are invoked from the transport's own goroutine; consumers must
// re-enter their own serialization point before touching shared state.
type Callbacks struct {
	// OnProgress is called after each chunk is written. bytesExpected is
	// -1 when the total size is unknown.
	OnProgress func(bytesWritten, bytesExpected int64)

	// OnError is called at most once, terminally.
	OnError func(err error)

	// OnFinished is called at most once with the path of the temporary
	// file holding the transferred bytes. The consumer owns the file.
	OnFinished func(tempPath string)
}

// Handle controls one in-flight transfer.
type Handle interface {
	// Suspend stops byte flow while retaining the underlying resources.
	Suspend()

	// Resume restarts byte flow after a Suspend.
	Resume()

	// Cancel aborts the transfer. No callback fires after Cancel returns
	// other than a possible OnError for the abort itself.
	Cancel()
}

// Transport starts byte transfers. The engine treats it purely as an
// opaque byte-mover.
type Transport interface {
	Start(ctx context.Context, url string, cb Callbacks) (Handle, error)
}
