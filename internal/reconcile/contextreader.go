package reconcile

import (
	"context"
	"io"
)

// contextReader is an io.Reader that is Context-aware for mid-transfer
// cancellation.
type contextReader struct {
	ctx    context.Context //nolint:containedctx
	reader io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, context.Canceled
	default:
		return cr.reader.Read(p) //nolint:wrapcheck
	}
}
