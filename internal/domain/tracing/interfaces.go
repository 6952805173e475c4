package tracing

import "context"

// Transaction is a unit of traced background work
type Transaction interface {
	// Context carries the Transaction; derived from the context the Transaction was started with
	Context() context.Context
	SetLabel(key string, value string)
	SetResult(result string)
	CaptureError(err error)
	End()
}

type Tracer interface {
	BackgroundTx(ctx context.Context, name string) Transaction
}
