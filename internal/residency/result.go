package residency

// TransferStatus classifies the outcome of a device transfer attempt.
type TransferStatus string

const (
	// TransferOK: the instance (or at least one component) moved.
	TransferOK TransferStatus = "ok"
	// TransferFailed: the underlying transfer reported an error. For
	// evictions the handle is still accounted as freed; see Handle.Evict.
	TransferFailed TransferStatus = "transfer_failed"
	// TransferUnsupported: the instance exposes no transfer capability.
	TransferUnsupported TransferStatus = "unsupported"
)

// TransferResult carries the outcome of an evict or reload so the
// assume-freed policy is a visible decision rather than a swallowed error.
type TransferResult struct {
	Status     TransferStatus
	BytesFreed int64
	Err        error
}
