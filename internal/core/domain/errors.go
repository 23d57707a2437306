package domain

import "errors"

// Domain errors represent pipeline failures by kind.
// Adapters wrap their infrastructure errors with one of these so the
// runner can classify a failure without knowing the adapter.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRunInProgress indicates a run is already executing.
	ErrRunInProgress = errors.New("run in progress")

	// ErrPermanent marks a failure that will not go away on retry
	// (bad request, malformed payload, unknown option).
	ErrPermanent = errors.New("permanent failure")

	// Run-fatal errors.

	// ErrConfig indicates missing or invalid configuration or credentials.
	// No run is possible.
	ErrConfig = errors.New("configuration error")

	// ErrAuth indicates the remote store rejected the credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrConnect indicates the remote store could not be reached.
	ErrConnect = errors.New("connection failed")

	// Per-source errors.

	// ErrFetch indicates remote data retrieval failed.
	ErrFetch = errors.New("fetch failed")

	// ErrWrite indicates local serialisation of a table failed.
	ErrWrite = errors.New("write failed")

	// ErrTransfer indicates an upload to the remote store failed.
	ErrTransfer = errors.New("transfer failed")

	// ErrCleanup indicates a local artifact could not be removed.
	ErrCleanup = errors.New("cleanup failed")
)

// ErrorKind names an error class for reports and run history.
type ErrorKind string

// Error kinds, one per sentinel in the pipeline taxonomy.
const (
	KindNone     ErrorKind = ""
	KindConfig   ErrorKind = "ConfigError"
	KindFetch    ErrorKind = "FetchError"
	KindWrite    ErrorKind = "WriteError"
	KindAuth     ErrorKind = "AuthError"
	KindConnect  ErrorKind = "ConnectError"
	KindTransfer ErrorKind = "TransferError"
	KindCleanup  ErrorKind = "CleanupError"
	KindUnknown  ErrorKind = "Error"
)

// kindOrder is checked first to last; the first match wins.
var kindOrder = []struct {
	err  error
	kind ErrorKind
}{
	{ErrConfig, KindConfig},
	{ErrAuth, KindAuth},
	{ErrConnect, KindConnect},
	{ErrFetch, KindFetch},
	{ErrWrite, KindWrite},
	{ErrTransfer, KindTransfer},
	{ErrCleanup, KindCleanup},
}

// KindOf classifies err. It returns KindNone for nil and KindUnknown for
// errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsFatal reports whether err prevents a run from processing any source.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindAuth, KindConnect:
		return true
	default:
		return false
	}
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
