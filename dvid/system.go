package dvid

import "sync/atomic"

var denyRequests int32 // default 0 = allow requests

// AllowRequests sets the process to accept new re-segmentation requests.
func AllowRequests() {
	atomic.StoreInt32(&denyRequests, 0)
}

// DenyRequests sets the process to refuse new requests, e.g., during shutdown.
func DenyRequests() {
	atomic.StoreInt32(&denyRequests, 1)
}

// RequestsOK returns true if requests should be processed.
func RequestsOK() bool {
	return atomic.LoadInt32(&denyRequests) == 0
}
