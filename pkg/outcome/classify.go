package outcome

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"workbench-hq/keywarden/pkg/keypool"
)

// Outcome is the report a caller should make after an external call.
type Outcome string

const (
	// Success means the call completed and consumed quota. Report it
	// with the tokens the response said were used.
	Success Outcome = "success"

	// InfoFailure means the call failed for reasons unrelated to the
	// key's health: transport hiccups, server errors, malformed
	// payloads. It carries no strike.
	InfoFailure Outcome = "info_failure"

	// KeyFailure means the key itself is struggling (rate limited or
	// timing out) and should take a strike.
	KeyFailure Outcome = "key_failure"

	// Fatal means the provider rejected the credential. The key is
	// dead for the rest of the session.
	Fatal Outcome = "fatal"
)

// Provider error markers that identify a dead credential. They appear
// in the JSON error body of 400 and 403 responses.
const (
	MarkerAPIKeyInvalid    = "API_KEY_INVALID"
	MarkerPermissionDenied = "PERMISSION_DENIED"
)

// Classify maps a transport result to the report the caller should
// make. err is the transport error, if any; statusCode and body are
// consulted only when err is nil. Classify never reads a success body;
// callers that fail to parse one should report InfoFailure themselves.
func Classify(statusCode int, body []byte, err error) Outcome {
	if err != nil {
		if isTimeout(err) {
			return KeyFailure
		}
		return InfoFailure
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return Success

	case statusCode == http.StatusTooManyRequests:
		return KeyFailure

	case statusCode == http.StatusBadRequest, statusCode == http.StatusForbidden:
		if bytes.Contains(body, []byte(MarkerAPIKeyInvalid)) ||
			bytes.Contains(body, []byte(MarkerPermissionDenied)) {
			return Fatal
		}
		return InfoFailure

	default:
		// Other 4xx and all 5xx: the key is fine, the request or the
		// provider is not.
		return InfoFailure
	}
}

// isTimeout reports whether err is a deadline or network timeout. Slow
// responses count against the key because the provider throttles by
// stalling as well as by refusing.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Report settles the lease on the pool according to the outcome.
// tokensConsumed is read only for Success.
func Report(pool *keypool.Pool, lease *keypool.Lease, o Outcome, tokensConsumed int) error {
	switch o {
	case Success:
		return pool.ReportUsage(lease, tokensConsumed)
	case InfoFailure:
		return pool.ReportFailure(lease, true)
	case KeyFailure:
		return pool.ReportFailure(lease, false)
	case Fatal:
		return pool.ReportFatal(lease)
	default:
		return fmt.Errorf("unknown outcome %q", o)
	}
}
