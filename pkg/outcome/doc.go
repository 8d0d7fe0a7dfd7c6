// Package outcome classifies external call results into the reports a
// key pool caller should make.
//
// # Overview
//
// The pool never sees HTTP responses; it only hears usage, failure,
// and fatal reports. This package is the caller-side bridge: Classify
// turns a status code, error body, and transport error into an
// Outcome, and Report applies that Outcome to a held lease.
//
// # Usage
//
//	resp, err := client.Do(req)
//	var status int
//	var body []byte
//	if err == nil {
//		status = resp.StatusCode
//		body, _ = io.ReadAll(resp.Body)
//		resp.Body.Close()
//	}
//
//	o := outcome.Classify(status, body, err)
//	if rerr := outcome.Report(pool, lease, o, usedTokens); rerr != nil {
//		log.Error("report failed", "error", rerr)
//	}
//
// Rate limits (429) and timeouts strike the key; server errors and
// transport noise do not; API_KEY_INVALID and PERMISSION_DENIED bodies
// retire it.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package outcome
