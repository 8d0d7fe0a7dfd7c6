// Package tokens provides pre-flight token estimation for outbound
// generative-AI requests.
//
// The estimate is consulted by the key pool before a credential is
// checked out: a request whose estimated tokens would push a key past
// its per-minute token budget is not admitted on that key. Only the
// pre-flight check uses the estimate; actual consumption is reported
// back after the response arrives and always wins.
//
// # Accuracy
//
// The heuristic divides the character count by four and adds one.
// Sub-word tokenizers used by the major providers average close to
// four characters per token for English prose, so the estimate lands
// within a few percent for typical prompts. Coarser ratios (dividing
// by 2.5 or 3) overestimate heavily and starve per-minute capacity
// that the real calls would never have consumed.
//
// # Usage
//
//	est := tokens.Estimate(prompt)
//	lease, ok := pool.Checkout(keypool.TierFlash, est)
package tokens
