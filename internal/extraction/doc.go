// Package extraction turns buffered transcript fragments into task
// candidates via a rate-limited LLM call.
//
// The package supports:
//   - Fragment accumulation with an intent-signal latch and a minimum
//     inter-call interval
//   - A single-flight guard so at most one provider call is outstanding
//   - Anthropic and OpenAI chat providers with client-side rate limiting
//   - Recovery of individually well-formed task objects from malformed
//     or truncated model output
//   - Deadline normalization against the meeting date
//
// # Architecture
//
// The main components are:
//   - Buffer: owns fragment state, readiness gating, and backoff
//   - Provider: one request/response extraction call against an LLM API
//   - parseTaskJSON: fence-stripping JSON parse with partial salvage
//
// # Usage
//
// Create a buffer over a configured provider:
//
//	provider, err := extraction.NewProvider(cfg)
//	buf := extraction.NewBuffer(provider, gate, logger)
//
// Feed fragments and attempt cycles:
//
//	buf.AddFragment("Dana will send the draft by Friday.")
//	res, err := buf.Attempt(ctx)
//
// A nil result with nil error means the buffer held the call (no intent
// signal, interval not elapsed, call already in flight, or nothing
// buffered).
package extraction
