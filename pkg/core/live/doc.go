// Package live implements the real-time voice loop: microphone capture framed
// into fixed-size pushes, model speech scheduled gaplessly on an output clock,
// and barge-in that drops everything queued.
//
// # Playback
//
// Speech arrives as a stream of PCM chunks. Each chunk starts where the
// previous one ends, or at the current output time if playback fell behind:
//
//	start = max(nextStart, out.Now())
//	nextStart = start + duration
//
// When the model reports an interruption, all scheduled chunks are stopped and
// nextStart rewinds to zero so the reply that follows starts immediately.
//
// # Connection lifecycle
//
//	idle → connecting → open → closed
//	           │          │
//	           └──────────┴──→ errored
//
// Start acquires capture, output and the vendor session in order; a failure at
// any step releases what was acquired. Teardown is idempotent.
package live
