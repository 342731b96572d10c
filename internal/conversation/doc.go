// Package conversation runs the turn-taking loop between a user and a reply
// backend over a single session transcript.
//
// A Controller admits at most one turn at a time. Submit appends the user's
// message, raises the transcript's pending flag and asks the backend for a
// reply on its own goroutine, so callers never block on generation. When the
// backend finishes the reply is appended and pending is cleared. A failed
// turn (error, timeout, cancellation, malformed reply or panic) appends a
// system notice instead. Pending is never left set.
//
// Presentation layers observe the transcript through Transcript().Subscribe
// and forward user input to Submit.
package conversation
