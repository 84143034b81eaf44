// Package transfer holds what upload and download jobs share: the per-item
// error type and the aggregate error a job returns when some items fail.
//
// A failed item that left a multipart session open carries the session
// state, so a caller can tell a resumable interruption (every failure has a
// session) from an ordinary partial failure.
package transfer
