// Package batchcopy implements remote-to-remote bulk copies.
//
// A copy mapping is cut into batches that are flushed once they hold more
// than the configured concurrency. Each batch is executed as a unit; failed
// items are collected and the engine moves on to the next batch. After a
// pass, only the failed items are copied again, for at most two more passes.
package batchcopy
