// Package pool recycles fixed size byte buffers between concurrent
// transfers to reduce allocations.
package pool
