// Package batch coalesces requests issued close together into grouped batches.
//
// The first Submit after an idle period opens a collection window. When the
// window closes, every request collected so far is handed to the processing
// function, split into sub-batches of at most MaxBatchSize entries that run
// concurrently. Requests submitted while a flush is in progress start a new
// window and never join the in-flight batch.
package batch
