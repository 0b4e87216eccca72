// Package streaming moves audio between files and SDK streams with a fixed number of
// asynchronous requests in flight.
//
// Player feeds a telux.PlayStream from a Source; Recorder drains a telux.CaptureStream
// into a Sink. Both take exactly PoolSize buffers from the stream up front, keep them in
// a bufpool.Pool and reissue a buffer only after its completion callback handed it back.
// Completion callbacks run on SDK goroutines and never touch the file: they record byte
// counts and errors, and the producer goroutine acts on them. Before returning, both loops
// wait for every issued request to complete and only then close the file.
package streaming
