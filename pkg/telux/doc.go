// Package telux describes the audio part of the telematics SDK as consumed by the
// samples: a manager that reports service availability and creates streams, stream
// objects with buffer-exchange and control requests, and the Status / ErrorCode pair
// every request answers with.
//
// Requests return a Status immediately. Accepted requests complete later through a
// callback invoked on a goroutine owned by the implementation, never the caller's.
package telux
