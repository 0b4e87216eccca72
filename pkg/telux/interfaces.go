package telux

// StreamBuffer is a reusable I/O buffer owned by a stream. The SDK hands buffers out
// through GetStreamBuffer and receives them back in Write/Read requests; the caller owns
// a buffer again only once its completion callback has run.
type StreamBuffer interface {
	// RawBuffer returns the backing storage, MaxSize bytes long.
	RawBuffer() []byte
	// MinSize is the preferred transfer size; 0 means no preference.
	MinSize() int
	// MaxSize is the capacity of RawBuffer.
	MaxSize() int
	// DataSize is the number of valid bytes in RawBuffer.
	DataSize() int
	SetDataSize(n int) error
	Reset()
}

// WriteCallback reports how many bytes of buffer were consumed by a playback write.
type WriteCallback func(buffer StreamBuffer, bytesWritten int, code ErrorCode)

// ReadCallback reports a completed capture read; buffer.DataSize() holds the byte count.
type ReadCallback func(buffer StreamBuffer, code ErrorCode)

// ResponseCallback reports the outcome of a request with no payload.
type ResponseCallback func(code ErrorCode)

// CreateStreamCallback delivers a created stream.
type CreateStreamCallback func(stream AudioStream, code ErrorCode)

// ServiceStatusCallback is invoked whenever the subsystem status changes.
type ServiceStatusCallback func(status ServiceStatus)

// AudioStream is the common part of every stream.
type AudioStream interface {
	ID() string
	Type() StreamType
	Config() StreamConfig
}

// PlayListener receives playback stream events.
type PlayListener interface {
	// OnReadyForWrite is sent after a short write on a compressed stream once the
	// pipeline can accept data again.
	OnReadyForWrite()
	// OnPlayStopped is sent when a StopAfterPlay request finished rendering.
	OnPlayStopped()
}

// PlayStream renders buffers written to it.
type PlayStream interface {
	AudioStream
	GetStreamBuffer() StreamBuffer
	Write(buffer StreamBuffer, cb WriteCallback) Status
	StopAudio(stopType StopType, cb ResponseCallback) Status
	RegisterListener(l PlayListener) Status
	DeregisterListener(l PlayListener) Status
}

// CaptureStream fills buffers with captured samples.
type CaptureStream interface {
	AudioStream
	GetStreamBuffer() StreamBuffer
	Read(buffer StreamBuffer, bytesToRead int, cb ReadCallback) Status
}

// VoiceStream controls an active voice path.
type VoiceStream interface {
	AudioStream
	StartAudio(cb ResponseCallback) Status
	StopAudio(cb ResponseCallback) Status
	PlayDtmfTone(tone DtmfTone, durationMs uint16, gain uint16, cb ResponseCallback) Status
	StopDtmfTone(direction StreamDirection, cb ResponseCallback) Status
}

// AudioManager creates and deletes streams once the audio service is available.
type AudioManager interface {
	ServiceStatus() ServiceStatus
	// OnServiceStatus registers cb and immediately reports the current status to it.
	OnServiceStatus(cb ServiceStatusCallback)
	CreateStream(cfg StreamConfig, cb CreateStreamCallback) Status
	DeleteStream(stream AudioStream, cb ResponseCallback) Status
}
