package telux

import (
	"errors"
	"fmt"
)

// StreamType identifies what an audio stream is used for.
type StreamType int

const (
	StreamNone StreamType = iota
	StreamVoiceCall
	StreamPlay
	StreamCapture
	StreamLoopback
	StreamToneGenerator
)

func (t StreamType) String() string {
	switch t {
	case StreamVoiceCall:
		return "voice_call"
	case StreamPlay:
		return "play"
	case StreamCapture:
		return "capture"
	case StreamLoopback:
		return "loopback"
	case StreamToneGenerator:
		return "tone_generator"
	case StreamNone:
		return "none"
	default:
		return fmt.Sprintf("stream_type(%d)", int(t))
	}
}

// AudioFormat is the encoding of samples carried by a stream.
type AudioFormat int

const (
	FormatUnknown AudioFormat = iota
	FormatPCM16Signed
	FormatAMRNB
	FormatAMRWB
	FormatAMRWBPlus
)

func (f AudioFormat) String() string {
	switch f {
	case FormatPCM16Signed:
		return "pcm_16bit_signed"
	case FormatAMRNB:
		return "amrnb"
	case FormatAMRWB:
		return "amrwb"
	case FormatAMRWBPlus:
		return "amrwb_plus"
	default:
		return "unknown"
	}
}

// Compressed reports whether the format is a codec bitstream rather than raw PCM.
func (f AudioFormat) Compressed() bool {
	return f == FormatAMRNB || f == FormatAMRWB || f == FormatAMRWBPlus
}

// DeviceType is a sink or source endpoint.
type DeviceType int

const (
	DeviceNone         DeviceType = -1
	DeviceSpeaker      DeviceType = 1
	DeviceSpeaker2     DeviceType = 2
	DeviceSpeaker3     DeviceType = 3
	DeviceBTSCOSpeaker DeviceType = 4
	DeviceProxySpeaker DeviceType = 5
	DeviceMic          DeviceType = 257
	DeviceMic2         DeviceType = 258
	DeviceMic3         DeviceType = 259
	DeviceBTSCOMic     DeviceType = 260
	DeviceProxyMic     DeviceType = 261
)

// IsSink reports whether audio flows out of the device (RX).
func (d DeviceType) IsSink() bool {
	return d >= DeviceSpeaker && d <= DeviceProxySpeaker
}

// IsSource reports whether audio flows into the device (TX).
func (d DeviceType) IsSource() bool {
	return d >= DeviceMic && d <= DeviceProxyMic
}

func (d DeviceType) String() string {
	switch d {
	case DeviceSpeaker, DeviceSpeaker2, DeviceSpeaker3:
		return "speaker"
	case DeviceBTSCOSpeaker:
		return "bt_sco_speaker"
	case DeviceProxySpeaker:
		return "proxy_speaker"
	case DeviceMic, DeviceMic2, DeviceMic3:
		return "mic"
	case DeviceBTSCOMic:
		return "bt_sco_mic"
	case DeviceProxyMic:
		return "proxy_mic"
	default:
		return "none"
	}
}

// ChannelType is a bitmask of channels.
type ChannelType int

const (
	ChannelLeft  ChannelType = 1 << 0
	ChannelRight ChannelType = 1 << 1
)

// Count returns the number of channels set in the mask.
func (c ChannelType) Count() int {
	n := 0
	if c&ChannelLeft != 0 {
		n++
	}
	if c&ChannelRight != 0 {
		n++
	}
	return n
}

// StreamDirection selects the RX (towards the user) or TX (towards the network) path.
type StreamDirection int

const (
	DirectionNone StreamDirection = -1
	DirectionRX   StreamDirection = 1
	DirectionTX   StreamDirection = 2
)

// StopType selects how a playback stream stops.
type StopType int

const (
	// StopForce discards any queued data.
	StopForce StopType = iota
	// StopAfterPlay stops once every queued buffer has been rendered.
	StopAfterPlay
)

// AmrwbpFrameFormat is the framing of an AMR-WB+ bitstream.
type AmrwbpFrameFormat int

const (
	AmrwbpUnknown AmrwbpFrameFormat = iota - 1
	AmrwbpTransportInterface
	AmrwbpFileStorage
)

// AmrwbpParams carries AMR-WB+ specific stream parameters.
type AmrwbpParams struct {
	FrameFormat AmrwbpFrameFormat
}

// DtmfLowFreq is a DTMF row frequency in Hz.
type DtmfLowFreq uint16

const (
	DtmfLow697 DtmfLowFreq = 697
	DtmfLow770 DtmfLowFreq = 770
	DtmfLow852 DtmfLowFreq = 852
	DtmfLow941 DtmfLowFreq = 941
)

// Valid reports whether f is one of the four DTMF row frequencies.
func (f DtmfLowFreq) Valid() bool {
	switch f {
	case DtmfLow697, DtmfLow770, DtmfLow852, DtmfLow941:
		return true
	}
	return false
}

// DtmfHighFreq is a DTMF column frequency in Hz.
type DtmfHighFreq uint16

const (
	DtmfHigh1209 DtmfHighFreq = 1209
	DtmfHigh1336 DtmfHighFreq = 1336
	DtmfHigh1477 DtmfHighFreq = 1477
	DtmfHigh1633 DtmfHighFreq = 1633
)

// Valid reports whether f is one of the four DTMF column frequencies.
func (f DtmfHighFreq) Valid() bool {
	switch f {
	case DtmfHigh1209, DtmfHigh1336, DtmfHigh1477, DtmfHigh1633:
		return true
	}
	return false
}

// DtmfTone is one DTMF digit on a voice stream.
type DtmfTone struct {
	Direction StreamDirection
	LowFreq   DtmfLowFreq
	HighFreq  DtmfHighFreq
}

// StreamConfig describes the stream to create.
//
// For StreamPlay a single sink device is expected, for StreamCapture a single
// source device. Voice and loopback streams take the sink first, then the source.
//
// A play or capture stream with VoicePaths attaches to the active voice call instead
// of a device: TX injects into the uplink, RX taps the downlink.
type StreamConfig struct {
	Type            StreamType
	SlotID          int
	SampleRate      uint32
	Format          AudioFormat
	ChannelTypeMask ChannelType
	DeviceTypes     []DeviceType
	VoicePaths      []StreamDirection
	Amrwbp          *AmrwbpParams
}

// InCall reports whether the stream needs a started voice call: it uses voice paths or
// a proxy device.
func (c StreamConfig) InCall() bool {
	if c.Type == StreamVoiceCall {
		return false
	}
	if len(c.VoicePaths) > 0 {
		return true
	}
	for _, d := range c.DeviceTypes {
		if d == DeviceProxySpeaker || d == DeviceProxyMic {
			return true
		}
	}
	return false
}

// ErrInvalidConfig is wrapped by every StreamConfig.Validate failure.
var ErrInvalidConfig = errors.New("invalid stream config")

// Validate checks the fields every backend relies on.
func (c StreamConfig) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c StreamConfig) validate() error {
	switch c.Type {
	case StreamPlay, StreamCapture, StreamVoiceCall, StreamLoopback, StreamToneGenerator:
	default:
		return fmt.Errorf("unsupported stream type %s", c.Type)
	}
	if len(c.VoicePaths) > 0 {
		if c.Type != StreamPlay && c.Type != StreamCapture {
			return fmt.Errorf("%s stream can't use voice paths", c.Type)
		}
		for _, path := range c.VoicePaths {
			if path != DirectionRX && path != DirectionTX {
				return fmt.Errorf("voice path must be rx or tx, got %d", path)
			}
		}
	} else if len(c.DeviceTypes) == 0 {
		return fmt.Errorf("%s stream needs at least one device", c.Type)
	}
	if len(c.DeviceTypes) > 0 {
		switch c.Type {
		case StreamPlay, StreamToneGenerator:
			if !c.DeviceTypes[0].IsSink() {
				return fmt.Errorf("%s stream needs a sink device, got %s", c.Type, c.DeviceTypes[0])
			}
		case StreamCapture:
			if !c.DeviceTypes[0].IsSource() {
				return fmt.Errorf("%s stream needs a source device, got %s", c.Type, c.DeviceTypes[0])
			}
		}
	}
	if c.Format == FormatAMRWBPlus && c.Amrwbp == nil {
		return fmt.Errorf("amrwb_plus stream needs frame format parameters")
	}
	if !c.Format.Compressed() && c.Type != StreamVoiceCall && c.SampleRate == 0 {
		return fmt.Errorf("%s stream needs a sample rate", c.Type)
	}
	return nil
}
