package session

import "github.com/srg/tsamp/pkg/telux"

// DefaultSlotID is the SIM slot voice streams attach to.
const DefaultSlotID = 1

// PlaybackConfig is a PCM playback stream on the speaker.
func PlaybackConfig(sampleRate uint32, channels telux.ChannelType) telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamPlay,
		SampleRate:      sampleRate,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: channels,
		DeviceTypes:     []telux.DeviceType{telux.DeviceSpeaker},
	}
}

// RingtoneConfig plays an in-band ringtone to a Bluetooth hands-free unit: 8 kHz mono PCM
// on the BT SCO speaker.
func RingtoneConfig() telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamPlay,
		SampleRate:      8000,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: telux.ChannelLeft,
		DeviceTypes:     []telux.DeviceType{telux.DeviceBTSCOSpeaker},
	}
}

// AMRWBPlusConfig is compressed AMR-WB+ playback of a file storage format bitstream.
func AMRWBPlusConfig() telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamPlay,
		SampleRate:      16000,
		Format:          telux.FormatAMRWBPlus,
		ChannelTypeMask: telux.ChannelLeft,
		DeviceTypes:     []telux.DeviceType{telux.DeviceSpeaker},
		Amrwbp:          &telux.AmrwbpParams{FrameFormat: telux.AmrwbpFileStorage},
	}
}

// CaptureConfig is PCM capture from the microphone.
func CaptureConfig(sampleRate uint32, channels telux.ChannelType) telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamCapture,
		SampleRate:      sampleRate,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: channels,
		DeviceTypes:     []telux.DeviceType{telux.DeviceMic},
	}
}

// VoiceConfig is a voice call stream between speaker and microphone.
func VoiceConfig(slotID int) telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamVoiceCall,
		SlotID:          slotID,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: telux.ChannelLeft | telux.ChannelRight,
		DeviceTypes:     []telux.DeviceType{telux.DeviceSpeaker, telux.DeviceMic},
	}
}

// InCallPlaybackConfig injects PCM into the uplink of a started voice call.
func InCallPlaybackConfig(sampleRate uint32, channels telux.ChannelType) telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamPlay,
		SampleRate:      sampleRate,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: channels,
		VoicePaths:      []telux.StreamDirection{telux.DirectionTX},
	}
}

// InCallCaptureConfig records the downlink of a started voice call.
func InCallCaptureConfig(sampleRate uint32, channels telux.ChannelType) telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamCapture,
		SampleRate:      sampleRate,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: channels,
		VoicePaths:      []telux.StreamDirection{telux.DirectionRX},
	}
}

// ProxyVoiceConfig is an 8 kHz mono voice call whose uplink is fed from the proxy
// microphone instead of the handset microphone.
func ProxyVoiceConfig(slotID int) telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamVoiceCall,
		SlotID:          slotID,
		SampleRate:      8000,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: telux.ChannelLeft,
		DeviceTypes:     []telux.DeviceType{telux.DeviceSpeaker, telux.DeviceProxyMic},
	}
}

// ProxyPlaybackConfig plays 8 kHz mono PCM to the proxy speaker, which loops into the
// proxy microphone of a ProxyVoiceConfig call.
func ProxyPlaybackConfig() telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamPlay,
		SampleRate:      8000,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: telux.ChannelLeft,
		DeviceTypes:     []telux.DeviceType{telux.DeviceProxySpeaker},
	}
}
