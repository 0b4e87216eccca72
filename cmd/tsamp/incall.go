package main

import (
	"context"

	"github.com/srg/tsamp/internal/session"
	"github.com/srg/tsamp/pkg/telux"
)

// startCall creates the session's voice stream from cfg and starts its audio. The app
// close stops and deletes it after the data stream is gone.
func startCall(ctx context.Context, a *app, cfg telux.StreamConfig) (telux.VoiceStream, error) {
	voice, err := a.sess.CreateVoiceStream(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.sess.StartAudio(ctx); err != nil {
		return voice, err
	}
	a.logger.WithField("stream_id", voice.ID()).Info("Voice call audio started")
	return voice, nil
}

// inCallPlayback picks the voice call and the playback stream for an in-call run.
// Proxy playback feeds the proxy microphone of an 8 kHz mono call; otherwise PCM goes
// to the uplink voice path and compressed audio keeps its own device.
func inCallPlayback(cfg telux.StreamConfig, slotID int, proxyMic bool) (call, play telux.StreamConfig, err error) {
	if proxyMic {
		play = session.ProxyPlaybackConfig()
		if cfg.Format != play.Format || cfg.SampleRate != play.SampleRate || cfg.ChannelTypeMask != play.ChannelTypeMask {
			return call, play, usageError("proxy mic playback needs 8000 Hz mono pcm, got %d Hz %s with %d channel(s)",
				cfg.SampleRate, cfg.Format, cfg.ChannelTypeMask.Count())
		}
		return session.ProxyVoiceConfig(slotID), play, nil
	}
	call = session.VoiceConfig(slotID)
	if cfg.Format.Compressed() {
		return call, cfg, nil
	}
	return call, session.InCallPlaybackConfig(cfg.SampleRate, cfg.ChannelTypeMask), nil
}
