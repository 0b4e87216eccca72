package simaudio_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/tsamp/internal/simaudio"
	"github.com/srg/tsamp/pkg/telux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second

func playConfig() telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamPlay,
		SampleRate:      8000,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: telux.ChannelLeft,
		DeviceTypes:     []telux.DeviceType{telux.DeviceSpeaker},
	}
}

func captureConfig() telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamCapture,
		SampleRate:      8000,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: telux.ChannelLeft,
		DeviceTypes:     []telux.DeviceType{telux.DeviceMic},
	}
}

func voiceConfig() telux.StreamConfig {
	return telux.StreamConfig{
		Type:            telux.StreamVoiceCall,
		SlotID:          1,
		Format:          telux.FormatPCM16Signed,
		ChannelTypeMask: telux.ChannelLeft | telux.ChannelRight,
		DeviceTypes:     []telux.DeviceType{telux.DeviceSpeaker, telux.DeviceMic},
	}
}

// await receives one value or fails the test.
func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("callback did not arrive")
		var zero T
		return zero
	}
}

type ManagerTestSuite struct {
	suite.Suite
	mgr *simaudio.Manager
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (s *ManagerTestSuite) SetupTest() {
	s.mgr = simaudio.New(simaudio.Options{})
}

func (s *ManagerTestSuite) TearDownTest() {
	s.Require().NoError(s.mgr.Close())
}

func (s *ManagerTestSuite) create(cfg telux.StreamConfig) telux.AudioStream {
	type created struct {
		stream telux.AudioStream
		code   telux.ErrorCode
	}
	ch := make(chan created, 1)
	status := s.mgr.CreateStream(cfg, func(st telux.AudioStream, code telux.ErrorCode) {
		ch <- created{st, code}
	})
	s.Require().Equal(telux.StatusSuccess, status, "create request MUST be accepted")
	res := await(s.T(), ch)
	s.Require().Equal(telux.ErrorCodeSuccess, res.code)
	s.Require().NotNil(res.stream)
	return res.stream
}

func (s *ManagerTestSuite) TestServiceAvailableImmediately() {
	s.Assert().Equal(telux.ServiceAvailable, s.mgr.ServiceStatus())

	got := make(chan telux.ServiceStatus, 1)
	s.mgr.OnServiceStatus(func(st telux.ServiceStatus) { got <- st })
	s.Assert().Equal(telux.ServiceAvailable, await(s.T(), got), "listener MUST receive the current status on registration")
}

func (s *ManagerTestSuite) TestCreateTypedStreams() {
	play := s.create(playConfig())
	s.Assert().Implements((*telux.PlayStream)(nil), play)
	s.Assert().Equal(telux.StreamPlay, play.Type())

	capture := s.create(captureConfig())
	s.Assert().Implements((*telux.CaptureStream)(nil), capture)

	voice := s.create(voiceConfig())
	s.Assert().Implements((*telux.VoiceStream)(nil), voice)

	s.Assert().Equal(3, s.mgr.Streams())
	s.Assert().NotEqual(play.ID(), capture.ID(), "stream IDs MUST be unique")
}

func (s *ManagerTestSuite) TestCreateRejectsInvalidConfig() {
	cfg := playConfig()
	cfg.DeviceTypes = []telux.DeviceType{telux.DeviceMic}

	status := s.mgr.CreateStream(cfg, func(telux.AudioStream, telux.ErrorCode) {
		s.Fail("callback MUST NOT run for a rejected request")
	})
	s.Assert().Equal(telux.StatusInvalidParam, status)
}

func (s *ManagerTestSuite) TestCreateUnsupportedType() {
	cfg := playConfig()
	cfg.Type = telux.StreamLoopback
	cfg.DeviceTypes = []telux.DeviceType{telux.DeviceSpeaker, telux.DeviceMic}

	status := s.mgr.CreateStream(cfg, func(telux.AudioStream, telux.ErrorCode) {})
	s.Assert().NotEqual(telux.StatusSuccess, status, "loopback streams MUST be rejected")
}

func (s *ManagerTestSuite) TestDeleteStream() {
	st := s.create(playConfig())

	done := make(chan telux.ErrorCode, 1)
	s.Require().Equal(telux.StatusSuccess, s.mgr.DeleteStream(st, func(code telux.ErrorCode) { done <- code }))
	s.Assert().Equal(telux.ErrorCodeSuccess, await(s.T(), done))
	s.Assert().Equal(0, s.mgr.Streams())

	s.Assert().Equal(telux.StatusInvalidParam, s.mgr.DeleteStream(st, func(telux.ErrorCode) {}), "deleting twice MUST be rejected")
}

func (s *ManagerTestSuite) TestWriteThenCaptureLoopsBack() {
	// GOAL: Verify bytes written to a playback stream come back from a capture stream
	//
	// TEST SCENARIO: write 320 bytes → read 320 bytes → same bytes; next read of an empty ring is silence

	play := s.create(playConfig()).(telux.PlayStream)
	capture := s.create(captureConfig()).(telux.CaptureStream)

	buf := play.GetStreamBuffer()
	s.Assert().Equal(320, buf.MinSize(), "8 kHz mono PCM MUST prefer 20 ms buffers")
	for i := range 320 {
		buf.RawBuffer()[i] = byte(i)
	}
	s.Require().NoError(buf.SetDataSize(320))

	written := make(chan int, 1)
	s.Require().Equal(telux.StatusSuccess, play.Write(buf, func(_ telux.StreamBuffer, n int, code telux.ErrorCode) {
		s.Assert().Equal(telux.ErrorCodeSuccess, code)
		written <- n
	}))
	s.Assert().Equal(320, await(s.T(), written))

	in := capture.GetStreamBuffer()
	read := make(chan telux.StreamBuffer, 1)
	s.Require().Equal(telux.StatusSuccess, capture.Read(in, 320, func(b telux.StreamBuffer, code telux.ErrorCode) {
		s.Assert().Equal(telux.ErrorCodeSuccess, code)
		read <- b
	}))
	got := await(s.T(), read)
	s.Assert().Equal(buf.RawBuffer()[:320], got.RawBuffer()[:got.DataSize()], "capture MUST return the played bytes")

	s.Require().Equal(telux.StatusSuccess, capture.Read(in, 100, func(b telux.StreamBuffer, _ telux.ErrorCode) { read <- b }))
	got = await(s.T(), read)
	s.Assert().Equal(100, got.DataSize())
	s.Assert().Equal(make([]byte, 100), got.RawBuffer()[:100], "an empty loopback MUST read as silence")
}

func (s *ManagerTestSuite) TestReadLargerThanBufferRejected() {
	capture := s.create(captureConfig()).(telux.CaptureStream)
	buf := capture.GetStreamBuffer()

	status := capture.Read(buf, buf.MaxSize()+1, func(telux.StreamBuffer, telux.ErrorCode) {})
	s.Assert().Equal(telux.StatusInvalidParam, status)
}

func (s *ManagerTestSuite) TestVoiceStateMachine() {
	voice := s.create(voiceConfig()).(telux.VoiceStream)
	codes := make(chan telux.ErrorCode, 1)
	cb := func(code telux.ErrorCode) { codes <- code }
	tone := telux.DtmfTone{LowFreq: telux.DtmfLow697, HighFreq: telux.DtmfHigh1209, Direction: telux.DirectionRX}

	s.Require().Equal(telux.StatusSuccess, voice.PlayDtmfTone(tone, 100, 5000, cb))
	s.Assert().Equal(telux.ErrorCodeInvalidState, await(s.T(), codes), "DTMF before StartAudio MUST fail")

	s.Require().Equal(telux.StatusSuccess, voice.StartAudio(cb))
	s.Assert().Equal(telux.ErrorCodeSuccess, await(s.T(), codes))

	s.Require().Equal(telux.StatusSuccess, voice.PlayDtmfTone(tone, 100, 5000, cb))
	s.Assert().Equal(telux.ErrorCodeSuccess, await(s.T(), codes))

	bad := tone
	bad.LowFreq = 700
	s.Assert().Equal(telux.StatusInvalidParam, voice.PlayDtmfTone(bad, 100, 5000, cb))

	s.Require().Equal(telux.StatusSuccess, voice.StopAudio(cb))
	s.Assert().Equal(telux.ErrorCodeSuccess, await(s.T(), codes))

	s.Require().Equal(telux.StatusSuccess, voice.StopAudio(cb))
	s.Assert().Equal(telux.ErrorCodeInvalidState, await(s.T(), codes), "stopping a stopped stream MUST fail")
}

func (s *ManagerTestSuite) TestInCallStreamNeedsStartedCall() {
	// GOAL: Verify streams on the voice paths or proxy devices exist only during a call
	//
	// TEST SCENARIO: TX playback before StartAudio → invalid_state; after StartAudio → created; proxy speaker likewise

	inCall := playConfig()
	inCall.SampleRate = 48000
	inCall.DeviceTypes = nil
	inCall.VoicePaths = []telux.StreamDirection{telux.DirectionTX}

	proxy := playConfig()
	proxy.DeviceTypes = []telux.DeviceType{telux.DeviceProxySpeaker}

	createCode := func(cfg telux.StreamConfig) telux.ErrorCode {
		codes := make(chan telux.ErrorCode, 1)
		s.Require().Equal(telux.StatusSuccess, s.mgr.CreateStream(cfg, func(_ telux.AudioStream, code telux.ErrorCode) { codes <- code }))
		return await(s.T(), codes)
	}

	s.Assert().Equal(telux.ErrorCodeInvalidState, createCode(inCall), "in-call playback MUST need a started call")
	s.Assert().Equal(telux.ErrorCodeInvalidState, createCode(proxy), "proxy playback MUST need a started call")

	voice := s.create(voiceConfig()).(telux.VoiceStream)
	s.Assert().Equal(telux.ErrorCodeInvalidState, createCode(inCall), "a created but idle call MUST NOT be enough")

	codes := make(chan telux.ErrorCode, 1)
	s.Require().Equal(telux.StatusSuccess, voice.StartAudio(func(code telux.ErrorCode) { codes <- code }))
	s.Require().Equal(telux.ErrorCodeSuccess, await(s.T(), codes))

	play := s.create(inCall)
	s.Assert().Equal(telux.StreamPlay, play.Type())
	s.create(proxy)

	downlink := captureConfig()
	downlink.DeviceTypes = nil
	downlink.VoicePaths = []telux.StreamDirection{telux.DirectionRX}
	s.create(downlink)
	s.Assert().Equal(4, s.mgr.Streams())
}

func (s *ManagerTestSuite) TestTraceRecordsOperations() {
	st := s.create(playConfig())
	done := make(chan telux.ErrorCode, 1)
	s.mgr.DeleteStream(st, func(code telux.ErrorCode) { done <- code })
	await(s.T(), done)

	var ops []string
	for _, rec := range s.mgr.Trace() {
		ops = append(ops, rec.Op)
	}
	s.Assert().Equal([]string{simaudio.OpService, simaudio.OpCreate, simaudio.OpDelete}, ops)
	s.Assert().Empty(s.mgr.Trace(), "Trace MUST drain the records")
}

func TestCloseCancelsQueuedRequests(t *testing.T) {
	sc, err := simaudio.ParseScenario([]byte("transfer_delay: 1h\n"))
	require.NoError(t, err)
	mgr := simaudio.New(simaudio.Options{Scenario: sc})

	created := make(chan telux.ErrorCode, 1)
	require.Equal(t, telux.StatusSuccess, mgr.CreateStream(playConfig(), func(st telux.AudioStream, code telux.ErrorCode) {
		assert.Nil(t, st)
		created <- code
	}))

	require.NoError(t, mgr.Close())
	assert.Equal(t, telux.ErrorCodeCancelled, await(t, created), "pending requests MUST complete as cancelled on Close")
	assert.Equal(t, telux.StatusNotReady, mgr.CreateStream(playConfig(), func(telux.AudioStream, telux.ErrorCode) {}))
}

func TestServiceDelay(t *testing.T) {
	sc, err := simaudio.ParseScenario([]byte("service_delay: 200ms\n"))
	require.NoError(t, err)
	mgr := simaudio.New(simaudio.Options{Scenario: sc})
	defer mgr.Close()

	assert.Equal(t, telux.ServiceUnavailable, mgr.ServiceStatus())
	assert.Equal(t, telux.StatusNotReady, mgr.CreateStream(playConfig(), func(telux.AudioStream, telux.ErrorCode) {}),
		"CreateStream MUST be rejected before the service is up")

	got := make(chan telux.ServiceStatus, 2)
	mgr.OnServiceStatus(func(st telux.ServiceStatus) { got <- st })
	assert.Equal(t, telux.ServiceUnavailable, await(t, got))
	assert.Equal(t, telux.ServiceAvailable, await(t, got))
}

func TestShortWriteSurvivesBufferReuse(t *testing.T) {
	// GOAL: Verify the stream stops touching a buffer once the write callback hands it back
	//
	// TEST SCENARIO: compressed short write → callback passes buffer to the test, which resets it at once → ready still signalled

	sc, err := simaudio.ParseScenario([]byte(`
ready_delay: 5ms
faults:
  - {op: write, index: 0, short: 50}
`))
	require.NoError(t, err)
	mgr := simaudio.New(simaudio.Options{Scenario: sc})
	defer mgr.Close()

	cfg := playConfig()
	cfg.SampleRate = 16000
	cfg.Format = telux.FormatAMRWBPlus
	cfg.Amrwbp = &telux.AmrwbpParams{FrameFormat: telux.AmrwbpFileStorage}

	streams := make(chan telux.AudioStream, 1)
	require.Equal(t, telux.StatusSuccess, mgr.CreateStream(cfg, func(st telux.AudioStream, _ telux.ErrorCode) { streams <- st }))
	play := await(t, streams).(telux.PlayStream)

	l := &readyListener{ready: make(chan struct{}, 1), stopped: make(chan struct{}, 1)}
	require.Equal(t, telux.StatusSuccess, play.RegisterListener(l))

	buf := play.GetStreamBuffer()
	require.NoError(t, buf.SetDataSize(100))
	returned := make(chan telux.StreamBuffer, 1)
	require.Equal(t, telux.StatusSuccess, play.Write(buf, func(b telux.StreamBuffer, n int, _ telux.ErrorCode) {
		assert.Equal(t, 50, n)
		returned <- b
	}))

	// The pool reuses the buffer as soon as it is back.
	reused := await(t, returned)
	require.NoError(t, reused.SetDataSize(0))
	reused.RawBuffer()[0] = 0xff

	await(t, l.ready)
}

func TestLoopbackOverflowIsQuiet(t *testing.T) {
	// GOAL: Verify writes larger than the loopback ring are accepted without a warning
	//
	// TEST SCENARIO: 64-byte ring → 320-byte write → success, full count, nothing logged at warn

	sc, err := simaudio.ParseScenario([]byte("loopback_bytes: 64\n"))
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	mgr := simaudio.New(simaudio.Options{Scenario: sc, Logger: logger})
	defer mgr.Close()

	streams := make(chan telux.AudioStream, 1)
	require.Equal(t, telux.StatusSuccess, mgr.CreateStream(playConfig(), func(st telux.AudioStream, _ telux.ErrorCode) { streams <- st }))
	play := await(t, streams).(telux.PlayStream)

	written := make(chan int, 2)
	for range 2 {
		buf := play.GetStreamBuffer()
		require.NoError(t, buf.SetDataSize(320))
		require.Equal(t, telux.StatusSuccess, play.Write(buf, func(_ telux.StreamBuffer, n int, code telux.ErrorCode) {
			assert.Equal(t, telux.ErrorCodeSuccess, code)
			written <- n
		}))
		assert.Equal(t, 320, await(t, written))
	}

	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, entry.Level, "overflowing the loopback MUST NOT warn: %s", entry.Message)
	}
}
