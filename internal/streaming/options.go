package streaming

import (
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Options configure a Player or Recorder. Zero values are replaced by the defaults below.
type Options struct {
	// Name labels log lines and observer events.
	Name string `default:"stream"`
	// PoolSize is the number of stream buffers, i.e. the maximum of requests in flight.
	PoolSize int `default:"2"`
	// WaitTimeout bounds each wait for a free buffer or for write readiness.
	WaitTimeout time.Duration `default:"10s"`
	// DrainTimeout bounds the wait for in-flight requests on exit; 0 waits until all
	// complete.
	DrainTimeout time.Duration

	// StopAfterPlay makes a Player request StopAfterPlay after a clean drain and wait
	// for OnPlayStopped.
	StopAfterPlay bool
	// StopTimeout bounds the StopAfterPlay request and the OnPlayStopped event.
	StopTimeout time.Duration `default:"10s"`
	// GateOnReady makes a Player hold the next write after a short write until the
	// stream reports OnReadyForWrite.
	GateOnReady bool

	// Duration is how long a Recorder keeps issuing reads.
	Duration time.Duration `default:"5s"`

	Observer Observer
	Logger   *logrus.Logger
}

func (o Options) withDefaults() Options {
	defaults.SetDefaults(&o)
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetLevel(logrus.PanicLevel)
	}
	return o
}
