// Package backend resolves the audio backend a command runs against.
package backend

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/srg/tsamp/internal/simaudio"
	"github.com/srg/tsamp/pkg/telux"
)

// Sim is the in-process simulated backend.
const Sim = "sim"

// ErrUnknownBackend is returned by Open for names with no registered backend.
var ErrUnknownBackend = errors.New("unknown audio backend")

// Options configure the backend being opened.
type Options struct {
	// ScenarioPath is a YAML scenario for the sim backend; empty means a healthy service.
	ScenarioPath string
	// Scenario takes precedence over ScenarioPath when set.
	Scenario *simaudio.Scenario
}

type opener func(opts Options, logger *logrus.Logger) (telux.AudioManager, io.Closer, error)

var backends = map[string]opener{
	Sim: openSim,
}

// Names lists the available backends.
func Names() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns the audio manager of backend name and the closer releasing it.
func Open(name string, opts Options, logger *logrus.Logger) (telux.AudioManager, io.Closer, error) {
	if logger == nil {
		logger = logrus.New()
	}
	open, ok := backends[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, Names())
	}
	logger.WithField("backend", name).Debug("Opening audio backend")
	return open(opts, logger)
}

func openSim(opts Options, logger *logrus.Logger) (telux.AudioManager, io.Closer, error) {
	sc := opts.Scenario
	if sc == nil && opts.ScenarioPath != "" {
		var err error
		if sc, err = simaudio.LoadScenario(opts.ScenarioPath); err != nil {
			return nil, nil, err
		}
	}
	mgr := simaudio.New(simaudio.Options{Scenario: sc, Logger: logger})
	return mgr, &simCloser{mgr: mgr, logger: logger}, nil
}

// simCloser dumps the operation trace at debug level before shutting the manager down.
type simCloser struct {
	mgr    *simaudio.Manager
	logger *logrus.Logger
}

func (c *simCloser) Close() error {
	err := c.mgr.Close()
	if c.logger.IsLevelEnabled(logrus.DebugLevel) {
		for _, rec := range c.mgr.Trace() {
			c.logger.WithFields(logrus.Fields{
				"at":        rec.At.Format("15:04:05.000"),
				"stream_id": rec.StreamID,
				"op":        rec.Op,
				"bytes":     rec.Bytes,
				"status":    rec.Status,
				"code":      rec.Code,
				"stalled":   rec.Stalled,
			}).Debug("Simulated operation")
		}
	}
	return err
}
