package simaudio

import (
	"fmt"
	"os"
	"time"

	"github.com/srg/tsamp/pkg/telux"
	"gopkg.in/yaml.v3"
)

// Operation names used by faults and trace records.
const (
	OpCreate  = "create"
	OpDelete  = "delete"
	OpWrite   = "write"
	OpRead    = "read"
	OpStop    = "stop"
	OpStart   = "start"
	OpDtmf    = "dtmf"
	OpService = "service"
)

// Fault alters the outcome of one operation. Index counts operations of the same kind
// per stream (per manager for create and delete), starting at 0; -1 matches every one.
type Fault struct {
	Op    string `yaml:"op"`
	Index int    `yaml:"index"`
	// Status rejects the request synchronously, e.g. "not_ready".
	Status string `yaml:"status,omitempty"`
	// Code completes the request with an error, e.g. "generic_failure".
	Code string `yaml:"code,omitempty"`
	// Short makes a write consume, or a read deliver, this many bytes less.
	Short int `yaml:"short,omitempty"`
	// Stall accepts the request and never completes it.
	Stall bool `yaml:"stall,omitempty"`

	status telux.Status
	code   telux.ErrorCode
}

// Scenario drives the simulated audio service.
//
//	service_delay: 50ms
//	transfer_delay: 5ms
//	buffer_min_size: 640
//	faults:
//	  - {op: write, index: 2, short: 10}
//	  - {op: read, index: 0, code: generic_failure}
type Scenario struct {
	// ServiceStatus reported once ServiceDelay has passed: available, unavailable or failed.
	ServiceStatus string        `yaml:"service_status"`
	ServiceDelay  time.Duration `yaml:"service_delay"`
	// TransferDelay is how long each request takes to complete.
	TransferDelay time.Duration `yaml:"transfer_delay"`
	// ReadyDelay is the pause between a short write on a compressed stream and
	// OnReadyForWrite.
	ReadyDelay time.Duration `yaml:"ready_delay"`
	// BufferMinSize and BufferMaxSize override the stream buffer sizes; 0 derives them
	// from the stream config.
	BufferMinSize int `yaml:"buffer_min_size"`
	BufferMaxSize int `yaml:"buffer_max_size"`
	// LoopbackBytes is the capacity of the ring connecting playback to capture.
	LoopbackBytes int     `yaml:"loopback_bytes"`
	Faults        []Fault `yaml:"faults"`

	serviceStatus telux.ServiceStatus
}

// DefaultScenario is a healthy service with a short transfer delay.
func DefaultScenario() *Scenario {
	sc := &Scenario{TransferDelay: 2 * time.Millisecond}
	_ = sc.normalize()
	return sc
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.normalize(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) normalize() error {
	switch sc.ServiceStatus {
	case "", "available":
		sc.serviceStatus = telux.ServiceAvailable
	case "unavailable":
		sc.serviceStatus = telux.ServiceUnavailable
	case "failed":
		sc.serviceStatus = telux.ServiceFailed
	default:
		return fmt.Errorf("unknown service status %q", sc.ServiceStatus)
	}
	if sc.LoopbackBytes <= 0 {
		sc.LoopbackBytes = 64 * 1024
	}
	if sc.BufferMinSize < 0 || sc.BufferMaxSize < 0 {
		return fmt.Errorf("buffer sizes must not be negative")
	}
	if sc.BufferMaxSize > 0 && sc.BufferMinSize > sc.BufferMaxSize {
		return fmt.Errorf("buffer_min_size %d exceeds buffer_max_size %d", sc.BufferMinSize, sc.BufferMaxSize)
	}

	for i := range sc.Faults {
		f := &sc.Faults[i]
		switch f.Op {
		case OpCreate, OpDelete, OpWrite, OpRead, OpStop, OpStart, OpDtmf:
		default:
			return fmt.Errorf("fault %d: unknown op %q", i, f.Op)
		}
		if f.Index < -1 {
			return fmt.Errorf("fault %d: index must be >= -1", i)
		}
		if f.Short < 0 {
			return fmt.Errorf("fault %d: short must not be negative", i)
		}
		var err error
		if f.status, err = parseStatus(f.Status); err != nil {
			return fmt.Errorf("fault %d: %w", i, err)
		}
		if f.code, err = parseCode(f.Code); err != nil {
			return fmt.Errorf("fault %d: %w", i, err)
		}
	}
	return nil
}

// fault returns the first fault matching the index-th op, or nil.
func (sc *Scenario) fault(op string, index int) *Fault {
	for i := range sc.Faults {
		f := &sc.Faults[i]
		if f.Op == op && (f.Index == -1 || f.Index == index) {
			return f
		}
	}
	return nil
}

func parseStatus(s string) (telux.Status, error) {
	if s == "" {
		return telux.StatusSuccess, nil
	}
	for st := telux.StatusSuccess; st <= telux.StatusNoMemory; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return telux.StatusFailed, fmt.Errorf("unknown status %q", s)
}

func parseCode(s string) (telux.ErrorCode, error) {
	if s == "" {
		return telux.ErrorCodeSuccess, nil
	}
	for c := telux.ErrorCodeSuccess; c <= telux.ErrorCodeCancelled; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return telux.ErrorCodeGenericFailure, fmt.Errorf("unknown error code %q", s)
}
