// Package export writes finished measurement runs to external sinks.
package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skobkin/isxgo/internal/device"
)

// Record is one finished run together with what produced it.
type Record struct {
	Port   string
	Setup  device.SetupRequest
	Report device.MeasurementReport
}

type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}

// SetupJSON encodes the sweep configuration of the record.
func (r Record) SetupJSON() (string, error) {
	raw, err := json.Marshal(setupDoc{
		StartFrequency: r.Setup.StartFrequency,
		EndFrequency:   r.Setup.EndFrequency,
		Count:          r.Setup.Count,
		Scale:          r.Setup.Scale,
		Precision:      r.Setup.Precision,
		Amplitude:      r.Setup.Amplitude,
		Excitation:     r.Setup.Excitation,
	})
	if err != nil {
		return "", fmt.Errorf("encode setup: %w", err)
	}

	return string(raw), nil
}

type setupDoc struct {
	StartFrequency string  `json:"start_frequency"`
	EndFrequency   string  `json:"end_frequency"`
	Count          int     `json:"count"`
	Scale          string  `json:"scale"`
	Precision      float64 `json:"precision"`
	Amplitude      string  `json:"amplitude"`
	Excitation     string  `json:"excitation"`
}
