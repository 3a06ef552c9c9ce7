// Package telemetry defines the time indexed battery telemetry table.
package telemetry

import (
	"fmt"
	"math"
	"time"
)

// Query identifies a telemetry range of a single device
type Query struct {
	// Device is device identifier
	Device string
	// Start is range start, e.g. "-7d" or RFC3339 time
	Start string
	// Stop is range stop, e.g. "now()"
	Stop string
	// Resolution is downsampling window, e.g. "5s"
	Resolution string
}

// Default query range values
const (
	DefaultStart      = "-7d"
	DefaultStop       = "now()"
	DefaultResolution = "5s"
)

// WithDefaults returns copy of q with empty range fields set to their defaults
func (q Query) WithDefaults() Query {
	if q.Start == "" {
		q.Start = DefaultStart
	}
	if q.Stop == "" {
		q.Stop = DefaultStop
	}
	if q.Resolution == "" {
		q.Resolution = DefaultResolution
	}
	return q
}

// String implements the Stringer interface.
func (q Query) String() string {
	return fmt.Sprintf("%s_%s_%s_%s", q.Device, q.Start, q.Stop, q.Resolution)
}

// Key returns a key uniquely identifying q.
// Unlike String, distinct queries never share a key.
func (q Query) Key() string {
	return fmt.Sprintf("%q %q %q %q", q.Device, q.Start, q.Stop, q.Resolution)
}

// Table is a column oriented telemetry table.
// SOC column holds labels in percent; missing labels are NaN.
type Table struct {
	Time        []time.Time
	Current     []float64
	Voltage     []float64
	Temperature []float64
	SOC         []float64
}

// NewTable creates empty table with capacity n
func NewTable(n int) *Table {
	return &Table{
		Time:        make([]time.Time, 0, n),
		Current:     make([]float64, 0, n),
		Voltage:     make([]float64, 0, n),
		Temperature: make([]float64, 0, n),
		SOC:         make([]float64, 0, n),
	}
}

// Append appends a single row to the table. Pass NaN soc when no label is known.
func (t *Table) Append(ts time.Time, current, voltage, temperature, soc float64) {
	t.Time = append(t.Time, ts)
	t.Current = append(t.Current, current)
	t.Voltage = append(t.Voltage, voltage)
	t.Temperature = append(t.Temperature, temperature)
	t.SOC = append(t.SOC, soc)
}

// Len returns number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Time)
}

// HasLabels returns true if at least one SOC label is present
func (t *Table) HasLabels() bool {
	for _, v := range t.SOC {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}

	c := &Table{
		Time:        make([]time.Time, len(t.Time)),
		Current:     make([]float64, len(t.Current)),
		Voltage:     make([]float64, len(t.Voltage)),
		Temperature: make([]float64, len(t.Temperature)),
		SOC:         make([]float64, len(t.SOC)),
	}
	copy(c.Time, t.Time)
	copy(c.Current, t.Current)
	copy(c.Voltage, t.Voltage)
	copy(c.Temperature, t.Temperature)
	copy(c.SOC, t.SOC)

	return c
}

// Validate checks the table is usable for estimation:
// it must be non-empty, all columns must have the same length,
// required columns must be finite and timestamps strictly increasing.
func (t *Table) Validate() error {
	n := t.Len()
	if n == 0 {
		return fmt.Errorf("empty table")
	}

	for name, col := range map[string][]float64{
		"current":     t.Current,
		"voltage":     t.Voltage,
		"temperature": t.Temperature,
	} {
		if len(col) != n {
			return fmt.Errorf("column %s: expected %d rows, got %d", name, n, len(col))
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("column %s: invalid value at row %d: %v", name, i, v)
			}
		}
	}

	if len(t.SOC) != 0 && len(t.SOC) != n {
		return fmt.Errorf("column soc: expected %d rows, got %d", n, len(t.SOC))
	}

	for i := 1; i < n; i++ {
		if !t.Time[i].After(t.Time[i-1]) {
			return fmt.Errorf("timestamps not strictly increasing at row %d", i)
		}
	}

	return nil
}
