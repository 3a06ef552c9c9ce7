// Package influx implements a telemetry data source backed by InfluxDB.
package influx

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	soc "github.com/milosgajdos/go-soc"
	"github.com/milosgajdos/go-soc/telemetry"
)

// Fields maps telemetry columns to InfluxDB field names
type Fields struct {
	Current     string
	Voltage     string
	Temperature string
	SOC         string
}

// Config configures InfluxDB source
type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	// DeviceTag is the tag identifying a device
	DeviceTag string
	Fields    Fields
	// Timeout is HTTP request timeout
	Timeout time.Duration
}

// DefaultConfig returns config matching the BMS telemetry schema
func DefaultConfig() Config {
	return Config{
		Bucket:      "aicar_bms",
		Measurement: "aicar_bms",
		DeviceTag:   "device_no",
		Fields: Fields{
			Current:     "pack_current",
			Voltage:     "pack_volt",
			Temperature: "mod_avg_temp",
			SOC:         "soc",
		},
		Timeout: 30 * time.Second,
	}
}

// Source fetches telemetry from InfluxDB
type Source struct {
	c      Config
	client influxdb2.Client
	api    api.QueryAPI
	logger *slog.Logger
}

// New creates new InfluxDB source and returns it.
// It returns error if URL, org or bucket are not set.
func New(c Config, logger *slog.Logger) (*Source, error) {
	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return nil, fmt.Errorf("incomplete influxdb config: url=%q org=%q bucket=%q", c.URL, c.Org, c.Bucket)
	}

	if logger == nil {
		logger = slog.Default()
	}

	opts := influxdb2.DefaultOptions()
	if c.Timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(c.Timeout.Seconds()))
	}

	client := influxdb2.NewClientWithOptions(c.URL, c.Token, opts)

	return &Source{
		c:      c,
		client: client,
		api:    client.QueryAPI(c.Org),
		logger: logger,
	}, nil
}

// BuildQuery returns Flux query fetching telemetry matching q.
// Fields are averaged over q.Resolution windows and pivoted into one row per timestamp.
func BuildQuery(c Config, q telemetry.Query) string {
	q = q.WithDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", c.Bucket)
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n", q.Start, q.Stop)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r[\"_measurement\"] == %q)\n", c.Measurement)
	if q.Device != "" {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r[%q] == %q)\n", c.DeviceTag, q.Device)
	}

	fields := []string{c.Fields.Current, c.Fields.Voltage, c.Fields.Temperature, c.Fields.SOC}
	preds := make([]string, len(fields))
	keep := make([]string, 0, len(fields)+1)
	keep = append(keep, `"_time"`)
	for i, f := range fields {
		preds[i] = fmt.Sprintf("r[\"_field\"] == %q", f)
		keep = append(keep, fmt.Sprintf("%q", f))
	}
	fmt.Fprintf(&b, "  |> filter(fn: (r) => %s)\n", strings.Join(preds, " or "))
	fmt.Fprintf(&b, "  |> aggregateWindow(every: %s, fn: mean, createEmpty: false)\n", q.Resolution)
	b.WriteString("  |> pivot(rowKey: [\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")\n")
	fmt.Fprintf(&b, "  |> keep(columns: [%s])\n", strings.Join(keep, ", "))
	b.WriteString("  |> sort(columns: [\"_time\"])\n")

	return b.String()
}

// Fetch returns telemetry matching q.
// Rows missing current, voltage or temperature are dropped; missing SOC labels are NaN.
// It returns soc.ErrInvalidData if no rows remain.
func (s *Source) Fetch(ctx context.Context, q telemetry.Query) (*telemetry.Table, error) {
	q = q.WithDefaults()
	s.logger.Info("loading telemetry", "device", q.Device, "start", q.Start, "stop", q.Stop, "resolution", q.Resolution)

	res, err := s.api.Query(ctx, BuildQuery(s.c, q))
	if err != nil {
		return nil, fmt.Errorf("influxdb query failed: %w", err)
	}
	defer res.Close()

	t, err := readTable(res, s.c.Fields)
	if err != nil {
		return nil, err
	}

	s.logger.Info("telemetry loaded", "device", q.Device, "rows", t.Len())

	return t, nil
}

// Ping checks InfluxDB is reachable
func (s *Source) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("influxdb not ready: %s", s.c.URL)
	}

	return nil
}

// Close closes the client
func (s *Source) Close() {
	s.client.Close()
}

// records iterates query result records
type records interface {
	Next() bool
	Record() *query.FluxRecord
	Err() error
}

// readTable converts pivoted records into a telemetry table.
func readTable(rs records, f Fields) (*telemetry.Table, error) {
	t := telemetry.NewTable(1024)

	for rs.Next() {
		rec := rs.Record()
		ts := rec.Time()

		current, ok1 := number(rec.ValueByKey(f.Current))
		voltage, ok2 := number(rec.ValueByKey(f.Voltage))
		temp, ok3 := number(rec.ValueByKey(f.Temperature))
		if !ok1 || !ok2 || !ok3 || ts.IsZero() {
			continue
		}

		if n := t.Len(); n > 0 && !ts.After(t.Time[n-1]) {
			continue
		}

		label, ok := number(rec.ValueByKey(f.SOC))
		if !ok {
			label = math.NaN()
		}

		t.Append(ts, current, voltage, temp, label)
	}

	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("influxdb result error: %w", err)
	}

	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: no data returned", soc.ErrInvalidData)
	}

	return t, nil
}

func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case int:
		f = float64(x)
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}
