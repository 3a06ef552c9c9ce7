package sim

import (
	"context"
	"testing"

	"github.com/milosgajdos/go-soc/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDischarge(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDischarge(DefaultConfig())
	assert.NotNil(d)
	assert.NoError(err)

	testCases := []func(c *Config){
		func(c *Config) { c.Samples = 0 },
		func(c *Config) { c.Step = 0 },
		func(c *Config) { c.InitialSOC = 1.1 },
		func(c *Config) { c.VoltageNoise = -1 },
		func(c *Config) { c.CapacityAh = 0 },
	}

	for _, mutate := range testCases {
		c := DefaultConfig()
		mutate(&c)
		d, err := NewDischarge(c)
		assert.Nil(d)
		assert.Error(err)
	}
}

func TestGenerate(t *testing.T) {
	assert := assert.New(t)

	d, err := NewDischarge(DefaultConfig())
	require.NoError(t, err)

	tbl, err := d.Generate()
	require.NoError(t, err)
	assert.NoError(tbl.Validate())
	assert.Equal(3601, tbl.Len())
	assert.True(tbl.HasLabels())

	// one hour of 10A out of 72Ah
	assert.InDelta(100.0, tbl.SOC[0], 1e-12)
	assert.InDelta(100*(1-10.0/72), tbl.SOC[3600], 1e-9)

	assert.InDelta(d.OCV(1)-0.1, tbl.Voltage[0], 1e-12)
	assert.Less(tbl.Voltage[3600], tbl.Voltage[0])
}

func TestGenerateNoise(t *testing.T) {
	assert := assert.New(t)

	c := DefaultConfig()
	c.Samples = 200
	c.VoltageNoise = 0.01
	c.Labels = false

	d, err := NewDischarge(c)
	require.NoError(t, err)

	t1, err := d.Generate()
	require.NoError(t, err)
	t2, err := d.Generate()
	require.NoError(t, err)
	assert.Equal(t1.Voltage, t2.Voltage)
	assert.False(t1.HasLabels())

	// first sample is noisy but stays close to the clean voltage
	clean := d.OCV(c.InitialSOC) - c.R0*c.Current
	assert.NotEqual(clean, t1.Voltage[0])
	assert.InDelta(clean, t1.Voltage[0], 0.1)
}

func TestDischargeFetch(t *testing.T) {
	assert := assert.New(t)

	c := DefaultConfig()
	c.Samples = 10
	d, err := NewDischarge(c)
	require.NoError(t, err)

	tbl, err := d.Fetch(context.Background(), telemetry.Query{Device: "sim"})
	assert.NoError(err)
	assert.Equal(10, tbl.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Fetch(ctx, telemetry.Query{})
	assert.ErrorIs(err, context.Canceled)
}
