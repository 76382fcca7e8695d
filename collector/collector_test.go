package collector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omniktools/omnik_exporter/omnik"
)

var _ prometheus.Collector = (*Collector)(nil)

type fakeFetcher struct {
	data omnik.Data
	err  error
}

func (f fakeFetcher) GetData(_ context.Context) (omnik.Data, error) {
	return f.data, f.err
}

func TestCollectorCollect(t *testing.T) {
	log, _ := zap.NewDevelopment(zap.Development())

	c := NewCollector(fakeFetcher{data: omnik.Data{
		SerialNumber:      lo.ToPtr("NLDN202013012345"),
		Status:            omnik.StatusOnline,
		Temperature:       lo.ToPtr(40.5),
		ActualPower:       1500,
		ACOutputPower:     lo.ToPtr(1500),
		EnergyToday:       lo.ToPtr(3.21),
		EnergyTotal:       lo.ToPtr(4567.8),
		HoursTotal:        lo.ToPtr(5678),
		DCInputVoltage:    lo.ToPtr(202.5),
		DCInputCurrent:    lo.ToPtr(7.4),
		ACOutputVoltage:   lo.ToPtr(230.1),
		ACOutputCurrent:   lo.ToPtr(6.5),
		ACOutputFrequency: lo.ToPtr(49.99),
	}}, Options{Timeout: time.Second, Log: log})

	err := testutil.CollectAndCompare(c, strings.NewReader(`
# HELP omnik_ac_output_current_amps AC output current in Amps
# TYPE omnik_ac_output_current_amps gauge
omnik_ac_output_current_amps{serial="NLDN202013012345"} 6.5
# HELP omnik_ac_output_frequency_hz AC output frequency in Hertz
# TYPE omnik_ac_output_frequency_hz gauge
omnik_ac_output_frequency_hz{serial="NLDN202013012345"} 49.99
# HELP omnik_ac_output_power_watts AC output power in Watts
# TYPE omnik_ac_output_power_watts gauge
omnik_ac_output_power_watts{serial="NLDN202013012345"} 1500
# HELP omnik_ac_output_voltage_volts AC output voltage in Volts
# TYPE omnik_ac_output_voltage_volts gauge
omnik_ac_output_voltage_volts{serial="NLDN202013012345"} 230.1
# HELP omnik_actual_power_watts Current production in Watts, 0 while offline
# TYPE omnik_actual_power_watts gauge
omnik_actual_power_watts{serial="NLDN202013012345"} 1500
# HELP omnik_dc_input_current_amps DC input current in Amps
# TYPE omnik_dc_input_current_amps gauge
omnik_dc_input_current_amps{serial="NLDN202013012345"} 7.4
# HELP omnik_dc_input_voltage_volts DC input voltage in Volts
# TYPE omnik_dc_input_voltage_volts gauge
omnik_dc_input_voltage_volts{serial="NLDN202013012345"} 202.5
# HELP omnik_energy_today_kwh Energy produced today in kWh
# TYPE omnik_energy_today_kwh gauge
omnik_energy_today_kwh{serial="NLDN202013012345"} 3.21
# HELP omnik_energy_total_kwh Lifetime energy production in kWh
# TYPE omnik_energy_total_kwh gauge
omnik_energy_total_kwh{serial="NLDN202013012345"} 4567.8
# HELP omnik_hours_total Lifetime operating hours
# TYPE omnik_hours_total gauge
omnik_hours_total{serial="NLDN202013012345"} 5678
# HELP omnik_online Whether the inverter is producing (1) or offline (0)
# TYPE omnik_online gauge
omnik_online{serial="NLDN202013012345"} 1
# HELP omnik_temperature_celsius Inverter temperature in Celsius
# TYPE omnik_temperature_celsius gauge
omnik_temperature_celsius{serial="NLDN202013012345"} 40.5
# HELP omnik_up Whether the last fetch cycle succeeded
# TYPE omnik_up gauge
omnik_up{last_error=""} 1
`),
		"omnik_online",
		"omnik_temperature_celsius",
		"omnik_actual_power_watts",
		"omnik_ac_output_power_watts",
		"omnik_energy_today_kwh",
		"omnik_energy_total_kwh",
		"omnik_hours_total",
		"omnik_dc_input_voltage_volts",
		"omnik_dc_input_current_amps",
		"omnik_ac_output_voltage_volts",
		"omnik_ac_output_current_amps",
		"omnik_ac_output_frequency_hz",
		"omnik_up",
	)
	require.NoError(t, err)
}

func TestCollectorCollectOffline(t *testing.T) {
	// An offline record keeps the independent readings but zeroes the power.
	c := NewCollector(fakeFetcher{data: omnik.Data{
		Status:      omnik.StatusOffline,
		EnergyTotal: lo.ToPtr(4567.8),
	}}, Options{Timeout: time.Second})

	err := testutil.CollectAndCompare(c, strings.NewReader(`
# HELP omnik_actual_power_watts Current production in Watts, 0 while offline
# TYPE omnik_actual_power_watts gauge
omnik_actual_power_watts{serial=""} 0
# HELP omnik_energy_total_kwh Lifetime energy production in kWh
# TYPE omnik_energy_total_kwh gauge
omnik_energy_total_kwh{serial=""} 4567.8
# HELP omnik_online Whether the inverter is producing (1) or offline (0)
# TYPE omnik_online gauge
omnik_online{serial=""} 0
# HELP omnik_up Whether the last fetch cycle succeeded
# TYPE omnik_up gauge
omnik_up{last_error=""} 1
`),
		"omnik_online",
		"omnik_actual_power_watts",
		"omnik_energy_total_kwh",
		"omnik_temperature_celsius",
		"omnik_up",
	)
	require.NoError(t, err)
}

func TestCollectorCollectFetchError(t *testing.T) {
	c := NewCollector(fakeFetcher{
		err: &omnik.ConnectionError{Kind: omnik.ErrTimeout, Addr: "192.0.2.1:8899"},
	}, Options{Timeout: time.Second})

	err := testutil.CollectAndCompare(c, strings.NewReader(`
# HELP omnik_up Whether the last fetch cycle succeeded
# TYPE omnik_up gauge
omnik_up{last_error="omnik 192.0.2.1:8899: timeout"} 0
`),
		"omnik_up",
		"omnik_online",
		"omnik_actual_power_watts",
	)
	require.NoError(t, err)
}
