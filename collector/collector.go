// Package collector exposes one Omnik inverter as a prometheus.Collector.
// Every scrape runs one fetch cycle against the device.
package collector

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/omniktools/omnik_exporter/omnik"
)

// Fetcher is the slice of the omnik client the collector needs.
type Fetcher interface {
	GetData(ctx context.Context) (omnik.Data, error)
}

type Collector struct {
	opts    Options
	fetcher Fetcher

	onlineDesc      *prometheus.Desc
	tmpDesc         *prometheus.Desc
	powerDesc       *prometheus.Desc
	acPowerDesc     *prometheus.Desc
	energyTodayDesc *prometheus.Desc
	energyTotalDesc *prometheus.Desc
	hoursDesc       *prometheus.Desc
	dcVoltageDesc   *prometheus.Desc
	dcCurrentDesc   *prometheus.Desc
	acVoltageDesc   *prometheus.Desc
	acCurrentDesc   *prometheus.Desc
	acFreqDesc      *prometheus.Desc
	upDesc          *prometheus.Desc
}

type Options struct {
	// Timeout bounds one scrape. It should cover a full fetch cycle, where
	// the connect and the read each get the client's own timeout budget.
	Timeout time.Duration
	Log     *zap.Logger
}

func NewCollector(fetcher Fetcher, opts Options) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * omnik.DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Collector{
		opts:            opts,
		fetcher:         fetcher,
		onlineDesc:      prometheus.NewDesc("omnik_online", "Whether the inverter is producing (1) or offline (0)", []string{"serial"}, nil),
		tmpDesc:         prometheus.NewDesc("omnik_temperature_celsius", "Inverter temperature in Celsius", []string{"serial"}, nil),
		powerDesc:       prometheus.NewDesc("omnik_actual_power_watts", "Current production in Watts, 0 while offline", []string{"serial"}, nil),
		acPowerDesc:     prometheus.NewDesc("omnik_ac_output_power_watts", "AC output power in Watts", []string{"serial"}, nil),
		energyTodayDesc: prometheus.NewDesc("omnik_energy_today_kwh", "Energy produced today in kWh", []string{"serial"}, nil),
		energyTotalDesc: prometheus.NewDesc("omnik_energy_total_kwh", "Lifetime energy production in kWh", []string{"serial"}, nil),
		hoursDesc:       prometheus.NewDesc("omnik_hours_total", "Lifetime operating hours", []string{"serial"}, nil),
		dcVoltageDesc:   prometheus.NewDesc("omnik_dc_input_voltage_volts", "DC input voltage in Volts", []string{"serial"}, nil),
		dcCurrentDesc:   prometheus.NewDesc("omnik_dc_input_current_amps", "DC input current in Amps", []string{"serial"}, nil),
		acVoltageDesc:   prometheus.NewDesc("omnik_ac_output_voltage_volts", "AC output voltage in Volts", []string{"serial"}, nil),
		acCurrentDesc:   prometheus.NewDesc("omnik_ac_output_current_amps", "AC output current in Amps", []string{"serial"}, nil),
		acFreqDesc:      prometheus.NewDesc("omnik_ac_output_frequency_hz", "AC output frequency in Hertz", []string{"serial"}, nil),
		upDesc:          prometheus.NewDesc("omnik_up", "Whether the last fetch cycle succeeded", []string{"last_error"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.onlineDesc
	ch <- c.tmpDesc
	ch <- c.powerDesc
	ch <- c.acPowerDesc
	ch <- c.energyTodayDesc
	ch <- c.energyTotalDesc
	ch <- c.hoursDesc
	ch <- c.dcVoltageDesc
	ch <- c.dcCurrentDesc
	ch <- c.acVoltageDesc
	ch <- c.acCurrentDesc
	ch <- c.acFreqDesc
	ch <- c.upDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	if err := c.collect(ctx, ch); err == nil {
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 1, "")
	} else {
		c.opts.Log.Error("Scrape failed", zap.Error(err))
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 0, err.Error())
	}
}

func (c *Collector) collect(ctx context.Context, ch chan<- prometheus.Metric) error {
	data, err := c.fetcher.GetData(ctx)
	if err != nil {
		return err
	}

	serial := lo.FromPtr(data.SerialNumber)

	online := 0.0
	if data.Online() {
		online = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.onlineDesc, prometheus.GaugeValue, online, serial)
	ch <- prometheus.MustNewConstMetric(c.powerDesc, prometheus.GaugeValue, float64(data.ActualPower), serial)

	// Absent readings are simply not exposed; prometheus has no NaN-free way
	// to say "no value" inside a gauge.
	if data.Temperature != nil {
		ch <- prometheus.MustNewConstMetric(c.tmpDesc, prometheus.GaugeValue, *data.Temperature, serial)
	}
	if data.ACOutputPower != nil {
		ch <- prometheus.MustNewConstMetric(c.acPowerDesc, prometheus.GaugeValue, float64(*data.ACOutputPower), serial)
	}
	if data.EnergyToday != nil {
		ch <- prometheus.MustNewConstMetric(c.energyTodayDesc, prometheus.GaugeValue, *data.EnergyToday, serial)
	}
	if data.EnergyTotal != nil {
		ch <- prometheus.MustNewConstMetric(c.energyTotalDesc, prometheus.GaugeValue, *data.EnergyTotal, serial)
	}
	if data.HoursTotal != nil {
		ch <- prometheus.MustNewConstMetric(c.hoursDesc, prometheus.GaugeValue, float64(*data.HoursTotal), serial)
	}
	if data.DCInputVoltage != nil {
		ch <- prometheus.MustNewConstMetric(c.dcVoltageDesc, prometheus.GaugeValue, *data.DCInputVoltage, serial)
	}
	if data.DCInputCurrent != nil {
		ch <- prometheus.MustNewConstMetric(c.dcCurrentDesc, prometheus.GaugeValue, *data.DCInputCurrent, serial)
	}
	if data.ACOutputVoltage != nil {
		ch <- prometheus.MustNewConstMetric(c.acVoltageDesc, prometheus.GaugeValue, *data.ACOutputVoltage, serial)
	}
	if data.ACOutputCurrent != nil {
		ch <- prometheus.MustNewConstMetric(c.acCurrentDesc, prometheus.GaugeValue, *data.ACOutputCurrent, serial)
	}
	if data.ACOutputFrequency != nil {
		ch <- prometheus.MustNewConstMetric(c.acFreqDesc, prometheus.GaugeValue, *data.ACOutputFrequency, serial)
	}

	return nil
}
