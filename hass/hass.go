// Package hass republishes inverter telemetry over MQTT with Home Assistant
// discovery metadata, so the inverter shows up as a device without any YAML.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/omniktools/omnik_exporter/omnik"
)

// Fetcher is the slice of the omnik client the bridge needs.
type Fetcher interface {
	GetData(ctx context.Context) (omnik.Data, error)
}

// Publisher is the slice of the paho client the bridge uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Options struct {
	TopicPrefix string        // state topic prefix, "omnik" when empty
	DeviceName  string        // Home Assistant device name, TopicPrefix when empty
	Interval    time.Duration // poll interval, 30s when zero
	Timeout     time.Duration // per fetch cycle, twice the client default when zero
	Log         *zap.Logger
}

// Bridge polls the inverter on a ticker and mirrors every reading to a
// retained MQTT state topic. One Run loop means one fetch in flight, which is
// all the device can handle anyway.
type Bridge struct {
	opts    Options
	fetcher Fetcher
	client  Publisher
	online  *bool // last published availability, nil before the first poll
}

func NewBridge(fetcher Fetcher, client Publisher, opts Options) (*Bridge, error) {
	if fetcher == nil {
		return nil, errors.New("hass: fetcher required")
	}
	if client == nil {
		return nil, errors.New("hass: mqtt client required")
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "omnik"
	}
	if opts.DeviceName == "" {
		opts.DeviceName = opts.TopicPrefix
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * omnik.DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Bridge{opts: opts, fetcher: fetcher, client: client}, nil
}

// AvailabilityTopic carries "online"/"offline" depending on whether the
// inverter answers at all. Callers should register it as the MQTT last will.
func (b *Bridge) AvailabilityTopic() string {
	return b.opts.TopicPrefix + "/availability"
}

func (b *Bridge) stateTopic(key string) string {
	return b.opts.TopicPrefix + "/" + key
}

// Run publishes the discovery configs once and then polls until the context
// ends. Fetch failures are transient: logged, availability flipped, next tick
// retries.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.PublishDiscovery(); err != nil {
		return err
	}

	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	for {
		if err := b.pollOnce(ctx); err != nil {
			b.opts.Log.Error("poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bridge) pollOnce(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	data, err := b.fetcher.GetData(fctx)
	if err != nil {
		b.setAvailability(false)
		return err
	}
	b.setAvailability(true)

	for _, s := range sensors {
		value, ok := s.value(data)
		if !ok {
			continue
		}
		if err := b.publish(b.stateTopic(s.key), true, value); err != nil {
			return fmt.Errorf("hass: publish %s: %w", b.stateTopic(s.key), err)
		}
	}

	b.opts.Log.Debug("published snapshot",
		zap.String("status", string(data.Status)),
		zap.Int("actual_power", data.ActualPower))

	return nil
}

// setAvailability publishes only on transitions, so a flapping network does
// not spam the broker with identical retained messages.
func (b *Bridge) setAvailability(online bool) {
	if b.online != nil && *b.online == online {
		return
	}
	b.online = &online

	payload := "offline"
	if online {
		payload = "online"
		b.opts.Log.Info("inverter is replying to requests")
	} else {
		b.opts.Log.Info("inverter stopped replying to requests")
	}
	if err := b.publish(b.AvailabilityTopic(), true, payload); err != nil {
		b.opts.Log.Error("availability publish failed", zap.Error(err))
	}
}

func (b *Bridge) publish(topic string, retained bool, payload string) error {
	token := b.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

type autoconfig struct {
	DeviceClass       string           `json:"dev_cla,omitempty"`
	UnitOfMeasurement string           `json:"unit_of_meas,omitempty"`
	Name              string           `json:"name"`
	StateTopic        string           `json:"stat_t"`
	AvailabilityTopic string           `json:"avty_t"`
	UniqueID          string           `json:"uniq_id"`
	StateClass        string           `json:"stat_cla,omitempty"`
	Device            autoconfigDevice `json:"dev"`
}

type autoconfigDevice struct {
	IDs  string `json:"ids"`
	Name string `json:"name"`
}

// PublishDiscovery announces every sensor on the Home Assistant discovery
// prefix. Configs are retained so HA picks them up after its own restarts.
func (b *Bridge) PublishDiscovery() error {
	for _, s := range sensors {
		cfg := autoconfig{
			DeviceClass:       s.deviceClass,
			UnitOfMeasurement: s.unit,
			Name:              s.key,
			StateTopic:        b.stateTopic(s.key),
			AvailabilityTopic: b.AvailabilityTopic(),
			UniqueID:          b.opts.TopicPrefix + "." + s.key,
			StateClass:        s.stateClass,
			Device: autoconfigDevice{
				IDs:  b.opts.TopicPrefix,
				Name: b.opts.DeviceName,
			},
		}

		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("hass: marshal discovery config %s: %w", s.key, err)
		}

		topic := "homeassistant/sensor/" + b.opts.TopicPrefix + "/" + s.key + "/config"
		if err := b.publish(topic, true, string(payload)); err != nil {
			return fmt.Errorf("hass: publish %s: %w", topic, err)
		}
	}

	b.opts.Log.Info("published discovery configs", zap.Int("sensors", len(sensors)))
	return nil
}

type sensor struct {
	key         string
	deviceClass string
	unit        string
	stateClass  string
	value       func(d omnik.Data) (string, bool)
}

var sensors = []sensor{
	{"status", "", "", "", func(d omnik.Data) (string, bool) { return string(d.Status), true }},
	{"actual_power", "power", "W", "measurement", func(d omnik.Data) (string, bool) { return strconv.Itoa(d.ActualPower), true }},
	{"temperature", "temperature", "°C", "measurement", optFloat(func(d omnik.Data) *float64 { return d.Temperature })},
	{"energy_today", "energy", "kWh", "total_increasing", optFloat(func(d omnik.Data) *float64 { return d.EnergyToday })},
	{"energy_total", "energy", "kWh", "total_increasing", optFloat(func(d omnik.Data) *float64 { return d.EnergyTotal })},
	{"hours_total", "duration", "h", "total_increasing", optInt(func(d omnik.Data) *int { return d.HoursTotal })},
	{"dc_input_voltage", "voltage", "V", "measurement", optFloat(func(d omnik.Data) *float64 { return d.DCInputVoltage })},
	{"dc_input_current", "current", "A", "measurement", optFloat(func(d omnik.Data) *float64 { return d.DCInputCurrent })},
	{"ac_output_voltage", "voltage", "V", "measurement", optFloat(func(d omnik.Data) *float64 { return d.ACOutputVoltage })},
	{"ac_output_current", "current", "A", "measurement", optFloat(func(d omnik.Data) *float64 { return d.ACOutputCurrent })},
	{"ac_output_frequency", "frequency", "Hz", "measurement", optFloat(func(d omnik.Data) *float64 { return d.ACOutputFrequency })},
	{"ac_output_power", "power", "W", "measurement", optInt(func(d omnik.Data) *int { return d.ACOutputPower })},
}

func optFloat(get func(omnik.Data) *float64) func(omnik.Data) (string, bool) {
	return func(d omnik.Data) (string, bool) {
		v := get(d)
		if v == nil {
			return "", false
		}
		return strconv.FormatFloat(*v, 'f', -1, 64), true
	}
}

func optInt(get func(omnik.Data) *int) func(omnik.Data) (string, bool) {
	return func(d omnik.Data) (string, bool) {
		v := get(d)
		if v == nil {
			return "", false
		}
		return strconv.Itoa(*v), true
	}
}
