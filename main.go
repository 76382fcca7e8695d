package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/alecthomas/repr"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/exporter-toolkit/web"
	slogzap "github.com/samber/slog-zap/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/omniktools/omnik_exporter/collector"
	"github.com/omniktools/omnik_exporter/hass"
	"github.com/omniktools/omnik_exporter/omnik"
)

func main() {
	app := &cli.App{
		Usage: "Queries an Omnik solar inverter over its TCP protocol and republishes the telemetry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "host",
				Required: true,
				Usage:    "IP address or hostname of the inverter Wi-Fi kit",
				EnvVars:  []string{"OMNIK_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   omnik.DefaultPort,
				EnvVars: []string{"OMNIK_PORT"},
			},
			&cli.Int64Flag{
				Name:     "serial",
				Required: true,
				Usage:    "serial number of the Wi-Fi kit (the numeric one on the sticker)",
				EnvVars:  []string{"OMNIK_SERIAL"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   omnik.DefaultTimeout,
				Usage:   "budget for the connect and for the response read, each",
				EnvVars: []string{"OMNIK_TIMEOUT"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Value: false,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "query",
				Usage:  "fetch one snapshot and dump it",
				Action: actionQuery,
			},
			{
				Name:   "check",
				Usage:  "validate that the inverter is reachable with the given host/port/serial",
				Action: actionCheck,
			},
			{
				Name:  "prom",
				Usage: "serve the telemetry as prometheus metrics, one fetch cycle per scrape",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "http-listen-address",
						Value:   ":9109",
						EnvVars: []string{"HTTP_LISTEN_ADDRESS"},
					},
					&cli.StringFlag{
						Name:  "http-path-metrics",
						Value: "/metrics",
					},
					&cli.BoolFlag{
						Name:  "enable-exporter-metrics",
						Value: false,
						Usage: "if true sends metrics about the go runtime",
					},
				},
				Action: actionProm,
			},
			{
				Name:  "hass",
				Usage: "poll the inverter and publish to MQTT with Home Assistant discovery",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "mqtt-url",
						Required: true,
						Usage:    "mqtt://hostname:port",
						EnvVars:  []string{"MQTT_HOSTS"},
					},
					&cli.StringFlag{
						Name:    "mqtt-user",
						Value:   "",
						EnvVars: []string{"MQTT_USERNAME"},
					},
					&cli.StringFlag{
						Name:    "mqtt-pass",
						Value:   "",
						EnvVars: []string{"MQTT_PASSWORD"},
					},
					&cli.StringFlag{
						Name:  "topic",
						Value: "omnik",
						Usage: "state topic prefix and Home Assistant device id",
					},
					&cli.StringFlag{
						Name:  "device-name",
						Value: "",
						Usage: "Home Assistant device name, defaults to the topic prefix",
					},
					&cli.DurationFlag{
						Name:    "interval",
						Value:   30 * time.Second,
						EnvVars: []string{"OMNIK_INTERVAL"},
					},
				},
				Action: actionHass,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) *zap.Logger {
	zapencCfg := zap.NewProductionEncoderConfig()
	zapencCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	zapLvl := zap.InfoLevel
	if c.Bool("verbose") {
		zapLvl = zap.DebugLevel
	}
	return zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zapencCfg),
		zapcore.AddSync(os.Stdout),
		zapLvl,
	))
}

func newInverter(c *cli.Context, log *zap.Logger) (*omnik.Inverter, error) {
	return omnik.New(c.String("host"), c.Int("port"), c.Int64("serial"), omnik.Options{
		Timeout: c.Duration("timeout"),
		Log:     log,
	})
}

func actionQuery(c *cli.Context) error {
	zaplog := newLogger(c)
	defer zaplog.Sync()

	inv, err := newInverter(c, zaplog)
	if err != nil {
		return err
	}

	data, err := inv.GetData(c.Context)
	if err != nil {
		return err
	}

	fmt.Println(repr.String(data, repr.Indent("  ")))
	return nil
}

func actionCheck(c *cli.Context) error {
	zaplog := newLogger(c)
	defer zaplog.Sync()

	inv, err := newInverter(c, zaplog)
	if err != nil {
		return err
	}

	if err := inv.TestConnection(c.Context); err != nil {
		return err
	}

	zaplog.Info("inverter is reachable",
		zap.String("host", c.String("host")),
		zap.Int("port", c.Int("port")))
	return nil
}

func actionProm(c *cli.Context) error {
	zaplog := newLogger(c)
	defer zaplog.Sync()

	inv, err := newInverter(c, zaplog)
	if err != nil {
		return err
	}

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(collector.NewCollector(inv, collector.Options{
		// connect and read each get the full --timeout budget
		Timeout: 2*c.Duration("timeout") + time.Second,
		Log:     zaplog,
	}))

	if c.Bool("enable-exporter-metrics") {
		reg.MustRegister(
			collectors.NewBuildInfoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
			version.NewCollector("omnik_exporter"),
		)
	}

	http.Handle(c.String("http-path-metrics"), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
			<head><title>Omnik Exporter</title></head>
			<body>
			<h1>Omnik Exporter</h1>
			<p><a href="` + c.String("http-path-metrics") + `">Metrics</a></p>
			</body>
			</html>`))
	})

	server := &http.Server{}

	zaplog.Info("http config",
		zap.String("path", c.String("http-path-metrics")),
		zap.String("listen_address", c.String("http-listen-address")),
	)

	slogLogWrap := slog.New(slogzap.Option{Level: slog.LevelDebug, Logger: zaplog}.NewZapHandler())

	var empty string
	if err := web.ListenAndServe(server, &web.FlagConfig{
		WebListenAddresses: &[]string{c.String("http-listen-address")},
		WebSystemdSocket:   nil,
		WebConfigFile:      &empty,
	}, slogLogWrap); err != nil {
		zaplog.Fatal("ListenAndServe failed", zap.Error(err))
		return err
	}

	return nil
}

func actionHass(c *cli.Context) error {
	zaplog := newLogger(c)
	defer zaplog.Sync()

	inv, err := newInverter(c, zaplog)
	if err != nil {
		return err
	}

	availabilityTopic := c.String("topic") + "/availability"
	mqc, cancel, err := newMQTTClient(c, availabilityTopic)
	if err != nil {
		return err
	}
	defer cancel()

	bridge, err := hass.NewBridge(inv, mqc, hass.Options{
		TopicPrefix: c.String("topic"),
		DeviceName:  c.String("device-name"),
		Interval:    c.Duration("interval"),
		Timeout:     2*c.Duration("timeout") + time.Second,
		Log:         zaplog,
	})
	if err != nil {
		return err
	}

	return bridge.Run(c.Context)
}

func newMQTTClient(c *cli.Context, willTopic string) (mqtt.Client, func(), error) {
	o := mqtt.NewClientOptions()
	for _, mqttUrl := range c.StringSlice("mqtt-url") {
		u, err := url.Parse(mqttUrl)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse URL: %q with: %w", mqttUrl, err)
		}
		o.Servers = append(o.Servers, u)
	}
	o.Username = c.String("mqtt-user")
	o.Password = c.String("mqtt-pass")
	o.AutoReconnect = true
	o.SetWill(willTopic, "offline", 0, true)

	mqc := mqtt.NewClient(o)

	tk := mqc.Connect()
	<-tk.Done()
	if err := tk.Error(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}

	return mqc, func() {
		mqc.Disconnect(100)
	}, nil
}
