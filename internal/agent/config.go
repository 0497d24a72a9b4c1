package agent

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/internal/hal"
	"github.com/autopeer-io/mfrhal/internal/notifier"
	"github.com/autopeer-io/mfrhal/internal/pkg/metrics"
	"github.com/autopeer-io/mfrhal/internal/server"
	"github.com/autopeer-io/mfrhal/internal/server/http"
	mqttserver "github.com/autopeer-io/mfrhal/internal/server/mqtt"
	"github.com/autopeer-io/mfrhal/internal/spool"
	"github.com/autopeer-io/mfrhal/internal/storage"
	"github.com/autopeer-io/mfrhal/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/mfrhal/pkg/mqtt/topic"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

type Config struct {
	UpgradeOptions *options.UpgradeOptions
	DeviceOptions  *options.DeviceOptions
	HttpOptions    *options.HttpOptions
	MqttOptions    *options.MqttOptions
	SpoolOptions   *options.SpoolOptions
	S3Options      *options.S3Options

	// Runner replaces the shell runner of the HAL.
	Runner fwupgrade.CommandRunner

	// MqttClient replaces the client built from MqttOptions.
	MqttClient mqtt.Client

	// Registry receives the metrics and backs /metrics. Nil uses the
	// prometheus default registry.
	Registry *prometheus.Registry
}

func (cfg *Config) NewAgent() (*Agent, error) {
	did := cfg.DeviceOptions.ID
	if did == "" {
		return nil, fmt.Errorf("FATAL: no device ID configured")
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if cfg.Registry != nil {
		registerer, gatherer = cfg.Registry, cfg.Registry
	}
	if err := metrics.Register(registerer); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	tracker := fwupgrade.NewTracker(cfg.UpgradeOptions.HistorySize)
	sinks := []fwupgrade.Sink{tracker}

	var servers, publishers []server.Server

	var (
		mqttClient   mqtt.Client
		topicBuilder *mqtttopic.TopicBuilder
	)
	if cfg.MqttOptions.Enabled() {
		var err error
		mqttClient, topicBuilder, err = cfg.initMqttClientAndTopicBuilder(did)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		progress := notifier.NewMQTTNotifier(mqttClient, topicBuilder, did)
		sinks = append(sinks, progress)
		publishers = append(publishers, progress)
	}

	device := hal.New(hal.Config{
		UpgradeOptions: cfg.UpgradeOptions,
		DeviceOptions:  cfg.DeviceOptions,
		Runner:         cfg.Runner,
		Sinks:          sinks,
	})

	if mqttClient != nil {
		ingress := mqttserver.NewServer(mqttClient, topicBuilder, did, device, tracker, cfg.MqttOptions.AcceptRequests)
		if cfg.S3Options.Enabled() {
			store, err := storage.NewMinIOProvider(cfg.S3Options)
			if err != nil {
				return nil, err
			}
			ingress.WithImageStore(store)
		}
		servers = append(servers, ingress)
	}
	if cfg.HttpOptions.Addr != "" {
		servers = append(servers, http.NewServer(cfg.HttpOptions, device, tracker, gatherer))
	}
	if cfg.SpoolOptions.Enabled() {
		servers = append(servers, spool.NewWatcher(cfg.SpoolOptions, device, tracker))
	}

	return NewAgent(did, device, server.NewManager(servers...), server.NewManager(publishers...)), nil
}

func (cfg *Config) initMqttClientAndTopicBuilder(did string) (mqtt.Client, *mqtttopic.TopicBuilder, error) {
	topicBuilder := mqtttopic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)
	if cfg.MqttClient != nil {
		return cfg.MqttClient, topicBuilder, nil
	}

	mqttConfig := cfg.MqttOptions.ToClientConfig(fmt.Sprintf("mfr-upgraded-%s", did))

	// The broker announces the device offline if the connection drops.
	mqttConfig.WillTopic = topicBuilder.Online(did)
	mqttConfig.WillPayload = mqttserver.OfflinePayload()
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topicBuilder, nil
}
