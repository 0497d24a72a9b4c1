package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/mfrhal/internal/notifier"
	mqttserver "github.com/autopeer-io/mfrhal/internal/server/mqtt"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
	pkgmqtt "github.com/autopeer-io/mfrhal/pkg/mqtt"
	"github.com/autopeer-io/mfrhal/pkg/mqtt/topic"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

type recordingRunner struct {
	mu       sync.Mutex
	commands []string
}

func (r *recordingRunner) Run(_ context.Context, command string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	return 0, nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

func newTestConfig(t *testing.T, runner *recordingRunner) *Config {
	t.Helper()

	upgrade := options.NewUpgradeOptions()
	upgrade.FlashScript = "flash"
	upgrade.PrepareScript = ""

	httpOpts := options.NewHttpOptions()
	httpOpts.Addr = "127.0.0.1:0"

	spoolOpts := options.NewSpoolOptions()
	spoolOpts.Dir = t.TempDir()

	return &Config{
		UpgradeOptions: upgrade,
		DeviceOptions:  &options.DeviceOptions{ID: "dev-1", SerializedDir: t.TempDir()},
		HttpOptions:    httpOpts,
		MqttOptions:    options.NewMqttOptions(),
		SpoolOptions:   spoolOpts,
		Runner:         runner,
		Registry:       prometheus.NewRegistry(),
	}
}

func TestAgentRun(t *testing.T) {
	runner := &recordingRunner{}
	cfg := newTestConfig(t, runner)

	// Markers present at startup are picked up by the initial scan.
	marker := filepath.Join(cfg.SpoolOptions.Dir, "img.bin.ready")
	require.NoError(t, os.WriteFile(marker, []byte("cdl"), 0o600))

	agent, err := cfg.NewAgent()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.NoFileExists(t, marker)

	cancel()
	require.NoError(t, <-done)

	_, kind := agent.Device().GetUpgradeStatus()
	assert.Equal(t, mfr.NotInitialized, kind)
}

func TestAgentServerFailure(t *testing.T) {
	cfg := newTestConfig(t, &recordingRunner{})
	cfg.HttpOptions.Addr = "127.0.0.1:-1"

	agent, err := cfg.NewAgent()
	require.NoError(t, err)

	select {
	case err := <-runAsync(agent):
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestNewAgentRequiresDeviceID(t *testing.T) {
	cfg := newTestConfig(t, &recordingRunner{})
	cfg.DeviceOptions.ID = ""

	_, err := cfg.NewAgent()
	assert.Error(t, err)
}

func TestNewAgentWithMqtt(t *testing.T) {
	cfg := newTestConfig(t, &recordingRunner{})
	cfg.MqttOptions.Broker = "tcp://127.0.0.1:1883"

	_, err := cfg.NewAgent()
	assert.NoError(t, err)

	cfg.MqttOptions.Broker = "127.0.0.1"
	_, err = cfg.NewAgent()
	assert.Error(t, err)
}

func runAsync(a *Agent) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	return done
}

// gateRunner blocks every command until release is closed.
type gateRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *gateRunner) Run(context.Context, string) (int, error) {
	r.started <- struct{}{}
	<-r.release
	return 0, nil
}

type message struct {
	topic   string
	payload []byte
}

// fakeBroker refuses publishes once disconnected, like a real client.
type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	msgs      []message
}

var _ pkgmqtt.Client = (*fakeBroker)(nil)

func (b *fakeBroker) Start(context.Context) error { return nil }

func (b *fakeBroker) AwaitConnection(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *fakeBroker) Disconnect(context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Publish(_ context.Context, topic string, _ int, _ bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return errors.New("not connected")
	}
	b.msgs = append(b.msgs, message{topic: topic, payload: payload})
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string, int, pkgmqtt.MessageHandler) error {
	return nil
}

func (b *fakeBroker) Unsubscribe(context.Context, string) error { return nil }

func (b *fakeBroker) messages() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.msgs...)
}

func TestAgentPublishesUpgradesFinishingAtShutdown(t *testing.T) {
	runner := &gateRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	broker := &fakeBroker{}

	cfg := newTestConfig(t, &recordingRunner{})
	cfg.Runner = runner
	cfg.HttpOptions.Addr = ""
	cfg.SpoolOptions.Dir = ""
	cfg.MqttOptions.Broker = "tcp://127.0.0.1:1883"
	cfg.MqttClient = broker

	agent, err := cfg.NewAgent()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, kind := agent.Device().GetUpgradeStatus()
		return kind == mfr.NoError
	}, 5*time.Second, 10*time.Millisecond)

	task, err := agent.Device().Submit("img.bin", "/tmp/fw", mfr.ImageTypeCDL, mfr.Notifier{})
	require.NoError(t, err)
	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("flash did not start")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("agent stopped before the running upgrade finished")
	case <-time.After(100 * time.Millisecond):
	}
	close(runner.release)
	require.NoError(t, <-done)

	topics := topic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)
	completed, offline := -1, -1
	for i, m := range broker.messages() {
		switch m.topic {
		case topics.OTAProgress("dev-1"):
			var pm notifier.ProgressMessage
			require.NoError(t, json.Unmarshal(m.payload, &pm))
			if pm.TaskID == task.ID() && pm.Status.Progress == mfr.ProgressCompleted {
				completed = i
			}
		case topics.Online("dev-1"):
			var om mqttserver.OnlineMessage
			require.NoError(t, json.Unmarshal(m.payload, &om))
			if !om.Online {
				offline = i
			}
		}
	}

	require.GreaterOrEqual(t, completed, 0, "terminal status was not published")
	require.GreaterOrEqual(t, offline, 0, "device was not announced offline")
	assert.Less(t, completed, offline)
}
