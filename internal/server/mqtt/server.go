// Package mqtt is the MQTT ingress of the upgrade daemon: it announces the
// device and accepts upgrade requests from the management plane.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/internal/pkg/mqtt/adapter"
	"github.com/autopeer-io/mfrhal/internal/storage"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
	pkgmqtt "github.com/autopeer-io/mfrhal/pkg/mqtt"
	"github.com/autopeer-io/mfrhal/pkg/mqtt/topic"
)

const (
	qos             = 1
	shutdownTimeout = 5 * time.Second
	fetchTimeout    = 15 * time.Minute
)

// UpgradeRequest is received on {root}/ota/request/{deviceID}.
type UpgradeRequest struct {
	RequestID string `json:"requestID"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Type      string `json:"type"`

	// Object names an image in the firmware repository. When set the image
	// is fetched first and Name and Path are ignored.
	Object string `json:"object,omitempty"`
}

// UpgradeAck is published on {root}/ota/ack/{deviceID} for every request.
type UpgradeAck struct {
	RequestID string        `json:"requestID"`
	TaskID    string        `json:"id,omitempty"`
	Error     mfr.ErrorKind `json:"error"`
	Message   string        `json:"message,omitempty"`
}

// OnlineMessage is published retained on {root}/online/{deviceID}.
type OnlineMessage struct {
	Online    bool  `json:"online"`
	Timestamp int64 `json:"timestamp"`
}

// OfflinePayload is the will message registered with the broker.
func OfflinePayload() []byte {
	b, _ := json.Marshal(OnlineMessage{Online: false})
	return b
}

// Server implements the MQTT ingress layer.
type Server struct {
	client   pkgmqtt.Client
	topics   *topic.TopicBuilder
	deviceID string
	upgrader fwupgrade.Submitter
	tracker  *fwupgrade.Tracker
	accept   bool
	store    storage.Provider

	// fetches are the requests still downloading their image. They are
	// cancelled through fetchCtx when the server stops.
	mu        sync.Mutex
	stopping  bool
	fetches   sync.WaitGroup
	fetchCtx  context.Context
	stopFetch context.CancelFunc
}

// NewServer creates a new MQTT server. Requests are only subscribed to when
// accept is set; tracker may be nil.
func NewServer(client pkgmqtt.Client, builder *topic.TopicBuilder, deviceID string, upgrader fwupgrade.Submitter, tracker *fwupgrade.Tracker, accept bool) *Server {
	s := &Server{
		client:   client,
		topics:   builder,
		deviceID: deviceID,
		upgrader: upgrader,
		tracker:  tracker,
		accept:   accept,
	}
	s.fetchCtx, s.stopFetch = context.WithCancel(context.Background())
	return s
}

// WithImageStore lets requests name an image in store instead of a local
// path.
func (s *Server) WithImageStore(store storage.Provider) *Server {
	s.store = store
	return s
}

// Start connects to the broker, announces the device and serves requests
// until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	// 1. Start the connection manager (Non-blocking)
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	// Announce the device as gone and disconnect when Start returns.
	defer func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		s.stopFetch()
		s.fetches.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.client.IsConnected() {
			s.publishOnline(shutdownCtx, false)
		}
		log.Info("Disconnecting MQTT client...")
		s.client.Disconnect(shutdownCtx)
	}()

	// 2. Wait for the initial connection to be established
	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info("MQTT Connected")

	s.publishOnline(ctx, true)

	if s.accept {
		if err := s.initMQTTSubscriptions(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()

	return nil
}

func (s *Server) initMQTTSubscriptions(ctx context.Context) error {
	subscriptions := map[string]adapter.HandlerFunc{
		s.topics.OTARequest(s.deviceID): adapter.JSONHandler(s.handleUpgradeRequest),
	}

	for fullTopic, handler := range subscriptions {
		handler := handler
		if err := s.client.Subscribe(ctx, fullTopic, qos, func(c context.Context, t string, p []byte) {
			if handleErr := handler(c, t, p); handleErr != nil {
				log.Error(handleErr, "Handler execution failed", "topic", t)
			}
		}); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", fullTopic, err)
		}
	}

	return nil
}

func (s *Server) handleUpgradeRequest(ctx context.Context, _ string, req *UpgradeRequest) error {
	if req.Object == "" {
		task, err := s.submit(req)
		return s.ack(ctx, req, task, err)
	}
	if s.store == nil {
		return s.ack(ctx, req, nil, fmt.Errorf("%w: no image store configured", mfr.InvalidParam))
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return s.ack(ctx, req, nil, fmt.Errorf("%w: server is stopping", mfr.InvalidState))
	}
	s.fetches.Add(1)
	s.mu.Unlock()

	// Downloads must not stall the MQTT client, the ack follows once the
	// image is staged.
	go func() {
		defer s.fetches.Done()

		fetchCtx, cancel := context.WithTimeout(s.fetchCtx, fetchTimeout)
		defer cancel()
		task, err := s.fetchAndSubmit(fetchCtx, req)
		if err := s.ack(fetchCtx, req, task, err); err != nil {
			log.Error(err, "Failed to publish upgrade ack", "requestID", req.RequestID)
		}
	}()
	return nil
}

func (s *Server) fetchAndSubmit(ctx context.Context, req *UpgradeRequest) (*fwupgrade.Task, error) {
	dir, name, err := s.store.Fetch(ctx, req.Object)
	if err != nil {
		return nil, err
	}
	staged := *req
	staged.Name, staged.Path = name, dir
	return s.submit(&staged)
}

func (s *Server) ack(ctx context.Context, req *UpgradeRequest, task *fwupgrade.Task, err error) error {
	ack := UpgradeAck{RequestID: req.RequestID}
	if err != nil {
		ack.Error = mfr.KindOf(err)
		ack.Message = err.Error()
		log.Error(err, "Upgrade request rejected", "requestID", req.RequestID, "image", req.Name, "object", req.Object)
	} else {
		ack.TaskID = task.ID()
		log.Info("Upgrade request accepted", "requestID", req.RequestID, "task", task.ID())
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.topics.OTAAck(s.deviceID), qos, false, payload)
}

func (s *Server) submit(req *UpgradeRequest) (*fwupgrade.Task, error) {
	t, err := fwupgrade.ParseImageType(req.Type)
	if err != nil {
		return nil, err
	}

	// Progress reaches the management plane through the progress sink, the
	// request itself needs no callback.
	task, err := s.upgrader.Submit(req.Name, req.Path, t, mfr.Notifier{})
	if err != nil {
		return nil, err
	}
	if s.tracker != nil {
		s.tracker.Track(task.ID())
	}
	return task, nil
}

func (s *Server) publishOnline(ctx context.Context, online bool) {
	payload, _ := json.Marshal(OnlineMessage{Online: online, Timestamp: time.Now().Unix()})
	if err := s.client.Publish(ctx, s.topics.Online(s.deviceID), qos, true, payload); err != nil {
		log.Error(err, "Failed to publish online status", "online", online)
	}
}
