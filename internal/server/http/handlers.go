package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
)

const (
	maxRequestBody = 64 << 10

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

type postUpgradeRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

type postUpgradeResponse struct {
	ID     string            `json:"id"`
	Status mfr.UpgradeStatus `json:"status"`
}

type upgradeStatusResponse struct {
	Progress mfr.UpgradeProgress `json:"progress"`
	Error    mfr.ErrorKind       `json:"error"`
}

type errorResponse struct {
	Error   mfr.ErrorKind `json:"error"`
	Message string        `json:"message,omitempty"`
}

func (s *Server) handlePostUpgrade(w http.ResponseWriter, r *http.Request) {
	var req postUpgradeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.jsonError(w, mfr.InvalidParam, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	t, err := fwupgrade.ParseImageType(req.Type)
	if err != nil {
		s.jsonError(w, mfr.KindOf(err), err.Error())
		return
	}

	// HTTP callers follow progress through the events stream.
	task, err := s.device.Submit(req.Name, req.Path, t, mfr.Notifier{})
	if err != nil {
		s.jsonError(w, mfr.KindOf(err), err.Error())
		return
	}
	s.tracker.Track(task.ID())

	s.jsonResponse(w, &postUpgradeResponse{ID: task.ID(), Status: task.Status()}, http.StatusAccepted)
}

func (s *Server) handleListUpgrades(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, s.tracker.List(), http.StatusOK)
}

func (s *Server) handleGetUpgrade(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	summary, ok := s.tracker.Get(id)
	if !ok {
		s.notFound(w, fmt.Sprintf("no upgrade with id %s", id))
		return
	}
	s.jsonResponse(w, summary, http.StatusOK)
}

func (s *Server) handleUpgradeStatus(w http.ResponseWriter, r *http.Request) {
	progress, kind := s.device.GetUpgradeStatus()
	if kind == mfr.NotInitialized {
		s.jsonError(w, kind, "")
		return
	}
	s.jsonResponse(w, &upgradeStatusResponse{Progress: progress, Error: kind}, http.StatusOK)
}

func (s *Server) handleSerialized(w http.ResponseWriter, r *http.Request) {
	t, err := mfr.ParseSerializedType(mux.Vars(r)["type"])
	if err != nil {
		s.jsonError(w, mfr.InvalidParam, err.Error())
		return
	}

	data, kind := s.device.GetSerializedData(t)
	switch kind {
	case mfr.NoError:
	case mfr.OperationNotSupported:
		s.notFound(w, fmt.Sprintf("%s is not provided by this device", t))
		return
	default:
		s.jsonError(w, kind, "")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data.Buf)
}

func (s *Server) handleUpgradeEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		events, cancel, ok := s.tracker.Subscribe(id)
		if !ok {
			s.notFound(w, fmt.Sprintf("no upgrade with id %s", id))
			return
		}
		defer cancel()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied to the client.
			s.log.Error(err, "Websocket upgrade failed", "task", id)
			return
		}
		defer c.Close()

		// read pump, only there to process control frames
		closed := make(chan struct{})
		go func() {
			defer close(closed)

			c.SetReadLimit(512)
			_ = c.SetReadDeadline(time.Now().Add(wsPongWait))
			c.SetPongHandler(func(string) error {
				return c.SetReadDeadline(time.Now().Add(wsPongWait))
			})

			for {
				if _, _, err := c.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						s.log.Error(err, "Unexpected websocket closure", "task", id)
					}
					return
				}
			}
		}()

		// write pump
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-events:
				_ = c.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := c.WriteJSON(&ev); err != nil {
					return
				}
			case <-ticker.C:
				_ = c.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(err, "Failed to write response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, kind mfr.ErrorKind, message string) {
	s.jsonResponse(w, &errorResponse{Error: kind, Message: message}, statusCode(kind))
}

func (s *Server) notFound(w http.ResponseWriter, message string) {
	s.jsonResponse(w, &errorResponse{Error: mfr.OperationNotSupported, Message: message}, http.StatusNotFound)
}

func statusCode(kind mfr.ErrorKind) int {
	switch kind {
	case mfr.NoError:
		return http.StatusOK
	case mfr.InvalidParam:
		return http.StatusBadRequest
	case mfr.ResourceExhausted, mfr.NotInitialized, mfr.InvalidState:
		return http.StatusServiceUnavailable
	case mfr.OperationNotSupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
