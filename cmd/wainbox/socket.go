package main

import (
	"context"
	"net/http"
	"time"

	"wainbox/internal/models"
	"wainbox/internal/service"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// socketSubscribe is the first frame a client must send; it scopes the
// session to a set of instances. An empty list means all instances of the
// workspace.
type socketSubscribe struct {
	Action    string   `json:"action"`
	Instances []string `json:"instances,omitempty"`
}

// socketAck is the per-frame reply.
type socketAck struct {
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	socketSubscribeTimeout = 10 * time.Second
	socketFrameTimeout     = 5 * time.Minute
)

// handleSocket upgrades to a websocket and ingests typed realtime frames.
// The workspace was already resolved by the API-key middleware.
func (s *Server) handleSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspace := workspaceFromContext(r.Context())
		if workspace == nil {
			s.writeError(w, http.StatusUnauthorized, "missing workspace")
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Warn("Websocket accept failed")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "closing")

		logger := s.logger.WithFields(logrus.Fields{
			service.LogFieldWorkspace: workspace.ID,
			service.LogFieldComponent: "socket",
		})

		subscribed, err := s.readSubscribe(r.Context(), conn)
		if err != nil {
			logger.WithError(err).Info("Socket closed before subscribe")
			conn.Close(websocket.StatusPolicyViolation, "subscribe required")
			return
		}

		logger.WithField(service.LogFieldCount, len(subscribed)).Info("Socket session subscribed")

		for {
			frame, err := s.readFrame(r.Context(), conn)
			if err != nil {
				status := websocket.CloseStatus(err)
				if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
					logger.Debug("Socket session closed")
				} else {
					logger.WithError(err).Debug("Socket read failed")
				}
				return
			}

			ack := s.processFrame(r.Context(), workspace, frame, subscribed, logger)

			writeCtx, cancel := context.WithTimeout(r.Context(), socketSubscribeTimeout)
			err = wsjson.Write(writeCtx, conn, ack)
			cancel()
			if err != nil {
				logger.WithError(err).Debug("Socket write failed")
				return
			}
		}
	}
}

func (s *Server) readSubscribe(ctx context.Context, conn *websocket.Conn) (map[string]bool, error) {
	subCtx, cancel := context.WithTimeout(ctx, socketSubscribeTimeout)
	defer cancel()

	var sub socketSubscribe
	if err := wsjson.Read(subCtx, conn, &sub); err != nil {
		return nil, err
	}

	subscribed := make(map[string]bool, len(sub.Instances))
	for _, name := range sub.Instances {
		subscribed[name] = true
	}
	return subscribed, nil
}

func (s *Server) readFrame(ctx context.Context, conn *websocket.Conn) (*models.SocketFrame, error) {
	frameCtx, cancel := context.WithTimeout(ctx, socketFrameTimeout)
	defer cancel()

	var frame models.SocketFrame
	if err := wsjson.Read(frameCtx, conn, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

func (s *Server) processFrame(ctx context.Context, workspace *models.Workspace, frame *models.SocketFrame, subscribed map[string]bool, logger *logrus.Entry) socketAck {
	if len(subscribed) > 0 && !subscribed[frame.Instance] {
		return socketAck{OK: false, Error: "instance not subscribed"}
	}

	outcome, err := s.ingestor.IngestSocketFrame(ctx, workspace, frame)
	if err != nil {
		logger.WithError(err).Warn("Socket frame processing failed")
		return socketAck{OK: false, Error: "processing failed"}
	}

	return socketAck{OK: true, Duplicate: outcome.Duplicate}
}
