package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/realtime"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleViewWS streams the caller's session view. The first message is
// "init" with the current view, followed by "view" messages whenever new
// results land and "preferences" messages when preferences change.
func (s *Server) HandleViewWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Lookup(r)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Session not found", "No search session for this browser")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id, events := s.hub.Register()
	defer s.hub.Unregister(id)

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctrl := sess.Controller()
	current := ctrl.Snapshot()
	if err := writeEvent(conn, realtime.Event{Type: realtime.TypeInit, Data: NewViewResponse(current)}); err != nil {
		return
	}

	views := make(chan controller.View, 1)
	go watchViews(ctx, ctrl, current, views)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case v := <-views:
			if err := writeEvent(conn, realtime.Event{Type: realtime.TypeView, Data: NewViewResponse(v)}); err != nil {
				return
			}
		}
	}
}

// watchViews sends every view that differs from the previous one in what
// a browser displays. Only the latest unsent view is kept.
func watchViews(ctx context.Context, ctrl *controller.Controller, last controller.View, out chan controller.View) {
	for {
		v, err := ctrl.WaitFor(ctx, func(v controller.View) bool {
			return v.Applied != last.Applied || v.Loading != last.Loading || v.Prefs != last.Prefs
		})
		if err != nil {
			return
		}
		last = v
		select {
		case out <- v:
		default:
			select {
			case <-out:
			default:
			}
			out <- v
		}
	}
}

func writeEvent(conn *websocket.Conn, ev realtime.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
