package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleStreamWS serves /ws/stream: clients send subscribe/unsubscribe
// commands and receive periodic tick batches from the broadcaster. Disconnect
// cleanup runs synchronously before the handler returns, so a closed socket
// never holds feeds open.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := s.hub.Add(conn, s.sendBuf)
	defer func() {
		s.registry.DropSocket(c.ID)
		s.hub.Drop(c.ID)
	}()

	s.log.Info("stream client connected", "socket", c.ID)

	c.ReadLoop(func(msg []byte) {
		var cmd StreamCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			s.hub.Send(c.ID, StreamError{Type: "error", Error: "malformed command"})
			return
		}

		switch cmd.Op {
		case "subscribe":
			if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
				s.hub.Send(c.ID, StreamError{Type: "error", Error: err.Error()})
				return
			}
			if err := s.registry.Subscribe(r.Context(), c.ID, cmd.Symbol); err != nil {
				s.hub.Send(c.ID, StreamError{Type: "error", Error: err.Error()})
				return
			}
			s.hub.Send(c.ID, StreamAck{Type: "subscribed", Symbol: cmd.Symbol})
		case "unsubscribe":
			s.registry.Unsubscribe(c.ID, cmd.Symbol)
			s.hub.Send(c.ID, StreamAck{Type: "unsubscribed", Symbol: cmd.Symbol})
		default:
			s.hub.Send(c.ID, StreamError{Type: "error", Error: "op must be subscribe or unsubscribe"})
		}
	})

	s.log.Info("stream client disconnected", "socket", c.ID)
}

// handleOrdersWS serves /ws/orders: every upstream order event is pushed to
// the socket for as long as it stays connected.
func (s *Server) handleOrdersWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := s.hub.Add(conn, s.sendBuf)
	listenerID, events := s.relay.Attach()
	defer func() {
		s.relay.Detach(listenerID)
		s.hub.Drop(c.ID)
	}()

	s.log.Info("orders client connected", "socket", c.ID)

	// Pump relay events to the socket until detach closes the channel.
	go func() {
		for u := range events {
			s.hub.Send(c.ID, OrderEventMessage{Type: "orderEvent", Data: u})
		}
	}()

	c.ReadLoop(nil)
	s.log.Info("orders client disconnected", "socket", c.ID)
}
