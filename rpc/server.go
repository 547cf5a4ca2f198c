package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vanguardchain/vanguard/log"
	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

const (
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
	pongTimeout   = 60 * time.Second
	sendChanDepth = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlMessage is the minimal client-to-server protocol: subscribe to or
// unsubscribe from one event kind. Full JSON-RPC method dispatch is a
// separate concern this package does not own.
type controlMessage struct {
	Action string    `json:"action"` // "subscribe" or "unsubscribe"
	Kind   EventKind `json:"kind"`
	ID     uint64    `json:"id,omitempty"` // required for "unsubscribe"
}

// Server implements ports.RPCEmitter by pushing JSON events to every
// websocket connection subscribed to the relevant EventKind.
type Server struct {
	subs     *subscriptionManager
	nextConn atomic.Uint64
	log      *log.Logger
}

// NewServer constructs an idle Server; call ServeHTTP (typically mounted
// at a path like "/ws") to start accepting connections.
func NewServer() *Server {
	return &Server{
		subs: newSubscriptionManager(),
		log:  log.Default().Module("rpc"),
	}
}

// ServeHTTP implements http.Handler, upgrading the request to a websocket
// and serving it until the client disconnects. Shutdown does not close
// connections that are already being served.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	connID := s.nextConn.Add(1)
	s.serveConn(connID, conn)
}

func (s *Server) serveConn(connID uint64, conn *websocket.Conn) {
	send := make(chan []byte, sendChanDepth)
	done := make(chan struct{})

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	go s.writePump(conn, send, done)
	s.readPump(connID, conn, send)

	close(done)
	s.subs.removeConn(connID)
	conn.Close()
}

func (s *Server) readPump(connID uint64, conn *websocket.Conn, send chan []byte) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "subscribe":
			if _, err := s.subs.subscribe(connID, msg.Kind, send); err != nil {
				s.log.Warn("subscribe rejected", "err", err, "kind", msg.Kind)
			}
		case "unsubscribe":
			s.subs.unsubscribe(msg.ID)
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case payload := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Shutdown closes the subscription manager so further subscribe attempts
// fail; existing connections drain on their own disconnect.
func (s *Server) Shutdown(context.Context) error {
	s.subs.close()
	return nil
}

// EmitNewHead implements ports.RPCEmitter.
func (s *Server) EmitNewHead(header *types.Header) {
	payload, err := marshalEvent(EventNewHead, newHeaderPayload(header))
	if err != nil {
		s.log.Warn("marshal newHead event failed", "err", err)
		return
	}
	s.subs.broadcast(EventNewHead, payload)
}

// EmitFinalizedHead implements ports.RPCEmitter.
func (s *Server) EmitFinalizedHead(header *types.Header) {
	payload, err := marshalEvent(EventFinalizedHead, newHeaderPayload(header))
	if err != nil {
		s.log.Warn("marshal finalizedHead event failed", "err", err)
		return
	}
	s.subs.broadcast(EventFinalizedHead, payload)
}

// EmitStorageChanged implements ports.RPCEmitter.
func (s *Server) EmitStorageChanged(block types.Hash, changes map[string][]byte) {
	payload, err := marshalEvent(EventStorageChanged, storageChangedPayload{Block: block, Changes: changes})
	if err != nil {
		s.log.Warn("marshal storageChanged event failed", "err", err)
		return
	}
	s.subs.broadcast(EventStorageChanged, payload)
}

// EmitExtrinsicStatus implements ports.RPCEmitter.
func (s *Server) EmitExtrinsicStatus(hash types.Hash, status ports.ExtrinsicStatus) {
	payload, err := marshalEvent(EventExtrinsicStatus, extrinsicStatusPayload{
		Hash:  hash,
		Kind:  status.Kind,
		Block: status.Block,
		Peers: status.Peers,
	})
	if err != nil {
		s.log.Warn("marshal extrinsicStatus event failed", "err", err)
		return
	}
	s.subs.broadcast(EventExtrinsicStatus, payload)
}

var _ ports.RPCEmitter = (*Server)(nil)
