package network

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/log"
	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

// writeFramedMessage writes protocol-name-length + protocol-name +
// payload-length + payload, so a single TCP connection can carry every protocol's traffic
// multiplexed, matching the single-stream-per-dial economics a real
// libp2p host would give for free.
func writeFramedMessage(w *bufio.Writer, protocol string, payload []byte) error {
	if err := writeLengthPrefixed(w, []byte(protocol)); err != nil {
		return err
	}
	if err := writeLengthPrefixed(w, payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeLengthPrefixed(w *bufio.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLengthPrefixed(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Handler processes one inbound message on a given protocol from peer.
type Handler func(peer ports.PeerID, msg []byte)

// Host is a TCP-backed ports.NetworkHost. Each configured peer has one
// persistent outbound connection reused across Send/Broadcast calls; each
// inbound connection is served by a goroutine dispatching frames to the
// registered protocol handler.
type Host struct {
	mu    sync.Mutex
	conns map[ports.PeerID]net.Conn
	addrs map[ports.PeerID]string
	dial  func(addr string) (net.Conn, error)

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	listener net.Listener
	log      *log.Logger
}

// NewHost constructs a Host that dials peers with net.Dial (tcp).
func NewHost(logger *log.Logger) *Host {
	if logger == nil {
		logger = log.Default().Module("network")
	}
	return &Host{
		conns:    map[ports.PeerID]net.Conn{},
		addrs:    map[ports.PeerID]string{},
		dial:     func(addr string) (net.Conn, error) { return net.Dial("tcp", addr) },
		handlers: map[string]Handler{},
		log:      logger,
	}
}

// Handle registers the handler invoked for every inbound message on
// protocol. Replaces any previously registered handler for that protocol.
func (h *Host) Handle(protocol string, fn Handler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[protocol] = fn
}

// Listen accepts inbound connections on addr until ctx is cancelled.
func (h *Host) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "network: listen")
	}
	h.listener = ln
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go h.acceptLoop(ln)
	return nil
}

func (h *Host) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed, likely via ctx cancellation
		}
		go h.serve(conn)
	}
}

func (h *Host) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		protocolBytes, err := readLengthPrefixed(r)
		if err != nil {
			return
		}
		payload, err := readLengthPrefixed(r)
		if err != nil {
			return
		}
		h.dispatch(ports.PeerID(conn.RemoteAddr().String()), string(protocolBytes), payload)
	}
}

func (h *Host) dispatch(peer ports.PeerID, protocol string, payload []byte) {
	h.handlersMu.RLock()
	fn, ok := h.handlers[protocol]
	h.handlersMu.RUnlock()
	if !ok {
		h.log.Warn("dropped message for unregistered protocol", "protocol", protocol, "peer", peer)
		return
	}
	fn(peer, payload)
}

// Dial registers addr as how peer is reached, opening the connection lazily
// on first Send/Broadcast/OpenStream.
func (h *Host) Dial(peer ports.PeerID, addr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[peer]; ok {
		return
	}
	h.conns[peer] = nil // resolved lazily; addr is looked up via h.addrs
	h.addrs[peer] = addr
}

func (h *Host) connFor(peer ports.PeerID) (net.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[peer]; ok && conn != nil {
		return conn, nil
	}
	addr, ok := h.addrs[peer]
	if !ok {
		return nil, errors.Wrap(types.ErrPeerTimeout, "network: no known address for peer")
	}
	conn, err := h.dial(addr)
	if err != nil {
		return nil, errors.Wrap(types.ErrPeerTimeout, err.Error())
	}
	h.conns[peer] = conn
	return conn, nil
}

// Send implements ports.NetworkHost.
func (h *Host) Send(ctx context.Context, peer ports.PeerID, protocol string, msg []byte) error {
	conn, err := h.connFor(peer)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(conn)
	if err := writeFramedMessage(w, protocol, msg); err != nil {
		return errors.Wrap(types.ErrWriteFailed, err.Error())
	}
	return nil
}

// Broadcast implements ports.NetworkHost by sending msg to every dialed
// peer; a failure to reach one peer does not stop delivery to the rest.
func (h *Host) Broadcast(ctx context.Context, protocol string, msg []byte) error {
	h.mu.Lock()
	peers := make([]ports.PeerID, 0, len(h.conns))
	for p := range h.conns {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	var firstErr error
	for _, p := range peers {
		if err := h.Send(ctx, p, protocol, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenStream implements ports.NetworkHost as a thin wrapper exposing the
// peer's underlying connection directly; protocol framing for anything
// sent over it is the caller's responsibility (see sync.HostFetcher).
func (h *Host) OpenStream(ctx context.Context, peer ports.PeerID, protocol string) (ports.Stream, error) {
	conn, err := h.connFor(peer)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close tears down every outbound connection and the inbound listener.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		if conn != nil {
			conn.Close()
		}
	}
	if h.listener != nil {
		return h.listener.Close()
	}
	return nil
}
