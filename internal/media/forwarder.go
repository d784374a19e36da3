// Package media owns the UDP socket and the datagram fan-out loop.
package media

import (
	"errors"
	"log/slog"
	"net"
	"net/netip"

	"golos/server/internal/core"
	"golos/server/internal/metrics"
	"golos/server/internal/protocol"
)

// Forwarder reads media datagrams and retransmits each one to every bound
// peer in the sender's room. A single goroutine drains the socket, which
// keeps per-sender ordering without any queueing.
type Forwarder struct {
	conn     *net.UDPConn
	reg      *core.Registry
	counters *metrics.Counters
	log      *slog.Logger
}

// NewForwarder wires a forwarder to an already-bound UDP socket.
func NewForwarder(conn *net.UDPConn, reg *core.Registry, counters *metrics.Counters, log *slog.Logger) *Forwarder {
	return &Forwarder{
		conn:     conn,
		reg:      reg,
		counters: counters,
		log:      log.With("subsystem", "media"),
	}
}

// Run loops until the socket is closed. Per-datagram errors never stop the
// loop.
func (f *Forwarder) Run() {
	buf := make([]byte, protocol.MaxDatagram)
	for {
		n, src, err := f.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			f.log.Debug("media read failed", "err", err)
			continue
		}
		f.handleDatagram(buf[:n], src)
	}
}

func (f *Forwarder) handleDatagram(data []byte, src netip.AddrPort) {
	f.counters.DatagramsIn.Add(1)

	// Bound endpoints forward the whole datagram verbatim, prefix included,
	// so receivers can label the speaker. The binding datagram forwards only
	// the payload behind the prefix.
	out := data
	sender, bound := f.reg.SenderByEndpoint(src)
	if !bound {
		var ok bool
		sender, out, ok = f.bind(data, src)
		if !ok {
			f.counters.DatagramsDropped.Add(1)
			return
		}
	}

	for _, peer := range f.reg.MediaPeers(sender.Room, src) {
		if _, err := f.conn.WriteToUDPAddrPort(out, peer); err != nil {
			f.log.Debug("media send failed", "peer", peer, "err", err)
			continue
		}
		f.counters.DatagramsForwarded.Add(1)
		f.counters.BytesForwarded.Add(uint64(len(out)))
	}
}

// bind treats the first datagram from an unknown endpoint as an
// identification assertion: a 32-byte zero-padded name prefix, then payload.
// Datagrams that cannot bind are dropped without side effects.
func (f *Forwarder) bind(data []byte, src netip.AddrPort) (core.Sender, []byte, bool) {
	name, payload, ok := protocol.ParseSenderName(data)
	if !ok {
		f.log.Debug("unbindable datagram", "from", src, "len", len(data))
		return core.Sender{}, nil, false
	}
	sender, err := f.reg.BindMedia(name, src)
	if err != nil {
		f.log.Debug("media bind rejected", "name", name, "from", src, "err", err)
		return core.Sender{}, nil, false
	}
	return sender, payload, true
}
