// Package transport runs the single-threaded, non-blocking UDP receive
// loop that feeds datagrams to the server and fires responses back.
// Grounded on AuthServer::Run/Update/ReceivePackets: a bounded burst of
// reads per tick, never more than maxPacketsPerTick, followed by a short
// sleep to avoid busy-waiting an idle socket.
package transport

import (
	"errors"
	"log"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Svetlana-gith/dota2clone-authd/internal/protocol"
)

// maxPacketsPerTick bounds how many datagrams a single loop iteration
// drains before yielding, matching AuthServer::Update's maxPackets=100.
const maxPacketsPerTick = 100

// tickSleep is the pause between ticks when the socket has gone idle,
// matching AuthServer::Run's 1ms sleep_for.
const tickSleep = time.Millisecond

// Handler processes one parsed packet from senderIP and returns the
// response datagram to send, or nil to send nothing.
type Handler func(pkt protocol.Packet, senderIP string) []byte

// Loop owns the UDP socket and the coarse packet-intake limiter that
// protects the handler from a raw flood before any request ever reaches
// the per-operation rate limiter in internal/security.
type Loop struct {
	conn    *net.UDPConn
	handler Handler
	intake  *rate.Limiter
	running atomic.Bool
}

// intakeRate/intakeBurst bound the raw packet rate accepted from any one
// socket read loop before the per-IP/per-operation limiter even sees a
// request; this is a single shared bucket, not per-IP, since reading the
// socket itself is the scarce resource being protected.
const (
	intakeRate  = 2000
	intakeBurst = 4000
)

// Listen binds a UDP socket on port and returns a Loop ready to Run.
func Listen(port int, handler Handler) (*Loop, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		conn:    conn,
		handler: handler,
		intake:  rate.NewLimiter(rate.Limit(intakeRate), intakeBurst),
	}
	return l, nil
}

// Run blocks, draining the socket until Stop is called. Each tick reads up
// to maxPacketsPerTick datagrams, dispatches each to handler, and sends
// any non-nil response back fire-and-forget.
func (l *Loop) Run() {
	l.running.Store(true)
	log.Printf("transport: listening on %s", l.conn.LocalAddr())

	buf := make([]byte, protocol.MaxDatagramSize)
	for l.running.Load() {
		n := l.receiveBurst(buf)
		if n == 0 {
			time.Sleep(tickSleep)
		}
	}
}

// receiveBurst drains up to maxPacketsPerTick datagrams, processing each
// one in turn on this same goroutine (single-threaded, like
// AuthServer::ReceivePackets), stopping early the moment the socket has
// nothing left to read. Returns how many datagrams were processed.
func (l *Loop) receiveBurst(buf []byte) int {
	l.conn.SetReadDeadline(time.Now())

	processed := 0
	for i := 0; i < maxPacketsPerTick; i++ {
		n, senderAddr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		processed++

		if !l.intake.Allow() {
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		l.dispatch(datagram, senderAddr)
	}
	return processed
}

// dispatch parses one datagram and routes it to the handler. A malformed
// or size-mismatched datagram is silently dropped — there is no reliable
// requestId to reply with. An unknown message type still has a valid
// header, so it gets a ServerError reply addressed to the real
// RequestID.
func (l *Loop) dispatch(datagram []byte, senderAddr *net.UDPAddr) {
	pkt, err := protocol.Parse(datagram)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			resp := protocol.BuildError(pkt.Header.RequestID, protocol.ResultServerError, "unknown message type")
			l.send(resp, senderAddr)
		}
		return
	}

	resp := l.handler(pkt, senderAddr.IP.String())
	if resp == nil {
		return
	}
	l.send(resp, senderAddr)
}

func (l *Loop) send(resp []byte, addr *net.UDPAddr) {
	if _, err := l.conn.WriteToUDP(resp, addr); err != nil {
		log.Printf("transport: write to %s: %v", addr, err)
	}
}

// Stop signals Run to return after its current tick and closes the socket.
func (l *Loop) Stop() {
	l.running.Store(false)
	l.conn.Close()
}
