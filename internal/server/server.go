// Package server implements the five request handlers (Register, Login,
// ValidateToken, Logout, ChangePassword) and the dispatch table that routes
// a parsed packet to its handler. Grounded on AuthServer.h's composition of
// a database manager and a security manager behind one server type, and on
// internal/auth/service.go's Service-as-single-dependency idiom.
package server

import (
	"log"

	"github.com/google/uuid"

	"github.com/Svetlana-gith/dota2clone-authd/internal/protocol"
	"github.com/Svetlana-gith/dota2clone-authd/internal/security"
	"github.com/Svetlana-gith/dota2clone-authd/internal/store"
)

// Server wires the store and the in-memory security policy together and
// dispatches parsed packets to their handlers.
type Server struct {
	store    *store.Store
	policy   *security.Policy
	hashCost int
	stats    Stats
}

// New constructs a Server over an already-open store and security policy.
// hashCost is the operator-tunable cost factor passed to every
// HashPassword call this server makes (registration, password change).
func New(st *store.Store, policy *security.Policy, hashCost int) *Server {
	return &Server{store: st, policy: policy, hashCost: hashCost}
}

// Stats returns a snapshot of the request counters.
func (s *Server) Stats() Snapshot {
	return s.stats.Snapshot()
}

// Handle runs the common prelude and dispatch for one parsed request
// datagram. Returns the encoded response to send, or nil if the request
// should be silently dropped (blacklisted sender).
func (s *Server) Handle(pkt protocol.Packet, senderIP string) []byte {
	if s.policy.Blacklist.IsBlacklisted(senderIP) {
		return nil
	}

	s.stats.incTotalRequests()
	traceID := uuid.New().String()
	log.Printf("[auth %s] %s from %s (req %d)", traceID, pkt.Header.Type, senderIP, pkt.Header.RequestID)

	switch pkt.Header.Type {
	case protocol.MsgRegisterRequest:
		return s.handleRegister(pkt, senderIP, traceID)
	case protocol.MsgLoginRequest:
		return s.handleLogin(pkt, senderIP, traceID)
	case protocol.MsgValidateTokenRequest:
		return s.handleValidateToken(pkt, senderIP, traceID)
	case protocol.MsgLogoutRequest:
		return s.handleLogout(pkt, senderIP, traceID)
	case protocol.MsgChangePasswordRequest:
		return s.handleChangePassword(pkt, senderIP, traceID)
	default:
		log.Printf("[auth %s] unknown message type %d", traceID, pkt.Header.Type)
		return protocol.BuildError(pkt.Header.RequestID, protocol.ResultServerError, "unknown message type")
	}
}
