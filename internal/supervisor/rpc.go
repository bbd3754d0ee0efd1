package supervisor

import (
	"context"
	"encoding/json"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"github.com/hearthai/hearth/internal/observability"
)

// DispatchRequest is the single RPC envelope every service call uses,
// per the Service RPC contract's one-method-covers-everything shape.
// Token carries a TokenIssuer-minted callback token; it is required
// only when the rpcServer was constructed with an issuer attached.
type DispatchRequest struct {
	Method   string          `json:"method"`
	ArgsJSON json.RawMessage `json:"argsJson"`
	Token    string          `json:"token,omitempty"`
}

// DispatchResponse mirrors the {success, dataJson, error} wire shape.
type DispatchResponse struct {
	Success  bool            `json:"success"`
	DataJSON json.RawMessage `json:"dataJson,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// rpcEndpoint is the exported type net/rpc registers: a single method,
// Call, thin-wraps a Service's Dispatch/Healthcheck behind the
// DispatchRequest/DispatchResponse envelope.
type rpcEndpoint struct {
	svc    Service
	issuer *TokenIssuer
}

// Call is the RPC method every service exposes. "healthcheck" is
// routed to the service's Healthcheck rather than Dispatch, so
// implementations never need to special-case it themselves. When the
// endpoint was constructed with a TokenIssuer, req.Token must verify
// to this service's ServiceID or the call is rejected before reaching
// Dispatch/Healthcheck.
func (e *rpcEndpoint) Call(req DispatchRequest, resp *DispatchResponse) error {
	ctx := context.Background()
	if e.issuer != nil {
		subject, err := e.issuer.Verify(req.Token)
		if err != nil || subject != e.svc.ServiceID() {
			resp.Success = false
			resp.Error = "unauthorized callback token"
			return nil
		}
	}
	var (
		data json.RawMessage
		err  error
	)
	if req.Method == "healthcheck" {
		err = e.svc.Healthcheck(ctx)
		if err == nil {
			data = json.RawMessage(`{}`)
		}
	} else {
		data, err = e.svc.Dispatch(ctx, req.Method, req.ArgsJSON)
	}

	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		return nil
	}
	resp.Success = true
	resp.DataJSON = data
	return nil
}

// rpcServer hosts one Service's rpcEndpoint on a well-known TCP port
// using the standard library's net/rpc/jsonrpc codec, per Open
// Question (e)'s transport resolution.
type rpcServer struct {
	addr   string
	log    *observability.Logger
	server *rpc.Server

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func newRPCServer(svc Service, addr string, log *observability.Logger, issuer *TokenIssuer) *rpcServer {
	server := rpc.NewServer()
	_ = server.RegisterName(svc.ServiceID(), &rpcEndpoint{svc: svc, issuer: issuer})
	return &rpcServer{addr: addr, log: log, server: server}
}

// Listen opens the TCP listener and begins accepting connections in
// the background, serving each with the JSON-RPC codec.
func (s *rpcServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.acceptLoop(ln)
	return nil
}

func (s *rpcServer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			if s.log != nil {
				s.log.Error(context.Background(), "supervisor rpc: accept failed", "error", err)
			}
			return
		}
		go s.server.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Addr returns the listener's bound address, useful when Listen was
// given an ephemeral port ("host:0").
func (s *rpcServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops accepting new connections. In-flight calls are not
// interrupted.
func (s *rpcServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.listener == nil {
		return
	}
	s.closed = true
	_ = s.listener.Close()
}
