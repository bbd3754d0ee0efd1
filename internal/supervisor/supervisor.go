// Package supervisor owns the lifecycle and liveness of the runtime's
// logical services (planner, memory, toolbox, scheduler, the
// language-model facade), grounded in the teacher stack's own
// tick-loop/Start-Stop shape (internal/scheduler) and its
// request/response transport conventions (internal/mcp's JSON-RPC
// envelope), generalised from one fixed protocol into the
// Service/RPC split below.
package supervisor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/observability"
)

// Service is one logical unit the supervisor owns. Dispatch handles a
// single named method call; a "healthcheck" method is always routed
// to Healthcheck rather than Dispatch, so implementations never need
// to special-case it.
type Service interface {
	// ServiceID is the stable identifier the service is registered and
	// addressed under.
	ServiceID() string
	// Dispatch handles one RPC call. Unknown methods return a
	// herr.NotFound error.
	Dispatch(ctx context.Context, method string, argsJSON json.RawMessage) (json.RawMessage, error)
	// Healthcheck reports the service's own liveness signal. A service
	// with no interesting internal check simply returns nil.
	Healthcheck(ctx context.Context) error
}

// Status is the supervisor's last-known view of one service.
type Status struct {
	Running   bool
	Healthy   bool
	LastCheck time.Time
	Error     string
}

const (
	startupTimeout     = 30 * time.Second
	healthPollInterval = 5 * time.Second
	healthPollTimeout  = 2 * time.Second
)

// registration pairs a Service with its RPC server, if one has been
// attached via RegisterRemote.
type registration struct {
	svc    Service
	server *rpcServer
}

// Supervisor registers service classes against stable serviceIds,
// starts each in an isolated context, and polls health on an
// interval. It fails the whole startup fast if any one service's
// start-up step errors or exceeds the startup timeout.
type Supervisor struct {
	log *observability.Logger

	mu     sync.RWMutex
	regs   map[string]*registration
	status map[string]Status

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	issuer *TokenIssuer
}

// New constructs an empty Supervisor.
func New(log *observability.Logger) *Supervisor {
	return &Supervisor{
		log:    log,
		regs:   make(map[string]*registration),
		status: make(map[string]Status),
	}
}

// SetCallbackAuth attaches a TokenIssuer that every RegisterRemote
// service's RPC endpoint will require going forward; nil disables the
// check. Call before RegisterRemote so the issuer is in place when
// each rpcServer is built.
func (s *Supervisor) SetCallbackAuth(issuer *TokenIssuer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuer = issuer
}

// Register adds a service under its own ServiceID. It must be called
// before Start; registering the same ServiceID twice is a Conflict.
func (s *Supervisor) Register(svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return herr.New(herr.Internal, "supervisor: cannot register after Start")
	}
	id := svc.ServiceID()
	if _, exists := s.regs[id]; exists {
		return herr.New(herr.Conflict, "supervisor: service already registered: "+id)
	}
	s.regs[id] = &registration{svc: svc}
	s.status[id] = Status{}
	return nil
}

// RegisterRemote additionally exposes svc over a well-known TCP port
// via net/rpc/jsonrpc, per the Service RPC contract — one exported
// Call(method, argsJSON) -> {success, dataJSON, error} method covering
// every call. Most in-process callers never need this; it exists for
// the services a deployment chooses to run out-of-process.
func (s *Supervisor) RegisterRemote(svc Service, addr string) error {
	if err := s.Register(svc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[svc.ServiceID()].server = newRPCServer(svc, addr, s.log, s.issuer)
	return nil
}

// Start initializes every registered service (each given up to
// startupTimeout) and, if any step fails or times out, fails the
// whole startup with an aggregate error naming the failing service —
// fail-fast, per the supervisor's startup contract. On success it
// begins the health-poll loop and returns.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	regs := make(map[string]*registration, len(s.regs))
	for id, r := range s.regs {
		regs[id] = r
	}
	s.mu.Unlock()

	for id, r := range regs {
		startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		err := s.startOne(startCtx, r)
		cancel()
		if err != nil {
			return herr.Wrap(herr.Internal, err, "supervisor: service failed to start: "+id)
		}
		s.mu.Lock()
		s.status[id] = Status{Running: true, Healthy: true, LastCheck: time.Now()}
		s.mu.Unlock()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.started = true
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.healthLoop(runCtx)

	return nil
}

// startOne brings up a single service's RPC listener, if any, and
// runs its first healthcheck as the startup probe.
func (s *Supervisor) startOne(ctx context.Context, r *registration) error {
	if r.server != nil {
		if err := r.server.Listen(); err != nil {
			return err
		}
	}
	return r.svc.Healthcheck(ctx)
}

// Stop halts the health-poll loop and closes any RPC listeners. It
// does not call into the services themselves beyond that — each
// service owns its own internal shutdown via its ctx being cancelled
// by the caller.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	regs := make(map[string]*registration, len(s.regs))
	for id, r := range s.regs {
		regs[id] = r
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	for _, r := range regs {
		if r.server != nil {
			r.server.Close()
		}
	}
}

// RemoteAddr returns the bound address of a RegisterRemote service's
// RPC listener, useful when it was opened on an ephemeral port. It is
// only valid after Start.
func (s *Supervisor) RemoteAddr(serviceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regs[serviceID]
	if !ok || r.server == nil {
		return "", false
	}
	return r.server.Addr(), true
}

// Status returns the last-polled status of one registered service.
func (s *Supervisor) Status(serviceID string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[serviceID]
	return st, ok
}

// CallService is the in-process entry point for calling a registered
// service's Dispatch method directly, bypassing any RPC transport —
// the same contract an out-of-process caller gets via the RPC server,
// minus the wire hop.
func (s *Supervisor) CallService(ctx context.Context, serviceID, method string, argsJSON json.RawMessage) (json.RawMessage, error) {
	s.mu.RLock()
	r, ok := s.regs[serviceID]
	s.mu.RUnlock()
	if !ok {
		return nil, herr.New(herr.NotFound, "supervisor: unknown service: "+serviceID)
	}
	if method == "healthcheck" {
		if err := r.svc.Healthcheck(ctx); err != nil {
			return nil, err
		}
		return json.RawMessage(`{}`), nil
	}
	return r.svc.Dispatch(ctx, method, argsJSON)
}

// healthLoop polls every registered service's Healthcheck every
// healthPollInterval, bounding each probe to healthPollTimeout, and
// records {running, healthy, lastCheck, error?} per the supervisor's
// health contract. A failed poll marks the service unhealthy but
// leaves Running true — crash detection is the caller's own ctx
// cancellation showing up in a later poll's error.
func (s *Supervisor) healthLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAll(ctx)
		}
	}
}

func (s *Supervisor) pollAll(ctx context.Context) {
	s.mu.RLock()
	regs := make(map[string]*registration, len(s.regs))
	for id, r := range s.regs {
		regs[id] = r
	}
	s.mu.RUnlock()

	for id, r := range regs {
		pollCtx, cancel := context.WithTimeout(ctx, healthPollTimeout)
		err := r.svc.Healthcheck(pollCtx)
		cancel()

		st := Status{Running: true, LastCheck: time.Now()}
		if err != nil {
			st.Healthy = false
			st.Error = err.Error()
			if s.log != nil {
				s.log.Error(ctx, "service healthcheck failed", "service", id, "error", err)
			}
		} else {
			st.Healthy = true
		}

		s.mu.Lock()
		s.status[id] = st
		s.mu.Unlock()
	}
}
