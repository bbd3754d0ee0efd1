package supervisor_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hearthai/hearth/internal/herr"
	"github.com/hearthai/hearth/internal/supervisor"
)

// stubService is a minimal supervisor.Service for testing registration,
// dispatch, and healthcheck plumbing without a real backing service.
type stubService struct {
	id        string
	healthErr error
	dispatch  func(ctx context.Context, method string, argsJSON json.RawMessage) (json.RawMessage, error)
}

func (s *stubService) ServiceID() string { return s.id }

func (s *stubService) Healthcheck(ctx context.Context) error { return s.healthErr }

func (s *stubService) Dispatch(ctx context.Context, method string, argsJSON json.RawMessage) (json.RawMessage, error) {
	if s.dispatch != nil {
		return s.dispatch(ctx, method, argsJSON)
	}
	return nil, herr.New(herr.NotFound, "unknown method: "+method)
}

func TestRegisterRejectsDuplicateServiceID(t *testing.T) {
	sup := supervisor.New(nil)
	svc := &stubService{id: "planner"}
	if err := sup.Register(svc); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := sup.Register(&stubService{id: "planner"})
	if !herr.Is(err, herr.Conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestStartFailsFastOnUnhealthyService(t *testing.T) {
	sup := supervisor.New(nil)
	if err := sup.Register(&stubService{id: "memory"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Register(&stubService{id: "toolbox", healthErr: errors.New("init failed")}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := sup.Start(context.Background())
	if err == nil {
		t.Fatal("expected start to fail")
	}
}

func TestCallServiceRoutesHealthcheckAndDispatch(t *testing.T) {
	sup := supervisor.New(nil)
	svc := &stubService{
		id: "planner",
		dispatch: func(ctx context.Context, method string, argsJSON json.RawMessage) (json.RawMessage, error) {
			if method == "processMessage" {
				return json.RawMessage(`{"ok":true}`), nil
			}
			return nil, herr.New(herr.NotFound, "unknown method: "+method)
		},
	}
	if err := sup.Register(svc); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop()

	if _, err := sup.CallService(context.Background(), "planner", "healthcheck", nil); err != nil {
		t.Fatalf("healthcheck call: %v", err)
	}

	data, err := sup.CallService(context.Background(), "planner", "processMessage", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("dispatch call: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("unexpected data: %s", data)
	}

	if _, err := sup.CallService(context.Background(), "nonexistent", "healthcheck", nil); !herr.Is(err, herr.NotFound) {
		t.Fatalf("expected not_found for unknown service, got %v", err)
	}
}

func TestStatusReflectsHealthAfterStart(t *testing.T) {
	sup := supervisor.New(nil)
	if err := sup.Register(&stubService{id: "scheduler"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop()

	st, ok := sup.Status("scheduler")
	if !ok {
		t.Fatal("expected status for registered service")
	}
	if !st.Running || !st.Healthy {
		t.Fatalf("expected running and healthy, got %+v", st)
	}
}

func TestRegisterRemoteServesCallOverRPC(t *testing.T) {
	svc := &stubService{
		id: "toolbox",
		dispatch: func(ctx context.Context, method string, argsJSON json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"method":"` + method + `"}`), nil
		},
	}
	sup := supervisor.New(nil)
	if err := sup.RegisterRemote(svc, "127.0.0.1:0"); err != nil {
		t.Fatalf("register remote: %v", err)
	}
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop()

	addr, ok := sup.RemoteAddr("toolbox")
	if !ok || addr == "" {
		t.Fatal("expected a bound remote address")
	}

	client, err := supervisor.Dial("toolbox", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Call(supervisor.DispatchRequest{Method: "listTools"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if string(resp.DataJSON) != `{"method":"listTools"}` {
		t.Fatalf("unexpected data: %s", resp.DataJSON)
	}

	healthResp, err := client.Call(supervisor.DispatchRequest{Method: "healthcheck"})
	if err != nil {
		t.Fatalf("healthcheck call: %v", err)
	}
	if !healthResp.Success {
		t.Fatalf("expected healthcheck success, got %+v", healthResp)
	}
}
