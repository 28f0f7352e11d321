// internal/api/server_test.go
package api

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

type recordingEndpoint struct {
	name   string
	caps   Capability
	polls  int
	events []string
}

func (e *recordingEndpoint) Name() string { return e.name }

func (e *recordingEndpoint) Protocols() []Protocol {
	return []Protocol{{Name: e.name, Capabilities: e.caps}}
}

func (e *recordingEndpoint) Poll() { e.polls++ }

func (e *recordingEndpoint) PushEvent(event string, data map[string]interface{}) {
	e.events = append(e.events, event)
}

func TestExecuteRunsHandler(t *testing.T) {
	server := NewServer(zap.NewNop(), "")
	server.RegisterMethod("wifi/status", NewMethod(MethodGet,
		func(args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"enabled": true}, nil
		}).Build())

	response, err := server.Execute("serial", "wifi/status", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if response["enabled"] != true {
		t.Fatalf("response = %v", response)
	}
}

func TestExecuteUnknownPath(t *testing.T) {
	server := NewServer(zap.NewNop(), "")

	_, err := server.Execute("serial", "no/such", nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("err = %v, want ErrMethodNotFound", err)
	}
}

func TestExecuteRefusesEventPaths(t *testing.T) {
	server := NewServer(zap.NewNop(), "")
	server.RegisterMethod("wifi/scan_done", NewEvent().Desc("scan finished").Build())

	_, err := server.Execute("serial", "wifi/scan_done", nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("err = %v, want ErrMethodNotFound", err)
	}
}

func TestExecuteValidatesRequiredParams(t *testing.T) {
	server := NewServer(zap.NewNop(), "")
	server.RegisterMethod("wifi/config", NewMethod(MethodSet,
		func(args map[string]interface{}) (map[string]interface{}, error) {
			return nil, nil
		}).
		Param("ssid", "string", true).
		Param("channel", "int", false).
		Build())

	if _, err := server.Execute("serial", "wifi/config", map[string]interface{}{
		"channel": 11,
	}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("missing required param: err = %v, want ErrInvalidParams", err)
	}

	if _, err := server.Execute("serial", "wifi/config", map[string]interface{}{
		"ssid": "mynet",
	}); err != nil {
		t.Fatalf("optional param absent: err = %v", err)
	}
}

func TestExecuteMapsHandlerError(t *testing.T) {
	server := NewServer(zap.NewNop(), "")
	server.RegisterMethod("wifi/connect", NewMethod(MethodSet,
		func(args map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("radio off")
		}).Build())

	_, err := server.Execute("serial", "wifi/connect", nil)
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
}

func TestExecuteAuth(t *testing.T) {
	var seen map[string]interface{}
	server := NewServer(zap.NewNop(), "secret")
	server.RegisterMethod("system/reset", NewMethod(MethodSet,
		func(args map[string]interface{}) (map[string]interface{}, error) {
			seen = args
			return nil, nil
		}).Auth().Build())

	_, err := server.Execute("serial", "system/reset", map[string]interface{}{
		"auth": map[string]interface{}{"password": "wrong"},
	})
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("wrong password: err = %v, want ErrAuthFailed", err)
	}

	_, err = server.Execute("serial", "system/reset", nil)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("missing credential: err = %v, want ErrAuthFailed", err)
	}

	_, err = server.Execute("serial", "system/reset", map[string]interface{}{
		"auth": map[string]interface{}{"password": "secret"},
	})
	if err != nil {
		t.Fatalf("correct password: err = %v", err)
	}
	if _, leaked := seen["auth"]; leaked {
		t.Fatal("credential must be stripped before the handler runs")
	}
}

func TestExecuteAuthWithEmptyConfiguredPassword(t *testing.T) {
	server := NewServer(zap.NewNop(), "")
	server.RegisterMethod("system/reset", NewMethod(MethodSet,
		func(args map[string]interface{}) (map[string]interface{}, error) {
			return nil, nil
		}).Auth().Build())

	// No configured credential means protected methods stay locked.
	_, err := server.Execute("serial", "system/reset", map[string]interface{}{
		"auth": map[string]interface{}{"password": ""},
	})
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestAPIDocOrderAndShape(t *testing.T) {
	server := NewServer(zap.NewNop(), "")
	server.AddEndpoint(&recordingEndpoint{name: "serial", caps: CapGet | CapSet | CapEvt})

	server.RegisterMethod("wifi/status", NewMethod(MethodGet,
		func(args map[string]interface{}) (map[string]interface{}, error) { return nil, nil }).
		Desc("AP state").
		Response("enabled", "bool", true).
		Build())
	server.RegisterMethod("wifi/config", NewMethod(MethodSet,
		func(args map[string]interface{}) (map[string]interface{}, error) { return nil, nil }).
		Desc("configure AP").
		Param("ssid", "string", true).
		ObjectParam("ap", false,
			Param{Name: "channel", Type: "int", Required: true},
		).
		Build())

	docs := server.APIDoc()
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if docs[0].Path != "wifi/status" || docs[1].Path != "wifi/config" {
		t.Fatalf("registration order not preserved: %s, %s", docs[0].Path, docs[1].Path)
	}
	if docs[0].Response["enabled"] != "bool" {
		t.Fatalf("response doc = %v", docs[0].Response)
	}
	if docs[1].Params["ssid"] != "string" {
		t.Fatalf("params doc = %v", docs[1].Params)
	}
	nested, ok := docs[1].Params["ap"].(map[string]interface{})
	if !ok || nested["channel"] != "int" {
		t.Fatalf("object param doc = %v", docs[1].Params["ap"])
	}
	if len(docs[0].Protocols) != 1 || docs[0].Protocols[0] != "serial" {
		t.Fatalf("protocols = %v", docs[0].Protocols)
	}
}

func TestBroadcastRespectsCapabilities(t *testing.T) {
	server := NewServer(zap.NewNop(), "")
	evented := &recordingEndpoint{name: "serial", caps: CapGet | CapSet | CapEvt}
	plain := &recordingEndpoint{name: "modbus", caps: CapGet | CapSet}
	server.AddEndpoint(evented)
	server.AddEndpoint(plain)

	server.Broadcast("system/heartbeat", map[string]interface{}{"uptime": 1})

	if len(evented.events) != 1 || evented.events[0] != "system/heartbeat" {
		t.Fatalf("evented endpoint got %v", evented.events)
	}
	if len(plain.events) != 0 {
		t.Fatalf("endpoint without EVT capability got %v", plain.events)
	}
}

func TestPollDrivesEndpoints(t *testing.T) {
	server := NewServer(zap.NewNop(), "")
	a := &recordingEndpoint{name: "a", caps: CapGet}
	b := &recordingEndpoint{name: "b", caps: CapGet}
	server.AddEndpoint(a)
	server.AddEndpoint(b)

	server.Poll()
	server.Poll()

	if a.polls != 2 || b.polls != 2 {
		t.Fatalf("polls = %d, %d, want 2 each", a.polls, b.polls)
	}
}
