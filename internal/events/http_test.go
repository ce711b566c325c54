package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskloop/automation/internal/contracts"
)

func newTestServer(t *testing.T, register func(d *Dispatcher)) *httptest.Server {
	t.Helper()
	d := NewDispatcher(testLogger(), time.Second, 4)
	if register != nil {
		register(d)
	}
	h := NewHTTPHandler(d, []Subscription{
		NewSubscription(contracts.TopicTasks),
		NewSubscription(contracts.TopicReminders),
	})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func postEvent(t *testing.T, srv *httptest.Server, topic string, body []byte) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/events/"+topic, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("posting event: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, decoded
}

func TestHTTPDelivery_Success(t *testing.T) {
	srv := newTestServer(t, func(d *Dispatcher) {
		d.Register(contracts.TypeTaskDeleted, HandlerFunc(func(context.Context, contracts.Envelope) error {
			return nil
		}))
	})

	raw := rawEnvelope(t, contracts.TypeTaskDeleted, "user-1", contracts.TaskDeletedPayload{TaskID: 7, UserID: "user-1"})
	status, body := postEvent(t, srv, contracts.TopicTasks, raw)
	if status != http.StatusOK || body["status"] != "SUCCESS" {
		t.Fatalf("expected 200 SUCCESS, got %d %v", status, body)
	}
}

func TestHTTPDelivery_RetryOnHandlerFailure(t *testing.T) {
	srv := newTestServer(t, func(d *Dispatcher) {
		d.Register(contracts.TypeTaskDeleted, HandlerFunc(func(context.Context, contracts.Envelope) error {
			return errors.New("store unavailable")
		}))
	})

	raw := rawEnvelope(t, contracts.TypeTaskDeleted, "user-1", contracts.TaskDeletedPayload{TaskID: 7, UserID: "user-1"})
	status, body := postEvent(t, srv, contracts.TopicTasks, raw)
	if status != http.StatusInternalServerError || body["status"] != "RETRY" {
		t.Fatalf("expected 500 RETRY, got %d %v", status, body)
	}
}

func TestHTTPDelivery_MalformedBodyIsDroppedWith200(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := postEvent(t, srv, contracts.TopicTasks, []byte("{not json"))
	if status != http.StatusOK || body["status"] != "DROP" {
		t.Fatalf("expected 200 DROP, got %d %v", status, body)
	}
}

func TestHTTPDelivery_UnknownTopic(t *testing.T) {
	srv := newTestServer(t, nil)

	status, _ := postEvent(t, srv, "invoices", []byte("{}"))
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown topic, got %d", status)
	}
}

func TestHTTPSubscriptions(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/subscriptions")
	if err != nil {
		t.Fatalf("fetching subscriptions: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var subs []Subscription
	if err := json.NewDecoder(resp.Body).Decode(&subs); err != nil {
		t.Fatalf("decoding subscriptions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}
	if subs[0].Topic != contracts.TopicTasks || subs[0].Route != "/events/tasks" {
		t.Fatalf("unexpected first subscription: %+v", subs[0])
	}
	if subs[0].DeadLetter == "" || subs[1].DeadLetter == "" {
		t.Fatalf("subscriptions must advertise a dead-letter destination: %+v", subs)
	}
}

func TestHTTPHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("fetching healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
