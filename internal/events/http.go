package events

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskloop/automation/internal/messaging"
)

// Subscription is one (topic, route) pair the dispatcher wants delivered,
// with the dead-letter destination configured for that topic.
type Subscription struct {
	Topic      string `json:"topic"`
	Route      string `json:"route"`
	DeadLetter string `json:"deadletter"`
}

// NewSubscription fills in the conventional route and dead-letter subject
// for a topic.
func NewSubscription(topic string) Subscription {
	return Subscription{
		Topic:      topic,
		Route:      "/events/" + topic,
		DeadLetter: messaging.DeadLetterSubject(topic),
	}
}

// HTTPHandler exposes the push-delivery surface: one POST route per topic
// that acks with 2xx or requests redelivery with 5xx, plus the subscription
// discovery endpoint the transport polls at startup.
type HTTPHandler struct {
	Dispatcher    *Dispatcher
	Subscriptions []Subscription
}

func NewHTTPHandler(dispatcher *Dispatcher, subscriptions []Subscription) *HTTPHandler {
	return &HTTPHandler{Dispatcher: dispatcher, Subscriptions: subscriptions}
}

func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/subscriptions", h.handleSubscriptions)
	r.Post("/events/{topic}", h.handleDelivery)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (h *HTTPHandler) handleSubscriptions(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Subscriptions)
}

func (h *HTTPHandler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if !h.knownTopic(topic) {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown topic"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "RETRY"})
		return
	}

	switch h.Dispatcher.Dispatch(r.Context(), body) {
	case Ack:
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "SUCCESS"})
	case Drop:
		// Dropped events are acknowledged: redelivery cannot fix them.
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "DROP"})
	case Retry:
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "RETRY"})
	}
}

func (h *HTTPHandler) knownTopic(topic string) bool {
	for _, sub := range h.Subscriptions {
		if sub.Topic == topic {
			return true
		}
	}
	return false
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
