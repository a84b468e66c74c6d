package test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/course-checkout/gateway"
)

type gatewayCall struct {
	path string
	body map[string]any
}

// mockGateway checks every request's signature and approves it unless
// decline is set.
type mockGateway struct {
	t      *testing.T
	signer *gateway.Signer

	mu      sync.Mutex
	calls   []gatewayCall
	seq     int
	decline bool
}

func newMockGateway(t *testing.T) *mockGateway {
	s, err := gateway.NewSigner(apiKey, secretKey)
	if err != nil {
		t.Fatal(err)
	}
	return &mockGateway{t: t, signer: s}
}

func (m *mockGateway) recorded(path string) []gatewayCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []gatewayCall
	for _, c := range m.calls {
		if c.path == path {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockGateway) setDecline(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decline = v
}

func (m *mockGateway) handle() http.Handler {
	verify := func(next func(body map[string]any) map[string]any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			nonce := r.Header.Get("x-iyzi-rnd")
			if nonce == "" || r.Header.Get("Authorization") != m.signer.Sign(nonce, r.URL.Path, raw) {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"status":"failure","errorCode":"1000","errorMessage":"invalid signature"}`)
				return
			}

			var body map[string]any
			if err := json.Unmarshal(raw, &body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			m.mu.Lock()
			m.calls = append(m.calls, gatewayCall{path: r.URL.Path, body: body})
			m.seq++
			body["_seq"] = m.seq
			decline := m.decline
			m.mu.Unlock()

			resp := map[string]any{
				"status":         "failure",
				"errorCode":      "10051",
				"errorMessage":   "insufficient funds",
				"conversationId": body["conversationId"],
			}
			if !decline {
				resp = next(body)
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}
	}

	charge := verify(func(body map[string]any) map[string]any {
		return map[string]any{
			"status":         "success",
			"paymentStatus":  "SUCCESS",
			"paymentId":      fmt.Sprintf("gw-%d", body["_seq"]),
			"conversationId": body["conversationId"],
			"price":          body["price"],
			"lastFourDigits": "0008",
		}
	})

	initialize := verify(func(body map[string]any) map[string]any {
		return map[string]any{
			"status":             "success",
			"paymentId":          fmt.Sprintf("gw-3ds-%d", body["_seq"]),
			"conversationId":     body["conversationId"],
			"threeDSHtmlContent": "PGh0bWw+PC9odG1sPg==",
		}
	})

	complete := verify(func(body map[string]any) map[string]any {
		return map[string]any{
			"status":         "success",
			"paymentStatus":  "SUCCESS",
			"paymentId":      body["paymentId"],
			"conversationId": body["conversationId"],
		}
	})

	r := mux.NewRouter()
	r.Handle("/payment/auth", charge).Methods(http.MethodPost)
	r.Handle("/payment/3dsecure/initialize", initialize).Methods(http.MethodPost)
	r.Handle("/payment/3dsecure/auth", complete).Methods(http.MethodPost)
	return r
}

// mockCatalog serves course documents the way the catalog service does.
type mockCatalog struct {
	mu      sync.Mutex
	courses map[string]string
	down    bool
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{courses: map[string]string{
		"101": `{"id":101,"title":"Concurrency in Go","price":99.90,"isPublished":true,"instructorId":7}`,
		"102": `{"id":102,"title":"Draft","price":10,"isPublished":false,"instructorId":7}`,
	}}
}

func (m *mockCatalog) setDown(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = v
}

func (m *mockCatalog) handle() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/courses/{id}", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		doc, ok := m.courses[mux.Vars(r)["id"]]
		down := m.down
		m.mu.Unlock()

		switch {
		case down:
			w.WriteHeader(http.StatusBadGateway)
		case !ok:
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, doc)
		}
	}).Methods(http.MethodGet)
	return r
}
