package deriv

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeUpstream - тестовый WebSocket API площадки
type fakeUpstream struct {
	server *httptest.Server

	mu          sync.Mutex
	validToken  string
	authorize   map[string]interface{}
	silentAuth  bool
	silentBuy   bool
	buyError    *APIError
	events      []string
	dropOnEvent bool
	connections int
	requests    []map[string]interface{}
}

func newFakeUpstream(t *testing.T, validToken string) *fakeUpstream {
	t.Helper()

	f := &fakeUpstream{
		validToken: validToken,
		authorize: map[string]interface{}{
			"loginid":    "CR100001",
			"currency":   "USD",
			"email":      "master@example.com",
			"balance":    1500.5,
			"is_virtual": 0,
		},
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		f.mu.Lock()
		f.connections++
		f.mu.Unlock()

		f.serve(conn)
	}))
	t.Cleanup(f.server.Close)

	return f
}

// configure меняет поведение под блокировкой
func (f *fakeUpstream) configure(fn func(f *fakeUpstream)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeUpstream) URL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeUpstream) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections
}

func (f *fakeUpstream) Requests() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.requests...)
}

func (f *fakeUpstream) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req map[string]interface{}
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		validToken := f.validToken
		authorize := f.authorize
		silentAuth := f.silentAuth
		silentBuy := f.silentBuy
		buyError := f.buyError
		events := append([]string(nil), f.events...)
		dropOnEvent := f.dropOnEvent
		f.mu.Unlock()

		switch {
		case req["authorize"] != nil:
			if silentAuth {
				continue
			}
			if req["authorize"] != validToken {
				writeFrame(conn, map[string]interface{}{
					"msg_type": "authorize",
					"error":    map[string]string{"code": "InvalidToken", "message": "The token is invalid."},
				})
				continue
			}
			writeFrame(conn, map[string]interface{}{"msg_type": "authorize", "authorize": authorize})

		case req["buy"] != nil:
			if silentBuy {
				continue
			}
			if buyError != nil {
				writeFrame(conn, map[string]interface{}{"msg_type": "buy", "error": buyError})
				continue
			}
			writeFrame(conn, map[string]interface{}{
				"msg_type": "buy",
				"buy": map[string]interface{}{
					"contract_id":    "250001",
					"transaction_id": "990001",
					"buy_price":      req["price"],
					"balance_after":  90,
				},
			})

		case req["transaction"] != nil:
			writeFrame(conn, map[string]interface{}{
				"msg_type":     "transaction",
				"transaction":  map[string]interface{}{},
				"subscription": map[string]string{"id": "sub-1"},
			})
			for _, raw := range events {
				conn.WriteMessage(websocket.TextMessage, []byte(raw))
			}
			if dropOnEvent {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame interface{}) {
	data, _ := json.Marshal(frame)
	conn.WriteMessage(websocket.TextMessage, data)
}
