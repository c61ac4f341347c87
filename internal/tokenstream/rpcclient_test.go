package tokenstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalk/agent/internal/commons"
)

var upgrader = websocket.Upgrader{}

type serverFrame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// fakeAgentServer answers connect_to_context with a canned
// AgentProfile, then emits one on_token notification after each
// add_message it sees.
func fakeAgentServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame serverFrame
			require.NoError(t, json.Unmarshal(data, &frame))

			switch frame.Method {
			case "connect_to_context":
				result, _ := json.Marshal(connectResult{Success: true, Agent: AgentProfile{VoiceID: "v1", Provider: "rpc"}})
				resp, _ := json.Marshal(serverFrame{ID: frame.ID, Result: result})
				require.NoError(t, conn.WriteMessage(websocket.TextMessage, resp))
			case "add_message":
				notif, _ := json.Marshal(serverFrame{Method: "on_token", Params: mustMarshal(onTokenParams{Token: "hi", ResponseID: "r1"})})
				require.NoError(t, conn.WriteMessage(websocket.TextMessage, notif))
			}
		}
	}))
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestRPCClient_ConnectAndTokenDelivery(t *testing.T) {
	srv := fakeAgentServer(t)
	defer srv.Close()

	c, err := Dial(context.Background(), commons.NewTestLogger(), wsURL(srv.URL))
	require.NoError(t, err)
	defer c.Close()

	tokens := make(chan string, 1)
	c.OnToken(func(token, responseID string) { tokens <- token })

	profile, err := c.Connect(context.Background(), "ctx-1", "token-1")
	require.NoError(t, err)
	assert.Equal(t, "v1", profile.VoiceID)

	require.NoError(t, c.AddMessage(context.Background(), "hello there"))

	select {
	case token := <-tokens:
		assert.Equal(t, "hi", token)
	case <-time.After(time.Second):
		t.Fatal("on_token never arrived")
	}
}

func TestRPCClient_ConnectFailureSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame serverFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		result, _ := json.Marshal(connectResult{Success: false})
		resp, _ := json.Marshal(serverFrame{ID: frame.ID, Result: result})
		conn.WriteMessage(websocket.TextMessage, resp)
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), commons.NewTestLogger(), wsURL(srv.URL))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Connect(context.Background(), "ctx-1", "token-1")
	assert.Error(t, err)
}
