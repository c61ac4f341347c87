package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/signaling"
	"github.com/orbitalk/agent/internal/webrtcpeer"
)

var upgrader = websocket.Upgrader{}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

type fakeFrame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type fakeOrchestrator struct {
	mu    sync.Mutex
	peers map[string]*webrtcpeer.Peer
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{peers: make(map[string]*webrtcpeer.Peer)}
}

func (f *fakeOrchestrator) BuildPeer(peerID, selfDescription string) (*webrtcpeer.Peer, error) {
	peer, err := webrtcpeer.New(commons.NewTestLogger(), peerID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.peers[peerID] = peer
	f.mu.Unlock()
	return peer, nil
}

func (f *fakeOrchestrator) HasPeer(peerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.peers[peerID]
	return ok
}

// roomServer records every frame it receives, answers request_connection
// with a canned answer, and lets the test inject server->client frames
// via the returned send function.
func roomServer(t *testing.T) (*httptest.Server, chan fakeFrame, func(fakeFrame)) {
	t.Helper()
	received := make(chan fakeFrame, 16)
	var mu sync.Mutex
	var conn *websocket.Conn

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		mu.Lock()
		conn = c
		mu.Unlock()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			var frame fakeFrame
			require.NoError(t, json.Unmarshal(data, &frame))
			received <- frame

			if frame.Method == "request_connection" {
				result, _ := json.Marshal(requestConnectionResult{Answer: webrtcpeer.SDP{SDP: "v=0", Type: "answer"}})
				resp, _ := json.Marshal(fakeFrame{ID: frame.ID, Result: result})
				c.WriteMessage(websocket.TextMessage, resp)
			}
		}
	}))

	send := func(frame fakeFrame) {
		data, _ := json.Marshal(frame)
		mu.Lock()
		defer mu.Unlock()
		require.NotNil(t, conn)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}
	return srv, received, send
}

func TestSupervisor_JoinSendsJoinNotification(t *testing.T) {
	srv, received, _ := roomServer(t)
	defer srv.Close()

	client := signaling.NewClient(commons.NewTestLogger(), wsURL(srv.URL), nil)
	orch := newFakeOrchestrator()
	sup := New(commons.NewTestLogger(), client, orch, "room-1")

	require.NoError(t, sup.Join(context.Background(), "{}"))

	select {
	case frame := <-received:
		assert.Equal(t, "join", frame.Method)
		assert.Empty(t, frame.ID)
	case <-time.After(time.Second):
		t.Fatal("join never arrived")
	}
}

func TestSupervisor_PeerAddedDrivesOfferAnswerExchange(t *testing.T) {
	srv, received, send := roomServer(t)
	defer srv.Close()

	client := signaling.NewClient(commons.NewTestLogger(), wsURL(srv.URL), nil)
	orch := newFakeOrchestrator()
	sup := New(commons.NewTestLogger(), client, orch, "room-1")

	require.NoError(t, sup.Join(context.Background(), "{}"))
	<-received // join

	params, _ := json.Marshal(peerAddedParams{PeerID: "peer-1", SelfDescription: "{}"})
	send(fakeFrame{Method: "peer_added", Params: params})

	select {
	case frame := <-received:
		assert.Equal(t, "request_connection", frame.Method)
	case <-time.After(time.Second):
		t.Fatal("request_connection never arrived")
	}

	assert.Eventually(t, func() bool { return orch.HasPeer("peer-1") }, time.Second, 10*time.Millisecond)
}

func TestSupervisor_AddICECandidateTimesOutWhenPeerNeverAppears(t *testing.T) {
	srv, received, send := roomServer(t)
	defer srv.Close()

	client := signaling.NewClient(commons.NewTestLogger(), wsURL(srv.URL), nil)
	orch := newFakeOrchestrator()
	sup := New(commons.NewTestLogger(), client, orch, "room-1")
	forwarded := make(chan struct{}, 1)
	sup.SetCandidateForwarder(func(peerID string, candidate webrtcpeer.ICECandidate) error {
		forwarded <- struct{}{}
		return nil
	})

	require.NoError(t, sup.Join(context.Background(), "{}"))
	<-received // join

	params, _ := json.Marshal(addICECandidateParams{PeerID: "ghost-peer", Candidate: webrtcpeer.ICECandidate{Candidate: "candidate:1"}})
	send(fakeFrame{Method: "add_ice_candidate", Params: params})

	select {
	case <-forwarded:
		t.Fatal("candidate should never have been forwarded for an untracked peer")
	case <-time.After(icePeerWaitTimeout + 500*time.Millisecond):
	}
}
