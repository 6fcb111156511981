package server

import (
	"chat_relay/internal/config"
	"chat_relay/internal/model"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeBinder struct {
	users map[string]model.Identity
}

func (f *fakeBinder) Bind(_ context.Context, cookieHeader string) (model.Identity, error) {
	for _, part := range strings.Split(cookieHeader, ";") {
		token, ok := strings.CutPrefix(strings.TrimSpace(part), "token=")
		if !ok {
			continue
		}
		if ident, ok := f.users[token]; ok {
			return ident, nil
		}
		return model.Identity{}, errors.New("unknown token")
	}
	return model.Identity{}, errors.New("no token")
}

func newTestHTTPServer(t *testing.T) (*httptest.Server, *fakeMessageStore) {
	t.Helper()
	cfg := &config.Config{
		PingInterval: 50 * time.Millisecond,
		PongDeadline: 500 * time.Millisecond,
		SendBuffer:   32,
		UploadDir:    t.TempDir(),
	}
	binder := &fakeBinder{users: map[string]model.Identity{
		"tok-alice": {ID: "u1", DisplayName: "alice"},
		"tok-bob":   {ID: "u2", DisplayName: "bob"},
	}}
	store := &fakeMessageStore{}
	s := NewHttpServer(cfg, binder, store, newFakeBlobStore())

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func dialWS(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Cookie", "token="+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireFrame struct {
	Online []model.PresenceEntry `json:"online"`
	ID     string                `json:"_id"`
	Sender string                `json:"sender"`
	Text   string                `json:"text"`
	File   string                `json:"file"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame wireFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

// waitForPresence reads frames until a presence update lists exactly the
// wanted user ids.
func waitForPresence(t *testing.T, conn *websocket.Conn, wantIDs ...string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if frame.Online == nil {
			continue
		}
		var got []string
		for _, entry := range frame.Online {
			got = append(got, entry.UserID)
		}
		if len(got) == len(wantIDs) {
			match := true
			for i := range got {
				if got[i] != wantIDs[i] {
					match = false
					break
				}
			}
			if match {
				return
			}
		}
	}
	t.Fatalf("never saw presence %v", wantIDs)
}

func waitForDelivery(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if frame.ID != "" {
			return frame
		}
	}
	t.Fatal("never saw a delivery frame")
	return wireFrame{}
}

func TestHandshakeRejectedWithoutValidToken(t *testing.T) {
	req := require.New(t)
	ts, _ := newTestHTTPServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Cookie", "token=forged")
	_, resp, err = websocket.DefaultDialer.Dial(wsURL, header)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestPresenceFollowsConnectAndDisconnect(t *testing.T) {
	ts, _ := newTestHTTPServer(t)

	alice := dialWS(t, ts, "tok-alice")
	waitForPresence(t, alice, "u1")

	bob := dialWS(t, ts, "tok-bob")
	waitForPresence(t, alice, "u1", "u2")
	waitForPresence(t, bob, "u1", "u2")

	bob.Close()
	waitForPresence(t, alice, "u1")
}

func TestEndToEndDelivery(t *testing.T) {
	req := require.New(t)
	ts, store := newTestHTTPServer(t)

	alice := dialWS(t, ts, "tok-alice")
	bob := dialWS(t, ts, "tok-bob")
	waitForPresence(t, alice, "u1", "u2")
	waitForPresence(t, bob, "u1", "u2")

	req.NoError(alice.WriteJSON(model.MessageEnvelope{
		Recipient: "u2",
		Text:      "hi",
	}))

	delivery := waitForDelivery(t, bob)
	req.Equal("hi", delivery.Text)
	req.Equal("u1", delivery.Sender)
	req.Equal(1, store.count())
}

func TestSilentFrameIgnored(t *testing.T) {
	req := require.New(t)
	ts, store := newTestHTTPServer(t)

	alice := dialWS(t, ts, "tok-alice")
	waitForPresence(t, alice, "u1")

	// garbage and contentless envelopes are both dropped without a reply
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	req.NoError(alice.WriteJSON(model.MessageEnvelope{Recipient: ""}))

	time.Sleep(100 * time.Millisecond)
	req.Zero(store.count())
}
