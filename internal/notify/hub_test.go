package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chii/internal/actor"
	"github.com/roach88/chii/internal/model"
)

var _ actor.Notifier = (*Hub)(nil)

func commit(seq int64) model.Commit {
	return model.Commit{
		BatchID: "batch",
		Seq:     seq,
		Name:    "test",
		Changes: []model.Change{{Kind: model.KindSubject, ID: seq, Created: true}},
	}
}

func TestSubscribe_ReceivesInOrder(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(4)
	defer sub.Close()

	h.Publish(commit(1))
	h.Publish(commit(2))

	assert.Equal(t, int64(1), (<-sub.C).Seq)
	assert.Equal(t, int64(2), (<-sub.C).Seq)
	assert.Equal(t, 1, h.Stats().Subscribers)
}

func TestPublish_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 5; i++ {
			h.Publish(commit(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(1), (<-sub.C).Seq)
	assert.Equal(t, int64(4), h.Stats().Dropped)
}

func TestSubscription_Close(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(0)
	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Zero(t, h.Stats().Subscribers)

	h.Publish(commit(1))
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)
	h.Close()
	h.Close()

	_, ok := <-sub.C
	assert.False(t, ok)

	late := h.Subscribe(1)
	_, ok = <-late.C
	assert.False(t, ok, "subscribing to a closed hub yields a closed channel")
	late.Close()

	h.Publish(commit(1))
}

func TestWSHandler_StreamsCommits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub()
	defer h.Close()

	r := gin.New()
	r.GET("/ws", WSHandler(h))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"welcome"}`, string(msg))

	require.Eventually(t, func() bool { return h.Stats().WSClients == 1 }, time.Second, 10*time.Millisecond)
	h.Publish(commit(7))

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "commit", ev.Type)
	assert.Equal(t, int64(7), ev.Commit.Seq)
	require.Len(t, ev.Commit.Changes, 1)
	assert.Equal(t, model.KindSubject, ev.Commit.Changes[0].Kind)

	conn.Close()
	require.Eventually(t, func() bool { return h.Stats().WSClients == 0 }, time.Second, 10*time.Millisecond)
}
