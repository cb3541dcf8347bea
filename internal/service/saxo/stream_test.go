package saxo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestTransportDeliversBinaryPackets(t *testing.T) {
	gotQuery := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("ignored"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{4})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	e := NewEndpoints("http://auth", "http://api", "ws"+strings.TrimPrefix(srv.URL, "http"))
	tr := NewTransport(time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := tr.Open(ctx, e.StreamURL("tok", "ctx1"))
	require.NoError(t, err)
	defer conn.Close()

	require.Contains(t, <-gotQuery, "contextId=ctx1")

	packets, errs := conn.Read(ctx)
	var got [][]byte
	for p := range packets {
		got = append(got, p)
	}
	require.Equal(t, [][]byte{{1, 2, 3}, {4}}, got)
	require.Error(t, <-errs)
}

func TestTransportLocalCloseReportsNil(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr := NewTransport(0, nil)
	ctx := context.Background()
	conn, err := tr.Open(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	packets, errs := conn.Read(ctx)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, ok := <-packets
	require.False(t, ok)
	require.NoError(t, <-errs)
}

func TestTransportDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewTransport(0, nil).Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Error(t, err)
}

func TestTransportDropsSocketWithoutPongs(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer srv.Close()

	tr := NewTransport(20*time.Millisecond, nil)
	ctx := context.Background()
	conn, err := tr.Open(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer conn.Close()

	packets, errs := conn.Read(ctx)
	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("half-open socket was not detected")
	}
	_, ok := <-packets
	require.False(t, ok)
}

func TestTransportPongsKeepSocketOpen(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr := NewTransport(20*time.Millisecond, nil)
	ctx := context.Background()
	conn, err := tr.Open(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	_, errs := conn.Read(ctx)
	select {
	case err := <-errs:
		t.Fatalf("connection dropped: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	require.NoError(t, conn.Close())
}
