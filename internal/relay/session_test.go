package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type harness struct {
	t         *testing.T
	upstream  *httptest.Server
	proxy     *httptest.Server
	dialer    *Dialer
	manager   *Manager
	cancel    context.CancelFunc
	accepted  chan *websocket.Conn
	queries   chan string
	terms     chan Termination
	runErrors chan error
}

type harnessOption func(*harness, *Config)

func withManager(m *Manager) harnessOption {
	return func(h *harness, _ *Config) { h.manager = m }
}

func withMaxMessageSize(n int64) harnessOption {
	return func(_ *harness, cfg *Config) { cfg.MaxMessageSize = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		t:         t,
		cancel:    cancel,
		accepted:  make(chan *websocket.Conn, 4),
		queries:   make(chan string, 4),
		terms:     make(chan Termination, 4),
		runErrors: make(chan error, 4),
	}
	cfg := Config{WriteWait: time.Second}
	for _, opt := range opts {
		opt(h, &cfg)
	}

	h.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.queries <- r.URL.Path + "?" + r.URL.RawQuery
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.accepted <- conn
	}))

	var err error
	h.dialer, err = NewDialer("ws"+strings.TrimPrefix(h.upstream.URL, "http")+"/yjs", time.Second, true)
	require.NoError(t, err)

	h.proxy = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		up, err := h.dialer.Dial(r.Context(), "ab3k-9f2pq", r.URL.Query().Get("token"))
		if err != nil {
			CloseWith(client, websocket.CloseInternalServerErr, "upstream unavailable", time.Second)
			h.runErrors <- err
			return
		}

		s := NewSession("s1", client, up, cfg)
		if h.manager != nil {
			term, err := h.manager.Run(s)
			if err != nil {
				h.runErrors <- err
				return
			}
			h.terms <- term
			return
		}
		h.terms <- s.Run(ctx)
	}))

	t.Cleanup(func() {
		cancel()
		h.proxy.Close()
		h.upstream.Close()
	})
	return h
}

// connect opens a client connection through the proxy and returns it with
// the upstream side of the bridged session.
func (h *harness) connect(token string) (*websocket.Conn, *websocket.Conn) {
	h.t.Helper()

	u := "ws" + strings.TrimPrefix(h.proxy.URL, "http") + "/?token=" + token
	client, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(h.t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	h.t.Cleanup(func() { _ = client.Close() })

	select {
	case up := <-h.accepted:
		h.t.Cleanup(func() { _ = up.Close() })
		return client, up
	case <-time.After(waitFor):
		h.t.Fatal("upstream connection not established")
		return nil, nil
	}
}

func (h *harness) termination() Termination {
	h.t.Helper()
	select {
	case term := <-h.terms:
		return term
	case <-time.After(waitFor):
		h.t.Fatal("session did not terminate")
		return Termination{}
	}
}

func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		ce, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected close error, got %v", err)
		return ce
	}
}

func echo(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

// frame returns the i-th test frame, alternating text and binary.
func frame(i int) (int, []byte) {
	if i%2 == 0 {
		return websocket.TextMessage, []byte(fmt.Sprintf("update-%d", i))
	}
	return websocket.BinaryMessage, []byte{byte(i), 0x00, 0xff, 0x80}
}

func TestSession_ForwardsVerbatimInOrder(t *testing.T) {
	h := newHarness(t)
	client, up := h.connect("tok")
	go echo(up)

	const n = 50
	for i := 0; i < n; i++ {
		mt, payload := frame(i)
		require.NoError(t, client.WriteMessage(mt, payload))
	}

	require.NoError(t, client.SetReadDeadline(time.Now().Add(waitFor)))
	for i := 0; i < n; i++ {
		mt, data, err := client.ReadMessage()
		require.NoError(t, err)

		wantType, wantPayload := frame(i)
		assert.Equal(t, wantType, mt)
		assert.Equal(t, wantPayload, data)
	}
}

func TestSession_EachDirectionUnmodified(t *testing.T) {
	h := newHarness(t)
	client, up := h.connect("tok")

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2, 255}))
	require.NoError(t, up.SetReadDeadline(time.Now().Add(waitFor)))
	mt, data, err := up.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{0, 1, 2, 255}, data)

	require.NoError(t, up.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(waitFor)))
	mt, data, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "hello", string(data))
}

func TestSession_ForwardsTokenAndRoomPath(t *testing.T) {
	h := newHarness(t)
	h.connect("abc.def")

	select {
	case q := <-h.queries:
		assert.Equal(t, "/yjs/ab3k-9f2pq?token=abc.def", q)
	case <-time.After(waitFor):
		t.Fatal("upstream never saw a request")
	}
}

func TestSession_ClientCloseClosesUpstream(t *testing.T) {
	h := newHarness(t)
	client, up := h.connect("tok")

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	ce := readClose(t, up)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
	assert.Equal(t, "bye", ce.Text)

	term := h.termination()
	assert.Equal(t, SideClient, term.Side)
	assert.Equal(t, websocket.CloseNormalClosure, term.Code)
	assert.NoError(t, term.Err)
}

func TestSession_ClientDropClosesUpstream(t *testing.T) {
	h := newHarness(t)
	client, up := h.connect("tok")

	require.NoError(t, client.UnderlyingConn().Close())

	ce := readClose(t, up)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)

	term := h.termination()
	assert.Equal(t, SideClient, term.Side)
	assert.Error(t, term.Err)
}

func TestSession_UpstreamCloseCodeMirroredToClient(t *testing.T) {
	h := newHarness(t)
	client, up := h.connect("tok")

	require.NoError(t, up.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(4000, "room closed")))

	ce := readClose(t, client)
	assert.Equal(t, 4000, ce.Code)
	assert.Equal(t, "room closed", ce.Text)

	term := h.termination()
	assert.Equal(t, SideUpstream, term.Side)
	assert.Equal(t, 4000, term.Code)
}

func TestSession_UpstreamDropYieldsInternalError(t *testing.T) {
	h := newHarness(t)
	client, up := h.connect("tok")

	require.NoError(t, up.UnderlyingConn().Close())

	ce := readClose(t, client)
	assert.Equal(t, websocket.CloseInternalServerErr, ce.Code)

	term := h.termination()
	assert.Equal(t, SideUpstream, term.Side)
	assert.Equal(t, websocket.CloseInternalServerErr, term.Code)
	assert.Error(t, term.Err)
}

func TestSession_CancelClosesBothWithGoingAway(t *testing.T) {
	h := newHarness(t)
	client, up := h.connect("tok")

	h.cancel()

	assert.Equal(t, websocket.CloseGoingAway, readClose(t, client).Code)
	assert.Equal(t, websocket.CloseGoingAway, readClose(t, up).Code)
	assert.Equal(t, SideServer, h.termination().Side)
}

func TestSession_OversizedMessageEndsSession(t *testing.T) {
	h := newHarness(t, withMaxMessageSize(16))
	client, up := h.connect("tok")

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, make([]byte, 64)))

	assert.Equal(t, websocket.CloseMessageTooBig, readClose(t, up).Code)
	term := h.termination()
	assert.Equal(t, SideClient, term.Side)
	assert.ErrorIs(t, term.Err, websocket.ErrReadLimit)
}

func TestManager_ShutdownCancelsSessions(t *testing.T) {
	m := NewManager()
	h := newHarness(t, withManager(m))
	client, up := h.connect("tok")

	require.Eventually(t, func() bool { return m.Active() == 1 }, waitFor, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.Equal(t, websocket.CloseGoingAway, readClose(t, client).Code)
	assert.Equal(t, websocket.CloseGoingAway, readClose(t, up).Code)
	assert.Equal(t, SideServer, h.termination().Side)
	assert.Zero(t, m.Active())

	_, err := m.Run(NewSession("late", nil, nil, Config{}))
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestDialer_FailsFastWhenUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	d, err := NewDialer(base, time.Second, true)
	require.NoError(t, err)

	_, err = d.Dial(context.Background(), "ab3k-9f2pq", "tok")
	assert.Error(t, err)
}

func TestDialer_URLs(t *testing.T) {
	d, err := NewDialer("ws://localhost:1234/", time.Second, true)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:1234/ab3k-9f2pq", d.Target("ab3k-9f2pq"))
	assert.Equal(t, "ws://localhost:1234/ab3k-9f2pq?token=t.o.k", d.url("ab3k-9f2pq", "t.o.k").String())

	d, err = NewDialer("ws://localhost:1234", time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:1234/ab3k-9f2pq", d.url("ab3k-9f2pq", "t.o.k").String())

	_, err = NewDialer("http://localhost:1234", time.Second, true)
	assert.Error(t, err)
}

func TestSendable(t *testing.T) {
	for _, code := range []int{1000, 1001, 1008, 1011, 3000, 4999} {
		assert.True(t, Sendable(code), code)
	}
	for _, code := range []int{0, 999, 1004, 1005, 1006, 1015, 2999, 5000} {
		assert.False(t, Sendable(code), code)
	}
}

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))
	assert.Len(t, truncateReason(strings.Repeat("a", 200)), maxReasonLen)

	multi := strings.Repeat("é", 100)
	got := truncateReason(multi)
	assert.LessOrEqual(t, len(got), maxReasonLen)
	assert.True(t, strings.HasPrefix(multi, got))
	assert.Equal(t, 0, len(got)%2)
}
