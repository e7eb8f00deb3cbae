package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/annel0/landblock/internal/auth"
	"github.com/annel0/landblock/internal/config"
	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/landblock"
	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/physics"
	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world"
	"github.com/annel0/landblock/internal/world/entity"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSession struct {
	mu   sync.Mutex
	msgs []entity.Message
}

func (s *recordingSession) Send(msg entity.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *recordingSession) received() []entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Message(nil), s.msgs...)
}

var (
	homeID  = landblock.NewID(1, 1)
	permaID = landblock.NewID(9, 9)
)

func newTestServer(t *testing.T, bus eventbus.EventBus) (*RestServer, *world.Manager, *recordingSession) {
	t.Helper()
	m := world.NewManager(world.Options{Services: landblock.Services{Bus: bus}})
	ctx := context.Background()

	session := &recordingSession{}
	player := entity.NewPlayer(1, "admin", homeID.Center(), session)
	_, err := m.AddObject(ctx, player)
	require.NoError(t, err)
	_, err = m.GetLandblock(ctx, permaID, true)
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, time.Now()))

	reg := prometheus.NewRegistry()
	rs := NewRestServer(Config{
		World:      m,
		Bus:        bus,
		Auth:       testAuthenticator(t),
		Log:        logging.NewNop(),
		Registerer: reg,
		Gatherer:   reg,
	})
	return rs, m, session
}

var (
	adminHashOnce sync.Once
	adminHash     string
)

const adminPassword = "hunter2"

func testAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	adminHashOnce.Do(func() {
		h, err := auth.HashPassword(adminPassword)
		if err != nil {
			panic(err)
		}
		adminHash = h
	})
	a, err := auth.NewAuthenticator(config.AuthConfig{
		Admins: []config.AdminCredential{{Username: "ops", PasswordHash: adminHash}},
	})
	require.NoError(t, err)
	return a
}

// login получает токен администратора через API
func login(t *testing.T, rs *RestServer) string {
	t.Helper()
	w := do(rs, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func do(rs *RestServer, method, path, body string) *httptest.ResponseRecorder {
	return doAs(rs, "", method, path, body)
}

func doAs(rs *RestServer, token, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, req)
	return w
}

func TestRestServer_Health(t *testing.T) {
	rs, _, _ := newTestServer(t, nil)
	w := do(rs, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRestServer_ListLandblocks(t *testing.T) {
	rs, _, _ := newTestServer(t, nil)

	w := do(rs, http.MethodGet, "/api/landblocks", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Landblocks []LandblockInfo `json:"landblocks"`
			Total      int             `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, "0x0101", resp.Data.Landblocks[0].ID)
	assert.Equal(t, "active", resp.Data.Landblocks[0].State)
	assert.Equal(t, 1, resp.Data.Landblocks[0].Objects)
	assert.True(t, resp.Data.Landblocks[1].Permaload)
}

func TestRestServer_GetLandblock(t *testing.T) {
	rs, _, _ := newTestServer(t, nil)

	w := do(rs, http.MethodGet, "/api/landblocks/0101", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Landblock LandblockInfo `json:"landblock"`
			Objects   []ObjectInfo  `json:"objects"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Objects, 1)
	assert.Equal(t, "player", resp.Data.Objects[0].Kind)
	assert.Equal(t, "admin", resp.Data.Objects[0].Name)
	require.NotNil(t, resp.Data.Objects[0].Position)

	assert.Equal(t, http.StatusBadRequest, do(rs, http.MethodGet, "/api/landblocks/zz", "").Code)
	assert.Equal(t, http.StatusNotFound, do(rs, http.MethodGet, "/api/landblocks/0x4242", "").Code)
}

func TestRestServer_ActivateEnqueuesAction(t *testing.T) {
	rs, m, _ := newTestServer(t, nil)
	token := login(t, rs)
	l, ok := m.Landblock(permaID)
	require.True(t, ok)

	w := doAs(rs, token, http.MethodPost, "/api/landblocks/0909/activate", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, l.PendingActions())

	require.NoError(t, m.Tick(context.Background(), time.Now()))
	assert.Equal(t, 0, l.PendingActions())
}

func TestRestServer_Unload(t *testing.T) {
	rs, m, _ := newTestServer(t, nil)
	token := login(t, rs)

	assert.Equal(t, http.StatusConflict, doAs(rs, token, http.MethodPost, "/api/landblocks/0909/unload", "").Code)
	assert.Equal(t, http.StatusAccepted, doAs(rs, token, http.MethodPost, "/api/landblocks/0909/unload?force=true", "").Code)

	require.NoError(t, m.Tick(context.Background(), time.Now()))
	_, ok := m.Landblock(permaID)
	assert.False(t, ok)
}

func TestRestServer_Broadcast(t *testing.T) {
	rs, m, session := newTestServer(t, nil)
	token := login(t, rs)

	assert.Equal(t, http.StatusBadRequest, doAs(rs, token, http.MethodPost, "/api/landblocks/0101/broadcast", `{}`).Code)

	w := doAs(rs, token, http.MethodPost, "/api/landblocks/0101/broadcast", `{"text":"рестарт через 5 минут"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, session.received(), "доставка только в фазе 2")

	require.NoError(t, m.Tick(context.Background(), time.Now()))
	msgs := session.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, entity.Message{Type: "system", Text: "рестарт через 5 минут"}, msgs[0])
}

func TestRestServer_Stats(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	rs, _, _ := newTestServer(t, bus)

	w := do(rs, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			World world.Stats `json:"world"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.World.Landblocks)
	assert.Equal(t, 1, resp.Data.World.Objects)
	assert.Contains(t, w.Body.String(), `"eventbus"`)
}

func TestRestServer_EventStreamWithoutBus(t *testing.T) {
	rs, _, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(rs, http.MethodGet, "/ws/events", "").Code)
}

func TestRestServer_EventStream(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()
	rs, _, _ := newTestServer(t, bus)

	srv := httptest.NewServer(rs.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?types=" + eventbus.EventLandblockDormant
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// подписка оформляется после апгрейда, поэтому публикуем до первого полученного события
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, typ := range []string{eventbus.EventLandblockLoaded, eventbus.EventLandblockDormant} {
					env, err := eventbus.NewEnvelope("0x0101", typ, 1, eventbus.LandblockEvent{Landblock: "0x0101"})
					if err == nil {
						_ = bus.Publish(context.Background(), env)
					}
				}
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env eventbus.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, eventbus.EventLandblockDormant, env.EventType)
	assert.Equal(t, "0x0101", env.Source)
}

func TestFormatUptime(t *testing.T) {
	cases := map[time.Duration]string{
		42 * time.Second:                            "42с",
		3*time.Minute + 5*time.Second:               "3м 5с",
		2*time.Hour + time.Minute:                   "2ч 1м 0с",
		26*time.Hour + 30*time.Minute + time.Second: "1д 2ч 30м 1с",
	}
	for d, want := range cases {
		if got := formatUptime(d); got != want {
			t.Fatalf("formatUptime(%s) = %q, want %q", d, got, want)
		}
	}
}

// Запускается с -race: тик двигает объект, пока API читает ландблок
func TestRestServer_GetLandblockWhileTicking(t *testing.T) {
	m := world.NewManager(world.Options{Services: landblock.Services{
		Physics: physics.NewEngine(physics.OpenTerrain),
	}})
	ctx := context.Background()

	ball := entity.NewItem(7, "ball")
	ball.SetLocation(homeID.Center())
	ball.Velocity = vec.Vec2Float{X: 1}
	_, err := m.AddObject(ctx, ball)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	rs := NewRestServer(Config{World: m, Log: logging.NewNop(), Registerer: reg, Gatherer: reg})

	now := time.Now()
	require.NoError(t, m.Tick(ctx, now))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 200; i++ {
			if err := m.Tick(ctx, now.Add(time.Duration(i)*10*time.Millisecond)); err != nil {
				t.Errorf("tick %d: %v", i, err)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		w := do(rs, http.MethodGet, "/api/landblocks/0101", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"name":"ball"`)
		require.Equal(t, http.StatusOK, do(rs, http.MethodGet, "/api/landblocks", "").Code)
	}
	<-done

	w := do(rs, http.MethodGet, "/api/landblocks/0101", "")
	var resp struct {
		Data struct {
			Objects []ObjectInfo `json:"objects"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Objects, 1)
	require.NotNil(t, resp.Data.Objects[0].Position)
	assert.InDelta(t, homeID.Center().X+2, resp.Data.Objects[0].Position[0], 0.01)
}

func TestRestServer_MutationsRequireToken(t *testing.T) {
	rs, _, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, do(rs, http.MethodPost, "/api/landblocks/0101/activate", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doAs(rs, "garbage", http.MethodPost, "/api/landblocks/0101/unload", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/landblocks/0101/activate", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(rs, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, http.MethodPost, "/api/auth/login", `{}`).Code)

	// чтение открыто
	assert.Equal(t, http.StatusOK, do(rs, http.MethodGet, "/api/landblocks/0101", "").Code)

	token := login(t, rs)
	assert.Equal(t, http.StatusAccepted, doAs(rs, token, http.MethodPost, "/api/landblocks/0101/activate", "").Code)
}

func TestRestServer_MutationsClosedWithoutAuthenticator(t *testing.T) {
	m := world.NewManager(world.Options{})
	_, err := m.GetLandblock(context.Background(), homeID, false)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	rs := NewRestServer(Config{World: m, Log: logging.NewNop(), Registerer: reg, Gatherer: reg})

	assert.Equal(t, http.StatusServiceUnavailable, do(rs, http.MethodPost, "/api/landblocks/0101/activate", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		do(rs, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"x"}`).Code)
}
