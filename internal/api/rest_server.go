package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/annel0/landblock/internal/auth"
	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/landblock"
	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/middleware"
	"github.com/annel0/landblock/internal/world"
	"github.com/annel0/landblock/internal/world/entity"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// World — то, что административному API нужно от менеджера мира
type World interface {
	Landblocks() []*landblock.Landblock
	Landblock(id landblock.ID) (*landblock.Landblock, bool)
	RequestUnload(id landblock.ID) bool
	Stats() world.Stats
	// Inspect выполняет fn вне тика
	Inspect(fn func())
}

// RestServer — административный HTTP API сервера ландблоков
type RestServer struct {
	router     *gin.Engine
	world      World
	bus        eventbus.EventBus
	auth       *auth.Authenticator
	log        *logging.Logger
	port       string
	metrics    *ServerMetrics
	upgrader   websocket.Upgrader
	wsDropped  atomic.Uint64
	httpServer *http.Server
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port       string // адрес для запуска сервера, например ":8088"
	World      World
	Bus        eventbus.EventBus   // nil — /ws/events недоступен
	Auth       *auth.Authenticator // nil — изменяющие маршруты закрыты
	Log        *logging.Logger
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Log == nil {
		config.Log = logging.GetAPILogger()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("admin_api"))
	router.Use(middleware.NewRequestLogger(config.Log).Handler())

	promMw := middleware.NewPrometheusMiddleware("admin_api", config.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	server := &RestServer{
		router:  router,
		world:   config.World,
		bus:     config.Bus,
		auth:    config.Auth,
		log:     config.Log,
		port:    config.Port,
		metrics: NewServerMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	server.setupRoutes()
	return server
}

// Handler возвращает http.Handler сервера
func (rs *RestServer) Handler() http.Handler { return rs.router }

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)
	rs.router.GET("/ws/events", rs.handleEventStream)

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/landblocks", rs.handleListLandblocks)

		api.POST("/auth/login", rs.handleLogin)

		lb := api.Group("/landblocks/:id")
		lb.Use(rs.landblockParam())
		{
			lb.GET("", rs.handleGetLandblock)

			// Изменяющие маршруты (требуют JWT)
			protected := lb.Group("")
			protected.Use(rs.jwtMiddleware())
			protected.POST("/activate", rs.handleActivate)
			protected.POST("/unload", rs.handleUnload)
			protected.POST("/broadcast", rs.handleBroadcast)
		}
	}
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// LandblockInfo — сводка по ландблоку
type LandblockInfo struct {
	ID                string              `json:"id"`
	State             string              `json:"state"`
	Permaload         bool                `json:"permaload"`
	Dungeon           bool                `json:"dungeon"`
	Group             uint32              `json:"group"`
	Objects           int                 `json:"objects"`
	PendingAdds       int                 `json:"pending_adds"`
	PendingRemoves    int                 `json:"pending_removes"`
	PendingActions    int                 `json:"pending_actions"`
	LastActive        time.Time           `json:"last_active"`
	DestructionQueued bool                `json:"destruction_queued"`
	Adjacents         []string            `json:"adjacents"`
	Perf              landblock.PerfStats `json:"perf"`
}

// ObjectInfo — объект ландблока в детальном ответе
type ObjectInfo struct {
	Guid     uint32      `json:"guid"`
	Kind     string      `json:"kind"`
	Name     string      `json:"name"`
	Position *[2]float64 `json:"position,omitempty"`
	Changed  bool        `json:"changed"`
}

// BroadcastRequest — тело POST /api/landblocks/:id/broadcast
type BroadcastRequest struct {
	Text             string `json:"text" binding:"required"`
	Type             string `json:"type"`
	IncludeAdjacents bool   `json:"include_adjacents"`
}

const landblockKey = "landblock"

// landblockParam разбирает :id и кладёт загруженный ландблок в контекст
func (rs *RestServer) landblockParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := landblock.ParseID(c.Param("id"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "Неверный идентификатор ландблока",
			})
			return
		}
		l, ok := rs.world.Landblock(id)
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, GenericResponse{
				Success: false,
				Message: fmt.Sprintf("Ландблок %s не загружен", id),
			})
			return
		}
		c.Set(landblockKey, l)
		c.Next()
	}
}

func landblockFrom(c *gin.Context) *landblock.Landblock {
	return c.MustGet(landblockKey).(*landblock.Landblock)
}

func describe(l *landblock.Landblock) LandblockInfo {
	adds, removes := l.PendingCounts()
	info := LandblockInfo{
		ID:                l.ID().String(),
		State:             l.State().String(),
		Permaload:         l.Permaload(),
		Dungeon:           l.IsDungeon(),
		Group:             uint32(l.Group()),
		Objects:           l.ObjectCount(),
		PendingAdds:       adds,
		PendingRemoves:    removes,
		PendingActions:    l.PendingActions(),
		LastActive:        l.LastActive().UTC(),
		DestructionQueued: l.DestructionQueued(),
		Adjacents:         []string{},
		Perf:              l.Perf(),
	}
	for _, adj := range l.Adjacents() {
		info.Adjacents = append(info.Adjacents, adj.ID().String())
	}
	return info
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleStats возвращает сводку мира и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := map[string]interface{}{
		"world":  rs.world.Stats(),
		"server": rs.metrics.Snapshot(),
	}
	if rs.bus != nil {
		stats["eventbus"] = rs.bus.Metrics()
		stats["ws_dropped"] = rs.wsDropped.Load()
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

func (rs *RestServer) handleListLandblocks(c *gin.Context) {
	all := rs.world.Landblocks()
	out := make([]LandblockInfo, 0, len(all))
	rs.world.Inspect(func() {
		for _, l := range all {
			out = append(out, describe(l))
		}
	})
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Загруженные ландблоки",
		Data: map[string]interface{}{
			"landblocks": out,
			"total":      len(out),
		},
	})
}

func (rs *RestServer) handleGetLandblock(c *gin.Context) {
	l := landblockFrom(c)

	var (
		info LandblockInfo
		out  []ObjectInfo
	)
	// позиции и имена пишет тик, поэтому вид собирается между тиками
	rs.world.Inspect(func() {
		info = describe(l)
		objs := l.Objects()
		out = make([]ObjectInfo, 0, len(objs))
		for _, obj := range objs {
			base := obj.Base()
			oi := ObjectInfo{
				Guid:    uint32(base.Guid()),
				Kind:    base.Kind().String(),
				Name:    base.Name,
				Changed: base.ChangesDetected(),
			}
			if loc := base.Location; loc != nil {
				oi.Position = &[2]float64{loc.X, loc.Y}
			}
			out = append(out, oi)
		}
	})

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Ландблок найден",
		Data: map[string]interface{}{
			"landblock": info,
			"objects":   out,
		},
	})
}

// handleActivate будит ландблок командой: она выполнится в фазе 2 группой-владельцем
func (rs *RestServer) handleActivate(c *gin.Context) {
	l := landblockFrom(c)
	l.EnqueueAction(landblock.Activate{})
	c.JSON(http.StatusAccepted, GenericResponse{
		Success: true,
		Message: "Активация поставлена в очередь",
		Data:    gin.H{"landblock": l.ID().String(), "pending_actions": l.PendingActions()},
	})
}

// handleUnload просит менеджер выгрузить ландблок в конце ближайшего тика
func (rs *RestServer) handleUnload(c *gin.Context) {
	l := landblockFrom(c)
	if l.Permaload() && c.Query("force") != "true" {
		c.JSON(http.StatusConflict, GenericResponse{
			Success: false,
			Message: "Ландблок постоянно загружен, используйте force=true",
		})
		return
	}
	if !rs.world.RequestUnload(l.ID()) {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Ландблок уже выгружен"})
		return
	}
	rs.log.Zap().Info("выгрузка запрошена через API",
		zap.Stringer("landblock", l.ID()), zap.String("admin", c.GetString(adminKey)))
	c.JSON(http.StatusAccepted, GenericResponse{
		Success: true,
		Message: "Выгрузка запрошена",
		Data:    gin.H{"landblock": l.ID().String()},
	})
}

// handleBroadcast рассылает системное сообщение игрокам ландблока
func (rs *RestServer) handleBroadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}
	if req.Type == "" {
		req.Type = "system"
	}

	l := landblockFrom(c)
	l.EnqueueAction(landblock.BroadcastAction{Broadcast: landblock.Broadcast{
		Message:          entity.Message{Type: req.Type, Text: req.Text},
		IncludeAdjacents: req.IncludeAdjacents,
	}})
	c.JSON(http.StatusAccepted, GenericResponse{
		Success: true,
		Message: "Сообщение поставлено в очередь",
		Data:    gin.H{"landblock": l.ID().String()},
	})
}

// Start запускает HTTP сервер в отдельной горутине
func (rs *RestServer) Start() error {
	rs.httpServer = &http.Server{
		Addr:              rs.port,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.log.Zap().Error("❌ ошибка REST API сервера", zap.Error(err))
		}
	}()

	rs.log.Info("✅ REST API сервер запущен на http://localhost%s", rs.port)
	rs.log.Info("📋 Эндпоинты: /health, /metrics, /api/stats, /api/auth/login, /api/landblocks[/:id[/activate|/unload|/broadcast]], /ws/events")
	return nil
}

// Stop останавливает HTTP сервер, дожидаясь текущих запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := rs.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown admin api: %w", err)
	}
	rs.log.Info("REST API сервер остановлен")
	return nil
}
