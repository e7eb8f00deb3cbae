package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/landblock/internal/api"
	"github.com/annel0/landblock/internal/auth"
	"github.com/annel0/landblock/internal/config"
	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/landblock"
	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/observability"
	"github.com/annel0/landblock/internal/physics"
	"github.com/annel0/landblock/internal/storage"
	"github.com/annel0/landblock/internal/world"
	"github.com/annel0/landblock/internal/world/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML/TOML конфигурации (или LANDBLOCK_CONFIG)")
	hashPassword := flag.String("hash-password", "", "напечатать bcrypt-хэш пароля для auth.admins и выйти")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("❌ Ошибка хэширования: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.Init(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
	}); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("🎮 Запуск %s: storage=%s, tick=%s", cfg.Server.Name, cfg.Storage.Backend, cfg.World.TickRate)

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry, logging.GetServerLogger())
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("остановка телеметрии: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(bus, logging.GetComponentLogger("events")); err != nil {
		return fmt.Errorf("logging listener: %w", err)
	}
	exporter := eventbus.NewMetricsExporter(bus, reg)
	exporter.Start()
	defer exporter.Stop()

	// === ХРАНИЛИЩЕ ===
	store, err := storage.Open(ctx, cfg.Storage, logging.GetStorageLogger())
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	writer := storage.NewWriter(store, storage.WriterOptions{
		Workers: cfg.Storage.SaveWorkers,
		Timeout: cfg.Storage.SaveTimeout,
	}, logging.GetStorageLogger())

	// === МИР ===
	permaload, err := parseIDs(cfg.World.Permaload)
	if err != nil {
		return fmt.Errorf("world.permaload: %w", err)
	}
	dungeons, err := parseIDs(cfg.World.Dungeons)
	if err != nil {
		return fmt.Errorf("world.dungeons: %w", err)
	}

	factory := entity.NewTemplateFactory(1)
	manager := world.NewManager(world.Options{
		Services: landblock.Services{
			Physics: physics.NewEngine(terrainFor(cfg.World.Terrain)),
			Saver:   writer,
			Bus:     bus,
			Metrics: landblock.NewMetrics(reg),
			Log:     logging.GetLandblockLogger(),
			Config:  cfg.Landblock,
		},
		Loader:        &world.StoreLoader{Store: store, Factory: factory, Log: logging.GetStorageLogger()},
		MaxParallel:   cfg.World.MaxParallel,
		TickRate:      cfg.World.TickRate,
		StatsInterval: cfg.World.StatsInterval,
		Permaload:     permaload,
		Dungeons:      dungeons,
		Registerer:    reg,
	})

	for _, id := range permaload {
		if _, err := manager.GetLandblock(ctx, id, true); err != nil {
			return fmt.Errorf("load permaload %s: %w", id, err)
		}
	}

	// === ADMIN API ===
	authenticator, err := auth.NewAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if authenticator.Admins() == 0 {
		logging.Warn("⚠️ auth.admins пуст: изменяющие маршруты API недоступны")
	}
	if cfg.Auth.JWTSecret == "" {
		logging.Warn("⚠️ auth.jwt_secret не задан: токены действуют до перезапуска")
	}

	restServer := api.NewRestServer(api.Config{
		Port:       fmt.Sprintf(":%d", cfg.Server.AdminPort),
		World:      manager,
		Bus:        bus,
		Auth:       authenticator,
		Log:        logging.GetAPILogger(),
		Registerer: reg,
		Gatherer:   reg,
	})
	if err := restServer.Start(); err != nil {
		return fmt.Errorf("admin api: %w", err)
	}

	logging.Info("✅ Все сервисы запущены")
	if err := manager.Run(ctx); err != nil {
		logging.Error("мир остановлен с ошибкой: %v", err)
	}

	// === GRACEFUL SHUTDOWN ===
	logging.Info("📡 Получен сигнал, завершение работы...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ %v", err)
	}
	manager.Shutdown(shutdownCtx)
	if err := writer.Close(shutdownCtx); err != nil {
		logging.Error("❌ не все пакеты сохранены: %v", err)
	}
	stats := writer.Stats()
	logging.GetServerLogger().Zap().Info("👋 Сервер остановлен",
		zap.Uint64("save_batches", stats.Batches),
		zap.Uint64("save_failures", stats.Failures),
	)
	return nil
}

func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("🚌 In-memory шина событий (buffer=%d)", cfg.Buffer)
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("eventbus: %w", err)
	}
	logging.Info("🚌 JetStream шина событий: %s stream=%s", cfg.URL, cfg.Stream)
	return bus, nil
}

func terrainFor(cfg config.TerrainConfig) physics.Terrain {
	if cfg.Kind == "perlin" {
		logging.Info("🗺  Местность Перлина: seed=%d scale=%.3f threshold=%.2f", cfg.Seed, cfg.Scale, cfg.Threshold)
		return physics.NewNoiseTerrain(cfg.Seed, cfg.Scale, cfg.Threshold)
	}
	return physics.OpenTerrain
}

func parseIDs(raw []string) ([]landblock.ID, error) {
	ids := make([]landblock.ID, 0, len(raw))
	for _, s := range raw {
		id, err := landblock.ParseID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
