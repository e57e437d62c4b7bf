package wire

import (
	"context"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gomodmail/internal/api"
	"gomodmail/internal/config"
	"gomodmail/internal/dbmongo"
	"gomodmail/internal/dbmysql"
	"gomodmail/internal/events"
	"gomodmail/internal/logging"
	"gomodmail/internal/media"
	"gomodmail/internal/metrics"
	"gomodmail/internal/platform"
	"gomodmail/internal/router"
	"gomodmail/internal/thread/compose"
	"gomodmail/internal/thread/identity"
	"gomodmail/internal/thread/repository"
	"gomodmail/internal/thread/service"
)

// Application is everything `serve` runs.
type Application struct {
	Config  *config.Config
	DB      *gorm.DB
	Discord *platform.Discord
	Engine  *service.Engine
	Bus     *events.Bus
	Router  *router.Router
	HTTP    http.Handler
}

// Store is the read-only slice used by offline commands.
type Store struct {
	Config   *config.Config
	DB       *gorm.DB
	Threads  repository.ThreadRepository
	Messages repository.MessageRepository
}

var StoreSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideDatabase,
	repository.NewThreadRepository,
	repository.NewMessageRepository,
)

var ApplicationSet = wire.NewSet(
	StoreSet,
	ProvideDiscord,
	wire.Bind(new(platform.Gateway), new(*platform.Discord)),
	wire.Bind(new(identity.RoleSource), new(*platform.Discord)),
	identity.NewResolver,
	compose.NewComposer,
	metrics.New,
	events.NewHub,
	ProvideBus,
	ProvideMongo,
	ProvideAttachmentStorage,
	ProvideEngine,
	ProvideRouter,
	wire.Bind(new(api.ThreadReader), new(*service.Engine)),
	api.NewTokenIssuer,
	api.NewHandler,
	ProvideHTTPHandler,
)

func ProvideConfig() *config.Config {
	return config.LoadConfig()
}

func ProvideLogger(cfg *config.Config) (logrus.FieldLogger, error) {
	if err := logging.Initialize(cfg.Logging); err != nil {
		return nil, err
	}
	return logging.Get(), nil
}

func ProvideDatabase(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := dbmysql.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := dbmysql.Migrate(db); err != nil {
		log.WithError(err).Warn("Migration warning")
	}
	return db, nil
}

func ProvideDiscord(cfg *config.Config) (*platform.Discord, error) {
	return platform.NewDiscord(cfg)
}

// ProvideBus starts the event workers with the websocket hub and metrics subscribed.
func ProvideBus(cfg *config.Config, log logrus.FieldLogger, hub *events.Hub, m *metrics.Metrics) (*events.Bus, func()) {
	bus := events.NewBus(cfg.Relay.EventWorkers, cfg.Relay.EventBufferSize, log)
	bus.Subscribe(hub)
	bus.Subscribe(m)
	return bus, func() {
		bus.Shutdown()
		hub.Close()
	}
}

// ProvideMongo returns nil when attachment archiving is disabled.
func ProvideMongo(cfg *config.Config, log logrus.FieldLogger) (*dbmongo.MongoClient, func(), error) {
	if !cfg.MongoDB.Enabled {
		log.Info("MongoDB disabled, attachments are linked from the platform CDN")
		return nil, func() {}, nil
	}
	client, err := dbmongo.NewMongoConnection(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(ctx); err != nil {
			log.WithError(err).Warn("Failed to disconnect MongoDB")
		}
	}, nil
}

func ProvideAttachmentStorage(client *dbmongo.MongoClient, cfg *config.Config) *dbmongo.AttachmentStorage {
	if client == nil {
		return nil
	}
	return dbmongo.NewAttachmentStorage(client, cfg.Server.MediaBaseURL)
}

func ProvideEngine(
	threads repository.ThreadRepository,
	messages repository.MessageRepository,
	gateway platform.Gateway,
	resolver *identity.Resolver,
	composer *compose.Composer,
	cfg *config.Config,
	log logrus.FieldLogger,
	bus *events.Bus,
	m *metrics.Metrics,
	storage *dbmongo.AttachmentStorage,
) (*service.Engine, func()) {
	opts := []service.Option{
		service.WithEventSink(bus),
		service.WithRecorder(m),
	}
	if storage != nil {
		opts = append(opts, service.WithAttachmentStore(storage))
	}
	engine := service.NewEngine(threads, messages, gateway, resolver, composer, cfg, log, opts...)
	return engine, engine.Shutdown
}

func ProvideRouter(engine *service.Engine, cfg *config.Config, log logrus.FieldLogger) *router.Router {
	return router.New(engine, cfg.Discord.CommandPrefix, log)
}

func ProvideHTTPHandler(
	cfg *config.Config,
	handler *api.Handler,
	hub *events.Hub,
	m *metrics.Metrics,
	storage *dbmongo.AttachmentStorage,
	issuer *api.TokenIssuer,
	log logrus.FieldLogger,
) http.Handler {
	routes := api.Routes{
		Handler: handler,
		Events:  hub,
		Metrics: m.Handler(),
	}
	if storage != nil {
		routes.Media = media.NewHTTPServer(storage, log)
	}
	return api.NewRouter(cfg, routes, issuer, log)
}
