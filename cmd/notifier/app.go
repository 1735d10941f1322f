package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/prytaneum/townhall-notifier/pkg/broker"
	"github.com/prytaneum/townhall-notifier/pkg/config"
	"github.com/prytaneum/townhall-notifier/pkg/connstate"
	"github.com/prytaneum/townhall-notifier/pkg/email"
	"github.com/prytaneum/townhall-notifier/pkg/httpserver"
	"github.com/prytaneum/townhall-notifier/pkg/jwt"
	"github.com/prytaneum/townhall-notifier/pkg/logger"
	"github.com/prytaneum/townhall-notifier/pkg/metrics"
	"github.com/prytaneum/townhall-notifier/pkg/mongo"
	"github.com/prytaneum/townhall-notifier/pkg/pg"
	"github.com/prytaneum/townhall-notifier/pkg/queue"
	"github.com/prytaneum/townhall-notifier/pkg/redis"
	"github.com/prytaneum/townhall-notifier/pkg/retry"
	"github.com/prytaneum/townhall-notifier/svc/delivery"
	"github.com/prytaneum/townhall-notifier/svc/notify"
	"github.com/prytaneum/townhall-notifier/svc/subscribers"
)

const serviceName = "townhall-notifier"

// Subscriber store backends selectable through SUBSCRIBER_STORE.
const (
	storeMongo  = "mongo"
	storeMemory = "memory"
)

var (
	ErrUnknownStore = errors.New("unknown subscriber store")
	ErrBrokerDown   = errors.New("broker is not connected")
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	Store         string        `env:"SUBSCRIBER_STORE" envDefault:"mongo"`
	Regions       []string      `env:"SUBSCRIBER_REGIONS" envSeparator:","`
	RetryAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
}

// app owns the process-wide tables and the lazily opened connections. Every
// command builds one in PersistentPreRunE and closes it afterwards.
type app struct {
	env   map[string]string
	cfg   appConfig
	log   *slog.Logger
	coord *retry.Coordinator

	redis   *redis.Conn
	pg      *pg.Conn
	mongo   *mongo.Conn
	closers []func(context.Context) error
}

func newApp(env map[string]string, out io.Writer) (*app, error) {
	a := &app{env: env}
	if err := load(a, &a.cfg); err != nil {
		return nil, err
	}

	a.log = logger.New(
		logger.WithEnvironment(a.cfg.Env, serviceName),
		logger.WithOutput(out),
		logger.WithContextExtractors(logger.JobExtractor),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	)

	tracker := connstate.New(
		connstate.WithLogger(a.log),
		connstate.WithObserver(metrics.ConnectionObserver(
			notify.BrokerConnectKey, mongo.ConnectKey, redis.ConnectKey, pg.ConnectKey,
		)),
	)
	a.coord = retry.New(
		retry.WithDefaults(retry.Config{MaxAttempts: a.cfg.RetryAttempts, Interval: a.cfg.RetryInterval}),
		retry.WithTracker(tracker),
		retry.WithLogger(a.log),
		retry.WithAttemptObserver(metrics.RetryObserver),
	)
	return a, nil
}

// load reads T from the app's environment; a nil map means the process one.
func load[T any](a *app, v *T) error {
	var opts []config.Option
	if a.env != nil {
		opts = append(opts, config.WithEnvironment(a.env))
	}
	return config.Load(v, opts...)
}

func (a *app) Close(ctx context.Context) error {
	a.coord.Close()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func (a *app) redisConn() (*redis.Conn, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	var cfg redis.Config
	if err := load(a, &cfg); err != nil {
		return nil, err
	}
	conn, err := redis.New(cfg, a.coord)
	if err != nil {
		return nil, err
	}
	a.redis = conn
	a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
	return conn, nil
}

func (a *app) pgConn() (*pg.Conn, error) {
	if a.pg != nil {
		return a.pg, nil
	}
	var cfg pg.Config
	if err := load(a, &cfg); err != nil {
		return nil, err
	}
	conn, err := pg.New(cfg, a.coord)
	if err != nil {
		return nil, err
	}
	a.pg = conn
	a.closers = append(a.closers, func(context.Context) error {
		conn.Close()
		return nil
	})
	return conn, nil
}

func (a *app) mongoConn() (*mongo.Conn, error) {
	if a.mongo != nil {
		return a.mongo, nil
	}
	var cfg mongo.Config
	if err := load(a, &cfg); err != nil {
		return nil, err
	}
	conn := mongo.New(cfg, a.coord)
	a.mongo = conn
	a.closers = append(a.closers, conn.Close)
	return conn, nil
}

func (a *app) broker() (broker.Broker, error) {
	var cfg broker.Config
	if err := load(a, &cfg); err != nil {
		return nil, err
	}
	var conn *redis.Conn
	if cfg.Backend == broker.BackendRedis {
		var err error
		if conn, err = a.redisConn(); err != nil {
			return nil, err
		}
	}
	b, err := broker.New(cfg, conn, a.log.With(logger.Component("broker")))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return b.Close() })
	return b, nil
}

func (a *app) subscriberStore(ctx context.Context) (subscribers.Store, []httpserver.Check, error) {
	switch a.cfg.Store {
	case storeMemory:
		return subscribers.NewMemoryStore(a.cfg.Regions...), nil, nil
	case storeMongo:
		conn, err := a.mongoConn()
		if err != nil {
			return nil, nil, err
		}
		store := subscribers.NewMongoStore(conn)
		for _, region := range a.cfg.Regions {
			if err := store.EnsureRegion(ctx, region); err != nil {
				return nil, nil, fmt.Errorf("seed region %q: %w", region, err)
			}
		}
		return store, []httpserver.Check{{Name: "mongo", Fn: conn.Healthcheck()}}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStore, a.cfg.Store)
	}
}

func (a *app) queueStorage(ctx context.Context) (queue.Storage, queue.Config, []httpserver.Check, error) {
	var cfg queue.Config
	if err := load(a, &cfg); err != nil {
		return nil, cfg, nil, err
	}
	if cfg.Storage != queue.StoragePostgres {
		storage, err := queue.NewStorage(cfg, nil)
		return storage, cfg, nil, err
	}

	conn, err := a.pgConn()
	if err != nil {
		return nil, cfg, nil, err
	}
	pool, err := conn.Handle(ctx)
	if err != nil {
		return nil, cfg, nil, err
	}
	storage, err := queue.NewStorage(cfg, pool)
	if err != nil {
		return nil, cfg, nil, err
	}
	return storage, cfg, []httpserver.Check{{Name: "postgres", Fn: conn.Healthcheck()}}, nil
}

// brokerCheck reports ready while the consumer holds a broker connection.
func (a *app) brokerCheck() httpserver.Check {
	return httpserver.Check{
		Name: "broker",
		Fn: func(context.Context) error {
			if s := a.coord.Tracker().Status(notify.BrokerConnectKey); s != connstate.Connected {
				return fmt.Errorf("%w: %s", ErrBrokerDown, s)
			}
			return nil
		},
	}
}

// pipeline holds everything the consumer and the HTTP module share.
type pipeline struct {
	subs    *subscribers.Service
	service *notify.Service
	worker  *queue.Worker
	checks  []httpserver.Check
}

func (a *app) pipeline(ctx context.Context) (*pipeline, error) {
	var (
		batcherCfg  delivery.BatcherConfig
		dispatchCfg delivery.DispatcherConfig
		jwtCfg      jwt.Config
		emailCfg    email.Config
	)
	for _, err := range []error{
		load(a, &batcherCfg), load(a, &dispatchCfg), load(a, &jwtCfg), load(a, &emailCfg),
	} {
		if err != nil {
			return nil, err
		}
	}

	signer, err := jwt.New(jwtCfg)
	if err != nil {
		return nil, err
	}
	sender, err := email.New(emailCfg)
	if err != nil {
		return nil, err
	}
	batcher, err := delivery.NewBatcher(signer, batcherCfg)
	if err != nil {
		return nil, err
	}
	dispatcher := delivery.NewDispatcher(sender, a.coord, dispatchCfg,
		delivery.WithDispatcherLogger(a.log.With(logger.Component("dispatcher"))))

	store, checks, err := a.subscriberStore(ctx)
	if err != nil {
		return nil, err
	}
	subs := subscribers.NewService(store, a.coord, a.log.With(logger.Component("subscribers")))

	storage, qcfg, qchecks, err := a.queueStorage(ctx)
	if err != nil {
		return nil, err
	}
	checks = append(checks, qchecks...)

	enqueuer, err := queue.NewEnqueuer(storage, queue.WithDefaultQueue(qcfg.Queue))
	if err != nil {
		return nil, err
	}
	worker, err := queue.NewWorker(storage,
		queue.WithQueues(qcfg.Queue),
		queue.WithLockTimeout(qcfg.LockTimeout),
		queue.WithMaxConcurrentTasks(qcfg.MaxConcurrentTasks),
		queue.WithWorkerLogger(a.log.With(logger.Component("worker"))),
	)
	if err != nil {
		return nil, err
	}

	handlers := notify.NewHandlers(subs,
		delivery.NewPipeline(batcher, dispatcher, a.log.With(logger.Component("pipeline"))),
		a.log.With(logger.Component("handlers")))
	if err := handlers.Register(worker); err != nil {
		return nil, err
	}

	return &pipeline{
		subs:    subs,
		service: notify.NewService(enqueuer, delivery.NewScheduler(), subs, a.log.With(logger.Component("notify"))),
		worker:  worker,
		checks:  checks,
	}, nil
}

func (a *app) consumer(p *pipeline, b broker.Broker) (*notify.Consumer, error) {
	var cfg notify.ConsumerConfig
	if err := load(a, &cfg); err != nil {
		return nil, err
	}
	return notify.NewConsumer(b, p.service, p.worker, a.coord, cfg,
		a.log.With(logger.Component("consumer"))), nil
}
