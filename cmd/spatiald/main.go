package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/spatial-entities/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-entities/internal/core/codec"
	"github.com/mohammed-shakir/spatial-entities/internal/core/collection"
	"github.com/mohammed-shakir/spatial-entities/internal/core/config"
	"github.com/mohammed-shakir/spatial-entities/internal/core/entity"
	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
	"github.com/mohammed-shakir/spatial-entities/internal/core/health"
	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	"github.com/mohammed-shakir/spatial-entities/internal/core/router"
	"github.com/mohammed-shakir/spatial-entities/internal/core/server"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
	"github.com/mohammed-shakir/spatial-entities/internal/invalidation"
	"github.com/mohammed-shakir/spatial-entities/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/spatial-entities/internal/logger"
	h3mapper "github.com/mohammed-shakir/spatial-entities/internal/mapper/h3"
	"github.com/mohammed-shakir/spatial-entities/internal/metrics"
	"github.com/mohammed-shakir/spatial-entities/internal/poi"
	"github.com/mohammed-shakir/spatial-entities/internal/store/memory"
	"github.com/mohammed-shakir/spatial-entities/internal/store/mongodocs"
	"github.com/mohammed-shakir/spatial-entities/internal/store/redisdocs"
	"github.com/mohammed-shakir/spatial-entities/internal/store/remote"
	"github.com/mohammed-shakir/spatial-entities/internal/store/rtreeidx"
)

var Version = "dev"

// demo data is scattered over greater Stockholm
var demoArea = geom.NewEnvelope(17.6, 59.1, 18.6, 59.6)

func main() {
	os.Exit(run())
}

func run() int {
	backendFlag := flag.String("backend", "", "storage backend: memory|rtree|redis|mongo")
	flag.Parse()

	cfg := config.FromEnv()
	if *backendFlag != "" {
		cfg.Backend = strings.ToLower(strings.TrimSpace(*backendFlag))
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Backend:   cfg.Backend,
		Component: "spatiald",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.SetBackend(cfg.Backend)
	appLog.Info("starting spatiald",
		"addr", cfg.Addr,
		"version", Version,
		"backend", cfg.Backend,
		"scheme", cfg.CoordScheme,
		"update_policy", cfg.UpdatePolicy)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mp := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Version: Version,
	})
	go func() {
		if err := mp.Serve(ctx, appLog); err != nil {
			appLog.Error("metrics server exited", "err", err)
		}
	}()

	app, err := wire(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("startup failed", "err", err)
		return 1
	}
	defer app.close(appLog)

	if app.consumer != nil {
		go func() {
			if err := app.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("event consumer stopped", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg, appLog, app.cols, app.checks...); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

type app struct {
	cols     []router.Collection
	checks   []health.Check
	closers  []func(context.Context) error
	consumer *kafkaconsumer.Consumer
	pub      *invalidation.Publisher
}

func (a *app) close(l *slog.Logger) {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			l.Warn("shutdown", "err", err)
		}
	}
	if a.pub != nil {
		_ = a.pub.Close()
	}
}

// deps is what every layer is built from.
type deps struct {
	cfg      config.Config
	log      *slog.Logger
	conv     *codec.Converter
	policy   spatial.UpdatePolicy
	backend  func(ctx context.Context, layer string) (remote.Backend, error)
	pub      invalidation.EventPublisher
	consumer *kafkaconsumer.Consumer
}

func wire(ctx context.Context, cfg config.Config, l *slog.Logger) (*app, error) {
	scheme, err := codec.ParseScheme(cfg.CoordScheme)
	if err != nil {
		return nil, err
	}
	policy, err := spatial.ParseUpdatePolicy(cfg.UpdatePolicy)
	if err != nil {
		return nil, err
	}
	a := &app{}
	d := deps{
		cfg:    cfg,
		log:    l,
		conv:   codec.NewConverter(scheme, codec.WithSRID(cfg.SRID)),
		policy: policy,
	}

	switch cfg.Backend {
	case "memory":
	case "rtree":
		d.backend = func(context.Context, string) (remote.Backend, error) {
			return rtreeidx.New(rtreeidx.WithConverter(d.conv)), nil
		}
	case "redis":
		cli, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithReadTimeout(cfg.BackendOpTimeout),
			redisstore.WithWriteTimeout(cfg.BackendOpTimeout))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return cli.Close() })
		a.checks = append(a.checks, health.Check{Name: "redis", Fn: cli.Ping})
		m := h3mapper.New(
			h3mapper.WithMaxCells(cfg.MaxCoverCells),
			h3mapper.WithCacheSize(cfg.CoveringCacheSize))
		d.backend = func(_ context.Context, layer string) (remote.Backend, error) {
			return redisdocs.New(cli, layer, m,
				redisdocs.WithConverter(d.conv),
				redisdocs.WithResolution(cfg.H3Res)), nil
		}
	case "mongo":
		d.backend = func(ctx context.Context, layer string) (remote.Backend, error) {
			cctx, cancel := context.WithTimeout(ctx, 5*cfg.BackendOpTimeout)
			defer cancel()
			return mongodocs.Connect(cctx, cfg.MongoURI, cfg.MongoDB, layer, mongodocs.WithConverter(d.conv))
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Events.Enabled {
		brokers := splitList(cfg.Events.Brokers)
		pub, err := invalidation.NewPublisher(brokers, cfg.Events.Topic, cfg.Events.InstanceID)
		if err != nil {
			a.close(l)
			return nil, err
		}
		a.pub, d.pub = pub, pub
		a.consumer = kafkaconsumer.New(kafkaconsumer.Config{
			Brokers:    brokers,
			Topic:      cfg.Events.Topic,
			GroupID:    cfg.Events.GroupID,
			InstanceID: cfg.Events.InstanceID,
			DedupeSize: cfg.Events.DedupeSize,
		}, l)
		d.consumer = a.consumer
		a.checks = append(a.checks, health.ConsumerCheck(a.consumer))
	}

	pois, err := layer(ctx, a, d, "poi", poi.POIs)
	if err != nil {
		a.close(l)
		return nil, err
	}
	zones, err := layer(ctx, a, d, "zones", poi.Zones)
	if err != nil {
		a.close(l)
		return nil, err
	}
	a.cols = []router.Collection{pois, zones}
	a.checks = append(a.checks, health.Check{Name: "sources", Fn: func(context.Context) error {
		if pois.State() != spatial.Opened || zones.State() != spatial.Opened {
			return errors.New("source not open")
		}
		return nil
	}})

	if cfg.SeedDemo {
		r := rand.New(rand.NewPCG(1, 2))
		seed(ctx, l, pois, func() []poi.POI { return poi.Random(r, demoArea, 1, 2000) })
		seed(ctx, l, zones, demoZones)
	}
	return a, nil
}

// layer stacks the source decorators for one entity type and registers it for invalidation.
func layer[T any](ctx context.Context, a *app, d deps, name string, desc *entity.Descriptor[T]) (*collection.Collection[T], error) {
	var src spatial.Source[T]
	if d.backend == nil {
		src = memory.New[T](desc,
			memory.WithSRID(d.conv.SRID()),
			memory.WithUpdatePolicy(d.policy),
			memory.WithLogger(d.log))
	} else {
		b, err := d.backend(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%s backend: %w", name, err)
		}
		src = remote.New[T](b, desc,
			remote.WithScheme(d.conv.Scheme()),
			remote.WithSRID(d.conv.SRID()),
			remote.WithUpdatePolicy(d.policy),
			remote.WithLogger(d.log))
	}
	inst := spatial.NewInstrumented[T](spatial.NewSynchronized[T](src), name, d.log)
	src = inst
	if d.pub != nil {
		src = invalidation.NewNotifying[T](inst, desc, name, d.conv.SRID(), d.pub, d.log)
	}
	if err := src.Open(ctx); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	a.closers = append(a.closers, src.Close)
	if d.consumer != nil {
		d.consumer.Register(name, inst)
	}
	return collection.New[T](name, src, desc, d.conv), nil
}

// seed fills an empty layer; a populated shared store is left alone.
func seed[T any](ctx context.Context, l *slog.Logger, c *collection.Collection[T], gen func() []T) {
	n, err := c.Count(ctx)
	if err != nil || n > 0 {
		return
	}
	items := gen()
	if err := c.Source().Insert(ctx, items...); err != nil {
		l.Warn("seed demo data", "layer", c.Name(), "err", err)
		return
	}
	l.Info("seeded demo data", "layer", c.Name(), "n", len(items))
}

func demoZones() []poi.Zone {
	return []poi.Zone{
		poi.Box(1, geom.NewEnvelope(17.6, 59.1, 18.6, 59.6), "Stockholm county", 4),
		poi.Box(2, geom.NewEnvelope(17.95, 59.28, 18.2, 59.38), "Stockholm", 7),
		poi.Box(3, geom.NewEnvelope(18.03, 59.31, 18.1, 59.34), "Innerstaden", 9),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
