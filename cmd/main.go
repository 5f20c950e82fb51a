package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/pvsbake/bake"
	"github.com/aukilabs/pvsbake/featureflag"
	phttp "github.com/aukilabs/pvsbake/http"
	"github.com/aukilabs/pvsbake/scene"
	pwebsocket "github.com/aukilabs/pvsbake/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The pvsbake version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "pvs_info",
		Help:        "PVS baker information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Scene              string        `cli:""        env:"PVSBAKE_SCENE"                help:"The JSON file that describes the scene to bake."`
	Output             string        `cli:""        env:"PVSBAKE_OUTPUT"               help:"The file where the bake report is written. Empty writes to the standard output."`
	Select             []string      `cli:""        env:"PVSBAKE_SELECT"               help:"Comma separated names of the occluders to bake. Empty selects every occluder."`
	Clear              bool          `cli:""        env:"PVSBAKE_CLEAR"                help:"Clear the octants of the selected occluders instead of baking them."`
	Quality            int           `cli:""        env:"PVSBAKE_QUALITY"              help:"Overrides the scene resolution with the one of a quality level (0 is 32 pixels). -1 keeps the scene resolution."`
	FeatherRadius      int           `cli:""        env:"PVSBAKE_FEATHER_RADIUS"       help:"Overrides the scene feather radius. -1 keeps the scene feather radius."`
	FieldOfView        int           `cli:",hidden" env:"PVSBAKE_FIELD_OF_VIEW"        help:"Overrides the scene field of view, in degrees. 0 keeps the scene field of view."`
	RenderDistance     int           `cli:",hidden" env:"PVSBAKE_RENDER_DISTANCE"      help:"Overrides the scene render distance. 0 keeps the scene render distance."`
	AdminAddr          string        `cli:""        env:"PVSBAKE_ADMIN_ADDR"           help:"Admin listening address. Empty disables the admin server."`
	Serve              bool          `cli:""        env:"PVSBAKE_SERVE"                help:"Keep the admin server running once the bake is over."`
	LogLevel           string        `cli:""        env:"PVSBAKE_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"PVSBAKE_LOG_INDENT"           help:"Indent logs."`
	HeartbeatInterval  time.Duration `cli:",hidden" env:"PVSBAKE_HEARTBEAT_INTERVAL"   help:"Progress client heartbeat message interval."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"PVSBAKE_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by progress connection."`
	Events             eventsConfig  `cli:",hidden" env:"-"                            help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"PVSBAKE_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                            help:"Show version."`
	Help               bool          `cli:""        env:"-"                            help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"PVSBAKE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Empty disables events."`
	FlushInterval time.Duration `cli:",hidden" env:"PVSBAKE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"PVSBAKE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"PVSBAKE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Quality:            -1,
		FeatherRadius:      -1,
		LogLevel:           logs.InfoLevel.String(),
		HeartbeatInterval:  pwebsocket.DefaultHeartbeat,
		LogSummaryInterval: time.Minute,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Bakes the octants each occluder of a scene is potentially visible from.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "pvsbake",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	flags := featureflag.New(conf.FeatureFlags)
	if unknown := flags.Unknown(); len(unknown) != 0 {
		logs.WithTag("feature_flags", unknown).Warn("unknown feature flags are ignored")
	}

	s, err := scene.LoadFile(conf.Scene)
	if err != nil {
		logs.Fatal(errors.New("loading scene failed").Wrap(err))
	}
	defer s.Close()

	if err := applyOverrides(&s.Settings, conf); err != nil {
		logs.Fatal(err)
	}

	broadcaster := pwebsocket.NewBroadcaster()
	var bakeOver atomic.Bool

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	var wg sync.WaitGroup
	if conf.AdminAddr != "" {
		var admin http.ServeMux
		admin.Handle("/metrics", promhttp.Handler())
		admin.HandleFunc("/health", phttp.HandleHealthCheck)
		admin.HandleFunc("/ready", phttp.HandleReadyCheck(bakeOver.Load))
		admin.Handle("/version", phttp.HandleWithCORS(phttp.HandleVersion(version)))
		admin.Handle("/progress", phttp.HandleWithCORS(phttp.HandleProgress(serveCtx, phttp.ProgressOptions{
			Broadcaster:        broadcaster,
			HeartbeatInterval:  conf.HeartbeatInterval,
			LogSummaryInterval: conf.LogSummaryInterval,
		})))
		admin.Handle("/progress.json", phttp.HandleWithCORS(phttp.HandleProgressSnapshot(broadcaster)))
		admin.HandleFunc("/debug/pprof/", pprof.Index)
		admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
		admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		admin.HandleFunc("/debug/pprof/trace", pprof.Trace)

		wg.Add(1)
		go func() {
			defer wg.Done()
			phttp.ListenAndServe(serveCtx, &http.Server{
				Addr:    conf.AdminAddr,
				Handler: metrics.HTTPHandler(&admin, phttp.MetricsPathFormatter),
			})
		}()
	}

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("scene", conf.Scene).
		WithTag("occluders", len(s.Instances)).
		WithTag("meshes", s.Rasterizer.MeshCount()).
		WithTag("resolution", s.Settings.Resolution).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting pvs baker")

	err = run(ctx, s, conf, s.NewBaker(flags, broadcaster.Publish))
	bakeOver.Store(true)
	if err != nil {
		logs.Error(err)
	}

	if !conf.Serve || err != nil {
		stopServing()
	}
	wg.Wait()

	if err != nil {
		s.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, s *scene.Scene, conf config, baker *bake.Baker) error {
	occluders, err := s.Select(conf.Select...)
	if err != nil {
		return errors.New("selecting occluders failed").Wrap(err)
	}

	if conf.Clear {
		if err := baker.Clear(occluders); err != nil {
			return err
		}
		logs.WithTag("occluders", len(occluders)).Info("octants cleared")
		return writeReport(conf.Output, bake.Result{}, s.Instances)
	}

	grid := s.Grid.GetDebugInfo()
	logs.WithTag("cell_size", grid.CellSize).
		WithTag("triangles", grid.TriangleCount).
		WithTag("occupied_cells", grid.OccupiedCells).
		WithTag("min", grid.MinPoint).
		WithTag("max", grid.MaxPoint).
		Debug("collision grid built")

	candidates := s.Candidates.Octants()
	for i, v := range s.Candidates.Volumes {
		if count := v.OctantCount(); count != nil {
			logs.WithTag("volume", i).
				WithTag("position", v.Position).
				WithTag("octants", *count).
				Debug("volume octants computed")
		}
	}

	result, err := baker.Bake(ctx, occluders, candidates)
	if err != nil {
		return errors.New("baking failed").Wrap(err)
	}

	return writeReport(conf.Output, result, s.Instances)
}

func writeReport(path string, result bake.Result, instances []*scene.Instance) error {
	var w io.Writer = os.Stdout

	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.New("creating report file failed").
				WithTag("path", path).
				Wrap(err)
		}
		defer f.Close()
		w = f
	}

	return scene.WriteReport(w, result, instances)
}

func applyOverrides(s *bake.Settings, conf config) error {
	if conf.Quality >= 0 {
		s.Resolution = bake.ResolutionFromLevel(conf.Quality)
	}
	if conf.FeatherRadius >= 0 {
		s.FeatherRadius = conf.FeatherRadius
	}
	if conf.FieldOfView > 0 {
		s.FieldOfView = float32(conf.FieldOfView)
	}
	if conf.RenderDistance > 0 {
		s.RenderDistance = float32(conf.RenderDistance)
	}

	if err := s.Validate(); err != nil {
		return errors.New("invalid setting overrides").Wrap(err)
	}
	return nil
}

func validateConfig(conf config) error {
	if conf.Scene == "" {
		return errors.New("a scene file is required")
	}

	if conf.Serve && conf.AdminAddr == "" {
		return errors.New("serving once the bake is over requires an admin address")
	}

	if conf.Quality > 7 {
		return errors.New("quality level is above 7").
			WithTag("quality", conf.Quality)
	}

	return nil
}
