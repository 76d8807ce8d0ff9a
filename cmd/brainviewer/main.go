package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"brainviewer/internal/models"
	"brainviewer/internal/ws"
	"brainviewer/pkg/canvas"
	"brainviewer/pkg/config"
	"brainviewer/pkg/orbit"
	"brainviewer/pkg/session"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		initConfig = flag.Bool("init-config", false, "write a default config to -config and exit")
		brainPath  = flag.String("brain", "", "brain volume uploaded to the imaging service")
		lesionPath = flag.String("lesion", "", "lesion mask uploaded to the imaging service")
		stackDir   = flag.String("stack", "", "directory of 2D slice images viewed without the service")
		gap        = flag.Float64("gap", 1.5, "inter-slice gap in mm for -stack")
		axisName   = flag.String("axis", "", "slice axis: axial, coronal or sagittal")
		index      = flag.Int("index", -1, "slice index (default: middle slice)")
		out        = flag.String("out", "", "write the current slice as PNG")
		slicesDir  = flag.String("slices-dir", "", "write every slice of -axis as PNG into this directory (local volumes only)")
		scenePath  = flag.String("scene", "", "write a 3D view of the meshes as PNG")
		exportMesh = flag.String("export-mesh", "", "write the brain surface mesh to this file")
		analyze    = flag.Bool("analyze", false, "log intensity statistics of the brain volume")
		serve      = flag.Bool("serve", false, "serve the interactive viewer")
		addr       = flag.String("addr", ":8080", "HTTP listen address for -serve")
		verbose    = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("could not write default config")
		}
		log.Info().Str("path", *configPath).Msg("default config written")
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; using defaults")
		cfg = config.DefaultConfig()
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	setLevel(cfg)

	ctx := context.Background()

	var vols *volumes
	if *brainPath != "" || *lesionPath != "" {
		vols, err = openRemote(ctx, cfg, *brainPath, *lesionPath)
	} else {
		vols, err = openLocal(*stackDir, *gap)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("could not open volumes")
	}

	sess := session.New(vols.source, session.Options{
		DiscardStale: cfg.Viewer.DiscardStaleSlices,
		Display:      cfg.DisplaySettings(),
		Logger:       log.Logger,
	})
	for _, ref := range vols.refs {
		if _, err := sess.LoadVolume(ctx, ref); err != nil {
			log.Fatal().Err(err).Str("role", ref.Role.String()).Msg("could not load volume")
		}
	}

	axis := models.Axial
	if *axisName != "" {
		if axis, err = models.ParseAxis(*axisName); err != nil {
			log.Fatal().Err(err).Msg("invalid -axis")
		}
	}
	sess.SetAxis(ctx, axis)
	if *index >= 0 {
		if _, err := sess.SetIndex(ctx, *index); err != nil {
			log.Fatal().Err(err).Msg("invalid -index")
		}
	}
	for _, role := range models.Roles {
		if msg := sess.Status(role); msg != "" {
			log.Warn().Str("role", role.String()).Msg(msg)
		}
	}

	renderer, err := canvas.NewRenderer(canvas.Options{
		GridSpacing:   cfg.Viewer.GridSpacing,
		CrosshairDash: cfg.Viewer.CrosshairDash,
		LesionOpacity: cfg.Viewer.LesionOpacity,
		LabelSize:     cfg.Viewer.LabelSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not create slice renderer")
	}
	defer renderer.Close()

	if *analyze {
		vols.analyze(ctx)
	}

	if *out != "" {
		if err := saveSlice(renderer, sess, *out); err != nil {
			log.Error().Err(err).Msg("could not save slice")
		}
	}

	if *slicesDir != "" {
		if viewer, ok := vols.local[models.Brain]; ok {
			if err := viewer.SaveSliceSequence(axis, *slicesDir, sess.Display()); err != nil {
				log.Error().Err(err).Msg("could not save slice sequence")
			} else {
				log.Info().Str("dir", *slicesDir).Str("axis", axis.String()).Msg("slices saved")
			}
		} else {
			log.Warn().Msg("-slices-dir needs a local volume")
		}
	}

	if *exportMesh != "" {
		if err := vols.exportMesh(ctx, cfg, *exportMesh); err != nil {
			log.Error().Err(err).Msg("mesh export failed")
		}
	}

	var brainMesh *models.MeshData
	var lesionVisual models.LesionVisual = models.NoVisual{}
	if *scenePath != "" || *serve {
		start := time.Now()
		brainMesh, lesionVisual, err = vols.meshes(ctx, cfg)
		if err != nil {
			log.Error().Err(err).Msg("could not load meshes")
		} else {
			log.Info().Dur("took", time.Since(start)).Msg("meshes loaded")
		}
	}

	if *scenePath != "" {
		if err := renderScene(cfg, brainMesh, lesionVisual, *scenePath); err != nil {
			log.Error().Err(err).Msg("could not render scene")
		}
	}

	if *serve {
		runServer(cfg, *addr, sess, renderer, brainMesh, lesionVisual)
	}
}

func setLevel(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Output.LogLevel)
	if err != nil || cfg.Output.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Output.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

func saveSlice(renderer *canvas.Renderer, sess *session.Session, path string) error {
	img, err := renderer.Render(sess.Frame())
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := canvas.EncodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	idx, count := sess.Position(sess.Axis())
	log.Info().Str("path", path).Str("axis", sess.Axis().String()).Int("index", idx).Int("count", count).Msg("slice saved")
	return f.Close()
}

func runServer(cfg *config.Config, addr string, sess *session.Session, renderer *canvas.Renderer, brain *models.MeshData, lesion models.LesionVisual) {
	hub := ws.NewHub(sess, renderer, log.Logger)
	mux := http.NewServeMux()
	hub.Register(mux)

	events := orbit.NewBus()
	view, err := mountScene(cfg, nil, events, brain, lesion)
	if err != nil {
		log.Error().Err(err).Msg("3D view unavailable")
	} else {
		defer view.Unmount()
		hub.SetOrbit(events)
		mux.HandleFunc("/scene.png", sceneHandler(view))
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info().Str("signal", s.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func firstNonZeroFloat(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}
