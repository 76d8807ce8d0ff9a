package main

import (
	"fmt"
	"image/color"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"brainviewer/internal/models"
	"brainviewer/pkg/canvas"
	"brainviewer/pkg/config"
	"brainviewer/pkg/mesh"
	"brainviewer/pkg/orbit"
	"brainviewer/pkg/scene"
)

func sceneOptions(cfg *config.Config, frames func(int) scene.FrameSource) scene.Options {
	opts := scene.DefaultOptions()
	opts.FPS = cfg.Scene.FPS
	opts.FOV = cfg.Scene.FOV
	opts.Limits = orbit.Limits{MinDistance: cfg.Scene.MinDistance, MaxDistance: cfg.Scene.MaxDistance}
	opts.Orbit = orbit.Options{
		RotateSpeed:     cfg.Scene.RotateSpeed,
		AutoRotate:      cfg.Scene.AutoRotate,
		AutoRotateSpeed: cfg.Scene.AutoRotateSpeed,
	}
	opts.Points.Cap = cfg.Scene.PointCap
	opts.Points.Radius = cfg.Scene.SphereRadius
	opts.Points.Segments = cfg.Scene.SphereSegments
	opts.Background = color.RGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff}
	opts.Logger = log.Logger
	if frames != nil {
		opts.Frames = frames
	}
	return opts
}

func styles(cfg *config.Config) (brain, lesion scene.Style) {
	brain, lesion = scene.BrainStyle(), scene.LesionStyle()
	if c, err := mesh.ParseHexColor(cfg.Scene.BrainColor); err == nil {
		brain.Color = c
	} else {
		log.Warn().Err(err).Msg("scene.brainColor ignored")
	}
	if c, err := mesh.ParseHexColor(cfg.Scene.LesionColor); err == nil {
		lesion.Color = c
	} else {
		log.Warn().Err(err).Msg("scene.lesionColor ignored")
	}
	brain.Opacity = firstNonZeroFloat(cfg.Scene.BrainOpacity, brain.Opacity)
	lesion.Opacity = firstNonZeroFloat(cfg.Scene.LesionOpacity, lesion.Opacity)
	brain.Wireframe = cfg.Scene.Wireframe
	return brain, lesion
}

// mountScene creates a mounted 3D view showing the given meshes. The camera
// follows events when it is not nil.
func mountScene(cfg *config.Config, frames func(int) scene.FrameSource, events orbit.EventSource, brain *models.MeshData, lesion models.LesionVisual) (*scene.Manager, error) {
	m := scene.NewManager(scene.NewSoftwareSurface(0, 0), sceneOptions(cfg, frames))
	brainStyle, lesionStyle := styles(cfg)
	if err := m.SetBrain(brain, brainStyle); err != nil {
		return nil, fmt.Errorf("brain mesh: %w", err)
	}
	if err := m.SetLesion(lesion, lesionStyle); err != nil {
		return nil, fmt.Errorf("lesion visual: %w", err)
	}
	if err := m.Mount(cfg.Scene.Width, cfg.Scene.Height, events); err != nil {
		return nil, err
	}
	return m, nil
}

// renderScene draws one frame of the 3D view to a PNG file
func renderScene(cfg *config.Config, brain *models.MeshData, lesion models.LesionVisual, path string) error {
	frames := scene.NewManualFrames()
	m, err := mountScene(cfg, func(int) scene.FrameSource { return frames }, nil, brain, lesion)
	if err != nil {
		return err
	}
	defer m.Unmount()

	img, err := m.Snapshot()
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
	log.Info().Str("path", path).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("scene saved")
	return f.Close()
}

// sceneHandler serves the latest frame of a running 3D view
func sceneHandler(m *scene.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := m.Snapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := canvas.EncodePNG(w, img); err != nil {
			log.Debug().Err(err).Msg("scene frame write failed")
		}
	}
}
