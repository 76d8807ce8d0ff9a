package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"brainviewer/internal/models"
	"brainviewer/pkg/config"
	"brainviewer/pkg/imaging"
	"brainviewer/pkg/mesh"
	"brainviewer/pkg/session"
	"brainviewer/pkg/visualization"
)

// volumes is where the session gets its slices and meshes from: either the
// imaging service or volumes held in memory
type volumes struct {
	source session.SliceSource
	refs   []models.VolumeRef

	client *imaging.Client
	local  map[models.FileRole]*visualization.Viewer
}

// openRemote uploads the brain and lesion files to the imaging service
func openRemote(ctx context.Context, cfg *config.Config, brainPath, lesionPath string) (*volumes, error) {
	token := cfg.API.Token
	if env := os.Getenv("BRAINVIEWER_TOKEN"); env != "" {
		token = env
	}
	client, err := imaging.New(imaging.Options{
		BaseURL:        cfg.API.BaseURL,
		RequestTimeout: cfg.API.RequestTimeout,
		ExportTimeout:  cfg.API.ExportTimeout,
		Logger:         log.Logger,
	}, imaging.NewCredentials(token))
	if err != nil {
		return nil, err
	}
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("imaging service at %s: %w", cfg.API.BaseURL, err)
	}

	v := &volumes{source: client, client: client}
	for _, f := range []struct {
		role models.FileRole
		path string
	}{{models.Brain, brainPath}, {models.Lesion, lesionPath}} {
		if f.path == "" {
			continue
		}
		ref, err := upload(ctx, client, f.role, f.path)
		if err != nil {
			return nil, err
		}
		v.refs = append(v.refs, ref)
	}
	return v, nil
}

func upload(ctx context.Context, client *imaging.Client, role models.FileRole, path string) (models.VolumeRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.VolumeRef{}, err
	}
	defer f.Close()
	return client.Upload(ctx, role, filepath.Base(path), f)
}

// openLocal stacks a directory of slice images as the brain volume, or builds
// a synthetic brain and lesion when no directory is given
func openLocal(stackDir string, gap float64) (*volumes, error) {
	src := visualization.NewSource()
	v := &volumes{source: src, local: map[models.FileRole]*visualization.Viewer{}}

	if stackDir != "" {
		brain, err := visualization.LoadStack(stackDir, [3]float64{1, 1, gap})
		if err != nil {
			return nil, fmt.Errorf("failed to load slice stack: %w", err)
		}
		v.local[models.Brain] = brain
	} else {
		brain, lesion := visualization.NewPhantom([3]int{128, 128, 64}, [3]float64{1, 1, gap})
		v.local[models.Brain] = brain
		v.local[models.Lesion] = lesion
		log.Info().Msg("no input given, using a synthetic phantom")
	}

	for _, role := range models.Roles {
		if viewer, ok := v.local[role]; ok {
			v.refs = append(v.refs, src.Add(role, viewer))
		}
	}
	return v, nil
}

func (v *volumes) ref(role models.FileRole) (models.VolumeRef, bool) {
	for _, r := range v.refs {
		if r.Role == role {
			return r, true
		}
	}
	return models.VolumeRef{}, false
}

func meshParams(cfg *config.Config) imaging.MeshParams {
	return imaging.MeshParams{
		Threshold: cfg.Mesh.Threshold,
		Smoothing: cfg.Mesh.Smoothing,
		UseCache:  cfg.Mesh.UseCache,
	}
}

// meshes returns the brain surface and the lesion visual for the 3D view
func (v *volumes) meshes(ctx context.Context, cfg *config.Config) (*models.MeshData, models.LesionVisual, error) {
	var brain *models.MeshData
	var lesion models.LesionVisual = models.NoVisual{}

	if v.client == nil {
		if viewer, ok := v.local[models.Brain]; ok {
			data := viewer.Surface(cfg.Mesh.Threshold)
			brain = &data
		}
		if viewer, ok := v.local[models.Lesion]; ok {
			lesion = models.ResolveLesionVisual(nil, ptr(viewer.LesionCoordinates(false)))
		}
		return brain, lesion, nil
	}

	if ref, ok := v.ref(models.Brain); ok {
		res, err := v.client.FetchMesh(ctx, ref, meshParams(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("brain mesh: %w", err)
		}
		brain = res.Mesh
	}
	if ref, ok := v.ref(models.Lesion); ok {
		res, err := v.client.FetchMesh(ctx, ref, meshParams(cfg))
		if err != nil {
			log.Warn().Err(err).Msg("lesion mesh unavailable, showing brain only")
		} else {
			lesion = res.Visual()
		}
	}
	return brain, lesion, nil
}

// exportMesh writes the brain surface to path
func (v *volumes) exportMesh(ctx context.Context, cfg *config.Config, path string) error {
	ref, ok := v.ref(models.Brain)
	if !ok {
		return errors.New("mesh export needs a brain volume")
	}

	if v.client != nil {
		exp, err := v.client.ExportMesh(ctx, ref, meshParams(cfg), cfg.Mesh.Format)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, exp.Data, 0644); err != nil {
			return fmt.Errorf("error writing %s: %w", path, err)
		}
		log.Info().Str("path", path).Str("format", cfg.Mesh.Format).Int("triangles", exp.Triangles).Msg("mesh exported")
		return nil
	}

	data := v.local[models.Brain].Surface(cfg.Mesh.Threshold)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := mesh.EncodeSTL(data, "brain", f); err != nil {
		f.Close()
		return err
	}
	log.Info().Str("path", path).Int("triangles", len(data.Faces)).Msg("mesh exported")
	return f.Close()
}

// analyze logs the intensity statistics of the brain volume
func (v *volumes) analyze(ctx context.Context) {
	ref, ok := v.ref(models.Brain)
	if !ok {
		return
	}
	var a models.Analysis
	if v.client != nil {
		res, err := v.client.Analysis(ctx, ref)
		if err != nil {
			log.Warn().Err(err).Msg("analysis failed")
			return
		}
		a = *res
	} else {
		a = v.local[models.Brain].Analyze()
	}
	log.Info().
		Int("tissue_voxels", a.Volume.TissueVoxels).
		Float64("tissue_volume_mm3", a.Volume.TissueVolume).
		Float64("tissue_pct", a.Volume.TissuePercentage).
		Float64("tissue_mean", a.Intensity.TissueMean).
		Float64("tissue_std", a.Intensity.TissueStd).
		Msg("brain volume analysis")
}

func ptr[T any](v T) *T { return &v }
