package imaging

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"brainviewer/internal/models"
	"brainviewer/pkg/mesh"
)

// Mesh export formats understood by the service
var MeshFormats = []string{"stl", "obj", "ply", "glb"}

// Export is a downloaded file
type Export struct {
	Filename    string
	ContentType string
	Data        []byte

	// Triangles is set for STL exports after the stream has been parsed
	Triangles int
}

// Save writes the export into dir under its own filename and returns the path
func (e *Export) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(e.Filename))
	if err := os.WriteFile(path, e.Data, 0644); err != nil {
		return "", fmt.Errorf("error writing %s: %w", path, err)
	}
	return path, nil
}

// ExportMesh downloads the surface of a brain volume in the given format.
// STL streams are parsed before being returned.
func (c *Client) ExportMesh(ctx context.Context, ref models.VolumeRef, params MeshParams, format string) (*Export, error) {
	format = strings.ToLower(format)
	if !validFormat(format) {
		return nil, fmt.Errorf("unsupported mesh format %q (must be one of %s)", format, strings.Join(MeshFormats, ", "))
	}
	q := params.query()
	q.Del("use_cache")
	q.Set("format", format)

	exp, err := c.download(ctx, "/api/export/mesh/"+escape(ref.FileID), q, fmt.Sprintf("%s_mesh.%s", ref.FileID, format))
	if err != nil {
		return nil, fmt.Errorf("mesh export of %s: %w", ref.FileID, err)
	}

	if format == "stl" {
		data, err := mesh.DecodeSTL(bytes.NewReader(exp.Data))
		if err != nil {
			return nil, fmt.Errorf("mesh export of %s: %w: %v", ref.FileID, ErrMalformedResponse, err)
		}
		exp.Triangles = len(data.Faces)
	}

	c.log.Info().
		Str("id", ref.FileID).
		Str("file", exp.Filename).
		Int("bytes", len(exp.Data)).
		Msg("mesh exported")
	return exp, nil
}

// ExportVolume downloads the stored volume as NIfTI, gzip compressed when
// compress is set
func (c *Client) ExportVolume(ctx context.Context, ref models.VolumeRef, compress bool) (*Export, error) {
	q := url.Values{}
	q.Set("compress", strconv.FormatBool(compress))
	fallback := ref.FileID + ".nii"
	if compress {
		fallback += ".gz"
	}
	exp, err := c.download(ctx, "/api/export/volume/"+escape(ref.FileID), q, fallback)
	if err != nil {
		return nil, fmt.Errorf("volume export of %s: %w", ref.FileID, err)
	}
	return exp, nil
}

// download fetches a binary attachment within the export budget
func (c *Client) download(ctx context.Context, path string, q url.Values, fallback string) (*Export, error) {
	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    path,
		query:   q,
		timeout: c.exportTimeout,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.body) == 0 {
		return nil, fmt.Errorf("%w: empty attachment", ErrMalformedResponse)
	}
	exp := &Export{
		Filename:    attachmentName(resp.header.Get("Content-Disposition"), fallback),
		ContentType: resp.header.Get("Content-Type"),
		Data:        resp.body,
	}
	return exp, nil
}

func attachmentName(disposition, fallback string) string {
	if disposition == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return fallback
	}
	return params["filename"]
}

func validFormat(format string) bool {
	for _, f := range MeshFormats {
		if f == format {
			return true
		}
	}
	return false
}
