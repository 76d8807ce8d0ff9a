package imaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"brainviewer/internal/models"
)

// Login exchanges an email and password for a bearer token, which is stored
// in the client's credentials
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var reply loginReply
	in := map[string]string{"email": email, "password": password}
	if err := c.postJSON(ctx, "/api/auth/login", in, &reply); err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	if reply.AccessToken == "" {
		return "", fmt.Errorf("login failed: %w: no access token", ErrMalformedResponse)
	}
	c.creds.Set(reply.AccessToken)
	c.log.Info().Str("email", email).Msg("logged in")
	return reply.AccessToken, nil
}

// Health checks that the service answers
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/api/health"})
	return err
}

// Upload sends a volume file and returns the reference assigned by the service
func (c *Client) Upload(ctx context.Context, role models.FileRole, filename string, r io.Reader) (models.VolumeRef, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("type", role.String()); err != nil {
		return models.VolumeRef{}, fmt.Errorf("failed to build upload: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return models.VolumeRef{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return models.VolumeRef{}, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return models.VolumeRef{}, fmt.Errorf("failed to build upload: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/upload",
		body:        &body,
		contentType: mw.FormDataContentType(),
		timeout:     c.exportTimeout,
	})
	if err != nil {
		return models.VolumeRef{}, fmt.Errorf("upload of %s failed: %w", filename, err)
	}

	var reply uploadReply
	if err := decode(resp, &reply); err != nil {
		return models.VolumeRef{}, fmt.Errorf("upload of %s failed: %w", filename, err)
	}
	ref, err := reply.FileInfo.ref(reply.FileID, role)
	if err != nil {
		return models.VolumeRef{}, fmt.Errorf("upload of %s: %w: shape %v", filename, err, reply.FileInfo.Shape)
	}
	if ref.FileID == "" {
		return models.VolumeRef{}, fmt.Errorf("upload of %s: %w: no file id", filename, ErrMalformedResponse)
	}

	c.log.Info().
		Str("file", filename).
		Str("id", ref.FileID).
		Str("role", ref.Role.String()).
		Ints("shape", ref.Shape[:]).
		Msg("volume uploaded")
	return ref, nil
}

// FetchSlice retrieves one oriented slice of a stored volume
func (c *Client) FetchSlice(ctx context.Context, ref models.VolumeRef, axis models.Axis, index int) (*models.SliceImage, error) {
	path := fmt.Sprintf("/api/slice/%s/%s/%d", escape(ref.FileID), axis, index)

	var reply sliceReply
	if err := c.getJSON(ctx, path, nil, &reply); err != nil {
		return nil, fmt.Errorf("%s slice %d of %s: %w", axis, index, ref.FileID, err)
	}

	img := &models.SliceImage{
		Data:               reply.SliceData,
		Height:             len(reply.SliceData),
		Axis:               axis,
		Index:              index,
		MaxIndex:           reply.MaxSlices,
		OrientationApplied: reply.OrientationApplied,
	}
	if len(reply.SliceData) > 0 {
		img.Width = len(reply.SliceData[0])
	}
	if len(reply.Shape) == 2 && (reply.Shape[0] != img.Height || reply.Shape[1] != img.Width) {
		return nil, fmt.Errorf("%s slice %d of %s: %w: shape %v does not match data %dx%d",
			axis, index, ref.FileID, ErrMalformedResponse, reply.Shape, img.Height, img.Width)
	}
	if !img.Valid() {
		return nil, fmt.Errorf("%s slice %d of %s: %w: ragged or empty slice data", axis, index, ref.FileID, ErrMalformedResponse)
	}
	if img.MaxIndex == 0 {
		img.MaxIndex = ref.Extent(axis)
	}
	return img, nil
}

// Analysis requests the intensity and volume report of a stored volume
func (c *Client) Analysis(ctx context.Context, ref models.VolumeRef) (*models.Analysis, error) {
	var reply analysisReply
	if err := c.getJSON(ctx, "/api/analysis/"+escape(ref.FileID), nil, &reply); err != nil {
		return nil, fmt.Errorf("analysis of %s: %w", ref.FileID, err)
	}
	return &reply.Analysis, nil
}
