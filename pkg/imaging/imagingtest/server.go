// Package imagingtest runs an in-process imaging service for tests and demos.
// Volumes live in memory as visualization viewers; slices, surfaces, lesion
// coordinates, exports and analyses are computed from them on request.
package imagingtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"brainviewer/internal/models"
	"brainviewer/pkg/mesh"
	"brainviewer/pkg/visualization"
)

// Test credentials accepted by the login route
const (
	Email    = "doctor@example.com"
	Password = "secret"
)

// Decoder turns an uploaded file into a volume
type Decoder func(role models.FileRole, filename string, data []byte) (*visualization.Viewer, error)

type volume struct {
	viewer     *visualization.Viewer
	role       models.FileRole
	name       string
	mesh       *models.MeshData
	normalized *models.MeshData
	method     string
}

// Server is a fake imaging service. Its knobs may be changed between requests.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	volumes map[string]*volume
	tokens  map[string]bool
	nextID  int
	hits    map[string]int

	requireAuth  bool
	sliceDelay   time.Duration
	failSlices   map[string]bool
	lesionAsMesh bool
	decode       Decoder
}

// NewServer starts a fake service
func NewServer() *Server {
	s := &Server{
		volumes:    make(map[string]*volume),
		tokens:     make(map[string]bool),
		hits:       make(map[string]int),
		failSlices: make(map[string]bool),
		decode:     phantomDecoder,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/upload", s.auth(s.handleUpload))
	mux.HandleFunc("GET /api/slice/{id}/{axis}/{index}", s.auth(s.handleSlice))
	mux.HandleFunc("GET /api/mesh/{id}", s.auth(s.handleMesh))
	mux.HandleFunc("POST /api/normalize-mesh/{id}", s.auth(s.handleNormalizeMesh))
	mux.HandleFunc("GET /api/export/mesh/{id}", s.auth(s.handleExportMesh))
	mux.HandleFunc("GET /api/export/volume/{id}", s.auth(s.handleExportVolume))
	mux.HandleFunc("GET /api/analysis/{id}", s.auth(s.handleAnalysis))

	s.Server = httptest.NewServer(s.count(mux))
	return s
}

func phantomDecoder(role models.FileRole, _ string, _ []byte) (*visualization.Viewer, error) {
	brain, lesion := visualization.NewPhantom([3]int{32, 32, 16}, [3]float64{1, 1, 2})
	if role == models.Lesion {
		return lesion, nil
	}
	return brain, nil
}

// Add stores a volume and returns its reference
func (s *Server) Add(role models.FileRole, v *visualization.Viewer) models.VolumeRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(role, "", v)
}

func (s *Server) addLocked(role models.FileRole, name string, v *visualization.Viewer) models.VolumeRef {
	s.nextID++
	id := fmt.Sprintf("%s_%d", role, s.nextID)
	if name == "" {
		name = id + ".nii"
	}
	s.volumes[id] = &volume{viewer: v, role: role, name: name}
	return v.Ref(id, role)
}

// RequireAuth makes every route except login and health demand a token
func (s *Server) RequireAuth(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = on
}

// SetSliceDelay delays every slice reply by d
func (s *Server) SetSliceDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sliceDelay = d
}

// FailSlices makes slice requests for the given file answer 500
func (s *Server) FailSlices(fileID string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSlices[fileID] = fail
}

// LesionAsMesh answers lesion mesh requests with a surface instead of
// coordinates, like older service versions
func (s *Server) LesionAsMesh(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lesionAsMesh = on
}

// SetDecoder replaces how uploads become volumes. The default ignores the
// bytes and returns a small phantom.
func (s *Server) SetDecoder(d Decoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decode = d
}

// IssueToken returns a valid bearer token without going through login
func (s *Server) IssueToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := fmt.Sprintf("token-%d", len(s.tokens)+1)
	s.tokens[token] = true
	return token
}

// ExpireTokens revokes every issued token
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
}

// Hits returns how many requests were made to paths starting with prefix
func (s *Server) Hits(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for path, c := range s.hits {
		if strings.HasPrefix(path, prefix) {
			n += c
		}
	}
	return n
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		needed := s.requireAuth
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ok := s.tokens[token]
		s.mu.Unlock()

		if needed && !ok {
			writeError(w, http.StatusUnauthorized, "Token has expired")
			return
		}
		next(w, r)
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*volume, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vol, ok := s.volumes[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
	}
	return vol, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Email != Email || in.Password != Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	token := s.IssueToken()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"access_token": token,
		"user":         map[string]any{"email": in.Email},
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	role, err := models.ParseFileRole(r.FormValue("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	decode := s.decode
	s.mu.Unlock()
	v, err := decode(role, header.Filename, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to load file: %v", err))
		return
	}

	s.mu.Lock()
	ref := s.addLocked(role, header.Filename, v)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"file_id":   ref.FileID,
		"file_info": fileInfo(ref, v),
	})
}

func fileInfo(ref models.VolumeRef, v *visualization.Viewer) map[string]any {
	st := v.Stats()
	spacing := v.Spacing()
	shape := v.Shape()
	physical := []float64{
		float64(shape[0]) * spacing[0],
		float64(shape[1]) * spacing[1],
		float64(shape[2]) * spacing[2],
	}
	return map[string]any{
		"file_id":             ref.FileID,
		"shape":               shape[:],
		"zooms":               spacing[:],
		"physical_dimensions": physical,
		"data_type":           ref.DataType,
		"min_value":           st.Min,
		"max_value":           st.Max,
		"mean_value":          st.Mean,
		"std_value":           st.StdDev,
		"non_zero_count":      st.NonZeroCount,
		"total_voxels":        st.TotalVoxels,
		"non_zero_mean":       st.NonZeroMean,
		"file_type":           ref.Role.String(),
	}
}

func (s *Server) handleSlice(w http.ResponseWriter, r *http.Request) {
	vol, ok := s.lookup(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	delay := s.sliceDelay
	fail := s.failSlices[r.PathValue("id")]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if fail {
		writeError(w, http.StatusInternalServerError, "Slice extraction failed")
		return
	}

	axis, err := models.ParseAxis(r.PathValue("axis"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid view type")
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid slice index")
		return
	}
	img, err := vol.viewer.ExtractSlice(axis, index)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Slice index out of range")
		return
	}

	shape := vol.viewer.Shape()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"slice_data":          img.Data,
		"view_type":           axis.String(),
		"slice_index":         index,
		"shape":               []int{img.Height, img.Width},
		"max_slices":          img.MaxIndex,
		"original_shape":      shape[:],
		"orientation_applied": true,
	})
}

func meshParams(r *http.Request) (threshold, smoothing float64) {
	threshold, smoothing = 0.1, 1.0
	if v, err := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64); err == nil {
		threshold = v
	}
	if v, err := strconv.ParseFloat(r.URL.Query().Get("smoothing"), 64); err == nil {
		smoothing = v
	}
	return threshold, smoothing
}

// surface returns the cached surface of a volume, extracting it on first use
func (s *Server) surface(vol *volume, threshold float64, useCache bool) (models.MeshData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if useCache && vol.mesh != nil {
		return *vol.mesh, true
	}
	m := vol.viewer.Surface(threshold)
	vol.mesh = &m
	return m, false
}

func (s *Server) handleMesh(w http.ResponseWriter, r *http.Request) {
	vol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	threshold, smoothing := meshParams(r)
	useCache := r.URL.Query().Get("use_cache") != "false"

	s.mu.Lock()
	lesionAsMesh := s.lesionAsMesh
	s.mu.Unlock()

	if vol.role == models.Lesion && !lesionAsMesh {
		set := vol.viewer.LesionCoordinates(true)
		stats := set.Stats
		stats.CoordinateType = "original_centered"
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"lesion_data": map[string]any{
				"coordinates":       set.Coordinates,
				"type":              "lesion_coordinates",
				"voxel_spacing":     vol.viewer.Spacing(),
				"centering_applied": stats.Centered,
				"original_centroid": stats.OriginalCenter,
			},
			"lesion_stats": stats,
			"data_type":    "lesion_coordinates",
			"normalized":   false,
		})
		return
	}

	m, cached := s.surface(vol, threshold, useCache)
	normalized := false
	if r.URL.Query().Get("use_normalized") == "true" {
		s.mu.Lock()
		if vol.normalized != nil {
			m, normalized = *vol.normalized, true
		}
		s.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"mesh_data": m,
		"mesh_stats": models.MeshStats{
			VertexCount: len(m.Vertices),
			FaceCount:   len(m.Faces),
			Threshold:   threshold,
			Smoothing:   smoothing,
			Normalized:  normalized,
		},
		"file_info":  map[string]any{"filename": vol.name},
		"from_cache": cached,
		"normalized": normalized,
		"data_type":  "mesh",
	})
}

func (s *Server) handleNormalizeMesh(w http.ResponseWriter, r *http.Request) {
	vol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if vol.role == models.Lesion {
		writeError(w, http.StatusBadRequest, "Mesh normalization is not available for lesion files")
		return
	}
	var in struct {
		Method string             `json:"method"`
		Params map[string]float64 `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	m, _ := s.surface(vol, 0.1, true)
	var out models.MeshData
	var info mesh.TransformInfo
	switch in.Method {
	case mesh.Cartesian:
		out, info = mesh.NormalizeCartesian(m, in.Params["target_size"])
	case mesh.Spherical:
		out, info = mesh.NormalizeSpherical(m, in.Params["target_radius"])
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown normalization method: %s", in.Method))
		return
	}

	s.mu.Lock()
	vol.normalized = &out
	vol.method = in.Method
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"normalized_mesh_data": map[string]any{
			"vertices":              out.Vertices,
			"faces":                 out.Faces,
			"centroid":              out.Centroid,
			"voxel_spacing":         out.VoxelSpacing,
			"bounds":                out.Bounds,
			"normalization_applied": true,
			"normalization_method":  in.Method,
		},
		"mesh_stats": models.MeshStats{
			VertexCount: len(out.Vertices),
			FaceCount:   len(out.Faces),
			Normalized:  true,
			NormMethod:  in.Method,
		},
		"transform_applied": true,
		"method":            in.Method,
		"params":            in.Params,
		"transform_info":    info,
	})
}

func (s *Server) handleExportMesh(w http.ResponseWriter, r *http.Request) {
	vol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "stl"
	}
	if format != "stl" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported format: %s", format))
		return
	}
	threshold, _ := meshParams(r)
	m, _ := s.surface(vol, threshold, true)

	var buf bytes.Buffer
	base := strings.TrimSuffix(strings.TrimSuffix(vol.name, ".gz"), ".nii")
	if err := mesh.EncodeSTL(m, base, &buf); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAttachment(w, base+"_mesh.stl", "application/octet-stream", buf.Bytes())
}

func (s *Server) handleExportVolume(w http.ResponseWriter, r *http.Request) {
	vol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	base := strings.TrimSuffix(strings.TrimSuffix(vol.name, ".gz"), ".nii")
	name := base + "_original.nii"
	if r.URL.Query().Get("compress") == "true" {
		name += ".gz"
	}

	var buf bytes.Buffer
	for _, x := range vol.viewer.Data() {
		fmt.Fprintf(&buf, "%g\n", x)
	}
	writeAttachment(w, name, "application/octet-stream", buf.Bytes())
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	vol, ok := s.lookup(w, r)
	if !ok {
		return
	}
	a := vol.viewer.Analyze()
	s.mu.Lock()
	if vol.method != "" {
		a.Normalization.Applied = true
		a.Normalization.Method = vol.method
	}
	s.mu.Unlock()

	ref := vol.viewer.Ref(r.PathValue("id"), vol.role)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"analysis":  a,
		"file_info": fileInfo(ref, vol.viewer),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
