package api

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"launcher-core/internal/launcher"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps a domain error onto a status code. Unknown errors are logged
// and reported as 500 without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, launcher.ErrNotFound), errors.Is(err, launcher.ErrVersionNotLoaded):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, launcher.ErrPlatformNotSupported), errors.Is(err, launcher.ErrArgumentOutOfRange):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, launcher.ErrAuthenticationFailed):
		s.writeError(w, http.StatusUnauthorized, launcher.ErrAuthenticationFailed.Error())
	case errors.Is(err, launcher.ErrTokenInvalid):
		s.writeError(w, http.StatusUnauthorized, launcher.ErrTokenInvalid.Error())
	case errors.Is(err, launcher.ErrHardwareBanned):
		s.writeError(w, http.StatusForbidden, launcher.ErrHardwareBanned.Error())
	case errors.Is(err, launcher.ErrIntegrity):
		s.logger.Error("serving corrupt artifact", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusConflict, launcher.ErrIntegrity.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveArtifact streams a verified blob. The integrity check happens in Get,
// before the first byte is written.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, hash, filename string) {
	rec, err := s.artifacts.Stat(r.Context(), hash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rc, err := s.artifacts.Get(r.Context(), hash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.Header().Set("ETag", strconv.Quote(hash))
	if filename != "" {
		w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("streaming artifact", "hash", hash, "error", err)
	}
}

func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !launcher.ValidHash(hash) {
		s.writeError(w, http.StatusBadRequest, "invalid hash")
		return
	}
	s.serveArtifact(w, r, hash, "")
}

func (s *Server) actualFor(w http.ResponseWriter, r *http.Request) (*launcher.LauncherVersion, bool) {
	os, err := launcher.ParseOSType(chi.URLParam(r, "os"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	v, err := s.versions.GetActual(os)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return v, true
}

type versionResponse struct {
	ID           string    `json:"id"`
	OS           string    `json:"os"`
	ArtifactHash string    `json:"artifact_hash"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Server) getActual(w http.ResponseWriter, r *http.Request) {
	v, ok := s.actualFor(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, versionResponse{
		ID:           v.ID,
		OS:           v.OS.String(),
		ArtifactHash: v.ArtifactHash,
		Size:         v.Size,
		CreatedAt:    v.CreatedAt,
	})
}

func (s *Server) downloadActual(w http.ResponseWriter, r *http.Request) {
	v, ok := s.actualFor(w, r)
	if !ok {
		return
	}
	s.serveArtifact(w, r, v.ArtifactHash, "launcher-"+v.OS.String()+"-"+v.ID)
}

type hardwareRequest struct {
	CPU         string   `json:"cpu"`
	Motherboard string   `json:"motherboard"`
	Disks       []string `json:"disks"`
}

type authenticateRequest struct {
	Login    string          `json:"login"`
	Password string          `json:"password"`
	DeviceID string          `json:"device_id"`
	Protocol string          `json:"protocol"`
	Hardware hardwareRequest `json:"hardware"`
	SlimSkin bool            `json:"slim_skin"`
}

type authResponse struct {
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func newAuthResponse(res *launcher.AuthResult) authResponse {
	return authResponse{
		UUID:         res.User.UUID,
		Name:         res.User.Name,
		AccessToken:  res.User.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.User.ExpiredDate,
	}
}

func sourceAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.sessions.Authenticate(r.Context(), launcher.AuthRequest{
		Login:         req.Login,
		Secret:        req.Password,
		DeviceID:      req.DeviceID,
		SourceAddress: sourceAddress(r),
		Protocol:      req.Protocol,
		Fingerprint: launcher.HardwareFingerprint{
			CPU:         req.Hardware.CPU,
			Motherboard: req.Hardware.Motherboard,
			Disks:       req.Hardware.Disks,
		},
		SlimSkin: req.SlimSkin,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.sessions.StartSession(r.Context(), res.User.UUID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newAuthResponse(res))
}

type refreshRequest struct {
	UUID         string `json:"uuid"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.sessions.Refresh(r.Context(), req.UUID, req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newAuthResponse(res))
}

type joinRequest struct {
	AccessToken     string `json:"access_token"`
	SelectedProfile string `json:"selected_profile"`
	ServerID        string `json:"server_id"`
}

func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ServerID == "" {
		s.writeError(w, http.StatusBadRequest, "server_id is required")
		return
	}
	ok, err := s.sessions.ValidateJoin(r.Context(), req.AccessToken, req.SelectedProfile, req.ServerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, http.StatusForbidden, "join rejected")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type joinedResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) hasJoined(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, serverID := q.Get("username"), q.Get("serverId")
	if name == "" || serverID == "" {
		s.writeError(w, http.StatusBadRequest, "username and serverId are required")
		return
	}
	user, err := s.sessions.HasJoined(r.Context(), name, serverID)
	if errors.Is(err, launcher.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, joinedResponse{ID: user.UUID, Name: user.Name})
}
