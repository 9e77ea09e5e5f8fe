package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"devices-api/internal/audit"
	"devices-api/internal/auth"
	"devices-api/internal/devices/application"
	devices "devices-api/internal/devices/domain"
)

const (
	devicesPath = "/api/v1/devices"

	headerIgnoredFields = "X-Ignored-Fields"
	maxBodyBytes        = 1 << 20
)

// DeviceService is the reconciliation service contract used by the handler.
type DeviceService interface {
	ListAll(ctx context.Context) ([]devices.Device, error)
	GetByID(ctx context.Context, id int64) (*devices.Device, error)
	ListByBrand(ctx context.Context, brandName string) ([]devices.Device, error)
	ListByState(ctx context.Context, state devices.State) ([]devices.Device, error)
	Create(ctx context.Context, input application.CreateInput) (*devices.Device, error)
	Update(ctx context.Context, id int64, input application.UpdateInput) (*application.UpdateResult, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Handler serves /api/v1/devices.
type Handler struct {
	service     DeviceService
	auditLogger audit.Logger
	logger      zerolog.Logger
}

// NewHandler constructs a Handler. auditLogger may be nil.
func NewHandler(service DeviceService, auditLogger audit.Logger, logger zerolog.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("device handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(devicesPath, h)
	mux.Handle(devicesPath+"/", h)
}

// ServeHTTP routes device requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts, ok := splitPath(r.URL.EscapedPath())
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 0:
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[0] == "brand":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleByBrand(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "state":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleByState(w, r, parts[1])
	case len(parts) == 1:
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid device id", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodPut:
			h.handleUpdate(w, r, id)
		case http.MethodDelete:
			h.handleDelete(w, r, id)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAll(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(list))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id int64) {
	device, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if device == nil {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(*device))
}

func (h *Handler) handleByBrand(w http.ResponseWriter, r *http.Request, brandName string) {
	list, err := h.service.ListByBrand(r.Context(), brandName)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(list))
}

func (h *Handler) handleByState(w http.ResponseWriter, r *http.Request, value string) {
	state, err := devices.ParseState(value)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	list, err := h.service.ListByState(r.Context(), state)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(list))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name is mandatory", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Brand) == "" {
		http.Error(w, "brand is mandatory", http.StatusBadRequest)
		return
	}
	state, err := devices.ParseState(req.State)
	if err != nil {
		http.Error(w, "state must be one of AVAILABLE, IN_USE, INACTIVE", http.StatusBadRequest)
		return
	}

	device, err := h.service.Create(r.Context(), application.CreateInput{
		Name:      req.Name,
		BrandName: req.Brand,
		State:     state,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", devicesPath+"/"+strconv.FormatInt(device.ID, 10))
	writeJSON(w, http.StatusCreated, toDTO(*device))
	h.logAudit(r, audit.ActionDeviceCreate, device.ID, map[string]any{
		"name":  device.Name,
		"brand": device.Brand.Name,
		"state": device.State,
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, id int64) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	state, err := devices.ParseState(req.State)
	if err != nil {
		http.Error(w, "state must be one of AVAILABLE, IN_USE, INACTIVE", http.StatusBadRequest)
		return
	}

	result, err := h.service.Update(r.Context(), id, application.UpdateInput{
		Name:      req.Name,
		BrandName: req.Brand,
		State:     state,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	action := audit.ActionDeviceUpdate
	if result.Created {
		status = http.StatusCreated
		action = audit.ActionDeviceCreate
		w.Header().Set("Location", devicesPath+"/"+strconv.FormatInt(result.Device.ID, 10))
	}
	if len(result.Ignored) > 0 {
		w.Header().Set(headerIgnoredFields, strings.Join(result.Ignored, ","))
	}
	writeJSON(w, status, toDTO(*result.Device))

	meta := map[string]any{"state": state, "requested_id": id}
	if req.Name != nil {
		meta["name"] = *req.Name
	}
	if req.Brand != nil {
		meta["brand"] = *req.Brand
	}
	if len(result.Ignored) > 0 {
		meta["ignored"] = result.Ignored
	}
	h.logAudit(r, action, result.Device.ID, meta)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id int64) {
	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !deleted {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, audit.ActionDeviceDelete, id, nil)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, devices.ErrAlreadyExists):
		http.Error(w, "a device with the same name already exists", http.StatusConflict)
	case errors.Is(err, devices.ErrInvalidState):
		http.Error(w, "state must be one of AVAILABLE, IN_USE, INACTIVE", http.StatusBadRequest)
	case errors.Is(err, devices.ErrInvalidDevice):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("device request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) logAudit(r *http.Request, action string, deviceID int64, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	actor := auth.SubjectFromContext(r.Context())
	if actor == "" {
		actor = "anonymous"
	}
	entry, err := audit.NewDeviceEntry(action, deviceID, meta)
	if err == nil {
		entry.Actor = actor
		entry.Role = string(auth.RoleFromContext(r.Context()))
		entry.IP = audit.ClientIP(r)
		entry.UserAgent = r.UserAgent()
		err = h.auditLogger.Log(r.Context(), entry)
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("action", action).Int64("device_id", deviceID).Msg("audit log failed")
	}
}

// splitPath returns the unescaped segments after /api/v1/devices.
func splitPath(escaped string) ([]string, bool) {
	if escaped == devicesPath || escaped == devicesPath+"/" {
		return nil, true
	}
	if !strings.HasPrefix(escaped, devicesPath+"/") {
		return nil, false
	}
	raw := strings.Split(strings.TrimSuffix(strings.TrimPrefix(escaped, devicesPath+"/"), "/"), "/")
	parts := make([]string, 0, len(raw))
	for _, segment := range raw {
		value, err := url.PathUnescape(segment)
		if err != nil || value == "" {
			return nil, false
		}
		parts = append(parts, value)
	}
	return parts, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	w.WriteHeader(http.StatusMethodNotAllowed)
}
