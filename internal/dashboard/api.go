package dashboard

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/barolog/barolog/internal/auth"
	"github.com/barolog/barolog/internal/device"
	"github.com/barolog/barolog/internal/reading"
	"github.com/barolog/barolog/internal/sync"
)

// Store is the read side of the local store the API serves.
type Store interface {
	Query(ctx context.Context, sinceHours int, deviceIDs []string) []*reading.Reading
	Stats(ctx context.Context, sinceHours int, deviceIDs []string) reading.Stats
}

// Syncer runs a sync cycle on demand.
type Syncer interface {
	Sync(ctx context.Context, userID string) (sync.Result, error)
}

// API serves readings, statistics, the device selection and manual sync.
type API struct {
	store    Store
	registry *device.Registry
	syncer   Syncer
	auth     auth.Context
	handler  *Handler
	logger   *log.Logger

	// DefaultSinceHours applies when a request has no since parameter.
	DefaultSinceHours int
}

// NewAPI creates the API. syncer and handler may be nil; without a syncer
// POST /api/sync answers 503, without a handler nothing is broadcast.
func NewAPI(store Store, registry *device.Registry, syncer Syncer, authCtx auth.Context, handler *Handler, logger *log.Logger) *API {
	if logger == nil {
		logger = log.Default()
	}
	return &API{
		store:             store,
		registry:          registry,
		syncer:            syncer,
		auth:              authCtx,
		handler:           handler,
		logger:            logger,
		DefaultSinceHours: 24,
	}
}

func (a *API) routes(r *mux.Router) {
	r.HandleFunc("/readings", a.handleReadings).Methods(http.MethodGet)
	r.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/devices", a.handleDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id}/toggle", a.handleToggle).Methods(http.MethodPost)
	r.HandleFunc("/sync", a.handleSync).Methods(http.MethodPost)
}

type apiError struct {
	Error string `json:"error"`
}

// sinceHours parses ?since=N, falling back to DefaultSinceHours. 0 means
// all time.
func (a *API) sinceHours(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return a.DefaultSinceHours, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("since must be a non-negative number of hours")
	}
	return n, nil
}

// deviceFilter returns the explicit ?device= ids, else the registry
// selection. none is true when the selection is deliberately empty.
func (a *API) deviceFilter(r *http.Request) (ids []string, none bool) {
	if explicit := r.URL.Query()["device"]; len(explicit) > 0 {
		return explicit, false
	}
	if a.registry == nil {
		return nil, false
	}
	if a.registry.NothingSelected() {
		return nil, true
	}
	return a.registry.Selection(), false
}

func (a *API) handleReadings(w http.ResponseWriter, r *http.Request) {
	since, err := a.sinceHours(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{err.Error()})
		return
	}

	ids, none := a.deviceFilter(r)
	readings := []*reading.Reading{}
	if !none {
		if got := a.store.Query(r.Context(), since, ids); got != nil {
			readings = got
		}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	since, err := a.sinceHours(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{err.Error()})
		return
	}

	ids, none := a.deviceFilter(r)
	var stats reading.Stats
	if !none {
		stats = a.store.Stats(r.Context(), since, ids)
	}
	writeJSON(w, http.StatusOK, newStatsData(since, stats))
}

func (a *API) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, devicesData(a.registry))
}

func (a *API) handleToggle(w http.ResponseWriter, r *http.Request) {
	if a.registry == nil {
		writeJSON(w, http.StatusNotFound, apiError{"no device registry"})
		return
	}

	id := mux.Vars(r)["id"]
	known := false
	for _, d := range a.registry.List() {
		if d.ID == id {
			known = true
			break
		}
	}
	if !known {
		writeJSON(w, http.StatusNotFound, apiError{"unknown device " + id})
		return
	}

	selected := a.registry.Toggle(id)
	if a.handler != nil {
		a.handler.OnSelectionChanged(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deviceId": id,
		"selected": selected,
	})
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if a.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, apiError{"sync is not configured"})
		return
	}

	user, ok := a.auth.CurrentUser()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, apiError{"not logged in"})
		return
	}

	// A cycle runs to completion even if the client goes away.
	res, err := a.syncer.Sync(context.WithoutCancel(r.Context()), user.ID)
	data := newSyncCompleteData(res)

	switch {
	case res.Skipped:
		writeJSON(w, http.StatusAccepted, data)
	case errors.Is(err, sync.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, data)
	case err != nil:
		a.logger.Printf("Manual sync failed: %v", err)
		writeJSON(w, http.StatusBadGateway, data)
	default:
		writeJSON(w, http.StatusOK, data)
	}
}
