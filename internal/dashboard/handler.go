package dashboard

import (
	"context"
	"log"
	"time"

	"github.com/barolog/barolog/internal/device"
	"github.com/barolog/barolog/internal/reading"
	"github.com/barolog/barolog/internal/sync"
)

// SyncCompleteData contains sync completion information
type SyncCompleteData struct {
	CycleID       string `json:"cycle_id,omitempty"`
	Skipped       bool   `json:"skipped"`
	Uploaded      int    `json:"uploaded"`
	Downloaded    int    `json:"downloaded"`
	SkippedDocs   int    `json:"skipped_docs"`
	DurationMs    int64  `json:"duration_ms"`
	UploadError   string `json:"upload_error,omitempty"`
	DownloadError string `json:"download_error,omitempty"`
}

// StatsData contains reading statistics for the dashboard window
type StatsData struct {
	SinceHours int     `json:"since_hours"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Avg        float64 `json:"avg"`
	Count      int     `json:"count"`
	Weather    string  `json:"weather,omitempty"`
}

// DeviceData is one entry of the device list
type DeviceData struct {
	ID        string `json:"deviceId"`
	Name      string `json:"deviceName"`
	OSVersion string `json:"osVersion"`
	Color     string `json:"color"`
	Selected  bool   `json:"selected"`
}

// DevicesData contains the device list with selection state
type DevicesData struct {
	Devices []DeviceData `json:"devices"`
}

func newSyncCompleteData(res sync.Result) SyncCompleteData {
	data := SyncCompleteData{
		CycleID:     res.CycleID,
		Skipped:     res.Skipped,
		Uploaded:    res.Uploaded,
		Downloaded:  res.Downloaded,
		SkippedDocs: res.SkippedDocs,
		DurationMs:  res.Duration.Milliseconds(),
	}
	if res.UploadErr != nil {
		data.UploadError = res.UploadErr.Error()
	}
	if res.DownloadErr != nil {
		data.DownloadError = res.DownloadErr.Error()
	}
	return data
}

func newStatsData(sinceHours int, s reading.Stats) StatsData {
	data := StatsData{
		SinceHours: sinceHours,
		Min:        s.Min,
		Max:        s.Max,
		Avg:        s.Avg,
		Count:      s.Count,
	}
	if s.Count > 0 {
		data.Weather = reading.Interpret(s.Avg).String()
	}
	return data
}

func devicesData(registry *device.Registry) DevicesData {
	data := DevicesData{Devices: []DeviceData{}}
	if registry == nil {
		return data
	}
	for _, d := range registry.List() {
		data.Devices = append(data.Devices, DeviceData{
			ID:        d.ID,
			Name:      d.Name,
			OSVersion: d.OSVersion,
			Color:     device.Color(d.ID),
			Selected:  registry.IsSelected(d.ID),
		})
	}
	return data
}

// Handler turns sync and recorder events into dashboard broadcasts.
type Handler struct {
	server     *Server
	store      Store
	registry   *device.Registry
	sinceHours int
	logger     *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server.
// Stats are computed over the last sinceHours hours of the selection.
func NewHandler(server *Server, store Store, registry *device.Registry, sinceHours int, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server:     server,
		store:      store,
		registry:   registry,
		sinceHours: sinceHours,
		logger:     logger,
	}
}

// OnSyncComplete is a sync.Observer: it broadcasts the cycle summary
// followed by refreshed devices and stats.
func (h *Handler) OnSyncComplete(res sync.Result) {
	h.logger.Printf("Sync complete: uploaded=%d downloaded=%d", res.Uploaded, res.Downloaded)

	h.server.BroadcastData(MessageTypeSyncComplete, newSyncCompleteData(res))
	h.server.BroadcastData(MessageTypeDevices, devicesData(h.registry))
	h.broadcastStats(context.Background())
}

// OnRecord broadcasts refreshed stats after a new local reading.
func (h *Handler) OnRecord(*reading.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.broadcastStats(ctx)
}

// OnSelectionChanged broadcasts the device list and stats for the new
// selection.
func (h *Handler) OnSelectionChanged(ctx context.Context) {
	h.server.BroadcastData(MessageTypeDevices, devicesData(h.registry))
	h.broadcastStats(ctx)
}

func (h *Handler) broadcastStats(ctx context.Context) {
	var stats reading.Stats
	if h.registry == nil || !h.registry.NothingSelected() {
		var ids []string
		if h.registry != nil {
			ids = h.registry.Selection()
		}
		stats = h.store.Stats(ctx, h.sinceHours, ids)
	}
	h.server.BroadcastData(MessageTypeStats, newStatsData(h.sinceHours, stats))
}
