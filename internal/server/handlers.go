package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"vital-signs-monitor/internal/pipeline"
	"vital-signs-monitor/internal/vitals"
)

const (
	defaultMeasurementLimit = 100
	defaultAlertLimit       = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var m vitals.Measurement
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid measurement payload")
		return
	}

	res := s.processor.IngestMeasurement(r.Context(), m)

	if s.hub != nil {
		if res.Measurement != nil {
			s.hub.BroadcastMeasurement(*res.Measurement)
		}
		if res.Alert != nil {
			s.hub.BroadcastAlert(*res.Alert)
		}
	}

	status := http.StatusOK
	if res.Status == pipeline.StatusDiscarded {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.processor.Stats()

	body := map[string]any{
		"online":    stats.Online,
		"processed": stats.Processed,
		"discarded": stats.Discarded,
		"debounced": stats.Debounced,
		"alerts":    stats.Alerts,
		"cached":    stats.Cached,
		"streams":   stats.Streams,
	}
	if s.hub != nil {
		body["wsClients"] = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Online == nil {
		writeError(w, http.StatusBadRequest, "body must carry an online flag")
		return
	}

	s.processor.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": s.processor.Online()})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.FlushCachedData())
}

func (s *Server) handlePatientMeasurements(w http.ResponseWriter, r *http.Request) {
	if s.measurements == nil {
		writeError(w, http.StatusServiceUnavailable, "measurement history not configured")
		return
	}

	patientID := mux.Vars(r)["patientID"]
	kind := strings.ToUpper(r.URL.Query().Get("type"))
	if kind == "" {
		writeError(w, http.StatusBadRequest, "type query parameter is required")
		return
	}

	limit := queryLimit(r, defaultMeasurementLimit)
	records, err := s.measurements.ListPatientMeasurements(r.Context(), patientID, vitals.MeasurementType(kind), limit)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID).Msg("list patient measurements failed")
		writeError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patientId":    patientID,
		"type":         kind,
		"measurements": records,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alert history not configured")
		return
	}

	limit := queryLimit(r, defaultAlertLimit)
	patientID := r.URL.Query().Get("patientId")

	var (
		records any
		err     error
	)
	if patientID != "" {
		records, err = s.alerts.ListPatientAlerts(r.Context(), patientID, limit)
	} else {
		records, err = s.alerts.ListRecentAlerts(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("list alerts failed")
		writeError(w, http.StatusInternalServerError, "failed to load alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"alerts": records})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed not enabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(s.hub, conn, s.logger)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
