package http

import (
	"net/http"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/hub"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"github.com/gorilla/mux"
)

type TrackingHandler struct {
	service interfaces.TrackingService
	hub     *hub.Hub
	logger  logger.Logger
}

func NewTrackingHandler(service interfaces.TrackingService, hub *hub.Hub, logger logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

func (h *TrackingHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/orders/{id}/history", h.GetOrderHistory).Methods(http.MethodGet)
	r.HandleFunc("/push/stats", h.GetPushStats).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

type HistoryEntry struct {
	Status    domain.Status `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	ChangedBy string        `json:"changed_by"`
}

func (h *TrackingHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.GetOrderHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	resp := make([]HistoryEntry, len(history))
	for i, log := range history {
		resp[i] = HistoryEntry{
			Status:    log.Status,
			Timestamp: log.ChangedAt,
			ChangedBy: log.ChangedBy,
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *TrackingHandler) GetPushStats(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("request_received", "Push stats requested", RequestID(r.Context()), nil)
	respondJSON(w, http.StatusOK, h.hub.Stats())
}

func (h *TrackingHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
