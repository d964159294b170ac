package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/triviasync/internal/api/handler"
	"github.com/mcoot/triviasync/internal/api/middleware"
	"github.com/mcoot/triviasync/internal/api/push"
	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/services/rooms"
	"github.com/mcoot/triviasync/internal/storage"
)

// Prefix roots every API route
const Prefix = "/api/v1"

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Rooms       *rooms.Service
	Hub         *push.Hub
	Storage     storage.Storage
	StorageType string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	roomHandler := handler.NewRoomHandler(cfg.Rooms)

	// API subrouter with common middleware
	api := r.PathPrefix(Prefix).Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(middleware.Logging(cfg.Logger))

	// Room routes
	api.HandleFunc("/rooms", roomHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/rooms", roomHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", roomHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/join", roomHandler.Join).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/start", roomHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/progress", roomHandler.Progress).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/leave", roomHandler.Leave).Methods(http.MethodPost)

	// Play routes
	api.HandleFunc("/rooms/{id}/answers", roomHandler.Answer).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/finish", roomHandler.Finish).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/finished", roomHandler.RegisterFinished).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/finished", roomHandler.Finished).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/force-complete", roomHandler.ForceComplete).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/results", roomHandler.Results).Methods(http.MethodGet)

	// Chat and push
	api.HandleFunc("/rooms/{id}/messages/{messageId}", roomHandler.DeleteMessage).Methods(http.MethodDelete)
	if cfg.Hub != nil {
		api.HandleFunc("/rooms/{id}/ws", cfg.Hub.ServeWS).Methods(http.MethodGet)
	}

	api.HandleFunc("/health", healthHandler(cfg)).Methods(http.MethodGet)

	return r
}

func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response.HealthResponse{
			Envelope: response.OK(),
			Status:   "ok",
			Storage:  cfg.StorageType,
		}
		if cfg.Storage != nil {
			if err := cfg.Storage.Ping(r.Context()); err != nil {
				cfg.Logger.Warn("storage ping failed", slog.Any("error", err))
				resp.Envelope = response.Failed("STORAGE_UNAVAILABLE", "storage unavailable")
				resp.Status = "degraded"
				response.JSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		response.JSON(w, http.StatusOK, resp)
	}
}
