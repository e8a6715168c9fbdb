package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/service"
)

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Errorf(domain.ErrInvalidInput, "invalid %s", name)
	}
	return id, nil
}

func handleAdminStats(adminSvc *service.AdminService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := adminSvc.Stats(r.Context(), CurrentUser(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleAdminListUsers(adminSvc *service.AdminService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := adminSvc.ListUsers(r.Context(), CurrentUser(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if users == nil {
			users = []*domain.User{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func handleAdminDeleteUser(adminSvc *service.AdminService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "userID")
		if err != nil {
			writeError(w, log, err)
			return
		}
		if err := adminSvc.DeleteUser(r.Context(), CurrentUser(r), id); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func handleAdminListChannels(adminSvc *service.AdminService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channels, err := adminSvc.ListChannels(r.Context(), CurrentUser(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if channels == nil {
			channels = []*domain.Channel{}
		}
		writeJSON(w, http.StatusOK, channels)
	}
}

func handleAdminDeleteChannel(adminSvc *service.AdminService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "channelID")
		if err != nil {
			writeError(w, log, err)
			return
		}
		if err := adminSvc.DeleteChannel(r.Context(), CurrentUser(r), id); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
