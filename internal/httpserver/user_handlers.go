package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"chatspace/internal/service"
)

func handleListUsers(userSvc *service.UserService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.Directory(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}
