package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"chatspace/internal/metrics"
	"chatspace/internal/service"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	Success bool  `json:"success"`
	UserID  int64 `json:"userId"`
}

type loginUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  loginUser `json:"user"`
}

func handleRegister(authSvc *service.AuthService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}

		user, err := authSvc.Register(r.Context(), service.RegisterInput{
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, registerResponse{Success: true, UserID: user.ID})
	}
}

func handleLogin(authSvc *service.AuthService, m *metrics.Metrics, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}

		res, err := authSvc.Login(r.Context(), service.LoginInput{
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			m.AuthFailed("login")
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{
			Token: res.Token,
			User: loginUser{
				ID:       res.User.ID,
				Username: res.User.Username,
				Color:    res.User.Color,
			},
		})
	}
}

func handleMe(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, userSvc.Profile(user))
	}
}
