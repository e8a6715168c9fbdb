package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/service"
)

type channelCreateRequest struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"memberIds"`
}

type directRequest struct {
	TargetID int64 `json:"targetId"`
}

func handleListChannels(channelSvc *service.ChannelService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		channels, err := channelSvc.ListVisible(r.Context(), currentUser.ID)
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

func handleCreateChannel(channelSvc *service.ChannelService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req channelCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		currentUser := CurrentUser(r)

		ch, err := channelSvc.Create(r.Context(), service.ChannelCreateInput{
			Name:      req.Name,
			MemberIDs: req.MemberIDs,
		}, currentUser.ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, ch)
	}
}

func handleCreateDirect(channelSvc *service.ChannelService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req directRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		if req.TargetID <= 0 {
			writeError(w, log, domain.Errorf(domain.ErrInvalidInput, "targetId required"))
			return
		}
		currentUser := CurrentUser(r)

		ch, err := channelSvc.GetOrCreateDirect(r.Context(), currentUser.ID, req.TargetID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ch)
	}
}
