package app

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"hearth/api/internal/store"
)

type roomJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func toRoomJSON(room store.Room) roomJSON {
	return roomJSON{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.ListRooms(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]roomJSON, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomJSON(room))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	room, err := s.svc.CreateRoom(r.Context(), userFrom(r.Context()).ID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomJSON(room))
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.svc.GetRoom(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomJSON(room))
}

func (s *Server) handleDestroyRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DestroyRoom(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Role == "" {
		req.Role = store.RoleMember
	}
	err := s.svc.AddMember(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], req.UserID, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const maxAttachmentSize = 32 << 20

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if _, err := s.svc.GetRoom(r.Context(), userFrom(r.Context()).ID, roomID); err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		writeError(w, errBadRequest("invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errBadRequest("file field is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	key, err := s.attachments.Upload(r.Context(), roomID, header.Filename, contentType, io.LimitReader(file, maxAttachmentSize), header.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *Server) handleAttachmentURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, errBadRequest("key is required"))
		return
	}
	url, err := s.attachments.PresignedURL(r.Context(), key, 15*time.Minute)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
