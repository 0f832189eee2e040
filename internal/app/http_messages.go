package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"hearth/api/internal/store"
)

type messageJSON struct {
	ID              int64     `json:"id"`
	RoomID          string    `json:"roomId"`
	CreatorID       string    `json:"creatorId"`
	Body            string    `json:"body"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	ParentID        *int64    `json:"parentId,omitempty"`
	RootID          *int64    `json:"rootId,omitempty"`
	TodoState       string    `json:"todoState"`
	AttachmentKey   string    `json:"attachmentKey,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toMessageJSON(m store.Message) messageJSON {
	return messageJSON{
		ID:              m.ID,
		RoomID:          m.RoomID,
		CreatorID:       m.CreatorID,
		Body:            m.Body,
		ClientMessageID: m.ClientMessageID,
		ParentID:        m.ParentID,
		RootID:          m.RootID,
		TodoState:       string(m.TodoState),
		AttachmentKey:   m.AttachmentKey,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toMessagesJSON(messages []store.Message) []messageJSON {
	out := make([]messageJSON, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageJSON(m))
	}
	return out
}

func pageRequest(r *http.Request) (PageRequest, error) {
	before, err := queryInt64(r, "before")
	if err != nil {
		return PageRequest{}, err
	}
	after, err := queryInt64(r, "after")
	if err != nil {
		return PageRequest{}, err
	}
	around, err := queryInt64(r, "around")
	if err != nil {
		return PageRequest{}, err
	}
	return PageRequest{Before: before, After: after, Around: around, Size: queryInt(r, "size")}, nil
}

func (s *Server) handlePageRoots(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := s.svc.PageRoots(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": toMessagesJSON(page.Messages)})
}

func (s *Server) handlePageThread(w http.ResponseWriter, r *http.Request) {
	rootID, err := pathID(r, "rootId")
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := s.svc.PageThread(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], rootID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": toMessagesJSON(page.Messages)})
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body            string `json:"body"`
		ClientMessageID string `json:"clientMessageId"`
		ParentID        *int64 `json:"parentId"`
		AttachmentKey   string `json:"attachmentKey"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.svc.CreateMessage(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], CreateMessageInput{
		Body:            req.Body,
		ClientMessageID: req.ClientMessageID,
		ParentID:        req.ParentID,
		AttachmentKey:   req.AttachmentKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageJSON(msg))
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.svc.GetMessage(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(msg))
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.svc.EditMessage(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], id, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(msg))
}

func (s *Server) handleDestroyMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.DestroyMessage(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleTodo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.svc.ToggleTodo(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(msg))
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ParentID int64 `json:"parentId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ParentID <= 0 {
		writeError(w, errBadRequest("parentId is required"))
		return
	}
	msg, err := s.svc.AttachToThread(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], id, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(msg))
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.svc.DetachFromThread(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(msg))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		TargetRoomID string `json:"targetRoomId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TargetRoomID == "" {
		writeError(w, errBadRequest("targetRoomId is required"))
		return
	}
	msg, err := s.svc.MoveToRoom(r.Context(), userFrom(r.Context()).ID, mux.Vars(r)["roomId"], id, req.TargetRoomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(msg))
}

func retireScope(r *http.Request) (RetireScope, error) {
	scope := RetireScope{RoomID: mux.Vars(r)["roomId"]}
	threadID, err := queryInt64(r, "threadId")
	if err != nil {
		return RetireScope{}, err
	}
	if threadID != 0 {
		scope.ThreadRootID = &threadID
	}
	return scope, nil
}

func (s *Server) handleRetireCompletedTodos(w http.ResponseWriter, r *http.Request) {
	scope, err := retireScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.svc.RetireCompletedTodos(r.Context(), userFrom(r.Context()).ID, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRetireResult(w, result)
}

func (s *Server) handleRetireNonTodos(w http.ResponseWriter, r *http.Request) {
	scope, err := retireScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.svc.RetireNonTodos(r.Context(), userFrom(r.Context()).ID, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRetireResult(w, result)
}

// A retirement that found nothing eligible answers 204 so clients can
// tell it apart from one that deleted something.
func writeRetireResult(w http.ResponseWriter, result RetireResult) {
	if result.DeletedCount == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.svc.SearchMessages(r.Context(), userFrom(r.Context()).ID, q.Get("q"), q.Get("roomId"), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	})
}
