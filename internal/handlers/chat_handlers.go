package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"gupshup/internal/auth"
	"gupshup/internal/database"
	"gupshup/internal/membership"
	"gupshup/internal/models"
	"gupshup/pkg/logger"

	"github.com/go-playground/validator/v10"
)

const messagesPerPage = 20

type ChatHandlers struct {
	membership  *membership.Service
	authService *auth.Service
	db          database.Database
	validate    *validator.Validate
}

func NewChatHandlers(ms *membership.Service, authService *auth.Service, db database.Database) *ChatHandlers {
	return &ChatHandlers{
		membership:  ms,
		authService: authService,
		db:          db,
		validate:    validator.New(),
	}
}

type createChatRequest struct {
	Name      string   `json:"name"`
	GroupChat bool     `json:"group_chat"`
	Members   []string `json:"members" validate:"required,min=1"`
}

type addMembersRequest struct {
	Members []string `json:"members" validate:"required,min=1"`
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=50"`
}

func (h *ChatHandlers) CreateChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var chat *models.Chat
	if req.GroupChat {
		chat, err = h.membership.CreateGroup(r.Context(), user.ID, req.Name, req.Members)
	} else {
		if len(req.Members) != 1 {
			http.Error(w, "direct chat needs exactly one other member", http.StatusBadRequest)
			return
		}
		chat, err = h.membership.CreateDirect(r.Context(), user.ID, req.Members[0])
	}
	if err != nil {
		h.writeError(w, "Create chat", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(chat)
}

func (h *ChatHandlers) ListChats(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chats, err := h.db.ListUserChats(r.Context(), user.ID)
	if err != nil {
		logger.Error("List chats error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chats)
}

func (h *ChatHandlers) GetChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chat, err := h.membership.GetChat(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		h.writeError(w, "Get chat", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chat)
}

func (h *ChatHandlers) AddMembers(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req addMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.membership.AddMembers(r.Context(), r.PathValue("id"), user.ID, req.Members); err != nil {
		h.writeError(w, "Add members", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ChatHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.membership.RemoveMember(r.Context(), r.PathValue("id"), user.ID, r.PathValue("userId")); err != nil {
		h.writeError(w, "Remove member", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ChatHandlers) LeaveChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.membership.Leave(r.Context(), r.PathValue("id"), user.ID); err != nil {
		h.writeError(w, "Leave chat", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ChatHandlers) RenameChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.membership.Rename(r.Context(), r.PathValue("id"), user.ID, req.Name); err != nil {
		h.writeError(w, "Rename chat", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ChatHandlers) DeleteChat(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.membership.Delete(r.Context(), r.PathValue("id"), user.ID); err != nil {
		h.writeError(w, "Delete chat", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ChatHandlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chatID := r.PathValue("id")
	if _, err := h.membership.GetChat(r.Context(), chatID, user.ID); err != nil {
		h.writeError(w, "Get messages", err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	messages, totalPages, err := h.db.ListMessages(r.Context(), chatID, page, messagesPerPage)
	if err != nil {
		logger.Error("Get messages error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"messages":    messages,
		"total_pages": totalPages,
	})
}

func (h *ChatHandlers) currentUser(r *http.Request) (*models.User, error) {
	tokenStr := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenStr == "" {
		return nil, fmt.Errorf("missing token")
	}
	return h.authService.Verify(r.Context(), tokenStr)
}

func (h *ChatHandlers) writeError(w http.ResponseWriter, op string, err error) {
	logger.Error("%s error: %v", op, err)
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, membership.ErrChatNotFound):
		return http.StatusNotFound
	case errors.Is(err, membership.ErrNotAuthorized), errors.Is(err, membership.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, membership.ErrNotGroupChat),
		errors.Is(err, membership.ErrGroupFull),
		errors.Is(err, membership.ErrTooFewMembers),
		errors.Is(err, membership.ErrRemoveCreator):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
