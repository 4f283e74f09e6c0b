package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marketmind/marketmind/pkg/model"
	"github.com/marketmind/marketmind/pkg/quota"
	"github.com/marketmind/marketmind/pkg/repository"
	"github.com/marketmind/marketmind/pkg/usecase/agent"
	"github.com/marketmind/marketmind/pkg/utils/logging"
)

const (
	maxMessageLength = 8192
	titleHistorySize = 12
)

// Server exposes the chat API over HTTP. It owns no business logic: quota
// checks, pipeline runs, and persistence all happen in the packages it
// composes.
type Server struct {
	repo    repository.ChatRepository
	agent   *agent.Agent
	limiter *quota.Limiter
}

func New(repo repository.ChatRepository, agent *agent.Agent, limiter *quota.Limiter) *Server {
	return &Server{
		repo:    repo,
		agent:   agent,
		limiter: limiter,
	}
}

// Handler builds the HTTP route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", s.handleListChats)
			r.Post("/", s.handleCreateChat)
			r.Get("/{chatID}", s.handleGetChat)
			r.Delete("/{chatID}", s.handleDeleteChat)
			r.Post("/{chatID}/title", s.handleRefreshTitle)
			r.Post("/{chatID}/messages", s.handlePostMessage)
		})
	})

	return r
}

// requestLogger attaches a request-scoped logger to the context and logs
// each completed request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.Default().With("method", r.Method, "path", r.URL.Path)
		ctx := logging.With(r.Context(), logger)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Info("request completed",
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.repo.ListSessions(r.Context())
	if err != nil {
		logging.From(r.Context()).Error("failed to list chats", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list chats.")
		return
	}
	if sessions == nil {
		sessions = []*model.ChatSession{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

type createChatRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if len(req.Title) > 255 {
		respondError(w, http.StatusBadRequest, "Title is too long.")
		return
	}

	chat, err := s.repo.CreateSession(r.Context(), req.Title)
	if err != nil {
		logging.From(r.Context()).Error("failed to create chat", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create chat.")
		return
	}
	respondJSON(w, http.StatusCreated, chat)
}

type chatDetailResponse struct {
	*model.ChatSession
	Messages []*model.Message `json:"messages"`
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, ok := s.findChat(w, r)
	if !ok {
		return
	}

	messages, err := s.repo.ListMessages(r.Context(), chat.ID)
	if err != nil {
		logging.From(r.Context()).Error("failed to list messages", "error", err, "chat_id", chat.ID)
		respondError(w, http.StatusInternalServerError, "Failed to load messages.")
		return
	}
	if messages == nil {
		messages = []*model.Message{}
	}

	respondJSON(w, http.StatusOK, chatDetailResponse{ChatSession: chat, Messages: messages})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := model.ChatID(chi.URLParam(r, "chatID"))

	deleted, err := s.repo.DeleteSession(r.Context(), id)
	if err != nil {
		logging.From(r.Context()).Error("failed to delete chat", "error", err, "chat_id", id)
		respondError(w, http.StatusInternalServerError, "Failed to delete chat.")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Chat not found.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshTitle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chat, ok := s.findChat(w, r)
	if !ok {
		return
	}

	messages, err := s.repo.ListMessages(ctx, chat.ID)
	if err != nil {
		logging.From(ctx).Error("failed to list messages", "error", err, "chat_id", chat.ID)
		respondError(w, http.StatusInternalServerError, "Failed to load messages.")
		return
	}
	if len(messages) == 0 {
		respondError(w, http.StatusBadRequest, "Cannot generate a title without conversation history.")
		return
	}

	if len(messages) > titleHistorySize {
		messages = messages[len(messages)-titleHistorySize:]
	}
	title := s.agent.SuggestTitle(ctx, historyText(messages))

	updated, err := s.repo.UpdateSessionTitle(ctx, chat.ID, title)
	if err != nil || updated == nil {
		logging.From(ctx).Error("failed to update chat title", "error", err, "chat_id", chat.ID)
		respondError(w, http.StatusInternalServerError, "Failed to update chat title.")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type postMessageResponse struct {
	Message    *model.Message `json:"message"`
	AIResponse *model.Message `json:"ai_response"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chat, ok := s.findChat(w, r)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Content == "" || len(req.Content) > maxMessageLength {
		respondError(w, http.StatusBadRequest, "Message content must be between 1 and 8192 characters.")
		return
	}

	// Quota is charged per user when the caller identifies itself, and per
	// chat otherwise. The check happens before anything is persisted.
	identity := r.Header.Get("X-User-Id")
	if identity == "" {
		identity = string(chat.ID)
	}
	if _, err := s.limiter.Check(identity); err != nil {
		if errors.Is(err, model.ErrQuotaExceeded) {
			respondError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please wait before sending more requests.")
			return
		}
		logging.From(ctx).Error("quota check failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to check quota.")
		return
	}

	userMsg, err := s.repo.AddMessage(ctx, chat.ID, "user", req.Content, nil)
	if err != nil {
		logging.From(ctx).Error("failed to persist user message", "error", err, "chat_id", chat.ID)
		respondError(w, http.StatusInternalServerError, "Failed to save message.")
		return
	}
	s.agent.PersistMemory(ctx, chat.ID, "user", req.Content)

	messages, err := s.repo.ListMessages(ctx, chat.ID)
	if err != nil {
		logging.From(ctx).Error("failed to list messages", "error", err, "chat_id", chat.ID)
		respondError(w, http.StatusInternalServerError, "Failed to load messages.")
		return
	}

	result := s.agent.GenerateResponse(ctx, agent.GenerateInput{
		Identity: identity,
		History:  historyText(messages),
		Prompt:   req.Content,
	})

	aiMsg, err := s.repo.AddMessage(ctx, chat.ID, "assistant", result.Answer, &model.MessageMetadata{
		SearchResults: result.SearchResults,
		VectorContext: result.VectorContext,
	})
	if err != nil {
		logging.From(ctx).Error("failed to persist assistant message", "error", err, "chat_id", chat.ID)
		respondError(w, http.StatusInternalServerError, "Failed to save response.")
		return
	}
	s.agent.PersistMemory(ctx, chat.ID, "assistant", result.Answer)

	respondJSON(w, http.StatusOK, postMessageResponse{
		Message:    userMsg,
		AIResponse: aiMsg,
	})
}

// findChat resolves the chatID URL parameter, writing a 404 when the chat
// does not exist.
func (s *Server) findChat(w http.ResponseWriter, r *http.Request) (*model.ChatSession, bool) {
	id := model.ChatID(chi.URLParam(r, "chatID"))

	chat, err := s.repo.GetSession(r.Context(), id)
	if err != nil {
		logging.From(r.Context()).Error("failed to load chat", "error", err, "chat_id", id)
		respondError(w, http.StatusInternalServerError, "Failed to load chat.")
		return nil, false
	}
	if chat == nil {
		respondError(w, http.StatusNotFound, "Chat not found.")
		return nil, false
	}
	return chat, true
}

// historyText flattens messages into the "role: content" transcript format
// consumed by the pipeline and the title composer.
func historyText(messages []*model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, msg.Role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
