package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

type conversationItem struct {
	ConversationId   string     `json:"conversation_id"`
	Title            string     `json:"title"`
	Provider         string     `json:"provider"`
	ExternalId       string     `json:"external_id,omitempty"`
	ProjectId        string     `json:"project_id,omitempty"`
	SourceFile       string     `json:"source_file,omitempty"`
	MessageCount     int        `json:"message_count"`
	WordCount        int        `json:"word_count"`
	FirstMessageDate *time.Time `json:"first_message_date,omitempty"`
	LastMessageDate  *time.Time `json:"last_message_date,omitempty"`
}

type conversationListResponse struct {
	Conversations []conversationItem `json:"conversations"`
	Limit         int                `json:"limit"`
	Offset        int                `json:"offset"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	filter := storage.ConversationFilter{UserId: userID(r)}

	if p := r.URL.Query().Get("provider"); p != "" {
		provider, err := core.ParseProvider(p)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "unknown provider: "+p)
			return
		}
		filter.Provider = provider
	}
	filter.ProjectId = r.URL.Query().Get("project_id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must not be negative")
			return
		}
		offset = parsed
	}

	conversations, err := s.conversations.ListConversations(r.Context(), filter, limit, offset)
	if err != nil {
		s.logger.Error("failed to list conversations", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	items := make([]conversationItem, 0, len(conversations))
	for _, conv := range conversations {
		items = append(items, conversationItem{
			ConversationId:   formatID(conv.Id),
			Title:            conv.Title,
			Provider:         conv.Provider.String(),
			ExternalId:       conv.ExternalId,
			ProjectId:        conv.ProjectId,
			SourceFile:       conv.SourceFile,
			MessageCount:     conv.MessageCount,
			WordCount:        conv.WordCount,
			FirstMessageDate: optionalTime(conv.FirstMessageAt),
			LastMessageDate:  optionalTime(conv.LastMessageAt),
		})
	}

	s.writeJSON(w, http.StatusOK, conversationListResponse{
		Conversations: items,
		Limit:         limit,
		Offset:        offset,
	})
}
