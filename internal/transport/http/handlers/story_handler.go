package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vedran77/sprout/internal/domain"
	"github.com/vedran77/sprout/internal/logger"
	"github.com/vedran77/sprout/internal/service"
	"github.com/vedran77/sprout/internal/transport/http/middleware"
	"github.com/vedran77/sprout/pkg/validator"
)

type StoryHandler struct {
	storyService *service.StoryService
	log          *logger.Logger
}

func NewStoryHandler(storyService *service.StoryService, log *logger.Logger) *StoryHandler {
	return &StoryHandler{storyService: storyService, log: log.With("component", "story_handler")}
}

func (h *StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		MediaType string       `json:"media_type"`
		Media     domain.Bytes `json:"media"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 2*validator.MaxStoryBytes)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateStory(input.MediaType, input.Media); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	story, err := h.storyService.CreateStory(r.Context(), userID, input.MediaType, input.Media)
	if err != nil {
		writeServiceError(w, h.log, "create story", err)
		return
	}

	writeJSON(w, http.StatusCreated, story)
}

func (h *StoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	storyID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid story ID")
		return
	}

	story, err := h.storyService.GetStory(r.Context(), storyID)
	if err != nil {
		writeServiceError(w, h.log, "get story", err)
		return
	}

	writeJSON(w, http.StatusOK, story)
}
