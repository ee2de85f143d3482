package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/storytimeapp/storytime-functions/internal/httpx"
	"github.com/storytimeapp/storytime-functions/internal/models"
	"github.com/storytimeapp/storytime-functions/internal/services"
)

var (
	storyInstance *services.StoryGeneratorFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("GenerateStory", handleGenerateStory)
}

// main is required by the Go Functions Framework.
func main() {}

// handleGenerateStory is the HTTP handler.
func handleGenerateStory(w http.ResponseWriter, r *http.Request) {
	if httpx.HandlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	once.Do(func() {
		storyInstance, initErr = services.NewStoryGenerator(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Story generator initialization failed", "error", initErr)
		httpx.WriteError(w, http.StatusInternalServerError, "Story generation provider not configured")
		return
	}

	var req models.StoryGeneratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		httpx.WriteError(w, http.StatusBadRequest, "Bad Request: could not parse JSON")
		return
	}

	res, err := storyInstance.Process(r.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrMissingStoryParams) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}
