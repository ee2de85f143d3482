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
	narratorInstance *services.NarratorFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("GenerateNarration", handleGenerateNarration)
}

// main is required by the Go Functions Framework.
func main() {}

// handleGenerateNarration is the HTTP handler.
func handleGenerateNarration(w http.ResponseWriter, r *http.Request) {
	if httpx.HandlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	once.Do(func() {
		narratorInstance, initErr = services.NewNarrator(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Narrator initialization failed", "error", initErr)
		httpx.WriteError(w, http.StatusInternalServerError, "Narration provider not configured")
		return
	}

	var req models.NarrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		httpx.WriteError(w, http.StatusBadRequest, "Bad Request: could not parse JSON")
		return
	}

	res, err := narratorInstance.Process(r.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrMissingNarrationParams) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}
