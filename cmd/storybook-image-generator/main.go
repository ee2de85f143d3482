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
	generatorInstance *services.ImageGeneratorFunction
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "GenerateStorybookImages" is the entry point name we'll see in GCP.
	functions.HTTP("GenerateStorybookImages", handleGenerateImages)
}

// main is required by the Go Functions Framework.
func main() {}

// handleGenerateImages is the HTTP handler.
func handleGenerateImages(w http.ResponseWriter, r *http.Request) {
	if httpx.HandlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		generatorInstance, initErr = services.NewImageGenerator(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Image generator initialization failed", "error", initErr)
		httpx.WriteError(w, http.StatusInternalServerError, "Image generation provider not configured")
		return
	}

	var req models.ImageGeneratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		httpx.WriteError(w, http.StatusBadRequest, "Bad Request: could not parse JSON")
		return
	}

	res, err := generatorInstance.Process(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingParams):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrNoPages):
			httpx.WriteError(w, http.StatusNotFound, err.Error())
		default:
			// The specific error is already logged inside the Process method.
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}
