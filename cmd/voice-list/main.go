package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/storytimeapp/storytime-functions/internal/httpx"
	"github.com/storytimeapp/storytime-functions/internal/services"
)

var (
	voiceListInstance *services.VoiceListFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("ListVoices", handleListVoices)
}

// main is required by the Go Functions Framework.
func main() {}

// handleListVoices is the HTTP handler.
func handleListVoices(w http.ResponseWriter, r *http.Request) {
	if httpx.HandlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	once.Do(func() {
		voiceListInstance, initErr = services.NewVoiceList(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Voice list initialization failed", "error", initErr)
		httpx.WriteError(w, http.StatusInternalServerError, "Narration provider not configured")
		return
	}

	res, err := voiceListInstance.Process(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}
