package proxy

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/florianilch/claudine-gateway/internal/modelmap"
)

// ModelCatalog lists the Claude models advertised to clients.
type ModelCatalog interface {
	List() []modelmap.Model
	Lookup(name string) (modelmap.Model, bool)
}

// modelInfo is a model in the Claude models API format.
type modelInfo struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

type modelList struct {
	Data    []modelInfo `json:"data"`
	HasMore bool        `json:"has_more"`
	FirstID string      `json:"first_id,omitempty"`
	LastID  string      `json:"last_id,omitempty"`
}

func toModelInfo(m modelmap.Model) modelInfo {
	return modelInfo{
		Type:        "model",
		ID:          m.ID,
		DisplayName: m.DisplayName,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// modelsHandler returns the static model catalog. Backends name their models
// differently, so clients get the Claude ids they know and the gateway maps them.
func modelsHandler(catalog ModelCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := catalog.List()

		list := modelList{Data: make([]modelInfo, 0, len(models))}
		for _, m := range models {
			list.Data = append(list.Data, toModelInfo(m))
		}
		if len(list.Data) > 0 {
			list.FirstID = list.Data[0].ID
			list.LastID = list.Data[len(list.Data)-1].ID
		}

		writeJSON(r.Context(), w, list, http.StatusOK)
	}
}

// modelHandler returns a single catalog model by id or alias.
func modelHandler(catalog ModelCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "model_id")

		model, ok := catalog.Lookup(id)
		if !ok {
			writeJSONClaudeError(r.Context(), w, newClaudeError("not_found_error", "model not found: "+id))
			return
		}
		writeJSON(r.Context(), w, toModelInfo(model), http.StatusOK)
	}
}
