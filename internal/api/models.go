package api

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/analystproxy/analystproxy/internal/config"
)

type semanticModel struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

func handleSemanticModels(cfg config.Config, w http.ResponseWriter) {
	models := make([]semanticModel, 0, len(cfg.Analyst.SemanticModels))
	for _, item := range cfg.Analyst.SemanticModels {
		models = append(models, semanticModel{Path: item, Name: semanticModelName(item)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  models,
		"default": cfg.Analyst.DefaultModel,
	})
}

func handleInfo(cfg config.Config, deps Dependencies, w http.ResponseWriter) {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        cfg.Service.Name,
		"description": fmt.Sprintf("Answers questions about %s from %s", cfg.Analyst.ServiceTopic, cfg.Analyst.DataDescription),
		"version":     version,
		"backend":     cfg.Analyst.Backend,
	})
}

// resolveSemanticModel returns the configured default for an empty request
// and rejects models that are not configured.
func resolveSemanticModel(cfg config.Config, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return cfg.Analyst.DefaultModel, true
	}
	for _, item := range cfg.Analyst.SemanticModels {
		if item == requested {
			return item, true
		}
	}
	return "", false
}

func semanticModelName(modelPath string) string {
	return path.Base(strings.TrimPrefix(modelPath, "@"))
}
