package search

import (
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/models"
)

// ProcessQuery applies the configured defaults and validates the search query.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	if cfg != nil {
		if query.Mode == "" && cfg.DefaultMode != "" {
			query.Mode = models.SearchMode(cfg.DefaultMode)
		}
		if query.Limit <= 0 && cfg.DefaultLimit > 0 {
			query.Limit = cfg.DefaultLimit
		}
		if cfg.MaxLimit > 0 && query.Limit > cfg.MaxLimit {
			query.Limit = cfg.MaxLimit
		}
	}
	return query.Validate()
}
