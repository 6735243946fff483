package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/france-chomage/jobcomb/app/categories"
	"github.com/france-chomage/jobcomb/app/database"
)

const statsPeriodDays = 30

func NewHandler(registry RegistryInterface, store database.JobStore,
	cycles CycleRunner, version string) *Handler {
	return &Handler{
		registry: registry,
		store:    store,
		cycles:   cycles,
		version:  version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"version":           h.version,
		"timestamp":         time.Now().In(time.Local).Format(time.RFC3339),
		"loaded_categories": h.registry.Count(),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(statsPeriodDays)
	if err != nil {
		slog.Error("Database error", "operation", "stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	perCategory := make(map[string]gin.H, len(stats.PerCategory))
	for name, cs := range stats.PerCategory {
		perCategory[name] = gin.H{
			"total":     cs.Total,
			"delivered": cs.Delivered,
			"pending":   cs.Pending,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"period_days": stats.PeriodDays,
		"total":       stats.Total,
		"delivered":   stats.Delivered,
		"pending":     stats.Pending,
		"categories":  perCategory,
	})
}

func (h *Handler) APIListCategories(c *gin.Context) {
	profiles := h.registry.Enabled()

	list := make([]gin.H, 0, len(profiles))
	for _, profile := range profiles {
		list = append(list, gin.H{
			"name":         profile.Name,
			"search_terms": profile.SearchTerms,
			"topic_id":     profile.TopicID,
			"fetch_hours":  profile.FetchHours,
			"send_hours":   profile.SendHours,
			"strategy":     profile.Strategy,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": list,
		"total":      len(list),
	})
}

func (h *Handler) APIIngestCategory(c *gin.Context) {
	name := c.Param("name")
	if !h.checkCategory(c, name) {
		return
	}

	counts, err := h.cycles.IngestCategory(c.Request.Context(), name)
	if err != nil {
		slog.Error("Ingestion failed", "category", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Ingestion failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category":     name,
		"fetched":      counts.Fetched,
		"stored":       counts.Stored,
		"duplicates":   counts.Duplicates,
		"rejected_old": counts.RejectedOld,
	})
}

func (h *Handler) APISendCategory(c *gin.Context) {
	name := c.Param("name")
	if !h.checkCategory(c, name) {
		return
	}

	sent, err := h.cycles.SendCategory(c.Request.Context(), name)
	if err != nil {
		slog.Error("Delivery failed", "category", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Delivery failed",
			"details": err.Error(),
			"sent":    sent,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": name,
		"sent":     sent,
	})
}

func (h *Handler) APIRunWorkflow(c *gin.Context) {
	name := c.Param("name")
	if !h.checkCategory(c, name) {
		return
	}

	counts, err := h.cycles.IngestCategory(c.Request.Context(), name)
	if err != nil {
		slog.Error("Ingestion failed", "category", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Ingestion failed",
			"details": err.Error(),
		})
		return
	}

	sent, err := h.cycles.SendCategory(c.Request.Context(), name)
	if err != nil {
		slog.Error("Delivery failed", "category", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Delivery failed",
			"details": err.Error(),
			"stored":  counts.Stored,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category":     name,
		"fetched":      counts.Fetched,
		"stored":       counts.Stored,
		"duplicates":   counts.Duplicates,
		"rejected_old": counts.RejectedOld,
		"sent":         sent,
	})
}

// APIClearCache drops the in-process dedup cache; it is rebuilt from
// the database on the next ingestion cycle.
func (h *Handler) APIClearCache(c *gin.Context) {
	h.store.ClearCache()
	slog.Info("Dedup cache cleared via API")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) APIReloadCategories(c *gin.Context) {
	if err := h.registry.Reload(); err != nil {
		slog.Error("Category reload failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload categories",
			"details": err.Error(),
		})
		return
	}

	if err := h.cycles.Reschedule(); err != nil {
		slog.Error("Reschedule failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Categories reloaded but rescheduling failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"loaded_categories": h.registry.Count(),
	})
}

func (h *Handler) checkCategory(c *gin.Context, name string) bool {
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing category name parameter"})
		return false
	}

	if _, err := h.registry.Get(name); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, categories.ErrDisabled) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return false
	}

	return true
}
