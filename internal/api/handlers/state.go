package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/funding-collector/internal/models"
)

// StateSource exposes the last-sent map.
type StateSource interface {
	Snapshot() map[string]models.LastSentState
	Get(key string) (models.LastSentState, bool)
}

type StateHandler struct {
	exchange string
	store    StateSource
}

func NewStateHandler(exchange string, store StateSource) *StateHandler {
	return &StateHandler{exchange: exchange, store: store}
}

// GetState returns the full last-sent snapshot keyed by "exchange:asset".
func (h *StateHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// GetAssetState returns the last-sent entry for one asset of this exchange.
func (h *StateHandler) GetAssetState(c *gin.Context) {
	asset := strings.TrimSpace(c.Param("asset"))
	key := models.StateKey(h.exchange, asset)

	entry, ok := h.store.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "nothing sent yet", "key": key})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "state": entry})
}
