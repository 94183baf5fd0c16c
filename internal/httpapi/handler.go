package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fun-with-ai/internal/controller"
	"fun-with-ai/internal/history"
)

// Controller is the part of *controller.Controller the HTTP surface needs.
type Controller interface {
	Dispatch(ctx context.Context, cmd controller.Command) error
	SubmitPrompt(ctx context.Context, text string) (history.Interaction, error)
	State() controller.State
}

// Handler serves one history over JSON.
type Handler struct {
	ctrl Controller
}

func NewHandler(ctrl Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// InteractionResponse is one history entry.
type InteractionResponse struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Engine   string `json:"engine"`
}

// StateResponse mirrors controller.State.
type StateResponse struct {
	Loading bool                  `json:"loading"`
	Engine  string                `json:"engine"`
	Engines []string              `json:"engines"`
	History []InteractionResponse `json:"history"`
}

type SubmitRequest struct {
	Prompt string `json:"prompt"`
}

type SelectEngineRequest struct {
	Engine string `json:"engine" binding:"required"`
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	api.GET("/state", h.GetState)
	api.POST("/prompts", h.SubmitPrompt)
	api.PUT("/engine", h.SelectEngine)
	api.DELETE("/history", h.ClearHistory)
	return router
}

func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, toStateResponse(h.ctrl.State()))
}

// SubmitPrompt answers with the new interaction. An empty prompt is accepted.
func (h *Handler) SubmitPrompt(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	it, err := h.ctrl.SubmitPrompt(c.Request.Context(), req.Prompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, InteractionResponse(it))
}

func (h *Handler) SelectEngine(c *gin.Context) {
	var req SelectEngineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.ctrl.Dispatch(c.Request.Context(), controller.SelectEngine{EngineID: req.Engine}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStateResponse(h.ctrl.State()))
}

func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.ctrl.Dispatch(c.Request.Context(), controller.ClearHistory{}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError keeps the body generic; only the status code tells the kinds apart.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, controller.ErrUnknownEngine):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown engine"})
		return
	case controller.Classify(err) == controller.KindTransport:
		status = http.StatusGatewayTimeout
	case controller.Classify(err) == controller.KindAPI:
		status = http.StatusBadGateway
	case controller.Classify(err) == controller.KindStorage:
		status = http.StatusInsufficientStorage
	}
	c.JSON(status, gin.H{"error": controller.GenericNotice})
}

func toStateResponse(st controller.State) StateResponse {
	out := StateResponse{
		Loading: st.Loading,
		Engine:  st.Engine,
		Engines: st.Catalog,
		History: make([]InteractionResponse, 0, len(st.History)),
	}
	if out.Engines == nil {
		out.Engines = []string{}
	}
	for _, it := range st.History {
		out.History = append(out.History, InteractionResponse(it))
	}
	return out
}
