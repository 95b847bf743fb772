// Package server exposes the batch trigger, manual override and Slack
// interactivity endpoints over HTTP.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/seokwon/mail-sentry/internal/config"
	"github.com/seokwon/mail-sentry/internal/core"
	"go.uber.org/zap"
)

// Server wires the orchestrator behind a fiber application.
type Server struct {
	app           *fiber.App
	orchestrator  *core.Orchestrator
	priors        *core.PriorEngine
	settings      core.SettingsStore
	learning      config.LearningConfig
	signingSecret string
	listenAddress string
	logger        *zap.Logger
}

// New creates the HTTP server and registers all routes.
func New(orchestrator *core.Orchestrator, priors *core.PriorEngine, settings core.SettingsStore, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		orchestrator:  orchestrator,
		priors:        priors,
		settings:      settings,
		learning:      cfg.GetLearning(),
		signingSecret: cfg.GetSlack().SigningSecret,
		listenAddress: cfg.GetServer().ListenAddress,
		logger:        logger,
	}

	s.app.Get("/healthz", s.handleHealth)
	s.app.Post("/run-batch", s.handleRunBatch)
	s.app.Post("/notifications/trigger", s.handleTrigger)
	s.app.Post("/notifications/block", s.handleBlock)
	s.app.Post("/priors/update", s.handleUpdatePriors)
	s.app.Post("/system/pause", s.handlePause)
	s.app.Post("/system/resume", s.handleResume)
	s.app.Get("/system/status", s.handleStatus)
	s.app.Post("/slack/interactive", s.handleInteractive)

	return s
}

// Listen serves until Shutdown is called.
func (s *Server) Listen() error {
	s.logger.Info("HTTP server listening", zap.String("address", s.listenAddress))
	return s.app.Listen(s.listenAddress)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleRunBatch(c *fiber.Ctx) error {
	summary, err := s.orchestrator.RunBatch(c.Context())
	if err != nil {
		s.logger.Error("Batch run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"status":    summary.Status,
		"reason":    summary.Reason,
		"processed": summary.Processed,
		"sent":      summary.Sent,
		"ignored":   summary.Ignored,
	})
}

type triggerRequest struct {
	EmailID   string   `json:"email_id"`
	TargetIDs []string `json:"target_ids"`
	Learn     *bool    `json:"learn"`
}

func (s *Server) handleTrigger(c *fiber.Ctx) error {
	var req triggerRequest
	if err := c.BodyParser(&req); err != nil || req.EmailID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "email_id is required",
		})
	}

	learn := true
	if req.Learn != nil {
		learn = *req.Learn
	}

	if err := s.orchestrator.TriggerNotification(c.Context(), req.EmailID, req.TargetIDs, learn); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, core.ErrSnapshotNotFound) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "success"})
}

type blockRequest struct {
	EmailID string `json:"email_id"`
}

func (s *Server) handleBlock(c *fiber.Ctx) error {
	var req blockRequest
	if err := c.BodyParser(&req); err != nil || req.EmailID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "email_id is required",
		})
	}

	if err := s.orchestrator.BlockNotification(c.Context(), req.EmailID); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, core.ErrSnapshotNotFound) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "success"})
}

type pauseRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	var req pauseRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "reason is required",
		})
	}
	if err := s.settings.SetSystemEnabled(c.Context(), false, req.Actor, req.Reason); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}
	s.logger.Warn("Processing paused",
		zap.String("actor", req.Actor),
		zap.String("reason", req.Reason))
	return c.JSON(fiber.Map{"status": "success"})
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	var req pauseRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "invalid request body",
		})
	}
	if err := s.settings.SetSystemEnabled(c.Context(), true, req.Actor, ""); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}
	s.logger.Info("Processing resumed", zap.String("actor", req.Actor))
	return c.JSON(fiber.Map{"status": "success"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	status, err := s.settings.SystemStatus(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}
	usage, err := s.settings.DailyUsage(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}

	resp := fiber.Map{"enabled": true}
	if status != nil {
		resp["enabled"] = status.Enabled
		if !status.Enabled {
			resp["paused_by"] = status.PausedBy
			resp["pause_reason"] = status.PauseReason
		}
		resp["daily_limit_calls"] = status.DailyLimitCalls
		resp["daily_limit_cost_usd"] = status.DailyLimitCostUSD
	}
	if usage != nil {
		resp["usage"] = fiber.Map{
			"date":          usage.Date,
			"calls":         usage.Calls,
			"cost_usd":      usage.CostUSD,
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
		}
	}
	return c.JSON(resp)
}

func (s *Server) handleUpdatePriors(c *fiber.Ctx) error {
	if !s.learning.Enabled {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"status":  "error",
			"message": "learning is disabled",
		})
	}
	updated, failed := s.priors.UpdatePriors(c.Context(), s.learning.WindowDays, s.learning.UpdateLimit)
	return c.JSON(fiber.Map{
		"status":  "success",
		"updated": updated,
		"failed":  failed,
	})
}
