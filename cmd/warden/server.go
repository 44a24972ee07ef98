package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"

	"github.com/wardenbot/warden/capstore"
	"github.com/wardenbot/warden/enforce"
	"github.com/wardenbot/warden/gate"
	"github.com/wardenbot/warden/offense"
	"github.com/wardenbot/warden/ratelimit"
)

type Config struct {
	Logger          *slog.Logger
	OffenseStore    offense.Store
	Capabilities    capstore.CapabilityStore
	Limiter         *ratelimit.Limiter
	CommandsFile    string
	ReplyWebhook    string
	SanctionWebhook string
}

type Server struct {
	logger    *slog.Logger
	echo      *echo.Echo
	pipeline  *gate.Pipeline
	automaton *enforce.Automaton
	registry  *gate.Registry
	store     offense.Store
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := gate.NewRegistry()
	if config.CommandsFile != "" {
		if err := registry.LoadFromFileJSON(config.CommandsFile); err != nil {
			return nil, err
		}
		logger.Info("loaded command declarations from JSON", "path", config.CommandsFile)
	}
	// the core only gates; admitted interactions are acknowledged and left to
	// downstream business logic
	for _, cmd := range registry.List() {
		name := cmd.Name
		_ = registry.SetHandler(name, func(ctx context.Context, ev gate.InteractionEvent) error {
			logger.Debug("interaction admitted", "command", name, "actor", ev.ActorID)
			return nil
		})
	}

	var replier gate.Replier = &gate.SlogReplier{Logger: logger}
	if config.ReplyWebhook != "" {
		replier = NewWebhookReplier(config.ReplyWebhook)
	}

	pipeline := gate.NewPipeline(logger, replier)
	pipeline.Register(&gate.LoggingGuard{}, gate.PriorityLogging)
	pipeline.Register(gate.NewValidationGuard(registry), gate.PriorityValidation)
	pipeline.Register(gate.NewRateLimitGuard(config.Limiter), gate.PriorityRateLimit)
	pipeline.Register(gate.NewPermissionGuard(config.Capabilities), gate.PriorityPermission)

	var sanctions enforce.Sanctioner
	var notices enforce.Notifier
	if config.SanctionWebhook != "" {
		wh := NewWebhookEnforcer(config.SanctionWebhook)
		sanctions = wh
		notices = wh
	}
	automaton := enforce.NewAutomaton(logger, config.OffenseStore, sanctions, notices)

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())

	s := &Server{
		logger:    logger,
		echo:      e,
		pipeline:  pipeline,
		automaton: automaton,
		registry:  registry,
		store:     config.OffenseStore,
	}

	e.GET("/health", s.handleHealth)
	e.POST("/gate/interaction", s.handleInteraction)
	e.POST("/enforce/message", s.handleMessage)

	admin := e.Group("/admin")
	admin.GET("/config", s.handleGetConfig)
	admin.PUT("/config", s.handlePutConfig)
	admin.GET("/offenders", s.handleListOffenders)
	admin.POST("/offenders/reset", s.handleResetOffender)
	admin.GET("/bans", s.handleListBans)
	admin.POST("/bans/lift", s.handleLiftBan)
	admin.GET("/whitelist", s.handleListWhitelist)
	admin.POST("/whitelist/:actor", s.handleAddWhitelist)
	admin.DELETE("/whitelist/:actor", s.handleRemoveWhitelist)

	return s, nil
}

func (s *Server) Run(ctx context.Context, bind string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutCtx)
}

func (s *Server) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInteraction(c echo.Context) error {
	var ev gate.InteractionEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid interaction event")
	}

	proceed := s.pipeline.Run(c.Request().Context(), ev)
	if proceed {
		if cmd := s.registry.Get(ev.CommandName); cmd != nil && cmd.Handler != nil {
			if err := cmd.Handler(c.Request().Context(), ev); err != nil {
				s.logger.Error("command handler failed", "command", ev.CommandName, "err", err)
			}
		}
	}
	return c.JSON(http.StatusOK, map[string]bool{"proceed": proceed})
}

type messageRequest struct {
	enforce.MessageEvent
	IsViolation bool `json:"is_violation"`
}

func (s *Server) handleMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message event")
	}

	dec, err := s.automaton.ProcessMessage(c.Request().Context(), req.MessageEvent, req.IsViolation)
	if err != nil {
		// decision already degraded to no action; surface the failure
		return c.JSON(http.StatusInternalServerError, dec)
	}
	return c.JSON(http.StatusOK, dec)
}

func (s *Server) handleGetConfig(c echo.Context) error {
	cfg, err := s.store.GetConfig(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(c echo.Context) error {
	var cfg offense.EnforcementConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid config")
	}
	if cfg.MaxOffenses < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "max_offenses must be >= 1")
	}
	if cfg.BanDurationHours < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ban_duration_hours must be >= 0")
	}
	if err := s.store.SetConfig(c.Request().Context(), cfg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleListOffenders(c echo.Context) error {
	recs, err := s.store.ListOffenders(c.Request().Context(), c.QueryParam("community"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, recs)
}

type keyRequest struct {
	ActorID     string `json:"actor_id"`
	CommunityID string `json:"community_id"`
}

func (s *Server) handleResetOffender(c echo.Context) error {
	var req keyRequest
	if err := c.Bind(&req); err != nil || req.ActorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor_id and community_id required")
	}
	if err := s.store.ResetOffender(c.Request().Context(), req.ActorID, req.CommunityID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListBans(c echo.Context) error {
	bans, err := s.store.ListBans(c.Request().Context(), c.QueryParam("community"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, bans)
}

func (s *Server) handleLiftBan(c echo.Context) error {
	var req keyRequest
	if err := c.Bind(&req); err != nil || req.ActorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor_id and community_id required")
	}
	ctx := c.Request().Context()
	if err := s.store.LiftBan(ctx, req.ActorID, req.CommunityID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// lifting a ban early leaves the actor fully clean, not partially
	if err := s.store.ResetOffender(ctx, req.ActorID, req.CommunityID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListWhitelist(c echo.Context) error {
	entries, err := s.store.ListWhitelist(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleAddWhitelist(c echo.Context) error {
	actor := c.Param("actor")
	if actor == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor required")
	}
	if err := s.store.AddWhitelist(c.Request().Context(), actor, c.QueryParam("added_by")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRemoveWhitelist(c echo.Context) error {
	actor := c.Param("actor")
	if actor == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor required")
	}
	if err := s.store.RemoveWhitelist(c.Request().Context(), actor); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
