// Package api exposes the controller over HTTP.
//
// Routes:
//
//	GET  /status     run status, stats and the last decoded state
//	POST /start      start or resume
//	POST /pause      pause
//	POST /stop       stop and release
//	GET  /config     current run config
//	PUT  /config     merge a partial run config
//	GET  /logs?n=    newest log lines (default 100)
//	POST /actions    execute manual actions or a named combo while not running
//	GET  /skills     learned skills
//	GET  /combos     available combo names
//	GET  /ws/stats   websocket pushing stats once per interval
//
// The server is meant to listen on loopback. Browser requests whose Origin
// is neither the API host nor a loopback page are refused with 403.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/control"
	"gamepilot/internal/game"
	"gamepilot/internal/knowledge"
	"gamepilot/internal/policy"
)

const (
	defaultLogLines = 100
	maxLogLines     = 1000
)

// Controller is the part of control.Controller the API drives.
type Controller interface {
	Start(ctx context.Context) error
	Pause()
	Stop()
	Status() control.Status
	Stats() control.Stats
	Err() error
	LastState() *game.GameState
	RunManual(ctx context.Context, actions []game.Action) (int, error)
	Config() *config.Store
}

// SkillCatalog lists learned skills.
type SkillCatalog interface {
	Skills() ([]knowledge.Skill, error)
}

// Options configures a Server.
type Options struct {
	Controller Controller
	// Skills may be nil; /skills then returns an empty list.
	Skills SkillCatalog
	// Logs returns the newest n log entries. Defaults to botlog.Recent.
	Logs          func(n int) []botlog.Entry
	StatsInterval time.Duration
	Logger        *log.Logger
}

// Server is the HTTP control surface.
type Server struct {
	e             *echo.Echo
	ctrl          Controller
	skills        SkillCatalog
	logs          func(n int) []botlog.Entry
	statsInterval time.Duration
	logger        *log.Logger
}

// APIError is the JSON body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func apiError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, &APIError{Code: code, Message: message})
}

// New builds the server and registers its routes.
func New(opts Options) *Server {
	if opts.Logs == nil {
		opts.Logs = botlog.Recent
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(sameOrigin)

	s := &Server{
		e:             e,
		ctrl:          opts.Controller,
		skills:        opts.Skills,
		logs:          opts.Logs,
		statsInterval: opts.StatsInterval,
		logger:        opts.Logger.WithPrefix("api"),
	}
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes mounts every route on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/status", s.status)
	e.POST("/start", s.start)
	e.POST("/pause", s.pause)
	e.POST("/stop", s.stop)
	e.GET("/config", s.getConfig)
	e.PUT("/config", s.putConfig)
	e.GET("/logs", s.getLogs)
	e.POST("/actions", s.postActions)
	e.GET("/skills", s.getSkills)
	e.GET("/combos", s.getCombos)
	e.GET("/ws/stats", s.wsStats)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start listens on addr until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// StatusResponse is returned by /status and the control routes.
type StatusResponse struct {
	Status control.Status  `json:"status"`
	Error  string          `json:"error,omitempty"`
	Stats  control.Stats   `json:"stats"`
	State  *game.GameState `json:"state,omitempty"`
}

func (s *Server) statusResponse() StatusResponse {
	resp := StatusResponse{
		Status: s.ctrl.Status(),
		Stats:  s.ctrl.Stats(),
		State:  s.ctrl.LastState(),
	}
	if err := s.ctrl.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.statusResponse())
}

func (s *Server) start(c echo.Context) error {
	if err := s.ctrl.Start(c.Request().Context()); err != nil {
		s.logger.Error("start failed", "err", err)
		return apiError(http.StatusInternalServerError, "init_failed", err.Error())
	}
	return c.JSON(http.StatusOK, s.statusResponse())
}

func (s *Server) pause(c echo.Context) error {
	s.ctrl.Pause()
	return c.JSON(http.StatusOK, s.statusResponse())
}

func (s *Server) stop(c echo.Context) error {
	s.ctrl.Stop()
	return c.JSON(http.StatusOK, s.statusResponse())
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Config().Load())
}

// putConfig decodes the body over the current config, so omitted fields
// keep their values. Out-of-range numbers are clamped; an unknown strategy
// is rejected.
func (s *Server) putConfig(c echo.Context) error {
	store := s.ctrl.Config()
	cfg := store.Load()
	if err := json.NewDecoder(c.Request().Body).Decode(&cfg); err != nil {
		return apiError(http.StatusBadRequest, "invalid_body", err.Error())
	}
	if _, err := config.ParseStrategy(string(cfg.Strategy)); err != nil {
		return apiError(http.StatusBadRequest, "invalid_strategy", err.Error())
	}
	updated := store.Set(cfg)
	s.logger.Info("config updated", "config", updated)
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) getLogs(c echo.Context) error {
	n := defaultLogLines
	if raw := c.QueryParam("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return apiError(http.StatusBadRequest, "invalid_n", "n must be a positive integer")
		}
		n = min(v, maxLogLines)
	}
	entries := s.logs(n)
	if entries == nil {
		entries = []botlog.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// ActionsRequest is the body of POST /actions. Exactly one of Actions and
// Combo is used; Combo wins when both are set.
type ActionsRequest struct {
	Actions []game.Command `json:"actions"`
	Combo   string         `json:"combo,omitempty"`
}

// ActionsResponse reports how many actions succeeded.
type ActionsResponse struct {
	Executed int    `json:"executed"`
	Total    int    `json:"total"`
	Actions  string `json:"actions"`
}

func (s *Server) postActions(c echo.Context) error {
	var req ActionsRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return apiError(http.StatusBadRequest, "invalid_body", err.Error())
	}

	var actions []game.Action
	if req.Combo != "" {
		combo, ok := policy.Combo(req.Combo)
		if !ok {
			return apiError(http.StatusNotFound, "unknown_combo", req.Combo)
		}
		actions = []game.Action{combo}
	} else {
		for _, cmd := range req.Actions {
			a, err := cmd.ToAction()
			if err != nil {
				return apiError(http.StatusBadRequest, "invalid_action", err.Error())
			}
			actions = append(actions, a)
		}
	}
	if len(actions) == 0 {
		return apiError(http.StatusBadRequest, "no_actions", "no actions given")
	}

	n, err := s.ctrl.RunManual(c.Request().Context(), actions)
	if errors.Is(err, control.ErrBusy) {
		return apiError(http.StatusConflict, "busy", "pause or stop the loop first")
	}
	if err != nil {
		return apiError(http.StatusInternalServerError, "execute_failed", err.Error())
	}
	return c.JSON(http.StatusOK, ActionsResponse{Executed: n, Total: len(actions), Actions: game.Describe(actions)})
}

func (s *Server) getSkills(c echo.Context) error {
	skills := []knowledge.Skill{}
	if s.skills != nil {
		list, err := s.skills.Skills()
		if err != nil {
			return apiError(http.StatusInternalServerError, "knowledge_error", err.Error())
		}
		if list != nil {
			skills = list
		}
	}
	return c.JSON(http.StatusOK, skills)
}

func (s *Server) getCombos(c echo.Context) error {
	return c.JSON(http.StatusOK, policy.ComboNames())
}
