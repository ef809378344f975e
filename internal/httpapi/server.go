// Package httpapi implements the diagnostics & chime HTTP surface from
// spec.md §6. Grounded on the teacher's internal/httpapi.Server: Echo with
// slog-based request logging (Debug for noisy diagnostic paths, Info for
// the rest), middleware.Recover(), and a consistent JSON error body via a
// custom HTTPErrorHandler, following the teacher's server/api.go
// jsonErrorHandler convention.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/capture"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/chime"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/stats"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/tts"
)

// Server serves the diagnostics and chime HTTP API.
type Server struct {
	echo    *echo.Echo
	log     *slog.Logger
	chimes  *chime.Store
	capture *capture.Buffer
	tracker *stats.Tracker
	tts     *tts.Bridge
}

// New constructs the HTTP API server and registers all routes. ttsBridge may
// be nil when the hub was started without a TTS backend (spec.md §4.10
// requires failing requests with TtsUnavailable, not hiding the route, but
// with no bridge at all there is nothing to queue against).
func New(chimes *chime.Store, cap *capture.Buffer, tracker *stats.Tracker, ttsBridge *tts.Bridge, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, log: log, chimes: chimes, capture: cap, tracker: tracker, tts: ttsBridge}

	e.HTTPErrorHandler = s.jsonErrorHandler
	e.Use(s.requestLogger)

	e.GET("/api/chimes", s.listChimes)
	e.POST("/api/chimes/upload", s.uploadChime)
	e.DELETE("/api/chimes/:name", s.deleteChime)
	e.POST("/api/audio_capture", s.audioCaptureControl)
	e.GET("/api/audio_capture", s.audioCaptureFetch)
	e.GET("/api/audio_stats", s.audioStats)
	e.POST("/api/audio_stats", s.audioStatsReset)
	e.POST("/api/tts/speak", s.ttsSpeak)
	e.GET("/api/status", s.status)

	return s
}

func (s *Server) ttsSpeak(c echo.Context) error {
	if s.tts == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "tts bridge not configured")
	}
	var body struct {
		Message  string `json:"message"`
		Target   string `json:"target"`
		Priority string `json:"priority"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	if body.Target == "" {
		body.Target = "all"
	}
	priority := packet.PriorityNormal
	switch body.Priority {
	case "high":
		priority = packet.PriorityHigh
	case "emergency":
		priority = packet.PriorityEmergency
	}
	if err := s.tts.Speak(tts.Request{Message: body.Message, Target: body.Target, Priority: priority}); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		c.JSON(code, map[string]string{"error": msg})
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		path := c.Request().URL.Path
		level := slog.LevelInfo
		if path == "/api/status" {
			level = slog.LevelDebug
		}
		s.log.Log(c.Request().Context(), level, "http request",
			"method", c.Request().Method, "path", path,
			"status", c.Response().Status, "duration", time.Since(start))
		return err
	}
}

// Run starts the server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.echo.Shutdown(shutdownCtx)
	}()

	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) listChimes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"chimes": s.chimes.List()})
}

func (s *Server) uploadChime(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field")
	}
	if fh.Size > chime.MaxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds max upload size")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open upload")
	}
	defer f.Close()

	name := nameFromMultipartFilename(fh.Filename)
	if err := s.chimes.Upload(name, f); err != nil {
		return mapChimeError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"name": name})
}

func (s *Server) deleteChime(c echo.Context) error {
	name := c.Param("name")
	if err := s.chimes.Delete(name); err != nil {
		return mapChimeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func mapChimeError(err error) error {
	ce, ok := err.(*chime.Error)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch ce.Kind {
	case "TooLarge":
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, ce.Error())
	case "ReservedName":
		return echo.NewHTTPError(http.StatusForbidden, ce.Error())
	case "NotFound":
		return echo.NewHTTPError(http.StatusNotFound, ce.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, ce.Error())
	}
}

func nameFromMultipartFilename(filename string) string {
	base := filename
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			base = filename[:i]
			break
		}
	}
	return base
}

func (s *Server) audioCaptureControl(c echo.Context) error {
	var body struct {
		Action string `json:"action"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	switch body.Action {
	case "start":
		s.capture.Start()
	case "stop":
		s.capture.Stop()
	case "clear":
		s.capture.Clear()
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) audioCaptureFetch(c echo.Context) error {
	var filter capture.Filter
	if dir := c.QueryParam("direction"); dir != "" {
		filter.Direction = capture.Direction(dir)
	}
	filter.DeviceID = c.QueryParam("device_id")
	if since := c.QueryParam("since"); since != "" {
		if v, err := strconv.ParseInt(since, 10, 64); err == nil {
			filter.SinceMs = v
		}
	}
	if limit := c.QueryParam("limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			filter.Limit = v
		}
	}
	return c.JSON(http.StatusOK, s.capture.Fetch(filter))
}

func (s *Server) audioStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.tracker.All())
}

func (s *Server) audioStatsReset(c echo.Context) error {
	s.tracker.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
