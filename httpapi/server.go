// Package httpapi implements the admin HTTP surface of spec.md §6: a health
// probe, the JSON conference-request path, and the load-redistribution
// move-endpoint(s)/move-fraction admin calls, the way
// rustyguts-bken/server/internal/httpapi wires an Echo app over its own
// domain collaborators.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/conference"
	"github.com/jiconf/focus/focuserr"
	"github.com/jiconf/focus/focusiq"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/stanza"
)

// Server is the Echo application exposing the admin surface.
type Server struct {
	echo            *echo.Echo
	handler         *focusiq.Handler
	redis           *conference.LoadRedistributor
	brewery         *bridge.Brewery
	focusJID        jid.JID
	failureCooldown time.Duration
	log             zerolog.Logger
}

// New constructs an Echo app wired to the given collaborators.
// failureCooldown matches the BridgeSelectionConfig.FailureCooldown used to
// build brewery's selector.Strategy, so /about/health agrees with the
// bridge-usability the selection path itself applies.
func New(handler *focusiq.Handler, redis *conference.LoadRedistributor, brewery *bridge.Brewery, focusJID jid.JID, failureCooldown time.Duration, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, handler: handler, redis: redis, brewery: brewery, focusJID: focusJID, failureCooldown: failureCooldown, log: log}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/about/health", s.handleHealth)
	s.echo.POST("/conference-request/v1", s.handleConferenceRequest)
	s.echo.GET("/move-endpoints/move-endpoint", s.handleMoveEndpoint)
	s.echo.GET("/move-endpoints/move-endpoints", s.handleMoveEndpoints)
	s.echo.GET("/move-endpoints/move-fraction", s.handleMoveFraction)
}

// Run starts the server and blocks until ctx cancellation or a startup
// failure, mirroring the teacher's ctx-driven Run/Shutdown pairing.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		s.log.Info().Msg("http admin server stopped")
		return nil
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	UsableBridges int    `json:"usableBridges"`
}

// handleHealth reports 503 while no bridge in the brewery can take a new
// conference, not merely process liveness (SPEC_FULL.md's health endpoint
// supplement).
func (s *Server) handleHealth(c echo.Context) error {
	usable := 0
	now := time.Now()
	for _, b := range s.brewery.Snapshot() {
		if b.Usable(now, s.failureCooldown) {
			usable++
		}
	}
	resp := healthResponse{Status: "ok", UsableBridges: usable}
	if usable == 0 {
		resp.Status = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

type conferenceRequest struct {
	Room       string `json:"room"`
	From       string `json:"from"`
	MachineUID string `json:"machineUid"`
	SessionID  string `json:"sessionId"`
}

type conferenceResponse struct {
	Room      string `json:"room"`
	SessionID string `json:"sessionId"`
	FocusJID  string `json:"focusJid"`
	Ready     bool   `json:"ready"`
}

func (s *Server) handleConferenceRequest(c echo.Context) error {
	var req conferenceRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, focuserr.New(focuserr.MalformedRequest, "invalid request body"))
	}
	if req.Room == "" || req.From == "" {
		return writeError(c, focuserr.New(focuserr.MalformedRequest, "room and from are required"))
	}

	from, err := jid.Parse(req.From)
	if err != nil {
		return writeError(c, focuserr.New(focuserr.MalformedRequest, "from is not a valid JID"))
	}

	iq := stanza.ConferenceIQ{
		IQ: stanza.IQ{Type: stanza.SetIQ, From: from},
		Conference: stanza.ConferenceRequest{
			Room:       req.Room,
			MachineUID: req.MachineUID,
			SessionID:  req.SessionID,
		},
	}
	resp, err := s.handler.Handle(iq, time.Now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conferenceResponse{
		Room:      resp.Conference.Room,
		SessionID: resp.Conference.SessionID,
		FocusJID:  resp.Conference.FocusJID,
		Ready:     resp.Conference.Ready,
	})
}

type moveResponse struct {
	MovedEndpoints int `json:"movedEndpoints"`
	Conferences    int `json:"conferences"`
}

func (s *Server) handleMoveEndpoint(c echo.Context) error {
	conferenceID := c.QueryParam("conference")
	endpointID := c.QueryParam("endpoint")
	bridgeID := c.QueryParam("bridge")
	if conferenceID == "" || endpointID == "" {
		return writeError(c, focuserr.New(focuserr.MalformedRequest, "conference and endpoint are required"))
	}
	result, err := s.redis.MoveEndpoint(c.Request().Context(), conferenceID, endpointID, bridgeID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, moveResponse{MovedEndpoints: result.MovedEndpoints, Conferences: result.Conferences})
}

func (s *Server) handleMoveEndpoints(c echo.Context) error {
	bridgeID := c.QueryParam("bridge")
	if bridgeID == "" {
		return writeError(c, focuserr.New(focuserr.MalformedRequest, "bridge is required"))
	}
	n, err := strconv.Atoi(c.QueryParam("numEndpoints"))
	if err != nil || n <= 0 {
		return writeError(c, focuserr.New(focuserr.MalformedRequest, "numEndpoints must be a positive integer"))
	}
	result, err := s.redis.MoveEndpoints(c.Request().Context(), bridgeID, c.QueryParam("conference"), n)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, moveResponse{MovedEndpoints: result.MovedEndpoints, Conferences: result.Conferences})
}

func (s *Server) handleMoveFraction(c echo.Context) error {
	bridgeID := c.QueryParam("bridge")
	if bridgeID == "" {
		return writeError(c, focuserr.New(focuserr.MalformedRequest, "bridge is required"))
	}
	f, err := strconv.ParseFloat(c.QueryParam("fraction"), 64)
	if err != nil {
		return writeError(c, focuserr.New(focuserr.MalformedRequest, "fraction must be a float in [0,1]"))
	}
	result, err := s.redis.MoveFraction(c.Request().Context(), bridgeID, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, moveResponse{MovedEndpoints: result.MovedEndpoints, Conferences: result.Conferences})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a focuserr.Kind onto the HTTP status a REST admin client
// expects, rather than the XMPP stanza-error condition focuserr.ToIQError
// produces for the signaling path.
func writeError(c echo.Context, err error) error {
	var fe *focuserr.Error
	if !errors.As(err, &fe) {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	status := http.StatusInternalServerError
	switch fe.Kind {
	case focuserr.MalformedRequest:
		status = http.StatusBadRequest
	case focuserr.NotAuthorized:
		status = http.StatusUnauthorized
	case focuserr.Forbidden:
		status = http.StatusForbidden
	case focuserr.SessionInvalid:
		status = http.StatusConflict
	case focuserr.FeatureNotImplemented:
		status = http.StatusNotImplemented
	case focuserr.ItemNotFound:
		status = http.StatusNotFound
	case focuserr.UnexpectedRequest:
		status = http.StatusBadRequest
	case focuserr.ResourceConstraint:
		status = http.StatusTooManyRequests
	case focuserr.ServiceUnavailable:
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, errorResponse{Error: fe.Error()})
}
