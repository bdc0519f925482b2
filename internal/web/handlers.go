package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/console"
	"github.com/sweeney/hazard-sim/internal/hazard"
)

const (
	errInvalidBody = "invalid body: "
	errNotHeld     = "item is not held"
	errHolding     = "already holding "
)

type burnersRequest struct {
	Burners []bool `json:"burners" binding:"required"`
}

type heaterRequest struct {
	On    *bool `json:"on" binding:"required"`
	Level int   `json:"level"`
}

type overloadRequest struct {
	Overloaded *bool `json:"overloaded"`
}

type explodeRequest struct {
	Exploded *bool `json:"exploded"`
}

type itemRequest struct {
	Name string `json:"name" binding:"required"`
}

type exposeRequest struct {
	Name     string           `json:"name" binding:"required"`
	Position *hazard.Position `json:"position" binding:"required"`
}

type toggleRequest struct {
	Blocked *bool `json:"blocked"`
	Active  *bool `json:"active"`
}

type smokeRequest struct {
	Level *float64 `json:"level" binding:"required"`
}

type ventilationRequest struct {
	Active *bool  `json:"active" binding:"required"`
	Level  string `json:"level"`
}

type alertRequest struct {
	Level string `json:"level" binding:"required"`
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// fail maps store errors onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, hazard.ErrUnknownRoom),
		errors.Is(err, hazard.ErrUnknownAppliance),
		errors.Is(err, hazard.ErrNoHeater):
		code = http.StatusNotFound
	}
	s.log.Debugw("api_request_failed", "path", c.FullPath(), "err", err)
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, errInvalidBody+err.Error())
		return false
	}
	return true
}

// bindOptional binds req unless the body is empty.
func (s *Server) bindOptional(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, errInvalidBody+err.Error())
		return false
	}
	return true
}

func (s *Server) respondState(c *gin.Context, code int, extra gin.H) {
	resp := gin.H{"state": s.deps.Store.State()}
	for k, v := range extra {
		resp[k] = v
	}
	c.JSON(code, resp)
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":   s.deps.Store.State(),
		"sensors": s.deps.Store.Aggregate(),
	})
}

func (s *Server) getSensors(c *gin.Context) {
	readings := s.deps.Store.Readings()
	c.JSON(http.StatusOK, gin.H{
		"aggregate": hazard.Aggregate(readings),
		"rooms":     readings,
	})
}

func (s *Server) getRoom(c *gin.Context) {
	rs, err := s.deps.Store.Room(hazard.RoomID(c.Param("room")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}

func (s *Server) getLogs(c *gin.Context) {
	since := -1
	if v := c.Query("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "since must be an integer")
			return
		}
		since = n
	}
	entries := s.deps.Console.Since(since)
	if entries == nil {
		entries = []console.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) clearLogs(c *gin.Context) {
	s.deps.Console.Clear()
	c.Status(http.StatusNoContent)
}

func (s *Server) setBurners(c *gin.Context) {
	var req burnersRequest
	if !s.bind(c, &req) {
		return
	}
	if len(req.Burners) != hazard.BurnerCount {
		badRequest(c, "burners must have exactly "+strconv.Itoa(hazard.BurnerCount)+" entries")
		return
	}
	var b [hazard.BurnerCount]bool
	copy(b[:], req.Burners)
	s.deps.Store.SetStoveBurners(b)
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) setHeater(c *gin.Context) {
	var req heaterRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Level == 0 {
		req.Level = 1
	}
	if err := s.deps.Store.SetHeater(hazard.RoomID(c.Param("room")), *req.On, req.Level); err != nil {
		s.fail(c, err)
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) overloadHeater(c *gin.Context) {
	var req overloadRequest
	if !s.bindOptional(c, &req) {
		return
	}
	room := hazard.RoomID(c.Param("room"))
	var err error
	if req.Overloaded == nil {
		err = s.deps.Store.OverloadHeater(room)
	} else {
		err = s.deps.Store.SetOverloaded(room, *req.Overloaded)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) repairHeater(c *gin.Context) {
	if err := s.deps.Store.RepairHeater(hazard.RoomID(c.Param("room"))); err != nil {
		s.fail(c, err)
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) explodeAppliance(c *gin.Context) {
	var req explodeRequest
	if !s.bindOptional(c, &req) {
		return
	}
	id := hazard.ApplianceID(c.Param("id"))
	var err error
	if req.Exploded == nil {
		err = s.deps.Store.TriggerExplosion(id)
	} else {
		err = s.deps.Store.SetExploded(id, *req.Exploded)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) repairAppliance(c *gin.Context) {
	if err := s.deps.Store.RepairAppliance(hazard.ApplianceID(c.Param("id"))); err != nil {
		s.fail(c, err)
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) addBurningItem(c *gin.Context) {
	var req itemRequest
	if !s.bind(c, &req) {
		return
	}
	s.deps.Store.AddBurningItem(req.Name)
	s.respondState(c, http.StatusCreated, nil)
}

func (s *Server) exposeItem(c *gin.Context) {
	var req exposeRequest
	if !s.bind(c, &req) {
		return
	}
	ignited := s.deps.Store.ExposeToStove(req.Name, *req.Position)
	s.respondState(c, http.StatusOK, gin.H{"ignited": ignited})
}

func (s *Server) pickUp(c *gin.Context) {
	var req itemRequest
	if !s.bind(c, &req) {
		return
	}
	if !s.deps.Store.PickUp(req.Name) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": errHolding + s.deps.Store.HeldItem()})
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) drop(c *gin.Context) {
	var req itemRequest
	if !s.bind(c, &req) {
		return
	}
	if !s.deps.Store.Drop(req.Name) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": errNotHeld})
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) setChimney(c *gin.Context) {
	var req toggleRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Blocked == nil {
		badRequest(c, errInvalidBody+"blocked is required")
		return
	}
	s.deps.Store.SetChimneyBlocked(*req.Blocked)
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) setSmoke(c *gin.Context) {
	var req smokeRequest
	if !s.bind(c, &req) {
		return
	}
	s.deps.Store.SetSmokeLevel(*req.Level)
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) setAlarm(c *gin.Context) {
	var req toggleRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Active == nil {
		badRequest(c, errInvalidBody+"active is required")
		return
	}
	s.deps.Store.SetAlarm(*req.Active)
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) setVentilation(c *gin.Context) {
	var req ventilationRequest
	if !s.bind(c, &req) {
		return
	}
	v := hazard.VentilationState{Active: *req.Active, Level: hazard.VentOff}
	switch {
	case req.Level != "":
		lvl, ok := hazard.ParseVentLevel(req.Level)
		if !ok {
			badRequest(c, "unknown ventilation level "+strconv.Quote(req.Level))
			return
		}
		v.Level = lvl
	case v.Active:
		v.Level = hazard.VentHigh
	}
	if err := s.deps.Store.SetVentilation(hazard.RoomID(c.Param("room")), v); err != nil {
		s.fail(c, err)
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) setAlert(c *gin.Context) {
	var req alertRequest
	if !s.bind(c, &req) {
		return
	}
	lvl, ok := hazard.ParseAlertLevel(req.Level)
	if !ok {
		badRequest(c, "unknown alert level "+strconv.Quote(req.Level))
		return
	}
	if err := s.deps.Store.SetAlertLevel(hazard.RoomID(c.Param("room")), lvl); err != nil {
		s.fail(c, err)
		return
	}
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) emergency(c *gin.Context) {
	s.deps.Store.TriggerEmergency()
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) reset(c *gin.Context) {
	s.deps.Store.ResetSimulation()
	s.respondState(c, http.StatusOK, nil)
}

func (s *Server) readCommand(c *gin.Context) (command.Command, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, errInvalidBody+err.Error())
		return command.Command{}, false
	}
	cmd, err := command.ParseCommand(body)
	if err != nil {
		badRequest(c, err.Error())
		return command.Command{}, false
	}
	return cmd, true
}

func (s *Server) applyCommand(c *gin.Context) {
	cmd, ok := s.readCommand(c)
	if !ok {
		return
	}
	res := s.deps.Interp.Apply(cmd)
	s.respondState(c, http.StatusOK, gin.H{"result": res})
}

func (s *Server) publishCommand(c *gin.Context) {
	cmd, ok := s.readCommand(c)
	if !ok {
		return
	}
	if s.deps.Publisher == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no broker configured"})
		return
	}
	if err := s.deps.Publisher.PublishCommand(cmd); err != nil {
		s.log.Warnw("command_publish_failed", "command", cmd.String(), "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.deps.Console.Command("Sent: " + cmd.String())
	c.JSON(http.StatusAccepted, gin.H{"command": cmd})
}
