package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/domain"
	"github.com/Rudra9905/Studify/internal/meetings"
	"github.com/Rudra9905/Studify/internal/relay"
)

type meetingController struct {
	svc *meetings.Service
	hub *relay.Hub
}

type hostRequest struct {
	HostUserID  string `json:"hostUserId" binding:"required"`
	HostName    string `json:"hostName" binding:"required"`
	Title       string `json:"title"`
	ClassroomID string `json:"classroomId"`
}

type meetingResponse struct {
	MeetingID   string             `json:"meetingId"`
	MeetingCode string             `json:"meetingCode"`
	Title       string             `json:"title,omitempty"`
	Host        domain.Participant `json:"host"`
	Active      bool               `json:"active"`
	IsClassroom bool               `json:"isClassroomMeeting"`
}

func toResponse(m *domain.Meeting) meetingResponse {
	return meetingResponse{
		MeetingID:   string(m.ID),
		MeetingCode: string(m.Code),
		Title:       m.Title,
		Host:        m.Host,
		Active:      m.Active,
		IsClassroom: m.IsClassroom,
	}
}

func (mc *meetingController) createClassroomMeeting(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ClassroomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "classroomId required"})
		return
	}
	host, err := domain.NewParticipant(domain.UserID(req.HostUserID), req.HostName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := mc.svc.CreateClassroomMeeting(c.Request.Context(), req.ClassroomID, *host, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(m))
}

func (mc *meetingController) createNormalMeeting(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	host, err := domain.NewParticipant(domain.UserID(req.HostUserID), req.HostName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := mc.svc.CreateNormalMeeting(c.Request.Context(), *host, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(m))
}

type joinRequest struct {
	MeetingCode string `json:"meetingCode" binding:"required"`
	UserID      string `json:"userId" binding:"required"`
}

func (mc *meetingController) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	grant, err := mc.svc.Join(c.Request.Context(),
		domain.MeetingCode(req.MeetingCode), domain.UserID(req.UserID))
	if errors.Is(err, meetings.ErrMeetingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, grant)
}

func (mc *meetingController) end(c *gin.Context) {
	code := c.Query("meetingCode")
	userID := c.Query("userId")
	if code == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meetingCode and userId required"})
		return
	}
	err := mc.svc.End(c.Request.Context(), domain.MeetingCode(code), domain.UserID(userID))
	switch {
	case errors.Is(err, meetings.ErrMeetingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, meetings.ErrNotHost):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		log.Info().Str("module", "httpapi").Str("code", code).Msg("meeting end requested")
		c.Status(http.StatusOK)
	}
}

func (mc *meetingController) status(c *gin.Context) {
	code := c.Param("code")
	m, err := mc.svc.ActiveByCode(c.Request.Context(), domain.MeetingCode(code))
	if errors.Is(err, meetings.ErrMeetingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := toResponse(m)
	c.JSON(http.StatusOK, gin.H{
		"meeting":   resp,
		"attending": mc.hub.Rooms()[code],
	})
}
