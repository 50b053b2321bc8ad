package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/healthlink/healthlink-backend/internal/common"
	"github.com/healthlink/healthlink-backend/internal/models"
	"gorm.io/gorm"
)

type createAppointmentReq struct {
	DoctorProfileID uint64 `json:"doctor_profile_id" binding:"required"`
	ScheduledAt     string `json:"scheduled_at" binding:"required"` // RFC3339
	Reason          string `json:"reason"`
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ident, err := h.Ids.Resolve(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if ident.Role != models.RolePatient {
		common.Fail(c, http.StatusForbidden, 40301, "only patients can book appointments")
		return
	}

	var req createAppointmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	when, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10006, "scheduled_at must be RFC3339")
		return
	}
	if when.Before(time.Now()) {
		common.Fail(c, http.StatusBadRequest, 10007, "scheduled_at must be in the future")
		return
	}

	var doctor models.DoctorProfile
	if err := h.DB.First(&doctor, req.DoctorProfileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "doctor not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	appt := models.Appointment{
		PatientID:   ident.ProfileID,
		DoctorID:    doctor.ID,
		ScheduledAt: when,
		Reason:      req.Reason,
		Status:      models.AppointmentPending,
	}
	if err := h.DB.Create(&appt).Error; err != nil {
		failInternal(c, "failed to create appointment")
		return
	}

	h.notifyAppointment(c, &appt, "Appointment requested",
		fmt.Sprintf("A new appointment was requested for %s.", when.Format(time.RFC1123)))

	common.Created(c, gin.H{"appointment": appt})
}

func (h *Handler) ListAppointments(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ident, err := h.Ids.Resolve(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	q := h.DB.Order("scheduled_at ASC")
	if ident.Role == models.RolePatient {
		q = q.Where("patient_id = ?", ident.ProfileID)
	} else {
		q = q.Where("doctor_id = ?", ident.ProfileID)
	}

	var appts []models.Appointment
	if err := q.Find(&appts).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{"appointments": appts})
}

type updateAppointmentStatusReq struct {
	Status models.AppointmentStatus `json:"status" binding:"required"`
}

func (h *Handler) UpdateAppointmentStatus(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid appointment id")
		return
	}

	var req updateAppointmentStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ident, err := h.Ids.Resolve(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var appt models.Appointment
	if err := h.DB.First(&appt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "appointment not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	isParty := (ident.Role == models.RolePatient && appt.PatientID == ident.ProfileID) ||
		(ident.Role == models.RoleDoctor && appt.DoctorID == ident.ProfileID)
	if !isParty {
		common.Fail(c, http.StatusForbidden, 40302, "not your appointment")
		return
	}
	if !appt.CanTransition(ident.Role, req.Status) {
		common.Fail(c, http.StatusBadRequest, 10008,
			fmt.Sprintf("cannot move %s appointment to %s as %s", appt.Status, req.Status, ident.Role))
		return
	}

	if err := h.DB.Model(&appt).Update("status", req.Status).Error; err != nil {
		failInternal(c, "failed to update appointment")
		return
	}
	appt.Status = req.Status

	h.notifyAppointment(c, &appt, "Appointment "+string(req.Status),
		fmt.Sprintf("Your appointment on %s is now %s.", appt.ScheduledAt.Format(time.RFC1123), req.Status))

	common.OK(c, gin.H{"appointment": appt})
}

// notifyAppointment emails both parties of the appointment. Conversation
// history, if any, is untouched by status changes — cancellations do not
// cascade.
func (h *Handler) notifyAppointment(c *gin.Context, appt *models.Appointment, subject, body string) {
	ctx := c.Request.Context()
	for _, who := range []struct {
		role      models.Role
		profileID uint64
	}{
		{models.RolePatient, appt.PatientID},
		{models.RoleDoctor, appt.DoctorID},
	} {
		userID, err := h.Ids.UserIDForProfile(ctx, who.profileID, who.role)
		if err != nil {
			continue
		}
		var user models.User
		if err := h.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
			continue
		}
		h.enqueueNotification(ctx, &user, subject, "Hello "+user.DisplayName+",\n\n"+body+"\n\nHealthLink\n")
	}
}
