package models

import "time"

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentApproved  AppointmentStatus = "approved"
	AppointmentRejected  AppointmentStatus = "rejected"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

type Appointment struct {
	ID          uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	PatientID   uint64            `gorm:"index;not null" json:"patient_id"`
	DoctorID    uint64            `gorm:"index;not null" json:"doctor_id"`
	ScheduledAt time.Time         `gorm:"index;not null" json:"scheduled_at"`
	Reason      string            `gorm:"type:text" json:"reason"`
	Status      AppointmentStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (Appointment) TableName() string { return "appointments" }

// transitions maps a current status to the statuses it may move to, keyed by the
// role allowed to perform the move. Cancellation keeps the conversation (if any)
// readable; nothing cascades.
var transitions = map[AppointmentStatus]map[Role][]AppointmentStatus{
	AppointmentPending: {
		RoleDoctor:  {AppointmentApproved, AppointmentRejected},
		RolePatient: {AppointmentCancelled},
	},
	AppointmentApproved: {
		RoleDoctor:  {AppointmentCompleted},
		RolePatient: {AppointmentCancelled},
	},
}

func (a *Appointment) CanTransition(by Role, to AppointmentStatus) bool {
	for _, s := range transitions[a.Status][by] {
		if s == to {
			return true
		}
	}
	return false
}
