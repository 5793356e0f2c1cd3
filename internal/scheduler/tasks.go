package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TaskAppointmentReminder = "appointments.reminder"

// AppointmentReminderPayload identifies the appointment and the start time the
// reminder was computed from. A reschedule produces a new start time, so stale
// tasks can recognise themselves.
type AppointmentReminderPayload struct {
	AppointmentID string    `json:"appointmentId"`
	StartTime     time.Time `json:"startTime"`
}

// ReminderTaskID is the asynq task id for a reminder. Scheduling the same
// appointment and start time twice yields the same id.
func ReminderTaskID(payload AppointmentReminderPayload) string {
	return fmt.Sprintf("reminder:%s:%d", payload.AppointmentID, payload.StartTime.Unix())
}

func NewAppointmentReminderTask(payload AppointmentReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAppointmentReminder, data), nil
}

func ParseAppointmentReminderPayload(task *asynq.Task) (AppointmentReminderPayload, error) {
	var payload AppointmentReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AppointmentReminderPayload{}, err
	}
	return payload, nil
}
