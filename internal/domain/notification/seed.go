package notification

import "time"

// DemoNotifications returns the inbox the dashboard starts with, newest first
func DemoNotifications(userID string, now time.Time) []Notification {
	return []Notification{
		{
			ID:        "notif-1",
			UserID:    userID,
			Title:     "Prescription Ready",
			Message:   "Your Lisinopril prescription is ready for pickup.",
			Type:      TypePrescription,
			CreatedAt: now,
		},
		{
			ID:        "notif-2",
			UserID:    userID,
			Title:     "Urgent Refill Needed",
			Message:   "Your Metformin prescription will run out in 3 days. Please request a refill.",
			Type:      TypeRefill,
			Urgent:    true,
			CreatedAt: now,
		},
		{
			ID:        "notif-3",
			UserID:    userID,
			Title:     "Queue Update",
			Message:   "You are next in line for pickup. Please proceed to counter 3.",
			Type:      TypeQueue,
			Read:      true,
			CreatedAt: now.Add(-24 * time.Hour),
		},
	}
}
