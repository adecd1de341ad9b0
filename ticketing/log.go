package ticketing

import "event-escrow/models"

// NotificationLog is the append-only record of committed notifications.
type NotificationLog struct {
	entries []models.Notification
}

func (l *NotificationLog) append(n models.Notification) models.Notification {
	n.Seq = uint64(len(l.entries))
	n.Topic = n.Kind.Topic()
	l.entries = append(l.entries, n)
	return n
}

// since returns the entries with Seq >= from.
func (l *NotificationLog) since(from uint64) []models.Notification {
	if from >= uint64(len(l.entries)) {
		return nil
	}
	out := make([]models.Notification, len(l.entries)-int(from))
	copy(out, l.entries[from:])
	return out
}
