// README: Firestore notification feed plus FCM push.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/messaging"

	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

const collection = "notifications"

// FirebaseSink stores each notification in Firestore so clients can read
// their feed, then pushes it over FCM. Users are reached by device token,
// roles by the "role_<name>" topic.
type FirebaseSink struct {
	fs     *firestore.Client
	msg    *messaging.Client
	users  user.Directory
	logger *slog.Logger
}

func NewFirebaseSink(fs *firestore.Client, msg *messaging.Client, users user.Directory, logger *slog.Logger) *FirebaseSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FirebaseSink{fs: fs, msg: msg, users: users, logger: logger}
}

func (s *FirebaseSink) Notify(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = types.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := s.storeFeed(ctx, n); err != nil {
		return err
	}
	if s.msg == nil {
		return nil
	}

	msg := &messaging.Message{
		Data: map[string]string{
			"type":     "notification",
			"id":       string(n.ID),
			"severity": string(n.Severity),
			"job_id":   string(n.JobID),
		},
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if n.Role != "" {
		msg.Topic = RoleTopic(n.Role)
	} else {
		u, err := s.users.Get(ctx, n.UserID)
		if err != nil {
			return err
		}
		if u.DeviceToken == "" {
			// feed entry only
			return nil
		}
		msg.Token = u.DeviceToken
	}

	messageID, err := s.msg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send FCM for notification %s: %w", n.ID, err)
	}
	s.logger.Debug("push sent", slog.String("notification_id", string(n.ID)), slog.String("message_id", messageID))
	return nil
}

// storeFeed writes one document per recipient so each user's feed is a
// single user_id query.
func (s *FirebaseSink) storeFeed(ctx context.Context, n Notification) error {
	if n.UserID != "" {
		if _, err := s.fs.Collection(collection).Doc(string(n.ID)).Set(ctx, n); err != nil {
			return fmt.Errorf("store notification %s: %w", n.ID, err)
		}
		return nil
	}
	recipients, err := Recipients(ctx, s.users, n)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}
	bw := s.fs.BulkWriter(ctx)
	writes := make([]*firestore.BulkWriterJob, 0, len(recipients))
	for _, uid := range recipients {
		entry := n
		entry.UserID = uid
		w, err := bw.Set(s.fs.Collection(collection).Doc(string(n.ID)+"_"+string(uid)), entry)
		if err != nil {
			bw.End()
			return fmt.Errorf("queue notification %s for %s: %w", n.ID, uid, err)
		}
		writes = append(writes, w)
	}
	bw.End()
	for _, w := range writes {
		if _, err := w.Results(); err != nil {
			return fmt.Errorf("store notification %s for role %s: %w", n.ID, n.Role, err)
		}
	}
	return nil
}

func RoleTopic(r user.Role) string {
	return "role_" + string(r)
}
