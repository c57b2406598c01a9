package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/repository"
)

// SubscriptionStore is the persistence a Sender needs to look up and prune
// stored browser subscriptions.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]repository.PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
}

// Sender delivers Web Push notifications to every stored subscription of a
// user. With empty VAPID keys it is a no-op, so callers never need to guard.
type Sender struct {
	subs    SubscriptionStore
	options *webpush.Options
}

func NewSender(subs SubscriptionStore, keys *VAPIDKeys, subscriber string) *Sender {
	s := &Sender{subs: subs}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		s.options = &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             60,
		}
	}
	return s
}

// Notify fans the notification out to every subscription of userID in the
// background. Errors are logged, never returned; a 404/410 from the push
// service prunes the stale subscription. The caller's ctx is not used for
// delivery, so request cancellation cannot drop notifications mid-flight.
func (s *Sender) Notify(_ context.Context, userID, title, body string, data map[string]string) {
	if s.options == nil {
		return
	}
	go s.deliver(userID, title, body, data)
}

func (s *Sender) deliver(userID, title, body string, data map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		logger.Errorf("push list subscriptions user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload, _ := json.Marshal(map[string]any{"title": title, "body": body, "data": data})
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, s.options)
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			if err := s.subs.Delete(ctx, sub.Endpoint); err != nil {
				logger.Errorf("push prune endpoint: %v", err)
			}
		}
	}
}
