package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/model"
	"github.com/campusmarket/internal/ws"
)

// ChatStore is the chat persistence the deal lifecycle needs.
type ChatStore interface {
	GetForParticipant(ctx context.Context, chatID, requesterID string) (*model.Chat, error)
	UpdateDealState(ctx context.Context, chatID string, state model.DealState, buyerRequested bool) error
	Delete(ctx context.Context, chatID string) error
}

// MessageStore persists the system messages the lifecycle emits.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
}

// Publisher fans lifecycle events out over the push channel. Delivery is
// fire-and-forget; participants with no live connection see the change on
// their next pull.
type Publisher interface {
	SendToUser(userID string, msg ws.OutgoingMessage)
	SendToChat(chatID string, msg ws.OutgoingMessage)
}

// DealService owns every transition of the deal state machine behind a chat.
// Buyer and seller observations are reconciled here and nowhere else.
type DealService struct {
	chats    ChatStore
	messages MessageStore
	pub      Publisher
}

func NewDealService(chats ChatStore, messages MessageStore, pub Publisher) *DealService {
	return &DealService{chats: chats, messages: messages, pub: pub}
}

// CompletionResult reports what a complete-payment call did.
type CompletionResult struct {
	Chat      *model.Chat `json:"chat"`
	Completed bool        `json:"completed"`
}

// RequestCompletion applies the complete-payment action for the calling
// participant. A seller call is authoritative and completes the deal
// immediately, regardless of whether the buyer asked first. A buyer call
// records the request, drops a system message into the chat and notifies the
// seller; repeating it changes nothing.
func (s *DealService) RequestCompletion(ctx context.Context, chatID, actorID string) (*CompletionResult, error) {
	defer logger.DeferLogDuration("deal.RequestCompletion", time.Now())()

	chat, err := s.chats.GetForParticipant(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}

	actor := model.ActorBuyer
	if actorID == chat.SellerID {
		actor = model.ActorSeller
	}

	next, err := chat.DealState.NextOnCompletionRequest(actor)
	if err != nil {
		return nil, err
	}

	if actor == model.ActorBuyer && chat.BuyerRequestedCompletion {
		// Repeated buyer request: no state change, no new system message.
		return &CompletionResult{Chat: chat, Completed: false}, nil
	}

	buyerRequested := chat.BuyerRequestedCompletion || actor == model.ActorBuyer
	if err := s.chats.UpdateDealState(ctx, chatID, next, buyerRequested); err != nil {
		return nil, fmt.Errorf("deal.RequestCompletion update: %w", err)
	}
	chat.DealState = next
	chat.BuyerRequestedCompletion = buyerRequested

	if actor == model.ActorSeller {
		payload := ws.DealCompletedPayload{ChatID: chatID, PaymentCompleted: true}
		s.pub.SendToUser(chat.BuyerID, ws.OutgoingMessage{Type: ws.EventDealCompleted, Payload: payload})
		s.pub.SendToUser(chat.SellerID, ws.OutgoingMessage{Type: ws.EventDealCompleted, Payload: payload})
		return &CompletionResult{Chat: chat, Completed: true}, nil
	}

	sys := &model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  actorID,
		Body:      "Buyer has marked the payment as completed. Please confirm to close the deal.",
		IsSystem:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, sys); err != nil {
		// The state change already landed; the system message is best effort.
		logger.Errorf("deal.RequestCompletion system message chat=%s: %v", chatID, err)
	} else {
		s.pub.SendToChat(chatID, ws.OutgoingMessage{Type: ws.EventNewMessage, Payload: sys})
	}

	s.pub.SendToUser(chat.BuyerID, ws.OutgoingMessage{Type: ws.EventChatUpdated, Payload: chat})
	s.pub.SendToUser(chat.SellerID, ws.OutgoingMessage{Type: ws.EventChatUpdated, Payload: chat})
	return &CompletionResult{Chat: chat, Completed: false}, nil
}

// Cancel tears the chat down for either participant. The chat row and its
// messages are removed and both sides are told to drop it from their views.
// A completed deal cannot be cancelled.
func (s *DealService) Cancel(ctx context.Context, chatID, actorID string) error {
	defer logger.DeferLogDuration("deal.Cancel", time.Now())()

	chat, err := s.chats.GetForParticipant(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if _, err := chat.DealState.NextOnCancel(); err != nil {
		return err
	}
	if err := s.chats.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("deal.Cancel delete: %w", err)
	}

	payload := ws.ChatDeletedPayload{ChatID: chatID}
	out := ws.OutgoingMessage{Type: ws.EventChatDeleted, Payload: payload}
	s.pub.SendToChat(chatID, out)
	s.pub.SendToUser(chat.BuyerID, out)
	s.pub.SendToUser(chat.SellerID, out)
	return nil
}

// IsInvalidTransition reports whether err came from acting on a terminal
// deal state, so handlers can map it to a conflict response.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, model.ErrInvalidTransition)
}
