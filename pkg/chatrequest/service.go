package chatrequest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ideahub/pkg/conversation"
	"ideahub/pkg/identity"
	"ideahub/pkg/realtime"
	"ideahub/pkg/sendemail"
)

type RequestService interface {
	RequestChat(ctx context.Context, actor identity.Identity, contextID, contextTitle, ownerID string) (Outcome, error)
	Respond(ctx context.Context, actor identity.Identity, requestID string, accept bool) (Request, error)
	ListIncoming(ctx context.Context, ownerID string) ([]Request, error)
}

type requestService struct {
	repo          RequestRepository
	conversations conversation.ConversationService
	identities    identity.Provider
	email         sendemail.EmailService
	bus           realtime.Publisher
	logger        *log.Logger
}

func NewRequestService(repo RequestRepository, conversations conversation.ConversationService,
	identities identity.Provider, email sendemail.EmailService, bus realtime.Publisher) RequestService {
	return &requestService{
		repo:          repo,
		conversations: conversations,
		identities:    identities,
		email:         email,
		bus:           bus,
		logger:        log.New(log.Writer(), "[chatrequest] ", log.LstdFlags),
	}
}

// RequestChat implements the consent protocol that must precede a
// conversation. The deterministic id makes the duplicate check a plain read;
// the insert's unique violation covers the remaining race window.
func (s *requestService) RequestChat(ctx context.Context, actor identity.Identity, contextID, contextTitle, ownerID string) (Outcome, error) {
	if err := identity.Gate(actor); err != nil {
		return Outcome{}, err
	}
	if actor.ID == ownerID {
		return Outcome{}, ErrSelfChat
	}

	id := RequestID(contextID, actor.ID, ownerID)

	existing, err := s.repo.GetRequest(ctx, id)
	switch {
	case err == nil:
		switch existing.Status {
		case StatusAccepted:
			// Idempotent open: no write, hand back the conversation.
			convID := ""
			if existing.ConversationID != nil {
				convID = *existing.ConversationID
			}
			return Outcome{Status: StatusAccepted, ConversationID: convID}, nil
		case StatusPending:
			return Outcome{}, ErrDuplicateRequest
		case StatusRejected:
			req, err := s.repo.Resend(ctx, id)
			if err != nil {
				return Outcome{}, err
			}
			s.notifyOwner(ctx, req)
			return Outcome{Status: StatusPending, Resent: true}, nil
		}
		return Outcome{}, fmt.Errorf("unknown request status %q", existing.Status)
	case errors.Is(err, ErrNotFound):
		req, err := s.repo.InsertPending(ctx, Request{
			ID:            id,
			ContextID:     contextID,
			ContextTitle:  contextTitle,
			RequesterID:   actor.ID,
			RequesterName: actor.DisplayName,
			OwnerID:       ownerID,
		})
		if err != nil {
			return Outcome{}, err
		}
		s.notifyOwner(ctx, req)
		return Outcome{Status: StatusPending}, nil
	default:
		return Outcome{}, err
	}
}

// Respond handles accept/reject. Only the owner may respond, and only while
// the request is still pending. Accept creates the conversation idempotently
// before the request is marked, so a crash between the two writes is repaired
// by a retry.
func (s *requestService) Respond(ctx context.Context, actor identity.Identity, requestID string, accept bool) (Request, error) {
	if actor.ID == "" {
		return Request{}, identity.ErrIdentityUnavailable
	}

	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.OwnerID != actor.ID {
		return Request{}, identity.ErrNotAuthorized
	}
	if req.Status != StatusPending {
		return Request{}, ErrAlreadyHandled
	}

	if accept {
		conv, err := s.conversations.Open(ctx, req.ContextID, req.RequesterID, req.OwnerID)
		if err != nil {
			return Request{}, err
		}
		req, err = s.repo.MarkAccepted(ctx, requestID, conv.ID)
		if err != nil {
			return Request{}, err
		}
	} else {
		req, err = s.repo.MarkRejected(ctx, requestID)
		if err != nil {
			return Request{}, err
		}
	}

	s.bus.Publish(ctx, realtime.UserStream(req.RequesterID), realtime.Event{Type: "request", Payload: req})
	return req, nil
}

func (s *requestService) ListIncoming(ctx context.Context, ownerID string) ([]Request, error) {
	return s.repo.ListPendingForOwner(ctx, ownerID)
}

// notifyOwner pushes the live event and a best-effort email. Failures are
// logged, never returned: the durable request record is the source of truth.
func (s *requestService) notifyOwner(ctx context.Context, req Request) {
	s.bus.Publish(ctx, realtime.UserStream(req.OwnerID), realtime.Event{Type: "request", Payload: req})

	if s.email == nil {
		return
	}
	owner, err := s.identities.Resolve(ctx, req.OwnerID)
	if err != nil {
		s.logger.Printf("resolve owner %s for email: %v", req.OwnerID, err)
		return
	}

	name := req.RequesterName
	if name == "" {
		name = "Someone"
	}
	subject := fmt.Sprintf("%s wants to chat about %q", name, req.ContextTitle)
	body := fmt.Sprintf("%s sent you a chat request about your idea %q. Open your requests to accept or reject it.", name, req.ContextTitle)
	if err := s.email.SendEmail(subject, owner.Email, body, "<p>"+body+"</p>"); err != nil {
		s.logger.Printf("request email to %s: %v", owner.Email, err)
	}
}
