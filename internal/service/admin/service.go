package admin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
	"github.com/kirinyoku/seatswap/internal/uow"
)

// TokenIssuer signs access tokens for members.
type TokenIssuer interface {
	Issue(memberID int64) (string, time.Time, error)
}

type Service struct {
	store  repository.Store
	tokens TokenIssuer
	uow    *uow.UoW
}

func New(store repository.Store, tokens TokenIssuer) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		uow:    uow.NewUoW(store),
	}
}

// CreateEvent schedules an event tickets can be listed for.
//
// Parameters:
//   - ctx: request-scoped context.
//   - e: the event; Number must be unique.
//
// Returns:
//   - int64: the created event ID on success.
//   - error: admin.ErrEventConflict if the number is taken.
func (s *Service) CreateEvent(ctx context.Context, e domain.Event) (int64, error) {
	const op = "service.admin.CreateEvent"

	e.Number = strings.TrimSpace(e.Number)
	if e.Number == "" || e.StartsAt.IsZero() {
		return 0, fmt.Errorf("%s:%w: number and starts_at are required", op, ErrInvalidInput)
	}

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		var err error
		id, err = tx.Events().Create(ctx, &e)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrEventConflict)
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	})

	return id, err
}

// CreateMember registers a member by email.
func (s *Service) CreateMember(ctx context.Context, name, email string) (int64, error) {
	const op = "service.admin.CreateMember"

	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return 0, fmt.Errorf("%s:%w: %v", op, ErrInvalidInput, err)
	}

	var id int64
	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		var err error
		id, err = tx.Members().Create(ctx, &domain.Member{
			Name:      strings.TrimSpace(name),
			Email:     strings.ToLower(addr.Address),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrMemberConflict)
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	})

	return id, err
}

func (s *Service) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	const op = "service.admin.GetMember"

	m, err := s.store.Members().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrMemberNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return m, nil
}

// IssueToken signs a bearer token for an existing member.
func (s *Service) IssueToken(ctx context.Context, memberID int64) (string, time.Time, error) {
	const op = "service.admin.IssueToken"

	if _, err := s.GetMember(ctx, memberID); err != nil {
		return "", time.Time{}, err
	}

	tok, exp, err := s.tokens.Issue(memberID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s:%w", op, err)
	}

	return tok, exp, nil
}
