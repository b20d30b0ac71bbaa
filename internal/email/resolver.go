package email

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/internal/repository"
)

// RecipientResolver maps an alert's recipient user to an email address.
// Lookups, including misses, are cached for ttl.
type RecipientResolver struct {
	users repository.UserRepository
	cache *gocache.Cache
}

// NewRecipientResolver starts a janitor goroutine that runs for the life of
// the process.
func NewRecipientResolver(users repository.UserRepository, ttl time.Duration) *RecipientResolver {
	return &RecipientResolver{
		users: users,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// ResolveEmail returns "" without error when the alert has no recipient or
// the user has no address.
func (r *RecipientResolver) ResolveEmail(ctx context.Context, alert *model.Alert) (string, error) {
	if alert.RecipientID == nil || *alert.RecipientID == "" {
		return "", nil
	}
	id := *alert.RecipientID

	if v, ok := r.cache.Get(id); ok {
		return v.(string), nil
	}

	user, err := r.users.Get(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		r.cache.SetDefault(id, "")
		return "", nil
	case err != nil:
		return "", err
	}

	r.cache.SetDefault(id, user.Email)
	return user.Email, nil
}
