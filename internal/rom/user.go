package rom

import (
	"fmt"
	"sync"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

// UserService resolves allow-listed usernames to users, creating each user
// with a fresh bucket on first access.
type UserService struct {
	db      EntityStore
	mounts  *MountService
	allowed map[string]struct{}
	logger  Logger

	mu sync.Mutex
}

// NewUserService creates a UserService for the given allow-list.
func NewUserService(db EntityStore, mounts *MountService, usernames []string, logger Logger) *UserService {
	allowed := make(map[string]struct{}, len(usernames))
	for _, name := range usernames {
		if name != "" {
			allowed[name] = struct{}{}
		}
	}
	return &UserService{db: db, mounts: mounts, allowed: allowed, logger: logger}
}

// IsValid reports whether username is allow-listed.
func (s *UserService) IsValid(username string) bool {
	_, ok := s.allowed[username]
	return ok
}

// GetUser returns the user, creating it on first access.
func (s *UserService) GetUser(username string) (model.User, error) {
	if !s.IsValid(username) {
		return model.User{}, fmt.Errorf("user %q: %w", username, ErrUnknownUser)
	}
	if user, ok := Get[model.User](s.db, username); ok {
		return user, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := Get[model.User](s.db, username); ok {
		return user, nil
	}
	bucket, err := s.mounts.CreateBucketMount()
	if err != nil {
		return model.User{}, fmt.Errorf("creating bucket: %w", err)
	}
	user := model.User{
		Username:      username,
		BucketMountID: bucket.ID,
		BurnState:     model.BurnOpen,
	}
	if err := Save(s.db, user); err != nil {
		return model.User{}, fmt.Errorf("saving user: %w", err)
	}
	s.logger.Info("user created", "user", username, "mount", bucket.ID)
	return user, nil
}
