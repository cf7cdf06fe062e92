package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

// Common errors for membership operations.
var (
	ErrGroupNotFound = errors.New("group not found")
	ErrInvalidGroup  = errors.New("invalid group")
	ErrNotAMember    = errors.New("user is not a member of this group")
)

// Service resolves and maintains group membership. Lookups are cached for
// ttl; changes made through the Service invalidate the group immediately,
// changes made by other writers become visible once the entry expires.
type Service struct {
	store store.GroupStore
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[int64]cacheEntry
	// gens counts invalidations per group so a lookup that raced with an
	// invalidation does not write its stale result back.
	gens map[int64]uint64
}

type cacheEntry struct {
	members   []int64
	set       map[int64]struct{}
	expiresAt time.Time
}

// New creates a membership service. A zero ttl disables caching.
func New(st store.GroupStore, ttl time.Duration) *Service {
	return &Service{
		store: st,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[int64]cacheEntry),
		gens:  make(map[int64]uint64),
	}
}

// CreateGroup creates the chat group of a project with the instructor as
// its first member.
func (s *Service) CreateGroup(ctx context.Context, projectID int64, name string, instructorID int64) (*store.Group, error) {
	name = strings.TrimSpace(name)
	if projectID <= 0 || instructorID <= 0 || name == "" {
		return nil, ErrInvalidGroup
	}

	group, err := s.store.CreateGroup(ctx, projectID, name)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	if err := s.store.AddMember(ctx, group.ID, instructorID, store.MemberRoleInstructor); err != nil {
		return nil, fmt.Errorf("add instructor: %w", err)
	}

	return group, nil
}

// GetGroup returns the group or ErrGroupNotFound.
func (s *Service) GetGroup(ctx context.Context, groupID int64) (*store.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return group, nil
}

// Accept records an accepted participant, typically driven by the project
// acceptance workflow.
func (s *Service) Accept(ctx context.Context, groupID, userID int64) error {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.store.AddMember(ctx, groupID, userID, store.MemberRoleParticipant); err != nil {
		return fmt.Errorf("accept member: %w", err)
	}
	s.Invalidate(groupID)
	return nil
}

// Remove revokes a participant's membership.
func (s *Service) Remove(ctx context.Context, groupID, userID int64) error {
	ok, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotAMember
	}
	if err := s.store.RemoveMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.Invalidate(groupID)
	return nil
}

// RoleOf returns the user's role in the group, or ErrNotAMember. It reads
// the store directly so a demotion is never hidden by the cache.
func (s *Service) RoleOf(ctx context.Context, groupID, userID int64) (store.MemberRole, error) {
	role, err := s.store.MemberRole(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotAMember
		}
		return "", fmt.Errorf("member role: %w", err)
	}
	return role, nil
}

// MembersOf returns the member IDs of a group. Unknown groups have no members.
func (s *Service) MembersOf(ctx context.Context, groupID int64) ([]int64, error) {
	entry, err := s.lookup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(entry.members))
	copy(out, entry.members)
	return out, nil
}

// IsMember reports whether userID belongs to the group.
func (s *Service) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	entry, err := s.lookup(ctx, groupID)
	if err != nil {
		return false, err
	}
	_, ok := entry.set[userID]
	return ok, nil
}

// Invalidate drops the cached member set of a group.
func (s *Service) Invalidate(groupID int64) {
	s.mu.Lock()
	delete(s.cache, groupID)
	s.gens[groupID]++
	s.mu.Unlock()
}

func (s *Service) lookup(ctx context.Context, groupID int64) (cacheEntry, error) {
	var gen uint64
	if s.ttl > 0 {
		s.mu.Lock()
		entry, ok := s.cache[groupID]
		gen = s.gens[groupID]
		s.mu.Unlock()
		if ok && s.now().Before(entry.expiresAt) {
			return entry, nil
		}
	}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return cacheEntry{}, fmt.Errorf("list members: %w", err)
	}

	entry := cacheEntry{
		members:   members,
		set:       make(map[int64]struct{}, len(members)),
		expiresAt: s.now().Add(s.ttl),
	}
	for _, id := range members {
		entry.set[id] = struct{}{}
	}

	if s.ttl > 0 {
		s.mu.Lock()
		if s.gens[groupID] == gen {
			s.cache[groupID] = entry
		}
		s.mu.Unlock()
	}
	return entry, nil
}
