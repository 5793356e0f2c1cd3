package directory

import (
	"context"
	"sort"
	"strings"

	"faculty_meetings_backend/platform/apperr"

	"github.com/redis/go-redis/v9"
)

const facultySetKey = "directory:faculty"

// FacultyStore is the set of user ids that count as faculty for approvals.
type FacultyStore struct {
	rdb *redis.Client
}

func NewFacultyStore(rdb *redis.Client) *FacultyStore {
	return &FacultyStore{rdb: rdb}
}

// IsFaculty reports whether userID is in the faculty set.
func (s *FacultyStore) IsFaculty(ctx context.Context, userID string) (bool, error) {
	return s.rdb.SIsMember(ctx, facultySetKey, userID).Result()
}

// Add puts the given ids in the faculty set.
func (s *FacultyStore) Add(ctx context.Context, userIDs ...string) error {
	members := make([]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return apperr.Validation("faculty user id must not be blank")
		}
		members = append(members, id)
	}
	if len(members) == 0 {
		return nil
	}
	return s.rdb.SAdd(ctx, facultySetKey, members...).Err()
}

func (s *FacultyStore) Remove(ctx context.Context, userID string) error {
	return s.rdb.SRem(ctx, facultySetKey, userID).Err()
}

// List returns all faculty ids in lexical order.
func (s *FacultyStore) List(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, facultySetKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}
