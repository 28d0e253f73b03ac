package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/ride-pool/internal/models"
)

// SeedUsers loads a JSON array of users into s. Users whose id already exists
// are left alone, so the same file can be applied on every start. It returns
// the number of users created.
func SeedUsers(ctx context.Context, s UserStore, r io.Reader) (int, error) {
	var users []models.User
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return 0, fmt.Errorf("decode users: %w", err)
	}
	created := 0
	for i := range users {
		u := users[i]
		if strings.TrimSpace(u.Name) == "" || strings.TrimSpace(u.Email) == "" {
			return created, fmt.Errorf("user %d: name and email are required", i)
		}
		if u.ID != "" {
			if !ValidID(u.ID) {
				return created, fmt.Errorf("user %d: invalid id %q", i, u.ID)
			}
			_, err := s.GetUser(ctx, u.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return created, err
			}
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		if err := s.CreateUser(ctx, &u); err != nil {
			return created, fmt.Errorf("user %d: %w", i, err)
		}
		created++
	}
	return created, nil
}
