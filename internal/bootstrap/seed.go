package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"anoa.com/drawsocial/internal/entity"
	profileRepo "anoa.com/drawsocial/internal/modules/profile/repository"
	"anoa.com/drawsocial/pkg/apperror"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Profile{},
		&entity.Notification{},
	)
}

type demoUser struct {
	id, handle, first, last string
}

var demoUsers = []demoUser{
	{"demo-ada", "ada", "Ada", "Lovelace"},
	{"demo-grace", "grace", "Grace", "Hopper"},
	{"demo-linus", "linus", "Linus", "Torvalds"},
	{"demo-margaret", "margaret", "Margaret", "Hamilton"},
}

// SeedDemoUsers creates a few accounts for local development. Existing ids
// are left alone. It returns the users it created.
func SeedDemoUsers(ctx context.Context, repo profileRepo.UserRepository, logger *slog.Logger) ([]entity.User, error) {
	var created []entity.User
	for _, d := range demoUsers {
		_, err := repo.FindByID(ctx, d.id)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return created, err
		}

		user := &entity.User{ID: d.id, Handle: d.handle}
		profile := &entity.Profile{FirstName: d.first, LastName: d.last, DisplayName: d.handle}
		if err := repo.Create(ctx, user, profile); err != nil {
			return created, err
		}
		user.Profile = profile
		created = append(created, *user)
	}

	if len(created) > 0 {
		logger.Info("demo users seeded", slog.Int("count", len(created)))
	}
	return created, nil
}
