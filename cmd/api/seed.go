package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"rentals/internal/database"
	"rentals/internal/domain"
	"rentals/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedProperty struct {
	OwnerEmail      string `yaml:"owner_email"`
	models.Property `yaml:",inline"`
}

type seedFile struct {
	Users      []models.User  `yaml:"users"`
	Properties []seedProperty `yaml:"properties"`
}

func loadSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &seed, nil
}

type seedUsers interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// seedFromFile loads demo users and listings. Listings are only created for
// owners that did not exist before, so reruns add nothing.
func seedFromFile(ctx context.Context, path string, users seedUsers, properties domain.PropertyService, logger *zerolog.Logger) error {
	seed, err := loadSeed(path)
	if err != nil {
		return err
	}

	fresh := make(map[string]int64)
	for i := range seed.Users {
		u := seed.Users[i]
		err := users.CreateUser(ctx, &u)
		if errors.Is(err, database.ErrDuplicate) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		fresh[strings.ToLower(strings.TrimSpace(u.Email))] = u.ID
	}

	created := 0
	for i := range seed.Properties {
		sp := seed.Properties[i]
		owner, err := users.GetUserByEmail(ctx, sp.OwnerEmail)
		if err != nil {
			return fmt.Errorf("seed property %q owner: %w", sp.Title, err)
		}
		if _, ok := fresh[owner.Email]; !ok {
			continue
		}
		p := sp.Property
		if err := properties.CreateProperty(ctx, &models.Session{UserID: owner.ID}, &p); err != nil {
			return fmt.Errorf("seed property %q: %w", sp.Title, err)
		}
		created++
	}

	logger.Info().Int("users", len(fresh)).Int("properties", created).Str("seed_path", path).Msg("seed applied")
	return nil
}
