package service

import (
	"context"
	"fmt"

	"rentals/internal/domain"
	"rentals/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.UserRepository
	logger *zerolog.Logger
}

func NewUserService(repo domain.UserRepository, logger *zerolog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

func (s *UserService) CreateUser(ctx context.Context, user *models.User) error {
	if err := validateStruct(user); err != nil {
		return err
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", user.ID).Msg("user created")
	return nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// LinkTelegram stores the chat that receives the user's alert pushes.
func (s *UserService) LinkTelegram(ctx context.Context, sess *models.Session, chatID int64) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if chatID == 0 {
		return fmt.Errorf("%w: telegram chat id is required", ErrInvalidInput)
	}
	return s.repo.UpdateUserTelegram(ctx, sess.UserID, chatID)
}
