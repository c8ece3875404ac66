package store

import (
	"context"
	"fmt"
	"strings"

	"quickping/internal/models"

	"github.com/google/uuid"
)

type MessageInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func validateMessage(in MessageInput) (MessageInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if strings.TrimSpace(in.Body) == "" {
		return in, models.Invalid("body", "must not be empty")
	}
	return in, nil
}

func (s *Store) CreateMessage(ctx context.Context, actor string, in MessageInput) (models.SavedMessage, error) {
	if actor == "" {
		return models.SavedMessage{}, ErrNotOwner
	}
	in, err := validateMessage(in)
	if err != nil {
		return models.SavedMessage{}, err
	}

	m := models.SavedMessage{ID: uuid.NewString(), OwnerID: actor, Title: in.Title, Body: in.Body}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return models.SavedMessage{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (s *Store) UpdateMessage(ctx context.Context, actor, id string, in MessageInput) (models.SavedMessage, error) {
	m, err := s.Message(ctx, id)
	if err != nil {
		return models.SavedMessage{}, err
	}
	if m.OwnerID != actor {
		return models.SavedMessage{}, ErrNotOwner
	}
	in, err = validateMessage(in)
	if err != nil {
		return models.SavedMessage{}, err
	}

	m.Title = in.Title
	m.Body = in.Body
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return models.SavedMessage{}, fmt.Errorf("update message %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) DeleteMessage(ctx context.Context, actor, id string) error {
	m, err := s.Message(ctx, id)
	if err != nil {
		return err
	}
	if m.OwnerID != actor {
		return ErrNotOwner
	}
	if err := s.db.WithContext(ctx).Delete(&models.SavedMessage{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return nil
}

func (s *Store) Message(ctx context.Context, id string) (models.SavedMessage, error) {
	var m models.SavedMessage
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	return m, notFound(err)
}

func (s *Store) Messages(ctx context.Context, f Filter) ([]models.SavedMessage, error) {
	var msgs []models.SavedMessage
	err := f.apply(s.db.WithContext(ctx)).Order("created_at DESC").Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return msgs, nil
}
