package store

import (
	"context"
	"fmt"
	"strings"

	"quickping/internal/models"
	"quickping/internal/pubsub"

	"github.com/google/uuid"
)

// ContactInput carries the editable contact fields.
type ContactInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	PhotoURL    string `json:"photo_url"`
}

func (s *Store) validateContact(in ContactInput) (ContactInput, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" && in.LastName == "" {
		return in, models.Invalid("name", "first or last name is required")
	}
	if s.phones != nil {
		phone, err := s.phones.Canonical(in.PhoneNumber)
		if err != nil {
			return in, err
		}
		in.PhoneNumber = phone
	}
	if in.PhoneNumber == "" {
		return in, models.Invalid("phone_number", "is required")
	}
	return in, nil
}

func (s *Store) CreateContact(ctx context.Context, actor string, in ContactInput) (models.Contact, error) {
	if actor == "" {
		return models.Contact{}, ErrNotOwner
	}
	in, err := s.validateContact(in)
	if err != nil {
		return models.Contact{}, err
	}

	c := models.Contact{
		ID:          uuid.NewString(),
		OwnerID:     actor,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PhoneNumber: in.PhoneNumber,
		PhotoURL:    in.PhotoURL,
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return models.Contact{}, fmt.Errorf("create contact: %w", err)
	}

	s.publish(topicContacts, actor)
	return c, nil
}

func (s *Store) UpdateContact(ctx context.Context, actor, id string, in ContactInput) (models.Contact, error) {
	c, err := s.Contact(ctx, id)
	if err != nil {
		return models.Contact{}, err
	}
	if c.OwnerID != actor {
		return models.Contact{}, ErrNotOwner
	}
	in, err = s.validateContact(in)
	if err != nil {
		return models.Contact{}, err
	}

	c.FirstName = in.FirstName
	c.LastName = in.LastName
	c.PhoneNumber = in.PhoneNumber
	c.PhotoURL = in.PhotoURL
	if err := s.db.WithContext(ctx).Save(&c).Error; err != nil {
		return models.Contact{}, fmt.Errorf("update contact %s: %w", id, err)
	}

	s.publish(topicContacts, actor)
	return c, nil
}

// DeleteContact removes the contact row only. Lists that embed it are pruned
// by the next reconciliation pass.
func (s *Store) DeleteContact(ctx context.Context, actor, id string) error {
	c, err := s.Contact(ctx, id)
	if err != nil {
		return err
	}
	if c.OwnerID != actor {
		return ErrNotOwner
	}
	if err := s.db.WithContext(ctx).Delete(&models.Contact{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete contact %s: %w", id, err)
	}

	s.publish(topicContacts, actor)
	return nil
}

func (s *Store) Contact(ctx context.Context, id string) (models.Contact, error) {
	var c models.Contact
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	return c, notFound(err)
}

// Contacts is a point-in-time query ordered by creation time.
func (s *Store) Contacts(ctx context.Context, f Filter) ([]models.Contact, error) {
	var contacts []models.Contact
	err := f.apply(s.db.WithContext(ctx)).Order("created_at ASC, id ASC").Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	return contacts, nil
}

// ContactsByIDs returns the subset of ids that still exist, in creation order.
func (s *Store) ContactsByIDs(ctx context.Context, ids []string) ([]models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var contacts []models.Contact
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at ASC, id ASC").Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("query contacts by id: %w", err)
	}
	return contacts, nil
}

// SubscribeContacts delivers the filtered contacts now and after every
// matching write until the subscription is cancelled.
func (s *Store) SubscribeContacts(f Filter, fn func(Snapshot[models.Contact])) (*pubsub.Subscription, error) {
	return s.subscribe(topicContacts, f, func(ctx context.Context) {
		items, err := s.Contacts(ctx, f)
		if err != nil && ctx.Err() != nil {
			return
		}
		fn(Snapshot[models.Contact]{Items: items, Err: err})
	})
}
