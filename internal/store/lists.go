package store

import (
	"context"
	"fmt"
	"strings"

	"quickping/internal/models"
	"quickping/internal/pubsub"

	"github.com/google/uuid"
)

// ListInput carries the user-editable list fields.
type ListInput struct {
	Name       string   `json:"name"`
	ContactIDs []string `json:"contact_ids"`
}

func (s *Store) validateListName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", models.Invalid("name", "must not be empty")
	}
	if s.systemName != "" && name == s.systemName {
		return "", models.Invalid("name", fmt.Sprintf("%q is reserved", s.systemName))
	}
	return name, nil
}

// snapshotMembers resolves ids against the current rows so that a saved list
// only ever embeds contacts that exist at write time.
func (s *Store) snapshotMembers(ctx context.Context, ids []string) ([]models.ContactSnapshot, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	contacts, err := s.ContactsByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	members := make([]models.ContactSnapshot, 0, len(unique))
	for _, id := range unique {
		c, ok := byID[id]
		if !ok {
			return nil, models.Invalid("contact_ids", fmt.Sprintf("unknown contact %s", id))
		}
		members = append(members, c.Snapshot())
	}
	return members, nil
}

// CreateList stores a user-authored list. The reserved system name is refused.
func (s *Store) CreateList(ctx context.Context, actor string, in ListInput) (models.ContactList, error) {
	if actor == "" {
		return models.ContactList{}, ErrNotOwner
	}
	name, err := s.validateListName(in.Name)
	if err != nil {
		return models.ContactList{}, err
	}
	members, err := s.snapshotMembers(ctx, in.ContactIDs)
	if err != nil {
		return models.ContactList{}, err
	}

	l := models.ContactList{
		ID:      uuid.NewString(),
		OwnerID: actor,
		Name:    name,
		Members: members,
	}
	if err := s.db.WithContext(ctx).Create(&l).Error; err != nil {
		return models.ContactList{}, fmt.Errorf("create list: %w", err)
	}

	s.publish(topicLists, actor)
	return l, nil
}

// UpdateList renames a user list and re-saves its members, which refreshes
// every embedded snapshot.
func (s *Store) UpdateList(ctx context.Context, actor, id string, in ListInput) (models.ContactList, error) {
	l, err := s.List(ctx, id)
	if err != nil {
		return models.ContactList{}, err
	}
	if l.OwnerID != actor {
		return models.ContactList{}, ErrNotOwner
	}
	if l.IsSystemGenerated {
		return models.ContactList{}, ErrSystemList
	}
	name, err := s.validateListName(in.Name)
	if err != nil {
		return models.ContactList{}, err
	}
	members, err := s.snapshotMembers(ctx, in.ContactIDs)
	if err != nil {
		return models.ContactList{}, err
	}

	l.Name = name
	l.Members = members
	if err := s.db.WithContext(ctx).Save(&l).Error; err != nil {
		return models.ContactList{}, fmt.Errorf("update list %s: %w", id, err)
	}

	s.publish(topicLists, actor)
	return l, nil
}

// DeleteList removes a user list.
func (s *Store) DeleteList(ctx context.Context, actor, id string) error {
	l, err := s.List(ctx, id)
	if err != nil {
		return err
	}
	if l.IsSystemGenerated {
		return ErrSystemList
	}
	return s.PurgeList(ctx, actor, id)
}

// SaveList writes l exactly as given, creating it when l.ID is empty. It is
// the write path of the reconciliation engine and may touch the system list.
func (s *Store) SaveList(ctx context.Context, actor string, l *models.ContactList) error {
	if l.OwnerID != actor || actor == "" {
		return ErrNotOwner
	}
	if l.Members == nil {
		l.Members = []models.ContactSnapshot{}
	}

	db := s.db.WithContext(ctx)
	if l.ID == "" {
		l.ID = uuid.NewString()
		if err := db.Create(l).Error; err != nil {
			return fmt.Errorf("create list: %w", err)
		}
	} else {
		existing, err := s.List(ctx, l.ID)
		if err != nil {
			return err
		}
		if existing.OwnerID != actor {
			return ErrNotOwner
		}
		l.CreatedAt = existing.CreatedAt
		if err := db.Save(l).Error; err != nil {
			return fmt.Errorf("save list %s: %w", l.ID, err)
		}
	}

	s.publish(topicLists, actor)
	return nil
}

// PurgeList deletes any list the actor owns, the system list included.
func (s *Store) PurgeList(ctx context.Context, actor, id string) error {
	l, err := s.List(ctx, id)
	if err != nil {
		return err
	}
	if l.OwnerID != actor {
		return ErrNotOwner
	}
	if err := s.db.WithContext(ctx).Delete(&models.ContactList{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete list %s: %w", id, err)
	}

	s.publish(topicLists, actor)
	return nil
}

func (s *Store) List(ctx context.Context, id string) (models.ContactList, error) {
	var l models.ContactList
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	return l, notFound(err)
}

// Lists is a point-in-time query ordered by creation time.
func (s *Store) Lists(ctx context.Context, f Filter) ([]models.ContactList, error) {
	var lists []models.ContactList
	err := f.apply(s.db.WithContext(ctx)).Order("created_at ASC, id ASC").Find(&lists).Error
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	return lists, nil
}

func (s *Store) SubscribeLists(f Filter, fn func(Snapshot[models.ContactList])) (*pubsub.Subscription, error) {
	return s.subscribe(topicLists, f, func(ctx context.Context) {
		items, err := s.Lists(ctx, f)
		if err != nil && ctx.Err() != nil {
			return
		}
		fn(Snapshot[models.ContactList]{Items: items, Err: err})
	})
}
