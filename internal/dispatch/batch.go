package dispatch

import (
	"quickping/internal/models"
)

// Recipient is one target of a dispatch run.
type Recipient struct {
	ContactID   string `json:"contact_id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

func recipientFrom(c models.Contact) Recipient {
	return Recipient{ContactID: c.ID, Name: c.DisplayName(), PhoneNumber: c.PhoneNumber}
}

// Batch is the ordered, deduplicated recipient sequence of one run. It is
// never persisted.
type Batch struct {
	Recipients []Recipient
	Message    string
	Index      int
	Sent       int
	Skipped    int
}

// BuildBatch unions the members of every list, in list order, with the
// individually selected contacts. Each contact id appears once, at its first
// occurrence. fresh, when non-nil, replaces a list's embedded snapshot with
// the current contact record.
func BuildBatch(lists []models.ContactList, contacts []models.Contact, message string, fresh func(id string) (models.Contact, bool)) Batch {
	b := Batch{Message: message}
	seen := make(map[string]bool)

	add := func(c models.Contact) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		b.Recipients = append(b.Recipients, recipientFrom(c))
	}

	for _, l := range lists {
		for _, m := range l.Members {
			c := m.Contact()
			if fresh != nil {
				if cur, ok := fresh(m.ID); ok {
					c = cur
				}
			}
			add(c)
		}
	}
	for _, c := range contacts {
		add(c)
	}
	return b
}

func (b *Batch) current() Recipient {
	return b.Recipients[b.Index]
}

func (b *Batch) hasNext() bool {
	return b.Index+1 < len(b.Recipients)
}

// Summary reports a finished or halted run.
type Summary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

func (b *Batch) summary() Summary {
	return Summary{
		Processed: b.Sent + b.Skipped,
		Sent:      b.Sent,
		Skipped:   b.Skipped,
		Total:     len(b.Recipients),
	}
}
