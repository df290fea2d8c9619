package audit

import (
	"fmt"
	"strings"
)

// Status is the registration lifecycle shared by every persisted entity.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusDeleted  Status = "DELETED"
)

// LabelContext selects the wording used when a status is shown to people.
type LabelContext int

const (
	// LabelListing is used in grids and filters.
	LabelListing LabelContext = iota
	// LabelHistory is used in audit trails, where the status reads as an event.
	LabelHistory
	// LabelFeminine agrees with feminine nouns such as "empresa".
	LabelFeminine
)

var labels = map[LabelContext]map[Status]string{
	LabelListing: {
		StatusActive:   "Ativo",
		StatusInactive: "Inativo",
		StatusDeleted:  "Lixeira",
	},
	LabelHistory: {
		StatusActive:   "Ativado",
		StatusInactive: "Inativado",
		StatusDeleted:  "Excluído",
	},
	LabelFeminine: {
		StatusActive:   "Ativa",
		StatusInactive: "Inativa",
		StatusDeleted:  "Excluída",
	},
}

// ParseStatus accepts the persisted name in any case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("audit: unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeleted:
		return true
	}
	return false
}

// Label returns the display text for s in the given context.
func (s Status) Label(ctx LabelContext) string {
	if byStatus, ok := labels[ctx]; ok {
		if l, ok := byStatus[s]; ok {
			return l
		}
	}
	return string(s)
}
