// Package audit holds the audit envelope mixed into every persisted entity:
// who created, updated, activated, inactivated or deleted it, and when.
package audit

import (
	"strings"
	"time"
)

// Actor is the authenticated principal performing a mutation.
type Actor struct {
	ID        string
	Name      string
	CompanyID string
}

// Valid reports whether the actor carries an identity.
func (a Actor) Valid() bool {
	return strings.TrimSpace(a.ID) != ""
}

// Stamp records one audit event.
type Stamp struct {
	At     Timestamp
	ByID   string
	ByName string
}

// IsSet reports whether the event happened.
func (s Stamp) IsSet() bool { return s.At.IsSet() }

func stampFor(actor Actor) Stamp {
	return Stamp{At: serverAssigned(), ByID: actor.ID, ByName: actor.Name}
}

// Envelope is the full set of audit stamps.
type Envelope struct {
	Created     Stamp
	Updated     Stamp
	Activated   Stamp
	Inactivated Stamp
	Deleted     Stamp
}

// ApplyWrite stamps the envelope for a write by actor that leaves the entity
// in status. Creation is stamped once, the update stamp always moves, and the
// stamp belonging to status is set if absent. The stamps of the other two
// statuses are cleared, so exactly one of them is present at rest.
func (e *Envelope) ApplyWrite(actor Actor, status Status) {
	if !e.Created.At.IsSet() {
		byID, byName := e.Created.ByID, e.Created.ByName
		if byID == "" {
			byID, byName = actor.ID, actor.Name
		}
		e.Created = Stamp{At: serverAssigned(), ByID: byID, ByName: byName}
	}
	e.Updated = stampFor(actor)

	switch status {
	case StatusActive:
		if !e.Activated.IsSet() {
			e.Activated = stampFor(actor)
		}
		e.Inactivated, e.Deleted = Stamp{}, Stamp{}
	case StatusInactive:
		if !e.Inactivated.IsSet() {
			e.Inactivated = stampFor(actor)
		}
		e.Activated, e.Deleted = Stamp{}, Stamp{}
	case StatusDeleted:
		if !e.Deleted.IsSet() {
			e.Deleted = stampFor(actor)
		}
		e.Activated, e.Inactivated = Stamp{}, Stamp{}
	}
}

// StatusStampConsistent reports whether the status stamps agree with status.
func (e Envelope) StatusStampConsistent(status Status) bool {
	switch status {
	case StatusActive:
		return e.Activated.IsSet() && !e.Inactivated.IsSet() && !e.Deleted.IsSet()
	case StatusInactive:
		return e.Inactivated.IsSet() && !e.Activated.IsSet() && !e.Deleted.IsSet()
	case StatusDeleted:
		return e.Deleted.IsSet() && !e.Activated.IsSet() && !e.Inactivated.IsSet()
	}
	return false
}

// Record is the persisted shape of an Envelope. Entity records embed it so
// the attributes are stored flat next to the entity's own.
type Record struct {
	CreatedAt         *time.Time `dynamodbav:"created_at,omitempty"`
	CreatedByID       string     `dynamodbav:"created_by_id,omitempty"`
	CreatedByName     string     `dynamodbav:"created_by_name,omitempty"`
	UpdatedAt         *time.Time `dynamodbav:"updated_at,omitempty"`
	UpdatedByID       string     `dynamodbav:"updated_by_id,omitempty"`
	UpdatedByName     string     `dynamodbav:"updated_by_name,omitempty"`
	ActivatedAt       *time.Time `dynamodbav:"activated_at,omitempty"`
	ActivatedByID     string     `dynamodbav:"activated_by_id,omitempty"`
	ActivatedByName   string     `dynamodbav:"activated_by_name,omitempty"`
	InactivatedAt     *time.Time `dynamodbav:"inactivated_at,omitempty"`
	InactivatedByID   string     `dynamodbav:"inactivated_by_id,omitempty"`
	InactivatedByName string     `dynamodbav:"inactivated_by_name,omitempty"`
	DeletedAt         *time.Time `dynamodbav:"deleted_at,omitempty"`
	DeletedByID       string     `dynamodbav:"deleted_by_id,omitempty"`
	DeletedByName     string     `dynamodbav:"deleted_by_name,omitempty"`
}

// Attributes lists every attribute name a Record may produce.
var Attributes = []string{
	"created_at", "created_by_id", "created_by_name",
	"updated_at", "updated_by_id", "updated_by_name",
	"activated_at", "activated_by_id", "activated_by_name",
	"inactivated_at", "inactivated_by_id", "inactivated_by_name",
	"deleted_at", "deleted_by_id", "deleted_by_name",
}

// Record converts the envelope for a write committed at commit. Pending
// server-assigned stamps take the commit instant.
func (e Envelope) Record(commit time.Time) Record {
	return Record{
		CreatedAt:         e.Created.At.At(commit),
		CreatedByID:       e.Created.ByID,
		CreatedByName:     e.Created.ByName,
		UpdatedAt:         e.Updated.At.At(commit),
		UpdatedByID:       e.Updated.ByID,
		UpdatedByName:     e.Updated.ByName,
		ActivatedAt:       e.Activated.At.At(commit),
		ActivatedByID:     e.Activated.ByID,
		ActivatedByName:   e.Activated.ByName,
		InactivatedAt:     e.Inactivated.At.At(commit),
		InactivatedByID:   e.Inactivated.ByID,
		InactivatedByName: e.Inactivated.ByName,
		DeletedAt:         e.Deleted.At.At(commit),
		DeletedByID:       e.Deleted.ByID,
		DeletedByName:     e.Deleted.ByName,
	}
}

// Envelope converts a persisted record back; every timestamp comes out resolved.
func (r Record) Envelope() Envelope {
	return Envelope{
		Created:     readStamp(r.CreatedAt, r.CreatedByID, r.CreatedByName),
		Updated:     readStamp(r.UpdatedAt, r.UpdatedByID, r.UpdatedByName),
		Activated:   readStamp(r.ActivatedAt, r.ActivatedByID, r.ActivatedByName),
		Inactivated: readStamp(r.InactivatedAt, r.InactivatedByID, r.InactivatedByName),
		Deleted:     readStamp(r.DeletedAt, r.DeletedByID, r.DeletedByName),
	}
}

func readStamp(at *time.Time, id, name string) Stamp {
	if at == nil {
		return Stamp{}
	}
	return Stamp{At: Resolved(*at), ByID: id, ByName: name}
}

// Inherit fills every stamp that is unset in e from prev. Aggregates rebuilt
// from caller input keep the history already persisted for them.
func (e Envelope) Inherit(prev Envelope) Envelope {
	pick := func(cur, old Stamp) Stamp {
		if cur.IsSet() {
			return cur
		}
		if old.IsSet() {
			return old
		}
		return cur
	}
	return Envelope{
		Created:     pick(e.Created, prev.Created),
		Updated:     pick(e.Updated, prev.Updated),
		Activated:   pick(e.Activated, prev.Activated),
		Inactivated: pick(e.Inactivated, prev.Inactivated),
		Deleted:     pick(e.Deleted, prev.Deleted),
	}
}
