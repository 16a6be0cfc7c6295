// Package store persists session metadata snapshots. Credential material is
// NOT kept here; the whatsmeow container owns that, keyed by device JID.
package store

import "gowa-dispatch/internal/model"

// Store is the durable backend behind the registry. Save rewrites the whole
// table (the registry persists after every mutation); Load tolerates a
// missing or empty backend and returns no sessions in that case.
type Store interface {
	Save(sessions map[string]*model.Session) error
	Load() (map[string]*model.Session, error)
}
