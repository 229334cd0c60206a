package upload

import (
	"context"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const sessionKeyPrefix = "session:"

// BadgerSessionStore persists upload sessions in BadgerDB so in-flight
// uploads survive restarts. Rows carry a Badger TTL slightly past the
// session's own expiry as a backstop; the janitor remains the primary
// cleanup path because it also releases spool files and remote multipart
// state.
type BadgerSessionStore struct {
	db *badger.DB
}

// NewBadgerSessionStore opens (or creates) the session database.
func NewBadgerSessionStore(dir string) (*BadgerSessionStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerSessionStore{db: db}, nil
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

func (s *BadgerSessionStore) put(session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(sessionKey(session.ID), raw)
		if ttl := time.Until(session.ExpiresAt) + 24*time.Hour; ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (s *BadgerSessionStore) Create(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(session)
}

func (s *BadgerSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrSessionNotFound
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		})
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BadgerSessionStore) Update(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(session)
}

func (s *BadgerSessionStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}

func (s *BadgerSessionStore) ListExpired(ctx context.Context, before time.Time) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var expired []*Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(sessionKeyPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var session Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &session)
			}); err != nil {
				return err
			}
			if !session.Status.Terminal() && session.ExpiresAt.Before(before) {
				clone := session
				expired = append(expired, &clone)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func (s *BadgerSessionStore) Close() error {
	return s.db.Close()
}
