package repofakes

import (
	"sync"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/session"
)

var _ session.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps the stored session in memory. SaveErr and ClearErr,
// when set, are returned instead of performing the operation.
type FakeSessionRepo struct {
	lock     sync.RWMutex
	stored   *session.Stored
	saves    int
	clears   int
	SaveErr  error
	ClearErr error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{}
}

func (r *FakeSessionRepo) Load() (*session.Stored, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.stored == nil {
		return nil, apperrors.ErrNotFound
	}
	cp := *r.stored
	return &cp, nil
}

func (r *FakeSessionRepo) Save(s *session.Stored) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	cp := *s
	r.stored = &cp
	r.saves++
	return nil
}

func (r *FakeSessionRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.ClearErr != nil {
		return r.ClearErr
	}
	r.stored = nil
	r.clears++
	return nil
}

// Stored returns the current stored session, or nil.
func (r *FakeSessionRepo) Stored() *session.Stored {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.stored == nil {
		return nil
	}
	cp := *r.stored
	return &cp
}

func (r *FakeSessionRepo) Saves() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.saves
}

func (r *FakeSessionRepo) Clears() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.clears
}
