package devserver

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

type Account struct {
	ID           string
	Login        string
	Email        string
	FirstName    string
	Company      string
	PasswordHash string
	Roles        []string
	Blocked      bool
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

type AccountRepo interface {
	Upsert(account *Account) error
	GetByIdentifier(identifier string) (*Account, error)
	GetByID(id string) (*Account, error)
}

var _ AccountRepo = (*memoryAccounts)(nil)

// memoryAccounts finds accounts by login or email, case insensitively.
type memoryAccounts struct {
	lock        sync.RWMutex
	accounts    map[string]*Account
	identifiers map[string]string // login or email to account id
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{
		accounts:    make(map[string]*Account),
		identifiers: make(map[string]string),
	}
}

func (r *memoryAccounts) Upsert(account *Account) error {
	if account.Login == "" && account.Email == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "account needs a login or an email")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	r.accounts[account.ID] = account
	for _, key := range []string{account.Login, account.Email} {
		if key != "" {
			r.identifiers[strings.ToLower(key)] = account.ID
		}
	}
	return nil
}

func (r *memoryAccounts) GetByIdentifier(identifier string) (*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.identifiers[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r.accounts[id], nil
}

func (r *memoryAccounts) GetByID(id string) (*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return account, nil
}
