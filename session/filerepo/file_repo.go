package filerepo

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/session"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fileMode = 0o600
	dirMode  = 0o700

	sealedVersion = 1
	saltSize      = 16
	keySize       = chacha20poly1305.KeySize

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// sealed is the on-disk form when a passphrase is set.
type sealed struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// FileRepo stores the session as one JSON document. Writes go to a temporary
// file in the same directory which is then renamed over the target, so readers
// see either the old or the new session, never a mix.
type FileRepo struct {
	path       string
	passphrase []byte
}

var _ session.Repo = (*FileRepo)(nil)

type Option func(*FileRepo)

// WithPassphrase encrypts the file with a key derived from passphrase
// (argon2id, XChaCha20-Poly1305).
func WithPassphrase(passphrase string) Option {
	return func(r *FileRepo) {
		if passphrase != "" {
			r.passphrase = []byte(passphrase)
		}
	}
}

func New(path string, opts ...Option) *FileRepo {
	r := &FileRepo{path: path}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *FileRepo) Load() (*session.Stored, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to read session file")
	}

	if r.passphrase != nil {
		raw, err = r.open(raw)
		if err != nil {
			return nil, err
		}
	}

	var stored session.Stored
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, errors.Wrap(err, "failed to decode session file")
	}
	if stored.AccessToken == "" {
		return nil, apperrors.ErrNotFound
	}
	return &stored, nil
}

func (r *FileRepo) Save(s *session.Stored) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}
	if r.passphrase != nil {
		if raw, err = r.seal(raw); err != nil {
			return err
		}
	}
	return r.writeAtomic(raw)
}

func (r *FileRepo) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove session file")
	}
	return nil
}

func (r *FileRepo) writeAtomic(data []byte) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return errors.Wrap(err, "failed to create session directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary session file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write session file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync session file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close session file")
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		return errors.Wrap(err, "failed to set session file mode")
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return errors.Wrap(err, "failed to replace session file")
	}
	return nil
}

func (r *FileRepo) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "failed to generate salt")
	}
	aead, err := chacha20poly1305.NewX(r.deriveKey(salt))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	return json.Marshal(sealed{
		Version: sealedVersion,
		Salt:    salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, plain, nil),
	})
}

func (r *FileRepo) open(raw []byte) ([]byte, error) {
	var box sealed
	if err := json.Unmarshal(raw, &box); err != nil || box.Version != sealedVersion {
		return nil, errors.New("session file is not encrypted with a supported format")
	}
	aead, err := chacha20poly1305.NewX(r.deriveKey(box.Salt))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	if len(box.Nonce) != aead.NonceSize() {
		return nil, errors.New("session file has an invalid nonce")
	}
	plain, err := aead.Open(nil, box.Nonce, box.Data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt session file")
	}
	return plain, nil
}

func (r *FileRepo) deriveKey(salt []byte) []byte {
	return argon2.IDKey(r.passphrase, salt, argonTime, argonMemory, argonThreads, keySize)
}
