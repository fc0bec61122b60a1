package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

const (
	envelopeKey   = "__encrypted__"
	contentPrefix = "enc:"
)

// ErrNotEncrypted is returned when a record read through the encryption
// middleware carries plain session data.
var ErrNotEncrypted = errors.New("session is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.SessionStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts session contents
// at rest using AES-GCM.
//
// Variables become a single sealed envelope and every message keeps its role,
// node and timestamp in clear with its content and metadata sealed. Status,
// flow and user IDs stay readable so the store can still index and query them.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Create(ctx context.Context, s *domain.Session) error {
	sealed := s.Clone()
	vars, err := m.sealVariables(s.Variables)
	if err != nil {
		return err
	}
	msgs, err := m.sealMessages(s.Messages)
	if err != nil {
		return err
	}
	sealed.Variables = vars
	sealed.Messages = msgs
	return m.next.Create(ctx, sealed)
}

func (m *encryptionMiddleware) UpdateBySessionID(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	var err error
	if patch.Variables != nil {
		if patch.Variables, err = m.sealVariables(patch.Variables); err != nil {
			return err
		}
	}
	if patch.Messages != nil {
		if patch.Messages, err = m.sealMessages(patch.Messages); err != nil {
			return err
		}
	}
	return m.next.UpdateBySessionID(ctx, sessionID, patch)
}

func (m *encryptionMiddleware) FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.next.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.open(s); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return s, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *encryptionMiddleware) Query(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error) {
	page, err := m.next.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, s := range page.Sessions {
		if err := m.open(s); err != nil {
			return nil, fmt.Errorf("session %s: %w", s.SessionID, err)
		}
	}
	return page, nil
}

func (m *encryptionMiddleware) sealVariables(vars map[string]any) (map[string]any, error) {
	blob, err := m.seal(vars)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt variables: %w", err)
	}
	return map[string]any{envelopeKey: blob}, nil
}

func (m *encryptionMiddleware) sealMessages(msgs []domain.ChatMessage) ([]domain.ChatMessage, error) {
	out := make([]domain.ChatMessage, len(msgs))
	for i, msg := range msgs {
		content, err := encrypt([]byte(msg.Content), m.config.ActiveKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt message %s: %w", msg.ID, err)
		}
		msg.Content = contentPrefix + base64.StdEncoding.EncodeToString(content)
		if msg.Metadata != nil {
			blob, err := m.seal(msg.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt message %s: %w", msg.ID, err)
			}
			msg.Metadata = map[string]any{envelopeKey: blob}
		}
		out[i] = msg
	}
	return out, nil
}

// open decrypts s in place.
func (m *encryptionMiddleware) open(s *domain.Session) error {
	blob, ok := s.Variables[envelopeKey].(string)
	if !ok {
		return ErrNotEncrypted
	}
	vars := map[string]any{}
	if err := m.unseal(blob, &vars); err != nil {
		return fmt.Errorf("failed to decrypt variables: %w", err)
	}
	s.Variables = vars

	for i := range s.Messages {
		msg := &s.Messages[i]
		if len(msg.Content) < len(contentPrefix) || msg.Content[:len(contentPrefix)] != contentPrefix {
			return ErrNotEncrypted
		}
		raw, err := base64.StdEncoding.DecodeString(msg.Content[len(contentPrefix):])
		if err != nil {
			return fmt.Errorf("failed to decode message %s: %w", msg.ID, err)
		}
		plain, err := decryptWithRotation(raw, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return fmt.Errorf("failed to decrypt message %s: %w", msg.ID, err)
		}
		msg.Content = string(plain)

		if blob, ok := msg.Metadata[envelopeKey].(string); ok {
			meta := map[string]any{}
			if err := m.unseal(blob, &meta); err != nil {
				return fmt.Errorf("failed to decrypt message %s: %w", msg.ID, err)
			}
			msg.Metadata = meta
		}
	}
	return nil
}

func (m *encryptionMiddleware) seal(v any) (string, error) {
	plainText, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (m *encryptionMiddleware) unseal(blob string, v any) error {
	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return err
	}
	return json.Unmarshal(plainText, v)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
