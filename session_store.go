package auth

import (
	"context"
	"encoding/json"
	"strconv"
)

// Persisted keys. Each entry decodes independently; none depends on another.
const (
	keyCurrentUser             = "currentUser"
	keyCurrentUserID           = "currentUserId"
	keySelectedClinic          = "selectedClinic"
	keyControlCenterCompany    = "controlCenterCompany"
	keyPendingLinkUserID       = "pendingLinkUserId"
	keyPendingLinkIsClinicAuth = "pendingLinkIsClinicAuth"
)

// SessionStore persists the pieces of an AuthSession across restarts. It is
// deliberately forgiving: corrupt or missing entries read back as absent and
// write failures are logged, never surfaced, mirroring the durability contract
// of a browser-style local store.
type SessionStore struct {
	kv     Store
	logger Logger
}

// NewSessionStore wraps a durable KV store.
func NewSessionStore(kv Store, logger Logger) *SessionStore {
	if logger == nil {
		logger = defLogger{}
	}
	return &SessionStore{kv: kv, logger: logger}
}

// User reads the stored current user, or nil.
func (s *SessionStore) User(ctx context.Context) *User {
	var user User
	if !s.read(ctx, keyCurrentUser, &user) {
		return nil
	}
	return &user
}

// SetUser persists the current user and its id.
func (s *SessionStore) SetUser(ctx context.Context, user *User) {
	if user == nil {
		s.remove(ctx, keyCurrentUser)
		s.remove(ctx, keyCurrentUserID)
		return
	}
	s.write(ctx, keyCurrentUser, user)
	s.writeRaw(ctx, keyCurrentUserID, []byte(strconv.FormatInt(user.ID, 10)))
}

// RemoveUser deletes the stored user, keeping any clinic context.
func (s *SessionStore) RemoveUser(ctx context.Context) {
	s.remove(ctx, keyCurrentUser)
	s.remove(ctx, keyCurrentUserID)
}

// Clinic reads the stored selected clinic, or nil.
func (s *SessionStore) Clinic(ctx context.Context) *Clinic {
	var clinic Clinic
	if !s.read(ctx, keySelectedClinic, &clinic) {
		return nil
	}
	return &clinic
}

// SetClinic persists the selected clinic.
func (s *SessionStore) SetClinic(ctx context.Context, clinic *Clinic) {
	if clinic == nil {
		s.remove(ctx, keySelectedClinic)
		return
	}
	s.write(ctx, keySelectedClinic, clinic)
}

// Company reads the stored control-center company, or nil.
func (s *SessionStore) Company(ctx context.Context) *Company {
	var company Company
	if !s.read(ctx, keyControlCenterCompany, &company) {
		return nil
	}
	return &company
}

// SetCompany persists the control-center company.
func (s *SessionStore) SetCompany(ctx context.Context, company *Company) {
	if company == nil {
		s.remove(ctx, keyControlCenterCompany)
		return
	}
	s.write(ctx, keyControlCenterCompany, company)
}

// PendingLink reads the in-flight popup-link marker. ok is false when no
// marker is stored or it does not decode to a user id.
func (s *SessionStore) PendingLink(ctx context.Context) (userID int64, clinicAuth bool, ok bool) {
	raw, err := s.kv.Get(ctx, keyPendingLinkUserID)
	if err != nil || len(raw) == 0 {
		return 0, false, false
	}
	userID, parseErr := strconv.ParseInt(string(raw), 10, 64)
	if parseErr != nil {
		return 0, false, false
	}
	s.read(ctx, keyPendingLinkIsClinicAuth, &clinicAuth)
	return userID, clinicAuth, true
}

// SetPendingLink marks an OAuth popup as a link flow for an existing user.
func (s *SessionStore) SetPendingLink(ctx context.Context, userID int64, clinicAuth bool) {
	s.writeRaw(ctx, keyPendingLinkUserID, []byte(strconv.FormatInt(userID, 10)))
	s.write(ctx, keyPendingLinkIsClinicAuth, clinicAuth)
}

// ClearPendingLink removes the pending-link marker.
func (s *SessionStore) ClearPendingLink(ctx context.Context) {
	s.remove(ctx, keyPendingLinkUserID)
	s.remove(ctx, keyPendingLinkIsClinicAuth)
}

// Clear wipes every persisted session key.
func (s *SessionStore) Clear(ctx context.Context) {
	for _, key := range []string{
		keyCurrentUser,
		keyCurrentUserID,
		keySelectedClinic,
		keyControlCenterCompany,
		keyPendingLinkUserID,
		keyPendingLinkIsClinicAuth,
	} {
		s.remove(ctx, key)
	}
}

func (s *SessionStore) read(ctx context.Context, key string, out any) bool {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Debug("session store read failed for %s: %v", key, err)
		return false
	}
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Malformed entries are treated as absent.
		s.logger.Debug("session store entry malformed at %s: %v", key, err)
		return false
	}
	return true
}

func (s *SessionStore) write(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("session store marshal failed for %s: %v", key, err)
		return
	}
	s.writeRaw(ctx, key, raw)
}

func (s *SessionStore) writeRaw(ctx context.Context, key string, raw []byte) {
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.logger.Warn("session store write failed for %s: %v", key, err)
	}
}

func (s *SessionStore) remove(ctx context.Context, key string) {
	if err := s.kv.Remove(ctx, key); err != nil {
		s.logger.Warn("session store remove failed for %s: %v", key, err)
	}
}
