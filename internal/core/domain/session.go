package domain

import "slices"

// SessionStateVersion is the current on-disk layout version.
const SessionStateVersion = 1

// Account is a signed-in user known to the delegated authenticator.
type Account struct {
	// HomeAccountID is the opaque provider identifier (object id + tenant id).
	HomeAccountID string `json:"home_account_id"`
	// Username is the human readable principal name.
	Username string  `json:"username"`
	Tokens   []Token `json:"tokens"`
}

// TokenFor returns the index and token record that covers scopes.
func (a *Account) TokenFor(scopes []string) (int, Token, bool) {
	for i, t := range a.Tokens {
		if t.Covers(scopes) {
			return i, t, true
		}
	}
	return -1, Token{}, false
}

// SessionState is the persisted delegated session: accounts and their tokens.
// Mutations go through its methods so that stores can tell whether a write
// is needed.
type SessionState struct {
	Version  int       `json:"version"`
	Accounts []Account `json:"accounts"`

	dirty bool
}

// NewSessionState returns an empty, clean state.
func NewSessionState() *SessionState {
	return &SessionState{Version: SessionStateVersion, Accounts: []Account{}}
}

// Changed reports whether the state was mutated since it was loaded or last saved.
func (s *SessionState) Changed() bool {
	return s.dirty
}

// MarkClean clears the dirty flag. Stores call it after a successful write.
func (s *SessionState) MarkClean() {
	s.dirty = false
}

// Empty reports whether no account is present.
func (s *SessionState) Empty() bool {
	return len(s.Accounts) == 0
}

// Canonical returns the account used for delegated calls: the first one.
func (s *SessionState) Canonical() (*Account, bool) {
	if len(s.Accounts) == 0 {
		return nil, false
	}
	return &s.Accounts[0], true
}

// PutAccount makes acct the canonical account, replacing any account with
// the same HomeAccountID.
func (s *SessionState) PutAccount(acct Account) {
	kept := make([]Account, 0, len(s.Accounts)+1)
	kept = append(kept, acct)
	for _, a := range s.Accounts {
		if a.HomeAccountID != acct.HomeAccountID {
			kept = append(kept, a)
		}
	}
	s.Accounts = kept
	s.dirty = true
}

// UpdateToken replaces token record idx of the canonical account.
// It is a no-op if there is no such record.
func (s *SessionState) UpdateToken(idx int, tok Token) {
	acct, ok := s.Canonical()
	if !ok || idx < 0 || idx >= len(acct.Tokens) {
		return
	}
	acct.Tokens[idx] = tok
	s.dirty = true
}

// RemoveAccounts drops every account. Returns the number removed.
func (s *SessionState) RemoveAccounts() int {
	n := len(s.Accounts)
	if n == 0 {
		return 0
	}
	s.Accounts = []Account{}
	s.dirty = true
	return n
}

// Clone returns a deep copy of the state, including its dirty flag.
func (s *SessionState) Clone() *SessionState {
	out := &SessionState{
		Version:  s.Version,
		Accounts: make([]Account, len(s.Accounts)),
		dirty:    s.dirty,
	}
	for i, a := range s.Accounts {
		out.Accounts[i] = a.Clone()
	}
	return out
}

// Clone returns a deep copy of the account.
func (a Account) Clone() Account {
	a.Tokens = slices.Clone(a.Tokens)
	for i := range a.Tokens {
		a.Tokens[i].Scopes = slices.Clone(a.Tokens[i].Scopes)
	}
	return a
}
