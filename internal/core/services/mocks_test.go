package services

import (
	"context"
	"sync"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

type mockApplication struct {
	token domain.Token
	err   error
	calls int
}

func (m *mockApplication) Acquire(_ context.Context) (domain.Token, error) {
	m.calls++
	return m.token, m.err
}

type mockDelegated struct {
	mu sync.Mutex

	token    domain.Token
	tokenErr error
	calls    int

	account   *domain.Account
	challenge *domain.DeviceChallenge
	loginErr  error
	// release blocks StartDeviceLogin after notify until closed.
	release chan struct{}
	logouts int
}

func (m *mockDelegated) StartDeviceLogin(ctx context.Context, notify func(domain.DeviceChallenge)) (*domain.Account, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	c := domain.DeviceChallenge{UserCode: "CODE-1", VerificationURI: "https://microsoft.com/devicelogin"}
	m.mu.Lock()
	m.challenge = &c
	m.mu.Unlock()
	if notify != nil {
		notify(c)
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	acct := domain.Account{HomeAccountID: "oid.tid", Username: "adele@contoso.example"}
	m.mu.Lock()
	m.account = &acct
	m.challenge = nil
	m.mu.Unlock()
	return &acct, nil
}

func (m *mockDelegated) PendingChallenge() (domain.DeviceChallenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil {
		return domain.DeviceChallenge{}, false
	}
	return *m.challenge, true
}

func (m *mockDelegated) CurrentToken(_ context.Context) (domain.Token, error) {
	m.calls++
	return m.token, m.tokenErr
}

func (m *mockDelegated) Account() (domain.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return domain.Account{}, false
	}
	return *m.account, true
}

func (m *mockDelegated) Logout(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	m.account = nil
	return nil
}

type relayCall struct {
	method string
	target string
	body   any
	token  domain.Token
}

type mockRemote struct {
	calls  []relayCall
	result *domain.RelayResult
	err    error
}

func (m *mockRemote) Call(_ context.Context, method, target string, body any, token domain.Token) (*domain.RelayResult, error) {
	m.calls = append(m.calls, relayCall{method: method, target: target, body: body, token: token})
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.RelayResult{StatusCode: 200, Body: []byte(`{}`)}, nil
}
