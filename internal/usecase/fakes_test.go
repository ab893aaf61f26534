package usecase

import (
	"sync"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts []domain.Account
	listErr  error
}

func (f *fakeAccountRepo) Create(_ domain.Context, a domain.Account) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, a)
	return a.ID, nil
}

func (f *fakeAccountRepo) Update(_ domain.Context, a domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.accounts {
		if f.accounts[i].ID == a.ID {
			f.accounts[i] = a
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeAccountRepo) Delete(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			f.accounts = append(f.accounts[:i], f.accounts[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeAccountRepo) Get(_ domain.Context, id string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (f *fakeAccountRepo) List(_ domain.Context) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Account, len(f.accounts))
	copy(out, f.accounts)
	return out, nil
}

func (f *fakeAccountRepo) ListAvailable(_ domain.Context) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Account
	for _, a := range f.accounts {
		if a.Available {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) SetAvailability(_ domain.Context, id string, available bool, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			f.accounts[i].Available = available
			f.accounts[i].UnavailableReason = reason
			return nil
		}
	}
	return domain.ErrNotFound
}

// fakeCursor mimics the conditional-write semantics of the Redis cursor.
// conflicts pre-loads a number of Advance calls that lose the race.
type fakeCursor struct {
	mu        sync.Mutex
	value     int64
	conflicts int
}

func (f *fakeCursor) Get(_ domain.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, nil
}

func (f *fakeCursor) Advance(_ domain.Context, observed int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		f.value++ // someone else advanced it
		return domain.ErrConflict
	}
	if observed != f.value {
		return domain.ErrConflict
	}
	f.value++
	return nil
}

type fakeUpstream struct {
	exchangeFn func(a domain.Account) (domain.UpstreamToken, error)
	sessionFn  func(a domain.Account, token string) (string, error)
	chatFn     func(call domain.ChatCall) (domain.ChatResult, error)

	mu            sync.Mutex
	exchangeCalls int
	sessionCalls  int
	chatCalls     []domain.ChatCall
}

func (f *fakeUpstream) ExchangeToken(_ domain.Context, a domain.Account) (domain.UpstreamToken, error) {
	f.mu.Lock()
	f.exchangeCalls++
	f.mu.Unlock()
	return f.exchangeFn(a)
}

func (f *fakeUpstream) EstablishSession(_ domain.Context, a domain.Account, token string) (string, error) {
	f.mu.Lock()
	f.sessionCalls++
	f.mu.Unlock()
	return f.sessionFn(a, token)
}

func (f *fakeUpstream) Chat(_ domain.Context, call domain.ChatCall) (domain.ChatResult, error) {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, call)
	f.mu.Unlock()
	return f.chatFn(call)
}

type fakeConfigRepo struct {
	cfg domain.GatewayConfig
	err error
}

func (f *fakeConfigRepo) Get(_ domain.Context) (domain.GatewayConfig, error) {
	return f.cfg, f.err
}

func (f *fakeConfigRepo) Put(_ domain.Context, c domain.GatewayConfig) error {
	f.cfg = c
	return nil
}

type fakeUploader struct {
	fn    func(data []byte, filename, mimeType string) (string, error)
	calls int
}

func (f *fakeUploader) Upload(_ domain.Context, _, _ string, data []byte, filename, mimeType string) (string, error) {
	f.calls++
	return f.fn(data, filename, mimeType)
}

type fakeImageCache struct {
	fn    func(data []byte, mimeType, filename string) (string, error)
	calls int
}

func (f *fakeImageCache) Save(_ domain.Context, data []byte, mimeType, filename string) (string, error) {
	f.calls++
	return f.fn(data, mimeType, filename)
}
