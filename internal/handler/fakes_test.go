package handler

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/athlia-api/internal/model"
	"github.com/iliyamo/athlia-api/internal/queue"
	"github.com/iliyamo/athlia-api/internal/repository"
	"github.com/iliyamo/athlia-api/internal/utils"
)

type fakeAccounts struct {
	mu     sync.Mutex
	byID   map[string]model.Account
	nextID int
	err    error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[string]model.Account{}}
}

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, x := range f.byID {
		if x.Mail == a.Mail {
			return repository.ErrMailExists
		}
	}
	f.nextID++
	a.ID = fmt.Sprintf("acct-%d", f.nextID)
	f.byID[a.ID] = *a
	return nil
}

func (f *fakeAccounts) GetByMail(_ context.Context, mail string) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Account{}, f.err
	}
	for _, a := range f.byID {
		if a.Mail == repository.NormalizeMail(mail) {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Account{}, f.err
	}
	a, ok := f.byID[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) TouchLastConnection(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.LastConnection = &at
	f.byID[id] = a
	return nil
}

func (f *fakeAccounts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash = hash
	f.byID[id] = a
	return nil
}

func (f *fakeAccounts) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
}

// racingAccounts stores winner just before the first Create, as if another
// registration for the same mail committed between lookup and insert.
type racingAccounts struct {
	*fakeAccounts
	winner model.Account
	raced  bool
}

func (r *racingAccounts) Create(ctx context.Context, a *model.Account) error {
	if !r.raced {
		r.raced = true
		w := r.winner
		if err := r.fakeAccounts.Create(ctx, &w); err != nil {
			return err
		}
	}
	return r.fakeAccounts.Create(ctx, a)
}

type fakeProfiles struct {
	mu        sync.Mutex
	byAccount map[string]model.UserProfile
	err       error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{byAccount: map[string]model.UserProfile{}}
}

func (f *fakeProfiles) GetByAccountID(_ context.Context, accountID string) (model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.UserProfile{}, f.err
	}
	p, ok := f.byAccount[accountID]
	if !ok {
		return model.UserProfile{}, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfiles) Upsert(_ context.Context, p *model.UserProfile) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	existing, ok := f.byAccount[p.AccountID]
	if ok {
		p.ID = existing.ID
	} else {
		p.ID = "prof-" + p.AccountID
	}
	f.byAccount[p.AccountID] = *p
	return !ok, nil
}

// chanPublisher hands every published event to a buffered channel.
type chanPublisher chan queue.AccountEvent

func (ch chanPublisher) Publish(_ context.Context, ev queue.AccountEvent) error {
	ch <- ev
	return nil
}

func newTokenService(t *testing.T) *utils.TokenService {
	t.Helper()
	ts, err := utils.NewTokenService("handler-secret", time.Hour, 30*24*time.Hour)
	require.NoError(t, err)
	return ts
}

func doJSON(e *echo.Echo, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func waitEvent(t *testing.T, ch chanPublisher) queue.AccountEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
		return queue.AccountEvent{}
	}
}

