package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// mockCredentialStore returns a fixed credential or error
type mockCredentialStore struct {
	cred    models.SessionCredential
	loadErr error
	saved   map[int]models.SessionCredential
}

func (m *mockCredentialStore) Load(accountIndex int) (models.SessionCredential, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.cred, nil
}

func (m *mockCredentialStore) Save(accountIndex int, cred models.SessionCredential) error {
	if m.saved == nil {
		m.saved = map[int]models.SessionCredential{}
	}
	m.saved[accountIndex] = cred
	return nil
}

// mockPage serves scripted URLs in order and counts closes
type mockPage struct {
	urls        []string
	urlCalls    int
	text        string
	navigateErr error
	cookies     models.SessionCredential
	setCookies  models.SessionCredential
	navigated   string
	closeCount  int
}

func (m *mockPage) SetCookies(ctx context.Context, cookies models.SessionCredential) error {
	m.setCookies = cookies
	return nil
}

func (m *mockPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	m.navigated = url
	return m.navigateErr
}

func (m *mockPage) URL(ctx context.Context) (string, error) {
	i := m.urlCalls
	m.urlCalls++
	if i >= len(m.urls) {
		i = len(m.urls) - 1
	}
	return m.urls[i], nil
}

func (m *mockPage) Text(ctx context.Context) (string, error) {
	return m.text, nil
}

func (m *mockPage) HTML(ctx context.Context) (string, error) {
	return "<html></html>", nil
}

func (m *mockPage) WaitUntil(ctx context.Context, predicate string, interval, timeout time.Duration) (bool, error) {
	return true, nil
}

func (m *mockPage) Cookies(ctx context.Context) (models.SessionCredential, error) {
	return m.cookies, nil
}

func (m *mockPage) Close() error {
	m.closeCount++
	return nil
}

// mockLauncher hands out one page and counts launches
type mockLauncher struct {
	page      *mockPage
	launchErr error
	launches  int
}

func (m *mockLauncher) Launch(ctx context.Context) (interfaces.BrowserPage, error) {
	m.launches++
	if m.launchErr != nil {
		return nil, m.launchErr
	}
	return m.page, nil
}

const usageURL = "https://claude.ai/settings/usage"

func testDriverConfig() DriverConfig {
	return DriverConfig{
		TargetURL:         usageURL,
		ExpectedPath:      "settings/usage",
		LoggedOutMarker:   "Continue with Google",
		NavigationTimeout: time.Minute,
	}
}

func validCred() models.SessionCredential {
	return models.SessionCredential{{Name: "sessionKey", Value: "sk", Domain: ".claude.ai", Path: "/", Expires: -1}}
}

func TestDriverOpen_NoSessionNeverLaunches(t *testing.T) {
	store := &mockCredentialStore{loadErr: fmt.Errorf("%w: no session found", interfaces.ErrNoSession)}
	launcher := &mockLauncher{page: &mockPage{urls: []string{usageURL}}}
	d := NewDriver(store, launcher, testDriverConfig(), arbor.NewLogger())

	page, err := d.Open(context.Background(), models.AccountConfig{Index: 1})
	assert.Nil(t, page)
	assert.ErrorIs(t, err, interfaces.ErrNoSession)
	assert.Equal(t, 0, launcher.launches)
}

func TestDriverOpen_Success(t *testing.T) {
	p := &mockPage{urls: []string{usageURL}, text: "Current session 45%"}
	launcher := &mockLauncher{page: p}
	d := NewDriver(&mockCredentialStore{cred: validCred()}, launcher, testDriverConfig(), arbor.NewLogger())

	page, err := d.Open(context.Background(), models.AccountConfig{Index: 1})
	require.NoError(t, err)
	require.NotNil(t, page)

	assert.Equal(t, usageURL, p.navigated)
	assert.Equal(t, validCred(), p.setCookies)
	assert.Equal(t, 2, p.urlCalls, "url checked before and after settle")
	assert.Equal(t, 0, p.closeCount, "caller owns the page on success")
}

func TestDriverOpen_SessionExpired(t *testing.T) {
	tests := []struct {
		name    string
		page    *mockPage
		message string
	}{
		{
			name:    "redirect on navigation",
			page:    &mockPage{urls: []string{"https://claude.ai/login"}},
			message: "redirected to https://claude.ai/login",
		},
		{
			name:    "redirect after settle",
			page:    &mockPage{urls: []string{usageURL, "https://claude.ai/login?returnTo=usage"}},
			message: "session invalid after render",
		},
		{
			name:    "login marker after settle",
			page:    &mockPage{urls: []string{usageURL}, text: "Welcome back\nContinue with Google"},
			message: "session invalid after render",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDriver(&mockCredentialStore{cred: validCred()}, &mockLauncher{page: tt.page}, testDriverConfig(), arbor.NewLogger())

			page, err := d.Open(context.Background(), models.AccountConfig{Index: 2})
			assert.Nil(t, page)
			require.Error(t, err)
			assert.ErrorIs(t, err, interfaces.ErrSessionExpired)
			assert.Contains(t, err.Error(), tt.message)
			assert.Equal(t, 1, tt.page.closeCount)
		})
	}
}

func TestDriverOpen_NavigationFailureClosesOnce(t *testing.T) {
	p := &mockPage{urls: []string{usageURL}, navigateErr: errors.New("net::ERR_TIMED_OUT")}
	d := NewDriver(&mockCredentialStore{cred: validCred()}, &mockLauncher{page: p}, testDriverConfig(), arbor.NewLogger())

	_, err := d.Open(context.Background(), models.AccountConfig{Index: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrSessionExpired)
	assert.Contains(t, err.Error(), "ERR_TIMED_OUT")
	assert.Equal(t, 1, p.closeCount)
}

func TestDriverOpen_LaunchFailure(t *testing.T) {
	launcher := &mockLauncher{launchErr: errors.New("chrome not found")}
	d := NewDriver(&mockCredentialStore{cred: validCred()}, launcher, testDriverConfig(), arbor.NewLogger())

	_, err := d.Open(context.Background(), models.AccountConfig{Index: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to launch browser")
}

func TestDriverRefreshCredential(t *testing.T) {
	store := &mockCredentialStore{cred: validCred()}
	fresh := models.SessionCredential{{Name: "sessionKey", Value: "rotated", Domain: ".claude.ai", Path: "/", Expires: 1900000000}}
	p := &mockPage{urls: []string{usageURL}, cookies: fresh}
	d := NewDriver(store, &mockLauncher{page: p}, testDriverConfig(), arbor.NewLogger())

	d.RefreshCredential(context.Background(), p, models.AccountConfig{Index: 3})
	assert.Equal(t, fresh, store.saved[3])

	p.cookies = nil
	d.RefreshCredential(context.Background(), p, models.AccountConfig{Index: 4})
	assert.NotContains(t, store.saved, 4, "empty jar must not overwrite stored cookies")
}
