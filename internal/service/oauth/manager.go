package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/domain/repository"
	"SaxoBridge/internal/service/saxo"
	apphttp "SaxoBridge/pkg/http"
	"SaxoBridge/pkg/logger"
)

// Config holds the OAuth client registration.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Workers      int
}

// RefreshListener is told about every successful token refresh.
type RefreshListener func(ctx context.Context, user, accessToken string)

// Manager owns the token records of one provider.
type Manager struct {
	cfg       Config
	endpoints saxo.Endpoints
	store     repository.CredentialStore
	http      *apphttp.Client
	logger    *logger.Logger
	metrics   repository.Metrics

	group singleflight.Group
	now   func() time.Time

	mu       sync.RWMutex
	listener RefreshListener
}

func NewManager(cfg Config, endpoints saxo.Endpoints, store repository.CredentialStore,
	client *apphttp.Client, l *logger.Logger, m repository.Metrics) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	return &Manager{
		cfg:       cfg,
		endpoints: endpoints,
		store:     store,
		http:      client,
		logger:    l,
		metrics:   m,
		now:       time.Now,
	}
}

// SetRefreshListener installs the callback run after each refresh.
func (m *Manager) SetRefreshListener(fn RefreshListener) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

func (m *Manager) key(user string) string {
	return m.cfg.Provider + "." + user
}

// AuthorizeURL returns the URL a user visits to grant access.
func (m *Manager) AuthorizeURL(user string) string {
	return m.endpoints.AuthorizeURL(m.cfg.ClientID, m.key(user), m.cfg.RedirectURL)
}

func (m *Manager) reauth(user string, cause error) error {
	return &models.ReauthRequiredError{AuthURL: m.AuthorizeURL(user), Err: cause}
}

// load returns the live record for user, deleting it when both tokens
// are expired. A nil record means none is usable.
func (m *Manager) load(ctx context.Context, user string) (*models.TokenRecord, error) {
	rec, err := m.store.Load(ctx, m.key(user))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	now := m.now()
	if !rec.AccessValid(now) && !rec.RefreshValid(now) {
		if err := m.store.Delete(ctx, m.key(user)); err != nil {
			m.logger.Warn("failed to delete expired credentials", logger.String("user", user), logger.Error(err))
		}
		return nil, nil
	}
	return rec, nil
}

// ValidToken returns a usable access token for user, refreshing it when
// only the refresh token is still valid. Otherwise the error is a
// *models.ReauthRequiredError.
func (m *Manager) ValidToken(ctx context.Context, user string) (string, error) {
	rec, err := m.load(ctx, user)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", m.reauth(user, nil)
	}
	if rec.AccessValid(m.now()) {
		return rec.AccessToken, nil
	}

	rec, err = m.Refresh(ctx, user)
	if err != nil {
		return "", m.reauth(user, err)
	}
	return rec.AccessToken, nil
}

// Status reports whether user holds a usable record.
func (m *Manager) Status(ctx context.Context, user string) (bool, error) {
	rec, err := m.load(ctx, user)
	return rec != nil, err
}

// HasRecord reports whether any record is stored for user.
func (m *Manager) HasRecord(ctx context.Context, user string) (bool, error) {
	_, err := m.store.Load(ctx, m.key(user))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ExchangeCode completes the authorization callback. state carries
// "<provider>.<user>"; the user is returned on success.
func (m *Manager) ExchangeCode(ctx context.Context, state, code string) (string, error) {
	provider, user, ok := strings.Cut(state, ".")
	if !ok || user == "" || provider != m.cfg.Provider {
		return "", fmt.Errorf("%w: state %q", models.ErrInvalidRequest, state)
	}

	issued := m.now()
	payload, err := m.requestToken(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {m.cfg.RedirectURL},
	})
	if err != nil {
		m.recordError("token_exchange")
		return "", fmt.Errorf("%w: code exchange: %w", models.ErrAuthFailed, err)
	}

	rec := payload.Record(issued)
	if err := m.store.Save(ctx, m.key(user), &rec); err != nil {
		return "", fmt.Errorf("save credentials: %w", err)
	}
	m.logger.Info("authorization granted", logger.String("user", user))
	return user, nil
}

// Refresh exchanges the stored refresh token. Concurrent calls for one
// user share a single upstream request. A rejected refresh leaves the
// stored record untouched.
func (m *Manager) Refresh(ctx context.Context, user string) (*models.TokenRecord, error) {
	v, err, _ := m.group.Do(m.key(user), func() (interface{}, error) {
		return m.refresh(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	rec := v.(models.TokenRecord)
	return &rec, nil
}

func (m *Manager) refresh(ctx context.Context, user string) (models.TokenRecord, error) {
	rec, err := m.load(ctx, user)
	if err != nil {
		return models.TokenRecord{}, err
	}
	if rec == nil || !rec.RefreshValid(m.now()) {
		return models.TokenRecord{}, fmt.Errorf("%w: refresh token expired", models.ErrAuthFailed)
	}

	start := m.now()
	payload, err := m.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {rec.RefreshToken},
		"redirect_uri":  {m.cfg.RedirectURL},
	})
	if err != nil {
		m.recordError("token_refresh")
		m.logger.Warn("token refresh failed", logger.String("user", user), logger.Error(err))
		return models.TokenRecord{}, fmt.Errorf("%w: refresh: %w", models.ErrAuthFailed, err)
	}

	fresh := payload.Record(start)
	if err := m.store.Save(ctx, m.key(user), &fresh); err != nil {
		return models.TokenRecord{}, fmt.Errorf("save credentials: %w", err)
	}
	m.logger.Info("token refreshed", logger.String("user", user))

	m.mu.RLock()
	fn := m.listener
	m.mu.RUnlock()
	if fn != nil {
		fn(ctx, user, fresh.AccessToken)
	}
	return fresh, nil
}

func (m *Manager) requestToken(ctx context.Context, form url.Values) (models.TokenPayload, error) {
	var payload models.TokenPayload
	req := &apphttp.RequestOptions{
		Method: apphttp.MethodPost,
		URL:    m.endpoints.TokenURL(),
		Headers: map[string]string{
			"Authorization": "Basic " + basicAuth(m.cfg.ClientID, m.cfg.ClientSecret),
			"Content-Type":  apphttp.ContentTypeForm,
		},
		Body: form,
	}
	if err := m.http.SendAndParse(ctx, req, &payload); err != nil {
		return payload, err
	}
	if payload.AccessToken == "" {
		return payload, errors.New("token response without access_token")
	}
	return payload, nil
}

// Sweep refreshes every stored record of this provider whose refresh
// token is still valid. It returns the number of successful refreshes.
func (m *Manager) Sweep(ctx context.Context) int {
	keys, err := m.store.Keys(ctx)
	if err != nil {
		m.logger.Error("failed to list credentials", logger.Error(err))
		return 0
	}

	prefix := m.cfg.Provider + "."
	var (
		mu sync.Mutex
		ok int
	)
	p := pool.New().WithMaxGoroutines(m.cfg.Workers)
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		user := strings.TrimPrefix(key, prefix)
		p.Go(func() {
			rec, err := m.load(ctx, user)
			if err != nil || rec == nil || !rec.RefreshValid(m.now()) {
				return
			}
			if _, err := m.Refresh(ctx, user); err != nil {
				return
			}
			mu.Lock()
			ok++
			mu.Unlock()
		})
	}
	p.Wait()

	m.logger.Debug("refresh sweep finished", logger.Int("records", len(keys)), logger.Int("refreshed", ok))
	return ok
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.logger.Info("token refresh sweep started", logger.Duration("interval_ms", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

func basicAuth(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}

func (m *Manager) recordError(kind string) {
	if m.metrics != nil {
		m.metrics.RecordError(kind)
	}
}
