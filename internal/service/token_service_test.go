package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"github.com/kursadbilgin/push-broadcast/internal/repository"
)

const testTokenID = "3f1c1a4e-2b7d-4c55-9f0e-6a1d2b3c4d5e"

func TestTokenServiceRegisterCreatesUnknownToken(t *testing.T) {
	t.Parallel()

	var created *domain.PushToken
	repo := &fakeTokenRepo{
		createFn: func(ctx context.Context, token *domain.PushToken) error {
			created = token
			return nil
		},
	}

	svc := newTestTokenService(t, repo)

	result, isNew, err := svc.Register(context.Background(), " ExponentPushToken[abc] ", "ios", "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !isNew {
		t.Fatal("Register() created = false, want true")
	}
	if created == nil || created.Token != "ExponentPushToken[abc]" {
		t.Fatalf("created = %+v, want trimmed token", created)
	}
	if result.ID != testTokenID {
		t.Fatalf("ID = %q, want %q", result.ID, testTokenID)
	}
	if result.Platform != domain.PlatformIOS {
		t.Fatalf("Platform = %s, want ios", result.Platform)
	}
	if !result.CreatedAt.Equal(fixedNow()) || !result.UpdatedAt.Equal(fixedNow()) {
		t.Fatalf("timestamps = %v/%v, want %v", result.CreatedAt, result.UpdatedAt, fixedNow())
	}
}

func TestTokenServiceRegisterUpdatesKnownToken(t *testing.T) {
	t.Parallel()

	createCalled := false
	var updatedPlatform domain.Platform
	var updatedAt time.Time
	repo := &fakeTokenRepo{
		getByTokenFn: func(ctx context.Context, token string) (*domain.PushToken, error) {
			return &domain.PushToken{ID: "existing", Token: token, Platform: domain.PlatformIOS}, nil
		},
		createFn: func(ctx context.Context, token *domain.PushToken) error {
			createCalled = true
			return nil
		},
		updatePlatformFn: func(ctx context.Context, id string, platform domain.Platform, at time.Time) error {
			if id != "existing" {
				t.Fatalf("update id = %q, want existing", id)
			}
			updatedPlatform = platform
			updatedAt = at
			return nil
		},
	}

	svc := newTestTokenService(t, repo)

	result, isNew, err := svc.Register(context.Background(), "ExponentPushToken[abc]", "android", "2024-05-01T10:00:00+02:00")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if isNew {
		t.Fatal("Register() created = true, want false")
	}
	if createCalled {
		t.Fatal("Create should not be called for a known token")
	}
	if updatedPlatform != domain.PlatformAndroid || result.Platform != domain.PlatformAndroid {
		t.Fatalf("platform = %s/%s, want android", updatedPlatform, result.Platform)
	}

	want := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if !updatedAt.Equal(want) || !result.UpdatedAt.Equal(want) {
		t.Fatalf("updatedAt = %v, want %v", updatedAt, want)
	}
}

func TestTokenServiceRegisterValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		token     string
		platform  string
		timestamp string
	}{
		{name: "missing token", token: "  ", platform: "ios"},
		{name: "invalid platform", token: "ExponentPushToken[a]", platform: "web"},
		{name: "invalid timestamp", token: "ExponentPushToken[a]", platform: "ios", timestamp: "yesterday"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeTokenRepo{
				getByTokenFn: func(ctx context.Context, token string) (*domain.PushToken, error) {
					t.Fatal("repository should not be called on invalid input")
					return nil, nil
				},
			}
			svc := newTestTokenService(t, repo)

			_, _, err := svc.Register(context.Background(), tt.token, tt.platform, tt.timestamp)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestTokenServiceRegisterConcurrentCreateFallsBackToUpdate(t *testing.T) {
	t.Parallel()

	lookups := 0
	updated := false
	repo := &fakeTokenRepo{
		getByTokenFn: func(ctx context.Context, token string) (*domain.PushToken, error) {
			lookups++
			if lookups == 1 {
				return nil, domain.ErrNotFound
			}
			return &domain.PushToken{ID: "winner", Token: token, Platform: domain.PlatformIOS}, nil
		},
		createFn: func(ctx context.Context, token *domain.PushToken) error {
			return domain.ErrConflict
		},
		updatePlatformFn: func(ctx context.Context, id string, platform domain.Platform, at time.Time) error {
			updated = id == "winner"
			return nil
		},
	}

	svc := newTestTokenService(t, repo)

	result, isNew, err := svc.Register(context.Background(), "ExponentPushToken[a]", "android", "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if isNew || !updated || result.ID != "winner" {
		t.Fatalf("Register() = %+v created=%v updated=%v, want update of winner", result, isNew, updated)
	}
}

func TestTokenServiceRegisterLookupError(t *testing.T) {
	t.Parallel()

	repoErr := errors.New("connection refused")
	repo := &fakeTokenRepo{
		getByTokenFn: func(ctx context.Context, token string) (*domain.PushToken, error) {
			return nil, repoErr
		},
	}
	svc := newTestTokenService(t, repo)

	if _, _, err := svc.Register(context.Background(), "ExponentPushToken[a]", "ios", ""); !errors.Is(err, repoErr) {
		t.Fatalf("Register() error = %v, want %v", err, repoErr)
	}
}

func TestTokenServiceDelete(t *testing.T) {
	t.Parallel()

	deleted := ""
	repo := &fakeTokenRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			if id == testTokenID {
				deleted = id
				return nil
			}
			return domain.ErrNotFound
		},
	}
	svc := newTestTokenService(t, repo)

	if err := svc.Delete(context.Background(), testTokenID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted != testTokenID {
		t.Fatalf("deleted = %q, want %q", deleted, testTokenID)
	}

	if err := svc.Delete(context.Background(), "6b0f5a5e-0000-4000-8000-000000000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete(unknown) error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(context.Background(), "42"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete(non-uuid) error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Delete(empty) error = %v, want ErrValidation", err)
	}
}

func TestTokenServiceListPassesParams(t *testing.T) {
	t.Parallel()

	ios := domain.PlatformIOS
	repo := &fakeTokenRepo{
		listFn: func(ctx context.Context, params repository.ListParams) ([]domain.PushToken, int64, error) {
			if params.Platform == nil || *params.Platform != ios || params.Page != 2 {
				t.Fatalf("params = %+v, want ios page 2", params)
			}
			return []domain.PushToken{{ID: "1"}}, 11, nil
		},
	}
	svc := newTestTokenService(t, repo)

	tokens, total, err := svc.List(context.Background(), repository.ListParams{Platform: &ios, Page: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tokens) != 1 || total != 11 {
		t.Fatalf("List() = %d tokens, total %d; want 1, 11", len(tokens), total)
	}
}

func TestNewTokenServiceRequiresRepository(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenService(nil, nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
}

func newTestTokenService(t *testing.T, repo repository.PushTokenRepository) *TokenService {
	t.Helper()

	svc, err := NewTokenService(repo, nil)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	svc.now = fixedNow
	svc.newID = func() string { return testTokenID }
	return svc
}

type fakeTokenRepo struct {
	createFn         func(ctx context.Context, t *domain.PushToken) error
	getByTokenFn     func(ctx context.Context, token string) (*domain.PushToken, error)
	updatePlatformFn func(ctx context.Context, id string, platform domain.Platform, updatedAt time.Time) error
	deleteByIDFn     func(ctx context.Context, id string) error
	listFn           func(ctx context.Context, params repository.ListParams) ([]domain.PushToken, int64, error)
	listAddressesFn  func(ctx context.Context) ([]string, error)
}

func (f *fakeTokenRepo) Create(ctx context.Context, t *domain.PushToken) error {
	if f.createFn != nil {
		return f.createFn(ctx, t)
	}
	return nil
}

func (f *fakeTokenRepo) GetByToken(ctx context.Context, token string) (*domain.PushToken, error) {
	if f.getByTokenFn != nil {
		return f.getByTokenFn(ctx, token)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTokenRepo) UpdatePlatform(ctx context.Context, id string, platform domain.Platform, updatedAt time.Time) error {
	if f.updatePlatformFn != nil {
		return f.updatePlatformFn(ctx, id, platform, updatedAt)
	}
	return nil
}

func (f *fakeTokenRepo) DeleteByID(ctx context.Context, id string) error {
	if f.deleteByIDFn != nil {
		return f.deleteByIDFn(ctx, id)
	}
	return nil
}

func (f *fakeTokenRepo) List(ctx context.Context, params repository.ListParams) ([]domain.PushToken, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeTokenRepo) ListAddresses(ctx context.Context) ([]string, error) {
	if f.listAddressesFn != nil {
		return f.listAddressesFn(ctx)
	}
	return nil, nil
}
