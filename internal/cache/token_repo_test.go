package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"github.com/kursadbilgin/push-broadcast/internal/repository"
	goredis "github.com/redis/go-redis/v9"
)

func TestCachedTokenRepositoryServesSecondReadFromRedis(t *testing.T) {
	t.Parallel()

	store := &fakeTokenRepo{addresses: []string{"ExponentPushToken[a]", "ExponentPushToken[b]"}}
	repo, mr := newTestCachedRepo(t, store)

	first, err := repo.ListAddresses(context.Background())
	if err != nil {
		t.Fatalf("ListAddresses() error = %v", err)
	}
	second, err := repo.ListAddresses(context.Background())
	if err != nil {
		t.Fatalf("ListAddresses() error = %v", err)
	}

	if store.listCalls != 1 {
		t.Fatalf("store ListAddresses calls = %d, want 1", store.listCalls)
	}
	if len(first) != 2 || len(second) != 2 || second[0] != "ExponentPushToken[a]" {
		t.Fatalf("addresses = %v / %v, want both snapshots", first, second)
	}
	if !mr.Exists(AddressesKey) {
		t.Fatalf("expected %s to be cached", AddressesKey)
	}
	if ttl := mr.TTL(AddressesKey); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}
}

func TestCachedTokenRepositoryWritesInvalidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(repo *CachedTokenRepository) error
	}{
		{
			name: "create",
			write: func(repo *CachedTokenRepository) error {
				return repo.Create(context.Background(), &domain.PushToken{ID: "1", Token: "ExponentPushToken[c]", Platform: domain.PlatformIOS})
			},
		},
		{
			name: "update platform",
			write: func(repo *CachedTokenRepository) error {
				return repo.UpdatePlatform(context.Background(), "1", domain.PlatformAndroid, time.Now())
			},
		},
		{
			name: "delete",
			write: func(repo *CachedTokenRepository) error {
				return repo.DeleteByID(context.Background(), "1")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &fakeTokenRepo{addresses: []string{"ExponentPushToken[a]"}}
			repo, mr := newTestCachedRepo(t, store)

			if _, err := repo.ListAddresses(context.Background()); err != nil {
				t.Fatalf("ListAddresses() error = %v", err)
			}
			if err := tt.write(repo); err != nil {
				t.Fatalf("write error = %v", err)
			}
			if mr.Exists(AddressesKey) {
				t.Fatal("cache should be invalidated after write")
			}

			if _, err := repo.ListAddresses(context.Background()); err != nil {
				t.Fatalf("ListAddresses() error = %v", err)
			}
			if store.listCalls != 2 {
				t.Fatalf("store ListAddresses calls = %d, want 2", store.listCalls)
			}
		})
	}
}

func TestCachedTokenRepositoryFailedWriteKeepsCache(t *testing.T) {
	t.Parallel()

	store := &fakeTokenRepo{
		addresses: []string{"ExponentPushToken[a]"},
		deleteErr: domain.ErrNotFound,
	}
	repo, mr := newTestCachedRepo(t, store)

	if _, err := repo.ListAddresses(context.Background()); err != nil {
		t.Fatalf("ListAddresses() error = %v", err)
	}
	if err := repo.DeleteByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DeleteByID() error = %v, want ErrNotFound", err)
	}
	if !mr.Exists(AddressesKey) {
		t.Fatal("cache should survive a failed write")
	}
}

func TestCachedTokenRepositoryFallsBackWhenRedisDown(t *testing.T) {
	t.Parallel()

	store := &fakeTokenRepo{addresses: []string{"ExponentPushToken[a]"}}
	repo, mr := newTestCachedRepo(t, store)
	mr.Close()

	addresses, err := repo.ListAddresses(context.Background())
	if err != nil {
		t.Fatalf("ListAddresses() error = %v", err)
	}
	if len(addresses) != 1 {
		t.Fatalf("addresses = %v, want store snapshot", addresses)
	}
}

func TestCachedTokenRepositoryIgnoresCorruptEntry(t *testing.T) {
	t.Parallel()

	store := &fakeTokenRepo{addresses: []string{"ExponentPushToken[a]"}}
	repo, mr := newTestCachedRepo(t, store)
	if err := mr.Set(AddressesKey, "{not json"); err != nil {
		t.Fatalf("miniredis Set() error = %v", err)
	}

	addresses, err := repo.ListAddresses(context.Background())
	if err != nil {
		t.Fatalf("ListAddresses() error = %v", err)
	}
	if len(addresses) != 1 || store.listCalls != 1 {
		t.Fatalf("addresses = %v, calls = %d; want store fallback", addresses, store.listCalls)
	}
}

func TestCachedTokenRepositoryPropagatesStoreError(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("db down")
	repo, mr := newTestCachedRepo(t, &fakeTokenRepo{listErr: storeErr})

	if _, err := repo.ListAddresses(context.Background()); !errors.Is(err, storeErr) {
		t.Fatalf("ListAddresses() error = %v, want %v", err, storeErr)
	}
	if mr.Exists(AddressesKey) {
		t.Fatal("store errors must not be cached")
	}
}

func TestNewCachedTokenRepositoryValidation(t *testing.T) {
	t.Parallel()

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	if _, err := NewCachedTokenRepository(nil, client, time.Minute, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewCachedTokenRepository(&fakeTokenRepo{}, nil, time.Minute, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewCachedTokenRepository(&fakeTokenRepo{}, client, 0, nil); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func newTestCachedRepo(t *testing.T, store repository.PushTokenRepository) (*CachedTokenRepository, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := NewCachedTokenRepository(store, client, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewCachedTokenRepository() error = %v", err)
	}
	return repo, mr
}

type fakeTokenRepo struct {
	addresses []string
	listErr   error
	deleteErr error
	listCalls int
}

func (f *fakeTokenRepo) Create(ctx context.Context, t *domain.PushToken) error { return nil }

func (f *fakeTokenRepo) GetByToken(ctx context.Context, token string) (*domain.PushToken, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeTokenRepo) UpdatePlatform(ctx context.Context, id string, platform domain.Platform, updatedAt time.Time) error {
	return nil
}

func (f *fakeTokenRepo) DeleteByID(ctx context.Context, id string) error { return f.deleteErr }

func (f *fakeTokenRepo) List(ctx context.Context, params repository.ListParams) ([]domain.PushToken, int64, error) {
	return nil, 0, nil
}

func (f *fakeTokenRepo) ListAddresses(ctx context.Context) ([]string, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.addresses, nil
}
