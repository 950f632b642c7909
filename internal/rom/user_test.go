package rom_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
	"github.com/durability-labs/ultra-data-burning-rom/internal/testutil"
)

func TestUserService_GetUser(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})

	if _, err := env.Users.GetUser("mallory"); !errors.Is(err, rom.ErrUnknownUser) {
		t.Errorf("GetUser(mallory) error = %v, want ErrUnknownUser", err)
	}

	user, err := env.Users.GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser(alice) error = %v", err)
	}
	if user.BurnState != model.BurnOpen || user.NewRomCID != "" {
		t.Errorf("new user = %+v, want Open with no rom", user)
	}
	bucket := getMount(t, env, user.BucketMountID)
	if bucket.State != model.MountBucket {
		t.Errorf("bucket state = %s, want Bucket", bucket.State)
	}

	again := getUser(t, env, "alice")
	if again.BucketMountID != user.BucketMountID {
		t.Errorf("second GetUser() bucket = %s, want %s", again.BucketMountID, user.BucketMountID)
	}
}

func TestUserService_IsValid(t *testing.T) {
	t.Parallel()
	users := rom.NewUserService(testutil.NewTestStore(t), nil, []string{"alice", ""}, rom.NewNopLogger())

	if !users.IsValid("alice") {
		t.Error("IsValid(alice) = false")
	}
	if users.IsValid("") {
		t.Error("IsValid(\"\") = true, empty names are never allow-listed")
	}
	if users.IsValid("Alice") {
		t.Error("IsValid(Alice) = true, names are case sensitive")
	}
}

func TestUserService_ConcurrentFirstAccess(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})

	var wg sync.WaitGroup
	buckets := make([]string, 8)
	for i := range buckets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := env.Users.GetUser("bob")
			if err == nil {
				buckets[i] = u.BucketMountID
			}
		}()
	}
	wg.Wait()

	for _, id := range buckets {
		if id != buckets[0] || id == "" {
			t.Fatalf("concurrent GetUser() returned buckets %q, want one shared bucket", buckets)
		}
	}
}
