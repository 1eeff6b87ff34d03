package challenge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/uvensys/captchify/lib/store/memory"
)

func testRegistry(t *testing.T, clock *time.Time) *Registry {
	t.Helper()

	reg := NewRegistry(memory.New(t.Context()), []byte("test key"), 8, 3*time.Minute)
	if clock != nil {
		reg.WithNow(func() time.Time { return *clock })
	}

	return reg
}

func TestCreate(t *testing.T) {
	reg := testRegistry(t, nil)

	c, err := reg.Create(t.Context(), "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	if len(c.Prefix) != 32 {
		t.Errorf("wanted 32 hex chars of prefix, got %d", len(c.Prefix))
	}

	if c.ID == c.ServerNonce {
		t.Error("identifier and server nonce must be independent")
	}

	got, err := reg.Get(t.Context(), c.ID)
	if err != nil {
		t.Fatal(err)
	}

	if got.Prefix != c.Prefix || got.IP != "203.0.113.7" {
		t.Errorf("stored challenge does not round-trip: %#v", got)
	}
}

func TestGetUnknown(t *testing.T) {
	reg := testRegistry(t, nil)

	if _, err := reg.Get(t.Context(), "never issued"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wanted ErrNotFound, got %v", err)
	}
}

func TestConsumeOnce(t *testing.T) {
	reg := testRegistry(t, nil)

	c, err := reg.Create(t.Context(), "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	if err := reg.Consume(t.Context(), c.ID); err != nil {
		t.Fatal(err)
	}

	if err := reg.Consume(t.Context(), c.ID); !errors.Is(err, ErrAlreadyUsed) {
		t.Errorf("second consume: wanted ErrAlreadyUsed, got %v", err)
	}

	if _, err := reg.Get(t.Context(), c.ID); !errors.Is(err, ErrAlreadyUsed) {
		t.Errorf("get after consume: wanted ErrAlreadyUsed, got %v", err)
	}
}

func TestConsumeConcurrent(t *testing.T) {
	reg := testRegistry(t, nil)

	c, err := reg.Create(t.Context(), "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	const racers = 16

	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)

	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reg.Consume(t.Context(), c.ID); err == nil {
				wins <- struct{}{}
			}
		}()
	}

	wg.Wait()
	close(wins)

	if got := len(wins); got != 1 {
		t.Errorf("wanted exactly 1 successful consume, got %d", got)
	}
}

func TestExpiry(t *testing.T) {
	clock := time.Now()
	reg := testRegistry(t, &clock)

	c, err := reg.Create(t.Context(), "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(reg.TTL() + time.Second)

	if _, err := reg.Get(t.Context(), c.ID); !errors.Is(err, ErrExpired) {
		t.Errorf("get after TTL: wanted ErrExpired, got %v", err)
	}

	if err := reg.Consume(t.Context(), c.ID); !errors.Is(err, ErrExpired) {
		t.Errorf("consume after TTL: wanted ErrExpired, got %v", err)
	}
}
