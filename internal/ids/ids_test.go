package ids

import (
	"strings"
	"sync"
	"testing"
)

func TestUserIDUniqueUnderConcurrency(t *testing.T) {
	const n = 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := UserID("vedarc")
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d unique ids, got %d", n, len(seen))
	}
	for id := range seen {
		if !strings.HasPrefix(id, "VEDARC-") {
			t.Fatalf("unexpected prefix: %s", id)
		}
		break
	}
}

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if a >= b {
		t.Fatalf("expected monotonic ids, got %s then %s", a, b)
	}
}

func TestCodeFormat(t *testing.T) {
	code := Code("cert")
	if !strings.HasPrefix(code, "CERT-") || len(code) != len("CERT-")+10 {
		t.Fatalf("unexpected code %q", code)
	}
	if Code("") == "" {
		t.Fatalf("expected non-empty code")
	}
}
