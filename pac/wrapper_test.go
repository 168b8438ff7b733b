package pac

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestWrapper(t *testing.T, opts ...WrapperOption) (*Wrapper, *MockExecutor) {
	t.Helper()
	mock := NewMockExecutor()
	w := NewWrapper(mock, opts...)
	t.Cleanup(w.Close)
	return w, mock
}

func TestWrapper_CommandTokens(t *testing.T) {
	ctx := context.Background()
	ok := MockReply{Line: `{"Status":"Success","Results":null}`}

	tests := []struct {
		name string
		call func(w *Wrapper) error
		want string
	}{
		{"AuthList", func(w *Wrapper) error { _, err := w.AuthList(ctx); return err }, "auth list"},
		{"AuthWho", func(w *Wrapper) error { _, err := w.AuthWho(ctx); return err }, "auth who"},
		{"AuthCreate", func(w *Wrapper) error { _, err := w.AuthCreate(ctx, "https://x.crm/", ""); return err }, "auth create --environment https://x.crm/"},
		{"AuthCreateCloud", func(w *Wrapper) error { _, err := w.AuthCreate(ctx, "https://x.crm/", "UsGov"); return err }, "auth create --environment https://x.crm/ --cloud UsGov"},
		{"AuthSelectByIndex", func(w *Wrapper) error { _, err := w.AuthSelectByIndex(ctx, 2); return err }, "auth select --index 2"},
		{"AuthDeleteByIndex", func(w *Wrapper) error { _, err := w.AuthDeleteByIndex(ctx, 3); return err }, "auth delete --index 3"},
		{"AuthNameByIndex", func(w *Wrapper) error { _, err := w.AuthNameByIndex(ctx, 1, "prod"); return err }, "auth name --index 1 --name prod"},
		{"AuthClear", func(w *Wrapper) error { _, err := w.AuthClear(ctx); return err }, "auth clear"},
		{"OrgList", func(w *Wrapper) error { _, err := w.OrgList(ctx); return err }, "org list"},
		{"OrgWho", func(w *Wrapper) error { _, err := w.OrgWho(ctx); return err }, "org who --json"},
		{"OrgSelect", func(w *Wrapper) error { _, err := w.OrgSelect(ctx, "https://y.crm/"); return err }, "org select --environment https://y.crm/"},
		{"SolutionList", func(w *Wrapper) error { _, err := w.SolutionList(ctx); return err }, "solution list"},
		{"PagesList", func(w *Wrapper) error { _, err := w.PagesList(ctx); return err }, "pages list --verbose"},
		{"PcfInit", func(w *Wrapper) error { _, err := w.PcfInit(ctx, "/tmp/comp"); return err }, "pcf init --outputDirectory /tmp/comp"},
		{"Raw", func(w *Wrapper) error { _, err := w.Raw(ctx, "help"); return err }, "help"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, mock := newTestWrapper(t)
			mock.AddRule(func(Command) bool { return true }, ok)

			if err := tt.call(w); err != nil {
				t.Fatalf("%s() error = %v", tt.name, err)
			}
			calls := mock.GetCalls()
			if len(calls) != 1 {
				t.Fatalf("executed %d commands, want 1", len(calls))
			}
			if got := calls[0].String(); got != tt.want {
				t.Errorf("command = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapper_AuthListDecodes(t *testing.T) {
	w, mock := newTestWrapper(t)
	mock.AddExactMatch([]string{"auth", "list"}, MockReply{Line: authListReply})

	out, err := w.AuthList(context.Background())
	if err != nil {
		t.Fatalf("AuthList() error = %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("got %d profiles, want 2", len(out.Results))
	}
	if p := out.Results[0]; p.Name != "dev" || !p.ActiveAuthProfile || p.Index != 1 {
		t.Errorf("profile[0] = %+v", p)
	}
	if out.Results[1].ActiveOrganization != nil {
		t.Errorf("profile[1].ActiveOrganization = %+v, want nil", out.Results[1].ActiveOrganization)
	}
}

func TestWrapper_FailedStatusIsReturned(t *testing.T) {
	w, mock := newTestWrapper(t)
	mock.AddPrefixMatch([]string{"org", "select"}, MockReply{Line: failedReply})

	out, err := w.OrgSelect(context.Background(), "https://nope.crm/")
	if err != nil {
		t.Fatalf("OrgSelect() error = %v, want nil for a Failed envelope", err)
	}
	if out.Succeeded() {
		t.Error("Succeeded() = true for Failed envelope")
	}
	if len(out.Errors) != 1 || out.Errors[0] != "something broke" {
		t.Errorf("Errors = %v", out.Errors)
	}
	if len(out.Information) != 1 {
		t.Errorf("Information = %v", out.Information)
	}
}

func TestWrapper_Errors(t *testing.T) {
	t.Run("malformed reply", func(t *testing.T) {
		w, mock := newTestWrapper(t)
		mock.AddExactMatch([]string{"solution", "list"}, MockReply{Line: "oops}"})

		_, err := w.SolutionList(context.Background())
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("error = %v, want *ParseError", err)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		w, mock := newTestWrapper(t)
		mock.AddExactMatch([]string{"auth", "who"}, MockReply{Err: ErrChannelClosed})

		_, err := w.AuthWho(context.Background())
		if !errors.Is(err, ErrChannelClosed) {
			t.Errorf("error = %v, want ErrChannelClosed", err)
		}
	})

	t.Run("no rule", func(t *testing.T) {
		w, _ := newTestWrapper(t)

		_, err := w.PagesList(context.Background())
		if !errors.Is(err, ErrNoMockReply) {
			t.Errorf("error = %v, want ErrNoMockReply", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		w, mock := newTestWrapper(t)
		mock.AddRule(func(Command) bool { return true }, MockReply{Line: `{"Status":"Success"}`})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := w.AuthClear(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

func TestWrapper_CacheServesReadOnlyReplies(t *testing.T) {
	w, mock := newTestWrapper(t, WithCacheTTL(time.Minute))
	mock.AddExactMatch([]string{"auth", "list"}, MockReply{Line: authListReply})
	mock.AddPrefixMatch([]string{"auth", "select"}, MockReply{Line: `{"Status":"Success"}`})

	ctx := context.Background()
	for range 3 {
		if _, err := w.AuthList(ctx); err != nil {
			t.Fatalf("AuthList() error = %v", err)
		}
	}
	if n := len(mock.GetCalls()); n != 1 {
		t.Fatalf("executed %d commands, want 1 with caching", n)
	}

	// A mutation invalidates everything cached.
	if _, err := w.AuthSelectByIndex(ctx, 2); err != nil {
		t.Fatalf("AuthSelectByIndex() error = %v", err)
	}
	if w.cache.len() != 0 {
		t.Errorf("cache holds %d entries after mutation, want 0", w.cache.len())
	}
	if _, err := w.AuthList(ctx); err != nil {
		t.Fatalf("AuthList() error = %v", err)
	}
	if n := len(mock.GetCalls()); n != 3 {
		t.Errorf("executed %d commands, want 3", n)
	}
}

func TestWrapper_CacheSkipsFailuresAndPlainCommands(t *testing.T) {
	w, mock := newTestWrapper(t, WithCacheTTL(time.Minute))
	mock.AddExactMatch([]string{"org", "list"}, MockReply{Line: failedReply})
	mock.AddExactMatch([]string{"help"}, MockReply{Line: `{"Status":"Success"}`})

	ctx := context.Background()
	for range 2 {
		if _, err := w.OrgList(ctx); err != nil {
			t.Fatalf("OrgList() error = %v", err)
		}
		if _, err := w.Raw(ctx, "help"); err != nil {
			t.Fatalf("Raw() error = %v", err)
		}
	}
	if n := len(mock.GetCalls()); n != 4 {
		t.Errorf("executed %d commands, want 4", n)
	}

	w.InvalidateCache()
	if w.cache.len() != 0 {
		t.Errorf("cache len = %d after InvalidateCache", w.cache.len())
	}
}

func TestWrapper_CacheExpires(t *testing.T) {
	w, mock := newTestWrapper(t, WithCacheTTL(50*time.Millisecond))
	mock.AddExactMatch([]string{"org", "who", "--json"}, MockReply{Line: orgWhoReply})

	ctx := context.Background()
	if _, err := w.OrgWho(ctx); err != nil {
		t.Fatalf("OrgWho() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := w.OrgWho(ctx); err != nil {
		t.Fatalf("OrgWho() error = %v", err)
	}
	if n := len(mock.GetCalls()); n != 2 {
		t.Errorf("executed %d commands, want 2 after expiry", n)
	}
}

func TestWrapper_Overview(t *testing.T) {
	t.Run("both succeed", func(t *testing.T) {
		w, mock := newTestWrapper(t)
		mock.AddExactMatch([]string{"auth", "list"}, MockReply{Line: authListReply})
		mock.AddExactMatch([]string{"org", "who", "--json"}, MockReply{Line: orgWhoReply})

		ov, err := w.Overview(context.Background())
		if err != nil {
			t.Fatalf("Overview() error = %v", err)
		}
		if len(ov.Profiles) != 2 {
			t.Errorf("Profiles = %d, want 2", len(ov.Profiles))
		}
		if ov.ActiveOrg == nil || ov.ActiveOrg.UniqueName != "contoso" {
			t.Errorf("ActiveOrg = %+v", ov.ActiveOrg)
		}
		if len(ov.Errors) != 0 {
			t.Errorf("Errors = %v", ov.Errors)
		}
	})

	t.Run("failed envelope collected", func(t *testing.T) {
		w, mock := newTestWrapper(t)
		mock.AddExactMatch([]string{"auth", "list"}, MockReply{Line: authListReply})
		mock.AddPrefixMatch([]string{"org", "who"}, MockReply{Line: failedReply})

		ov, err := w.Overview(context.Background())
		if err != nil {
			t.Fatalf("Overview() error = %v", err)
		}
		if ov.ActiveOrg != nil {
			t.Errorf("ActiveOrg = %+v, want nil", ov.ActiveOrg)
		}
		if strings.Join(ov.Errors, ",") != "something broke" {
			t.Errorf("Errors = %v", ov.Errors)
		}
	})

	t.Run("transport error aborts", func(t *testing.T) {
		w, mock := newTestWrapper(t)
		mock.AddExactMatch([]string{"auth", "list"}, MockReply{Err: ErrProcessExited})
		mock.AddPrefixMatch([]string{"org", "who"}, MockReply{Line: orgWhoReply})

		_, err := w.Overview(context.Background())
		if !errors.Is(err, ErrProcessExited) {
			t.Errorf("error = %v, want ErrProcessExited", err)
		}
	})
}

func TestWrapper_Exit(t *testing.T) {
	w, mock := newTestWrapper(t)
	if err := w.Exit(); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}
	if !mock.Exited() {
		t.Error("Exit() did not reach the executor")
	}
}

func TestWrapper_OverChannel(t *testing.T) {
	ch := openHelper(t, "echo")
	w := NewWrapper(ch, WithCacheTTL(time.Minute))
	defer w.Close()

	ov, err := w.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if len(ov.Profiles) != 2 || ov.ActiveOrg == nil {
		t.Fatalf("Overview() = %+v", ov)
	}

	if err := w.Exit(); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}
	if _, err := w.SolutionList(context.Background()); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("SolutionList() after Exit error = %v, want ErrChannelClosed", err)
	}
}

func TestWrapper_FailedMutationStillPurges(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
	}{
		{"timed out", context.DeadlineExceeded},
		{"cancelled", context.Canceled},
		{"channel closed", ErrChannelClosed},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w, mock := newTestWrapper(t, WithCacheTTL(time.Minute))
			mock.AddExactMatch([]string{"auth", "list"}, MockReply{Line: authListReply})
			mock.AddPrefixMatch([]string{"auth", "select"}, MockReply{Err: tt.err})

			ctx := context.Background()
			if _, err := w.AuthList(ctx); err != nil {
				t.Fatalf("AuthList() error = %v", err)
			}
			if w.cache.len() != 1 {
				t.Fatalf("cache len = %d, want 1", w.cache.len())
			}

			// pac may have applied the selection before the reply was lost.
			if _, err := w.AuthSelectByIndex(ctx, 1); !errors.Is(err, tt.err) {
				t.Fatalf("AuthSelectByIndex() error = %v, want %v", err, tt.err)
			}
			if w.cache.len() != 0 {
				t.Errorf("cache len = %d after failed mutation, want 0", w.cache.len())
			}
			if _, err := w.AuthList(ctx); err != nil {
				t.Fatalf("AuthList() error = %v", err)
			}
			if n := len(mock.GetCalls()); n != 3 {
				t.Errorf("executed %d commands, want 3", n)
			}
		})
	}
}

func TestWrapper_ReadInFlightAcrossPurgeNotCached(t *testing.T) {
	w, mock := newTestWrapper(t, WithCacheTTL(time.Minute))

	started := make(chan struct{})
	release := make(chan struct{})
	var blocked atomic.Bool
	mock.AddRule(func(cmd Command) bool {
		if cmd.Equal(NewCommand("auth", "list")) && blocked.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		return false
	}, MockReply{})
	mock.AddExactMatch([]string{"auth", "list"}, MockReply{Line: authListReply})

	ctx := context.Background()
	errc := make(chan error, 1)
	go func() {
		_, err := w.AuthList(ctx)
		errc <- err
	}()

	<-started
	w.InvalidateCache()
	close(release)

	if err := <-errc; err != nil {
		t.Fatalf("AuthList() error = %v", err)
	}
	if w.cache.len() != 0 {
		t.Errorf("reply fetched before the purge was cached")
	}

	// The next read starts after the purge and is cached as usual.
	for range 2 {
		if _, err := w.AuthList(ctx); err != nil {
			t.Fatalf("AuthList() error = %v", err)
		}
	}
	if n := len(mock.GetCalls()); n != 2 {
		t.Errorf("executed %d commands, want 2", n)
	}
}
