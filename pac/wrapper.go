package pac

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/microsoft/powerplatform-vscode-sub000/logger"
)

// Executor sends one command and returns the raw reply line. *Channel is
// the production implementation; MockExecutor serves tests.
type Executor interface {
	ExecuteCommand(ctx context.Context, cmd Command) (string, error)
}

// exiter is implemented by executors that own a pac process.
type exiter interface {
	Exit() error
}

// commandKind decides how a command interacts with the reply cache.
type commandKind int

const (
	kindPlain    commandKind = iota
	kindReadOnly             // reply may be cached
	kindMutating             // invalidates cached replies
)

// WrapperOption configures a Wrapper.
type WrapperOption func(*Wrapper)

// WithCacheTTL caches Success replies of read-only commands for ttl. Zero
// or negative disables caching.
func WithCacheTTL(ttl time.Duration) WrapperOption {
	return func(w *Wrapper) {
		if ttl > 0 {
			w.cache = newReplyCache(ttl)
		}
	}
}

// WithWrapperLogger sets the logger used by the Wrapper.
func WithWrapperLogger(log *slog.Logger) WrapperOption {
	return func(w *Wrapper) {
		w.log = log
	}
}

// Wrapper exposes typed pac operations over an Executor.
//
// Every operation returns the decoded envelope. A reply with Status
// "Failed" is returned normally with a nil error; only transport failures
// and malformed replies produce an error.
type Wrapper struct {
	exec  Executor
	cache *replyCache
	log   *slog.Logger
}

// NewWrapper creates a Wrapper over exec.
func NewWrapper(exec Executor, opts ...WrapperOption) *Wrapper {
	w := &Wrapper{exec: exec}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.WithComponent("pac-wrapper")
	}
	return w
}

// Close releases the reply cache. It does not stop the executor.
func (w *Wrapper) Close() {
	if w.cache != nil {
		w.cache.close()
	}
}

// InvalidateCache drops every cached reply.
func (w *Wrapper) InvalidateCache() {
	if w.cache != nil {
		w.cache.purge()
	}
}

// execute runs cmd and decodes its reply, consulting the cache per kind.
//
// A mutating command purges the cache before it is sent and again when it
// ends, whatever the outcome: a command that timed out may still have been
// applied by pac.
func execute[T any](ctx context.Context, w *Wrapper, kind commandKind, cmd Command) (*OutputWithResult[T], error) {
	var gen uint64
	if w.cache != nil {
		switch kind {
		case kindReadOnly:
			if line, ok := w.cache.get(cmd); ok {
				w.log.Debug("serving cached pac reply", "command", cmd.String())
				return ParseOutput[T](line)
			}
			gen = w.cache.generation()
		case kindMutating:
			w.cache.purge()
			defer w.cache.purge()
		}
	}

	line, err := w.exec.ExecuteCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}

	out, err := ParseOutput[T](line)
	if err != nil {
		return nil, err
	}

	if !out.Succeeded() {
		w.log.Debug("pac reported failure", "command", cmd.String(), "errors", out.Errors)
	} else if kind == kindReadOnly && w.cache != nil {
		if !w.cache.set(cmd, line, gen) {
			w.log.Debug("not caching reply fetched before a purge", "command", cmd.String())
		}
	}
	return out, nil
}

func executeOutput(ctx context.Context, w *Wrapper, kind commandKind, cmd Command) (*Output, error) {
	out, err := execute[json.RawMessage](ctx, w, kind, cmd)
	if err != nil {
		return nil, err
	}
	return &out.Output, nil
}

// AuthList lists the authentication profiles.
func (w *Wrapper) AuthList(ctx context.Context) (*OutputWithResult[[]AuthProfile], error) {
	return execute[[]AuthProfile](ctx, w, kindReadOnly, NewCommand("auth", "list"))
}

// AuthWho describes the active authentication profile.
func (w *Wrapper) AuthWho(ctx context.Context) (*OutputWithResult[AuthProfile], error) {
	return execute[AuthProfile](ctx, w, kindReadOnly, NewCommand("auth", "who"))
}

// AuthCreate creates a profile for the environment at orgURL. cloud may be
// empty to use pac's default cloud.
func (w *Wrapper) AuthCreate(ctx context.Context, orgURL, cloud string) (*Output, error) {
	tokens := []string{"auth", "create", "--environment", orgURL}
	if cloud != "" {
		tokens = append(tokens, "--cloud", cloud)
	}
	return executeOutput(ctx, w, kindMutating, NewCommand(tokens...))
}

// AuthSelectByIndex makes the profile at index active.
func (w *Wrapper) AuthSelectByIndex(ctx context.Context, index int) (*Output, error) {
	return executeOutput(ctx, w, kindMutating, NewCommand("auth", "select", "--index", strconv.Itoa(index)))
}

// AuthDeleteByIndex deletes the profile at index.
func (w *Wrapper) AuthDeleteByIndex(ctx context.Context, index int) (*Output, error) {
	return executeOutput(ctx, w, kindMutating, NewCommand("auth", "delete", "--index", strconv.Itoa(index)))
}

// AuthNameByIndex renames the profile at index.
func (w *Wrapper) AuthNameByIndex(ctx context.Context, index int, name string) (*Output, error) {
	return executeOutput(ctx, w, kindMutating, NewCommand("auth", "name", "--index", strconv.Itoa(index), "--name", name))
}

// AuthClear deletes every profile.
func (w *Wrapper) AuthClear(ctx context.Context) (*Output, error) {
	return executeOutput(ctx, w, kindMutating, NewCommand("auth", "clear"))
}

// OrgList lists the environments reachable with the active profile.
func (w *Wrapper) OrgList(ctx context.Context) (*OutputWithResult[[]Organization], error) {
	return execute[[]Organization](ctx, w, kindReadOnly, NewCommand("org", "list"))
}

// OrgWho describes the active environment.
func (w *Wrapper) OrgWho(ctx context.Context) (*OutputWithResult[OrgWho], error) {
	return execute[OrgWho](ctx, w, kindReadOnly, NewCommand("org", "who", "--json"))
}

// OrgSelect makes the environment at orgURL active.
func (w *Wrapper) OrgSelect(ctx context.Context, orgURL string) (*Output, error) {
	return executeOutput(ctx, w, kindMutating, NewCommand("org", "select", "--environment", orgURL))
}

// SolutionList lists the solutions in the active environment.
func (w *Wrapper) SolutionList(ctx context.Context) (*OutputWithResult[[]Solution], error) {
	return execute[[]Solution](ctx, w, kindReadOnly, NewCommand("solution", "list"))
}

// PagesList lists the Power Pages sites in the active environment.
func (w *Wrapper) PagesList(ctx context.Context) (*OutputWithResult[[]PagesSite], error) {
	return execute[[]PagesSite](ctx, w, kindReadOnly, NewCommand("pages", "list", "--verbose"))
}

// PcfInit scaffolds a PCF component project in outputDir.
func (w *Wrapper) PcfInit(ctx context.Context, outputDir string) (*Output, error) {
	return executeOutput(ctx, w, kindPlain, NewCommand("pcf", "init", "--outputDirectory", outputDir))
}

// Raw runs an arbitrary command and leaves Results undecoded. It bypasses
// the cache.
func (w *Wrapper) Raw(ctx context.Context, tokens ...string) (*OutputWithResult[json.RawMessage], error) {
	return execute[json.RawMessage](ctx, w, kindPlain, NewCommand(tokens...))
}

// Overview gathers the auth profiles and the active environment.
type Overview struct {
	Profiles  []AuthProfile
	ActiveOrg *OrgWho
	Errors    []string
}

// Overview fetches AuthList and OrgWho concurrently. Failed envelopes
// contribute their Errors; transport errors abort the whole call.
func (w *Wrapper) Overview(ctx context.Context) (*Overview, error) {
	var (
		auth *OutputWithResult[[]AuthProfile]
		org  *OutputWithResult[OrgWho]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		auth, err = w.AuthList(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		org, err = w.OrgWho(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ov := &Overview{}
	if auth.Succeeded() {
		ov.Profiles = auth.Results
	} else {
		ov.Errors = append(ov.Errors, auth.Errors...)
	}
	if org.Succeeded() {
		who := org.Results
		ov.ActiveOrg = &who
	} else {
		ov.Errors = append(ov.Errors, org.Errors...)
	}
	return ov, nil
}

// Exit asks the underlying pac process to terminate, when the executor
// owns one.
func (w *Wrapper) Exit() error {
	if e, ok := w.exec.(exiter); ok {
		return e.Exit()
	}
	return nil
}
