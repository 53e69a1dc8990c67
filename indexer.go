package eventdex

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	metaDir     = "meta"
	typeDir     = "type"
	argumentDir = "args"
)

var errNotStarted = errors.New("indexer not started")

// Indexer feeds events to a MetaFragment, a TypeFragment and one
// ArgumentFragment per event name. Every fragment runs as its own task
// and processes its events in the order they were added; distinct
// fragments index concurrently.
type Indexer struct {
	mtx sync.Mutex

	dir    string
	opts   []Option
	logger *zap.Logger
	queue  int

	meta  *MetaFragment
	types *TypeFragment
	args  map[string]*ArgumentFragment

	tasks    []*task
	argTasks map[string]*task
	group    *errgroup.Group
	ctx      context.Context
	started  bool
	closed   bool
}

// NewIndexer opens the fragments stored in dir, creating dir if needed.
// The options are passed on to every fragment.
func NewIndexer(dir string, opts ...Option) (*Indexer, error) {
	o := newOptions(opts)

	i := &Indexer{
		dir:    dir,
		opts:   opts,
		logger: o.logger,
		queue:  o.queueSize,
		args:   make(map[string]*ArgumentFragment),

		argTasks: make(map[string]*task),
	}

	var err error

	if i.meta, err = NewMetaFragment(filepath.Join(dir, metaDir), opts...); err != nil {
		return nil, err
	}

	if i.types, err = NewTypeFragment(filepath.Join(dir, typeDir), opts...); err != nil {
		return nil, err
	}

	if err := i.loadArguments(); err != nil {
		return nil, err
	}

	i.logger.Info("opened indexer",
		zap.String("dir", dir),
		zap.Uint64("next_id", i.nextID()),
		zap.Int("schemas", len(i.args)),
	)

	return i, nil
}

func (i *Indexer) loadArguments() error {
	entries, err := os.ReadDir(filepath.Join(i.dir, argumentDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			return fmt.Errorf("%w: unexpected file %s in %s", ErrFormat, entry.Name(), argumentDir)
		}

		name, err := unescapeEventName(entry.Name())
		if err != nil {
			return err
		}

		f, err := NewArgumentFragment(filepath.Join(i.dir, argumentDir, entry.Name()), i.opts...)
		if err != nil {
			return err
		}

		i.args[name] = f
	}

	return nil
}

// escapeEventName maps an event name to a directory name. url.PathEscape
// keeps dots, so names that would be special to the file system get
// their dots escaped as well.
func escapeEventName(name string) string {
	switch name {
	case "":
		return "%"
	case ".", "..":
		return strings.ReplaceAll(name, ".", "%2E")
	}
	return url.PathEscape(name)
}

func unescapeEventName(dirname string) (string, error) {
	if dirname == "%" {
		return "", nil
	}

	name, err := url.PathUnescape(dirname)
	if err != nil {
		return "", fmt.Errorf("%w: invalid schema directory %q: %v", ErrFormat, dirname, err)
	}

	if escapeEventName(name) != dirname {
		return "", fmt.Errorf("%w: non-canonical schema directory %q", ErrFormat, dirname)
	}

	return name, nil
}

// Start launches one task per fragment. The tasks run until Close is
// called, which stores every fragment one last time. Once ctx is
// cancelled, Add and Store fail and Close returns the cancellation cause.
// Start does nothing if the indexer was started or closed before.
func (i *Indexer) Start(ctx context.Context) {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	if i.started || i.closed {
		return
	}

	i.group, i.ctx = errgroup.WithContext(ctx)
	i.started = true

	i.launch("meta", i.meta)
	i.launch("type", i.types)

	for name, f := range i.args {
		i.argTasks[name] = i.launch("args/"+name, f)
	}
}

func (i *Indexer) launch(name string, f Fragment) *task {
	t := &task{
		name:     name,
		fragment: f,
		requests: make(chan request, i.queue),
		logger:   i.logger.With(zap.String("task", name)),
	}

	i.tasks = append(i.tasks, t)
	i.group.Go(func() error {
		return t.run(i.ctx)
	})

	return t
}

// NextID returns the ID the next event is expected to carry: one past
// the highest ID any fragment has seen.
func (i *Indexer) NextID() uint64 {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	return i.nextID()
}

func (i *Indexer) nextID() uint64 {
	var next uint64
	for _, f := range i.fragments() {
		next = max(next, f.Size())
	}
	return next
}

// Add hands e to the meta, type and argument fragments. It returns once
// e is queued; partially indexed events are logged and counted, but do
// not stop the indexer.
func (i *Indexer) Add(ctx context.Context, e *Event) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	if err := i.ready(); err != nil {
		return err
	}

	args, err := i.argumentTask(e.Name)
	if err != nil {
		return err
	}

	req := request{event: e}

	for _, t := range []*task{i.tasks[0], i.tasks[1], args} {
		if err := i.send(ctx, t, req); err != nil {
			return err
		}
	}

	return nil
}

func (i *Indexer) ready() error {
	if i.closed {
		return ErrTerminated
	}
	if !i.started {
		return errNotStarted
	}
	return nil
}

func (i *Indexer) argumentTask(name string) (*task, error) {
	if t, ok := i.argTasks[name]; ok {
		return t, nil
	}

	f, err := NewArgumentFragment(filepath.Join(i.dir, argumentDir, escapeEventName(name)), i.opts...)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("created argument fragment", zap.String("name", name), zap.String("dir", f.Dir()))

	i.args[name] = f
	i.argTasks[name] = i.launch("args/"+name, f)

	return i.argTasks[name], nil
}

func (i *Indexer) send(ctx context.Context, t *task, req request) error {
	// select picks at random among ready cases, so a free queue slot must
	// not win over a cancelled context.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := context.Cause(i.ctx); err != nil {
		return fmt.Errorf("indexer stopped: %w", err)
	}

	select {
	case t.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return fmt.Errorf("indexer stopped: %w", context.Cause(i.ctx))
	}
}

// Store makes every fragment write its indexes, after all events added
// so far have been indexed.
func (i *Indexer) Store(ctx context.Context) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	if err := i.ready(); err != nil {
		return err
	}

	replies := make([]chan error, len(i.tasks))

	for idx, t := range i.tasks {
		replies[idx] = make(chan error, 1)
		if err := i.send(ctx, t, request{stored: replies[idx]}); err != nil {
			return err
		}
	}

	var errs []error
	for idx, reply := range replies {
		select {
		case err := <-reply:
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", i.tasks[idx].name, err))
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-i.ctx.Done():
			return fmt.Errorf("indexer stopped: %w", context.Cause(i.ctx))
		}
	}

	return errors.Join(errs...)
}

// Close waits until all queued events are indexed, then stores and
// terminates every fragment. It returns the first error any task
// encountered.
func (i *Indexer) Close() error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	if i.closed {
		return ErrTerminated
	}
	i.closed = true

	if !i.started {
		var errs []error
		for _, f := range i.fragments() {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}

	for _, t := range i.tasks {
		close(t.requests)
	}

	err := i.group.Wait()

	i.logger.Info("closed indexer", zap.String("dir", i.dir), zap.Uint64("next_id", i.nextID()), zap.Error(err))

	return err
}

// Fragments returns the meta fragment, the type fragment and the argument
// fragments ordered by event name.
func (i *Indexer) Fragments() []Fragment {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	return i.fragments()
}

func (i *Indexer) fragments() []Fragment {
	names := make([]string, 0, len(i.args))
	for name := range i.args {
		names = append(names, name)
	}
	sort.Strings(names)

	fragments := []Fragment{i.meta, i.types}
	for _, name := range names {
		fragments = append(fragments, i.args[name])
	}
	return fragments
}

// Meta returns the meta fragment.
func (i *Indexer) Meta() *MetaFragment {
	return i.meta
}

// Types returns the type fragment.
func (i *Indexer) Types() *TypeFragment {
	return i.types
}

// Arguments returns the argument fragment for events called name.
func (i *Indexer) Arguments(name string) (*ArgumentFragment, bool) {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	f, ok := i.args[name]
	return f, ok
}

// request is either an event to index or, if stored is set, a request to
// store the fragment.
type request struct {
	event  *Event
	stored chan<- error
}

type task struct {
	name     string
	fragment Fragment
	requests chan request
	logger   *zap.Logger
}

// run handles requests until Close closes the queue. Cancelling ctx stops
// new requests from being queued, but those already queued are still
// handled so that all fragments end at the same event.
func (t *task) run(ctx context.Context) error {
	for req := range t.requests {
		if err := t.handle(req); err != nil {
			return errors.Join(err, t.close())
		}
	}
	return t.stop(ctx)
}

// stop closes the fragment and reports why ctx was cancelled, if it was.
func (t *task) stop(ctx context.Context) error {
	if err := t.close(); err != nil {
		return err
	}
	return context.Cause(ctx)
}

func (t *task) handle(req request) error {
	if req.stored != nil {
		req.stored <- t.fragment.Store()
		return nil
	}

	err := t.fragment.Index(req.event)

	var ie *IndexError
	if errors.As(err, &ie) {
		t.logger.Debug("event partially indexed", zap.Uint64("id", ie.ID), zap.Int("failed_fields", len(ie.Fields)))
		return nil
	}

	if err != nil {
		return fmt.Errorf("%s: failed to index event %d: %w", t.name, req.event.ID, err)
	}

	return nil
}

func (t *task) close() error {
	if err := t.fragment.Close(); err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}
	t.logger.Debug("task finished")
	return nil
}
