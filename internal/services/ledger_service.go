package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/cache"
	"cassa/internal/config"
	"cassa/internal/core"
	"cassa/internal/ledger"
	"cassa/internal/log"
	"cassa/internal/snapshot"
	"cassa/internal/store"
)

// Publisher delivers messages produced after a mutation. *amqp.Client
// implements it.
type Publisher interface {
	PublishSnapshotSaved(ctx context.Context, household string, revision int64) error
	PublishNotification(ctx context.Context, n *amqp.Notification) error
}

// Options configures a LedgerService.
type Options struct {
	Household string
	Policy    ledger.Policy
	Store     store.Store
	// Publisher is optional. SyncEvents additionally announces every saved
	// revision to the sync worker.
	Publisher    Publisher
	SyncEvents   bool
	Profile      *config.Profile
	Logger       *log.Logger
	PersistRetry time.Duration
	IDs          func() string
}

// Result is what a mutation hands back to the caller.
type Result struct {
	Entry    ledger.Entry
	Warnings []*core.ShortfallError
	Revision int64
}

// PersistStatus tells whether the stored copy lags the live book.
type PersistStatus struct {
	Revision      int64  `json:"revision"`
	Persisted     int64  `json:"persisted"`
	StoreRevision int64  `json:"storeRevision"`
	Dirty         bool   `json:"dirty"`
	LastError     string `json:"lastError,omitempty"`
}

// DebtView is the outstanding advances of both members.
type DebtView struct {
	Totals map[core.UserID]core.Amount
	Detail map[core.UserID][]ledger.Advance
}

// LedgerService owns the live book of one household. Mutations are
// serialised; the resulting snapshot is written in the background and a
// failed write is retried without touching the in-memory state.
type LedgerService struct {
	household string
	engine    *ledger.Engine
	store     store.Store
	publisher Publisher
	syncEv    bool
	profile   *config.Profile
	logger    *log.Logger
	events    *log.StructuredLogger
	debts     *cache.LRUCache[DebtView]
	caches    *cache.Manager
	retry     time.Duration

	mu            sync.Mutex
	book          ledger.Book
	revision      int64
	persisted     int64
	storeRevision int64
	lastErr       string
	saved         chan struct{}

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	started   bool
	closeOnce sync.Once
}

func NewLedgerService(opts Options) *LedgerService {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	profile := opts.Profile
	if profile == nil {
		profile = config.DefaultProfile()
	}
	retry := opts.PersistRetry
	if retry <= 0 {
		retry = 5 * time.Second
	}
	var engOpts []ledger.Option
	if opts.IDs != nil {
		engOpts = append(engOpts, ledger.WithIDs(opts.IDs))
	}
	logger = logger.WithComponent(log.ComponentLedger).With(log.FieldHousehold, opts.Household)
	debts := cache.NewLRUCache[DebtView](16, 10*time.Minute)
	caches := cache.NewManager(logger)
	caches.Register(debts)
	return &LedgerService{
		household: opts.Household,
		engine:    ledger.NewEngine(opts.Policy, engOpts...),
		store:     opts.Store,
		publisher: opts.Publisher,
		syncEv:    opts.SyncEvents,
		profile:   profile,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		debts:     debts,
		caches:    caches,
		retry:     retry,
		book:      ledger.NewBook(),
		saved:     make(chan struct{}),
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Load reads the household snapshot from the store. A household that was
// never saved starts from an empty book.
func (s *LedgerService) Load(ctx context.Context) error {
	snap, err := s.store.Load(ctx, s.household)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.InfoContext(ctx, "No stored snapshot, starting empty", log.FieldOperation, log.OpLoad)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	book, err := snapshot.Decode(snap.Document)
	if err != nil {
		return fmt.Errorf("decode snapshot revision %d: %w", snap.Revision, err)
	}

	s.mu.Lock()
	s.book = book
	s.storeRevision = snap.Revision
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Snapshot loaded",
		log.FieldOperation, log.OpLoad,
		log.FieldRevision, snap.Revision,
		"entries", book.Log.Len())
	return nil
}

// Start runs the persistence loop until Close.
func (s *LedgerService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.caches.StartCleanup(5 * time.Minute)
	go s.run(ctx)
}

// Close waits for pending writes (bounded by ctx) and stops the loop.
func (s *LedgerService) Close(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	err := s.Flush(ctx)
	s.closeOnce.Do(func() {
		close(s.stop)
		s.caches.Stop()
	})
	<-s.done
	if err != nil {
		s.logger.Warn("Closed with unsaved changes", log.FieldOperation, log.OpShutdown, log.FieldError, err)
	}
	return err
}

// Book returns the live book. Books are immutable values.
func (s *LedgerService) Book() ledger.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book
}

func (s *LedgerService) Household() string        { return s.household }
func (s *LedgerService) Policy() ledger.Policy    { return s.engine.Policy() }
func (s *LedgerService) Profile() *config.Profile { return s.profile }

// Status reports the persistence state.
func (s *LedgerService) Status() PersistStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PersistStatus{
		Revision:      s.revision,
		Persisted:     s.persisted,
		StoreRevision: s.storeRevision,
		Dirty:         s.persisted < s.revision,
		LastError:     s.lastErr,
	}
}

func (s *LedgerService) Income(ctx context.Context, user core.UserID, amount core.Amount, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpRecord, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.Income(b, user, amount, m)
	})
}

func (s *LedgerService) Gain(ctx context.Context, user core.UserID, amount core.Amount, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpRecord, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.Gain(b, user, amount, m)
	})
}

func (s *LedgerService) Loss(ctx context.Context, user core.UserID, amount core.Amount, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpRecord, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.Loss(b, user, amount, m)
	})
}

func (s *LedgerService) Expense(ctx context.Context, user core.UserID, bd core.Breakdown, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpRecord, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.Expense(b, user, bd, m)
	})
}

func (s *LedgerService) Transfer(ctx context.Context, from core.UserID, to ledger.Destination, amount core.Amount, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpRecord, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.Transfer(b, from, to, amount, m)
	})
}

func (s *LedgerService) JointSpend(ctx context.Context, amount core.Amount, cat core.Category, advancedBy core.UserID, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpRecord, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.JointSpend(b, amount, cat, advancedBy, m)
	})
}

func (s *LedgerService) Buy(ctx context.Context, class core.AssetClass, amount core.Amount, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpRecord, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.Buy(b, class, amount, m)
	})
}

func (s *LedgerService) Sell(ctx context.Context, class core.AssetClass, amount core.Amount, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpRecord, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.Sell(b, class, amount, m)
	})
}

func (s *LedgerService) SetReturnRate(ctx context.Context, class core.AssetClass, rate core.Rate) (Result, error) {
	return s.mutate(ctx, log.OpRate, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.SetReturnRate(b, class, rate)
	})
}

// Settle settles every outstanding advance of user.
func (s *LedgerService) Settle(ctx context.Context, user core.UserID, m ledger.Meta) (Result, error) {
	return s.mutate(ctx, log.OpSettle, func(b ledger.Book) (ledger.Outcome, error) {
		return s.engine.Settle(b, user, m)
	})
}

// Unsettle reopens the advance with the given entry ID. operator is who
// asked for it and is reported in the notification.
func (s *LedgerService) Unsettle(ctx context.Context, id, operator string) (Result, error) {
	return s.mutateAs(ctx, log.OpUnsettle, operator, func(b ledger.Book) (ledger.Outcome, error) {
		i, err := indexOf(b.Log, id)
		if err != nil {
			return ledger.Outcome{}, err
		}
		return s.engine.Unsettle(b, i)
	})
}

// Delete reverses and removes the entry with the given ID on behalf of
// operator.
func (s *LedgerService) Delete(ctx context.Context, id, operator string) (Result, error) {
	return s.mutateAs(ctx, log.OpDelete, operator, func(b ledger.Book) (ledger.Outcome, error) {
		i, err := indexOf(b.Log, id)
		if err != nil {
			return ledger.Outcome{}, err
		}
		return s.engine.Delete(b, i)
	})
}

// Import replaces the whole book with a decoded snapshot document.
func (s *LedgerService) Import(ctx context.Context, data []byte) (Result, error) {
	book, err := snapshot.Decode(data)
	if err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, log.OpImport, func(ledger.Book) (ledger.Outcome, error) {
		return ledger.Outcome{Book: book}, nil
	})
}

// Export encodes the live book.
func (s *LedgerService) Export() ([]byte, error) {
	return snapshot.Encode(s.Book())
}

// Debts returns the outstanding advances, memoised per revision.
func (s *LedgerService) Debts() DebtView {
	s.mu.Lock()
	book, rev := s.book, s.revision
	s.mu.Unlock()

	v, _ := cache.Memo[DebtView](s.debts, cache.Key("debts", s.household, rev), func() (DebtView, error) {
		view := DebtView{
			Totals: ledger.Debts(book.Log),
			Detail: map[core.UserID][]ledger.Advance{},
		}
		for _, u := range core.Users() {
			view.Detail[u] = ledger.Detail(book.Log, u)
		}
		return view, nil
	})
	return v
}

// Search runs a history search over the live log.
func (s *LedgerService) Search(term string) []ledger.Hit {
	return ledger.Search(s.Book().Log, term)
}

func (s *LedgerService) mutate(ctx context.Context, op string, fn func(ledger.Book) (ledger.Outcome, error)) (Result, error) {
	return s.mutateAs(ctx, op, "", fn)
}

// mutateAs is mutate for operations that act on an existing entry; actor,
// when set, replaces the entry's own operator in the notification.
func (s *LedgerService) mutateAs(ctx context.Context, op, actor string, fn func(ledger.Book) (ledger.Outcome, error)) (Result, error) {
	s.mu.Lock()
	out, err := fn(s.book)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	if out.Entry == nil && op == log.OpSettle {
		rev := s.revision
		s.mu.Unlock()
		return Result{Revision: rev}, nil
	}
	s.book = out.Book
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.signal()

	for _, w := range out.Warnings {
		s.logger.WarnContext(ctx, "Balance went short",
			log.FieldOperation, op,
			"account", w.Account,
			"available", int64(w.Available),
			"required", int64(w.Required))
	}
	if e := out.Entry; e != nil {
		s.events.LogEntryRecorded(ctx, op, e.Base().ID, string(e.Kind()), e.Owner(), int64(e.Total()), rev)
		s.notify(ctx, op, actor, e)
	}
	return Result{Entry: out.Entry, Warnings: out.Warnings, Revision: rev}, nil
}

func (s *LedgerService) notify(ctx context.Context, op, actor string, e ledger.Entry) {
	if s.publisher == nil {
		return
	}
	n := NotificationFor(s.profile, s.household, op, e)
	if actor != "" {
		n.Operator = actor
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.publisher.PublishNotification(pctx, n); err != nil {
			s.logger.WarnContext(pctx, "Notification not delivered",
				log.FieldOperation, log.OpNotify,
				log.FieldEntryID, e.Base().ID,
				log.FieldError, err)
		}
	}()
}

func (s *LedgerService) signal() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Flush blocks until everything recorded before the call is stored.
func (s *LedgerService) Flush(ctx context.Context) error {
	s.mu.Lock()
	target := s.revision
	s.mu.Unlock()
	for {
		s.mu.Lock()
		if s.persisted >= target {
			s.mu.Unlock()
			return nil
		}
		saved := s.saved
		s.mu.Unlock()

		s.signal()
		select {
		case <-saved:
		case <-ctx.Done():
			return fmt.Errorf("flush: %w", ctx.Err())
		}
	}
}

func (s *LedgerService) run(ctx context.Context) {
	defer close(s.done)

	retry := time.NewTimer(s.retry)
	retry.Stop()
	defer retry.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-s.kick:
		case <-retry.C:
		}
		if err := s.persist(ctx); err != nil {
			retry.Reset(s.retry)
		}
	}
}

func (s *LedgerService) persist(ctx context.Context) error {
	s.mu.Lock()
	if s.persisted >= s.revision {
		s.mu.Unlock()
		return nil
	}
	book, rev := s.book, s.revision
	s.mu.Unlock()

	doc, err := snapshot.Encode(book)
	if err != nil {
		return s.persistFailed(ctx, rev, err)
	}
	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	storeRev, err := s.store.Save(wctx, s.household, doc)
	cancel()
	if err != nil {
		return s.persistFailed(ctx, rev, err)
	}

	s.mu.Lock()
	s.persisted = max(s.persisted, rev)
	s.storeRevision = storeRev
	s.lastErr = ""
	close(s.saved)
	s.saved = make(chan struct{})
	behind := s.persisted < s.revision
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "Snapshot persisted",
		log.FieldOperation, log.OpPersist,
		log.FieldRevision, storeRev)

	if behind {
		s.signal()
	}
	if s.syncEv && s.publisher != nil {
		if err := s.publisher.PublishSnapshotSaved(ctx, s.household, storeRev); err != nil {
			s.logger.WarnContext(ctx, "Sync message not published, the worker sweep will pick it up",
				log.FieldOperation, log.OpSync,
				log.FieldRevision, storeRev,
				log.FieldError, err)
		}
	}
	return nil
}

func (s *LedgerService) persistFailed(ctx context.Context, rev int64, err error) error {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.events.LogError(ctx, "Snapshot not persisted, local state is ahead of the store", err,
		log.ComponentStorage, log.OpPersist, log.NewFields().WithRevision(rev))
	return err
}

func indexOf(l ledger.Log, id string) (int, error) {
	i := l.IndexOf(id)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s", core.ErrEntryNotFound, id)
	}
	return i, nil
}
