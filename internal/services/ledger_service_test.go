package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/core"
	"cassa/internal/ledger"
	"cassa/internal/snapshot"
	"cassa/internal/store"
	"cassa/internal/store/memory"
)

// flakyStore fails every Save while down is set.
type flakyStore struct {
	*memory.Store
	down  atomic.Bool
	saves atomic.Int64
}

func (f *flakyStore) Save(ctx context.Context, household string, doc []byte) (int64, error) {
	f.saves.Add(1)
	if f.down.Load() {
		return 0, errors.New("store unreachable")
	}
	return f.Store.Save(ctx, household, doc)
}

type recordingPublisher struct {
	mu            sync.Mutex
	saved         []int64
	notifications []*amqp.Notification
}

func (p *recordingPublisher) PublishSnapshotSaved(_ context.Context, _ string, rev int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, rev)
	return nil
}

func (p *recordingPublisher) PublishNotification(_ context.Context, n *amqp.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
	return nil
}

func (p *recordingPublisher) count() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved), len(p.notifications)
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("E%03d", n)
	}
}

func newService(t *testing.T, st store.Store, pub Publisher) *LedgerService {
	t.Helper()
	opts := Options{
		Household:    "home",
		Policy:       ledger.Advisory,
		Store:        st,
		SyncEvents:   true,
		PersistRetry: 10 * time.Millisecond,
		IDs:          seqIDs(),
	}
	if pub != nil {
		opts.Publisher = pub
	}
	svc := NewLedgerService(opts)
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		closeCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		svc.Close(closeCtx)
		cancel()
	})
	return svc
}

func day(d int) ledger.Meta {
	return ledger.Meta{Date: core.NewDate(2025, 6, d), Operator: "Mei"}
}

func flush(t *testing.T, svc *LedgerService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestLedgerService_PersistsAfterMutation(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	pub := &recordingPublisher{}
	svc := newService(t, st, pub)

	if _, err := svc.Income(ctx, core.UserA, 50000, day(1)); err != nil {
		t.Fatalf("income: %v", err)
	}
	if _, err := svc.Transfer(ctx, core.UserA, ledger.ToCash(), 1000, day(2)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	flush(t, svc)

	snap, err := st.Load(ctx, "home")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	book, err := snapshot.Decode(snap.Document)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !book.Equal(svc.Book()) {
		t.Errorf("stored book differs from live book")
	}
	if status := svc.Status(); status.Dirty || status.Revision != 2 {
		t.Errorf("unexpected status %+v", status)
	}

	deadline := time.Now().Add(time.Second)
	for {
		saved, notes := pub.count()
		if saved > 0 && notes == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("publisher saw %d saves and %d notifications", saved, notes)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLedgerService_FailedWriteKeepsStateAndRetries(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: memory.New()}
	st.down.Store(true)
	svc := newService(t, st, nil)

	if _, err := svc.Income(ctx, core.UserB, 700, day(3)); err != nil {
		t.Fatalf("income: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for st.saves.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("write was not retried")
		}
		time.Sleep(5 * time.Millisecond)
	}
	status := svc.Status()
	if !status.Dirty || status.LastError == "" {
		t.Errorf("expected dirty status with error, got %+v", status)
	}
	if got := svc.Book().Accounts.Personal[core.UserB]; got != 700 {
		t.Errorf("in-memory balance lost: %d", got)
	}

	st.down.Store(false)
	flush(t, svc)
	if status := svc.Status(); status.Dirty || status.LastError != "" {
		t.Errorf("expected clean status, got %+v", status)
	}
}

func TestLedgerService_DeleteAndSettleByID(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.New(), nil)

	adv, err := svc.JointSpend(ctx, 300, core.Food, core.UserA, day(4))
	if err != nil {
		t.Fatalf("joint spend: %v", err)
	}
	id := adv.Entry.Base().ID
	if got := svc.Debts().Totals[core.UserA]; got != 300 {
		t.Fatalf("outstanding = %d, want 300", got)
	}

	settled, err := svc.Settle(ctx, core.UserA, day(5))
	if err != nil || settled.Entry == nil {
		t.Fatalf("settle: %+v %v", settled, err)
	}
	if got := svc.Debts().Totals[core.UserA]; got != 0 {
		t.Errorf("outstanding after settle = %d", got)
	}

	again, err := svc.Settle(ctx, core.UserA, day(6))
	if err != nil || again.Entry != nil || again.Revision != settled.Revision {
		t.Errorf("second settle should be a no-op: %+v %v", again, err)
	}

	if _, err := svc.Delete(ctx, id, "Jun"); !errors.Is(err, core.ErrSettledAdvance) {
		t.Fatalf("expected ErrSettledAdvance, got %v", err)
	}
	if _, err := svc.Unsettle(ctx, id, "Jun"); err != nil {
		t.Fatalf("unsettle: %v", err)
	}
	if _, err := svc.Delete(ctx, id, "Jun"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := svc.Debts().Totals[core.UserA]; got != 0 {
		t.Errorf("deleted advance still outstanding: %d", got)
	}
	if _, err := svc.Delete(ctx, "nope", "Jun"); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLedgerService_NotificationsNameTheActor(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newService(t, memory.New(), pub)

	inc, err := svc.Income(ctx, core.UserA, 500, day(1))
	if err != nil {
		t.Fatalf("income: %v", err)
	}
	adv, err := svc.JointSpend(ctx, 40, core.Food, core.UserB, day(2))
	if err != nil {
		t.Fatalf("joint spend: %v", err)
	}
	if _, err := svc.Settle(ctx, core.UserB, day(3)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := svc.Unsettle(ctx, adv.Entry.Base().ID, "Jun"); err != nil {
		t.Fatalf("unsettle: %v", err)
	}
	if _, err := svc.Delete(ctx, inc.Entry.Base().ID, "Jun"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Delete(ctx, adv.Entry.Base().ID, ""); err != nil {
		t.Fatalf("delete without operator: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, notes := pub.count(); notes == 6 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 6 notifications")
		}
		time.Sleep(5 * time.Millisecond)
	}

	operators := map[string]string{}
	pub.mu.Lock()
	for _, n := range pub.notifications {
		if strings.HasPrefix(n.Title, "Deleted:") || strings.HasPrefix(n.Title, "Reopened:") {
			operators[n.Kind+" "+strings.SplitN(n.Title, ":", 2)[0]] = n.Operator
		}
	}
	pub.mu.Unlock()

	want := map[string]string{
		"income Deleted":       "Jun",
		"joint_spend Reopened": "Jun",
		"joint_spend Deleted":  "Mei",
	}
	for k, op := range want {
		if operators[k] != op {
			t.Errorf("%s: operator = %q, want %q", k, operators[k], op)
		}
	}
}

func TestLedgerService_LoadAndImport(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	eng := ledger.NewEngine(ledger.Advisory)
	out, err := eng.Income(ledger.NewBook(), core.UserA, 900, day(7))
	if err != nil {
		t.Fatal(err)
	}
	doc, _ := snapshot.Encode(out.Book)
	st.Save(ctx, "home", doc)

	svc := newService(t, st, nil)
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !svc.Book().Equal(out.Book) {
		t.Fatalf("loaded book differs")
	}

	if _, err := svc.Import(ctx, []byte(`{"personal":{}}`)); !errors.Is(err, core.ErrMalformedSnapshot) {
		t.Fatalf("expected malformed import to fail, got %v", err)
	}
	if !svc.Book().Equal(out.Book) {
		t.Fatalf("failed import changed the book")
	}

	empty, _ := snapshot.Encode(ledger.NewBook())
	res, err := svc.Import(ctx, empty)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Entry != nil || svc.Book().Log.Len() != 0 {
		t.Errorf("import did not replace the book")
	}
}

func TestLedgerService_StrictPolicy(t *testing.T) {
	svc := NewLedgerService(Options{Household: "home", Policy: ledger.Strict, Store: memory.New()})
	_, err := svc.Loss(context.Background(), core.UserA, 10, day(8))
	var short *core.ShortfallError
	if !errors.As(err, &short) {
		t.Fatalf("expected shortfall, got %v", err)
	}
	if svc.Status().Revision != 0 {
		t.Errorf("rejected mutation bumped the revision")
	}
}

func TestLedgerService_DebtsMemoisedPerRevision(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.New(), nil)
	svc.JointSpend(ctx, 100, core.Fixed, core.UserB, day(9))

	svc.Debts()
	svc.Debts()
	if s := svc.debts.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("unexpected cache stats %+v", s)
	}

	svc.JointSpend(ctx, 50, core.Fixed, core.UserB, day(10))
	if got := svc.Debts().Totals[core.UserB]; got != 150 {
		t.Errorf("stale debts: %d", got)
	}
}
