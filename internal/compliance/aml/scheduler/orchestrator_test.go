package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/reporting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDirectory struct {
	ids   []string
	calls int
	err   error
}

func newDirectory(n int) *stubDirectory {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%04d", i)
	}
	sort.Strings(ids)
	return &stubDirectory{ids: ids}
}

func (d *stubDirectory) ListActiveUserIDs(_ context.Context, after string, limit int) ([]string, error) {
	d.calls++
	if d.err != nil && d.calls > 1 {
		return nil, d.err
	}
	i := sort.SearchStrings(d.ids, after)
	if i < len(d.ids) && d.ids[i] == after {
		i++
	}
	end := i + limit
	if end > len(d.ids) {
		end = len(d.ids)
	}
	return d.ids[i:end], nil
}

type stubScanner struct {
	mu      sync.Mutex
	seen    map[string]int
	fail    map[string]bool
	hang    map[string]bool
	block   chan struct{}
	active  int32
	maxSeen int32
}

func newScanner() *stubScanner {
	return &stubScanner{
		seen:  map[string]int{},
		fail:  map[string]bool{},
		hang:  map[string]bool{},
		block: make(chan struct{}),
	}
}

func (s *stubScanner) ScanUser(ctx context.Context, userID string) (*aml.ScanSummary, error) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		m := atomic.LoadInt32(&s.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&s.maxSeen, m, n) {
			break
		}
	}

	s.mu.Lock()
	s.seen[userID]++
	fail, hang := s.fail[userID], s.hang[userID]
	s.mu.Unlock()

	if hang {
		// ignores ctx on purpose
		<-s.block
	}
	if fail {
		return nil, errors.New("trade reader unavailable")
	}
	time.Sleep(time.Millisecond)
	return &aml.ScanSummary{UserID: userID, PatternsDetected: 2, ActivitiesCreated: 1, HighestRiskScore: 70}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 4
	cfg.UserTimeout = 200 * time.Millisecond
	return cfg
}

func TestPopulationScanPagesThroughEveryUser(t *testing.T) {
	dir := newDirectory(250)
	scanner := newScanner()
	o := NewOrchestrator(dir, scanner, nil, NewLocalLocker(), testConfig(), zap.NewNop())

	rep, err := o.RunPopulationScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Batches)
	assert.Equal(t, 250, rep.UsersScanned)
	assert.Equal(t, 0, rep.UsersFailed)
	assert.Equal(t, 500, rep.PatternsDetected)
	assert.Equal(t, 250, rep.ActivitiesCreated)
	assert.Len(t, scanner.seen, 250)
	for id, n := range scanner.seen {
		assert.Equal(t, 1, n, id)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&scanner.maxSeen), int32(4))
	assert.Equal(t, 3, dir.calls)
}

func TestPopulationScanExactPageMultiple(t *testing.T) {
	dir := newDirectory(200)
	o := NewOrchestrator(dir, newScanner(), nil, nil, testConfig(), zap.NewNop())

	rep, err := o.RunPopulationScan(context.Background())
	require.NoError(t, err)
	// a full last page needs one more empty read to know we are done
	assert.Equal(t, 2, rep.Batches)
	assert.Equal(t, 200, rep.UsersScanned)
	assert.Equal(t, 3, dir.calls)
}

func TestPopulationScanIsolatesFailures(t *testing.T) {
	dir := newDirectory(20)
	scanner := newScanner()
	scanner.fail[dir.ids[3]] = true
	scanner.fail[dir.ids[11]] = true
	scanner.hang[dir.ids[7]] = true
	defer close(scanner.block)

	o := NewOrchestrator(dir, scanner, nil, nil, testConfig(), zap.NewNop())

	rep, err := o.RunPopulationScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, rep.UsersScanned)
	assert.Equal(t, 3, rep.UsersFailed)
	assert.Equal(t, 17, rep.ActivitiesCreated)
}

func TestPopulationScanSkipsLeasedUsers(t *testing.T) {
	dir := newDirectory(5)
	locker := NewLocalLocker()
	_, ok, err := locker.TryLock(context.Background(), "aml:scan:"+dir.ids[2], time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	scanner := newScanner()
	o := NewOrchestrator(dir, scanner, nil, locker, testConfig(), zap.NewNop())

	rep, err := o.RunPopulationScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.UsersScanned)
	assert.Equal(t, 1, rep.UsersSkipped)
	assert.NotContains(t, scanner.seen, dir.ids[2])

	// leases taken by the scan are released afterwards
	_, ok, err = locker.TryLock(context.Background(), "aml:scan:"+dir.ids[0], time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTimedOutScanKeepsLeaseUntilScannerReturns(t *testing.T) {
	dir := newDirectory(1)
	user := dir.ids[0]
	scanner := newScanner()
	scanner.hang[user] = true
	locker := NewLocalLocker()

	o := NewOrchestrator(dir, scanner, nil, locker, testConfig(), zap.NewNop())
	rep, err := o.RunPopulationScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.UsersFailed)

	// the abandoned scan is still running, so a second pass must skip the user
	rep, err = o.RunPopulationScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.UsersSkipped)
	scanner.mu.Lock()
	assert.Equal(t, 1, scanner.seen[user])
	scanner.mu.Unlock()

	close(scanner.block)
	assert.Eventually(t, func() bool {
		release, ok, err := locker.TryLock(context.Background(), "aml:scan:"+user, time.Minute)
		if err != nil || !ok {
			return false
		}
		return release(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)
}

type failingLocker struct{}

func (failingLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

func TestPopulationScanProceedsWhenLockerFails(t *testing.T) {
	dir := newDirectory(3)
	o := NewOrchestrator(dir, newScanner(), nil, failingLocker{}, testConfig(), zap.NewNop())

	rep, err := o.RunPopulationScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.UsersScanned)
}

func TestPopulationScanDirectoryFailure(t *testing.T) {
	dir := newDirectory(150)
	dir.err = errors.New("identity service down")
	o := NewOrchestrator(dir, newScanner(), nil, nil, testConfig(), zap.NewNop())

	rep, err := o.RunPopulationScan(context.Background())
	require.Error(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 1, rep.Batches)
	assert.Equal(t, 100, rep.UsersScanned)
}

type stubFiler struct {
	threshold int
	res       *reporting.AutoFileResult
	err       error
}

func (f *stubFiler) AutoFile(_ context.Context, threshold int) (*reporting.AutoFileResult, error) {
	f.threshold = threshold
	return f.res, f.err
}

func TestRunAutoFilePass(t *testing.T) {
	filer := &stubFiler{res: &reporting.AutoFileResult{
		Eligible: 3,
		Reports:  []*aml.SarReport{{}, {}},
		Failed:   1,
	}}
	o := NewOrchestrator(newDirectory(0), newScanner(), filer, nil, testConfig(), zap.NewNop())

	rep, err := o.RunAutoFilePass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 80, filer.threshold)
	assert.Equal(t, &AutoFileReport{Threshold: 80, Eligible: 3, Filed: 2, Failed: 1}, rep)

	filer.res, filer.err = nil, errors.New("db down")
	_, err = o.RunAutoFilePass(context.Background())
	assert.Error(t, err)
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, ok, _ := l.TryLock(context.Background(), "k", time.Minute)
	require.True(t, ok)
	_, ok, _ = l.TryLock(context.Background(), "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.TryLock(context.Background(), "k", time.Minute)
	assert.True(t, ok)
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.ScanSchedule = "every hour"
	_, err := NewScheduler(NewOrchestrator(newDirectory(0), newScanner(), &stubFiler{}, nil, cfg, zap.NewNop()), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	cfg := testConfig()
	s, err := NewScheduler(NewOrchestrator(newDirectory(0), newScanner(), &stubFiler{}, nil, cfg, zap.NewNop()), cfg, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
