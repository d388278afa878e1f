package memory

import (
	"context"
	"encoding/binary"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	domainerrors "istruecaller/contexts/trust-safety/call-vote-register/domain/errors"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"

	"github.com/zeebo/blake3"
)

const (
	defaultShardCount = 16
	defaultQueueDepth = 64
)

type RegisterConfig struct {
	Shards     int
	QueueDepth int
	Seed       entities.RegisterSnapshot
	Logger     *slog.Logger
}

// Register owns the call id -> votes table. The table is split into shards;
// each shard is owned by a single goroutine that applies queued commands one
// at a time, so commands on one call id are strictly serialized while call ids
// on different shards never contend.
//
// Query reads (Votes, CallIDs) bypass the queues and read the committed state
// under shard read locks. ClearAll and Checkpoint park every shard first and
// then apply under viewMu, so a reader sees either all of a clear or none.
type Register struct {
	shards []*shard
	logger *slog.Logger

	viewMu    sync.RWMutex
	barrierMu sync.Mutex

	revision  atomic.Uint64
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type command func(s *shard)

type record struct {
	votes      []entities.Vote
	legitimate int
	fraudulent int
}

func (rec *record) tally(callID string) entities.Tally {
	return entities.Tally{
		CallID:          callID,
		LegitimateCount: rec.legitimate,
		FraudulentCount: rec.fraudulent,
		TotalVotes:      len(rec.votes),
	}
}

type shard struct {
	index    int
	commands chan command
	stopped  chan struct{}

	// mu guards records for readers outside the shard goroutine. Only the
	// shard goroutine, or a barrier holder while the shard is parked, writes.
	mu      sync.RWMutex
	records map[string]*record
}

func NewRegister(cfg RegisterConfig) *Register {
	count := cfg.Shards
	if count <= 0 {
		count = defaultShardCount
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Register{
		shards: make([]*shard, count),
		logger: logger,
		closed: make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{
			index:    i,
			commands: make(chan command, depth),
			stopped:  make(chan struct{}),
			records:  make(map[string]*record),
		}
	}

	r.revision.Store(cfg.Seed.Revision)
	restored := 0
	for _, call := range cfg.Seed.Calls {
		// A present key always has votes; empty records are not restored.
		if len(call.Votes) == 0 {
			continue
		}
		s := r.shardFor(call.CallID)
		rec, ok := s.records[call.CallID]
		if !ok {
			rec = &record{}
			s.records[call.CallID] = rec
		}
		for _, vote := range call.Votes {
			rec.append(vote)
		}
		restored++
	}

	for _, s := range r.shards {
		r.wg.Add(1)
		go r.run(s)
	}

	logger.Info("vote register started",
		"event", "register_started",
		"module", "trust-safety/call-vote-register",
		"layer", "adapter",
		"shards", count,
		"queue_depth", depth,
		"restored_calls", restored,
	)
	return r
}

func (rec *record) append(vote entities.Vote) {
	rec.votes = append(rec.votes, vote)
	if vote.Legitimate {
		rec.legitimate++
	}
	if vote.Fraudulent {
		rec.fraudulent++
	}
}

func (r *Register) run(s *shard) {
	defer r.wg.Done()
	defer close(s.stopped)
	for {
		select {
		case <-r.closed:
			return
		case cmd := <-s.commands:
			cmd(s)
		}
	}
}

// submit enqueues cmd on s and waits for it to be applied. Cancellation only
// rejects a command that has not been enqueued yet; once queued, the command
// is a bounded state transition and the caller waits for its outcome.
func (r *Register) submit(ctx context.Context, s *shard, cmd command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	wrapped := func(s *shard) {
		cmd(s)
		close(done)
	}
	select {
	case <-r.closed:
		return domainerrors.ErrRegisterClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.commands <- wrapped:
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		select {
		case <-done:
			return nil
		default:
			return domainerrors.ErrRegisterClosed
		}
	}
}

// exclusive parks every shard goroutine, runs fn under the view lock and then
// releases the shards.
func (r *Register) exclusive(ctx context.Context, fn func()) error {
	r.barrierMu.Lock()
	defer r.barrierMu.Unlock()

	release := make(chan struct{})
	defer close(release)
	parked := make(chan struct{}, len(r.shards))
	park := func(*shard) {
		parked <- struct{}{}
		<-release
	}

	for _, s := range r.shards {
		select {
		case <-r.closed:
			return domainerrors.ErrRegisterClosed
		case <-ctx.Done():
			return ctx.Err()
		case s.commands <- park:
		}
	}
	for range r.shards {
		select {
		case <-parked:
		case <-r.closed:
			return domainerrors.ErrRegisterClosed
		}
	}

	r.viewMu.Lock()
	defer r.viewMu.Unlock()
	fn()
	return nil
}

func (r *Register) AppendVote(ctx context.Context, callID string, vote entities.Vote) (entities.Tally, error) {
	var tally entities.Tally
	err := r.submit(ctx, r.shardFor(callID), func(s *shard) {
		s.mu.Lock()
		rec, ok := s.records[callID]
		if !ok {
			rec = &record{}
			s.records[callID] = rec
		}
		rec.append(vote)
		tally = rec.tally(callID)
		s.mu.Unlock()
		tally.Revision = r.revision.Add(1)
	})
	if err != nil {
		return entities.Tally{}, err
	}
	return tally, nil
}

func (r *Register) Tally(ctx context.Context, callID string) (entities.Tally, bool, error) {
	tally := entities.Tally{CallID: callID}
	found := false
	err := r.submit(ctx, r.shardFor(callID), func(s *shard) {
		if rec, ok := s.records[callID]; ok {
			found = true
			tally = rec.tally(callID)
		}
		tally.Revision = r.revision.Load()
	})
	if err != nil {
		return entities.Tally{}, false, err
	}
	return tally, found, nil
}

func (r *Register) ClearCall(ctx context.Context, callID string) (entities.Tally, bool, error) {
	tally := entities.Tally{CallID: callID}
	existed := false
	err := r.submit(ctx, r.shardFor(callID), func(s *shard) {
		s.mu.Lock()
		_, existed = s.records[callID]
		delete(s.records, callID)
		s.mu.Unlock()
		if existed {
			tally.Revision = r.revision.Add(1)
		} else {
			tally.Revision = r.revision.Load()
		}
	})
	if err != nil {
		return entities.Tally{}, false, err
	}
	return tally, existed, nil
}

func (r *Register) ClearAll(ctx context.Context) (int, uint64, error) {
	removed := 0
	var revision uint64
	err := r.exclusive(ctx, func() {
		for _, s := range r.shards {
			s.mu.Lock()
			removed += len(s.records)
			s.records = make(map[string]*record)
			s.mu.Unlock()
		}
		if removed > 0 {
			r.revision.Add(1)
		}
		revision = r.revision.Load()
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, revision, nil
}

func (r *Register) Votes(_ context.Context, callID string) ([]entities.Vote, bool, error) {
	if r.isClosed() {
		return nil, false, domainerrors.ErrRegisterClosed
	}
	s := r.shardFor(callID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[callID]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(rec.votes), true, nil
}

func (r *Register) CallIDs(_ context.Context) ([]string, error) {
	if r.isClosed() {
		return nil, domainerrors.ErrRegisterClosed
	}
	r.viewMu.RLock()
	defer r.viewMu.RUnlock()

	ids := make([]string, 0)
	for _, s := range r.shards {
		s.mu.RLock()
		for callID := range s.records {
			ids = append(ids, callID)
		}
		s.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids, nil
}

// Checkpoint captures a consistent cut of every shard along with the revision
// it reflects. CheckpointID and TakenAt are left for the caller to stamp.
func (r *Register) Checkpoint(ctx context.Context) (entities.RegisterSnapshot, error) {
	var snapshot entities.RegisterSnapshot
	err := r.exclusive(ctx, func() {
		calls := make([]entities.CallRecord, 0)
		for _, s := range r.shards {
			for callID, rec := range s.records {
				calls = append(calls, entities.CallRecord{
					CallID: callID,
					Votes:  slices.Clone(rec.votes),
				})
			}
		}
		sort.Slice(calls, func(i, j int) bool {
			return calls[i].CallID < calls[j].CallID
		})
		snapshot.Calls = calls
		snapshot.Revision = r.revision.Load()
	})
	if err != nil {
		return entities.RegisterSnapshot{}, err
	}
	return snapshot, nil
}

// Revision increases on every committed mutation that changed state.
func (r *Register) Revision() uint64 {
	return r.revision.Load()
}

func (r *Register) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
	})
	r.wg.Wait()
	r.logger.Info("vote register stopped",
		"event", "register_stopped",
		"module", "trust-safety/call-vote-register",
		"layer", "adapter",
		"revision", r.revision.Load(),
	)
	return nil
}

func (r *Register) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func (r *Register) shardFor(callID string) *shard {
	if len(r.shards) == 1 {
		return r.shards[0]
	}
	sum := blake3.Sum256([]byte(callID))
	return r.shards[binary.LittleEndian.Uint64(sum[:8])%uint64(len(r.shards))]
}

var _ ports.VoteRegister = (*Register)(nil)
var _ ports.Checkpointable = (*Register)(nil)
