package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

// Clock is a manually advanced time source shared by the in-memory fakes.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MemObjectStore is an in-memory core.ObjectStore.
type MemObjectStore struct {
	mu      sync.Mutex
	objects map[core.ObjectRef][]byte
	// Errors forces an error for a given ref on every call.
	Errors map[core.ObjectRef]error
	Puts   []core.PutObjectParams
}

// NewMemObjectStore returns an empty store.
func NewMemObjectStore() *MemObjectStore {
	return &MemObjectStore{objects: make(map[core.ObjectRef][]byte), Errors: make(map[core.ObjectRef]error)}
}

// Seed stores body at bucket/key without recording a put.
func (s *MemObjectStore) Seed(bucket, key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[core.ObjectRef{Bucket: bucket, Key: key}] = body
}

// Object returns a stored body and whether it exists.
func (s *MemObjectStore) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[core.ObjectRef{Bucket: bucket, Key: key}]
	return b, ok
}

// Keys returns the stored keys of a bucket, sorted.
func (s *MemObjectStore) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for ref := range s.objects {
		if ref.Bucket == bucket {
			out = append(out, ref.Key)
		}
	}
	sort.Strings(out)
	return out
}

func (s *MemObjectStore) GetObject(_ context.Context, ref core.ObjectRef) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errors[ref]; err != nil {
		return nil, err
	}
	b, ok := s.objects[ref]
	if !ok {
		return nil, model.ErrObjectNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *MemObjectStore) GetObjectRange(_ context.Context, p core.GetRangeParams) (*core.ObjectRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errors[p.Ref]; err != nil {
		return nil, err
	}
	b, ok := s.objects[p.Ref]
	if !ok {
		return nil, model.ErrObjectNotFound
	}
	size := int64(len(b))
	start := min(p.Offset, size)
	end := size
	if p.Length > 0 {
		end = min(start+p.Length, size)
	}
	return &core.ObjectRange{
		Data:      append([]byte(nil), b[start:end]...),
		Truncated: end < size,
		Size:      size,
	}, nil
}

func (s *MemObjectStore) PutObject(_ context.Context, p core.PutObjectParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errors[p.Ref]; err != nil {
		return err
	}
	s.objects[p.Ref] = append([]byte(nil), p.Body...)
	s.Puts = append(s.Puts, p)
	return nil
}

type memMessage struct {
	id           string
	body         string
	receipt      string
	receiveCount int
	visibleAt    time.Time
	sentAt       time.Time
}

// MemQueue is an in-memory core.ThrottleQueue with SQS delivery semantics:
// delayed sends, visibility timeouts, receive counting and a redrive policy.
type MemQueue struct {
	mu              sync.Mutex
	clock           *Clock
	messages        []*memMessage
	seq             int
	maxReceiveCount int
	dlq             *MemQueue
	// SentDelays records the delay of every Send call.
	SentDelays []time.Duration
}

// MemQueueOptions configures a MemQueue.
type MemQueueOptions struct {
	Clock *Clock
	// MaxReceiveCount moves a message to DLQ once it has been received this many times. Zero disables redrive.
	MaxReceiveCount int
	DLQ             *MemQueue
}

// NewMemQueue returns an empty queue.
func NewMemQueue(opts MemQueueOptions) *MemQueue {
	if opts.Clock == nil {
		opts.Clock = NewClock(TestTime())
	}
	return &MemQueue{clock: opts.Clock, maxReceiveCount: opts.MaxReceiveCount, dlq: opts.DLQ}
}

func (q *MemQueue) Send(_ context.Context, p core.SendParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	now := q.clock.Now()
	q.messages = append(q.messages, &memMessage{
		id:        "msg-" + strconv.Itoa(q.seq),
		body:      p.Body,
		visibleAt: now.Add(p.Delay),
		sentAt:    now,
	})
	q.SentDelays = append(q.SentDelays, p.Delay)
	return nil
}

func (q *MemQueue) Receive(ctx context.Context, p core.ReceiveParams) ([]model.QueueMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	limit := p.MaxMessages
	if limit <= 0 {
		limit = 1
	}
	now := q.clock.Now()
	var (
		out  []model.QueueMessage
		keep = q.messages[:0]
	)
	for _, m := range q.messages {
		if len(out) >= limit || m.visibleAt.After(now) {
			keep = append(keep, m)
			continue
		}
		if q.maxReceiveCount > 0 && m.receiveCount >= q.maxReceiveCount {
			if q.dlq != nil {
				q.dlq.enqueueRaw(m.body)
			}
			continue
		}
		m.receiveCount++
		q.seq++
		m.receipt = m.id + "#" + strconv.Itoa(q.seq)
		m.visibleAt = now.Add(p.VisibilityTimeout)
		out = append(out, model.QueueMessage{
			ID:            m.id,
			ReceiptHandle: m.receipt,
			Body:          m.body,
			ReceiveCount:  m.receiveCount,
			SentAt:        m.sentAt,
		})
		keep = append(keep, m)
	}
	q.messages = keep
	return out, nil
}

func (q *MemQueue) enqueueRaw(body string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	now := q.clock.Now()
	q.messages = append(q.messages, &memMessage{
		id: "msg-" + strconv.Itoa(q.seq), body: body, visibleAt: now, sentAt: now,
	})
}

func (q *MemQueue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.receipt == receipt && receipt != "" {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("receipt handle %q is not valid", receipt)
}

func (q *MemQueue) ChangeVisibility(_ context.Context, receipt string, timeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.receipt == receipt && receipt != "" {
			m.visibleAt = q.clock.Now().Add(timeout)
			return nil
		}
	}
	return fmt.Errorf("receipt handle %q is not valid", receipt)
}

// Len returns the number of messages held, visible or not.
func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Bodies returns the bodies of every held message in send order.
func (q *MemQueue) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.messages))
	for _, m := range q.messages {
		out = append(out, m.body)
	}
	return out
}

// MemETLLog is an in-memory core.ETLLogRepository.
type MemETLLog struct {
	mu      sync.Mutex
	records map[string][]*model.ETLLogRecord
	// AppendErrs are returned (and consumed) by successive Append calls before they succeed.
	AppendErrs []error
}

// NewMemETLLog returns an empty log.
func NewMemETLLog() *MemETLLog {
	return &MemETLLog{records: make(map[string][]*model.ETLLogRecord)}
}

func (l *MemETLLog) Append(_ context.Context, rec *model.ETLLogRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.AppendErrs) > 0 {
		err := l.AppendErrs[0]
		l.AppendErrs = l.AppendErrs[1:]
		return err
	}
	for _, existing := range l.records[rec.ID] {
		if existing.Timestamp == rec.Timestamp {
			return model.ErrDuplicateETLRecord
		}
	}
	cp := *rec
	l.records[rec.ID] = append(l.records[rec.ID], &cp)
	return nil
}

func (l *MemETLLog) History(_ context.Context, q model.ETLHistoryQuery) ([]*model.ETLLogRecord, error) {
	q.Normalize()
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.ETLLogRecord, 0, len(l.records[q.ID]))
	for _, r := range l.records[q.ID] {
		cp := *r
		out = append(out, &cp)
	}
	model.SortETLRecordsNewestFirst(out)
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (l *MemETLLog) Latest(ctx context.Context, id string) (*model.ETLLogRecord, error) {
	recs, _ := l.History(ctx, model.ETLHistoryQuery{ID: id, Limit: 1})
	if len(recs) == 0 {
		return nil, model.ErrETLLogNotFound
	}
	return recs[0], nil
}

// All returns every record for id in append order.
func (l *MemETLLog) All(id string) []model.ETLLogRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ETLLogRecord, 0, len(l.records[id]))
	for _, r := range l.records[id] {
		out = append(out, *r)
	}
	return out
}

// MemBulkLoadRepo is an in-memory core.BulkLoadRepository.
type MemBulkLoadRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.BulkLoadJob
}

// NewMemBulkLoadRepo returns an empty repository.
func NewMemBulkLoadRepo() *MemBulkLoadRepo {
	return &MemBulkLoadRepo{jobs: make(map[string]*model.BulkLoadJob)}
}

func (r *MemBulkLoadRepo) Put(_ context.Context, job *model.BulkLoadJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.LoadID] = &cp
	return nil
}

func (r *MemBulkLoadRepo) Get(_ context.Context, loadID string) (*model.BulkLoadJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[loadID]
	if !ok {
		return nil, model.ErrBulkLoadNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *MemBulkLoadRepo) UpdateStatus(_ context.Context, p model.UpdateLoadStatusParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[p.LoadID]
	if !ok {
		return model.ErrBulkLoadNotFound
	}
	j.Status = p.Status
	j.Payload = p.Payload
	j.StartTime = p.StartTime
	j.TotalTimeSpent = p.TotalTimeSpent
	j.UpdatedAt = p.UpdatedAt
	return nil
}

func (r *MemBulkLoadRepo) FindRecentBySource(
	_ context.Context,
	q model.RecentLoadsQuery,
) ([]*model.BulkLoadJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.BulkLoadJob
	for _, j := range r.jobs {
		if j.SourceKey == q.SourceKey && !j.SubmittedAt.Before(q.Since) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SubmittedAt.After(out[b].SubmittedAt) })
	return out, nil
}

// Jobs returns every stored job.
func (r *MemBulkLoadRepo) Jobs() []model.BulkLoadJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.BulkLoadJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].LoadID < out[b].LoadID })
	return out
}

// MemCache is an in-memory core.CacheRepository with TTL against a Clock.
type MemCache struct {
	mu      sync.Mutex
	clock   *Clock
	entries map[string]memCacheEntry
}

type memCacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemCache returns an empty cache.
func NewMemCache(clock *Clock) *MemCache {
	if clock == nil {
		clock = NewClock(TestTime())
	}
	return &MemCache{clock: clock, entries: make(map[string]memCacheEntry)}
}

func (c *MemCache) live(key string) (memCacheEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return e, false
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return e, false
	}
	return e, true
}

func (c *MemCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.clock.Now().Add(ttl)
}

func (c *MemCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memCacheEntry{value: value, expiresAt: c.expiry(ttl)}
	return nil
}

func (c *MemCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, nil
	}
	return e.value, nil
}

func (c *MemCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	delete(c.entries, key)
	return ok, nil
}

func (c *MemCache) SetIfNotExists(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); ok {
		return false, nil
	}
	c.entries[key] = memCacheEntry{value: value, expiresAt: c.expiry(ttl)}
	return true, nil
}

func (c *MemCache) Health(context.Context) error { return nil }

// FakeGraphLoader is a scripted core.GraphLoader.
type FakeGraphLoader struct {
	mu       sync.Mutex
	seq      int
	Requests []model.LoadRequest
	// StartErr is returned by StartLoad when set.
	StartErr error
	// Statuses answers LoadStatus; unknown ids report Found=false.
	Statuses map[string]*model.EngineLoadStatus
	// StatusErr is returned by LoadStatus when set.
	StatusErr error
}

// NewFakeGraphLoader returns a loader that accepts every request.
func NewFakeGraphLoader() *FakeGraphLoader {
	return &FakeGraphLoader{Statuses: make(map[string]*model.EngineLoadStatus)}
}

func (g *FakeGraphLoader) StartLoad(_ context.Context, req model.LoadRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.StartErr != nil {
		return "", g.StartErr
	}
	g.seq++
	id := "load-" + strconv.Itoa(g.seq)
	g.Statuses[id] = &model.EngineLoadStatus{Found: true, Status: "LOAD_IN_QUEUE"}
	return id, nil
}

func (g *FakeGraphLoader) LoadStatus(_ context.Context, loadID string) (*model.EngineLoadStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.StatusErr != nil {
		return nil, g.StatusErr
	}
	st, ok := g.Statuses[loadID]
	if !ok {
		return &model.EngineLoadStatus{Found: false}, nil
	}
	cp := *st
	return &cp, nil
}

// SetStatus replaces the engine answer for loadID.
func (g *FakeGraphLoader) SetStatus(loadID string, st *model.EngineLoadStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Statuses[loadID] = st
}

// ScriptedTransformer answers transform calls from a per-file script, then Fallback.
type ScriptedTransformer struct {
	mu       sync.Mutex
	Script   map[string][]model.TransformResult
	Fallback model.TransformResult
	Calls    []model.TransformRequest
}

// NewScriptedTransformer returns a transformer that always answers fallback once scripts run out.
func NewScriptedTransformer(fallback model.TransformResult) *ScriptedTransformer {
	return &ScriptedTransformer{Script: make(map[string][]model.TransformResult), Fallback: fallback}
}

func (s *ScriptedTransformer) Transform(ctx context.Context, req model.TransformRequest) (model.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return model.TransformResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, req)
	if queue := s.Script[req.FileName]; len(queue) > 0 {
		s.Script[req.FileName] = queue[1:]
		return queue[0], nil
	}
	return s.Fallback, nil
}

// CallCount returns the number of transform calls made so far.
func (s *ScriptedTransformer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

var (
	_ core.ObjectStore        = (*MemObjectStore)(nil)
	_ core.ThrottleQueue      = (*MemQueue)(nil)
	_ core.ETLLogRepository   = (*MemETLLog)(nil)
	_ core.BulkLoadRepository = (*MemBulkLoadRepo)(nil)
	_ core.CacheRepository    = (*MemCache)(nil)
	_ core.GraphLoader        = (*FakeGraphLoader)(nil)
	_ core.SchemaTransformer  = (*ScriptedTransformer)(nil)
)
