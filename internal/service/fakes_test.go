package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"github.com/kursadbilgin/notify-relay/internal/repository"
)

// memoryNotificationRepo mirrors the conditional-update semantics of the
// postgres repository: claims and finalizes only succeed from the expected
// prior status.
type memoryNotificationRepo struct {
	mu      sync.Mutex
	records map[string]*domain.Notification

	nextPendingErr error
	claimErr       error
	finalizeErr    error
	createErr      error
	staleErr       error
	staleCalls     int
}

func newMemoryNotificationRepo(records ...*domain.Notification) *memoryNotificationRepo {
	repo := &memoryNotificationRepo{records: map[string]*domain.Notification{}}
	for _, r := range records {
		repo.records[r.ID] = r
	}
	return repo
}

func (m *memoryNotificationRepo) get(id string) domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *memoryNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.records[n.ID]; exists {
		return fmt.Errorf("duplicate key %s", n.ID)
	}
	if n.Kind == domain.KindExecutionReplay {
		incoming, _ := domain.ParsePayload(n.Payload)
		for _, existing := range m.records {
			if existing.Kind != domain.KindExecutionReplay {
				continue
			}
			payload, _ := domain.ParsePayload(existing.Payload)
			if payload.ReplayOf == incoming.ReplayOf {
				return fmt.Errorf("%w: replay of %s already queued", domain.ErrConflict, incoming.ReplayOf)
			}
		}
	}
	copied := *n
	m.records[n.ID] = &copied
	return nil
}

func (m *memoryNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (m *memoryNotificationRepo) List(_ context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notification, 0, len(m.records))
	for _, n := range m.records {
		if params.Status != nil && n.Status != *params.Status {
			continue
		}
		if params.Kind != nil && n.Kind != *params.Kind {
			continue
		}
		if params.From != nil && n.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && n.CreatedAt.After(*params.To) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (m *memoryNotificationRepo) NextPending(_ context.Context) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextPendingErr != nil {
		return nil, m.nextPendingErr
	}
	var oldest *domain.Notification
	for _, n := range m.records {
		if n.Status != domain.StatusPending {
			continue
		}
		if oldest == nil || n.CreatedAt.Before(oldest.CreatedAt) ||
			(n.CreatedAt.Equal(oldest.CreatedAt) && n.ID < oldest.ID) {
			oldest = n
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	copied := *oldest
	return &copied, nil
}

func (m *memoryNotificationRepo) Claim(_ context.Context, id string, claimedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	n, ok := m.records[id]
	if !ok || n.Status != domain.StatusPending {
		return false, nil
	}
	n.Status = domain.StatusProcessing
	n.ClaimedAt = &claimedAt
	return true, nil
}

func (m *memoryNotificationRepo) finalize(id string, apply func(n *domain.Notification)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	n, ok := m.records[id]
	if !ok || n.Status != domain.StatusProcessing {
		return domain.ErrConflict
	}
	apply(n)
	return nil
}

func (m *memoryNotificationRepo) MarkSent(_ context.Context, id string, update repository.SentUpdate) error {
	return m.finalize(id, func(n *domain.Notification) {
		n.Status = domain.StatusSent
		n.Recipient = update.Recipient
		n.Message = update.Message
		sentAt := update.SentAt
		n.SentAt = &sentAt
		if update.ProviderMessageID != "" {
			providerID := update.ProviderMessageID
			n.ProviderMessageID = &providerID
		}
	})
}

func (m *memoryNotificationRepo) MarkSkipped(_ context.Context, id string, reason string) error {
	return m.finalize(id, func(n *domain.Notification) {
		n.Status = domain.StatusSkipped
		n.Error = &reason
	})
}

func (m *memoryNotificationRepo) MarkFailed(_ context.Context, id string, reason string) error {
	return m.finalize(id, func(n *domain.Notification) {
		n.Status = domain.StatusFailed
		n.Error = &reason
	})
}

func (m *memoryNotificationRepo) FailStaleClaims(_ context.Context, claimedBefore time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleCalls++
	if m.staleErr != nil {
		return 0, m.staleErr
	}
	var count int64
	for _, n := range m.records {
		if count >= int64(limit) {
			break
		}
		if n.Status == domain.StatusProcessing && n.ClaimedAt != nil && n.ClaimedAt.Before(claimedBefore) {
			reason := repository.StaleClaimReason
			n.Status = domain.StatusFailed
			n.Error = &reason
			count++
		}
	}
	return count, nil
}

func (m *memoryNotificationRepo) CountByStatus(_ context.Context) ([]repository.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[domain.Status]int64{}
	for _, n := range m.records {
		counts[n.Status]++
	}
	out := make([]repository.StatusCount, 0, len(counts))
	for status, count := range counts {
		out = append(out, repository.StatusCount{Status: status, Count: count})
	}
	return out, nil
}

type fakeAttemptReader struct {
	attemptContextFn func(ctx context.Context, attemptID string) (*domain.AttemptContext, error)
}

func (f *fakeAttemptReader) AttemptContext(ctx context.Context, attemptID string) (*domain.AttemptContext, error) {
	if f.attemptContextFn != nil {
		return f.attemptContextFn(ctx, attemptID)
	}
	return nil, domain.ErrNotFound
}

type fakeConfigSource struct {
	resolveFn func(ctx context.Context, scopeID string) (domain.NotifyConfig, error)
}

func (f *fakeConfigSource) Resolve(ctx context.Context, scopeID string) (domain.NotifyConfig, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, scopeID)
	}
	return domain.NotifyConfig{}, nil
}

func staticConfig(cfg domain.NotifyConfig) *fakeConfigSource {
	return &fakeConfigSource{
		resolveFn: func(context.Context, string) (domain.NotifyConfig, error) { return cfg, nil },
	}
}

type sentText struct {
	Instance string
	To       provider.Recipient
	Text     string
}

type fakeDeliveryClient struct {
	mu              sync.Mutex
	sent            []sentText
	sendTextFn      func(ctx context.Context, instance string, to provider.Recipient, text string) (*provider.SendResult, error)
	listInstancesFn func(ctx context.Context) ([]provider.Instance, error)
}

func (f *fakeDeliveryClient) SendText(ctx context.Context, instance string, to provider.Recipient, text string) (*provider.SendResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentText{Instance: instance, To: to, Text: text})
	f.mu.Unlock()
	if f.sendTextFn != nil {
		return f.sendTextFn(ctx, instance, to, text)
	}
	return &provider.SendResult{MessageID: "msg-1", Status: "sent"}, nil
}

func (f *fakeDeliveryClient) ListInstances(ctx context.Context) ([]provider.Instance, error) {
	if f.listInstancesFn != nil {
		return f.listInstancesFn(ctx)
	}
	return nil, nil
}

func (f *fakeDeliveryClient) calls() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sent...)
}

type fakeClientFactory struct {
	client   *fakeDeliveryClient
	newErr   error
	newCalls atomic.Int32
	lastHost string
	lastKey  string
	mu       sync.Mutex
}

func (f *fakeClientFactory) New(host, apiKey string) (provider.DeliveryClient, error) {
	f.newCalls.Add(1)
	f.mu.Lock()
	f.lastHost, f.lastKey = host, apiKey
	f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	return f.client, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, instance string) error
}

func (f *fakeRateLimiter) Allow(context.Context, string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, instance string) error {
	if f != nil && f.waitFn != nil {
		return f.waitFn(ctx, instance)
	}
	return nil
}

type memorySettingsRepo struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
}

func newMemorySettingsRepo() *memorySettingsRepo {
	return &memorySettingsRepo{values: map[string][]byte{}}
}

func (m *memorySettingsRepo) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *memorySettingsRepo) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
