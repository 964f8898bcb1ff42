package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/urlefy/internal/models"
	"github.com/SergeiKhy/urlefy/internal/repository"
)

// ErrUnavailable имитирует отказ уровня (таймаут, обрыв соединения)
var ErrUnavailable = errors.New("mock: tier unavailable")

// wait имитирует зависший уровень: ждёт закрытия block или отмены ctx
func wait(ctx context.Context, block chan struct{}) error {
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MockURLRepository implements repository.URLRepository for testing
type MockURLRepository struct {
	mu     sync.RWMutex
	urls   map[string]*models.URLMapping
	nextID int64

	// Отказы по операциям
	SaveErr      error
	FindErr      error
	PopularErr   error
	IncrementErr error

	// SaveHook вызывается перед вставкой; позволяет синхронизировать гонки в тестах
	SaveHook func(mapping *models.URLMapping)

	// LostAcks: сколько успешных вставок вернуть ошибкой, как при обрыве после COMMIT
	LostAcks int

	// Block, пока не закрыт, подвешивает все операции до отмены ctx
	Block chan struct{}

	saveCalls      int
	findCalls      int
	incrementCalls int
}

func NewMockURLRepository() *MockURLRepository {
	return &MockURLRepository{
		urls:   make(map[string]*models.URLMapping),
		nextID: 1,
	}
}

func (m *MockURLRepository) Save(ctx context.Context, mapping *models.URLMapping) error {
	if err := wait(ctx, m.Block); err != nil {
		return err
	}
	if m.SaveHook != nil {
		m.SaveHook(mapping)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if _, exists := m.urls[mapping.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	mapping.ID = m.nextID
	m.nextID++

	stored := *mapping
	m.urls[mapping.ShortCode] = &stored

	if m.LostAcks > 0 {
		m.LostAcks--
		return ErrUnavailable
	}
	return nil
}

func (m *MockURLRepository) FindByCode(ctx context.Context, code string) (*models.URLMapping, error) {
	if err := wait(ctx, m.Block); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.findCalls++
	if m.FindErr != nil {
		return nil, m.FindErr
	}

	mapping, exists := m.urls[code]
	if !exists || mapping.IsExpired(time.Now()) {
		return nil, repository.ErrLinkNotFound
	}

	found := *mapping
	return &found, nil
}

func (m *MockURLRepository) FindMostPopular(ctx context.Context, limit int) ([]*models.URLMapping, error) {
	if err := wait(ctx, m.Block); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.PopularErr != nil {
		return nil, m.PopularErr
	}

	now := time.Now()
	result := make([]*models.URLMapping, 0, len(m.urls))
	for _, mapping := range m.urls {
		if mapping.IsExpired(now) {
			continue
		}
		found := *mapping
		result = append(result, &found)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ClickCount == result[j].ClickCount {
			return result[i].ShortCode < result[j].ShortCode
		}
		return result[i].ClickCount > result[j].ClickCount
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockURLRepository) IncrementClickCount(ctx context.Context, code string) error {
	if err := wait(ctx, m.Block); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.incrementCalls++
	if m.IncrementErr != nil {
		return m.IncrementErr
	}

	mapping, exists := m.urls[code]
	if !exists {
		return repository.ErrLinkNotFound
	}
	mapping.ClickCount++
	return nil
}

// Put кладёт запись напрямую, минуя Save
func (m *MockURLRepository) Put(mapping *models.URLMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *mapping
	if stored.ID == 0 {
		stored.ID = m.nextID
		m.nextID++
	}
	m.urls[mapping.ShortCode] = &stored
}

// Get возвращает копию записи для проверок
func (m *MockURLRepository) Get(code string) (*models.URLMapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mapping, exists := m.urls[code]
	if !exists {
		return nil, false
	}
	found := *mapping
	return &found, true
}

func (m *MockURLRepository) SetSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveErr = err
}

func (m *MockURLRepository) SetFindErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindErr = err
}

func (m *MockURLRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.urls)
}

func (m *MockURLRepository) SaveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalls
}

func (m *MockURLRepository) FindCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findCalls
}

func (m *MockURLRepository) IncrementCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.incrementCalls
}

func (m *MockURLRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = make(map[string]*models.URLMapping)
	m.nextID = 1
	m.saveCalls, m.findCalls, m.incrementCalls = 0, 0, 0
}

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]cacheEntry

	// Err возвращается всеми операциями, пока не nil
	Err error

	// Block, пока не закрыт, подвешивает все операции до отмены ctx
	Block chan struct{}

	getCalls int
	setCalls int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]cacheEntry),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, code string) (string, time.Duration, error) {
	if err := wait(ctx, m.Block); err != nil {
		return "", 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.Err != nil {
		return "", 0, m.Err
	}

	entry, ok := m.lookup(code)
	if !ok {
		return "", 0, repository.ErrCacheMiss
	}
	return entry.url, time.Until(entry.expiresAt), nil
}

func (m *MockCacheRepository) Set(ctx context.Context, code, url string, ttl time.Duration) error {
	if err := wait(ctx, m.Block); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.setCalls++
	if m.Err != nil {
		return m.Err
	}

	m.cache[code] = cacheEntry{url: url, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MockCacheRepository) SetNX(ctx context.Context, code, url string, ttl time.Duration) (bool, error) {
	if err := wait(ctx, m.Block); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	if _, ok := m.lookup(code); ok {
		return false, nil
	}

	m.cache[code] = cacheEntry{url: url, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (m *MockCacheRepository) DeleteIfValue(ctx context.Context, code, url string) error {
	if err := wait(ctx, m.Block); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if entry, ok := m.cache[code]; ok && entry.url == url {
		delete(m.cache, code)
	}
	return nil
}

// lookup учитывает TTL; вызывать под m.mu
func (m *MockCacheRepository) lookup(code string) (cacheEntry, bool) {
	entry, ok := m.cache[code]
	if !ok {
		return cacheEntry{}, false
	}
	if !time.Now().Before(entry.expiresAt) {
		delete(m.cache, code)
		return cacheEntry{}, false
	}
	return entry, true
}

// SetErr переключает доступность кэша
func (m *MockCacheRepository) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Value возвращает значение и оставшийся TTL без учёта Err
func (m *MockCacheRepository) Value(code string) (string, time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(code)
	if !ok {
		return "", 0, false
	}
	return entry.url, time.Until(entry.expiresAt), true
}

func (m *MockCacheRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

func (m *MockCacheRepository) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}

func (m *MockCacheRepository) SetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.setCalls
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]cacheEntry)
	m.Err = nil
	m.getCalls, m.setCalls = 0, 0
}
