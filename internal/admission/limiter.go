package admission

import (
	"log/slog"
	"sync"
	"time"
)

// Значения по умолчанию для token bucket.
const (
	DefaultCapacity        = 10.0
	DefaultRefillPerSecond = 1.0
)

// Decision — результат проверки допуска.
type Decision struct {
	// Allowed — событие допущено, один токен израсходован.
	Allowed bool

	// TokensRemaining — оценка оставшихся токенов после расхода.
	TokensRemaining float64

	// RetryAfter — при отказе: через сколько появится токен. Всегда > 0.
	RetryAfter time.Duration
}

// Record — состояние bucket'а одного узла для одного ключа.
// Единица репликации: меняется только узлом-владельцем, остальные узлы
// хранят последнюю известную копию.
type Record struct {
	Key        string    `json:"key"`
	NodeID     string    `json:"node_id"`
	Tokens     float64   `json:"tokens"`
	LastUpdate time.Time `json:"last_update"`
}

// Limiter — реплицированный token-bucket лимитер.
//
// Каждый узел ведёт собственный bucket на ключ и периодически рассылает
// свои записи остальным узлам (anti-entropy gossip через MQ). Слияние
// записей одного (key, node) — last-writer-wins по LastUpdate.
//
// Политика чтения (открытый вопрос спецификации, зафиксирована здесь):
// эффективный остаток токенов по ключу — МИНИМУМ по всем известным
// записям узлов, каждая доначислена к текущему моменту. Пессимистичный
// минимум не допускает превышения лимита, пока узлы слышат друг друга;
// при partition узлы наполняются независимо и возможен временный
// over-admission — принятый компромисс, сходимость восстанавливается
// после слияния.
type Limiter struct {
	nodeID string
	logger *slog.Logger
	now    func() time.Time

	capacity float64
	refill   float64

	mu sync.Mutex
	// buckets: key → nodeID → record
	buckets map[string]map[string]*Record
}

// Config — конфигурация Limiter.
type Config struct {
	// NodeID — идентификатор этого узла в gossip.
	NodeID string

	// Capacity — ёмкость bucket'а по умолчанию (burst).
	Capacity float64

	// RefillPerSecond — скорость пополнения по умолчанию.
	RefillPerSecond float64

	// Logger — логгер.
	Logger *slog.Logger

	// Now — источник времени (подменяется в тестах).
	Now func() time.Time
}

// New создаёт Limiter.
func New(cfg Config) *Limiter {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	refill := cfg.RefillPerSecond
	if refill <= 0 {
		refill = DefaultRefillPerSecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Limiter{
		nodeID:   cfg.NodeID,
		logger:   logger,
		now:      now,
		capacity: capacity,
		refill:   refill,
		buckets:  make(map[string]map[string]*Record),
	}
}

// NodeID возвращает идентификатор узла в gossip.
func (l *Limiter) NodeID() string {
	return l.nodeID
}

// Allow проверяет допуск с параметрами по умолчанию.
func (l *Limiter) Allow(key string) Decision {
	return l.AllowWith(key, l.capacity, l.refill)
}

// AllowWith проверяет допуск с переопределением ёмкости и скорости.
// Расходует один токен, если он есть.
func (l *Limiter) AllowWith(key string, capacity, refillPerSecond float64) Decision {
	if capacity <= 0 {
		capacity = l.capacity
	}
	if refillPerSecond <= 0 {
		refillPerSecond = l.refill
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	local := l.localRecord(key, capacity, now)
	refillRecord(local, capacity, refillPerSecond, now)

	// Эффективный остаток: минимум по всем известным узлам.
	effective := local.Tokens
	for _, rec := range l.buckets[key] {
		if rec.NodeID == l.nodeID {
			continue
		}
		remote := estimateTokens(rec, capacity, refillPerSecond, now)
		if remote < effective {
			effective = remote
		}
	}

	if effective < 1 {
		retry := time.Duration((1 - effective) / refillPerSecond * float64(time.Second))
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{Allowed: false, RetryAfter: retry}
	}

	local.Tokens -= 1
	local.LastUpdate = now
	return Decision{Allowed: true, TokensRemaining: effective - 1}
}

// Snapshot возвращает копии записей этого узла для рассылки gossip.
func (l *Limiter) Snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0, len(l.buckets))
	for _, nodes := range l.buckets {
		if rec, ok := nodes[l.nodeID]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// Merge вливает записи, полученные от других узлов.
// Для каждой пары (key, node) побеждает запись с поздним LastUpdate.
func (l *Limiter) Merge(records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range records {
		rec := records[i]
		if rec.Key == "" || rec.NodeID == "" {
			continue
		}
		nodes, ok := l.buckets[rec.Key]
		if !ok {
			nodes = make(map[string]*Record)
			l.buckets[rec.Key] = nodes
		}
		existing, ok := nodes[rec.NodeID]
		if ok && !existing.LastUpdate.Before(rec.LastUpdate) {
			continue
		}
		cp := rec
		nodes[rec.NodeID] = &cp
	}
}

// TokensEstimate возвращает текущую оценку остатка по ключу (мониторинг).
func (l *Limiter) TokensEstimate(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	nodes, ok := l.buckets[key]
	if !ok {
		return l.capacity
	}
	effective := l.capacity
	for _, rec := range nodes {
		remote := estimateTokens(rec, l.capacity, l.refill, now)
		if remote < effective {
			effective = remote
		}
	}
	return effective
}

// localRecord возвращает запись этого узла, создавая её лениво.
func (l *Limiter) localRecord(key string, capacity float64, now time.Time) *Record {
	nodes, ok := l.buckets[key]
	if !ok {
		nodes = make(map[string]*Record)
		l.buckets[key] = nodes
	}
	rec, ok := nodes[l.nodeID]
	if !ok {
		rec = &Record{Key: key, NodeID: l.nodeID, Tokens: capacity, LastUpdate: now}
		nodes[l.nodeID] = rec
	}
	return rec
}

// refillRecord доначисляет токены записи к моменту now.
func refillRecord(rec *Record, capacity, refillPerSecond float64, now time.Time) {
	elapsed := now.Sub(rec.LastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}
	rec.Tokens = min(capacity, rec.Tokens+elapsed*refillPerSecond)
	rec.LastUpdate = now
}

// estimateTokens — остаток чужой записи, доначисленный к моменту now,
// без мутации самой записи (она принадлежит другому узлу).
func estimateTokens(rec *Record, capacity, refillPerSecond float64, now time.Time) float64 {
	elapsed := now.Sub(rec.LastUpdate).Seconds()
	if elapsed <= 0 {
		return rec.Tokens
	}
	return min(capacity, rec.Tokens+elapsed*refillPerSecond)
}
