package workspace

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnkhanh/podcast-studio/metrics"
)

// ErrNotOwner trả về khi podcast đang mở thuộc người dùng khác
var ErrNotOwner = errors.New("podcast không thuộc người dùng này")

// Manager giữ mỗi podcast đang mở một Session trong bộ nhớ
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	loading  map[uuid.UUID]chan struct{} // podcast đang được tải, đóng khi xong
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		sessions: make(map[uuid.UUID]*Session),
		loading:  make(map[uuid.UUID]chan struct{}),
	}
}

// Open trả về phiên đang mở hoặc tải mới từ DB. Việc tải chạy ngoài khoá;
// các lời gọi cùng podcast chờ lần tải đang chạy thay vì tải lại.
func (m *Manager) Open(ctx context.Context, podcastID, userID uuid.UUID) (*Session, error) {
	for {
		m.mu.Lock()
		if s, ok := m.sessions[podcastID]; ok {
			m.mu.Unlock()
			if s.userID != userID {
				return nil, ErrNotOwner
			}
			s.touch()
			return s, nil
		}
		wait, busy := m.loading[podcastID]
		if !busy {
			break // giữ khoá, tiếp tục tải bên dưới
		}
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	done := make(chan struct{})
	m.loading[podcastID] = done
	m.mu.Unlock()

	s := newSession(podcastID, userID, m.deps)
	err := s.Load(ctx)

	m.mu.Lock()
	delete(m.loading, podcastID)
	if err == nil {
		m.sessions[podcastID] = s
		metrics.ActiveSessions.Inc()
	}
	m.mu.Unlock()
	close(done)

	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) Get(podcastID uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[podcastID]
	return s, ok
}

// Close lưu lần cuối rồi bỏ phiên khỏi bộ nhớ
func (m *Manager) Close(ctx context.Context, podcastID uuid.UUID) error {
	s := m.take(podcastID)
	if s == nil {
		return nil
	}
	return s.Close(ctx)
}

// Evict bỏ phiên mà không lưu, dùng sau khi podcast bị xoá
func (m *Manager) Evict(podcastID uuid.UUID) {
	if s := m.take(podcastID); s != nil {
		s.discard()
	}
}

// Shutdown đóng mọi phiên, trả về lỗi đầu tiên gặp phải
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil {
			log.Printf("workspace: đóng podcast %s thất bại: %v", id, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// CloseIdle đóng các phiên không được dùng trong khoảng maxIdle, bỏ qua phiên đang stream
func (m *Manager) CloseIdle(ctx context.Context, maxIdle time.Duration) int {
	m.mu.Lock()
	var idle []uuid.UUID
	for id, s := range m.sessions {
		if s.stream.Busy() {
			continue
		}
		if s.now().Sub(s.idleSince()) >= maxIdle {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, id := range idle {
		if err := m.Close(ctx, id); err != nil {
			log.Printf("workspace: đóng podcast %s nhàn rỗi thất bại: %v", id, err)
			continue
		}
		closed++
	}
	return closed
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) take(podcastID uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[podcastID]
	if !ok {
		return nil
	}
	delete(m.sessions, podcastID)
	metrics.ActiveSessions.Dec()
	return s
}
