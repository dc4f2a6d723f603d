// Package autosave lưu cây xuống DB theo debounce sau mỗi thay đổi, kèm một
// ticker định kỳ làm lưới an toàn.
package autosave

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/vnkhanh/podcast-studio/metrics"
	"github.com/vnkhanh/podcast-studio/tree"
)

const (
	DefaultDebounce = 3 * time.Second
	DefaultInterval = 30 * time.Second
	saveTimeout     = 20 * time.Second
	holdPoll        = 50 * time.Millisecond
)

var ErrDeferred = errors.New("đang sinh nội dung, tạm hoãn lưu")

type State string

const (
	StateIdle   State = "idle"
	StateSaving State = "saving"
	StateSaved  State = "saved"
	StateError  State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastSaveAt *time.Time `json:"last_save_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Source là phần của tree.Store mà scheduler cần
type Source interface {
	IsDirty() bool
	Snapshot() tree.Snapshot
	MarkSaved(version uint64) bool
}

// SaveFunc ghi một bản chụp xuống DB
type SaveFunc func(ctx context.Context, snap tree.Snapshot) error

type Options struct {
	Debounce time.Duration
	Interval time.Duration
	// Hold trả về true khi không được lưu (ví dụ đang stream)
	Hold func() bool
	// OnStatus được gọi mỗi khi trạng thái đổi
	OnStatus func(Status)
}

type Scheduler struct {
	src  Source
	save SaveFunc
	opts Options

	saveMu sync.Mutex // mỗi lúc chỉ một lần lưu

	mu      sync.Mutex
	status  Status
	timer   *time.Timer
	stop    chan struct{}
	done    chan struct{}
	running bool
	closed  bool // sau Stop/Discard: không còn lưu nền
}

func New(src Source, save SaveFunc, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Scheduler{src: src, save: save, opts: opts, status: Status{State: StateIdle}}
}

// Start chạy ticker định kỳ
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	ticker := time.NewTicker(s.opts.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.runBackground("tick")
			}
		}
	}()
}

// Notify (re)đặt hẹn giờ debounce; gọi mỗi khi store bị đánh dấu dirty
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.Debounce, func() { s.runBackground("debounce") })
}

// SaveNow lưu ngay nếu có thay đổi
func (s *Scheduler) SaveNow(ctx context.Context) error {
	return s.saveOnce(ctx, false)
}

// Stop dừng ticker, huỷ debounce đang chờ rồi lưu lần cuối. Nếu đang stream thì
// chờ stream xong (trong giới hạn ctx) trước khi lưu.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.shutdown()
	if err := s.waitHold(ctx); err != nil {
		return errors.Join(ErrDeferred, err)
	}
	return s.saveOnce(ctx, false)
}

// Discard dừng scheduler mà không lưu lần cuối (podcast đã bị xoá)
func (s *Scheduler) Discard() {
	s.shutdown()
	// chờ lần lưu nền đang chạy (nếu có) kết thúc
	s.saveMu.Lock()
	s.saveMu.Unlock()
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	running := s.running
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if running {
		close(stop)
		<-done
	}
}

func (s *Scheduler) waitHold(ctx context.Context) error {
	if s.opts.Hold == nil {
		return nil
	}
	ticker := time.NewTicker(holdPoll)
	defer ticker.Stop()
	for s.opts.Hold() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) runBackground(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.saveOnce(ctx, true); err != nil && !errors.Is(err, ErrDeferred) {
		log.Printf("autosave (%s): %v", trigger, err)
	}
}

// background: lần lưu từ debounce/ticker, bị bỏ qua khi scheduler đã đóng
func (s *Scheduler) saveOnce(ctx context.Context, background bool) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if background && s.isClosed() {
		return nil
	}
	if !s.src.IsDirty() {
		return nil
	}
	if s.opts.Hold != nil && s.opts.Hold() {
		metrics.AutosaveRuns.WithLabelValues("deferred").Inc()
		return ErrDeferred
	}

	snap := s.src.Snapshot()
	s.setStatus(func(st *Status) { st.State = StateSaving })

	if err := s.save(ctx, snap); err != nil {
		metrics.AutosaveRuns.WithLabelValues("error").Inc()
		s.setStatus(func(st *Status) {
			st.State = StateError
			st.LastError = err.Error()
		})
		return err
	}

	// có thay đổi mới trong lúc lưu thì vẫn giữ dirty cho lần sau
	s.src.MarkSaved(snap.Version)
	metrics.AutosaveRuns.WithLabelValues("saved").Inc()
	now := time.Now()
	s.setStatus(func(st *Status) {
		st.State = StateSaved
		st.LastSaveAt = &now
		st.LastError = ""
	})
	return nil
}

func (s *Scheduler) setStatus(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	st := s.status
	cb := s.opts.OnStatus
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}
