package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vnkhanh/podcast-studio/metrics"
	"github.com/vnkhanh/podcast-studio/models"
)

type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateCompleting State = "completing"
	StateError      State = "error"
)

var (
	ErrBusy          = errors.New("đang có một luồng sinh nội dung khác")
	ErrTargetMissing = errors.New("node đích không tồn tại")
)

// FrameError là lỗi do chính dịch vụ gửi trong frame {error}
type FrameError struct {
	Message string
}

func (e *FrameError) Error() string {
	return "dịch vụ sinh nội dung báo lỗi: " + e.Message
}

// Sink là phần của tree.Store mà controller cần
type Sink interface {
	PlaceStreamTarget(n models.Node) bool
	ResetStreamTarget(id uuid.UUID) bool
	AppendToNodeContent(id uuid.UUID, fragment string) bool
	MarkDirty()
}

// Opener mở luồng frame SSE tới dịch vụ sinh nội dung
type Opener func(ctx context.Context) (io.ReadCloser, error)

type Request struct {
	TargetID uuid.UUID
	// Placeholder != nil: tạo node mới làm đích; nil: xoá nội dung node TargetID có sẵn
	Placeholder *models.Node
	Open        Opener
}

type Result struct {
	TargetID  uuid.UUID
	Text      string
	Fragments int
	Malformed int
}

type EventKind string

const (
	EventState    EventKind = "state"
	EventFragment EventKind = "fragment"
)

type Event struct {
	Kind     EventKind
	TargetID uuid.UUID
	State    State
	Text     string
	Err      error
}

// Listener nhận sự kiện đồng bộ, ngoài khoá của controller
type Listener func(Event)

// Controller chạy tối đa một luồng cho mỗi workspace
type Controller struct {
	sink     Sink
	listener Listener

	mu     sync.Mutex
	state  State
	active *uuid.UUID
}

func NewController(sink Sink, listener Listener) *Controller {
	return &Controller{sink: sink, listener: listener, state: StateIdle}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Streaming trả về node đang nhận luồng (nếu có)
func (c *Controller) Streaming() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return uuid.Nil, false
	}
	return *c.active, true
}

// Busy dùng làm điều kiện hoãn autosave
func (c *Controller) Busy() bool {
	_, ok := c.Streaming()
	return ok
}

// Run thực hiện một lượt sinh nội dung vào req.TargetID.
// Văn bản đã nối vào node được giữ lại cả khi lỗi. Huỷ ctx tương đương bỏ dở luồng.
func (c *Controller) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{TargetID: req.TargetID}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return res, ErrBusy
	}
	id := req.TargetID
	c.active = &id
	c.mu.Unlock()

	var ok bool
	if req.Placeholder != nil {
		ph := *req.Placeholder
		ph.ID = req.TargetID
		ok = c.sink.PlaceStreamTarget(ph)
	} else {
		ok = c.sink.ResetStreamTarget(req.TargetID)
	}
	if !ok {
		c.release(StateIdle, nil)
		return res, ErrTargetMissing
	}
	c.setState(StateRequesting, nil)

	body, err := req.Open(ctx)
	if err != nil {
		return res, c.fail(fmt.Errorf("mở luồng: %w", err))
	}
	defer body.Close()

	var (
		dec   Decoder
		text  strings.Builder
		chunk = make([]byte, 4096)
		first = true
	)
	// handle trả về true khi luồng đã kết thúc (done hoặc lỗi)
	handle := func(frames []Frame) (bool, error) {
		for _, f := range frames {
			if first {
				first = false
				c.setState(StateStreaming, nil)
			}
			// text đi kèm frame lỗi vẫn được nối trước khi dừng
			if f.Text != "" {
				res.Fragments++
				text.WriteString(f.Text)
				metrics.StreamFragments.Inc()
				// node đã bị xoá giữa chừng: bỏ qua, không lỗi
				c.sink.AppendToNodeContent(req.TargetID, f.Text)
				c.emit(Event{Kind: EventFragment, TargetID: req.TargetID, Text: f.Text})
			}
			if f.Error != "" {
				return true, &FrameError{Message: f.Error}
			}
			if f.Done {
				return true, nil
			}
		}
		return false, nil
	}

	finish := func(err error) (Result, error) {
		res.Text = text.String()
		res.Malformed = dec.Malformed
		if dec.Malformed > 0 {
			metrics.StreamMalformedFrames.Add(float64(dec.Malformed))
		}
		if err != nil {
			return res, c.fail(err)
		}
		c.complete()
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("luồng bị bỏ dở: %w", err))
		}
		n, rerr := body.Read(chunk)
		if n > 0 {
			if done, ferr := handle(dec.Push(chunk[:n])); done {
				return finish(ferr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			_, ferr := handle(dec.Flush())
			return finish(ferr)
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return finish(fmt.Errorf("luồng bị bỏ dở: %w", ctx.Err()))
			}
			return finish(fmt.Errorf("đọc luồng: %w", rerr))
		}
	}
}

func (c *Controller) complete() {
	c.setState(StateCompleting, nil)
	c.sink.MarkDirty()
	metrics.StreamRuns.WithLabelValues("completed").Inc()
	c.release(StateIdle, nil)
}

// fail giữ nguyên phần văn bản đã nhận và vẫn đánh dấu dirty để phần đó được lưu
func (c *Controller) fail(err error) error {
	log.Printf("stream: %v", err)
	c.sink.MarkDirty()
	metrics.StreamRuns.WithLabelValues("error").Inc()
	c.release(StateError, err)
	return err
}

func (c *Controller) release(final State, err error) {
	c.mu.Lock()
	target := uuid.Nil
	if c.active != nil {
		target = *c.active
	}
	c.active = nil
	c.state = final
	c.mu.Unlock()
	c.emit(Event{Kind: EventState, TargetID: target, State: final, Err: err})
}

func (c *Controller) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	target := uuid.Nil
	if c.active != nil {
		target = *c.active
	}
	c.mu.Unlock()
	c.emit(Event{Kind: EventState, TargetID: target, State: s, Err: err})
}

func (c *Controller) emit(e Event) {
	if c.listener != nil {
		c.listener(e)
	}
}
