// Package prune giữ chính sách "một nhánh đang kể": khi chọn một node, các
// nhánh anh em của nó bị xoá khỏi cây cục bộ ngay, rồi xoá ở DB theo kiểu
// bắn-và-quên.
package prune

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnkhanh/podcast-studio/metrics"
	"github.com/vnkhanh/podcast-studio/models"
)

const DefaultRemoteTimeout = 15 * time.Second

// NodeDeleter xoá node ở tầng lưu trữ, giới hạn trong một podcast
type NodeDeleter interface {
	DeleteNodes(ctx context.Context, podcastID uuid.UUID, ids []uuid.UUID) error
}

// Tree là phần của tree.Store mà coordinator cần
type Tree interface {
	Node(id uuid.UUID) (models.Node, bool)
	GetChildNodes(parentID uuid.UUID) []models.Node
	GetDescendantIDs(id uuid.UUID) []uuid.UUID
	RemoveNodes(ids []uuid.UUID)
}

type Coordinator struct {
	tree      Tree
	deleter   NodeDeleter
	podcastID uuid.UUID
	timeout   time.Duration

	wg       sync.WaitGroup
	mu       sync.Mutex
	failures int
}

func NewCoordinator(t Tree, deleter NodeDeleter, podcastID uuid.UUID) *Coordinator {
	return &Coordinator{tree: t, deleter: deleter, podcastID: podcastID, timeout: DefaultRemoteTimeout}
}

// CommitTo xoá mọi anh em của node cùng toàn bộ con cháu của chúng.
// Trả về tập id đã xoá khỏi cây.
func (c *Coordinator) CommitTo(id uuid.UUID) []uuid.UUID {
	n, ok := c.tree.Node(id)
	if !ok || n.ParentID == nil {
		return nil
	}
	var doomed []uuid.UUID
	for _, sib := range c.tree.GetChildNodes(*n.ParentID) {
		if sib.ID == id {
			continue
		}
		doomed = append(doomed, c.closure(sib.ID)...)
	}
	c.remove(doomed)
	return doomed
}

// ClearChildren xoá các con hiện có của node (trước khi mở rộng lại)
func (c *Coordinator) ClearChildren(id uuid.UUID) []uuid.UUID {
	doomed := c.tree.GetDescendantIDs(id)
	c.remove(doomed)
	return doomed
}

// DeleteSubtree xoá node và toàn bộ con cháu (người dùng xoá tay)
func (c *Coordinator) DeleteSubtree(id uuid.UUID) []uuid.UUID {
	n, ok := c.tree.Node(id)
	if !ok || n.IsRoot() {
		return nil
	}
	doomed := c.closure(id)
	c.remove(doomed)
	return doomed
}

// Forget xoá ở DB những id không còn trong cây (ví dụ node mồ côi lúc tải lại)
func (c *Coordinator) Forget(ids []uuid.UUID) {
	c.dispatch(ids)
}

// Wait chờ các lệnh xoá ở DB đang chạy (dùng khi tắt phiên và trong test)
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *Coordinator) closure(id uuid.UUID) []uuid.UUID {
	return append([]uuid.UUID{id}, c.tree.GetDescendantIDs(id)...)
}

func (c *Coordinator) remove(ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	c.tree.RemoveNodes(ids)
	metrics.PrunedNodes.Add(float64(len(ids)))
	c.dispatch(ids)
}

func (c *Coordinator) dispatch(ids []uuid.UUID) {
	if len(ids) == 0 || c.deleter == nil {
		return
	}
	batch := append([]uuid.UUID(nil), ids...)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.deleter.DeleteNodes(ctx, c.podcastID, batch); err != nil {
			// cây cục bộ là chuẩn, không hoàn tác; lần tải sau sẽ dọn
			log.Printf("prune: xoá %d node ở DB thất bại (podcast %s): %v", len(batch), c.podcastID, err)
			metrics.PruneDeleteFailures.Inc()
			c.mu.Lock()
			c.failures++
			c.mu.Unlock()
		}
	}()
}
