// Package tree giữ cây dàn ý của một podcast trong bộ nhớ.
//
// Store là nguồn dữ liệu duy nhất cho các node trong một phiên làm việc: mọi
// thao tác đều là hàm toàn phần (id không tồn tại thì bỏ qua), lỗi chỉ xảy ra
// ở ranh giới với dịch vụ sinh nội dung hoặc lưu trữ.
package tree

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vnkhanh/podcast-studio/models"
)

// Các order_index dành riêng cho lời kết và nút "tải thêm", luôn nằm sau mọi chủ đề con
const (
	EndingOrderIndex = 1 << 20
	MoreOrderIndex   = EndingOrderIndex + 1
)

// NodePatch chứa các trường được phép cập nhật; nil nghĩa là giữ nguyên.
// parent_id và node_type không đổi được sau khi tạo.
type NodePatch struct {
	Title      *string
	Content    *string
	IsExpanded *bool
	OrderIndex *int
	PositionX  *float64
	PositionY  *float64
	Metadata   datatypes.JSONMap
}

type PodcastPatch struct {
	Title       *string
	ScriptStyle *models.ScriptStyle
	HostName    *string
	CoHostName  *string
	Status      *models.PodcastStatus
}

// Snapshot là bản chụp để autosave ghi xuống DB
type Snapshot struct {
	Podcast *models.Podcast
	Nodes   []models.Node
	Version uint64
	Dirty   bool
}

type Store struct {
	mu      sync.RWMutex
	podcast *models.Podcast
	nodes   map[uuid.UUID]*models.Node
	path    []uuid.UUID
	dirty   bool
	version uint64
	onDirty func()
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		nodes: make(map[uuid.UUID]*models.Node),
		now:   time.Now,
	}
}

// OnDirty đăng ký hàm được gọi (ngoài khoá) mỗi khi store bị đánh dấu dirty
func (s *Store) OnDirty(fn func()) {
	s.mu.Lock()
	s.onDirty = fn
	s.mu.Unlock()
}

// ===== Podcast =====

func (s *Store) SetPodcast(p models.Podcast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.podcast = &p
}

func (s *Store) Podcast() (models.Podcast, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.podcast == nil {
		return models.Podcast{}, false
	}
	return *s.podcast, true
}

func (s *Store) UpdatePodcast(patch PodcastPatch) {
	s.mu.Lock()
	if s.podcast == nil {
		s.mu.Unlock()
		return
	}
	if patch.Title != nil {
		s.podcast.Title = *patch.Title
	}
	if patch.ScriptStyle != nil {
		s.podcast.ScriptStyle = *patch.ScriptStyle
	}
	if patch.HostName != nil {
		s.podcast.HostName = *patch.HostName
	}
	if patch.CoHostName != nil {
		s.podcast.CoHostName = *patch.CoHostName
	}
	if patch.Status != nil {
		s.podcast.Status = *patch.Status
	}
	fn := s.touchLocked()
	s.mu.Unlock()
	notify(fn)
}

// ===== Mutations =====

// SetNodes thay toàn bộ tập node (dùng khi tải từ DB) và xoá cờ dirty.
// Node không nối được về root duy nhất bị loại và trả về để caller dọn ở DB.
// Path được đặt lại thành [root].
func (s *Store) SetNodes(nodes []models.Node) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[uuid.UUID]models.Node, len(nodes))
	order := make([]uuid.UUID, 0, len(nodes))
	var rootID *uuid.UUID
	for _, n := range nodes {
		if s.podcast != nil && n.PodcastID != s.podcast.ID {
			continue
		}
		if _, seen := byID[n.ID]; !seen {
			order = append(order, n.ID)
		}
		byID[n.ID] = n.Clone()
		if rootID == nil && n.IsRoot() {
			id := n.ID
			rootID = &id
		}
	}

	reachable := make(map[uuid.UUID]bool, len(byID))
	if rootID != nil {
		children := make(map[uuid.UUID][]uuid.UUID)
		for _, id := range order {
			n := byID[id]
			if n.ParentID != nil && n.NodeType != models.NodeRoot {
				children[*n.ParentID] = append(children[*n.ParentID], id)
			}
		}
		stack := []uuid.UUID{*rootID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reachable[id] {
				continue
			}
			reachable[id] = true
			stack = append(stack, children[id]...)
		}
	}

	s.nodes = make(map[uuid.UUID]*models.Node, len(reachable))
	var dropped []uuid.UUID
	for _, id := range order {
		if !reachable[id] {
			dropped = append(dropped, id)
			continue
		}
		n := byID[id]
		s.nodes[id] = &n
	}
	s.dedupeOrderIndexesLocked()

	s.path = s.path[:0]
	if rootID != nil {
		s.path = append(s.path, *rootID)
	}
	s.dirty = false
	s.version++

	if len(dropped) > 0 {
		log.Printf("tree: bỏ %d node không nối được về root", len(dropped))
	}
	return dropped
}

// AddNodes chèn hoặc thay thế theo id. Trong cùng một lô, parent được xử lý
// trước con. Node vi phạm bất biến của cây bị bỏ qua.
func (s *Store) AddNodes(nodes []models.Node) {
	s.mu.Lock()
	accepted := s.admitBatchLocked(nodes)
	var fn func()
	if accepted > 0 {
		fn = s.touchLocked()
	}
	s.mu.Unlock()
	notify(fn)
}

func (s *Store) UpdateNode(id uuid.UUID, patch NodePatch) {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Content != nil {
		n.Content = *patch.Content
	}
	if patch.IsExpanded != nil {
		n.IsExpanded = *patch.IsExpanded
	}
	if patch.OrderIndex != nil && n.ParentID != nil {
		n.OrderIndex = *patch.OrderIndex
		if s.orderTakenLocked(*n.ParentID, n.ID, n.OrderIndex) {
			n.OrderIndex = s.nextOrderIndexLocked(*n.ParentID)
		}
	}
	if patch.PositionX != nil {
		n.PositionX = *patch.PositionX
	}
	if patch.PositionY != nil {
		n.PositionY = *patch.PositionY
	}
	if patch.Metadata != nil {
		n.Metadata = patch.Metadata
	}
	fn := s.touchLocked()
	s.mu.Unlock()
	notify(fn)
}

// AppendToNodeContent nối đoạn văn bản vào nội dung node.
// Không đánh dấu dirty: đây là đường ghi tần suất cao khi stream, việc lưu
// được kích hoạt một lần khi stream kết thúc.
func (s *Store) AppendToNodeContent(id uuid.UUID, fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	n.Content += fragment
	return true
}

// PlaceStreamTarget chèn node placeholder cho stream mà không đánh dấu dirty
func (s *Store) PlaceStreamTarget(n models.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Content = ""
	n.IsExpanded = true
	return s.admitBatchLocked([]models.Node{n}) == 1
}

// ResetStreamTarget xoá nội dung node có sẵn trước khi stream, không đánh dấu dirty
func (s *Store) ResetStreamTarget(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	n.Content = ""
	n.IsExpanded = true
	return true
}

// RemoveNodes xoá đúng các id được truyền vào. Store không tự xoá lan xuống
// con cháu: caller phải truyền đủ bao đóng (xem prune.Coordinator).
// Root không bao giờ bị xoá.
func (s *Store) RemoveNodes(ids []uuid.UUID) {
	s.mu.Lock()
	removed := 0
	for _, id := range ids {
		n, ok := s.nodes[id]
		if !ok {
			continue
		}
		if n.IsRoot() {
			log.Printf("tree: không xoá root %s", id)
			continue
		}
		delete(s.nodes, id)
		removed++
	}
	var fn func()
	if removed > 0 {
		fn = s.touchLocked()
	}
	s.mu.Unlock()
	notify(fn)
}

// ===== Queries =====

func (s *Store) Node(id uuid.UUID) (models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return models.Node{}, false
	}
	return n.Clone(), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Store) RootNode() (models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.nodes {
		if n.IsRoot() {
			return n.Clone(), true
		}
	}
	return models.Node{}, false
}

// Nodes trả về bản sao mọi node, sắp theo created_at rồi id
func (s *Store) Nodes() []models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesLocked()
}

// GetChildNodes trả về con trực tiếp, tăng dần theo order_index
func (s *Store) GetChildNodes(parentID uuid.UUID) []models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Node
	for _, n := range s.nodes {
		if n.HasParent(parentID) {
			out = append(out, n.Clone())
		}
	}
	SortSiblings(out)
	return out
}

// GetDescendantIDs duyệt DFS và gom toàn bộ con cháu của node (không gồm chính nó)
func (s *Store) GetDescendantIDs(id uuid.UUID) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	children := s.childIndexLocked()
	var out []uuid.UUID
	seen := map[uuid.UUID]bool{id: true}
	stack := append([]uuid.UUID(nil), children[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		stack = append(stack, children[cur]...)
	}
	return out
}

// NextOrderIndex trả về order_index kế tiếp chưa dùng trong nhóm anh em,
// bỏ qua các chỉ số dành riêng cho lời kết và "tải thêm"
func (s *Store) NextOrderIndex(parentID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextOrderIndexLocked(parentID)
}

// ===== Path =====

// AddToPath nối node vào nhánh đang được kể; id đã có trong path thì bỏ qua
func (s *Store) AddToPath(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.path {
		if p == id {
			return
		}
	}
	s.path = append(s.path, id)
}

func (s *Store) PathIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uuid.UUID(nil), s.path...)
}

// GetPathNodes trả về các node trên path theo thứ tự, bỏ qua node đã bị xoá
func (s *Store) GetPathNodes() []models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Node, 0, len(s.path))
	for _, id := range s.path {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n.Clone())
		}
	}
	return out
}

// ===== Dirty / autosave =====

func (s *Store) MarkDirty() {
	s.mu.Lock()
	fn := s.touchLocked()
	s.mu.Unlock()
	notify(fn)
}

func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Nodes:   s.nodesLocked(),
		Version: s.version,
		Dirty:   s.dirty,
	}
	if s.podcast != nil {
		p := *s.podcast
		snap.Podcast = &p
	}
	return snap
}

// MarkSaved xoá cờ dirty nếu không có thay đổi nào sau bản chụp version
func (s *Store) MarkSaved(version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return false
	}
	s.dirty = false
	return true
}

// ===== internal =====

func (s *Store) touchLocked() func() {
	s.dirty = true
	s.version++
	return s.onDirty
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

func (s *Store) nodesLocked() []models.Node {
	out := make([]models.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *Store) childIndexLocked() map[uuid.UUID][]uuid.UUID {
	children := make(map[uuid.UUID][]uuid.UUID)
	for id, n := range s.nodes {
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], id)
		}
	}
	return children
}

type verdict int

const (
	admitOK verdict = iota
	admitWait
	admitReject
)

func (s *Store) admitBatchLocked(nodes []models.Node) int {
	pending := make([]models.Node, 0, len(nodes))
	for _, n := range nodes {
		pending = append(pending, n.Clone())
	}
	accepted := 0
	for progress := true; progress && len(pending) > 0; {
		progress = false
		var rest []models.Node
		for _, n := range pending {
			switch v, reason := s.admitLocked(n); v {
			case admitOK:
				s.insertLocked(n)
				accepted++
				progress = true
			case admitWait:
				rest = append(rest, n)
			default:
				log.Printf("tree: bỏ qua node %s: %s", n.ID, reason)
			}
		}
		pending = rest
	}
	for _, n := range pending {
		log.Printf("tree: bỏ qua node %s: không tìm thấy parent", n.ID)
	}
	return accepted
}

func (s *Store) admitLocked(n models.Node) (verdict, string) {
	if n.ID == uuid.Nil {
		return admitReject, "id rỗng"
	}
	if s.podcast != nil && n.PodcastID != s.podcast.ID {
		return admitReject, "khác podcast"
	}
	existing, replacing := s.nodes[n.ID]
	if replacing && existing.IsRoot() && !n.IsRoot() {
		return admitReject, "không thể đổi root thành node thường"
	}
	if n.ParentID == nil {
		if n.NodeType != models.NodeRoot {
			return admitReject, "node không phải root nhưng thiếu parent_id"
		}
		for id, other := range s.nodes {
			if id != n.ID && other.IsRoot() {
				return admitReject, "podcast đã có root"
			}
		}
		return admitOK, ""
	}
	if n.NodeType == models.NodeRoot {
		return admitReject, "root không được có parent"
	}
	if *n.ParentID == n.ID {
		return admitReject, "node tự làm cha của chính nó"
	}
	if _, ok := s.nodes[*n.ParentID]; !ok {
		return admitWait, ""
	}
	if replacing {
		// đi ngược từ parent mới, gặp lại chính node thì sẽ tạo chu trình
		for cur := *n.ParentID; ; {
			if cur == n.ID {
				return admitReject, "tạo chu trình"
			}
			p, ok := s.nodes[cur]
			if !ok || p.ParentID == nil {
				break
			}
			cur = *p.ParentID
		}
	}
	return admitOK, ""
}

func (s *Store) insertLocked(n models.Node) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if n.ParentID != nil && s.orderTakenLocked(*n.ParentID, n.ID, n.OrderIndex) {
		next := s.nextOrderIndexLocked(*n.ParentID)
		log.Printf("tree: order_index %d đã dùng dưới %s, chuyển node %s sang %d", n.OrderIndex, *n.ParentID, n.ID, next)
		n.OrderIndex = next
	}
	s.nodes[n.ID] = &n
}

func (s *Store) orderTakenLocked(parentID, self uuid.UUID, order int) bool {
	for id, other := range s.nodes {
		if id != self && other.HasParent(parentID) && other.OrderIndex == order {
			return true
		}
	}
	return false
}

func (s *Store) nextOrderIndexLocked(parentID uuid.UUID) int {
	next := 0
	for _, n := range s.nodes {
		if n.HasParent(parentID) && n.OrderIndex < EndingOrderIndex && n.OrderIndex >= next {
			next = n.OrderIndex + 1
		}
	}
	return next
}

// dedupeOrderIndexesLocked sửa order_index trùng trong dữ liệu tải lên,
// node đến sau (theo created_at, id) được dời xuống cuối nhóm
func (s *Store) dedupeOrderIndexesLocked() {
	groups := make(map[uuid.UUID][]*models.Node)
	for _, n := range s.nodes {
		if n.ParentID != nil {
			groups[*n.ParentID] = append(groups[*n.ParentID], n)
		}
	}
	for parentID, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if a.OrderIndex != b.OrderIndex {
				return a.OrderIndex < b.OrderIndex
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID.String() < b.ID.String()
		})
		used := make(map[int]bool, len(group))
		for _, n := range group {
			if used[n.OrderIndex] {
				n.OrderIndex = s.nextOrderIndexLocked(parentID)
			}
			used[n.OrderIndex] = true
		}
	}
}

// SortSiblings sắp node theo order_index, hoà thì theo id để kết quả ổn định
func SortSiblings(nodes []models.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].OrderIndex != nodes[j].OrderIndex {
			return nodes[i].OrderIndex < nodes[j].OrderIndex
		}
		return nodes[i].ID.String() < nodes[j].ID.String()
	})
}
