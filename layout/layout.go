// Package layout tính toạ độ canvas cho cây dàn ý.
//
// Compute là hàm thuần: cùng tập node (và cùng order_index) luôn cho cùng kết
// quả, không giữ trạng thái giữa các lần gọi. Vì vậy mọi thay đổi của cây chỉ
// cần tính lại từ đầu.
package layout

import (
	"math"

	"github.com/google/uuid"

	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/tree"
)

const (
	LaneWidth   = 280.0
	VerticalGap = 120.0
)

type Position struct {
	ID uuid.UUID `json:"id"`
	X  float64   `json:"x"`
	Y  float64   `json:"y"`
}

type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// lanes phân loại con trực tiếp của một node theo quy tắc đặt vị trí
type lanes struct {
	contents []models.Node
	topics   []models.Node
	endings  []models.Node
	more     []models.Node
}

type engine struct {
	children map[uuid.UUID]*lanes
	widths   map[uuid.UUID]float64
	placed   map[uuid.UUID]bool
	out      []Position
}

// Compute trả về vị trí của mọi node nối được về root, theo thứ tự DFS.
// Node không nối được về root không có vị trí.
func Compute(nodes []models.Node) []Position {
	root, ok := findRoot(nodes)
	if !ok {
		return nil
	}

	e := &engine{
		children: make(map[uuid.UUID]*lanes),
		widths:   make(map[uuid.UUID]float64),
		placed:   make(map[uuid.UUID]bool),
		out:      make([]Position, 0, len(nodes)),
	}
	grouped := make(map[uuid.UUID][]models.Node)
	for _, n := range nodes {
		if n.ParentID != nil && n.NodeType != models.NodeRoot {
			grouped[*n.ParentID] = append(grouped[*n.ParentID], n)
		}
	}
	for parentID, kids := range grouped {
		tree.SortSiblings(kids)
		l := &lanes{}
		for _, k := range kids {
			switch k.NodeType {
			case models.NodeTopic:
				l.topics = append(l.topics, k)
			case models.NodeEnding:
				l.endings = append(l.endings, k)
			case models.NodeMore:
				l.more = append(l.more, k)
			default:
				l.contents = append(l.contents, k)
			}
		}
		e.children[parentID] = l
	}

	e.place(root, 0, 0)
	return e.out
}

// Width trả về độ rộng cây con của node: tổng độ rộng các chủ đề con
// (mỗi con tối thiểu LaneWidth), hoặc LaneWidth nếu không có chủ đề con
func (e *engine) width(id uuid.UUID, visiting map[uuid.UUID]bool) float64 {
	if w, ok := e.widths[id]; ok {
		return w
	}
	if visiting[id] {
		return LaneWidth
	}
	visiting[id] = true
	defer delete(visiting, id)

	l := e.children[id]
	if l == nil || len(l.topics) == 0 {
		e.widths[id] = LaneWidth
		return LaneWidth
	}
	total := 0.0
	for _, c := range l.topics {
		total += math.Max(e.width(c.ID, visiting), LaneWidth)
	}
	e.widths[id] = total
	return total
}

// place đặt node tại (x, y), rồi đặt các làn con bên dưới; trả về chiều cao cây con
func (e *engine) place(n models.Node, x, y float64) float64 {
	if e.placed[n.ID] {
		return 0
	}
	e.placed[n.ID] = true
	e.out = append(e.out, Position{ID: n.ID, X: x, Y: y})

	cur := y + VerticalGap
	l := e.children[n.ID]
	if l == nil {
		return cur - y
	}

	for _, c := range l.contents {
		cur += e.place(c, x, cur)
	}

	if len(l.topics) > 0 {
		widths := make([]float64, len(l.topics))
		total := 0.0
		for i, c := range l.topics {
			widths[i] = math.Max(e.width(c.ID, map[uuid.UUID]bool{}), LaneWidth)
			total += widths[i]
		}
		offset := x - total/2
		tallest := 0.0
		for i, c := range l.topics {
			h := e.place(c, offset+widths[i]/2, cur)
			tallest = math.Max(tallest, h)
			offset += widths[i]
		}
		cur += tallest
	}

	for _, c := range l.endings {
		cur += e.place(c, x, cur)
	}
	for _, c := range l.more {
		cur += e.place(c, x, cur)
	}
	return cur - y
}

func findRoot(nodes []models.Node) (models.Node, bool) {
	var root models.Node
	found := false
	for _, n := range nodes {
		if !n.IsRoot() {
			continue
		}
		if !found || n.ID.String() < root.ID.String() {
			root = n
			found = true
		}
	}
	return root, found
}

// SubtreeWidth tính độ rộng cây con của một node trong tập node cho trước
func SubtreeWidth(nodes []models.Node, id uuid.UUID) float64 {
	e := &engine{children: make(map[uuid.UUID]*lanes), widths: make(map[uuid.UUID]float64)}
	grouped := make(map[uuid.UUID][]models.Node)
	for _, n := range nodes {
		if n.ParentID != nil && n.NodeType == models.NodeTopic {
			grouped[*n.ParentID] = append(grouped[*n.ParentID], n)
		}
	}
	for parentID, kids := range grouped {
		e.children[parentID] = &lanes{topics: kids}
	}
	return e.width(id, map[uuid.UUID]bool{})
}

func Index(positions []Position) map[uuid.UUID]Position {
	out := make(map[uuid.UUID]Position, len(positions))
	for _, p := range positions {
		out[p.ID] = p
	}
	return out
}

func ComputeBounds(positions []Position) Bounds {
	if len(positions) == 0 {
		return Bounds{}
	}
	b := Bounds{MinX: positions[0].X, MaxX: positions[0].X, MinY: positions[0].Y, MaxY: positions[0].Y}
	for _, p := range positions[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}
