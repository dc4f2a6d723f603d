package tree

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/podcast-studio/models"
)

var testPodcastID = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")

func makeNode(parent *models.Node, typ models.NodeType, order int) models.Node {
	n := models.Node{
		ID:         uuid.New(),
		PodcastID:  testPodcastID,
		NodeType:   typ,
		Title:      string(typ),
		OrderIndex: order,
	}
	if parent != nil {
		id := parent.ID
		n.ParentID = &id
	}
	return n
}

func newLoadedStore(t *testing.T, nodes ...models.Node) *Store {
	t.Helper()
	s := NewStore()
	s.SetPodcast(models.Podcast{ID: testPodcastID, RootTopic: "root"})
	dropped := s.SetNodes(nodes)
	require.Empty(t, dropped)
	return s
}

func TestGetChildNodesSortedByOrderIndex(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	c2 := makeNode(&root, models.NodeTopic, 2)
	c1 := makeNode(&root, models.NodeTopic, 1)
	c3 := makeNode(&root, models.NodeTopic, 3)
	s := newLoadedStore(t, root, c2, c1, c3)

	children := s.GetChildNodes(root.ID)
	require.Len(t, children, 3)
	assert.Equal(t, []uuid.UUID{c1.ID, c2.ID, c3.ID}, ids(children))
}

func TestAddNodesMergesAndMarksDirty(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	s := newLoadedStore(t, root)
	assert.False(t, s.IsDirty())

	a := makeNode(&root, models.NodeTopic, 0)
	s.AddNodes([]models.Node{a})
	assert.True(t, s.IsDirty())
	assert.Equal(t, 2, s.Len())

	a.Title = "đổi tên"
	s.AddNodes([]models.Node{a})
	got, ok := s.Node(a.ID)
	require.True(t, ok)
	assert.Equal(t, "đổi tên", got.Title)
	assert.Equal(t, 2, s.Len())
}

func TestAddNodesParentLaterInBatch(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	s := newLoadedStore(t, root)

	parent := makeNode(&root, models.NodeTopic, 0)
	child := makeNode(&parent, models.NodeContent, 0)
	s.AddNodes([]models.Node{child, parent})

	_, ok := s.Node(child.ID)
	assert.True(t, ok)
	assert.Equal(t, 3, s.Len())
}

func TestAddNodesRejectsInvalidNodes(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeTopic, 0)
	b := makeNode(&a, models.NodeTopic, 0)
	s := newLoadedStore(t, root, a, b)

	secondRoot := makeNode(nil, models.NodeRoot, 0)
	orphan := makeNode(&models.Node{ID: uuid.New()}, models.NodeTopic, 0)
	foreign := makeNode(&root, models.NodeTopic, 5)
	foreign.PodcastID = uuid.New()
	noParent := makeNode(nil, models.NodeTopic, 0)

	// a trở thành con của b => chu trình
	cyclic := a
	bID := b.ID
	cyclic.ParentID = &bID

	s.AddNodes([]models.Node{secondRoot, orphan, foreign, noParent, cyclic})

	assert.Equal(t, 3, s.Len())
	got, _ := s.Node(a.ID)
	assert.True(t, got.HasParent(root.ID))
	assertIsTree(t, s)
}

func TestAddNodesMovesCollidingOrderIndex(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeTopic, 0)
	s := newLoadedStore(t, root, a)

	b := makeNode(&root, models.NodeTopic, 0)
	s.AddNodes([]models.Node{b})

	got, _ := s.Node(b.ID)
	assert.Equal(t, 1, got.OrderIndex)
	assertUniqueOrder(t, s)
}

func TestNextOrderIndexSkipsReservedLanes(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeTopic, 0)
	b := makeNode(&root, models.NodeTopic, 1)
	end := makeNode(&root, models.NodeEnding, EndingOrderIndex)
	more := makeNode(&root, models.NodeMore, MoreOrderIndex)
	s := newLoadedStore(t, root, a, b, end, more)

	assert.Equal(t, 2, s.NextOrderIndex(root.ID))
	assert.Equal(t, 0, s.NextOrderIndex(a.ID))
}

func TestUpdateNode(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeTopic, 0)
	s := newLoadedStore(t, root, a)

	title := "mới"
	expanded := true
	s.UpdateNode(a.ID, NodePatch{Title: &title, IsExpanded: &expanded})

	got, _ := s.Node(a.ID)
	assert.Equal(t, "mới", got.Title)
	assert.True(t, got.IsExpanded)
	assert.True(t, s.IsDirty())
}

func TestUpdateMissingNodeIsNoop(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	s := newLoadedStore(t, root)

	title := "x"
	s.UpdateNode(uuid.New(), NodePatch{Title: &title})
	assert.False(t, s.IsDirty())
}

func TestAppendToNodeContentDoesNotMarkDirty(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeContent, 0)
	a.Content = "hello"
	s := newLoadedStore(t, root, a)

	assert.True(t, s.AppendToNodeContent(a.ID, " world"))
	got, _ := s.Node(a.ID)
	assert.Equal(t, "hello world", got.Content)
	assert.False(t, s.IsDirty())

	assert.False(t, s.AppendToNodeContent(uuid.New(), "lost"))
}

func TestRemoveNodesDoesNotCascadeAndKeepsRoot(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeTopic, 0)
	b := makeNode(&a, models.NodeTopic, 0)
	s := newLoadedStore(t, root, a, b)

	s.RemoveNodes([]uuid.UUID{root.ID, b.ID})
	assert.Equal(t, 2, s.Len())
	_, ok := s.RootNode()
	assert.True(t, ok)
	assert.True(t, s.IsDirty())
}

func TestGetDescendantIDsDeepTree(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	nodes := []models.Node{root}
	prev := root
	for i := 0; i < 50; i++ {
		n := makeNode(&prev, models.NodeTopic, 0)
		nodes = append(nodes, n)
		prev = n
	}
	s := newLoadedStore(t, nodes...)

	desc := s.GetDescendantIDs(nodes[1].ID)
	assert.Len(t, desc, 49)
	assert.NotContains(t, desc, nodes[1].ID)
	assert.NotContains(t, desc, root.ID)
}

func TestRandomTreesKeepProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		root := makeNode(nil, models.NodeRoot, 0)
		nodes := []models.Node{root}
		for i := 0; i < 60; i++ {
			parent := nodes[rng.Intn(len(nodes))]
			nodes = append(nodes, makeNode(&parent, models.NodeTopic, rng.Intn(1000)))
		}
		rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

		s := NewStore()
		s.SetPodcast(models.Podcast{ID: testPodcastID})
		require.Empty(t, s.SetNodes(nodes))

		for _, n := range nodes {
			children := s.GetChildNodes(n.ID)
			for i := 1; i < len(children); i++ {
				assert.Less(t, children[i-1].OrderIndex, children[i].OrderIndex)
			}

			want := subtreeSize(nodes, n.ID) - 1
			desc := s.GetDescendantIDs(n.ID)
			assert.Len(t, desc, want)
			for _, d := range desc {
				assert.True(t, isAncestor(nodes, n.ID, d), "%s không thuộc cây con của %s", d, n.ID)
			}
		}
		assertIsTree(t, s)
	}
}

func TestSetNodesDropsUnreachableNodes(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeTopic, 0)
	ghostParent := models.Node{ID: uuid.New()}
	ghost := makeNode(&ghostParent, models.NodeContent, 0)
	ghostChild := makeNode(&ghost, models.NodeContent, 0)
	extraRoot := makeNode(nil, models.NodeRoot, 0)

	s := NewStore()
	s.SetPodcast(models.Podcast{ID: testPodcastID})
	s.MarkDirty()
	dropped := s.SetNodes([]models.Node{root, a, ghost, ghostChild, extraRoot})

	assert.ElementsMatch(t, []uuid.UUID{ghost.ID, ghostChild.ID, extraRoot.ID}, dropped)
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.IsDirty())
	assert.Equal(t, []uuid.UUID{root.ID}, s.PathIDs())
}

func TestSetNodesRepairsDuplicateOrder(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeTopic, 0)
	b := makeNode(&root, models.NodeTopic, 0)
	s := newLoadedStore(t, root, a, b)
	assertUniqueOrder(t, s)
}

func TestPathTracking(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	a := makeNode(&root, models.NodeTopic, 0)
	b := makeNode(&a, models.NodeContent, 0)
	s := newLoadedStore(t, root, a, b)

	s.AddToPath(b.ID)
	s.AddToPath(b.ID)
	assert.Equal(t, []uuid.UUID{root.ID, b.ID}, s.PathIDs())

	s.RemoveNodes([]uuid.UUID{b.ID})
	pathNodes := s.GetPathNodes()
	require.Len(t, pathNodes, 1)
	assert.Equal(t, root.ID, pathNodes[0].ID)
}

func TestMarkSavedRespectsVersion(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	s := newLoadedStore(t, root)

	s.MarkDirty()
	snap := s.Snapshot()
	s.MarkDirty()
	assert.False(t, s.MarkSaved(snap.Version))
	assert.True(t, s.IsDirty())

	snap = s.Snapshot()
	assert.True(t, s.MarkSaved(snap.Version))
	assert.False(t, s.IsDirty())
}

func TestOnDirtyListener(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	s := newLoadedStore(t, root)
	calls := 0
	s.OnDirty(func() { calls++ })

	s.AddNodes([]models.Node{makeNode(&root, models.NodeTopic, 0)})
	s.AppendToNodeContent(root.ID, "x")
	s.MarkDirty()
	assert.Equal(t, 2, calls)
}

func TestStreamTargetHelpersDoNotMarkDirty(t *testing.T) {
	root := makeNode(nil, models.NodeRoot, 0)
	topic := makeNode(&root, models.NodeTopic, 0)
	topic.Content = "tóm tắt"
	s := newLoadedStore(t, root, topic)

	placeholder := makeNode(&topic, models.NodeContent, 0)
	placeholder.Content = "cũ"
	assert.True(t, s.PlaceStreamTarget(placeholder))
	got, _ := s.Node(placeholder.ID)
	assert.Equal(t, "", got.Content)
	assert.True(t, got.IsExpanded)

	assert.True(t, s.ResetStreamTarget(topic.ID))
	got, _ = s.Node(topic.ID)
	assert.Equal(t, "", got.Content)

	assert.False(t, s.ResetStreamTarget(uuid.New()))
	assert.False(t, s.IsDirty())
}

func ids(nodes []models.Node) []uuid.UUID {
	out := make([]uuid.UUID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func subtreeSize(nodes []models.Node, id uuid.UUID) int {
	size := 1
	for _, n := range nodes {
		if n.HasParent(id) {
			size += subtreeSize(nodes, n.ID)
		}
	}
	return size
}

func isAncestor(nodes []models.Node, ancestor, id uuid.UUID) bool {
	byID := make(map[uuid.UUID]models.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for cur, ok := byID[id]; ok && cur.ParentID != nil; cur, ok = byID[*cur.ParentID] {
		if *cur.ParentID == ancestor {
			return true
		}
	}
	return false
}

func assertIsTree(t *testing.T, s *Store) {
	t.Helper()
	nodes := s.Nodes()
	byID := make(map[uuid.UUID]models.Node, len(nodes))
	roots := 0
	for _, n := range nodes {
		byID[n.ID] = n
		if n.IsRoot() {
			roots++
		}
	}
	assert.Equal(t, 1, roots)
	for _, n := range nodes {
		steps := 0
		for cur := n; cur.ParentID != nil; steps++ {
			parent, ok := byID[*cur.ParentID]
			require.True(t, ok, "parent của %s không tồn tại", cur.ID)
			require.Less(t, steps, len(nodes), "phát hiện chu trình tại %s", n.ID)
			cur = parent
		}
	}
}

func assertUniqueOrder(t *testing.T, s *Store) {
	t.Helper()
	seen := map[uuid.UUID]map[int]bool{}
	for _, n := range s.Nodes() {
		if n.ParentID == nil {
			continue
		}
		if seen[*n.ParentID] == nil {
			seen[*n.ParentID] = map[int]bool{}
		}
		assert.False(t, seen[*n.ParentID][n.OrderIndex], "order_index %d trùng", n.OrderIndex)
		seen[*n.ParentID][n.OrderIndex] = true
	}
}
