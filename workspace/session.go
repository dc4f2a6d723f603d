// Package workspace ghép các thành phần của một phiên soạn podcast: cây trong
// bộ nhớ, luồng sinh nội dung, cắt tỉa nhánh, autosave và export.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vnkhanh/podcast-studio/autosave"
	"github.com/vnkhanh/podcast-studio/export"
	"github.com/vnkhanh/podcast-studio/layout"
	"github.com/vnkhanh/podcast-studio/metrics"
	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/prompt"
	"github.com/vnkhanh/podcast-studio/prune"
	"github.com/vnkhanh/podcast-studio/services"
	"github.com/vnkhanh/podcast-studio/stream"
	"github.com/vnkhanh/podcast-studio/tree"
)

const (
	EndingTitle = "Lời kết"
	MoreTitle   = "Tải thêm chủ đề"

	maxTitleRunes  = 255
	historyTimeout = 10 * time.Second
)

var (
	ErrNodeNotFound        = errors.New("không tìm thấy node")
	ErrInvalidNode         = errors.New("thao tác không áp dụng được cho loại node này")
	ErrRootImmutable       = errors.New("không thể xoá node gốc")
	ErrEmptyScript         = errors.New("nhánh đang kể chưa có nội dung")
	ErrNarrationDisabled   = errors.New("chưa cấu hình đọc audio")
	ErrPodcastNotLoaded    = errors.New("podcast chưa được tải")
	errMissingRootOnReload = errors.New("podcast không có node gốc")
)

// Repository là phần của tầng lưu trữ mà một phiên cần
type Repository interface {
	GetPodcast(ctx context.Context, id, userID uuid.UUID) (models.Podcast, error)
	ListNodes(ctx context.Context, podcastID uuid.UUID) ([]models.Node, error)
	SaveAutosave(ctx context.Context, p models.Podcast, nodes []models.Node, at time.Time) error
	DeleteNodes(ctx context.Context, podcastID uuid.UUID, ids []uuid.UUID) error
	RecordGeneration(ctx context.Context, h *models.GenerationHistory) error
	SaveExport(ctx context.Context, s *models.SavedPodcast) error
	UpdateExportAudio(ctx context.Context, id uuid.UUID, audioURL string, durationSec int) error
}

// Uploader đẩy file lên object storage và trả về URL công khai
type Uploader interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
}

// Narrator chuyển kịch bản thành audio MP3
type Narrator interface {
	Synthesize(ctx context.Context, text, voice string, rate float64) ([]byte, error)
}

type Options struct {
	RecentWindow int
	Debounce     time.Duration
	Interval     time.Duration
	Now          func() time.Time
}

// Deps gom các cộng tác viên bên ngoài; Uploader và Narrator có thể nil
type Deps struct {
	Repo      Repository
	Generator services.Generator
	Publisher Publisher
	Uploader  Uploader
	Narrator  Narrator
	Options   Options
}

// Session là một podcast đang mở: cây trong bộ nhớ là nguồn chuẩn, DB được
// đồng bộ qua autosave và lệnh xoá khi cắt tỉa.
type Session struct {
	podcastID uuid.UUID
	userID    uuid.UUID
	deps      Deps
	now       func() time.Time

	store  *tree.Store
	stream *stream.Controller
	pruner *prune.Coordinator
	saver  *autosave.Scheduler

	mu        sync.Mutex
	observers map[uuid.UUID]func(stream.Event)
	lastUsed  atomic.Int64
}

func newSession(podcastID, userID uuid.UUID, deps Deps) *Session {
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	if deps.Options.RecentWindow <= 0 {
		deps.Options.RecentWindow = prompt.DefaultRecentWindow
	}
	now := deps.Options.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		podcastID: podcastID,
		userID:    userID,
		deps:      deps,
		now:       now,
		store:     tree.NewStore(),
		observers: make(map[uuid.UUID]func(stream.Event)),
	}
	s.stream = stream.NewController(s.store, s.onStreamEvent)
	s.pruner = prune.NewCoordinator(s.store, deps.Repo, podcastID)
	s.saver = autosave.New(s.store, s.persist, autosave.Options{
		Debounce: deps.Options.Debounce,
		Interval: deps.Options.Interval,
		Hold:     s.stream.Busy,
		OnStatus: func(st autosave.Status) {
			s.publish(EventSaveStatus, st)
		},
	})
	s.store.OnDirty(s.saver.Notify)
	s.touch()
	return s
}

func (s *Session) touch() { s.lastUsed.Store(s.now().UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) PodcastID() uuid.UUID { return s.podcastID }
func (s *Session) UserID() uuid.UUID    { return s.userID }
func (s *Session) Store() *tree.Store   { return s.store }

// Load đọc podcast và toàn bộ node từ DB rồi bật autosave.
// Node mồ côi (do autosave và cắt tỉa chạy đua) bị loại và xoá ở DB.
func (s *Session) Load(ctx context.Context) error {
	p, err := s.deps.Repo.GetPodcast(ctx, s.podcastID, s.userID)
	if err != nil {
		return err
	}
	nodes, err := s.deps.Repo.ListNodes(ctx, s.podcastID)
	if err != nil {
		return fmt.Errorf("tải node: %w", err)
	}
	s.store.SetPodcast(p)
	dropped := s.store.SetNodes(nodes)
	s.pruner.Forget(dropped)

	if _, ok := s.store.RootNode(); !ok {
		if p.RootTopic == "" {
			return errMissingRootOnReload
		}
		log.Printf("workspace: podcast %s thiếu node gốc, tạo lại", s.podcastID)
		s.store.AddNodes([]models.Node{{
			ID:         uuid.New(),
			PodcastID:  s.podcastID,
			NodeType:   models.NodeRoot,
			Title:      clip(p.RootTopic, maxTitleRunes),
			IsExpanded: true,
		}})
	}
	s.saver.Start()
	return nil
}

// ===== Chủ đề =====

// ExpandTopics chọn node làm nhánh đang kể, xoá con cũ và sinh lứa chủ đề mới.
// Thành công thì thêm lời kết và nút "tải thêm" nếu chưa có.
func (s *Session) ExpandTopics(ctx context.Context, nodeID uuid.UUID, count int) ([]models.Node, error) {
	node, ok := s.store.Node(nodeID)
	if !ok {
		return nil, ErrNodeNotFound
	}
	if node.NodeType != models.NodeRoot && node.NodeType != models.NodeTopic {
		return nil, ErrInvalidNode
	}
	if count <= 0 {
		count = services.DefaultTopicCount
	}

	s.removed(s.pruner.CommitTo(nodeID))
	s.removed(s.pruner.ClearChildren(nodeID))
	s.store.AddToPath(nodeID)

	topics, err := s.generateTopics(ctx, node, count, nil)
	if err != nil {
		return nil, err
	}
	added := s.addTopics(node, topics)
	if len(added) == 0 {
		return nil, ErrNodeNotFound
	}
	extras := s.ensureAffordances(nodeID)
	expanded := true
	s.store.UpdateNode(nodeID, tree.NodePatch{IsExpanded: &expanded})

	s.publish(EventNodesAdded, append(append([]models.Node(nil), added...), extras...))
	return added, nil
}

// LoadMore sinh thêm chủ đề cho node (hoặc cho cha của nút "tải thêm"),
// tránh trùng tiêu đề đã có và không cắt tỉa gì
func (s *Session) LoadMore(ctx context.Context, nodeID uuid.UUID, count int) ([]models.Node, error) {
	node, ok := s.store.Node(nodeID)
	if !ok {
		return nil, ErrNodeNotFound
	}
	if node.NodeType == models.NodeMore && node.ParentID != nil {
		if node, ok = s.store.Node(*node.ParentID); !ok {
			return nil, ErrNodeNotFound
		}
	}
	if node.NodeType != models.NodeRoot && node.NodeType != models.NodeTopic {
		return nil, ErrInvalidNode
	}
	if count <= 0 {
		count = services.DefaultMoreCount
	}

	var existing []string
	for _, c := range s.store.GetChildNodes(node.ID) {
		if c.NodeType == models.NodeTopic {
			existing = append(existing, c.Title)
		}
	}
	topics, err := s.generateTopics(ctx, node, count, existing)
	if err != nil {
		return nil, err
	}
	added := s.addTopics(node, topics)
	if len(added) == 0 {
		return nil, ErrNodeNotFound
	}
	s.publish(EventNodesAdded, added)
	return added, nil
}

func (s *Session) generateTopics(ctx context.Context, node models.Node, count int, existing []string) ([]services.TopicSuggestion, error) {
	p, ok := s.store.Podcast()
	if !ok {
		return nil, ErrPodcastNotLoaded
	}
	req := services.TopicRequest{
		RootTopic:      p.RootTopic,
		PathNodes:      prompt.Compress(s.store.GetPathNodes(), s.deps.Options.RecentWindow),
		CurrentTopic:   node.Title,
		ExistingTitles: existing,
		Count:          count,
	}

	start := s.now()
	res, err := s.deps.Generator.GenerateTopics(ctx, req)
	elapsed := s.now().Sub(start)
	metrics.GenerationDuration.WithLabelValues(string(services.KindTopics)).Observe(elapsed.Seconds())
	if err != nil {
		s.generationFailed(node.ID, err)
		return nil, err
	}
	s.recordGeneration(ctx, models.GenerationHistory{
		NodeID:           node.ID,
		Kind:             string(services.KindTopics),
		Prompt:           res.Prompt,
		Response:         res.Raw,
		TokensUsed:       res.Tokens,
		GenerationTimeMs: elapsed.Milliseconds(),
	})
	return res.Topics, nil
}

// addTopics chèn chủ đề sau các anh em hiện có; tóm tắt được giữ ở Content
func (s *Session) addTopics(parent models.Node, topics []services.TopicSuggestion) []models.Node {
	if _, ok := s.store.Node(parent.ID); !ok {
		// node cha bị xoá trong lúc chờ dịch vụ
		return nil
	}
	next := s.store.NextOrderIndex(parent.ID)
	batch := make([]models.Node, 0, len(topics))
	for i, t := range topics {
		pid := parent.ID
		batch = append(batch, models.Node{
			ID:         uuid.New(),
			PodcastID:  s.podcastID,
			ParentID:   &pid,
			NodeType:   models.NodeTopic,
			Title:      clip(t.Title, maxTitleRunes),
			Content:    t.Summary,
			OrderIndex: next + i,
		})
	}
	s.store.AddNodes(batch)

	out := make([]models.Node, 0, len(batch))
	for _, n := range batch {
		if got, ok := s.store.Node(n.ID); ok {
			out = append(out, got)
		}
	}
	return out
}

func (s *Session) ensureAffordances(parentID uuid.UUID) []models.Node {
	var hasEnding, hasMore bool
	for _, c := range s.store.GetChildNodes(parentID) {
		switch c.NodeType {
		case models.NodeEnding:
			hasEnding = true
		case models.NodeMore:
			hasMore = true
		}
	}
	var batch []models.Node
	mk := func(typ models.NodeType, title string, order int) {
		pid := parentID
		batch = append(batch, models.Node{
			ID: uuid.New(), PodcastID: s.podcastID, ParentID: &pid,
			NodeType: typ, Title: title, OrderIndex: order,
		})
	}
	if !hasEnding {
		mk(models.NodeEnding, EndingTitle, tree.EndingOrderIndex)
	}
	if !hasMore {
		mk(models.NodeMore, MoreTitle, tree.MoreOrderIndex)
	}
	if len(batch) > 0 {
		s.store.AddNodes(batch)
	}
	return batch
}

// ===== Nội dung theo luồng =====

// GenerateContent chọn chủ đề làm nhánh đang kể rồi stream đoạn kịch bản vào
// một node content mới dưới nó. observe (có thể nil) nhận từng sự kiện của luồng.
func (s *Session) GenerateContent(ctx context.Context, topicID uuid.UUID, observe func(stream.Event)) (models.Node, error) {
	topic, ok := s.store.Node(topicID)
	if !ok {
		return models.Node{}, ErrNodeNotFound
	}
	if topic.NodeType != models.NodeTopic {
		return models.Node{}, ErrInvalidNode
	}
	if s.stream.Busy() {
		return models.Node{}, stream.ErrBusy
	}

	s.removed(s.pruner.CommitTo(topicID))
	s.store.AddToPath(topicID)
	// ngữ cảnh chụp trước khi node content được thêm vào path
	path := s.store.GetPathNodes()

	contentID := uuid.New()
	placeholder := models.Node{
		PodcastID:  s.podcastID,
		ParentID:   &topicID,
		NodeType:   models.NodeContent,
		Title:      topic.Title,
		OrderIndex: s.store.NextOrderIndex(topicID),
	}
	err := s.runStream(ctx, services.KindContent, topic, contentID, &placeholder, path, observe)
	n, _ := s.store.Node(contentID)
	return n, err
}

// GenerateEnding stream lời kết vào node ending có sẵn; không cắt tỉa.
// Thành công thì podcast chuyển sang trạng thái completed.
func (s *Session) GenerateEnding(ctx context.Context, endingID uuid.UUID, observe func(stream.Event)) (models.Node, error) {
	ending, ok := s.store.Node(endingID)
	if !ok {
		return models.Node{}, ErrNodeNotFound
	}
	if ending.NodeType != models.NodeEnding {
		return models.Node{}, ErrInvalidNode
	}
	path := s.store.GetPathNodes()
	if err := s.runStream(ctx, services.KindEnding, ending, endingID, nil, path, observe); err != nil {
		n, _ := s.store.Node(endingID)
		return n, err
	}
	done := models.StatusCompleted
	s.store.UpdatePodcast(tree.PodcastPatch{Status: &done})
	if p, ok := s.store.Podcast(); ok {
		s.publish(EventPodcastUpdated, p)
	}
	n, _ := s.store.Node(endingID)
	return n, nil
}

func (s *Session) runStream(ctx context.Context, kind services.GenerationKind, subject models.Node, targetID uuid.UUID,
	placeholder *models.Node, path []models.Node, observe func(stream.Event)) error {
	p, ok := s.store.Podcast()
	if !ok {
		return ErrPodcastNotLoaded
	}
	req := services.ContentRequest{
		Kind:         kind,
		RootTopic:    p.RootTopic,
		PathNodes:    prompt.Compress(path, s.deps.Options.RecentWindow),
		CurrentTopic: subject.Title,
		ScriptStyle:  p.ScriptStyle,
		HostName:     p.HostName,
		CoHostName:   p.CoHostName,
	}

	if observe != nil {
		if !s.observe(targetID, observe) {
			return stream.ErrBusy
		}
		defer s.unobserve(targetID)
	}

	start := s.now()
	res, err := s.stream.Run(ctx, stream.Request{
		TargetID:    targetID,
		Placeholder: placeholder,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			s.store.AddToPath(targetID)
			return s.deps.Generator.StreamContent(ctx, req)
		},
	})
	elapsed := s.now().Sub(start)
	metrics.GenerationDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())

	if errors.Is(err, stream.ErrBusy) {
		return err
	}
	if placeholder != nil && !errors.Is(err, stream.ErrTargetMissing) {
		if n, ok := s.store.Node(targetID); ok {
			s.publish(EventNodesAdded, []models.Node{n})
		}
	}
	if err != nil {
		s.generationFailed(targetID, err)
		return err
	}

	userPrompt := prompt.ContentPrompt(subject.Title)
	if kind == services.KindEnding {
		userPrompt = prompt.EndingPrompt()
	}
	s.recordGeneration(ctx, models.GenerationHistory{
		NodeID:           targetID,
		Kind:             string(kind),
		Prompt:           userPrompt,
		Response:         res.Text,
		GenerationTimeMs: elapsed.Milliseconds(),
	})
	return nil
}

func (s *Session) observe(id uuid.UUID, fn func(stream.Event)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.observers[id]; taken {
		return false
	}
	s.observers[id] = fn
	return true
}

func (s *Session) unobserve(id uuid.UUID) {
	s.mu.Lock()
	delete(s.observers, id)
	s.mu.Unlock()
}

func (s *Session) onStreamEvent(e stream.Event) {
	switch e.Kind {
	case stream.EventFragment:
		s.publish(EventStreamFragment, fragmentPayload{NodeID: e.TargetID, Text: e.Text})
	case stream.EventState:
		payload := streamStatePayload{NodeID: e.TargetID, State: string(e.State)}
		if e.Err != nil {
			payload.Error = e.Err.Error()
		}
		s.publish(EventStreamState, payload)
	}
	s.mu.Lock()
	fn := s.observers[e.TargetID]
	s.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

// ===== Chỉnh sửa cây =====

// Commit chọn node làm nhánh đang kể: mọi nhánh anh em bị xoá
func (s *Session) Commit(nodeID uuid.UUID) ([]uuid.UUID, error) {
	if _, ok := s.store.Node(nodeID); !ok {
		return nil, ErrNodeNotFound
	}
	removed := s.pruner.CommitTo(nodeID)
	s.removed(removed)
	s.store.AddToPath(nodeID)
	return removed, nil
}

func (s *Session) DeleteNode(nodeID uuid.UUID) ([]uuid.UUID, error) {
	n, ok := s.store.Node(nodeID)
	if !ok {
		return nil, ErrNodeNotFound
	}
	if n.IsRoot() {
		return nil, ErrRootImmutable
	}
	removed := s.pruner.DeleteSubtree(nodeID)
	s.removed(removed)
	return removed, nil
}

func (s *Session) UpdateNode(nodeID uuid.UUID, patch tree.NodePatch) (models.Node, error) {
	if _, ok := s.store.Node(nodeID); !ok {
		return models.Node{}, ErrNodeNotFound
	}
	if patch.Title != nil {
		t := clip(*patch.Title, maxTitleRunes)
		patch.Title = &t
	}
	s.store.UpdateNode(nodeID, patch)
	n, _ := s.store.Node(nodeID)
	s.publish(EventNodeUpdated, n)
	return n, nil
}

func (s *Session) UpdatePodcast(patch tree.PodcastPatch) (models.Podcast, error) {
	if patch.ScriptStyle != nil && !patch.ScriptStyle.Valid() {
		return models.Podcast{}, fmt.Errorf("script_style không hợp lệ: %q", *patch.ScriptStyle)
	}
	if patch.Title != nil {
		t := clip(*patch.Title, maxTitleRunes)
		patch.Title = &t
	}
	s.store.UpdatePodcast(patch)
	p, ok := s.store.Podcast()
	if !ok {
		return p, ErrPodcastNotLoaded
	}
	s.publish(EventPodcastUpdated, p)
	return p, nil
}

func (s *Session) removed(ids []uuid.UUID) {
	if len(ids) > 0 {
		s.publish(EventNodesRemoved, ids)
	}
}

// ===== Đọc =====

type View struct {
	Podcast     models.Podcast  `json:"podcast"`
	Nodes       []models.Node   `json:"nodes"`
	PathNodeIDs []uuid.UUID     `json:"path_node_ids"`
	Bounds      layout.Bounds   `json:"bounds"`
	Streaming   *uuid.UUID      `json:"streaming_node_id,omitempty"`
	StreamState stream.State    `json:"stream_state"`
	SaveStatus  autosave.Status `json:"save_status"`
}

// View trả về trạng thái đầy đủ của phiên, toạ độ node lấy từ layout mới nhất
func (s *Session) View() View {
	p, _ := s.store.Podcast()
	nodes, positions := s.layoutNodes(s.store.Nodes())
	v := View{
		Podcast:     p,
		Nodes:       nodes,
		PathNodeIDs: s.store.PathIDs(),
		Bounds:      layout.ComputeBounds(positions),
		StreamState: s.stream.State(),
		SaveStatus:  s.saver.Status(),
	}
	if id, ok := s.stream.Streaming(); ok {
		v.Streaming = &id
	}
	return v
}

func (s *Session) Layout() ([]layout.Position, layout.Bounds) {
	positions := layout.Compute(s.store.Nodes())
	return positions, layout.ComputeBounds(positions)
}

func (s *Session) layoutNodes(nodes []models.Node) ([]models.Node, []layout.Position) {
	positions := layout.Compute(nodes)
	idx := layout.Index(positions)
	out := make([]models.Node, len(nodes))
	for i, n := range nodes {
		if pos, ok := idx[n.ID]; ok {
			n.PositionX, n.PositionY = pos.X, pos.Y
		}
		out[i] = n
	}
	return out, positions
}

// ===== Autosave =====

type canvasState struct {
	Bounds      layout.Bounds `json:"bounds"`
	PathNodeIDs []uuid.UUID   `json:"path_node_ids"`
	NodeCount   int           `json:"node_count"`
}

func (s *Session) SaveNow(ctx context.Context) error {
	err := s.saver.SaveNow(ctx)
	if errors.Is(err, autosave.ErrDeferred) {
		return nil
	}
	return err
}

func (s *Session) SaveStatus() autosave.Status { return s.saver.Status() }

func (s *Session) persist(ctx context.Context, snap tree.Snapshot) error {
	if snap.Podcast == nil {
		return ErrPodcastNotLoaded
	}
	nodes, positions := s.layoutNodes(snap.Nodes)
	canvas, err := json.Marshal(canvasState{
		Bounds:      layout.ComputeBounds(positions),
		PathNodeIDs: s.store.PathIDs(),
		NodeCount:   len(nodes),
	})
	if err != nil {
		return err
	}
	p := *snap.Podcast
	p.CanvasState = datatypes.JSON(canvas)
	if err := s.deps.Repo.SaveAutosave(ctx, p, nodes, s.now()); err != nil {
		return fmt.Errorf("lưu podcast %s: %w", s.podcastID, err)
	}

	// node bị cắt tỉa trong lúc lưu có thể vừa được upsert lại, xoá lần nữa
	var stale []uuid.UUID
	for _, n := range nodes {
		if _, ok := s.store.Node(n.ID); !ok {
			stale = append(stale, n.ID)
		}
	}
	s.pruner.Forget(stale)
	return nil
}

// ===== Export & audio =====

// exportNodes là nhánh đang kể; nếu chưa kể gì thì lấy cả cây theo thứ tự layout
func (s *Session) exportNodes() []models.Node {
	path := s.store.GetPathNodes()
	if len(path) > 1 {
		return path
	}
	nodes := s.store.Nodes()
	byID := make(map[uuid.UUID]models.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	out := make([]models.Node, 0, len(nodes))
	for _, pos := range layout.Compute(nodes) {
		n := byID[pos.ID]
		if n.NodeType == models.NodeMore {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *Session) Export(ctx context.Context) (models.SavedPodcast, error) {
	saved, _, err := s.export(ctx)
	return saved, err
}

func (s *Session) export(ctx context.Context) (models.SavedPodcast, []models.Node, error) {
	p, ok := s.store.Podcast()
	if !ok {
		return models.SavedPodcast{}, nil, ErrPodcastNotLoaded
	}
	nodes := s.exportNodes()
	now := s.now()
	doc := export.Markdown(p.Title, nodes, now)

	ids := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	rawIDs, err := json.Marshal(ids)
	if err != nil {
		return models.SavedPodcast{}, nil, err
	}
	saved := models.SavedPodcast{
		PodcastID:                s.podcastID,
		UserID:                   s.userID,
		MarkdownContent:          doc.Markdown,
		PathNodeIDs:              datatypes.JSON(rawIDs),
		CharCount:                doc.CharCount,
		EstimatedDurationMinutes: doc.EstimatedMinutes,
	}
	if s.deps.Uploader != nil {
		url, err := s.deps.Uploader.Upload(ctx, "exports/"+export.FileName(p.Title, "md", now),
			[]byte(doc.Markdown), "text/markdown; charset=utf-8")
		if err != nil {
			// bản export vẫn được lưu trong DB
			log.Printf("workspace: upload export podcast %s thất bại: %v", s.podcastID, err)
		} else {
			saved.FileURL = url
		}
	}
	if err := s.deps.Repo.SaveExport(ctx, &saved); err != nil {
		return saved, nil, fmt.Errorf("lưu bản export: %w", err)
	}
	return saved, nodes, nil
}

type NarrateOptions struct {
	Voice string
	Rate  float64
}

// Narrate export nhánh đang kể, đọc thành MP3 rồi gắn audio vào bản export
func (s *Session) Narrate(ctx context.Context, opts NarrateOptions) (models.SavedPodcast, error) {
	if s.deps.Narrator == nil || s.deps.Uploader == nil {
		return models.SavedPodcast{}, ErrNarrationDisabled
	}
	saved, nodes, err := s.export(ctx)
	if err != nil {
		return saved, err
	}
	script := export.Script(nodes)
	if utf8.RuneCountInString(script) == 0 {
		return saved, ErrEmptyScript
	}

	audio, err := s.deps.Narrator.Synthesize(ctx, script, opts.Voice, opts.Rate)
	if err != nil {
		return saved, fmt.Errorf("đọc audio: %w", err)
	}
	seconds, err := services.MP3DurationFromBytes(audio)
	if err != nil {
		log.Printf("workspace: không đo được thời lượng audio: %v", err)
	}
	p, _ := s.store.Podcast()
	url, err := s.deps.Uploader.Upload(ctx, "audio/"+export.FileName(p.Title, "mp3", s.now()), audio, "audio/mpeg")
	if err != nil {
		return saved, fmt.Errorf("upload audio: %w", err)
	}
	duration := int(math.Round(seconds))
	if err := s.deps.Repo.UpdateExportAudio(ctx, saved.ID, url, duration); err != nil {
		return saved, fmt.Errorf("cập nhật audio: %w", err)
	}
	saved.AudioURL = url
	saved.AudioDurationSec = duration
	return saved, nil
}

// ===== Vòng đời =====

// Close chờ stream đang chạy kết thúc (trong giới hạn ctx), lưu lần cuối và chờ các lệnh xoá ở DB
func (s *Session) Close(ctx context.Context) error {
	err := s.saver.Stop(ctx)
	s.pruner.Wait()
	return err
}

// discard đóng phiên mà không lưu (podcast đã bị xoá)
func (s *Session) discard() {
	s.saver.Discard()
	s.pruner.Wait()
}

// ===== helpers =====

func (s *Session) publish(typ string, data interface{}) {
	s.deps.Publisher.Publish(s.podcastID, Event{Type: typ, Data: data})
}

func (s *Session) generationFailed(nodeID uuid.UUID, err error) {
	kind := "unknown"
	if ge, ok := services.IsGenerationError(err); ok {
		kind = string(ge.Kind)
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = "cancelled"
	} else {
		var fe *stream.FrameError
		if errors.As(err, &fe) {
			kind = string(services.ErrService)
		}
	}
	log.Printf("workspace: sinh nội dung cho node %s thất bại: %v", nodeID, err)
	s.publish(EventGenerationError, generationErrorPayload{NodeID: nodeID, Kind: kind, Error: err.Error()})
}

// recordGeneration ghi lịch sử, lỗi chỉ được log
func (s *Session) recordGeneration(ctx context.Context, h models.GenerationHistory) {
	h.PodcastID = s.podcastID
	h.Model = s.deps.Generator.Model()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := s.deps.Repo.RecordGeneration(ctx, &h); err != nil {
		log.Printf("workspace: ghi lịch sử sinh nội dung thất bại: %v", err)
	}
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
