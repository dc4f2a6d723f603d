package workspace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/services"
	"github.com/vnkhanh/podcast-studio/stream"
	"github.com/vnkhanh/podcast-studio/tree"
)

var (
	testDay     = time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)
	errNotFound = errors.New("not found")
)

// ===== repo giả =====

type fakeRepo struct {
	mu        sync.Mutex
	podcast   models.Podcast
	nodes     map[uuid.UUID]models.Node
	saves     int
	histories []models.GenerationHistory
	exports   []models.SavedPodcast
	audio     map[uuid.UUID]string
	saveHook  func()
	saveErr   error
	listHook  func()
}

func newFakeRepo(p models.Podcast, nodes ...models.Node) *fakeRepo {
	r := &fakeRepo{podcast: p, nodes: make(map[uuid.UUID]models.Node), audio: make(map[uuid.UUID]string)}
	for _, n := range nodes {
		r.nodes[n.ID] = n
	}
	return r
}

func (r *fakeRepo) GetPodcast(_ context.Context, id, userID uuid.UUID) (models.Podcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != r.podcast.ID || userID != r.podcast.UserID {
		return models.Podcast{}, errNotFound
	}
	return r.podcast, nil
}

func (r *fakeRepo) ListNodes(_ context.Context, podcastID uuid.UUID) ([]models.Node, error) {
	if r.listHook != nil {
		r.listHook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Node
	for _, n := range r.nodes {
		if n.PodcastID == podcastID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveAutosave(_ context.Context, p models.Podcast, nodes []models.Node, at time.Time) error {
	if r.saveHook != nil {
		r.saveHook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	p.LastAutosaveAt = &at
	r.podcast = p
	for _, n := range nodes {
		r.nodes[n.ID] = n
	}
	return nil
}

func (r *fakeRepo) DeleteNodes(_ context.Context, _ uuid.UUID, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.nodes, id)
	}
	return nil
}

func (r *fakeRepo) RecordGeneration(_ context.Context, h *models.GenerationHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories = append(r.histories, *h)
	return nil
}

func (r *fakeRepo) SaveExport(_ context.Context, s *models.SavedPodcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uuid.New()
	r.exports = append(r.exports, *s)
	return nil
}

func (r *fakeRepo) UpdateExportAudio(_ context.Context, id uuid.UUID, audioURL string, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[id] = audioURL
	return nil
}

func (r *fakeRepo) has(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.nodes[id]
	return ok
}

func (r *fakeRepo) node(id uuid.UUID) models.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nodes[id]
}

// ===== generator giả =====

type fakeGen struct {
	mu          sync.Mutex
	topicReqs   []services.TopicRequest
	contentReqs []services.ContentRequest
	topics      func(req services.TopicRequest) (services.TopicResult, error)
	stream      func(ctx context.Context, req services.ContentRequest) (io.ReadCloser, error)
}

func (g *fakeGen) Model() string { return "fake-model" }

func (g *fakeGen) GenerateTopics(_ context.Context, req services.TopicRequest) (services.TopicResult, error) {
	g.mu.Lock()
	g.topicReqs = append(g.topicReqs, req)
	g.mu.Unlock()
	return g.topics(req)
}

func (g *fakeGen) StreamContent(ctx context.Context, req services.ContentRequest) (io.ReadCloser, error) {
	g.mu.Lock()
	g.contentReqs = append(g.contentReqs, req)
	g.mu.Unlock()
	return g.stream(ctx, req)
}

func (g *fakeGen) lastTopicReq() services.TopicRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.topicReqs[len(g.topicReqs)-1]
}

func (g *fakeGen) lastContentReq() services.ContentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contentReqs[len(g.contentReqs)-1]
}

func topicsOf(titles ...string) func(services.TopicRequest) (services.TopicResult, error) {
	return func(services.TopicRequest) (services.TopicResult, error) {
		res := services.TopicResult{Prompt: "p", Raw: "[]"}
		for _, t := range titles {
			res.Topics = append(res.Topics, services.TopicSuggestion{Title: t, Summary: "Tóm tắt " + t})
		}
		return res, nil
	}
}

func sse(frames ...stream.Frame) io.ReadCloser {
	var b bytes.Buffer
	for _, f := range frames {
		_ = stream.WriteFrame(&b, f)
	}
	return io.NopCloser(&b)
}

func streamOf(frames ...stream.Frame) func(context.Context, services.ContentRequest) (io.ReadCloser, error) {
	return func(context.Context, services.ContentRequest) (io.ReadCloser, error) {
		return sse(frames...), nil
	}
}

// ===== publisher / uploader / narrator giả =====

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *fakePublisher) Publish(_ uuid.UUID, evt Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *fakePublisher) ofType(typ string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fakeUploader struct {
	mu    sync.Mutex
	paths []string
}

func (u *fakeUploader) Upload(_ context.Context, objectPath string, _ []byte, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, objectPath)
	return "https://cdn.test/" + objectPath, nil
}

type fakeNarrator struct {
	text string
}

func (n *fakeNarrator) Synthesize(_ context.Context, text, _ string, _ float64) ([]byte, error) {
	n.text = text
	return []byte("audio"), nil
}

// ===== fixture =====

type fixture struct {
	s    *Session
	repo *fakeRepo
	gen  *fakeGen
	pub  *fakePublisher
	root models.Node
}

func newFixture(t *testing.T, rootTopic string, mutate ...func(*Deps)) *fixture {
	t.Helper()
	p := models.Podcast{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Title:       rootTopic,
		RootTopic:   rootTopic,
		ScriptStyle: models.StyleMonologue,
		Status:      models.StatusDraft,
	}
	root := models.Node{
		ID: uuid.New(), PodcastID: p.ID, NodeType: models.NodeRoot,
		Title: rootTopic, IsExpanded: true, CreatedAt: testDay,
	}
	f := &fixture{
		repo: newFakeRepo(p, root),
		gen:  &fakeGen{},
		pub:  &fakePublisher{},
		root: root,
	}
	deps := Deps{
		Repo:      f.repo,
		Generator: f.gen,
		Publisher: f.pub,
		Options: Options{
			Debounce: time.Hour,
			Interval: time.Hour,
			Now:      func() time.Time { return testDay },
		},
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	f.s = newSession(p.ID, p.UserID, deps)
	require.NoError(t, f.s.Load(context.Background()))
	t.Cleanup(f.s.discard)
	return f
}

// topicChildren trả về các con kiểu topic của node
func (f *fixture) topicChildren(id uuid.UUID) []models.Node {
	var out []models.Node
	for _, c := range f.s.store.GetChildNodes(id) {
		if c.NodeType == models.NodeTopic {
			out = append(out, c)
		}
	}
	return out
}

func (f *fixture) childOfType(id uuid.UUID, typ models.NodeType) (models.Node, bool) {
	for _, c := range f.s.store.GetChildNodes(id) {
		if c.NodeType == typ {
			return c, true
		}
	}
	return models.Node{}, false
}

func nodeTitle(title string) tree.NodePatch {
	return tree.NodePatch{Title: &title}
}
