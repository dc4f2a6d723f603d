package controllers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/repository"
	"github.com/vnkhanh/podcast-studio/services"
	"github.com/vnkhanh/podcast-studio/stream"
	"github.com/vnkhanh/podcast-studio/workspace"
)

// memStore giả lập repository trong bộ nhớ cho mọi controller
type memStore struct {
	mu        sync.Mutex
	podcasts  map[uuid.UUID]models.Podcast
	nodes     map[uuid.UUID]models.Node
	exports   []models.SavedPodcast
	users     map[string]models.User
	histories int
	metaSaves int
}

func newMemStore() *memStore {
	return &memStore{
		podcasts: make(map[uuid.UUID]models.Podcast),
		nodes:    make(map[uuid.UUID]models.Node),
		users:    make(map[string]models.User),
	}
}

func (m *memStore) CreatePodcast(_ context.Context, p *models.Podcast) (models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	root := models.Node{ID: uuid.New(), PodcastID: p.ID, NodeType: models.NodeRoot, Title: p.RootTopic, IsExpanded: true}
	m.podcasts[p.ID] = *p
	m.nodes[root.ID] = root
	return root, nil
}

func (m *memStore) GetPodcast(_ context.Context, id, userID uuid.UUID) (models.Podcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.podcasts[id]
	if !ok || p.UserID != userID {
		return models.Podcast{}, repository.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListPodcasts(_ context.Context, userID uuid.UUID) ([]models.Podcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Podcast
	for _, p := range m.podcasts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) DeletePodcast(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.podcasts[id]
	if !ok || p.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.podcasts, id)
	for nid, n := range m.nodes {
		if n.PodcastID == id {
			delete(m.nodes, nid)
		}
	}
	return nil
}

func (m *memStore) UpdatePodcastMeta(_ context.Context, p models.Podcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metaSaves++
	m.podcasts[p.ID] = p
	return nil
}

func (m *memStore) ListExports(_ context.Context, podcastID uuid.UUID) ([]models.SavedPodcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SavedPodcast
	for _, e := range m.exports {
		if e.PodcastID == podcastID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListNodes(_ context.Context, podcastID uuid.UUID) ([]models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Node
	for _, n := range m.nodes {
		if n.PodcastID == podcastID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) SaveAutosave(_ context.Context, p models.Podcast, nodes []models.Node, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.podcasts[p.ID] = p
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}
	return nil
}

func (m *memStore) DeleteNodes(_ context.Context, _ uuid.UUID, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.nodes, id)
	}
	return nil
}

func (m *memStore) RecordGeneration(context.Context, *models.GenerationHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories++
	return nil
}

func (m *memStore) SaveExport(_ context.Context, s *models.SavedPodcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	m.exports = append(m.exports, *s)
	return nil
}

func (m *memStore) UpdateExportAudio(context.Context, uuid.UUID, string, int) error { return nil }

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.users[u.Email] = *u
	return nil
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return u, repository.ErrNotFound
	}
	return u, nil
}

func (m *memStore) FindUserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (m *memStore) UpdatePassword(_ context.Context, id uuid.UUID, hashed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, u := range m.users {
		if u.ID == id {
			u.Password = hashed
			m.users[email] = u
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memStore) podcast(id uuid.UUID) (models.Podcast, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.podcasts[id]
	return p, ok
}

// seed tạo podcast có sẵn node gốc cho user
func (m *memStore) seed(t *testing.T, userID uuid.UUID, rootTopic string) (models.Podcast, models.Node) {
	t.Helper()
	p := models.Podcast{UserID: userID, Title: rootTopic, RootTopic: rootTopic, ScriptStyle: models.StyleMonologue, Status: models.StatusDraft}
	root, err := m.CreatePodcast(context.Background(), &p)
	require.NoError(t, err)
	return p, root
}

// ===== generator giả =====

type fakeGen struct {
	topics []string
	frames []stream.Frame
}

func (g *fakeGen) Model() string { return "fake-model" }

func (g *fakeGen) GenerateTopics(_ context.Context, req services.TopicRequest) (services.TopicResult, error) {
	res := services.TopicResult{Prompt: "p", Raw: "[]"}
	for i, t := range g.topics {
		if i == req.Count {
			break
		}
		res.Topics = append(res.Topics, services.TopicSuggestion{Title: t, Summary: "Tóm tắt " + t})
	}
	return res, nil
}

func (g *fakeGen) StreamContent(context.Context, services.ContentRequest) (io.ReadCloser, error) {
	var b bytes.Buffer
	for _, f := range g.frames {
		_ = stream.WriteFrame(&b, f)
	}
	return io.NopCloser(&b), nil
}

type fakeFiles struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeFiles) Delete(_ context.Context, url string) error {
	if url == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type fakeNarrator struct{}

func (fakeNarrator) Synthesize(_ context.Context, text, _ string, _ float64) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

// ===== router =====

type harness struct {
	store    *memStore
	gen      *fakeGen
	files    *fakeFiles
	sessions *workspace.Manager
	router   *gin.Engine
	userID   uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{
		store:  newMemStore(),
		gen:    &fakeGen{},
		files:  &fakeFiles{},
		userID: uuid.New(),
	}
	h.sessions = workspace.NewManager(workspace.Deps{
		Repo:      h.store,
		Generator: h.gen,
		Options:   workspace.Options{Debounce: time.Hour, Interval: time.Hour},
	})
	t.Cleanup(func() { _ = h.sessions.Shutdown(context.Background()) })

	podcasts := NewPodcastController(h.store, h.sessions, h.files, nil)
	wsCtl := NewWorkspaceController(h.sessions)

	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-User"))
		c.Next()
	})
	api.GET("/podcasts", podcasts.List)
	api.POST("/podcasts", podcasts.Create)
	api.POST("/podcasts/import", podcasts.Import)
	api.GET("/podcasts/:id", podcasts.Get)
	api.PATCH("/podcasts/:id", podcasts.Update)
	api.DELETE("/podcasts/:id", podcasts.Delete)
	api.GET("/podcasts/:id/layout", wsCtl.Layout)
	api.POST("/podcasts/:id/nodes/:nodeId/expand", wsCtl.Expand)
	api.POST("/podcasts/:id/nodes/:nodeId/more", wsCtl.LoadMore)
	api.POST("/podcasts/:id/nodes/:nodeId/content", wsCtl.Content)
	api.POST("/podcasts/:id/nodes/:nodeId/ending", wsCtl.Ending)
	api.POST("/podcasts/:id/nodes/:nodeId/commit", wsCtl.Commit)
	api.PATCH("/podcasts/:id/nodes/:nodeId", wsCtl.UpdateNode)
	api.DELETE("/podcasts/:id/nodes/:nodeId", wsCtl.DeleteNode)
	api.POST("/podcasts/:id/autosave", wsCtl.Autosave)
	api.POST("/podcasts/:id/export", wsCtl.Export)
	api.POST("/podcasts/:id/narrate", wsCtl.Narrate)
	h.router = r
	return h
}

// do gửi request với user mặc định của harness
func (h *harness) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	return h.doAs(h.userID, method, path, body, contentType)
}

func (h *harness) doAs(user uuid.UUID, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-User", user.String())
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) json(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	return h.do(method, path, r, "application/json")
}
