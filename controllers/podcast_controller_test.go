package controllers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/podcast-studio/models"
	"github.com/vnkhanh/podcast-studio/workspace"
)

func TestCreatePodcastDefaults(t *testing.T) {
	h := newHarness(t)

	w := h.json(http.MethodPost, "/api/podcasts", `{"root_topic":"  金字塔之谜  "}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		Podcast models.Podcast `json:"podcast"`
		Root    models.Node    `json:"root"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "金字塔之谜", res.Podcast.Title)
	assert.Equal(t, models.StyleMonologue, res.Podcast.ScriptStyle)
	assert.Equal(t, models.StatusDraft, res.Podcast.Status)
	assert.Equal(t, h.userID, res.Podcast.UserID)
	assert.Equal(t, models.NodeRoot, res.Root.NodeType)
	assert.Equal(t, res.Podcast.ID, res.Root.PodcastID)
}

func TestCreatePodcastValidation(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPost, "/api/podcasts", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPost, "/api/podcasts", `{"root_topic":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		h.json(http.MethodPost, "/api/podcasts", `{"root_topic":"a","script_style":"rap"}`).Code)
}

func TestListAndGetOwnPodcasts(t *testing.T) {
	h := newHarness(t)
	p, root := h.store.seed(t, h.userID, "Lịch sử cà phê")
	h.store.seed(t, uuid.New(), "của người khác")

	w := h.json(http.MethodGet, "/api/podcasts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data  []models.Podcast `json:"data"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	w = h.json(http.MethodGet, "/api/podcasts/"+p.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view workspace.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, p.ID, view.Podcast.ID)
	require.Len(t, view.Nodes, 1)
	assert.Equal(t, []uuid.UUID{root.ID}, view.PathNodeIDs)

	assert.Equal(t, http.StatusNotFound, h.doAs(uuid.New(), http.MethodGet, "/api/podcasts/"+p.ID.String(), http.NoBody, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodGet, "/api/podcasts/không-phải-uuid", "").Code)
}

func TestUpdatePodcastWritesMetadata(t *testing.T) {
	h := newHarness(t)
	p, _ := h.store.seed(t, h.userID, "Cà phê")

	w := h.json(http.MethodPatch, "/api/podcasts/"+p.ID.String(), `{"title":"Cà phê Việt","script_style":"dialogue","co_host_name":"Lan"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, ok := h.store.podcast(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Cà phê Việt", got.Title)
	assert.Equal(t, models.StyleDialogue, got.ScriptStyle)
	assert.Equal(t, "Lan", got.CoHostName)
	assert.Equal(t, 1, h.store.metaSaves)

	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPatch, "/api/podcasts/"+p.ID.String(), `{"script_style":"rap"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPatch, "/api/podcasts/"+p.ID.String(), `{"title":" "}`).Code)
}

func TestDeletePodcastEvictsSessionAndRemovesFiles(t *testing.T) {
	h := newHarness(t)
	p, _ := h.store.seed(t, h.userID, "Cà phê")
	h.store.exports = append(h.store.exports, models.SavedPodcast{
		PodcastID: p.ID,
		FileURL:   "https://cdn.test/exports/ca-phe.md",
		AudioURL:  "https://cdn.test/audio/ca-phe.mp3",
	})

	require.Equal(t, http.StatusOK, h.json(http.MethodGet, "/api/podcasts/"+p.ID.String(), "").Code)
	require.Equal(t, 1, h.sessions.Len())

	assert.Equal(t, http.StatusNotFound,
		h.doAs(uuid.New(), http.MethodDelete, "/api/podcasts/"+p.ID.String(), http.NoBody, "").Code)
	assert.Equal(t, 1, h.sessions.Len())

	w := h.json(http.MethodDelete, "/api/podcasts/"+p.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, h.sessions.Len())
	_, ok := h.store.podcast(p.ID)
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{
		"https://cdn.test/exports/ca-phe.md",
		"https://cdn.test/audio/ca-phe.mp3",
	}, h.files.deleted)
}

func TestImportTextWithoutSummarizer(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("text", "Mục lục\nCà phê du nhập vào Việt Nam cuối thế kỷ 19.\nTrang 2\n"))
	require.NoError(t, mw.WriteField("title", "Hành trình cà phê"))
	require.NoError(t, mw.Close())

	w := h.do(http.MethodPost, "/api/podcasts/import", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		Podcast models.Podcast `json:"podcast"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "Hành trình cà phê", res.Podcast.Title)
	assert.Equal(t, "Cà phê du nhập vào Việt Nam cuối thế kỷ 19.", res.Podcast.RootTopic)
}

func TestImportRejectsUnsupportedFile(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "bang-tinh.xlsx")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("x"))
	require.NoError(t, mw.Close())

	w := h.do(http.MethodPost, "/api/podcasts/import", &body, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var empty bytes.Buffer
	mw = multipart.NewWriter(&empty)
	require.NoError(t, mw.Close())
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/podcasts/import", &empty, mw.FormDataContentType()).Code)
}
