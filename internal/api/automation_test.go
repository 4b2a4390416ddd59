package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"instaflow/internal/database"
	"instaflow/internal/models"
	"instaflow/internal/store"
	"instaflow/internal/tracking"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeDM struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeDM) SendDirectMessage(ctx context.Context, token, pageID, recipientID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, token+"|"+recipientID+"|"+text)
	return f.err
}

type apiFixture struct {
	store  *store.GormStore
	dm     *fakeDM
	router *gin.Engine
	user   models.User
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	st := store.New(db)

	user := models.User{
		Email:        "owner@example.com",
		Plan:         models.PlanPro,
		Integrations: []models.Integration{{InstagramID: "page-1", Token: "page-token"}},
	}
	require.NoError(t, db.Create(&user).Error)

	f := &apiFixture{store: st, dm: &fakeDM{}, router: gin.New(), user: user}
	group := f.router.Group("/api")
	NewAutomationHandler(st).Register(group)
	NewDashboardHandler(st, f.dm).Register(group)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) createAutomation(t *testing.T) uint {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/automations", gin.H{"name": "Price bot", "user_id": f.user.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func path(id uint, suffix string) string {
	return "/api/automations/" + strconv.FormatUint(uint64(id), 10) + suffix
}

const validFlow = `{
  "triggers": ["dm", "DM", "comment"],
  "keywords": ["price", " "],
  "nodes": [
    {"id": "t", "type": "trigger", "subType": "DM", "position": {"x": 10, "y": 20}},
    {"id": "c", "type": "condition", "subType": "is_follower"},
    {"id": "m", "type": "action", "subType": "MESSAGE", "config": {"message": "Our price is $10"}}
  ],
  "edges": [
    {"id": "e1", "source": "t", "target": "c"},
    {"source": "c", "target": "m", "sourceHandle": "yes"},
    {"source": "m", "target": "ghost"}
  ]
}`

func TestCreateListAndToggle(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAutomation(t)

	w := f.do(t, http.MethodGet, "/api/automations?user_id="+strconv.FormatUint(uint64(f.user.ID), 10), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Automation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.False(t, list[0].Active, "new automations start inactive")

	w = f.do(t, http.MethodPatch, path(id, "/active"), gin.H{"active": true})
	require.Equal(t, http.StatusOK, w.Code)
	a, err := f.store.GetAutomation(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, a.Active)

	w = f.do(t, http.MethodPatch, path(id, "/active"), gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPatch, path(id+99, "/active"), gin.H{"active": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/automations", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveFlow(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAutomation(t)

	w := f.do(t, http.MethodPut, path(id, "/flow"), validFlow)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, path(id, ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var a models.Automation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))

	triggers := []string{}
	for _, tr := range a.Triggers {
		triggers = append(triggers, tr.Type)
	}
	assert.ElementsMatch(t, []string{"DM", "COMMENT"}, triggers)
	assert.Equal(t, []string{"price"}, a.KeywordList())

	require.Len(t, a.FlowNodes, 3)
	byID := map[string]models.FlowNode{}
	for _, n := range a.FlowNodes {
		byID[n.NodeID] = n
	}
	assert.Equal(t, "IS_FOLLOWER", byID["c"].SubType)
	assert.Equal(t, float64(20), byID["t"].PositionY)
	assert.JSONEq(t, `{"message":"Our price is $10"}`, byID["m"].Config)
	require.Len(t, a.FlowEdges, 3, "dangling edges are stored")
}

func TestSaveFlowRejectsInvalidInput(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAutomation(t)

	cases := map[string]string{
		"duplicate node": `{"nodes":[{"id":"a","type":"action","subType":"MESSAGE"},{"id":"a","type":"action","subType":"MESSAGE"}]}`,
		"bad trigger":    `{"triggers":["STORY"]}`,
		"bad node type":  `{"nodes":[{"id":"a","type":"widget","subType":"MESSAGE"}]}`,
		"bad config":     `{"nodes":[{"id":"a","type":"action","subType":"MESSAGE","config":"hello"}]}`,
		"bad listener":   `{"listener":{"listener":"VOICE"}}`,
		"edge no target": `{"edges":[{"source":"a"}]}`,
		"not json":       `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := f.do(t, http.MethodPut, path(id, "/flow"), body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := f.do(t, http.MethodPut, path(id+99, "/flow"), validFlow)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveFlowListener(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAutomation(t)

	w := f.do(t, http.MethodPut, path(id, "/flow"), `{"triggers":["DM"],"listener":{"listener":"smartai","prompt":"You sell shoes."}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	a, err := f.store.GetAutomation(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a.Listener)
	assert.Equal(t, models.ListenerSmartAI, a.Listener.Listener)
	assert.Equal(t, "You sell shoes.", a.Listener.Prompt)
}

func TestDeleteNode(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAutomation(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, path(id, "/flow"), validFlow).Code)

	w := f.do(t, http.MethodDelete, path(id, "/nodes/c"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	nodes, edges, err := f.store.LoadFlow(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	require.Len(t, edges, 1)
	assert.Equal(t, "m", edges[0].SourceNodeID)

	w = f.do(t, http.MethodDelete, path(id, "/nodes/c"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveCarousel(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAutomation(t)

	valid := `{"name":"Spring","elements":[{"title":"Sneaker","buttons":[{"type":"web_url","title":"Buy","payload":"https://shop.example/buy"}]}]}`
	w := f.do(t, http.MethodPut, path(id, "/carousel"), valid)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tmpl, err := f.store.GetCarouselTemplate(context.Background(), id, nil)
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	require.Len(t, tmpl.Elements, 1)
	assert.Equal(t, models.ButtonWebURL, tmpl.Elements[0].Buttons[0].Type)

	invalid := `{"elements":[{"title":"Sneaker","buttons":[{"type":"web_url","title":"Buy","payload":"notaurl"}]}]}`
	w = f.do(t, http.MethodPut, path(id, "/carousel"), invalid)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, path(id, "/carousel"), `{"elements":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAnalytics(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAutomation(t)
	ctx := context.Background()

	require.NoError(t, f.store.IncrementResponse(ctx, id, tracking.ChannelDM))
	require.NoError(t, f.store.IncrementResponse(ctx, id, tracking.ChannelComment))
	require.NoError(t, f.store.IncrementResponse(ctx, id, tracking.ChannelDM))
	require.NoError(t, f.store.InsertAnalytics(ctx, tracking.Event{AutomationID: id, EventType: "MESSAGE", Channel: tracking.ChannelDM, Success: true}))

	w := f.do(t, http.MethodGet, path(id, "/analytics"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		DMCount      int64                   `json:"dm_count"`
		CommentCount int64                   `json:"comment_count"`
		Events       []models.AnalyticsEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.DMCount)
	assert.Equal(t, int64(1), resp.CommentCount)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "MESSAGE", resp.Events[0].EventType)
}

func TestDeleteAutomation(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAutomation(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, path(id, ""), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path(id, ""), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, path(id, ""), nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/automations/abc", nil).Code)
}
