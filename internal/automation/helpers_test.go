package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"instaflow/internal/ai"
	"instaflow/internal/database"
	"instaflow/internal/instagram"
	"instaflow/internal/models"
	"instaflow/internal/store"
	"instaflow/internal/tracking"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testPage  = "page-1"
	testToken = "page-token"
)

// --- messenger fake ---

type sentCall struct {
	Method    string
	Recipient string
	Text      string
	Elements  []instagram.GenericElement
	Action    instagram.SenderAction
}

type fakeMessenger struct {
	mu    sync.Mutex
	calls []sentCall

	follower    bool
	followerErr error
	hashtags    []string
	hashtagErr  error
	sendErr     error
	carouselErr error
	followerN   int
	panicOnSend bool
}

func (f *fakeMessenger) record(c sentCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.sendErr
}

func (f *fakeMessenger) Calls(method string) []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCall
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeMessenger) SendDirectMessage(ctx context.Context, token, pageID, recipientID, text string) error {
	if f.panicOnSend {
		panic("boom")
	}
	return f.record(sentCall{Method: "dm", Recipient: recipientID, Text: text})
}

func (f *fakeMessenger) SendPrivateReply(ctx context.Context, token, pageID, commentID, text string) error {
	return f.record(sentCall{Method: "private_reply", Recipient: commentID, Text: text})
}

func (f *fakeMessenger) ReplyToComment(ctx context.Context, token, commentID, text string) error {
	return f.record(sentCall{Method: "comment_reply", Recipient: commentID, Text: text})
}

func (f *fakeMessenger) SendCarousel(ctx context.Context, token, pageID, recipientID string, elements []instagram.GenericElement) error {
	if err := f.record(sentCall{Method: "carousel", Recipient: recipientID, Elements: elements}); err != nil {
		return err
	}
	return f.carouselErr
}

func (f *fakeMessenger) SendButtonTemplate(ctx context.Context, token, pageID, recipientID, text string, buttons []instagram.Button) error {
	return f.record(sentCall{Method: "button_template", Recipient: recipientID, Text: text})
}

func (f *fakeMessenger) SendProductTemplate(ctx context.Context, token, pageID, recipientID string, productIDs []string) error {
	return f.record(sentCall{Method: "product_template", Recipient: recipientID})
}

func (f *fakeMessenger) SendQuickReplies(ctx context.Context, token, pageID, recipientID, text string, replies []instagram.QuickReply) error {
	return f.record(sentCall{Method: "quick_replies", Recipient: recipientID, Text: text})
}

func (f *fakeMessenger) SetIceBreakers(ctx context.Context, token string, items []instagram.IceBreaker) error {
	return f.record(sentCall{Method: "ice_breakers"})
}

func (f *fakeMessenger) SetPersistentMenu(ctx context.Context, token string, items []instagram.MenuItem) error {
	return f.record(sentCall{Method: "persistent_menu"})
}

func (f *fakeMessenger) SendSenderAction(ctx context.Context, token, pageID, recipientID string, action instagram.SenderAction) error {
	return f.record(sentCall{Method: "sender_action", Recipient: recipientID, Action: action})
}

func (f *fakeMessenger) IsFollower(ctx context.Context, token, pageID, senderID string) (bool, error) {
	f.mu.Lock()
	f.followerN++
	f.mu.Unlock()
	return f.follower, f.followerErr
}

func (f *fakeMessenger) GetMediaHashtags(ctx context.Context, token, mediaID string) ([]string, error) {
	return f.hashtags, f.hashtagErr
}

// --- AI provider mock ---

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) GenerateReply(ctx context.Context, req ai.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// --- tracking recorder ---

type recordingTracker struct {
	mu     sync.Mutex
	events []tracking.Event
}

func (r *recordingTracker) Record(ev tracking.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingTracker) Events() []tracking.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tracking.Event(nil), r.events...)
}

// --- limiter stub ---

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

// --- notifier stub ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) BroadcastEvent(eventType string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

// --- store fixtures ---

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return store.New(db)
}

func seedOwner(t *testing.T, st *store.GormStore, plan string) models.User {
	t.Helper()
	u := models.User{
		Email:        uuid.NewString() + "@example.com",
		Plan:         plan,
		Integrations: []models.Integration{{Name: "INSTAGRAM", InstagramID: testPage, Token: testToken}},
	}
	require.NoError(t, st.DB().Create(&u).Error)
	return u
}

type automationSeed struct {
	Active   bool
	Triggers []string
	Keywords []string
	Listener *models.Listener
	Nodes    []models.FlowNode
	Edges    []models.FlowEdge
}

func seedAutomation(t *testing.T, st *store.GormStore, owner models.User, seed automationSeed) models.Automation {
	t.Helper()
	ctx := context.Background()
	a := models.Automation{Name: "test", UserID: owner.ID}
	require.NoError(t, st.CreateAutomation(ctx, &a))
	require.NoError(t, st.SaveFlow(ctx, a.ID, store.FlowSnapshot{
		Triggers: seed.Triggers,
		Keywords: seed.Keywords,
		Listener: seed.Listener,
		Nodes:    seed.Nodes,
		Edges:    seed.Edges,
	}))
	if seed.Active {
		require.NoError(t, st.SetActive(ctx, a.ID, true))
	}
	a.Active = seed.Active
	return a
}

func node(id, typ, subType string, cfg interface{}) models.FlowNode {
	raw := ""
	if cfg != nil {
		b, _ := json.Marshal(cfg)
		raw = string(b)
	}
	return models.FlowNode{NodeID: id, Type: typ, SubType: subType, Config: raw}
}

func edge(source, target, handle string) models.FlowEdge {
	return models.FlowEdge{EdgeID: source + "->" + target, SourceNodeID: source, TargetNodeID: target, SourceHandle: handle}
}

type engineFixture struct {
	store     *store.GormStore
	messenger *fakeMessenger
	primary   *mockProvider
	fallback  *mockProvider
	tracker   *recordingTracker
	notifier  *recordingNotifier
	engine    *Engine
}

func newEngineFixture(t *testing.T, branchMode string) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:     newTestStore(t),
		messenger: &fakeMessenger{},
		primary:   &mockProvider{name: "primary"},
		fallback:  &mockProvider{name: "fallback"},
		tracker:   &recordingTracker{},
		notifier:  &recordingNotifier{},
	}
	f.engine = NewEngine(Deps{
		Store:         f.store,
		Messenger:     f.messenger,
		Primary:       f.primary,
		Fallback:      f.fallback,
		Tracker:       f.tracker,
		Notifier:      f.notifier,
		BranchMode:    branchMode,
		HistoryWindow: 10,
	})
	return f
}

func dmEvent(sender, text string) InboundEvent {
	return InboundEvent{Kind: TriggerDM, PageID: testPage, SenderID: sender, Text: text, MessageID: uuid.NewString()}
}

func commentEvent(sender, text, commentID string) InboundEvent {
	return InboundEvent{Kind: TriggerComment, PageID: testPage, SenderID: sender, Text: text, CommentID: commentID, MediaID: "media-1"}
}

var errPlatform = errors.New("platform unavailable")
