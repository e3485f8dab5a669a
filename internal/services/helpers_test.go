package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/platform/openai"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

var testDBSeq atomic.Int64

// testSharedDB opens a named in-memory database visible across pooled
// connections, for tests that exercise the real SQL repos. The plain
// :memory: form of testDB gives every pooled connection its own empty
// database, which only works when nothing reads through the handle.
func testSharedDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func testCtx() dbctx.Context {
	return dbctx.New(context.Background())
}

// fakeSuggestionRepo is an in-memory repos.SuggestionRepo. Transition
// semantics mirror the real compare-and-set: only pending rows move.
type fakeSuggestionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*types.CanvasSuggestion
	order []uuid.UUID
}

func newFakeSuggestionRepo() *fakeSuggestionRepo {
	return &fakeSuggestionRepo{items: map[uuid.UUID]*types.CanvasSuggestion{}}
}

func (r *fakeSuggestionRepo) Create(_ dbctx.Context, s *types.CanvasSuggestion) (*types.CanvasSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = types.SuggestionStatusPending
	}
	cp := *s
	r.items[s.ID] = &cp
	r.order = append(r.order, s.ID)
	return s, nil
}

func (r *fakeSuggestionRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.CanvasSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, repos.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSuggestionRepo) List(_ dbctx.Context, f repos.SuggestionFilter) ([]*types.CanvasSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CanvasSuggestion
	for _, id := range r.order {
		s := r.items[id]
		if f.ProjectID != uuid.Nil && s.ProjectID != f.ProjectID {
			continue
		}
		if f.ProjectFrameworkID != nil && s.ProjectFrameworkID != *f.ProjectFrameworkID {
			continue
		}
		if f.NodeID != nil && (s.NodeID == nil || *s.NodeID != *f.NodeID) {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeSuggestionRepo) TransitionFromPending(_ dbctx.Context, id uuid.UUID, toStatus string, actorID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok || s.Status != types.SuggestionStatusPending {
		return false, nil
	}
	s.Status = toStatus
	switch toStatus {
	case types.SuggestionStatusAccepted:
		s.AppliedAt = &at
		s.AppliedBy = &actorID
	case types.SuggestionStatusDismissed:
		s.DismissedAt = &at
		s.DismissedBy = &actorID
	}
	return true, nil
}

// fakeNodeRepo is an in-memory repos.CanvasNodeRepo.
type fakeNodeRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*types.CanvasNode
	order []uuid.UUID
}

func newFakeNodeRepo() *fakeNodeRepo {
	return &fakeNodeRepo{items: map[uuid.UUID]*types.CanvasNode{}}
}

func (r *fakeNodeRepo) add(n *types.CanvasNode) *types.CanvasNode {
	created, _ := r.Create(dbctx.Context{}, n)
	return created
}

func (r *fakeNodeRepo) Create(_ dbctx.Context, node *types.CanvasNode) (*types.CanvasNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	cp := *node
	r.items[node.ID] = &cp
	r.order = append(r.order, node.ID)
	return node, nil
}

func (r *fakeNodeRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.CanvasNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, repos.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *fakeNodeRepo) ListByProject(_ dbctx.Context, projectID uuid.UUID) ([]*types.CanvasNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CanvasNode
	for _, id := range r.order {
		if n := r.items[id]; n.ProjectID == projectID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeNodeRepo) ListRootsByProject(_ dbctx.Context, projectID uuid.UUID) ([]*types.CanvasNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CanvasNode
	for _, id := range r.order {
		if n := r.items[id]; n.ProjectID == projectID && n.ParentID == nil {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeNodeRepo) ListByParent(_ dbctx.Context, parentID uuid.UUID) ([]*types.CanvasNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.CanvasNode
	for _, id := range r.order {
		if n := r.items[id]; n.ParentID != nil && *n.ParentID == parentID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeNodeRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return repos.ErrNotFound
	}
	for col, v := range fields {
		switch col {
		case "title":
			n.Title = v.(string)
		case "content":
			n.Content = v.(string)
		case "tags":
			n.Tags = v.(datatypes.JSON)
		case "zone_affinities":
			n.ZoneAffinities = v.(datatypes.JSON)
		case "task_status":
			n.TaskStatus = v.(string)
		default:
			return fmt.Errorf("fakeNodeRepo: unhandled column %q", col)
		}
	}
	return nil
}

func (r *fakeNodeRepo) Delete(_ dbctx.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repos.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// fakePFRepo is an in-memory repos.ProjectFrameworkRepo.
type fakePFRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*types.ProjectFramework
}

func newFakePFRepo() *fakePFRepo {
	return &fakePFRepo{items: map[uuid.UUID]*types.ProjectFramework{}}
}

func (r *fakePFRepo) add(pf *types.ProjectFramework) *types.ProjectFramework {
	created, _ := r.Create(dbctx.Context{}, pf)
	return created
}

func (r *fakePFRepo) Create(_ dbctx.Context, pf *types.ProjectFramework) (*types.ProjectFramework, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pf.ID == uuid.Nil {
		pf.ID = uuid.New()
	}
	cp := *pf
	r.items[pf.ID] = &cp
	return pf, nil
}

func (r *fakePFRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.ProjectFramework, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pf, ok := r.items[id]
	if !ok {
		return nil, repos.ErrNotFound
	}
	cp := *pf
	return &cp, nil
}

func (r *fakePFRepo) ListByProject(_ dbctx.Context, projectID uuid.UUID) ([]*types.ProjectFramework, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ProjectFramework
	for _, pf := range r.items {
		if pf.ProjectID == projectID {
			cp := *pf
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePFRepo) GetActiveByProject(_ dbctx.Context, projectID uuid.UUID) (*types.ProjectFramework, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pf := range r.items {
		if pf.ProjectID == projectID && pf.IsActive {
			cp := *pf
			return &cp, nil
		}
	}
	return nil, repos.ErrNotFound
}

func (r *fakePFRepo) SetActive(_ dbctx.Context, projectID, pfID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pf := range r.items {
		if pf.ProjectID == projectID {
			pf.IsActive = pf.ID == pfID
		}
	}
	return nil
}

func (r *fakePFRepo) UpdateHealth(_ dbctx.Context, pfID uuid.UUID, score float64, insights datatypes.JSON) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pf, ok := r.items[pfID]
	if !ok {
		return repos.ErrNotFound
	}
	pf.HealthScore = &score
	pf.Insights = insights
	return nil
}

// fakeChatRepo is an in-memory repos.ChatRepo.
type fakeChatRepo struct {
	mu       sync.Mutex
	chats    map[uuid.UUID]*types.Chat
	messages []*types.ChatMessage
	seq      int64
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{chats: map[uuid.UUID]*types.Chat{}}
}

func (r *fakeChatRepo) Create(_ dbctx.Context, chat *types.Chat) (*types.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	cp := *chat
	r.chats[chat.ID] = &cp
	return chat, nil
}

func (r *fakeChatRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[id]
	if !ok {
		return nil, repos.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeChatRepo) GetActiveHealthChat(_ dbctx.Context, projectID, pfID uuid.UUID) (*types.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chats {
		if c.ProjectID == projectID && c.ProjectFrameworkID != nil && *c.ProjectFrameworkID == pfID &&
			c.ChatType == types.ChatTypeHealthAnalysis && c.Status == types.ChatStatusActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repos.ErrNotFound
}

func (r *fakeChatRepo) ArchiveActiveHealthChats(_ dbctx.Context, projectID, pfID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var archived int64
	for _, c := range r.chats {
		if c.ProjectID == projectID && c.ProjectFrameworkID != nil && *c.ProjectFrameworkID == pfID &&
			c.ChatType == types.ChatTypeHealthAnalysis && c.Status == types.ChatStatusActive {
			c.Status = types.ChatStatusArchived
			archived++
		}
	}
	return archived, nil
}

func (r *fakeChatRepo) AppendMessage(_ dbctx.Context, msg *types.ChatMessage) (*types.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	r.seq++
	msg.Seq = r.seq
	cp := *msg
	r.messages = append(r.messages, &cp)
	return msg, nil
}

func (r *fakeChatRepo) ListMessages(_ dbctx.Context, chatID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ChatMessage
	for _, m := range r.messages {
		if m.ChatID != chatID {
			continue
		}
		cp := *m
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeChatRepo) messagesByRole(chatID uuid.UUID, role string) []*types.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ChatMessage
	for _, m := range r.messages {
		if m.ChatID == chatID && m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// fakeProjectRepo is an in-memory repos.ProjectRepo.
type fakeProjectRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*types.Project
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{items: map[uuid.UUID]*types.Project{}}
}

func (r *fakeProjectRepo) Create(_ dbctx.Context, p *types.Project) (*types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.items[p.ID] = &cp
	return p, nil
}

func (r *fakeProjectRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return nil, repos.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProjectRepo) ListByOwner(_ dbctx.Context, ownerID uuid.UUID) ([]*types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Project
	for _, p := range r.items {
		if p.OwnerUserID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) ListByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Project
	for _, id := range ids {
		if p, ok := r.items[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repos.ErrNotFound
	}
	return nil
}

// fakeUserRepo is an in-memory repos.UserRepo.
type fakeUserRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{items: map[uuid.UUID]*types.User{}}
}

func (r *fakeUserRepo) Create(_ dbctx.Context, u *types.User) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	r.items[u.ID] = &cp
	return u, nil
}

func (r *fakeUserRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.items[id]
	if !ok {
		return nil, repos.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ dbctx.Context, email string) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.items {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repos.ErrNotFound
}

// recordingNotifier captures every emitted analysis event.
type recordingNotifier struct {
	mu              sync.Mutex
	appends         []string
	dimensionEvents []string
	healthEvents    int
	suggestions     int
	nodeChanges     []string
	completions     int
	errors          []string
}

func (n *recordingNotifier) MessageAppend(_ uuid.UUID, _ string, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.appends = append(n.appends, content)
}

func (n *recordingNotifier) DimensionScore(_ uuid.UUID, _ uuid.UUID, dimension string, _ float64, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dimensionEvents = append(n.dimensionEvents, dimension)
}

func (n *recordingNotifier) FrameworkHealth(_ uuid.UUID, _ uuid.UUID, _ float64, _ []types.DimensionInsight) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.healthEvents++
}

func (n *recordingNotifier) SuggestionCreated(_ *types.CanvasSuggestion) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.suggestions++
}

func (n *recordingNotifier) NodeMutated(_, _ uuid.UUID, change string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodeChanges = append(n.nodeChanges, change)
}

func (n *recordingNotifier) AnalysisComplete(_ uuid.UUID, _ uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completions++
}

func (n *recordingNotifier) AnalysisError(_ uuid.UUID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

// scriptedLLM replays a fixed sequence of model turns.
type scriptedLLM struct {
	mu    sync.Mutex
	turns []openai.ChatResult
	calls int
}

func (c *scriptedLLM) next() (openai.ChatResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.turns) {
		return openai.ChatResult{}, fmt.Errorf("scriptedLLM: no turn scripted for call %d", c.calls+1)
	}
	out := c.turns[c.calls]
	c.calls++
	return out, nil
}

func (c *scriptedLLM) ChatWithTools(_ context.Context, _ string, _ []openai.ChatMessage, _ []openai.ToolDef) (openai.ChatResult, error) {
	return c.next()
}

func (c *scriptedLLM) StreamChatWithTools(_ context.Context, _ string, _ []openai.ChatMessage, _ []openai.ToolDef, onDelta func(string)) (openai.ChatResult, error) {
	out, err := c.next()
	if err == nil && out.Content != "" && onDelta != nil {
		onDelta(out.Content)
	}
	return out, err
}
