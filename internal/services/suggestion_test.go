package services

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/crossmindhq/crossmind-backend/internal/platform/apierr"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

func newSuggestionFixture(t *testing.T) (SuggestionService, *fakeSuggestionRepo, *fakeNodeRepo, *recordingNotifier) {
	t.Helper()
	repo := newFakeSuggestionRepo()
	nodes := newFakeNodeRepo()
	notify := &recordingNotifier{}
	svc := NewSuggestionService(testDB(t), testLogger(), repo, nodes, notify)
	return svc, repo, nodes, notify
}

func TestCreateSuggestionValidation(t *testing.T) {
	svc, _, _, _ := newSuggestionFixture(t)
	projectID := uuid.New()
	pfID := uuid.New()
	nodeID := uuid.New()

	base := CreateSuggestionInput{
		ProjectID:          projectID,
		ProjectFrameworkID: pfID,
		SuggestionType:     types.SuggestionTypeAddNode,
		Title:              "Add a pricing node",
		Reason:             "no revenue thinking yet",
		ActionParams:       datatypes.JSON(`{"title":"Pricing"}`),
	}

	tests := []struct {
		name       string
		mutate     func(in *CreateSuggestionInput)
		wantStatus int
	}{
		{
			name:   "valid add-node",
			mutate: func(in *CreateSuggestionInput) {},
		},
		{
			name:       "missing project",
			mutate:     func(in *CreateSuggestionInput) { in.ProjectID = uuid.Nil },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing framework",
			mutate:     func(in *CreateSuggestionInput) { in.ProjectFrameworkID = uuid.Nil },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown type",
			mutate:     func(in *CreateSuggestionInput) { in.SuggestionType = "delete-everything" },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing title",
			mutate:     func(in *CreateSuggestionInput) { in.Title = "" },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown priority",
			mutate:     func(in *CreateSuggestionInput) { in.Priority = "urgent-ish" },
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "add-node params without a node title",
			mutate: func(in *CreateSuggestionInput) {
				in.ActionParams = datatypes.JSON(`{"content":"x"}`)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "add-tag without target node",
			mutate: func(in *CreateSuggestionInput) {
				in.SuggestionType = types.SuggestionTypeAddTag
				in.ActionParams = datatypes.JSON(`{"tag":"mvp"}`)
				in.NodeID = nil
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "refine-content without target node",
			mutate: func(in *CreateSuggestionInput) {
				in.SuggestionType = types.SuggestionTypeRefineContent
				in.ActionParams = datatypes.JSON(`{"content":"better"}`)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "content-suggestion with target node",
			mutate: func(in *CreateSuggestionInput) {
				in.SuggestionType = types.SuggestionTypeContentSuggestion
				in.ActionParams = datatypes.JSON(`{"content":"draft"}`)
				in.NodeID = &nodeID
			},
		},
		{
			name: "health-issue without params",
			mutate: func(in *CreateSuggestionInput) {
				in.SuggestionType = types.SuggestionTypeHealthIssue
				in.ActionParams = nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			created, err := svc.Create(testCtx(), in)
			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				if created.Status != types.SuggestionStatusPending {
					t.Fatalf("status = %q, want pending", created.Status)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := apierr.Status(err); got != tt.wantStatus {
				t.Fatalf("status = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestCreateSuggestionDefaultsPriority(t *testing.T) {
	svc, repo, _, notify := newSuggestionFixture(t)
	created, err := svc.Create(testCtx(), CreateSuggestionInput{
		ProjectID:          uuid.New(),
		ProjectFrameworkID: uuid.New(),
		SuggestionType:     types.SuggestionTypeHealthIssue,
		Title:              "Channels zone is empty",
		Reason:             "no distribution thinking",
		Source:             types.SuggestionSourceAIHealthCheck,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Priority != types.SuggestionPriorityMedium {
		t.Fatalf("priority = %q, want medium", created.Priority)
	}
	if created.Source != types.SuggestionSourceAIHealthCheck {
		t.Fatalf("source = %q", created.Source)
	}
	stored, err := repo.GetByID(testCtx(), created.ID)
	if err != nil {
		t.Fatalf("stored suggestion missing: %v", err)
	}
	if stored.Status != types.SuggestionStatusPending {
		t.Fatalf("stored status = %q", stored.Status)
	}
	if notify.suggestions != 1 {
		t.Fatalf("suggestion-created events = %d, want 1", notify.suggestions)
	}
}

func TestExecuteAddNode(t *testing.T) {
	svc, _, nodes, notify := newSuggestionFixture(t)
	projectID := uuid.New()
	userID := uuid.New()

	created, err := svc.Create(testCtx(), CreateSuggestionInput{
		ProjectID:          projectID,
		ProjectFrameworkID: uuid.New(),
		SuggestionType:     types.SuggestionTypeAddNode,
		Title:              "Add pricing",
		Reason:             "missing",
		ActionParams:       datatypes.JSON(`{"title":"Pricing","content":"tiered plans","zone_key":"revenue-streams"}`),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := svc.Execute(testCtx(), created.ID, userID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Accepted {
		t.Fatal("add-node should accept immediately")
	}
	if result.CreatedNodeID == nil {
		t.Fatal("no node created")
	}

	node, err := nodes.GetByID(testCtx(), *result.CreatedNodeID)
	if err != nil {
		t.Fatalf("created node missing: %v", err)
	}
	if node.Title != "Pricing" || node.ProjectID != projectID {
		t.Fatalf("node = %+v", node)
	}
	if node.NodeType != types.NodeTypeIdea {
		t.Fatalf("node type = %q, want default idea", node.NodeType)
	}
	aff := node.AffinitiesFor(created.ProjectFrameworkID)
	if aff["revenue-streams"] != 1.0 {
		t.Fatalf("zone affinity = %v", aff)
	}

	// terminal: a second apply conflicts
	if _, err := svc.Execute(testCtx(), created.ID, userID); apierr.Status(err) != http.StatusConflict {
		t.Fatalf("second apply error = %v, want conflict", err)
	}

	sg, _ := svc.GetByID(testCtx(), created.ID)
	if sg.Status != types.SuggestionStatusAccepted {
		t.Fatalf("status = %q, want accepted", sg.Status)
	}
	if len(notify.nodeChanges) == 0 || notify.nodeChanges[0] != "created" {
		t.Fatalf("node events = %v", notify.nodeChanges)
	}
}

func TestExecuteAddTagIdempotent(t *testing.T) {
	svc, _, nodes, notify := newSuggestionFixture(t)
	projectID := uuid.New()
	userID := uuid.New()
	node := nodes.add(&types.CanvasNode{
		ProjectID: projectID,
		Title:     "Onboarding flow",
		NodeType:  types.NodeTypeIdea,
		Tags:      types.MarshalTags([]string{"mvp"}),
	})

	mk := func(tag string) uuid.UUID {
		created, err := svc.Create(testCtx(), CreateSuggestionInput{
			ProjectID:          projectID,
			ProjectFrameworkID: uuid.New(),
			NodeID:             &node.ID,
			SuggestionType:     types.SuggestionTypeAddTag,
			Title:              "Tag it",
			Reason:             "categorization",
			ActionParams:       datatypes.JSON(`{"tag":"` + tag + `"}`),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		return created.ID
	}

	result, err := svc.Execute(testCtx(), mk("growth"), userID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Detail != "" {
		t.Fatalf("detail = %q, want empty for a new tag", result.Detail)
	}
	updated, _ := nodes.GetByID(testCtx(), node.ID)
	if !updated.HasTag("growth") || !updated.HasTag("mvp") {
		t.Fatalf("tags = %v", updated.TagList())
	}
	if len(notify.nodeChanges) != 1 || notify.nodeChanges[0] != "tagged" {
		t.Fatalf("node events = %v, want one tagged event", notify.nodeChanges)
	}

	// already-present tag still accepts, without duplicating
	result, err = svc.Execute(testCtx(), mk("mvp"), userID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Detail != "tag already present" {
		t.Fatalf("detail = %q", result.Detail)
	}
	updated, _ = nodes.GetByID(testCtx(), node.ID)
	count := 0
	for _, tag := range updated.TagList() {
		if tag == "mvp" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("tag mvp appears %d times", count)
	}
	// the no-op branch must not announce a mutation
	if len(notify.nodeChanges) != 1 {
		t.Fatalf("node events = %v, want no event for an already-present tag", notify.nodeChanges)
	}
}

func TestExecuteRefineContent(t *testing.T) {
	svc, _, nodes, _ := newSuggestionFixture(t)
	projectID := uuid.New()
	node := nodes.add(&types.CanvasNode{
		ProjectID: projectID,
		Title:     "Problem statement",
		Content:   "people are sad",
		NodeType:  types.NodeTypeIdea,
	})

	created, err := svc.Create(testCtx(), CreateSuggestionInput{
		ProjectID:          projectID,
		ProjectFrameworkID: uuid.New(),
		NodeID:             &node.ID,
		SuggestionType:     types.SuggestionTypeRefineContent,
		Title:              "Sharpen the problem",
		Reason:             "too vague",
		ActionParams:       datatypes.JSON(`{"content":"Freelancers lose 4h/week to manual invoicing"}`),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := svc.Execute(testCtx(), created.ID, uuid.New())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Accepted || result.UpdatedNodeID == nil || *result.UpdatedNodeID != node.ID {
		t.Fatalf("result = %+v", result)
	}
	updated, _ := nodes.GetByID(testCtx(), node.ID)
	if updated.Content != "Freelancers lose 4h/week to manual invoicing" {
		t.Fatalf("content = %q", updated.Content)
	}
}

func TestExecuteDeferredAcceptTypes(t *testing.T) {
	svc, _, nodes, _ := newSuggestionFixture(t)
	projectID := uuid.New()
	userID := uuid.New()
	node := nodes.add(&types.CanvasNode{ProjectID: projectID, Title: "Draft", NodeType: types.NodeTypeIdea})

	t.Run("content-suggestion stays pending after execute", func(t *testing.T) {
		created, err := svc.Create(testCtx(), CreateSuggestionInput{
			ProjectID:          projectID,
			ProjectFrameworkID: uuid.New(),
			NodeID:             &node.ID,
			SuggestionType:     types.SuggestionTypeContentSuggestion,
			Title:              "Proposed rewrite",
			Reason:             "clarity",
			ActionParams:       datatypes.JSON(`{"content":"rewritten draft"}`),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		result, err := svc.Execute(testCtx(), created.ID, userID)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result.Accepted {
			t.Fatal("content-suggestion must not auto-accept")
		}
		updated, _ := nodes.GetByID(testCtx(), node.ID)
		if updated.Content != "rewritten draft" {
			t.Fatalf("content = %q", updated.Content)
		}
		sg, _ := svc.GetByID(testCtx(), created.ID)
		if sg.Status != types.SuggestionStatusPending {
			t.Fatalf("status = %q, want pending", sg.Status)
		}

		// the explicit accept finalizes it
		if err := svc.Accept(testCtx(), created.ID, userID); err != nil {
			t.Fatalf("Accept: %v", err)
		}
		sg, _ = svc.GetByID(testCtx(), created.ID)
		if sg.Status != types.SuggestionStatusAccepted {
			t.Fatalf("status = %q, want accepted", sg.Status)
		}
		if err := svc.Accept(testCtx(), created.ID, userID); apierr.Status(err) != http.StatusConflict {
			t.Fatalf("second accept error = %v, want conflict", err)
		}
	})

	t.Run("health-issue records without mutating anything", func(t *testing.T) {
		created, err := svc.Create(testCtx(), CreateSuggestionInput{
			ProjectID:          projectID,
			ProjectFrameworkID: uuid.New(),
			SuggestionType:     types.SuggestionTypeHealthIssue,
			Title:              "Threats zone empty",
			Reason:             "no competitive analysis",
			ActionParams:       datatypes.JSON(`{"dimension":"threats","severity":"warning"}`),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		result, err := svc.Execute(testCtx(), created.ID, userID)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result.Accepted || result.Detail != "recorded" {
			t.Fatalf("result = %+v", result)
		}
		sg, _ := svc.GetByID(testCtx(), created.ID)
		if sg.Status != types.SuggestionStatusPending {
			t.Fatalf("status = %q, want pending", sg.Status)
		}
	})
}

func TestDismiss(t *testing.T) {
	svc, _, _, _ := newSuggestionFixture(t)
	userID := uuid.New()

	created, err := svc.Create(testCtx(), CreateSuggestionInput{
		ProjectID:          uuid.New(),
		ProjectFrameworkID: uuid.New(),
		SuggestionType:     types.SuggestionTypeHealthIssue,
		Title:              "Noise",
		Reason:             "not relevant",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Dismiss(testCtx(), created.ID, userID); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	sg, _ := svc.GetByID(testCtx(), created.ID)
	if sg.Status != types.SuggestionStatusDismissed {
		t.Fatalf("status = %q, want dismissed", sg.Status)
	}
	if sg.DismissedBy == nil || *sg.DismissedBy != userID {
		t.Fatalf("dismissed_by = %v", sg.DismissedBy)
	}

	// terminal either way
	if err := svc.Dismiss(testCtx(), created.ID, userID); apierr.Status(err) != http.StatusConflict {
		t.Fatalf("second dismiss error = %v, want conflict", err)
	}
	if _, err := svc.Execute(testCtx(), created.ID, userID); apierr.Status(err) != http.StatusConflict {
		t.Fatalf("apply after dismiss error = %v, want conflict", err)
	}

	if err := svc.Dismiss(testCtx(), uuid.New(), userID); apierr.Status(err) != http.StatusNotFound {
		t.Fatalf("dismiss missing error = %v, want not found", err)
	}
}

func TestExecuteConcurrentAddTagAcceptsOnce(t *testing.T) {
	svc, _, nodes, _ := newSuggestionFixture(t)
	projectID := uuid.New()
	node := nodes.add(&types.CanvasNode{
		ProjectID: projectID,
		Title:     "Onboarding flow",
		NodeType:  types.NodeTypeIdea,
	})

	created, err := svc.Create(testCtx(), CreateSuggestionInput{
		ProjectID:          projectID,
		ProjectFrameworkID: uuid.New(),
		NodeID:             &node.ID,
		SuggestionType:     types.SuggestionTypeAddTag,
		Title:              "Tag it",
		Reason:             "categorization",
		ActionParams:       datatypes.JSON(`{"tag":"growth"}`),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Execute(testCtx(), created.ID, uuid.New())
		}(i)
	}
	wg.Wait()

	var applied, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			applied++
		case apierr.Status(err) == http.StatusConflict:
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if applied != 1 || conflicted != 1 {
		t.Fatalf("applies: %d succeeded, %d conflicted; want exactly one of each", applied, conflicted)
	}

	updated, _ := nodes.GetByID(testCtx(), node.ID)
	count := 0
	for _, tag := range updated.TagList() {
		if tag == "growth" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("tag growth appears %d times", count)
	}
}

// failingNodeRepo delegates reads and rejects every write.
type failingNodeRepo struct {
	repos.CanvasNodeRepo
}

func (r *failingNodeRepo) UpdateFields(dbctx.Context, uuid.UUID, map[string]any) error {
	return fmt.Errorf("update rejected")
}

func TestExecuteRollsBackAcceptWhenMutationFails(t *testing.T) {
	gdb := testSharedDB(t)
	ddl := []string{
		`CREATE TABLE canvas_node (
			id text PRIMARY KEY,
			project_id text NOT NULL,
			parent_id text,
			title text NOT NULL,
			content text,
			node_type text NOT NULL DEFAULT 'idea',
			tags text,
			task_status text,
			assignee_id text,
			due_date datetime,
			display_order integer NOT NULL DEFAULT 0,
			health_score real,
			health_level text,
			health_data text,
			zone_affinities text,
			created_at datetime,
			updated_at datetime,
			deleted_at datetime
		)`,
		`CREATE TABLE canvas_suggestion (
			id text PRIMARY KEY,
			project_id text NOT NULL,
			project_framework_id text NOT NULL,
			node_id text,
			suggestion_type text NOT NULL,
			title text NOT NULL,
			description text,
			reason text,
			priority text NOT NULL DEFAULT 'medium',
			action_params text,
			status text NOT NULL DEFAULT 'pending',
			source text,
			applied_at datetime,
			applied_by text,
			dismissed_at datetime,
			dismissed_by text,
			created_at datetime,
			updated_at datetime,
			deleted_at datetime
		)`,
	}
	for _, stmt := range ddl {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}

	log := testLogger()
	suggestions := repos.NewSuggestionRepo(gdb, log)
	nodes := repos.NewCanvasNodeRepo(gdb, log)

	projectID := uuid.New()
	node, err := nodes.Create(testCtx(), &types.CanvasNode{
		ID:        uuid.New(),
		ProjectID: projectID,
		Title:     "Onboarding flow",
		NodeType:  types.NodeTypeIdea,
		Tags:      types.MarshalTags(nil),
	})
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	sg, err := suggestions.Create(testCtx(), &types.CanvasSuggestion{
		ID:                 uuid.New(),
		ProjectID:          projectID,
		ProjectFrameworkID: uuid.New(),
		NodeID:             &node.ID,
		SuggestionType:     types.SuggestionTypeAddTag,
		Title:              "Tag it",
		Priority:           types.SuggestionPriorityMedium,
		ActionParams:       datatypes.JSON(`{"tag":"growth"}`),
		Status:             types.SuggestionStatusPending,
	})
	if err != nil {
		t.Fatalf("create suggestion: %v", err)
	}

	broken := NewSuggestionService(gdb, log, suggestions, &failingNodeRepo{nodes}, &recordingNotifier{})
	if _, err := broken.Execute(testCtx(), sg.ID, uuid.New()); err == nil {
		t.Fatal("expected the failed mutation to surface")
	}

	stored, err := suggestions.GetByID(testCtx(), sg.ID)
	if err != nil {
		t.Fatalf("reload suggestion: %v", err)
	}
	if stored.Status != types.SuggestionStatusPending {
		t.Fatalf("status = %q, want pending after rollback", stored.Status)
	}
	if stored.AppliedAt != nil || stored.AppliedBy != nil {
		t.Fatalf("applied_at = %v applied_by = %v, want unset", stored.AppliedAt, stored.AppliedBy)
	}

	// once the write path works again the same suggestion applies
	svc := NewSuggestionService(gdb, log, suggestions, nodes, &recordingNotifier{})
	result, err := svc.Execute(testCtx(), sg.ID, uuid.New())
	if err != nil {
		t.Fatalf("retry Execute: %v", err)
	}
	if !result.Accepted {
		t.Fatal("retry should accept")
	}
	updated, err := nodes.GetByID(testCtx(), node.ID)
	if err != nil {
		t.Fatalf("reload node: %v", err)
	}
	if !updated.HasTag("growth") {
		t.Fatalf("tags = %v", updated.TagList())
	}
}

func TestExecuteMissingTargetNode(t *testing.T) {
	svc, _, _, _ := newSuggestionFixture(t)
	ghost := uuid.New()

	created, err := svc.Create(testCtx(), CreateSuggestionInput{
		ProjectID:          uuid.New(),
		ProjectFrameworkID: uuid.New(),
		NodeID:             &ghost,
		SuggestionType:     types.SuggestionTypeAddTag,
		Title:              "Tag a ghost",
		Reason:             "test",
		ActionParams:       datatypes.JSON(`{"tag":"x"}`),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Execute(testCtx(), created.ID, uuid.New()); apierr.Status(err) != http.StatusNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
}
