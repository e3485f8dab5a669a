package services

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/crossmindhq/crossmind-backend/internal/types"
)

func TestDefaultAffinitySpread(t *testing.T) {
	zones := []string{"problem", "solution", "channels", "key-metrics", "revenue-streams"}

	tests := []struct {
		name  string
		index int
		zones []string
		want  map[string]float64
	}{
		{
			name:  "first node over five zones",
			index: 0,
			zones: zones,
			want:  map[string]float64{"problem": 0.8, "revenue-streams": 0.2, "solution": 0.2},
		},
		{
			name:  "index wraps around the zone list",
			index: 6,
			zones: zones,
			want:  map[string]float64{"solution": 0.8, "problem": 0.2, "channels": 0.2},
		},
		{
			name:  "single zone gets only the primary weight",
			index: 3,
			zones: []string{"only"},
			want:  map[string]float64{"only": 0.8},
		},
		{
			name:  "two zones collapse both neighbors onto one entry",
			index: 0,
			zones: []string{"a", "b"},
			want:  map[string]float64{"a": 0.8, "b": 0.2},
		},
		{
			name:  "no zones",
			index: 0,
			zones: nil,
			want:  map[string]float64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultAffinitySpread(tt.index, tt.zones)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for zone, w := range tt.want {
				if math.Abs(got[zone]-w) > 1e-9 {
					t.Errorf("zone %q weight = %v, want %v", zone, got[zone], w)
				}
			}
		})
	}
}

func TestDefaultAffinitySpreadDistributesEvenly(t *testing.T) {
	zones := []string{"z0", "z1", "z2", "z3", "z4"}
	primaries := map[string]int{}
	for i := 0; i < 10; i++ {
		spread := defaultAffinitySpread(i, zones)
		for zone, w := range spread {
			if w == 0.8 {
				primaries[zone]++
			}
		}
	}
	// 10 nodes round-robined over 5 zones: each zone is primary twice
	for _, zone := range zones {
		if primaries[zone] != 2 {
			t.Errorf("zone %q was primary %d times, want 2", zone, primaries[zone])
		}
	}
}

func TestResolveZoneKeys(t *testing.T) {
	zones := []types.ProjectFrameworkZone{
		{ZoneKey: "problem", Name: "Problem"},
		{ZoneKey: "customer-segments", Name: "Customer Segments"},
		{ZoneKey: "unique-value-proposition", Name: "Unique Value Proposition"},
	}

	tests := []struct {
		name  string
		names []string
		want  map[string]string
	}{
		{
			name:  "exact match",
			names: []string{"Problem"},
			want:  map[string]string{"Problem": "problem"},
		},
		{
			name:  "case insensitive fallback",
			names: []string{"customer segments", "PROBLEM"},
			want: map[string]string{
				"customer segments": "customer-segments",
				"PROBLEM":           "problem",
			},
		},
		{
			name:  "unresolved names stay absent",
			names: []string{"Problem", "Nonexistent Zone"},
			want:  map[string]string{"Problem": "problem"},
		},
		{
			name:  "empty input",
			names: nil,
			want:  map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveZoneKeys(zones, tt.names)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for name, key := range tt.want {
				if got[name] != key {
					t.Errorf("resolved[%q] = %q, want %q", name, got[name], key)
				}
			}
		})
	}

	t.Run("folded lookup maps differently-cased duplicates", func(t *testing.T) {
		got := resolveZoneKeys(zones, []string{"unique value proposition"})
		if got["unique value proposition"] != "unique-value-proposition" {
			t.Fatalf("got %v", got)
		}
	})
}

func TestPopulateDefaults(t *testing.T) {
	log := testLogger()
	nodes := newFakeNodeRepo()
	pfs := newFakePFRepo()
	projectID := uuid.New()

	pf := pfs.add(&types.ProjectFramework{
		ProjectID:    projectID,
		FrameworkKey: "swot",
		Name:         "SWOT",
		Zones: []types.ProjectFrameworkZone{
			{ZoneKey: "strengths", Name: "Strengths"},
			{ZoneKey: "weaknesses", Name: "Weaknesses"},
			{ZoneKey: "opportunities", Name: "Opportunities"},
			{ZoneKey: "threats", Name: "Threats"},
		},
	})

	assigned := nodes.add(&types.CanvasNode{
		ProjectID: projectID,
		Title:     "already placed",
		NodeType:  types.NodeTypeIdea,
		ZoneAffinities: types.MarshalAffinities(types.AffinityMap{
			pf.ID.String(): {"threats": 1.0},
		}),
	})
	fresh1 := nodes.add(&types.CanvasNode{ProjectID: projectID, Title: "a", NodeType: types.NodeTypeIdea})
	fresh2 := nodes.add(&types.CanvasNode{ProjectID: projectID, Title: "b", NodeType: types.NodeTypeIdea})
	parentID := fresh1.ID
	nodes.add(&types.CanvasNode{ProjectID: projectID, ParentID: &parentID, Title: "child", NodeType: types.NodeTypeIdea})

	svc := NewAffinityService(nil, log, nodes, pfs, nil)
	populated, err := svc.PopulateDefaults(testCtx(), projectID, pf.ID)
	if err != nil {
		t.Fatalf("PopulateDefaults: %v", err)
	}
	if populated != 2 {
		t.Fatalf("populated = %d, want 2", populated)
	}

	// the pre-assigned node is untouched
	got, err := svc.GetAffinities(testCtx(), assigned.ID, pf.ID)
	if err != nil {
		t.Fatalf("GetAffinities: %v", err)
	}
	if got["threats"] != 1.0 || len(got) != 1 {
		t.Fatalf("pre-assigned affinities changed: %v", got)
	}

	// the assigned node consumed index 0, so the first fresh node gets
	// index 1: primary weaknesses, neighbors strengths and opportunities
	got, _ = svc.GetAffinities(testCtx(), fresh1.ID, pf.ID)
	if got["weaknesses"] != 0.8 || got["strengths"] != 0.2 || got["opportunities"] != 0.2 {
		t.Fatalf("fresh1 affinities = %v", got)
	}
	got, _ = svc.GetAffinities(testCtx(), fresh2.ID, pf.ID)
	if got["opportunities"] != 0.8 {
		t.Fatalf("fresh2 affinities = %v", got)
	}
}

func TestPopulateDefaultsIsIdempotent(t *testing.T) {
	log := testLogger()
	nodes := newFakeNodeRepo()
	pfs := newFakePFRepo()
	projectID := uuid.New()

	pf := pfs.add(&types.ProjectFramework{
		ProjectID:    projectID,
		FrameworkKey: "swot",
		Zones: []types.ProjectFrameworkZone{
			{ZoneKey: "strengths"}, {ZoneKey: "weaknesses"},
		},
	})
	node := nodes.add(&types.CanvasNode{ProjectID: projectID, Title: "n", NodeType: types.NodeTypeIdea})

	svc := NewAffinityService(nil, log, nodes, pfs, nil)
	if _, err := svc.PopulateDefaults(testCtx(), projectID, pf.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := svc.GetAffinities(testCtx(), node.ID, pf.ID)

	populated, err := svc.PopulateDefaults(testCtx(), projectID, pf.ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if populated != 0 {
		t.Fatalf("second run populated %d nodes, want 0", populated)
	}
	second, _ := svc.GetAffinities(testCtx(), node.ID, pf.ID)
	if len(first) != len(second) {
		t.Fatalf("affinities changed on re-run: %v vs %v", first, second)
	}
	for zone, w := range first {
		if second[zone] != w {
			t.Fatalf("affinities changed on re-run: %v vs %v", first, second)
		}
	}
}

func TestSetAffinitiesValidatesRange(t *testing.T) {
	log := testLogger()
	nodes := newFakeNodeRepo()
	node := nodes.add(&types.CanvasNode{ProjectID: uuid.New(), Title: "n", NodeType: types.NodeTypeIdea})
	pfID := uuid.New()

	svc := NewAffinityService(nil, log, nodes, newFakePFRepo(), nil)

	if err := svc.SetAffinities(testCtx(), node.ID, pfID, map[string]float64{"zone": 1.2}); err == nil {
		t.Fatal("expected out-of-range weight to be rejected")
	}
	if err := svc.SetAffinities(testCtx(), node.ID, pfID, map[string]float64{"zone": -0.1}); err == nil {
		t.Fatal("expected negative weight to be rejected")
	}

	// weights need not sum to 1
	if err := svc.SetAffinities(testCtx(), node.ID, pfID, map[string]float64{"a": 0.9, "b": 0.9}); err != nil {
		t.Fatalf("SetAffinities: %v", err)
	}
	got, err := svc.GetAffinities(testCtx(), node.ID, pfID)
	if err != nil {
		t.Fatalf("GetAffinities: %v", err)
	}
	if got["a"] != 0.9 || got["b"] != 0.9 {
		t.Fatalf("affinities = %v", got)
	}
}

func TestSetAffinitiesKeepsOtherFrameworks(t *testing.T) {
	log := testLogger()
	nodes := newFakeNodeRepo()
	otherPF := uuid.New()
	node := nodes.add(&types.CanvasNode{
		ProjectID: uuid.New(),
		Title:     "n",
		NodeType:  types.NodeTypeIdea,
		ZoneAffinities: types.MarshalAffinities(types.AffinityMap{
			otherPF.String(): {"keep": 0.5},
		}),
	})
	pfID := uuid.New()

	svc := NewAffinityService(nil, log, nodes, newFakePFRepo(), nil)
	if err := svc.SetAffinities(testCtx(), node.ID, pfID, map[string]float64{"new": 0.7}); err != nil {
		t.Fatalf("SetAffinities: %v", err)
	}

	kept, _ := svc.GetAffinities(testCtx(), node.ID, otherPF)
	if kept["keep"] != 0.5 {
		t.Fatalf("other framework's affinities lost: %v", kept)
	}
}
