package field

import (
	"strings"
	"testing"
)

func countFormationEvents(f *Field) int {
	n := 0
	for _, e := range f.OperationLog() {
		if e.Op == "attractor.formed" {
			n++
		}
	}
	return n
}

func TestPromotionStateMachine(t *testing.T) {
	f := newTestField(t, func(p *Params) { p.BoundaryPermeability = 1.0 })

	// 0.5 is below the candidate band (0.8 * 0.7 = 0.56).
	id, _ := f.Inject("growing concept", 0.5, nil)
	if len(f.candidates) != 0 {
		t.Fatal("pattern below candidate band marked candidate")
	}

	// Push into the candidate band.
	if err := f.StrengthenOnAccess(id); err != nil {
		t.Fatal(err)
	}
	if !f.candidates[id] {
		t.Fatal("pattern at 0.6 should be a candidate")
	}
	if len(f.ScanAttractors(0)) != 0 {
		t.Fatal("candidate promoted too early")
	}

	// Cross the formation threshold.
	f.StrengthenOnAccess(id)
	if got := len(f.ScanAttractors(0)); got != 1 {
		t.Fatalf("got %d attractors, want 1", got)
	}
	if f.candidates[id] {
		t.Error("promoted pattern still marked candidate")
	}
	if countFormationEvents(f) != 1 {
		t.Errorf("got %d formation events, want 1", countFormationEvents(f))
	}
}

func TestPromotionIsDeterministic(t *testing.T) {
	run := func() int {
		f := newTestField(t, func(p *Params) { p.BoundaryPermeability = 1.0 })
		f.Inject("deterministic alpha concept", 0.75, nil)
		f.Inject("deterministic beta concept", 0.75, nil)
		return len(f.ScanAttractors(0))
	}
	first := run()
	for i := 0; i < 5; i++ {
		if got := run(); got != first {
			t.Fatalf("run %d formed %d attractors, first run formed %d", i, got, first)
		}
	}
}

func TestRepeatedInjectionFormsOneAttractor(t *testing.T) {
	f := newTestField(t, nil)

	// Same concept five times: stored strength 0.8 crosses the threshold
	// on every injection, but only the first forms an attractor. The rest
	// are captured by the existing basin and reinforce it.
	for i := 0; i < 5; i++ {
		if _, err := f.Inject("persistent important concept", 1.0, nil); err != nil {
			t.Fatalf("Inject %d: %v", i, err)
		}
	}
	if got := len(f.ScanAttractors(0)); got != 1 {
		t.Fatalf("got %d attractors, want exactly 1", got)
	}
	if got := countFormationEvents(f); got != 1 {
		t.Errorf("got %d formation events, want exactly 1", got)
	}
}

func TestBasinCaptureTakesMaxStrength(t *testing.T) {
	f := newTestField(t, func(p *Params) { p.BoundaryPermeability = 1.0 })

	f.Inject("anchored concept", 0.8, nil)
	a0 := f.ScanAttractors(0)
	if len(a0) != 1 {
		t.Fatalf("setup: got %d attractors", len(a0))
	}

	// A stronger duplicate raises the attractor instead of duplicating it.
	f.Inject("anchored concept", 1.2, nil)
	a1 := f.ScanAttractors(0)
	if len(a1) != 1 {
		t.Fatalf("got %d attractors, want 1", len(a1))
	}
	if a1[0].Strength <= a0[0].Strength {
		t.Errorf("capture did not reinforce: %v -> %v", a0[0].Strength, a1[0].Strength)
	}
}

func TestScanAttractorsOrdering(t *testing.T) {
	f := newTestField(t, nil)
	f.CreateAttractor("weak idea", 0.3)
	f.CreateAttractor("strong idea", 0.9)
	f.CreateAttractor("middle idea", 0.6)

	got := f.ScanAttractors(0)
	if len(got) != 3 {
		t.Fatalf("got %d attractors, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Strength > got[i-1].Strength {
			t.Fatalf("not sorted by strength desc: %v", got)
		}
	}

	filtered := f.ScanAttractors(0.5)
	if len(filtered) != 2 {
		t.Errorf("got %d attractors above 0.5, want 2", len(filtered))
	}
}

func TestScanAttractorsTieBreakByFormation(t *testing.T) {
	f := newTestField(t, nil)
	a, _ := f.CreateAttractor("first of equals", 0.5)
	f.CreateAttractor("second of equals", 0.5)

	got := f.ScanAttractors(0)
	if len(got) != 2 {
		t.Fatalf("got %d attractors, want 2", len(got))
	}
	if got[0].ID != a.ID {
		t.Error("tie not broken by earlier formation")
	}
}

func TestBasinWidthFollowsStrength(t *testing.T) {
	cases := []struct{ strength, want float64 }{
		{0, 0.5},
		{0.5, 0.75},
		{1.0, 1.0},
	}
	for _, c := range cases {
		if got := basinWidth(c.strength); !almostEqual(got, c.want) {
			t.Errorf("basinWidth(%v) = %v, want %v", c.strength, got, c.want)
		}
	}
}

func TestIdentifyCoEmergencePairs(t *testing.T) {
	f := newTestField(t, nil)
	f.CreateAttractor("river delta sediment", 0.8)
	f.CreateAttractor("river delta sediment flow", 0.8)
	f.CreateAttractor("orbital mechanics basics", 0.8)

	pairs, err := f.IdentifyCoEmergencePairs()
	if err != nil {
		t.Fatalf("IdentifyCoEmergencePairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1: %v", len(pairs), pairs)
	}
	if pairs[0].Resonance <= f.Params().ResonanceBandwidth {
		t.Errorf("pair resonance %v not above bandwidth", pairs[0].Resonance)
	}
}

func TestCoEmergencePairsMutuallyExclusive(t *testing.T) {
	f := newTestField(t, nil)
	// Three attractors that all resonate with each other; greedy matching
	// must use each at most once, so only one pair forms.
	f.CreateAttractor("alpha beta gamma delta one", 0.8)
	f.CreateAttractor("alpha beta gamma delta two", 0.8)
	f.CreateAttractor("alpha beta gamma delta three", 0.8)

	pairs, err := f.IdentifyCoEmergencePairs()
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	used := map[string]int{}
	for _, p := range pairs {
		used[p.A]++
		used[p.B]++
	}
	for id, n := range used {
		if n > 1 {
			t.Errorf("attractor %s used %d times", id, n)
		}
	}
}

func TestFacilitateCoEmergence(t *testing.T) {
	f := newTestField(t, nil)
	a, _ := f.CreateAttractor("coastal tide patterns", 0.8)
	b, _ := f.CreateAttractor("coastal tide", 0.8)

	pairs, err := f.IdentifyCoEmergencePairs()
	if err != nil || len(pairs) != 1 {
		t.Fatalf("setup: pairs=%v err=%v", pairs, err)
	}
	created, err := f.FacilitateCoEmergence(pairs)
	if err != nil {
		t.Fatalf("FacilitateCoEmergence: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("got %d merged attractors, want 1", len(created))
	}

	merged := created[0]
	p := f.Params()
	want := clamp((0.8+0.8)*p.StrengthFactor, 0, p.MaxStrength)
	if !almostEqual(merged.Strength, want) {
		t.Errorf("merged strength %v, want %v", merged.Strength, want)
	}
	if !strings.Contains(merged.Pattern, " + ") {
		t.Errorf("merged pattern %q lacks combined content", merged.Pattern)
	}

	// Sources retained, both linked into the merged attractor.
	if got := len(f.ScanAttractors(0)); got != 3 {
		t.Errorf("got %d attractors, want 3 (sources retained)", got)
	}
	pathways := f.Pathways()
	if len(pathways) != 2 {
		t.Fatalf("got %d pathways, want 2", len(pathways))
	}
	froms := map[string]bool{}
	for _, pw := range pathways {
		if pw.To != merged.ID {
			t.Errorf("pathway target %s, want merged %s", pw.To, merged.ID)
		}
		froms[pw.From] = true
	}
	if !froms[a.ID] || !froms[b.ID] {
		t.Error("pathways do not link both sources")
	}
}

func TestFacilitateUnknownAttractor(t *testing.T) {
	f := newTestField(t, nil)
	_, err := f.FacilitateCoEmergence([]CoEmergencePair{{A: "ghost-a", B: "ghost-b", Resonance: 0.9}})
	if err == nil {
		t.Fatal("expected NotFoundError for unknown pair members")
	}
}

func TestCreateAttractorValidation(t *testing.T) {
	f := newTestField(t, nil)
	if _, err := f.CreateAttractor("", 0.5); err == nil {
		t.Error("empty content accepted")
	}
	a, err := f.CreateAttractor("explicit anchor", 99)
	if err != nil {
		t.Fatal(err)
	}
	if a.Strength != f.Params().MaxStrength {
		t.Errorf("strength %v not clamped to %v", a.Strength, f.Params().MaxStrength)
	}
}

func TestStrengthenPathwaysClampsToOne(t *testing.T) {
	f := newTestField(t, nil)
	a, _ := f.Inject("pathway start", 0.5, nil)
	b, _ := f.Inject("pathway finish", 0.5, nil)
	f.LinkPathway(a, b, 0.9)

	n := f.StrengthenPathways(5)
	if n != 1 {
		t.Fatalf("strengthened %d pathways, want 1", n)
	}
	if got := f.Pathways()[0].Strength; got != 1 {
		t.Errorf("pathway strength %v, want clamp at 1", got)
	}
}

func TestLinkPathwayUnknownEndpoint(t *testing.T) {
	f := newTestField(t, nil)
	a, _ := f.Inject("known endpoint", 0.5, nil)
	if _, err := f.LinkPathway(a, "missing", 0.5); err == nil {
		t.Fatal("expected NotFoundError for unknown endpoint")
	}
}
