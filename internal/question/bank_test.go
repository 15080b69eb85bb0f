package question

import (
	"math/rand"
	"testing"
)

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	b, err := NewBank()
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	return b
}

func TestNewBank_LoadsDataset(t *testing.T) {
	b := newTestBank(t)

	if b.Size() == 0 {
		t.Fatal("empty bank")
	}

	choices := b.ByType(TypeChoice)
	calcs := b.ByType(TypeCalculation)
	if len(choices)+len(calcs) != b.Size() {
		t.Errorf("type partition %d+%d != %d", len(choices), len(calcs), b.Size())
	}
	if len(choices) < 2 || len(calcs) < 2 {
		t.Errorf("dataset too small for selection: %d choice, %d calculation", len(choices), len(calcs))
	}

	for _, q := range choices {
		if q.CorrectChoiceID() == "" {
			t.Errorf("choice question %s has no correct choice", q.ID)
		}
	}
	for _, q := range calcs {
		if len(q.SolutionSteps) == 0 {
			t.Errorf("calculation question %s has no steps", q.ID)
		}
	}
}

func TestBank_KnowledgePointDetailsResolved(t *testing.T) {
	b := newTestBank(t)
	for _, q := range b.All() {
		for _, kp := range q.KnowledgePoints {
			if kp.Detail == "" {
				t.Errorf("question %s: knowledge point %q missing detail", q.ID, kp.Outline)
			}
		}
	}
}

func TestBank_Get(t *testing.T) {
	b := newTestBank(t)
	first := b.All()[0]

	got, ok := b.Get(first.ID)
	if !ok || got.ID != first.ID {
		t.Errorf("Get(%s) = %v, %v", first.ID, got.ID, ok)
	}

	if _, ok := b.Get("qu_missing"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestByKnowledgePoints_ExactMatch(t *testing.T) {
	b := newTestBank(t)

	got := b.ByKnowledgePoints([]string{"有理数加法法则"})
	if len(got) == 0 {
		t.Fatal("expected matches for 有理数加法法则")
	}
	seen := make(map[string]bool)
	for _, q := range got {
		if seen[q.ID] {
			t.Errorf("duplicate question %s", q.ID)
		}
		seen[q.ID] = true

		found := false
		for _, kp := range q.KnowledgePoints {
			if kp.Outline == "有理数加法法则" {
				found = true
			}
		}
		if !found {
			t.Errorf("question %s does not carry the requested point", q.ID)
		}
	}

	if got := b.ByKnowledgePoints([]string{"不存在的知识点"}); len(got) != 0 {
		t.Errorf("unknown name matched %d questions", len(got))
	}
	if got := b.ByKnowledgePoints(nil); len(got) != 0 {
		t.Errorf("empty name list matched %d questions", len(got))
	}
}

func TestByKnowledgePoints_MultiNameNoDuplicates(t *testing.T) {
	b := newTestBank(t)

	// 同时命中一道题多个知识点时，该题只出现一次
	got := b.ByKnowledgePoints([]string{"有理数混合运算", "乘方法则运算"})
	seen := make(map[string]bool)
	for _, q := range got {
		if seen[q.ID] {
			t.Fatalf("question %s appeared twice", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestOutlineMatches(t *testing.T) {
	tests := []struct {
		outline string
		name    string
		want    bool
	}{
		{"有理数加法法则", "加法", true},
		{"有理数加法法则", "有理数的加法法则", true},
		{"有理数乘法法则", "乘法", true},
		{"有理数混合运算", "混合运算", true},
		{"科学计数法", "科学记数法", true},
		{"加法运算定律", "乘法运算定律", false},
		{"倒数", "有理数除法法则", false},
		{"有理数加法法则", "", false},
		{"", "加法", false},
	}

	for _, tc := range tests {
		if got := OutlineMatches(tc.outline, tc.name); got != tc.want {
			t.Errorf("OutlineMatches(%q, %q) = %v, want %v", tc.outline, tc.name, got, tc.want)
		}
	}
}

func TestByKnowledgePointsLoose_AcceptsNamingDrift(t *testing.T) {
	b := newTestBank(t)

	exact := b.ByKnowledgePoints([]string{"有理数的加法法则"})
	if len(exact) != 0 {
		t.Fatalf("exact matching should miss the drifted name, got %d", len(exact))
	}

	loose := b.ByKnowledgePointsLoose([]string{"有理数的加法法则"})
	if len(loose) == 0 {
		t.Fatal("loose matching should tolerate the drifted name")
	}
}

func TestRandomByKnowledgePoints_NoDuplicatesAndBounds(t *testing.T) {
	b := newTestBank(t)

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		got := b.RandomByKnowledgePoints(rng, []string{"有理数加法法则", "倒数"}, 2, 2)

		seen := make(map[string]bool)
		nChoice, nCalc := 0, 0
		for _, q := range got {
			if seen[q.ID] {
				t.Fatalf("seed %d: duplicate question %s", seed, q.ID)
			}
			seen[q.ID] = true
			switch q.Type {
			case TypeChoice:
				nChoice++
			case TypeCalculation:
				nCalc++
			}
		}
		if nChoice > 2 || nCalc > 2 {
			t.Fatalf("seed %d: counts exceeded: %d choice, %d calculation", seed, nChoice, nCalc)
		}
	}
}

func TestRandomByKnowledgePoints_ExhaustionReturnsWholePool(t *testing.T) {
	b := newTestBank(t)
	allChoice := len(b.ByType(TypeChoice))
	allCalc := len(b.ByType(TypeCalculation))

	rng := rand.New(rand.NewSource(7))
	got := b.RandomByKnowledgePoints(rng, []string{"有理数加法法则"}, allChoice+50, allCalc+50)

	nChoice, nCalc := 0, 0
	seen := make(map[string]bool)
	for _, q := range got {
		if seen[q.ID] {
			t.Fatalf("duplicate question %s", q.ID)
		}
		seen[q.ID] = true
		if q.Type == TypeChoice {
			nChoice++
		} else {
			nCalc++
		}
	}
	if nChoice != allChoice {
		t.Errorf("choice questions = %d, want the whole pool %d", nChoice, allChoice)
	}
	if nCalc != allCalc {
		t.Errorf("calculation questions = %d, want the whole pool %d", nCalc, allCalc)
	}
}

func TestRandomByKnowledgePoints_PrefersMatching(t *testing.T) {
	b := newTestBank(t)

	// 题库中"倒数"只有一道选择题，请求一道时必须选中它
	for seed := int64(0); seed < 10; seed++ {
		rng := rand.New(rand.NewSource(seed))
		got := b.RandomByKnowledgePoints(rng, []string{"倒数"}, 1, 0)
		if len(got) != 1 {
			t.Fatalf("seed %d: got %d questions, want 1", seed, len(got))
		}
		found := false
		for _, kp := range got[0].KnowledgePoints {
			if kp.Outline == "倒数" {
				found = true
			}
		}
		if !found {
			t.Fatalf("seed %d: selection ignored the matching pool", seed)
		}
	}
}

func TestRandomByKnowledgePoints_Reproducible(t *testing.T) {
	b := newTestBank(t)

	first := b.RandomByKnowledgePoints(rand.New(rand.NewSource(42)), []string{"有理数混合运算"}, 2, 2)
	second := b.RandomByKnowledgePoints(rand.New(rand.NewSource(42)), []string{"有理数混合运算"}, 2, 2)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d differs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestRandomByKnowledgePoints_ZeroCounts(t *testing.T) {
	b := newTestBank(t)
	rng := rand.New(rand.NewSource(1))
	if got := b.RandomByKnowledgePoints(rng, []string{"倒数"}, 0, 0); len(got) != 0 {
		t.Errorf("zero counts returned %d questions", len(got))
	}
}
