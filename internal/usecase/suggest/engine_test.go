package suggest

import (
	"math/rand"
	"sort"
	"strconv"
	"testing"

	"cf-suggest/internal/domain"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func makeCatalog(ratings ...int) []domain.Problem {
	catalog := make([]domain.Problem, 0, len(ratings))
	for i, rating := range ratings {
		catalog = append(catalog, domain.Problem{
			ContestID: i + 1,
			Index:     "A",
			Name:      "Задача " + strconv.Itoa(i+1),
			Rating:    rating,
		})
	}
	return catalog
}

func keysOf(batch domain.SuggestionBatch) []string {
	keys := make([]string, 0, len(batch))
	for _, p := range batch {
		keys = append(keys, p.Key())
	}
	sort.Strings(keys)
	return keys
}

func TestExactRatingMatchIncluded(t *testing.T) {
	profile := domain.UserProfile{Handle: "tourist", Rating: 3900}
	catalog := []domain.Problem{{ContestID: 1, Index: "A", Rating: 3900}}

	batch := Pick(profile, domain.SolvedSet{}, catalog, 5, DefaultWindow, testRand())
	if len(batch) != 1 {
		t.Fatalf("ожидали 1 задачу, получили %d", len(batch))
	}
	if batch[0].Key() != "1A" {
		t.Fatalf("ожидали задачу 1A, получили %s", batch[0].Key())
	}
}

func TestDefaultRatingForUnratedUser(t *testing.T) {
	profile := domain.UserProfile{Handle: "x"}
	if got := EffectiveRating(profile); got != 1200 {
		t.Fatalf("ожидали рейтинг по умолчанию 1200, получили %d", got)
	}

	catalog := makeCatalog(1600, 1400)
	batch := Pick(profile, domain.SolvedSet{}, catalog, 5, DefaultWindow, testRand())
	if len(batch) != 1 {
		t.Fatalf("ожидали 1 задачу, получили %d", len(batch))
	}
	if batch[0].Rating != 1400 {
		t.Fatalf("задача 1600 (разница 400) должна быть исключена, 1400 — включена")
	}
}

func TestSolvedProblemExcluded(t *testing.T) {
	profile := domain.UserProfile{Handle: "x", Rating: 1000}
	solved := domain.NewSolvedSet([]string{"1A"})
	catalog := []domain.Problem{
		{ContestID: 1, Index: "A", Rating: 1000},
		{ContestID: 2, Index: "A", Rating: 1000},
	}

	batch := Pick(profile, solved, catalog, 5, DefaultWindow, testRand())
	if len(batch) != 1 {
		t.Fatalf("ожидали 1 задачу, получили %d", len(batch))
	}
	if batch[0].Key() == "1A" {
		t.Fatalf("решённая задача попала в подборку")
	}
}

func TestUnratedProblemExcluded(t *testing.T) {
	profile := domain.UserProfile{Handle: "x", Rating: 1200}
	catalog := []domain.Problem{{ContestID: 1, Index: "A"}}

	batch := Pick(profile, domain.SolvedSet{}, catalog, 5, DefaultWindow, testRand())
	if len(batch) != 0 {
		t.Fatalf("задача без сложности должна быть исключена всегда")
	}
}

func TestOutputLengthIsMinOfCountAndPool(t *testing.T) {
	profile := domain.UserProfile{Handle: "x", Rating: 1500}
	catalog := makeCatalog(1400, 1450, 1500, 1550, 1600, 1650, 1700)

	cases := []struct {
		count int
		want  int
	}{
		{3, 3},
		{7, 7},
		{10, 7},
		{0, 5}, // count по умолчанию
	}
	for _, tc := range cases {
		batch := Pick(profile, domain.SolvedSet{}, catalog, tc.count, DefaultWindow, testRand())
		if len(batch) != tc.want {
			t.Fatalf("count=%d: ожидали %d задач, получили %d", tc.count, tc.want, len(batch))
		}
	}
}

func TestBatchNeverContainsSolvedOrOutOfWindow(t *testing.T) {
	profile := domain.UserProfile{Handle: "x", Rating: 1500}
	solved := domain.NewSolvedSet([]string{"2A", "5A"})
	catalog := makeCatalog(800, 1200, 1300, 1500, 1790, 1800, 1801, 2500, 0)

	batch := Pick(profile, solved, catalog, 100, DefaultWindow, testRand())
	for _, p := range batch {
		if solved.Has(p.Key()) {
			t.Fatalf("решённая задача %s в подборке", p.Key())
		}
		if p.Rating == 0 {
			t.Fatalf("задача без сложности в подборке")
		}
		diff := p.Rating - 1500
		if diff < 0 {
			diff = -diff
		}
		if diff > DefaultWindow {
			t.Fatalf("задача %s со сложностью %d вне окна", p.Key(), p.Rating)
		}
	}
}

func TestFilterIdempotent(t *testing.T) {
	solved := domain.NewSolvedSet([]string{"3A"})
	catalog := makeCatalog(1200, 1300, 1400, 1900, 0)

	once := Filter(catalog, 1200, solved, DefaultWindow)
	twice := Filter(once, 1200, solved, DefaultWindow)
	if len(once) != len(twice) {
		t.Fatalf("повторная фильтрация изменила результат: %d != %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Key() != twice[i].Key() {
			t.Fatalf("повторная фильтрация изменила состав")
		}
	}
}

func TestSeedChangesOrderNotSet(t *testing.T) {
	profile := domain.UserProfile{Handle: "x", Rating: 1500}
	catalog := makeCatalog(1400, 1450, 1500, 1550, 1600)

	first := Pick(profile, domain.SolvedSet{}, catalog, 100, DefaultWindow, rand.New(rand.NewSource(1)))
	second := Pick(profile, domain.SolvedSet{}, catalog, 100, DefaultWindow, rand.New(rand.NewSource(2)))

	a, b := keysOf(first), keysOf(second)
	if len(a) != len(b) {
		t.Fatalf("состав подборки зависит от seed: %v != %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("состав подборки зависит от seed: %v != %v", a, b)
		}
	}
}

func TestSameSeedSameOrder(t *testing.T) {
	profile := domain.UserProfile{Handle: "x", Rating: 1500}
	catalog := makeCatalog(1400, 1450, 1500, 1550, 1600)

	first := Pick(profile, domain.SolvedSet{}, catalog, 100, DefaultWindow, rand.New(rand.NewSource(9)))
	second := Pick(profile, domain.SolvedSet{}, catalog, 100, DefaultWindow, rand.New(rand.NewSource(9)))
	for i := range first {
		if first[i].Key() != second[i].Key() {
			t.Fatalf("одинаковый seed должен давать одинаковый порядок")
		}
	}
}

func TestBuildSolvedSet(t *testing.T) {
	submissions := []domain.Submission{
		{Problem: domain.Problem{ContestID: 1, Index: "A"}, Verdict: "WRONG_ANSWER"},
		{Problem: domain.Problem{ContestID: 1, Index: "A"}, Verdict: domain.VerdictOK},
		{Problem: domain.Problem{ContestID: 2, Index: "B"}, Verdict: "TIME_LIMIT_EXCEEDED"},
		{Problem: domain.Problem{ContestID: 1, Index: "A"}, Verdict: domain.VerdictOK},
	}
	solved := BuildSolvedSet(submissions)
	if len(solved) != 1 {
		t.Fatalf("ожидали 1 решённую задачу, получили %d", len(solved))
	}
	if !solved.Has("1A") {
		t.Fatalf("задача 1A должна считаться решённой")
	}
	if solved.Has("2B") {
		t.Fatalf("задача 2B без вердикта OK не должна считаться решённой")
	}
}
