package suggest

import (
	"math/rand"

	"cf-suggest/internal/domain"
)

const (
	// DefaultRating подставляется пользователям без рейтинга.
	DefaultRating = 1200
	// DefaultWindow — допустимое отклонение сложности задачи от рейтинга.
	DefaultWindow = 300
	// DefaultCount — размер подборки по умолчанию.
	DefaultCount = 5
)

// EffectiveRating возвращает рейтинг пользователя либо значение по умолчанию.
func EffectiveRating(profile domain.UserProfile) int {
	if profile.Rating > 0 {
		return profile.Rating
	}
	return DefaultRating
}

// BuildSolvedSet сводит историю посылок к множеству ключей решённых задач.
// Решённой считается задача с хотя бы одной посылкой с вердиктом OK;
// более поздние неудачные посылки этого не отменяют.
func BuildSolvedSet(submissions []domain.Submission) domain.SolvedSet {
	solved := make(domain.SolvedSet)
	for _, sub := range submissions {
		if sub.Verdict == domain.VerdictOK {
			solved.Add(sub.Problem.Key())
		}
	}
	return solved
}

// Eligible сообщает, подходит ли задача: у неё есть сложность, она не решена
// и её сложность отличается от рейтинга не больше чем на window.
func Eligible(p domain.Problem, rating int, solved domain.SolvedSet, window int) bool {
	if p.Rating == 0 {
		return false
	}
	if solved.Has(p.Key()) {
		return false
	}
	diff := p.Rating - rating
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

// Filter возвращает подходящие задачи каталога в исходном порядке.
func Filter(catalog []domain.Problem, rating int, solved domain.SolvedSet, window int) []domain.Problem {
	if window <= 0 {
		window = DefaultWindow
	}
	pool := make([]domain.Problem, 0, len(catalog))
	for _, p := range catalog {
		if Eligible(p, rating, solved, window) {
			pool = append(pool, p)
		}
	}
	return pool
}

// Pick — чистая функция подборки: фильтрует каталог, честно перемешивает
// пул перестановкой Фишера–Йетса и отдаёт первые count задач. Если
// подходящих меньше count, возвращаются все — это не ошибка.
func Pick(profile domain.UserProfile, solved domain.SolvedSet, catalog []domain.Problem, count, window int, rng *rand.Rand) domain.SuggestionBatch {
	if count <= 0 {
		count = DefaultCount
	}

	pool := Filter(catalog, EffectiveRating(profile), solved, window)
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > count {
		pool = pool[:count]
	}
	return domain.SuggestionBatch(pool)
}
