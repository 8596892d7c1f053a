package domain

import (
	"sort"
	"strconv"
	"time"
)

// VerdictOK — вердикт принятой посылки.
const VerdictOK = "OK"

// UserProfile описывает пользователя Codeforces из user.info.
// Rating == 0 означает, что у пользователя ещё нет рейтинга.
type UserProfile struct {
	Handle     string `json:"handle"`
	Rating     int    `json:"rating,omitempty"`
	Rank       string `json:"rank,omitempty"`
	TitlePhoto string `json:"titlePhoto,omitempty"`
}

// Problem описывает задачу из problemset.problems.
// Rating == 0 означает, что задаче не присвоена сложность.
type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Rating    int      `json:"rating,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Key возвращает составной ключ задачи: contestId и index без разделителя.
// Схема обязана совпадать со схемой ключей SolvedSet.
func (p Problem) Key() string {
	return strconv.Itoa(p.ContestID) + p.Index
}

// URL возвращает путь страницы задачи на Codeforces.
func (p Problem) URL() string {
	return "/problemset/problem/" + strconv.Itoa(p.ContestID) + "/" + p.Index
}

// Submission описывает одну посылку пользователя из user.status.
type Submission struct {
	Problem Problem `json:"problem"`
	Verdict string  `json:"verdict"`
}

// SolvedSet — множество составных ключей решённых задач.
type SolvedSet map[string]struct{}

// Has сообщает, решена ли задача с данным ключом.
func (s SolvedSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add добавляет ключ в множество.
func (s SolvedSet) Add(key string) {
	s[key] = struct{}{}
}

// Keys возвращает отсортированный список ключей для сериализации.
func (s SolvedSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NewSolvedSet строит множество из списка ключей.
func NewSolvedSet(keys []string) SolvedSet {
	set := make(SolvedSet, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}

// SuggestionBatch — подборка задач, выданная движком подсказок.
type SuggestionBatch []Problem

// Session — единая запись состояния сессии пользователя.
// Version монотонно растёт; запись с меньшей версией хранилище игнорирует.
type Session struct {
	Handle     string
	Profile    UserProfile
	Solved     []string
	LastUpdate time.Time
	LoginTime  time.Time
	Version    int64
}

// SuggestionRecord — сохранённая в истории подборка.
type SuggestionRecord struct {
	ID        string
	Handle    string
	Rating    int
	Problems  []Problem
	CreatedAt time.Time
}
