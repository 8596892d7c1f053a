package domain

import "errors"

// ErrRemote объединяет все отказы Codeforces API: сетевую ошибку,
// не-2xx ответ, битый JSON и статус FAILED. Дальше по коду они не различаются.
var ErrRemote = errors.New("запрос к Codeforces API не удался")

// ErrStorage — отказ хранилища сессии.
var ErrStorage = errors.New("ошибка хранилища сессии")

// ErrNotLoggedIn возвращается, когда в хранилище нет действующей сессии.
var ErrNotLoggedIn = errors.New("пользователь не авторизован")
