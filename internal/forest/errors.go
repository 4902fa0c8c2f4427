package forest

import "errors"

// Ошибки обучения и инференса.
var (
	// ErrEmptyInput — пустая обучающая выборка.
	ErrEmptyInput = errors.New("empty training input")

	// ErrShapeMismatch — число строк X не совпадает с длиной y или строки разной длины.
	ErrShapeMismatch = errors.New("input shape mismatch")

	// ErrFeatureMismatch — число признаков при предсказании отличается от обучения.
	ErrFeatureMismatch = errors.New("feature count mismatch")

	// ErrNotFitted — модель ещё не обучена.
	ErrNotFitted = errors.New("model is not fitted")

	// ErrInvalidParams — некорректные гиперпараметры.
	ErrInvalidParams = errors.New("invalid hyperparameters")
)
