package dataset

import "errors"

// Ошибки чтения и разбиения датасета.
var (
	// ErrEmptyDataset — в CSV нет заголовка или строк данных.
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrNonNumeric — значение ячейки не число.
	ErrNonNumeric = errors.New("non-numeric value")

	// ErrRagged — число полей в строке не совпадает с заголовком.
	ErrRagged = errors.New("ragged row")

	// ErrDuplicateColumn — имя колонки встречается дважды.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrTargetNotFound — целевая колонка отсутствует.
	ErrTargetNotFound = errors.New("target column not found")

	// ErrRowOutOfRange — индекс строки вне таблицы.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrInvalidSplit — доля test не оставляет строк в одной из партиций.
	ErrInvalidSplit = errors.New("invalid train/test split")
)
