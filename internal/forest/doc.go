// Package forest реализует random forest для регрессии.
//
// # Модель
//
// Regressor — ансамбль CART-деревьев с критерием squared error.
// Каждое дерево обучается на bootstrap-выборке строк; предсказание
// ансамбля — среднее предсказаний деревьев.
//
//	rf := forest.NewRegressor(
//	    forest.WithMaxDepth(5),
//	    forest.WithRandomState(44),
//	)
//	if err := rf.Fit(ctx, xTrain, yTrain); err != nil {
//	    return err
//	}
//	score, err := rf.Score(xTest, yTest)
//
// # Детерминизм
//
// Seed каждого дерева выводится из RandomState до запуска горутин,
// поэтому результат не зависит от порядка их выполнения: одинаковые
// данные и RandomState дают одинаковый лес.
//
// # Важность признаков
//
// FeatureImportances — mean decrease in impurity: суммарное уменьшение
// squared error по сплитам каждого признака, нормированное внутри дерева,
// усреднённое по деревьям и нормированное снова. Сумма равна 1.
//
// # Формат модели
//
// MarshalJSON сохраняет гиперпараметры и деревья в виде плоских массивов
// узлов; Load восстанавливает модель, пригодную для Predict.
package forest
