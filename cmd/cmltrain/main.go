// cmltrain — training job для модели качества вина.
//
// Читает wine_quality.csv из MinIO, обучает random forest и логирует
// параметры, модель, metrics.txt и графики в MLflow.
//
// Использование:
//
//	cmltrain [--json] [--bucket B] [--object O] [--experiment E] [--output-dir D]
//	cmltrain runs list [--limit N]
//	cmltrain runs show ID
//	cmltrain runs watch
//
// Обязательное окружение: MINIO_ACCESS_KEY, MINIO_SECRET_ACCESS_KEY,
// MINIO_URI, MLFLOW_URI. Опционально: DB_URL, RABBITMQ_URL,
// PUSHGATEWAY_URL, LOG_LEVEL, LOG_FORMAT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/cmltrain/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd, err := cli.NewRootCmd(version)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
