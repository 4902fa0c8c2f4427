package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/cmltrain/internal/domain"
	"github.com/shaiso/cmltrain/internal/mq"
)

// RunReader читает историю запусков.
type RunReader interface {
	List(ctx context.Context, limit int) ([]domain.Run, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// EventSource отдаёт события run.completed.
type EventSource interface {
	ConsumeRunCompleted(ctx context.Context, handler mq.RunCompletedHandler) error
}

// ReaderFunc открывает историю запусков; close освобождает ресурсы.
type ReaderFunc func(ctx context.Context) (reader RunReader, close func(), err error)

// EventsFunc подключается к очереди событий.
type EventsFunc func(ctx context.Context) (source EventSource, close func(), err error)

// NewRunsCmd создаёт группу команд для истории запусков.
func NewRunsCmd(readerFn ReaderFunc, eventsFn EventsFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect training runs",
	}

	cmd.AddCommand(
		newRunsListCmd(readerFn, outputFn),
		newRunsShowCmd(readerFn, outputFn),
		newRunsWatchCmd(eventsFn, outputFn),
	)

	return cmd
}

func newRunsListCmd(readerFn ReaderFunc, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, closeFn, err := readerFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := reader.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return outputFn().PrintRuns(runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")

	return cmd
}

func newRunsShowCmd(readerFn ReaderFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			reader, closeFn, err := readerFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := reader.GetByID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("run %s: %w", id, err)
			}
			return outputFn().PrintRun(run)
		},
	}
}

func newRunsWatchCmd(eventsFn EventsFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print run.completed events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, closeFn, err := eventsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out := outputFn()
			out.Success(fmt.Sprintf("Watching %s events on queue %s (Ctrl+C to stop)", mq.MessageTypeRunCompleted, mq.QueueRunsCompleted))
			headers := []string{"RUN_ID", "EXPERIMENT", "STATUS", "TRAIN_SCORE", "TEST_SCORE", "AT"}

			err = source.ConsumeRunCompleted(cmd.Context(), func(_ context.Context, msg *mq.Message, p mq.RunCompletedPayload) error {
				row := []string{
					p.RunID.String(),
					p.Experiment,
					string(p.Status),
					formatScore(p.TrainScore),
					formatScore(p.TestScore),
					msg.Timestamp.Format(time.RFC3339),
				}
				return out.Print(headers, [][]string{row}, p)
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
}
