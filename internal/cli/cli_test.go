package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/cmltrain/internal/config"
	"github.com/shaiso/cmltrain/internal/domain"
	"github.com/shaiso/cmltrain/internal/mq"
	"github.com/shaiso/cmltrain/internal/repo"
)

type fakeReader struct {
	runs  []domain.Run
	limit int
}

func (f *fakeReader) List(_ context.Context, limit int) ([]domain.Run, error) {
	f.limit = limit
	return f.runs, nil
}

func (f *fakeReader) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

type fakeEvents struct {
	payloads []mq.RunCompletedPayload
}

func (f *fakeEvents) ConsumeRunCompleted(ctx context.Context, handler mq.RunCompletedHandler) error {
	for _, p := range f.payloads {
		msg := &mq.Message{ID: "m", Type: mq.MessageTypeRunCompleted, Timestamp: time.Now()}
		if err := handler(ctx, msg, p); err != nil {
			return err
		}
	}
	return nil
}

func sampleRun() domain.Run {
	run := domain.NewRun("training experiment")
	run.MarkRunning()
	run.TrainRows, run.TestRows = 1279, 320
	run.TrainScore, run.TestScore = 61.23, 40.51
	run.MarkSucceeded()
	return *run
}

// execRuns выполняет `runs <args>` и возвращает stdout.
func execRuns(t *testing.T, reader *fakeReader, events *fakeEvents, jsonMode bool, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRunsCmd(
		func(context.Context) (RunReader, func(), error) { return reader, func() {}, nil },
		func(context.Context) (EventSource, func(), error) { return events, func() {}, nil },
		func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) },
	)
	cmd.SetArgs(args)
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, &buf)

	if err := out.Print([]string{"ID", "STATUS"}, [][]string{{"1", "SUCCEEDED"}}, nil); err != nil {
		t.Fatalf("print: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, separator and row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "--") || !strings.Contains(lines[2], "SUCCEEDED") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestRunsList(t *testing.T) {
	reader := &fakeReader{runs: []domain.Run{sampleRun(), sampleRun()}}

	stdout, err := execRuns(t, reader, nil, false, "list", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.limit != 5 {
		t.Errorf("expected limit 5, got %d", reader.limit)
	}
	if got := strings.Count(stdout, "SUCCEEDED"); got != 2 {
		t.Errorf("expected 2 rows, got %d:\n%s", got, stdout)
	}
	if !strings.Contains(stdout, "61.2%") {
		t.Errorf("scores not formatted:\n%s", stdout)
	}
}

func TestRunsList_JSONEmpty(t *testing.T) {
	stdout, err := execRuns(t, &fakeReader{}, nil, true, "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(stdout) != "[]" {
		t.Errorf("expected empty JSON array, got %q", stdout)
	}
}

func TestRunsShow(t *testing.T) {
	run := sampleRun()
	reader := &fakeReader{runs: []domain.Run{run}}

	stdout, err := execRuns(t, reader, nil, true, "show", run.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got domain.Run
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if got.ID != run.ID || got.TrainRows != 1279 {
		t.Errorf("unexpected run: %+v", got)
	}
}

func TestRunsShow_Errors(t *testing.T) {
	reader := &fakeReader{}

	if _, err := execRuns(t, reader, nil, false, "show", "not-a-uuid"); err == nil {
		t.Error("expected error for invalid id")
	}
	if _, err := execRuns(t, reader, nil, false, "show", uuid.NewString()); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunsWatch(t *testing.T) {
	events := &fakeEvents{payloads: []mq.RunCompletedPayload{
		{RunID: uuid.New(), Experiment: "training experiment", Status: domain.RunStatusSucceeded, TestScore: 40.5},
		{RunID: uuid.New(), Experiment: "training experiment", Status: domain.RunStatusFailed},
	}}

	stdout, err := execRuns(t, &fakeReader{}, events, false, "watch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "SUCCEEDED") || !strings.Contains(stdout, "FAILED") {
		t.Errorf("expected both events:\n%s", stdout)
	}
}

func TestRunsWatch_AnnouncesQueue(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewRunsCmd(
		nil,
		func(context.Context) (EventSource, func(), error) { return &fakeEvents{}, func() {}, nil },
		func() *Output { return NewOutputTo(true, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"watch"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr.String(), "runs.completed") {
		t.Errorf("expected watch notice on stderr, got %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should stay clean for JSON, got %q", stdout.String())
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root, err := NewRootCmd("test")
	if err != nil {
		t.Fatalf("new root: %v", err)
	}

	for _, name := range []string{"train", "runs"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %s", name)
		}
	}
	for _, flag := range []string{"json", "bucket", "object", "experiment", "output-dir"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected flag --%s", flag)
		}
	}
}

func TestRootCmd_TrainRequiresSettings(t *testing.T) {
	for _, key := range []string{config.KeyMinioAccessKey, config.KeyMinioSecretKey, config.KeyMinioURI, config.KeyMLflowURI} {
		t.Setenv(key, "")
	}

	root, err := NewRootCmd("test")
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	root.SetArgs([]string{})

	err = root.ExecuteContext(context.Background())
	if !errors.Is(err, config.ErrMissingSetting) {
		t.Fatalf("expected ErrMissingSetting, got %v", err)
	}
	if !strings.Contains(err.Error(), config.KeyMLflowURI) {
		t.Errorf("error should list missing keys: %v", err)
	}
}
