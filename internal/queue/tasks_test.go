package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"brand-deck-platform/utils"
)

type fakeDocumentProcessor struct {
	err   error
	calls int
}

func (f *fakeDocumentProcessor) ProcessDocumentByID(ctx context.Context, brandID, documentID string) error {
	f.calls++
	return f.err
}

type fakeDeckExecutor struct {
	err   error
	calls int
	got   primitive.ObjectID
}

func (f *fakeDeckExecutor) ExecuteBuild(ctx context.Context, deckID primitive.ObjectID) error {
	f.calls++
	f.got = deckID
	return f.err
}

type fakeSnapshotCrawler struct {
	err error
	got string
}

func (f *fakeSnapshotCrawler) ExecuteCrawl(ctx context.Context, snapshotID string) error {
	f.got = snapshotID
	return f.err
}

func TestBuildDeckParsesPayload(t *testing.T) {
	deckID := primitive.NewObjectID()
	task, err := NewDeckBuildTask(primitive.NewObjectID().Hex(), deckID.Hex())
	if err != nil {
		t.Fatalf("NewDeckBuildTask failed: %v", err)
	}
	if task.Type() != TaskTypeDeckBuild {
		t.Fatalf("task type = %q, want %q", task.Type(), TaskTypeDeckBuild)
	}

	decks := &fakeDeckExecutor{}
	p := NewTaskProcessor(&fakeDocumentProcessor{}, decks, &fakeSnapshotCrawler{})
	if err := p.BuildDeck(context.Background(), task); err != nil {
		t.Fatalf("BuildDeck failed: %v", err)
	}
	if decks.got != deckID {
		t.Errorf("executor got deck %s, want %s", decks.got.Hex(), deckID.Hex())
	}
}

func TestBuildDeckRetryClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"transient backend failure", fmt.Errorf("model call: %w", utils.ErrBackendUnavailable), false},
		{"already completed", fmt.Errorf("deck is already completed: %w", utils.ErrMalformedInput), true},
		{"deck gone", fmt.Errorf("deck: %w", utils.ErrNotFound), true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			task, err := NewDeckBuildTask(primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())
			if err != nil {
				t.Fatalf("NewDeckBuildTask failed: %v", err)
			}

			p := NewTaskProcessor(&fakeDocumentProcessor{}, &fakeDeckExecutor{err: c.err}, &fakeSnapshotCrawler{})
			got := p.BuildDeck(context.Background(), task)
			if got == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(got, asynq.SkipRetry) != c.skipRetry {
				t.Errorf("SkipRetry = %v, want %v (err: %v)", !c.skipRetry, c.skipRetry, got)
			}
		})
	}
}

func TestBuildDeckInvalidDeckID(t *testing.T) {
	task := asynq.NewTask(TaskTypeDeckBuild, []byte(`{"brand_id":"b","deck_id":"not-hex"}`))

	decks := &fakeDeckExecutor{}
	p := NewTaskProcessor(&fakeDocumentProcessor{}, decks, &fakeSnapshotCrawler{})
	err := p.BuildDeck(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	if decks.calls != 0 {
		t.Error("executor should not run for an unparseable deck id")
	}
}

func TestProcessDocumentBadPayload(t *testing.T) {
	task := asynq.NewTask(TaskTypeDocumentProcess, []byte("{not json"))

	docs := &fakeDocumentProcessor{}
	p := NewTaskProcessor(docs, &fakeDeckExecutor{}, &fakeSnapshotCrawler{})
	err := p.ProcessDocument(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	if docs.calls != 0 {
		t.Error("processor should not run for an unparseable payload")
	}
}

func TestProcessDocumentRetryClassification(t *testing.T) {
	task, err := NewDocumentProcessTask("brand", "doc", "/tmp/doc.pdf")
	if err != nil {
		t.Fatalf("NewDocumentProcessTask failed: %v", err)
	}

	// An unreadable file never becomes readable; a backend outage does.
	p := NewTaskProcessor(&fakeDocumentProcessor{
		err: fmt.Errorf("extract: %w", utils.ErrExtractionParseFailure),
	}, &fakeDeckExecutor{}, &fakeSnapshotCrawler{})
	if got := p.ProcessDocument(context.Background(), task); !errors.Is(got, asynq.SkipRetry) {
		t.Errorf("parse failure: err = %v, want SkipRetry", got)
	}

	p = NewTaskProcessor(&fakeDocumentProcessor{
		err: fmt.Errorf("index: %w", utils.ErrBackendUnavailable),
	}, &fakeDeckExecutor{}, &fakeSnapshotCrawler{})
	if got := p.ProcessDocument(context.Background(), task); got == nil || errors.Is(got, asynq.SkipRetry) {
		t.Errorf("backend outage: err = %v, want retryable error", got)
	}
}

func TestCrawlSnapshotPassesID(t *testing.T) {
	task, err := NewSnapshotCrawlTask("brand", "snap-1", "https://example.com")
	if err != nil {
		t.Fatalf("NewSnapshotCrawlTask failed: %v", err)
	}

	crawls := &fakeSnapshotCrawler{}
	p := NewTaskProcessor(&fakeDocumentProcessor{}, &fakeDeckExecutor{}, crawls)
	if err := p.CrawlSnapshot(context.Background(), task); err != nil {
		t.Fatalf("CrawlSnapshot failed: %v", err)
	}
	if crawls.got != "snap-1" {
		t.Errorf("crawler got snapshot %q, want %q", crawls.got, "snap-1")
	}
}
