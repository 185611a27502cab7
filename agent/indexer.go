package agent

import (
	"context"
	"sync/atomic"

	"github.com/m4xw311/mallard/storage"
	"go.uber.org/zap"
)

// IndexerCollection holds the indexing marker and project summaries.
const IndexerCollection = "indexer"

// ExplorePrompt is sent on the first interactive start in a project.
const ExplorePrompt = "Explore the project codebase. Use directory reading tools, find the most interesting paths and explore them in detail, including reading files. " +
	"Look for significant files in the code that may relate to the type of project (go.mod, package.json, composer.json, Cargo.toml, etc.). " +
	"After scanning, give a short summary about the project"

// IndexRecord is one entry of the indexer collection: either the marker
// {"indexed":true} or {"type":"summary","content":...}.
type IndexRecord struct {
	Indexed bool   `json:"indexed,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
}

const summaryType = "summary"

// Indexer runs the one-time project exploration.
type Indexer struct {
	col        *storage.Collection[IndexRecord]
	inProgress atomic.Bool
	logger     *zap.Logger
}

func NewIndexer(s *storage.Storage, logger *zap.Logger) (*Indexer, error) {
	col, err := storage.Open[IndexRecord](s, IndexerCollection, logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{col: col, logger: logger}, nil
}

func (ix *Indexer) IsIndexed() (bool, error) {
	found, err := ix.col.FindBy(func(r IndexRecord) bool { return r.Indexed })
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (ix *Indexer) MarkIndexed() error {
	return ix.col.Add(IndexRecord{Indexed: true})
}

// InProgress reports whether Run is currently exploring. Presentation
// layers use it to keep the exploration output off the screen.
func (ix *Indexer) InProgress() bool {
	return ix.inProgress.Load()
}

func (ix *Indexer) AddSummary(content string) error {
	return ix.col.Add(IndexRecord{Type: summaryType, Content: content})
}

// Summaries returns every stored project summary, oldest first.
func (ix *Indexer) Summaries() ([]string, error) {
	records, err := ix.col.FindBy(func(r IndexRecord) bool { return r.Type == summaryType })
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Content)
	}
	return out, nil
}

// Run explores the project once through a and stores the answer as a
// summary. The project is marked indexed even when the exploration fails,
// so a broken backend does not trigger it on every start; the error is
// still returned.
func (ix *Indexer) Run(ctx context.Context, a *Agent) error {
	ix.inProgress.Store(true)
	result, callErr := a.Call(ctx, ExplorePrompt)
	ix.inProgress.Store(false)

	if callErr != nil {
		ix.logger.Error("project exploration failed", zap.Error(callErr))
	} else if result.HasText() {
		if err := ix.AddSummary(result.Text); err != nil {
			return err
		}
	}
	if err := ix.MarkIndexed(); err != nil {
		return err
	}
	return callErr
}
