package app

import (
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"hark/apps/backend/internal/analyzer"
	"hark/apps/backend/internal/sink"
	"hark/apps/backend/internal/source"
)

// Components are the registries a processor resolves workflow configs against.
type Components struct {
	Sources   *source.Registry
	Analyzers *analyzer.Registry
	Sinks     *sink.Registry
}

// ComponentDeps carries the collaborators components need. A nil collaborator
// leaves the components that need it unregistered, and workflows using them
// fail with a configuration error.
type ComponentDeps struct {
	Model      analyzer.TextModel
	Embedder   analyzer.Embedder
	Runner     source.JobRunner
	Publisher  sink.Publisher
	Gorm       *gorm.DB
	Index      sink.RecordIndex
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewComponents(d ComponentDeps) *Components {
	var (
		srcOpts  []source.Option
		sinkOpts []sink.Option
	)
	if d.HTTPClient != nil {
		srcOpts = append(srcOpts, source.WithHTTPClient(d.HTTPClient))
		sinkOpts = append(sinkOpts, sink.WithHTTPClient(d.HTTPClient))
	}

	sources := source.NewRegistry(
		source.NewAppStore(srcOpts...),
		source.NewReddit(srcOpts...),
		source.NewTwitter(srcOpts...),
	)
	if d.Runner != nil {
		sources.Register(source.NewCrawler(d.Runner))
	}

	analyzers := analyzer.NewRegistry(analyzer.NewDummy(), analyzer.NewPII())
	if d.Model != nil {
		analyzers.Register(analyzer.NewSentiment(d.Model))
		analyzers.Register(analyzer.NewClassification(d.Model))
		analyzers.Register(analyzer.NewNER(d.Model))
		analyzers.Register(analyzer.NewTranslator(d.Model))
		analyzers.Register(analyzer.NewTopicModel(d.Model))
	}
	if d.Embedder != nil {
		analyzers.Register(analyzer.NewEmbedding(d.Embedder))
	}
	analyzer.NewChain(analyzers)

	sinks := sink.NewRegistry(
		sink.NewLogger(d.Logger),
		sink.NewWebhook(sinkOpts...),
		sink.NewSlack(sinkOpts...),
		sink.NewJira(sinkOpts...),
	)
	if d.Publisher != nil {
		sinks.Register(sink.NewQueue(d.Publisher))
	}
	if d.Gorm != nil {
		sinks.Register(sink.NewStore(d.Gorm))
	}
	if d.Index != nil {
		sinks.Register(sink.NewWeaviate(d.Index))
	}

	return &Components{Sources: sources, Analyzers: analyzers, Sinks: sinks}
}
