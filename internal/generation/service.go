// internal/generation/service.go
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"codeweave/internal/database"
	"codeweave/internal/eventhub"
	"codeweave/internal/llm"
	"codeweave/internal/parser"
	"codeweave/internal/versioning"
)

const (
	saveFailureText    = "Your files could not be saved. Please try again."
	modelFailureText   = "An error occurred while generating the result."
	descriptionLimit   = 200
	defaultSettleDelay = 250 * time.Millisecond
	defaultConcurrency = 4
)

// Store is the persistence the pipeline needs
type Store interface {
	versioning.FileStore
	versioning.SnapshotStore
	versioning.MessageStore
	CreateMessage(ctx context.Context, msg *database.Message) (*database.Message, error)
	UpdateMessageBody(ctx context.Context, id, body string) error
	LatestFileVersions(ctx context.Context, projectID string, includeDeleted bool) ([]*database.FileVersion, error)
}

// Options configures a Service. Zero values pick defaults.
type Options struct {
	SettleDelay time.Duration
	Concurrency int
	Logger      *slog.Logger
	Metrics     *Metrics
	Hub         *eventhub.EventHub
	// Model is required only for Generate and HandleProjectMessage
	Model llm.ModelClient
}

// Service runs model replies through parse, materialize and reconcile
type Service struct {
	store        Store
	parser       *parser.Parser
	materializer *versioning.Materializer
	reconciler   *versioning.Reconciler
	model        llm.ModelClient
	hub          *eventhub.EventHub
	metrics      *Metrics
	logger       *slog.Logger

	settleDelay atomic.Int64
}

// NewService wires the pipeline over store
func NewService(store Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	obs := &pipelineObserver{metrics: metrics, hub: opts.Hub}
	s := &Service{
		store:  store,
		parser: parser.New(logger, metrics),
		materializer: versioning.NewMaterializer(store,
			versioning.WithConcurrency(concurrency),
			versioning.WithObserver(obs),
			versioning.WithLogger(logger)),
		reconciler: versioning.NewReconciler(store, store, store, logger, obs),
		model:      opts.Model,
		hub:        opts.Hub,
		metrics:    metrics,
		logger:     logger.With("component", "generation"),
	}

	delay := opts.SettleDelay
	if delay == 0 {
		delay = defaultSettleDelay
	}
	s.SetSettleDelay(delay)
	return s
}

// SetSettleDelay changes the pause between writing files and reconciling
func (s *Service) SetSettleDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.settleDelay.Store(int64(d))
}

// SettleDelay returns the current settle delay
func (s *Service) SettleDelay() time.Duration {
	return time.Duration(s.settleDelay.Load())
}

// HandleGeneration processes one raw model reply for a project and
// returns the client payload. Only validation failures are returned as
// errors; parse and persistence failures become an error payload. With an
// empty messageID files are written but no project version is created.
func (s *Service) HandleGeneration(ctx context.Context, raw, projectID, messageID string) (string, error) {
	if err := check(GenerationRequest{ProjectID: projectID, MessageID: messageID}); err != nil {
		return "", err
	}

	start := time.Now()
	defer func() {
		s.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	}()

	resp := s.parser.Parse(raw)
	if resp.Error {
		return resp.Payload(), nil
	}
	if !resp.HasFileTree() {
		return resp.Payload(), nil
	}

	// writes run to completion even if the caller goes away
	persistCtx := context.WithoutCancel(ctx)

	result := s.materializer.Materialize(persistCtx, resp.FileTree, projectID, messageID)
	if result.WrittenCount == 0 {
		if len(result.Failed) > 0 {
			s.logger.Error("no files saved", "project", projectID, "message", messageID, "failed", len(result.Failed))
			return storeFailure(fmt.Sprintf("failed to save files: %s", result.Failed[0].Reason)), nil
		}
		s.logger.Warn("file tree had no usable entries", "project", projectID, "message", messageID, "skipped", len(result.Skipped))
		return resp.Payload(), nil
	}

	if messageID == "" {
		s.logger.Debug("no message id, skipping reconciliation", "project", projectID, "written", result.WrittenCount)
		return resp.Payload(), nil
	}

	s.settle(ctx)

	if _, err := s.reconciler.Reconcile(persistCtx, projectID, messageID, describe(resp.Text, messageID)); err != nil {
		s.logger.Error("reconciliation failed", "project", projectID, "message", messageID, "error", err)
		return storeFailure(fmt.Sprintf("failed to create project version: %v", err)), nil
	}

	return resp.Payload(), nil
}

// Generate asks the model for a reply to prompt, with the project's
// current files as context, and runs it through HandleGeneration
func (s *Service) Generate(ctx context.Context, projectID, messageID, prompt string) (string, error) {
	if err := check(PromptRequest{ProjectID: projectID, MessageID: messageID, Prompt: prompt}); err != nil {
		return "", err
	}
	if s.model == nil {
		return "", fmt.Errorf("no model client configured")
	}

	fullPrompt, err := s.buildPrompt(ctx, projectID, prompt)
	if err != nil {
		return "", err
	}

	raw, err := s.model.Generate(ctx, fullPrompt)
	if err != nil {
		s.logger.Error("model call failed", "project", projectID, "error", err)
		return (&parser.Response{
			Text:         modelFailureText,
			Error:        true,
			ErrorMessage: err.Error(),
		}).Payload(), nil
	}
	return s.HandleGeneration(ctx, raw, projectID, messageID)
}

// ChatResult is what a posted chat message produced
type ChatResult struct {
	UserMessage *database.Message `json:"userMessage"`
	AIMessage   *database.Message `json:"aiMessage,omitempty"`
}

// HandleProjectMessage stores a chat message. A message mentioning @ai
// also gets an AI reply: a placeholder message is stored first so its ID
// can scope the file writes, then its body is replaced with the payload.
func (s *Service) HandleProjectMessage(ctx context.Context, projectID, sender, message string) (*ChatResult, error) {
	if err := check(ChatRequest{ProjectID: projectID, Sender: sender, Message: message}); err != nil {
		return nil, err
	}

	userMsg, err := s.store.CreateMessage(ctx, &database.Message{ProjectID: projectID, Sender: sender, Body: message})
	if err != nil {
		return nil, err
	}
	s.publishMessage(userMsg)
	result := &ChatResult{UserMessage: userMsg}

	if !strings.Contains(message, "@ai") {
		return result, nil
	}

	prompt := strings.TrimSpace(strings.Replace(message, "@ai", " ", 1))
	aiMsg, err := s.store.CreateMessage(ctx, &database.Message{ProjectID: projectID, Sender: AISender, Body: processingText})
	if err != nil {
		return nil, err
	}

	var payload string
	if prompt == "" {
		payload = (&parser.Response{Text: "Ask me something after @ai."}).Payload()
	} else {
		payload, err = s.Generate(ctx, projectID, aiMsg.ID, prompt)
		if err != nil {
			payload = (&parser.Response{Text: modelFailureText, Error: true, ErrorMessage: err.Error()}).Payload()
		}
	}

	if err := s.store.UpdateMessageBody(context.WithoutCancel(ctx), aiMsg.ID, payload); err != nil {
		return nil, err
	}
	aiMsg.Body = payload
	s.publishMessage(aiMsg)

	result.AIMessage = aiMsg
	return result, nil
}

// AISender is the sender name of model replies
const AISender = "AI"

const processingText = "Processing..."

func (s *Service) buildPrompt(ctx context.Context, projectID, prompt string) (string, error) {
	files, err := s.store.LatestFileVersions(ctx, projectID, false)
	if err != nil {
		return "", fmt.Errorf("load project files: %w", err)
	}
	return BuildPrompt(files, prompt), nil
}

// BuildPrompt prefixes prompt with the current project files
func BuildPrompt(files []*database.FileVersion, prompt string) string {
	if len(files) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString("EXISTING PROJECT FILES:\n")
	for _, fv := range files {
		fmt.Fprintf(&b, "\n--- %s (version %d) ---\n%s\n", fv.FilePath, fv.Version, fv.Content)
	}
	b.WriteString("\nUSER REQUEST:\n")
	b.WriteString(prompt)
	return b.String()
}

func (s *Service) settle(ctx context.Context) {
	d := s.SettleDelay()
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *Service) publishMessage(m *database.Message) {
	if s.hub == nil {
		return
	}
	s.hub.EmitProjectMessage(eventhub.ProjectMessageEvent{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Sender:    m.Sender,
		Message:   m.Body,
		Timestamp: m.Timestamp,
	})
}

func storeFailure(msg string) string {
	return (&parser.Response{Text: saveFailureText, Error: true, ErrorMessage: msg}).Payload()
}

// describe picks the project version description for a reply
func describe(text, messageID string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Generated by AI for message " + messageID
	}
	if utf8.RuneCountInString(text) <= descriptionLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:descriptionLimit-3]) + "..."
}

// pipelineObserver feeds metrics and client events from the pipeline
type pipelineObserver struct {
	metrics *Metrics
	hub     *eventhub.EventHub
}

func (o *pipelineObserver) FileVersionWritten(fv *database.FileVersion) {
	o.metrics.observeFile(fv)
	if o.hub != nil {
		o.hub.EmitFileVersionCreated(eventhub.FileVersionCreatedEvent{
			ID:        fv.ID,
			ProjectID: fv.ProjectID,
			FilePath:  fv.FilePath,
			Version:   fv.Version,
			IsDeleted: fv.IsDeleted,
			MessageID: fv.MessageID,
		})
	}
}

func (o *pipelineObserver) EntrySkipped(string, string, string) {
	o.metrics.FilesSkippedTotal.Inc()
}

func (o *pipelineObserver) ProjectReconciled(projectID string, outcome versioning.Outcome, pv *database.ProjectVersion) {
	o.metrics.observeReconcile(outcome)
	if outcome == versioning.OutcomeCreated && o.hub != nil {
		o.hub.EmitProjectVersionCreated(eventhub.ProjectVersionCreatedEvent{
			ID:          pv.ID,
			ProjectID:   projectID,
			Version:     pv.Version,
			Description: pv.Description,
			FilesCount:  pv.FilesCount,
			MessageID:   pv.MessageID,
		})
	}
}
