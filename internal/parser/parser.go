// internal/parser/parser.go
package parser

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	failureText           = "The AI response was malformed or truncated. Please try again."
	originalResponseLimit = 1000
)

// Observer is notified of the stage every Parse call ends in
type Observer interface {
	ObserveParse(stage Stage)
}

// Parser turns raw model output into a Response. Repairs run from least
// to most invasive and stop at the first document that decodes.
type Parser struct {
	logger   *slog.Logger
	observer Observer
}

// New creates a Parser. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, observer Observer) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:   logger.With("component", "parser"),
		observer: observer,
	}
}

type attempt struct {
	stage  Stage
	repair func(string) (string, bool)
}

var attempts = []attempt{
	{StageDirect, func(s string) (string, bool) { return s, true }},
	{StageTruncation, repairTruncation},
	{StageEscaping, repairEscaping},
	{StageAggressive, repairAggressive},
}

// Parse never fails: when no attempt yields a document the error payload
// is returned with the first 1000 characters of the input.
func (p *Parser) Parse(raw string) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("parser panic", "panic", r)
			resp = NewErrorResponse(fmt.Sprintf("parser panic: %v", r), raw)
		}
		if p.observer != nil {
			p.observer.ObserveParse(resp.Stage)
		}
	}()

	trimmed := strings.TrimSpace(raw)

	var lastErr error
	for _, a := range attempts {
		candidate, ok := a.repair(trimmed)
		if !ok {
			continue
		}
		parsed, err := decode(candidate)
		if err != nil {
			lastErr = err
			p.logger.Debug("parse attempt failed", "stage", a.stage, "error", err)
			continue
		}

		parsed.Stage = a.stage
		if a.stage != StageDirect {
			p.logger.Warn("recovered malformed response",
				"stage", a.stage,
				"raw_length", len(raw),
				"files", len(parsed.FileTree))
		}
		return parsed
	}

	msg := "empty response"
	if lastErr != nil {
		msg = fmt.Sprintf("failed to parse AI response: %v", lastErr)
	}
	p.logger.Error("unrecoverable response", "raw_length", len(raw), "error", msg)
	return NewErrorResponse(msg, raw)
}

// Parse runs a parser bound to the default logger
func Parse(raw string) *Response {
	return New(nil, nil).Parse(raw)
}
