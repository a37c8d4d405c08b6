package services

import (
	"context"
	"fmt"
	"log/slog"

	"deplacements/internal/amqp"
	"deplacements/internal/core"
	"deplacements/internal/sheets"
	"deplacements/internal/valuation"
)

type (
	// ActiveUserLister lists the users a company recap covers.
	ActiveUserLister interface {
		FetchActiveUsers(ctx context.Context) ([]core.User, error)
	}

	// RecapPublisher queues a recap for asynchronous computation.
	RecapPublisher interface {
		PublishRecapRequest(ctx context.Context, year, month int) (*amqp.RecapRequestMessage, error)
	}
)

// RecapResult describes what happened to a recap request.
type RecapResult struct {
	RequestID string `json:"requestId,omitempty"`
	Queued    bool   `json:"queued"`
	Ref       string `json:"ref,omitempty"`
	Rows      int    `json:"rows"`
}

// RecapService computes company recaps and hands them to the recap writer,
// either inline or through the queue when a publisher is configured.
type RecapService struct {
	users      ActiveUserLister
	aggregator *valuation.Aggregator
	writer     sheets.RecapWriter
	publisher  RecapPublisher
}

func NewRecapService(users ActiveUserLister, aggregator *valuation.Aggregator, writer sheets.RecapWriter, publisher RecapPublisher) *RecapService {
	return &RecapService{
		users:      users,
		aggregator: aggregator,
		writer:     writer,
		publisher:  publisher,
	}
}

// Compute returns the recap rows without writing them anywhere.
func (s *RecapService) Compute(ctx context.Context, year, month int) ([]valuation.RecapRow, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return nil, err
	}
	users, err := s.users.FetchActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch active users: %w", err)
	}
	return s.aggregator.ComputeCompanyMonthlyRecap(ctx, year, month, users)
}

// Generate computes the recap and writes it with the configured writer.
func (s *RecapService) Generate(ctx context.Context, year, month int) (RecapResult, error) {
	rows, err := s.Compute(ctx, year, month)
	if err != nil {
		return RecapResult{}, err
	}
	ref, err := s.writer.WriteMonthlyRecap(ctx, year, month, rows)
	if err != nil {
		return RecapResult{}, fmt.Errorf("write recap: %w", err)
	}

	slog.InfoContext(ctx, "Recap generated",
		"year", year,
		"month", month,
		"rows", len(rows),
		"ref", ref)

	return RecapResult{Ref: ref, Rows: len(rows)}, nil
}

// Request queues the recap when a publisher is available and falls back to
// generating it inline otherwise.
func (s *RecapService) Request(ctx context.Context, year, month int) (RecapResult, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return RecapResult{}, err
	}
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, generating recap inline")
		return s.Generate(ctx, year, month)
	}

	msg, err := s.publisher.PublishRecapRequest(ctx, year, month)
	if err != nil {
		return RecapResult{}, fmt.Errorf("publish recap request: %w", err)
	}
	return RecapResult{RequestID: msg.RequestID, Queued: true}, nil
}
