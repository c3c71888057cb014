// Package query serves incident list pages with a fixed number of store
// round trips regardless of page size: one index fetch, then one batched
// fetch each for residents, avatars, and read status, joined in memory.
package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"safereport/internal/incident/metrics"
	"safereport/internal/incident/models"
	mmodels "safereport/internal/membership/models"
	id "safereport/pkg/domain"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	urlResolveConcurrency = 8
)

// IncidentIndex is the keyset-ordered incident fetch.
type IncidentIndex interface {
	ListPage(ctx context.Context, scope models.Scope, cursor *models.Cursor, limit int) ([]*models.Incident, error)
}

type ResidentStore interface {
	FindByIDs(ctx context.Context, ids []id.ResidentID) ([]*mmodels.Resident, error)
}

type MediaStore interface {
	FindAvatarsByOwners(ctx context.Context, owners []id.ResidentID) ([]*models.Media, error)
}

type ReadStatusStore interface {
	ReadSet(ctx context.Context, userID id.UserID, incidentIDs []id.IncidentID) (map[id.IncidentID]struct{}, error)
}

// ResidentSummary is the resident data shown next to each list row.
type ResidentSummary struct {
	ID         id.ResidentID `json:"id"`
	Name       string        `json:"name"`
	RoomNumber string        `json:"room_number,omitempty"`
	AvatarURL  string        `json:"avatar_url,omitempty"`
}

// Item is one joined row of a list page.
type Item struct {
	*models.Incident
	Resident *ResidentSummary `json:"resident,omitempty"`
	IsRead   bool             `json:"is_read"`
}

// Page is a window of incidents plus the cursor for the next window.
type Page struct {
	Items      []*Item `json:"items"`
	NextCursor string  `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

type Engine struct {
	incidents IncidentIndex
	residents ResidentStore
	media     MediaStore
	reads     ReadStatusStore
	urls      URLResolver
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithURLResolver(r URLResolver) Option {
	return func(e *Engine) {
		e.urls = r
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func New(incidents IncidentIndex, residents ResidentStore, media MediaStore, reads ReadStatusStore, opts ...Option) (*Engine, error) {
	if incidents == nil {
		return nil, errors.New("incident index is required")
	}
	if residents == nil {
		return nil, errors.New("resident store is required")
	}
	if media == nil {
		return nil, errors.New("media store is required")
	}
	if reads == nil {
		return nil, errors.New("read status store is required")
	}
	e := &Engine{
		incidents: incidents,
		residents: residents,
		media:     media,
		reads:     reads,
		urls:      NewBaseURLResolver(""),
		logger:    slog.Default(),
		tracer:    otel.Tracer("safereport/incident/query"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ClampLimit applies the page default and bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	return min(limit, MaxPageLimit)
}

// Page returns the incidents in scope after cursor. Access to the scope must
// already have been checked by the caller.
func (e *Engine) Page(ctx context.Context, userID id.UserID, scope models.Scope, cursor *models.Cursor, limit int) (*Page, error) {
	limit = ClampLimit(limit)
	ctx, span := e.tracer.Start(ctx, "incidents.page", trace.WithAttributes(
		attribute.String("scope", string(scope.Kind)),
		attribute.Int("limit", limit),
	))
	defer span.End()

	start := time.Now()
	rows, err := e.incidents.ListPage(ctx, scope, cursor, limit+1)
	e.metrics.ObserveStep("index", time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	page := &Page{Items: make([]*Item, 0, min(len(rows), limit))}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}
	if len(rows) == 0 {
		e.metrics.IncPagesServed()
		return page, nil
	}
	if page.HasMore {
		page.NextCursor = models.CursorFor(rows[len(rows)-1]).Encode()
	}

	residentIDs := distinctResidents(rows)
	incidentIDs := make([]id.IncidentID, len(rows))
	for i, r := range rows {
		incidentIDs[i] = r.ID
	}

	var (
		residents map[id.ResidentID]*mmodels.Resident
		avatars   map[id.ResidentID]string
		readSet   map[id.IncidentID]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		residents, err = e.fetchResidents(gctx, residentIDs)
		return err
	})
	g.Go(func() error {
		var err error
		avatars, err = e.fetchAvatars(gctx, residentIDs)
		return err
	})
	g.Go(func() error {
		var err error
		readSet, err = e.fetchReadSet(gctx, userID, incidentIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, inc := range rows {
		item := &Item{Incident: inc}
		if r, ok := residents[inc.ResidentID]; ok {
			item.Resident = &ResidentSummary{
				ID:         r.ID,
				Name:       r.Name,
				RoomNumber: r.RoomNumber,
				AvatarURL:  avatars[r.ID],
			}
		}
		_, item.IsRead = readSet[inc.ID]
		page.Items = append(page.Items, item)
	}
	span.SetAttributes(attribute.Int("rows", len(page.Items)), attribute.Bool("has_more", page.HasMore))
	e.metrics.IncPagesServed()
	return page, nil
}

// GetByResidentPaginated is Page over a single resident.
func (e *Engine) GetByResidentPaginated(ctx context.Context, userID id.UserID, residentID id.ResidentID, limit int, cursor *models.Cursor) (*Page, error) {
	return e.Page(ctx, userID, models.ResidentScope(residentID), cursor, limit)
}

func (e *Engine) fetchResidents(ctx context.Context, ids []id.ResidentID) (map[id.ResidentID]*mmodels.Resident, error) {
	ctx, span := e.tracer.Start(ctx, "incidents.page.residents", trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()
	start := time.Now()
	list, err := e.residents.FindByIDs(ctx, ids)
	e.metrics.ObserveStep("residents", time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := make(map[id.ResidentID]*mmodels.Resident, len(list))
	for _, r := range list {
		out[r.ID] = r
	}
	return out, nil
}

// fetchAvatars loads every avatar in one call and resolves their URLs in
// parallel. A URL that fails to resolve is logged and left blank.
func (e *Engine) fetchAvatars(ctx context.Context, owners []id.ResidentID) (map[id.ResidentID]string, error) {
	ctx, span := e.tracer.Start(ctx, "incidents.page.avatars", trace.WithAttributes(attribute.Int("count", len(owners))))
	defer span.End()
	start := time.Now()
	media, err := e.media.FindAvatarsByOwners(ctx, owners)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	urls := make([]string, len(media))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(urlResolveConcurrency)
	for i, m := range media {
		g.Go(func() error {
			u, err := e.urls.ResolveURL(gctx, m.StorageKey)
			if err != nil {
				e.metrics.IncAvatarFailures()
				e.logger.WarnContext(gctx, "avatar url resolution failed",
					"media_id", m.ID.String(),
					"error", err,
				)
				return nil
			}
			urls[i] = u
			return nil
		})
	}
	_ = g.Wait()
	e.metrics.ObserveStep("avatars", time.Since(start))

	out := make(map[id.ResidentID]string, len(media))
	for i, m := range media {
		if urls[i] != "" {
			out[m.OwnerID] = urls[i]
		}
	}
	return out, nil
}

func (e *Engine) fetchReadSet(ctx context.Context, userID id.UserID, incidentIDs []id.IncidentID) (map[id.IncidentID]struct{}, error) {
	ctx, span := e.tracer.Start(ctx, "incidents.page.read_status")
	defer span.End()
	start := time.Now()
	set, err := e.reads.ReadSet(ctx, userID, incidentIDs)
	e.metrics.ObserveStep("read_status", time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return set, nil
}

func distinctResidents(rows []*models.Incident) []id.ResidentID {
	seen := make(map[id.ResidentID]struct{}, len(rows))
	out := make([]id.ResidentID, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.ResidentID]; ok {
			continue
		}
		seen[r.ResidentID] = struct{}{}
		out = append(out, r.ResidentID)
	}
	return out
}
