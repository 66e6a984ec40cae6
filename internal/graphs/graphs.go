// Package graphs adds graph widgets to a user's graph pages.
package graphs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	minSize = 1
	maxSize = 16
)

// sizeText matches a whole number, optionally written with a zero fraction
var sizeText = regexp.MustCompile(`^([0-9]+)(\.0+)?$`)

// ErrPageNotFound is returned when the page is missing or not the user's
var ErrPageNotFound = errors.New("graph page not found")

// DefaultTypes are the graph types a page may hold
var DefaultTypes = []string{
	"btc_equivalent", "btc_equivalent_graph", "btc_equivalent_stacked", "btc_equivalent_proportional",
	"composition_btc_pie", "composition_ltc_pie", "composition_usd_pie",
	"balances_table", "balances_offset_table", "total_converted_table", "crypto_converted_table",
	"ticker_matrix", "mining_hashrate_btc", "mining_hashrate_ltc", "external_historical",
	"calculator", "linebreak", "heading", "news",
}

// PageError reports a page the user cannot add to
type PageError struct {
	PageID int64
}

func (e *PageError) Error() string {
	return fmt.Sprintf("Cannot find page %d", e.PageID)
}

func (e *PageError) Unwrap() error {
	return ErrPageNotFound
}

// ValidationError rejects one field of a new graph
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Page is a graph page
type Page struct {
	ID        int64  `db:"id"`
	UserID    int64  `db:"user_id"`
	Title     string `db:"title"`
	IsRemoved bool   `db:"is_removed"`
}

// Graph is a widget placed on a page
type Graph struct {
	ID        int64     `db:"id"`
	PageID    int64     `db:"page_id"`
	PageOrder int       `db:"page_order"`
	GraphType string    `db:"graph_type"`
	Width     int       `db:"width"`
	Height    int       `db:"height"`
	IsRemoved bool      `db:"is_removed"`
	CreatedAt time.Time `db:"created_at"`
}

// NewGraph is the raw input of AddGraph. Sizes arrive as text from forms.
type NewGraph struct {
	PageID    int64
	GraphType string
	Width     string
	Height    string
}

// Service manages graphs
type Service struct {
	db     *sqlx.DB
	types  []string
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service. Empty types means DefaultTypes.
func NewService(db *sqlx.DB, types []string, now func() time.Time, logger *slog.Logger) *Service {
	if len(types) == 0 {
		types = DefaultTypes
	}
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, types: types, now: now, logger: logger}
}

// Types lists the accepted graph types
func (s *Service) Types() []string {
	return slices.Clone(s.types)
}

// AddGraph appends a graph to the end of one of the user's pages
func (s *Service) AddGraph(ctx context.Context, userID int64, input NewGraph) (*Graph, error) {
	if _, err := s.getPage(ctx, userID, input.PageID); err != nil {
		return nil, err
	}

	if !slices.Contains(s.types, input.GraphType) {
		return nil, &ValidationError{Field: "graph_type", Message: fmt.Sprintf("Invalid graph type '%s'", input.GraphType)}
	}
	width, ok := parseSize(input.Width)
	if !ok {
		return nil, &ValidationError{Field: "width", Message: fmt.Sprintf("Invalid width '%s'", input.Width)}
	}
	height, ok := parseSize(input.Height)
	if !ok {
		return nil, &ValidationError{Field: "height", Message: fmt.Sprintf("Invalid height '%s'", input.Height)}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// removed graphs still hold their order so a restore keeps its place
	var highest sql.NullInt64
	if err := tx.GetContext(ctx, &highest, tx.Rebind(`SELECT MAX(page_order) FROM graphs WHERE page_id = ?`), input.PageID); err != nil {
		return nil, fmt.Errorf("failed to get highest page order: %w", err)
	}
	order := 1
	if highest.Valid {
		order = int(highest.Int64) + 1
	}

	var id int64
	err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO graphs (page_id, page_order, graph_type, width, height, is_removed, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?) RETURNING id`),
		input.PageID, order, input.GraphType, width, height, s.now().UTC(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert graph: %w", err)
	}

	var graph Graph
	if err := tx.GetContext(ctx, &graph, tx.Rebind(`SELECT `+graphColumns+` FROM graphs WHERE id = ?`), id); err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit graph: %w", err)
	}

	s.logger.Info("Graph added",
		slog.Int64("graph_id", graph.ID),
		slog.Int64("page_id", graph.PageID),
		slog.String("graph_type", graph.GraphType),
		slog.Int("page_order", graph.PageOrder),
	)
	return &graph, nil
}

// ListGraphs returns the visible graphs of one of the user's pages in page order
func (s *Service) ListGraphs(ctx context.Context, userID, pageID int64) ([]Graph, error) {
	if _, err := s.getPage(ctx, userID, pageID); err != nil {
		return nil, err
	}

	graphs := []Graph{}
	query := s.db.Rebind(`SELECT ` + graphColumns + ` FROM graphs WHERE page_id = ? AND is_removed = FALSE ORDER BY page_order ASC, id ASC`)
	if err := s.db.SelectContext(ctx, &graphs, query, pageID); err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	return graphs, nil
}

const graphColumns = `id, page_id, page_order, graph_type, width, height, is_removed, created_at`

func (s *Service) getPage(ctx context.Context, userID, pageID int64) (*Page, error) {
	var page Page
	query := s.db.Rebind(`SELECT id, user_id, title, is_removed FROM graph_pages WHERE user_id = ? AND id = ?`)
	if err := s.db.GetContext(ctx, &page, query, userID, pageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &PageError{PageID: pageID}
		}
		return nil, fmt.Errorf("failed to get graph page: %w", err)
	}
	return &page, nil
}

// parseSize accepts whole numbers in range, also written as "4.0"
func parseSize(raw string) (int, bool) {
	m := sizeText.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	value, err := strconv.Atoi(m[1])
	if err != nil || value < minSize || value > maxSize {
		return 0, false
	}
	return value, true
}
