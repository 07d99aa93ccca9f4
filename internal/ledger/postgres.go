package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scrimworks/vendorvet/internal/model"
)

// Pool is the subset of pgxpool.Pool the ledger uses. It is satisfied by
// both *pgxpool.Pool and pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger implements Ledger using pgxpool.
type PostgresLedger struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresLedger with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresLedger, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresLedger{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	key              TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	website_url      TEXT NOT NULL DEFAULT '',
	primary_offering TEXT NOT NULL DEFAULT '',
	service_area     TEXT NOT NULL DEFAULT '',
	vetting_status   TEXT NOT NULL DEFAULT 'not_vetted',
	last_report_id   TEXT NOT NULL DEFAULT '',
	discovered_in    JSONB NOT NULL DEFAULT '[]',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS discovery_requests (
	id                   TEXT PRIMARY KEY,
	prompt               TEXT NOT NULL,
	material             TEXT NOT NULL DEFAULT '',
	location             TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'initiated',
	summary              TEXT NOT NULL DEFAULT '',
	vendor_ids           JSONB NOT NULL DEFAULT '[]',
	companies_considered INTEGER NOT NULL DEFAULT 0,
	companies_detailed   INTEGER NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vetting_reports (
	id               TEXT PRIMARY KEY,
	vendor_key       TEXT NOT NULL DEFAULT '',
	subject          TEXT NOT NULL,
	content          TEXT NOT NULL,
	risk_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	course_of_action TEXT NOT NULL DEFAULT '',
	citations        JSONB NOT NULL DEFAULT '[]',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_requests_status ON discovery_requests(status);
CREATE INDEX IF NOT EXISTS idx_reports_vendor ON vetting_reports(vendor_key);
`

func (s *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresLedger) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// upsertVendor merges in a single statement: NULLIF/COALESCE keeps any
// non-empty stored field, and discovered_in accumulates distinct request IDs.
const upsertVendor = `
INSERT INTO vendors (key, name, website_url, primary_offering, service_area, vetting_status, last_report_id, discovered_in, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'not_vetted', '', $6, now(), now())
ON CONFLICT (key) DO UPDATE SET
	website_url      = COALESCE(NULLIF(vendors.website_url, ''), EXCLUDED.website_url),
	primary_offering = COALESCE(NULLIF(vendors.primary_offering, ''), EXCLUDED.primary_offering),
	service_area     = COALESCE(NULLIF(vendors.service_area, ''), EXCLUDED.service_area),
	discovered_in    = (
		SELECT COALESCE(jsonb_agg(DISTINCT elem), '[]'::jsonb)
		FROM jsonb_array_elements(vendors.discovered_in || EXCLUDED.discovered_in) AS elem
	),
	updated_at       = now()
RETURNING key, name, website_url, primary_offering, service_area, vetting_status, last_report_id, discovered_in, created_at, updated_at`

func (s *PostgresLedger) GetOrCreateVendor(ctx context.Context, candidate model.VendorRecord) (*model.VendorRecord, error) {
	if candidate.Key == "" {
		return nil, eris.New("postgres: vendor key is empty")
	}
	discoveredJSON, err := json.Marshal(nonNil(candidate.DiscoveredIn))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal discovered_in")
	}
	row := s.pool.QueryRow(ctx, upsertVendor,
		candidate.Key, candidate.Name, candidate.WebsiteURL,
		candidate.PrimaryOffering, candidate.ServiceArea, discoveredJSON,
	)
	rec, err := scanVendorPg(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert vendor %s", candidate.Key)
	}
	return rec, nil
}

func (s *PostgresLedger) GetVendor(ctx context.Context, key string) (*model.VendorRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, name, website_url, primary_offering, service_area, vetting_status, last_report_id, discovered_in, created_at, updated_at
		 FROM vendors WHERE key = $1`, key)
	rec, err := scanVendorPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get vendor %s", key)
	}
	return rec, nil
}

func (s *PostgresLedger) ListVendors(ctx context.Context, limit, offset int) ([]model.VendorRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT key, name, website_url, primary_offering, service_area, vetting_status, last_report_id, discovered_in, created_at, updated_at
		 FROM vendors ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendors")
	}
	defer rows.Close()

	var vendors []model.VendorRecord
	for rows.Next() {
		rec, err := scanVendorPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor")
		}
		vendors = append(vendors, *rec)
	}
	return vendors, eris.Wrap(rows.Err(), "postgres: list vendors iterate")
}

func (s *PostgresLedger) MarkVetted(ctx context.Context, key, reportID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vendors SET vetting_status = $1, last_report_id = $2, updated_at = now() WHERE key = $3`,
		string(model.VettingStatusVetted), reportID, key,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark vetted %s", key)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("vendor not found: %s", key)
	}
	return nil
}

func (s *PostgresLedger) CreateRequest(ctx context.Context, prompt string) (*model.DiscoveryRequest, error) {
	req := &model.DiscoveryRequest{
		ID:     uuid.New().String(),
		Prompt: prompt,
		Status: model.RequestStatusInitiated,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO discovery_requests (id, prompt, status) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		req.ID, req.Prompt, string(req.Status),
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create request")
	}
	return req, nil
}

func (s *PostgresLedger) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_requests SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update request status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found: %s", id)
	}
	return nil
}

func (s *PostgresLedger) SetRequestTarget(ctx context.Context, id, material, location string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_requests SET material = $1, location = $2, updated_at = now() WHERE id = $3`,
		material, location, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set request target %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found: %s", id)
	}
	return nil
}

func (s *PostgresLedger) CompleteRequest(ctx context.Context, id, summary string, vendorIDs []string, considered, detailed int) error {
	idsJSON, err := json.Marshal(nonNil(vendorIDs))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vendor ids")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_requests SET status = $1, summary = $2, vendor_ids = $3, companies_considered = $4, companies_detailed = $5, updated_at = now() WHERE id = $6`,
		string(model.RequestStatusCompleted), summary, idsJSON, considered, detailed, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete request %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found: %s", id)
	}
	return nil
}

func (s *PostgresLedger) FailRequest(ctx context.Context, id, summary string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_requests SET status = $1, summary = $2, updated_at = now() WHERE id = $3`,
		string(model.RequestStatusFailed), summary, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail request %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found: %s", id)
	}
	return nil
}

func (s *PostgresLedger) GetRequest(ctx context.Context, id string) (*model.DiscoveryRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, prompt, material, location, status, summary, vendor_ids, companies_considered, companies_detailed, created_at, updated_at
		 FROM discovery_requests WHERE id = $1`, id)
	req, err := scanRequestPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get request %s", id)
	}
	return req, nil
}

func (s *PostgresLedger) ListRequests(ctx context.Context, filter RequestFilter) ([]model.DiscoveryRequest, error) {
	query := `SELECT id, prompt, material, location, status, summary, vendor_ids, companies_considered, companies_detailed, created_at, updated_at
	 FROM discovery_requests`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	switch len(args) {
	case 2:
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	case 3:
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list requests")
	}
	defer rows.Close()

	var requests []model.DiscoveryRequest
	for rows.Next() {
		req, err := scanRequestPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan request")
		}
		requests = append(requests, *req)
	}
	return requests, eris.Wrap(rows.Err(), "postgres: list requests iterate")
}

func (s *PostgresLedger) SaveVettingReport(ctx context.Context, report *model.VettingReport) (string, error) {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	citationsJSON, err := json.Marshal(nonNil(report.Citations))
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal citations")
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO vetting_reports (id, vendor_key, subject, content, risk_score, course_of_action, citations)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		report.ID, report.VendorKey, report.Subject, report.Content,
		report.RiskScore, report.CourseOfAction, citationsJSON,
	).Scan(&report.CreatedAt)
	if err != nil {
		return "", eris.Wrap(err, "postgres: save vetting report")
	}
	return report.ID, nil
}

func scanVendorPg(row pgx.Row) (*model.VendorRecord, error) {
	var rec model.VendorRecord
	var status string
	var discoveredJSON []byte
	err := row.Scan(&rec.Key, &rec.Name, &rec.WebsiteURL, &rec.PrimaryOffering, &rec.ServiceArea,
		&status, &rec.LastReportID, &discoveredJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.VettingStatus = model.VettingStatus(status)
	if err := json.Unmarshal(discoveredJSON, &rec.DiscoveredIn); err != nil {
		return nil, eris.Wrap(err, "unmarshal discovered_in")
	}
	return &rec, nil
}

func scanRequestPg(row pgx.Row) (*model.DiscoveryRequest, error) {
	var req model.DiscoveryRequest
	var status string
	var idsJSON []byte
	err := row.Scan(&req.ID, &req.Prompt, &req.Material, &req.Location, &status, &req.Summary,
		&idsJSON, &req.CompaniesConsidered, &req.CompaniesDetailed, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.Status = model.RequestStatus(status)
	if err := json.Unmarshal(idsJSON, &req.VendorIDs); err != nil {
		return nil, eris.Wrap(err, "unmarshal vendor_ids")
	}
	return &req, nil
}
