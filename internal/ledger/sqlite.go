package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scrimworks/vendorvet/internal/model"
)

// SQLiteLedger implements Ledger using modernc.org/sqlite.
type SQLiteLedger struct {
	db    *sql.DB
	vlock *keyedMutex
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db, vlock: newKeyedMutex()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	key              TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	website_url      TEXT NOT NULL DEFAULT '',
	primary_offering TEXT NOT NULL DEFAULT '',
	service_area     TEXT NOT NULL DEFAULT '',
	vetting_status   TEXT NOT NULL DEFAULT 'not_vetted',
	last_report_id   TEXT NOT NULL DEFAULT '',
	discovered_in    TEXT NOT NULL DEFAULT '[]',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS discovery_requests (
	id                   TEXT PRIMARY KEY,
	prompt               TEXT NOT NULL,
	material             TEXT NOT NULL DEFAULT '',
	location             TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'initiated',
	summary              TEXT NOT NULL DEFAULT '',
	vendor_ids           TEXT NOT NULL DEFAULT '[]',
	companies_considered INTEGER NOT NULL DEFAULT 0,
	companies_detailed   INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS vetting_reports (
	id               TEXT PRIMARY KEY,
	vendor_key       TEXT NOT NULL DEFAULT '',
	subject          TEXT NOT NULL,
	content          TEXT NOT NULL,
	risk_score       REAL NOT NULL DEFAULT 0,
	course_of_action TEXT NOT NULL DEFAULT '',
	citations        TEXT NOT NULL DEFAULT '[]',
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_status ON discovery_requests(status);
CREATE INDEX IF NOT EXISTS idx_reports_vendor ON vetting_reports(vendor_key);
`

func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

func (s *SQLiteLedger) GetOrCreateVendor(ctx context.Context, candidate model.VendorRecord) (*model.VendorRecord, error) {
	if candidate.Key == "" {
		return nil, eris.New("sqlite: vendor key is empty")
	}

	// SQLite merge is read-modify-write, so concurrent verifiers that
	// normalize to the same key serialize here.
	unlock := s.vlock.lock(candidate.Key)
	defer unlock()

	stored, err := s.GetVendor(ctx, candidate.Key)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	if stored == nil {
		rec := candidate
		rec.VettingStatus = model.VettingStatusNotVetted
		rec.CreatedAt = now
		rec.UpdatedAt = now
		discoveredJSON, err := json.Marshal(nonNil(rec.DiscoveredIn))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal discovered_in")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO vendors (key, name, website_url, primary_offering, service_area, vetting_status, last_report_id, discovered_in, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Key, rec.Name, rec.WebsiteURL, rec.PrimaryOffering, rec.ServiceArea,
			string(rec.VettingStatus), rec.LastReportID, string(discoveredJSON), now, now,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert vendor %s", rec.Key)
		}
		return &rec, nil
	}

	if mergeVendor(stored, candidate) {
		stored.UpdatedAt = now
		discoveredJSON, err := json.Marshal(nonNil(stored.DiscoveredIn))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal discovered_in")
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE vendors SET website_url = ?, primary_offering = ?, service_area = ?, discovered_in = ?, updated_at = ? WHERE key = ?`,
			stored.WebsiteURL, stored.PrimaryOffering, stored.ServiceArea,
			string(discoveredJSON), now, stored.Key,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: merge vendor %s", stored.Key)
		}
	}
	return stored, nil
}

func (s *SQLiteLedger) GetVendor(ctx context.Context, key string) (*model.VendorRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, name, website_url, primary_offering, service_area, vetting_status, last_report_id, discovered_in, created_at, updated_at
		 FROM vendors WHERE key = ?`, key)
	rec, err := scanVendor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteLedger) ListVendors(ctx context.Context, limit, offset int) ([]model.VendorRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, name, website_url, primary_offering, service_area, vetting_status, last_report_id, discovered_in, created_at, updated_at
		 FROM vendors ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendors")
	}
	defer rows.Close()

	var vendors []model.VendorRecord
	for rows.Next() {
		rec, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, *rec)
	}
	return vendors, eris.Wrap(rows.Err(), "sqlite: list vendors iterate")
}

func (s *SQLiteLedger) MarkVetted(ctx context.Context, key, reportID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vendors SET vetting_status = ?, last_report_id = ?, updated_at = ? WHERE key = ?`,
		string(model.VettingStatusVetted), reportID, time.Now().UTC(), key,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark vetted %s", key)
	}
	return checkRowsAffected(res, "vendor", key)
}

func (s *SQLiteLedger) CreateRequest(ctx context.Context, prompt string) (*model.DiscoveryRequest, error) {
	now := time.Now().UTC()
	req := &model.DiscoveryRequest{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Status:    model.RequestStatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_requests (id, prompt, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		req.ID, req.Prompt, string(req.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create request")
	}
	return req, nil
}

func (s *SQLiteLedger) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_requests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update request status %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteLedger) SetRequestTarget(ctx context.Context, id, material, location string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_requests SET material = ?, location = ?, updated_at = ? WHERE id = ?`,
		material, location, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set request target %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteLedger) CompleteRequest(ctx context.Context, id, summary string, vendorIDs []string, considered, detailed int) error {
	idsJSON, err := json.Marshal(nonNil(vendorIDs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vendor ids")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_requests SET status = ?, summary = ?, vendor_ids = ?, companies_considered = ?, companies_detailed = ?, updated_at = ? WHERE id = ?`,
		string(model.RequestStatusCompleted), summary, string(idsJSON), considered, detailed, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete request %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteLedger) FailRequest(ctx context.Context, id, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_requests SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(model.RequestStatusFailed), summary, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail request %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteLedger) GetRequest(ctx context.Context, id string) (*model.DiscoveryRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prompt, material, location, status, summary, vendor_ids, companies_considered, companies_detailed, created_at, updated_at
		 FROM discovery_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

func (s *SQLiteLedger) ListRequests(ctx context.Context, filter RequestFilter) ([]model.DiscoveryRequest, error) {
	query := `SELECT id, prompt, material, location, status, summary, vendor_ids, companies_considered, companies_detailed, created_at, updated_at
	 FROM discovery_requests WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list requests")
	}
	defer rows.Close()

	var requests []model.DiscoveryRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, eris.Wrap(rows.Err(), "sqlite: list requests iterate")
}

func (s *SQLiteLedger) SaveVettingReport(ctx context.Context, report *model.VettingReport) (string, error) {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	citationsJSON, err := json.Marshal(nonNil(report.Citations))
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal citations")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vetting_reports (id, vendor_key, subject, content, risk_score, course_of_action, citations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.VendorKey, report.Subject, report.Content,
		report.RiskScore, report.CourseOfAction, string(citationsJSON), report.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: save vetting report")
	}
	return report.ID, nil
}

// helpers

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanVendor(row scannable) (*model.VendorRecord, error) {
	var rec model.VendorRecord
	var status, discoveredJSON string
	err := row.Scan(&rec.Key, &rec.Name, &rec.WebsiteURL, &rec.PrimaryOffering, &rec.ServiceArea,
		&status, &rec.LastReportID, &discoveredJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan vendor")
	}
	rec.VettingStatus = model.VettingStatus(status)
	if err := json.Unmarshal([]byte(discoveredJSON), &rec.DiscoveredIn); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal discovered_in")
	}
	return &rec, nil
}

func scanRequest(row scannable) (*model.DiscoveryRequest, error) {
	var req model.DiscoveryRequest
	var status, idsJSON string
	err := row.Scan(&req.ID, &req.Prompt, &req.Material, &req.Location, &status, &req.Summary,
		&idsJSON, &req.CompaniesConsidered, &req.CompaniesDetailed, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan request")
	}
	req.Status = model.RequestStatus(status)
	if err := json.Unmarshal([]byte(idsJSON), &req.VendorIDs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal vendor_ids")
	}
	return &req, nil
}
