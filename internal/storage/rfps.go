package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const rfpColumns = `id, title, description, items, budget, delivery_timeline, payment_terms, warranty, status, created_at, updated_at`

var statusRank = map[string]int{
	RFPStatusDraft:     0,
	RFPStatusSent:      1,
	RFPStatusResponded: 2,
	RFPStatusClosed:    3,
}

// ValidRFPStatus reports whether s is one of the known RFP statuses.
func ValidRFPStatus(s string) bool {
	_, ok := statusRank[s]
	return ok
}

func encodeItems(items []Item) (string, error) {
	if items == nil {
		items = []Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding items: %w", err)
	}
	return string(b), nil
}

func decodeItems(raw string) ([]Item, error) {
	items := []Item{}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding items: %w", err)
	}
	return items, nil
}

func scanRFP(r rowScanner, extra ...any) (RFP, error) {
	var p RFP
	var items, createdAt, updatedAt string
	dest := []any{&p.ID, &p.Title, &p.Description, &items, &p.Budget, &p.DeliveryTimeline,
		&p.PaymentTerms, &p.Warranty, &p.Status, &createdAt, &updatedAt}
	dest = append(dest, extra...)
	if err := r.Scan(dest...); err != nil {
		return RFP{}, err
	}
	var err error
	if p.Items, err = decodeItems(items); err != nil {
		return RFP{}, err
	}
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return RFP{}, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return RFP{}, err
	}
	return p, nil
}

// CreateRFP inserts p. Status defaults to draft.
func (s *Store) CreateRFP(p RFP) (RFP, error) {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.Status == "" {
		p.Status = RFPStatusDraft
	}
	if p.Items == nil {
		p.Items = []Item{}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	items, err := encodeItems(p.Items)
	if err != nil {
		return RFP{}, err
	}

	_, err = s.db.Exec(`INSERT INTO rfps (`+rfpColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, items, p.Budget, p.DeliveryTimeline, p.PaymentTerms, p.Warranty,
		p.Status, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return RFP{}, err
	}
	return p, nil
}

func (s *Store) GetRFP(id string) (RFP, error) {
	p, err := scanRFP(s.db.QueryRow(`SELECT `+rfpColumns+` FROM rfps WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return RFP{}, ErrNotFound
	}
	return p, err
}

// ListRFPs returns all RFPs newest first with VendorCount populated.
func (s *Store) ListRFPs() ([]RFP, error) {
	rows, err := s.db.Query(`SELECT ` + prefixed("r.", rfpColumns) + `,
		(SELECT COUNT(*) FROM rfp_vendors rv WHERE rv.rfp_id = r.id)
		FROM rfps r ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RFP
	for rows.Next() {
		var count int
		p, err := scanRFP(rows, &count)
		if err != nil {
			return nil, err
		}
		p.VendorCount = count
		results = append(results, p)
	}
	return results, rows.Err()
}

// UpdateRFP overwrites all editable fields of an existing RFP, status included.
// This is the user-driven edit path and is not subject to forward-only status rules.
func (s *Store) UpdateRFP(p RFP) (RFP, error) {
	if !ValidRFPStatus(p.Status) {
		return RFP{}, fmt.Errorf("invalid status %q", p.Status)
	}
	items, err := encodeItems(p.Items)
	if err != nil {
		return RFP{}, err
	}
	res, err := s.db.Exec(`UPDATE rfps SET title = ?, description = ?, items = ?, budget = ?, delivery_timeline = ?,
		payment_terms = ?, warranty = ?, status = ?, updated_at = ? WHERE id = ?`,
		p.Title, p.Description, items, p.Budget, p.DeliveryTimeline, p.PaymentTerms, p.Warranty, p.Status,
		formatTime(time.Now()), p.ID,
	)
	if err != nil {
		return RFP{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return RFP{}, err
	}
	if n == 0 {
		return RFP{}, ErrNotFound
	}
	return s.GetRFP(p.ID)
}

// SetRFPStatus sets status unconditionally.
func (s *Store) SetRFPStatus(id, status string) error {
	if !ValidRFPStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.Exec(`UPDATE rfps SET status = ?, updated_at = ? WHERE id = ?`, status, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceRFPStatus moves the RFP to status only if its current status is
// earlier in the lifecycle. Reports whether the row changed.
func (s *Store) AdvanceRFPStatus(id, status string) (bool, error) {
	rank, ok := statusRank[status]
	if !ok {
		return false, fmt.Errorf("invalid status %q", status)
	}
	var earlier []any
	for st, r := range statusRank {
		if r < rank {
			earlier = append(earlier, st)
		}
	}
	if len(earlier) == 0 {
		return false, nil
	}
	args := append([]any{status, formatTime(time.Now()), id}, earlier...)
	res, err := s.db.Exec(`UPDATE rfps SET status = ?, updated_at = ? WHERE id = ? AND status IN (?`+
		strings.Repeat(",?", len(earlier)-1)+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteRFP removes the RFP and its vendor links. Raw emails and proposals
// referencing it are left in place.
func (s *Store) DeleteRFP(id string) error {
	res, err := s.db.Exec(`DELETE FROM rfps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rfp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- RFP ↔ vendor links ---

const linkColumns = `id, rfp_id, vendor_id, sent_at, status`

func scanLink(r rowScanner, extra ...any) (RFPVendor, error) {
	var l RFPVendor
	var sentAt string
	dest := append([]any{&l.ID, &l.RFPID, &l.VendorID, &sentAt, &l.Status}, extra...)
	if err := r.Scan(dest...); err != nil {
		return RFPVendor{}, err
	}
	var err error
	if l.SentAt, err = parseTime("sent_at", sentAt); err != nil {
		return RFPVendor{}, err
	}
	return l, nil
}

// UpsertRFPVendor creates the (rfp, vendor) link or refreshes its sentAt and
// status when it already exists.
func (s *Store) UpsertRFPVendor(rfpID, vendorID string, sentAt time.Time) (RFPVendor, error) {
	_, err := s.db.Exec(`INSERT INTO rfp_vendors (`+linkColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(rfp_id, vendor_id) DO UPDATE SET sent_at = excluded.sent_at, status = excluded.status`,
		NewID(), rfpID, vendorID, formatTime(sentAt), LinkStatusSent,
	)
	if err != nil {
		return RFPVendor{}, err
	}
	return s.GetRFPVendor(rfpID, vendorID)
}

func (s *Store) GetRFPVendor(rfpID, vendorID string) (RFPVendor, error) {
	l, err := scanLink(s.db.QueryRow(`SELECT `+linkColumns+` FROM rfp_vendors WHERE rfp_id = ? AND vendor_id = ?`, rfpID, vendorID))
	if err == sql.ErrNoRows {
		return RFPVendor{}, ErrNotFound
	}
	return l, err
}

// LatestRFPVendorForVendor returns the vendor's most recently sent link whose
// status is sent or responded.
func (s *Store) LatestRFPVendorForVendor(vendorID string) (RFPVendor, error) {
	l, err := scanLink(s.db.QueryRow(`SELECT `+linkColumns+` FROM rfp_vendors
		WHERE vendor_id = ? AND status IN (?, ?)
		ORDER BY sent_at DESC LIMIT 1`, vendorID, LinkStatusSent, LinkStatusResponded))
	if err == sql.ErrNoRows {
		return RFPVendor{}, ErrNotFound
	}
	return l, err
}

func (s *Store) SetRFPVendorStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE rfp_vendors SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRFPVendors returns the links of an RFP with the vendor populated.
func (s *Store) ListRFPVendors(rfpID string) ([]RFPVendor, error) {
	rows, err := s.db.Query(`SELECT `+prefixed("rv.", linkColumns)+`, `+prefixed("v.", vendorColumns)+`
		FROM rfp_vendors rv JOIN vendors v ON v.id = rv.vendor_id
		WHERE rv.rfp_id = ? ORDER BY rv.sent_at DESC`, rfpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RFPVendor
	for rows.Next() {
		var v Vendor
		var createdAt, updatedAt string
		l, err := scanLink(rows, &v.ID, &v.Name, &v.Email, &v.Notes, &createdAt, &updatedAt)
		if err != nil {
			return nil, err
		}
		if err := fillVendorTimes(&v, createdAt, updatedAt); err != nil {
			return nil, err
		}
		l.Vendor = &v
		results = append(results, l)
	}
	return results, rows.Err()
}

// prefixed qualifies every column of a comma-separated list with prefix.
func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
