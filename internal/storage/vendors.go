package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const vendorColumns = `id, name, email, notes, created_at, updated_at`

func scanVendor(r rowScanner) (Vendor, error) {
	var v Vendor
	var createdAt, updatedAt string
	if err := r.Scan(&v.ID, &v.Name, &v.Email, &v.Notes, &createdAt, &updatedAt); err != nil {
		return Vendor{}, err
	}
	if err := fillVendorTimes(&v, createdAt, updatedAt); err != nil {
		return Vendor{}, err
	}
	return v, nil
}

func fillVendorTimes(v *Vendor, createdAt, updatedAt string) error {
	var err error
	if v.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return err
	}
	if v.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return err
	}
	return nil
}

// CreateVendor inserts v, assigning an ID and timestamps when absent.
// Returns ErrConflict when another vendor already uses the same email.
func (s *Store) CreateVendor(v Vendor) (Vendor, error) {
	if v.ID == "" {
		v.ID = NewID()
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	v.Email = strings.TrimSpace(v.Email)

	_, err := s.db.Exec(`INSERT INTO vendors (`+vendorColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.Email, v.Notes, formatTime(v.CreatedAt), formatTime(v.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return Vendor{}, ErrConflict
	}
	if err != nil {
		return Vendor{}, err
	}
	return v, nil
}

func (s *Store) GetVendor(id string) (Vendor, error) {
	v, err := scanVendor(s.db.QueryRow(`SELECT `+vendorColumns+` FROM vendors WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Vendor{}, ErrNotFound
	}
	return v, err
}

// GetVendorByEmail looks a vendor up by exact email match.
func (s *Store) GetVendorByEmail(email string) (Vendor, error) {
	v, err := scanVendor(s.db.QueryRow(`SELECT `+vendorColumns+` FROM vendors WHERE email = ?`, email))
	if err == sql.ErrNoRows {
		return Vendor{}, ErrNotFound
	}
	return v, err
}

func (s *Store) ListVendors() ([]Vendor, error) {
	rows, err := s.db.Query(`SELECT ` + vendorColumns + ` FROM vendors ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

// GetVendorsByIDs returns the vendors matching ids, in the order of ids.
// Unknown ids are skipped; callers compare lengths to detect them.
func (s *Store) GetVendorsByIDs(ids []string) ([]Vendor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(`SELECT `+vendorColumns+` FROM vendors WHERE id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]Vendor, len(ids))
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		byID[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]Vendor, 0, len(byID))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok && !seen[id] {
			results = append(results, v)
			seen[id] = true
		}
	}
	return results, nil
}

// UpdateVendor overwrites name, email and notes of an existing vendor.
func (s *Store) UpdateVendor(v Vendor) (Vendor, error) {
	v.UpdatedAt = time.Now().UTC()
	v.Email = strings.TrimSpace(v.Email)
	res, err := s.db.Exec(`UPDATE vendors SET name = ?, email = ?, notes = ?, updated_at = ? WHERE id = ?`,
		v.Name, v.Email, v.Notes, formatTime(v.UpdatedAt), v.ID,
	)
	if isUniqueViolation(err) {
		return Vendor{}, ErrConflict
	}
	if err != nil {
		return Vendor{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Vendor{}, err
	}
	if n == 0 {
		return Vendor{}, ErrNotFound
	}
	return s.GetVendor(v.ID)
}

func (s *Store) DeleteVendor(id string) error {
	res, err := s.db.Exec(`DELETE FROM vendors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting vendor: %w", err)
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
