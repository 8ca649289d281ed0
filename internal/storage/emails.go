package storage

import (
	"database/sql"
	"time"
)

const rawEmailColumns = `id, rfp_id, vendor_id, subject, from_email, body, attachments, provider_message_id, received_at`

func scanRawEmail(r rowScanner) (RawEmail, error) {
	var e RawEmail
	var providerID sql.NullString
	var receivedAt string
	if err := r.Scan(&e.ID, &e.RFPID, &e.VendorID, &e.Subject, &e.FromEmail, &e.Body, &e.Attachments,
		&providerID, &receivedAt); err != nil {
		return RawEmail{}, err
	}
	e.ProviderMessageID = providerID.String
	var err error
	if e.ReceivedAt, err = parseTime("received_at", receivedAt); err != nil {
		return RawEmail{}, err
	}
	return e, nil
}

// CreateRawEmail stores an inbound reply. Returns ErrConflict when a row with
// the same provider message id already exists.
func (s *Store) CreateRawEmail(e RawEmail) (RawEmail, error) {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	var providerID sql.NullString
	if e.ProviderMessageID != "" {
		providerID = sql.NullString{String: e.ProviderMessageID, Valid: true}
	}

	_, err := s.db.Exec(`INSERT INTO raw_emails (`+rawEmailColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RFPID, e.VendorID, e.Subject, e.FromEmail, e.Body, e.Attachments, providerID,
		formatTime(e.ReceivedAt),
	)
	if isUniqueViolation(err) {
		return RawEmail{}, ErrConflict
	}
	if err != nil {
		return RawEmail{}, err
	}
	e.ReceivedAt = e.ReceivedAt.UTC()
	return e, nil
}

func (s *Store) GetRawEmail(id string) (RawEmail, error) {
	e, err := scanRawEmail(s.db.QueryRow(`SELECT `+rawEmailColumns+` FROM raw_emails WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return RawEmail{}, ErrNotFound
	}
	return e, err
}

// GetRawEmailByProviderID looks up a reply by the mail provider's message id.
func (s *Store) GetRawEmailByProviderID(providerID string) (RawEmail, error) {
	if providerID == "" {
		return RawEmail{}, ErrNotFound
	}
	e, err := scanRawEmail(s.db.QueryRow(`SELECT `+rawEmailColumns+` FROM raw_emails WHERE provider_message_id = ?`, providerID))
	if err == sql.ErrNoRows {
		return RawEmail{}, ErrNotFound
	}
	return e, err
}

// ListRawEmails returns the replies received for an RFP, newest first.
func (s *Store) ListRawEmails(rfpID string) ([]RawEmail, error) {
	rows, err := s.db.Query(`SELECT `+rawEmailColumns+` FROM raw_emails WHERE rfp_id = ? ORDER BY received_at DESC`, rfpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RawEmail
	for rows.Next() {
		e, err := scanRawEmail(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
