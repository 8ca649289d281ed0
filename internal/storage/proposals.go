package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const proposalColumns = `id, raw_email_id, rfp_id, vendor_id, total_cost, delivery_terms, payment_terms, warranty, line_items, completeness_score, created_at`

func scanProposal(r rowScanner, extra ...any) (Proposal, error) {
	var p Proposal
	var lineItems, createdAt string
	var score sql.NullFloat64
	dest := append([]any{&p.ID, &p.RawEmailID, &p.RFPID, &p.VendorID, &p.TotalCost, &p.DeliveryTerms,
		&p.PaymentTerms, &p.Warranty, &lineItems, &score, &createdAt}, extra...)
	if err := r.Scan(dest...); err != nil {
		return Proposal{}, err
	}
	p.LineItems = []LineItem{}
	if lineItems != "" {
		if err := json.Unmarshal([]byte(lineItems), &p.LineItems); err != nil {
			return Proposal{}, fmt.Errorf("decoding line items: %w", err)
		}
	}
	if score.Valid {
		v := score.Float64
		p.CompletenessScore = &v
	}
	var err error
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// CreateProposal stores the structured extraction of a raw email.
func (s *Store) CreateProposal(p Proposal) (Proposal, error) {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.LineItems == nil {
		p.LineItems = []LineItem{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	lineItems, err := json.Marshal(p.LineItems)
	if err != nil {
		return Proposal{}, fmt.Errorf("encoding line items: %w", err)
	}
	var score sql.NullFloat64
	if p.CompletenessScore != nil {
		score = sql.NullFloat64{Float64: *p.CompletenessScore, Valid: true}
	}

	_, err = s.db.Exec(`INSERT INTO proposals (`+proposalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RawEmailID, p.RFPID, p.VendorID, p.TotalCost, p.DeliveryTerms, p.PaymentTerms, p.Warranty,
		string(lineItems), score, formatTime(p.CreatedAt),
	)
	if err != nil {
		return Proposal{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *Store) GetProposal(id string) (Proposal, error) {
	p, err := scanProposal(s.db.QueryRow(`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Proposal{}, ErrNotFound
	}
	return p, err
}

// ListProposals returns the proposals of an RFP, oldest first, with the vendor
// populated. Proposals whose vendor has since been deleted keep a nil Vendor.
func (s *Store) ListProposals(rfpID string) ([]Proposal, error) {
	rows, err := s.db.Query(`SELECT `+prefixed("p.", proposalColumns)+`,
		v.id, v.name, v.email, v.notes, v.created_at, v.updated_at
		FROM proposals p LEFT JOIN vendors v ON v.id = p.vendor_id
		WHERE p.rfp_id = ? ORDER BY p.created_at ASC`, rfpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Proposal
	for rows.Next() {
		var vID, vName, vEmail, vNotes, vCreated, vUpdated sql.NullString
		p, err := scanProposal(rows, &vID, &vName, &vEmail, &vNotes, &vCreated, &vUpdated)
		if err != nil {
			return nil, err
		}
		if vID.Valid {
			v := Vendor{ID: vID.String, Name: vName.String, Email: vEmail.String, Notes: vNotes.String}
			if err := fillVendorTimes(&v, vCreated.String, vUpdated.String); err != nil {
				return nil, err
			}
			p.Vendor = &v
		}
		results = append(results, p)
	}
	return results, rows.Err()
}
