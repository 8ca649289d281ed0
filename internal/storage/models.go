package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// RFP statuses. Status only moves forward (draft → sent → responded → closed)
// except through an explicit user edit.
const (
	RFPStatusDraft     = "draft"
	RFPStatusSent      = "sent"
	RFPStatusResponded = "responded"
	RFPStatusClosed    = "closed"
)

// Per-vendor engagement statuses.
const (
	LinkStatusSent      = "sent"
	LinkStatusResponded = "responded"
)

type Vendor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is one requested line of an RFP. Items are embedded in the RFP row as
// an ordered JSON array.
type Item struct {
	Name           string `json:"name"`
	Quantity       string `json:"quantity"`
	Specifications string `json:"specifications"`
}

type RFP struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Items            []Item    `json:"items"`
	Budget           string    `json:"budget,omitempty"`
	DeliveryTimeline string    `json:"deliveryTimeline,omitempty"`
	PaymentTerms     string    `json:"paymentTerms,omitempty"`
	Warranty         string    `json:"warranty,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	// VendorCount is derived (number of RFPVendor rows); only populated by ListRFPs.
	VendorCount int `json:"vendorCount"`
}

// RFPVendor records that an RFP was sent to a vendor and where that vendor stands.
type RFPVendor struct {
	ID       string    `json:"id"`
	RFPID    string    `json:"rfpId"`
	VendorID string    `json:"vendorId"`
	SentAt   time.Time `json:"sentAt"`
	Status   string    `json:"status"`

	// Vendor is populated by ListRFPVendors.
	Vendor *Vendor `json:"vendor,omitempty"`
}

// RawEmail is an inbound vendor reply stored verbatim. Immutable after creation.
type RawEmail struct {
	ID                string    `json:"id"`
	RFPID             string    `json:"rfpId"`
	VendorID          string    `json:"vendorId"`
	Subject           string    `json:"subject"`
	FromEmail         string    `json:"fromEmail"`
	Body              string    `json:"body"`
	Attachments       string    `json:"attachments,omitempty"` // JSON array stored as text
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	ReceivedAt        time.Time `json:"receivedAt"`
}

// LineItem is one priced line of a vendor proposal.
type LineItem struct {
	ItemName       string `json:"itemName"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	Specifications string `json:"specifications,omitempty"`
}

// Proposal is the structured extraction of a RawEmail. Never mutated.
type Proposal struct {
	ID                string     `json:"id"`
	RawEmailID        string     `json:"rawEmailId"`
	RFPID             string     `json:"rfpId"`
	VendorID          string     `json:"vendorId"`
	TotalCost         string     `json:"totalCost,omitempty"`
	DeliveryTerms     string     `json:"deliveryTerms,omitempty"`
	PaymentTerms      string     `json:"paymentTerms,omitempty"`
	Warranty          string     `json:"warranty,omitempty"`
	LineItems         []LineItem `json:"lineItems"`
	CompletenessScore *float64   `json:"completenessScore"`
	CreatedAt         time.Time  `json:"createdAt"`

	// Vendor is populated by ListProposals.
	Vendor *Vendor `json:"vendor,omitempty"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
