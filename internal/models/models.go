package models

import "time"

// Collection names, shared by the store, the live hub and exports
const (
	CollectionRegistrations = "registrations"
	CollectionCheckins      = "checkins"
)

// FormData holds the person/household attributes submitted on the public form
type FormData struct {
	ID             string `json:"id" validate:"omitempty,max=64"`
	FirstName      string `json:"firstName" validate:"required"`
	LastName       string `json:"lastName" validate:"required"`
	DateOfBirth    string `json:"dateOfBirth" validate:"required"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	Apartment      string `json:"apartment,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	ZipCode        string `json:"zipCode,omitempty"`
	Race           string `json:"race,omitempty"`
	Ethnicity      string `json:"ethnicity,omitempty"`
	Sex            string `json:"sex,omitempty"`
	MaritalStatus  string `json:"maritalStatus,omitempty"`
	NameOfProxy    string `json:"nameOfProxy,omitempty"`
	Children       string `json:"children,omitempty"`
	Adults         string `json:"adults,omitempty"`
	Seniors        string `json:"seniors,omitempty"`
	Language       string `json:"language,omitempty"`
	CountryOfBirth string `json:"countryOfBirth,omitempty"`
	IncomeYear     string `json:"incomeYear,omitempty"`
	IncomeMonth    string `json:"incomeMonth,omitempty"`
	IncomeWeek     string `json:"incomeWeek,omitempty"`
	SNAP           bool   `json:"snap"`
	TANF           bool   `json:"tanf"`
	SSI            bool   `json:"ssi"`
	NSLS           bool   `json:"nsls"`
	Medicaid       bool   `json:"medicaid"`
	CrisisReason   string `json:"crisisReason,omitempty"`
	AgreedToCert   bool   `json:"agreedToCert"`
	Signature      string `json:"signature,omitempty"`
	Archived       bool   `json:"archived"`
	TefapDate      string `json:"tefapDate,omitempty"`
	TefapEligible  bool   `json:"tefapEligible"`
	Location       string `json:"location,omitempty"`
	// Household is either free text or a JSON encoded list of household entries
	Household string `json:"household,omitempty"`

	// Legacy archive stamps written by older clients
	ArchiveDate  string `json:"archiveDate,omitempty"`
	ArchivedDate string `json:"archivedDate,omitempty"`
}

// AdminData holds the staff-only eligibility determination
type AdminData struct {
	IsEligible           bool       `json:"isEligible"`
	IsIneligible         bool       `json:"isIneligible"`
	EligibleBeginMonth   string     `json:"eligibleBeginMonth,omitempty"`
	EligibleBeginYear    string     `json:"eligibleBeginYear,omitempty"`
	EligibleEndMonth     string     `json:"eligibleEndMonth,omitempty"`
	EligibleEndYear      string     `json:"eligibleEndYear,omitempty"`
	IneligibleBeginMonth string     `json:"ineligibleBeginMonth,omitempty"`
	IneligibleBeginYear  string     `json:"ineligibleBeginYear,omitempty"`
	IneligibleEndMonth   string     `json:"ineligibleEndMonth,omitempty"`
	IneligibleEndYear    string     `json:"ineligibleEndYear,omitempty"`
	StaffSignature       string     `json:"staffSignature,omitempty"`
	StaffDate            string     `json:"staffDate,omitempty"`
	UpdatedBy            string     `json:"updatedBy,omitempty"`
	LastUpdated          *time.Time `json:"lastUpdated,omitempty"`
}

// Registration represents a household registration document
type Registration struct {
	ID          string     `json:"id"`
	FormData    FormData   `json:"formData"`
	AdminData   *AdminData `json:"adminData,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	LastCheckIn *time.Time `json:"lastCheckIn,omitempty"`
	ServedAt    *time.Time `json:"servedAt,omitempty"`
	ArchivedAt  *time.Time `json:"archivedAt,omitempty"`
}

// ExternalID returns the identifier check-ins use to reference this registration
func (r *Registration) ExternalID() string {
	if r.FormData.ID != "" {
		return r.FormData.ID
	}
	return r.ID
}

// FullName joins first and last name with a space
func (r *Registration) FullName() string {
	return joinName(r.FormData.FirstName, r.FormData.LastName)
}

// CheckinStatus is the lifecycle state of a check-in
type CheckinStatus string

const (
	CheckinWaiting CheckinStatus = "waiting"
	CheckinServed  CheckinStatus = "served"
	CheckinRemoved CheckinStatus = "removed"
)

// CheckinFormData is the subset of registration fields mirrored onto a check-in
type CheckinFormData struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Location  string `json:"location,omitempty"`
	Household string `json:"household,omitempty"`
}

// Checkin represents a single visit in the check-in queue
type Checkin struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Name        string          `json:"name"`
	CheckInTime time.Time       `json:"checkInTime"`
	Status      CheckinStatus   `json:"status"`
	Phone       string          `json:"phone,omitempty"`
	Household   string          `json:"household,omitempty"`
	Location    string          `json:"location,omitempty"`
	FormData    CheckinFormData `json:"formData"`
	ServedAt    *time.Time      `json:"servedAt,omitempty"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// MirrorOf builds the mirrored form subset for a registration
func MirrorOf(r *Registration) CheckinFormData {
	return CheckinFormData{
		ID:        r.ExternalID(),
		FirstName: r.FormData.FirstName,
		LastName:  r.FormData.LastName,
		Location:  r.FormData.Location,
		Household: r.FormData.Household,
	}
}

// AdminUser represents a staff account allowed into the admin screens
type AdminUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

// RenewalSnapshot is the cached registration used to pre-populate a renewal
type RenewalSnapshot struct {
	RegistrationID string    `json:"registrationId"`
	FormData       FormData  `json:"formData"`
	CreatedAt      time.Time `json:"createdAt"`
}
