package dossier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Answers is the intake form payload of one case type. Each variant validates
// the fields it owns; Validate accepts partially filled forms, Missing lists
// what must still be provided before submission.
type Answers interface {
	CaseType() CaseType
	Validate() error
	Missing() []string
}

var (
	phoneRx          = regexp.MustCompile(`^[0-9 +().-]{7,20}$`)
	businessNumberRx = regexp.MustCompile(`^[0-9]{9}$`)
	fiscalYearEndRx  = regexp.MustCompile(`^(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`)
)

// Contact fields shared by the individual flows.
type Contact struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (c Contact) validate() error {
	if c.Phone != "" && !phoneRx.MatchString(c.Phone) {
		return invalid("answers.phone", "phone number is not valid")
	}
	return nil
}

func (c Contact) missing() []string {
	var out []string
	if strings.TrimSpace(c.FirstName) == "" {
		out = append(out, "firstName")
	}
	if strings.TrimSpace(c.LastName) == "" {
		out = append(out, "lastName")
	}
	return out
}

// PersonalAnswers is the T1 (individual return) intake form.
type PersonalAnswers struct {
	Contact
	TaxYear           int    `json:"taxYear,omitempty"`
	MaritalStatus     string `json:"maritalStatus,omitempty"`
	Dependants        int    `json:"dependants,omitempty"`
	EmploymentIncome  bool   `json:"employmentIncome,omitempty"`
	RRSPContributions bool   `json:"rrspContributions,omitempty"`
	TuitionFees       bool   `json:"tuitionFees,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

var maritalStatuses = map[string]bool{
	"single": true, "married": true, "common_law": true,
	"separated": true, "divorced": true, "widowed": true,
}

func (PersonalAnswers) CaseType() CaseType { return CasePersonal }

func (a PersonalAnswers) Validate() error {
	if err := a.Contact.validate(); err != nil {
		return err
	}
	if err := validateTaxYear(a.TaxYear); err != nil {
		return err
	}
	if a.MaritalStatus != "" && !maritalStatuses[a.MaritalStatus] {
		return invalid("answers.maritalStatus", "unknown marital status %q", a.MaritalStatus)
	}
	if a.Dependants < 0 || a.Dependants > 20 {
		return invalid("answers.dependants", "must be between 0 and 20")
	}
	return nil
}

func (a PersonalAnswers) Missing() []string {
	out := a.Contact.missing()
	if a.TaxYear == 0 {
		out = append(out, "taxYear")
	}
	if a.MaritalStatus == "" {
		out = append(out, "maritalStatus")
	}
	return out
}

// SelfEmployedAnswers is the TA (self-employed worker) intake form.
type SelfEmployedAnswers struct {
	Contact
	TaxYear       int     `json:"taxYear,omitempty"`
	BusinessName  string  `json:"businessName,omitempty"`
	Activity      string  `json:"activity,omitempty"`
	GrossRevenue  float64 `json:"grossRevenue,omitempty"`
	HomeOffice    bool    `json:"homeOffice,omitempty"`
	VehicleUse    bool    `json:"vehicleUse,omitempty"`
	GSTRegistered bool    `json:"gstRegistered,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

func (SelfEmployedAnswers) CaseType() CaseType { return CaseSelfEmployed }

func (a SelfEmployedAnswers) Validate() error {
	if err := a.Contact.validate(); err != nil {
		return err
	}
	if err := validateTaxYear(a.TaxYear); err != nil {
		return err
	}
	if a.GrossRevenue < 0 {
		return invalid("answers.grossRevenue", "must not be negative")
	}
	return nil
}

func (a SelfEmployedAnswers) Missing() []string {
	out := a.Contact.missing()
	if a.TaxYear == 0 {
		out = append(out, "taxYear")
	}
	if strings.TrimSpace(a.Activity) == "" {
		out = append(out, "activity")
	}
	return out
}

// CorporateAnswers is the T2 (corporation return) intake form.
type CorporateAnswers struct {
	CompanyName    string `json:"companyName,omitempty"`
	BusinessNumber string `json:"businessNumber,omitempty"`
	FiscalYearEnd  string `json:"fiscalYearEnd,omitempty"` // MM-DD
	ContactName    string `json:"contactName,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Employees      int    `json:"employees,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

func (CorporateAnswers) CaseType() CaseType { return CaseCorporate }

func (a CorporateAnswers) Validate() error {
	if a.BusinessNumber != "" && !businessNumberRx.MatchString(a.BusinessNumber) {
		return invalid("answers.businessNumber", "must be the 9-digit business number")
	}
	if a.FiscalYearEnd != "" && !fiscalYearEndRx.MatchString(a.FiscalYearEnd) {
		return invalid("answers.fiscalYearEnd", "must use the MM-DD format")
	}
	if a.Phone != "" && !phoneRx.MatchString(a.Phone) {
		return invalid("answers.phone", "phone number is not valid")
	}
	if a.Employees < 0 {
		return invalid("answers.employees", "must not be negative")
	}
	return nil
}

func (a CorporateAnswers) Missing() []string {
	var out []string
	if strings.TrimSpace(a.CompanyName) == "" {
		out = append(out, "companyName")
	}
	if a.BusinessNumber == "" {
		out = append(out, "businessNumber")
	}
	if a.FiscalYearEnd == "" {
		out = append(out, "fiscalYearEnd")
	}
	return out
}

func validateTaxYear(y int) error {
	if y == 0 {
		return nil
	}
	if y < 2000 || y > time.Now().Year() {
		return invalid("answers.taxYear", "tax year %d is out of range", y)
	}
	return nil
}

// DecodeAnswers decodes raw JSON into the variant for ct. Unknown fields are
// rejected so a payload meant for another flow is not silently accepted.
func DecodeAnswers(ct CaseType, raw []byte) (Answers, error) {
	var a Answers
	switch ct {
	case CasePersonal:
		a = &PersonalAnswers{}
	case CaseSelfEmployed:
		a = &SelfEmployedAnswers{}
	case CaseCorporate:
		a = &CorporateAnswers{}
	default:
		return nil, invalid("caseType", "unknown case type %q", ct)
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return a, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(a); err != nil {
		return nil, invalid("answers", "does not match the %s form: %v", ct.Label(), err)
	}
	return a, nil
}

// mergeAnswers overlays partial onto existing (top-level keys) and returns the
// merged, validated payload.
func mergeAnswers(ct CaseType, existing, partial []byte) ([]byte, error) {
	merged := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(existing)) > 0 && string(bytes.TrimSpace(existing)) != "null" {
		if err := json.Unmarshal(existing, &merged); err != nil {
			return nil, fmt.Errorf("decode stored answers: %w", err)
		}
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(partial, &patch); err != nil {
		return nil, invalid("answers", "must be a JSON object")
	}
	for k, v := range patch {
		if string(v) == "null" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	a, err := DecodeAnswers(ct, out)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	// Re-encode through the typed variant so stored JSON only holds known fields.
	return json.Marshal(a)
}
