package dossier

import "strings"

// CaseType fixes which intake form and price schedule apply to a dossier.
type CaseType string

const (
	CasePersonal     CaseType = "t1"
	CaseSelfEmployed CaseType = "ta"
	CaseCorporate    CaseType = "t2"
)

var caseTypeAliases = map[string]CaseType{
	"t1":            CasePersonal,
	"personal":      CasePersonal,
	"ta":            CaseSelfEmployed,
	"self-employed": CaseSelfEmployed,
	"self_employed": CaseSelfEmployed,
	"autonome":      CaseSelfEmployed,
	"t2":            CaseCorporate,
	"corporate":     CaseCorporate,
}

// ParseCaseType accepts the short codes and the long flow names.
func ParseCaseType(s string) (CaseType, bool) {
	ct, ok := caseTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	return ct, ok
}

// Label is the staff-facing name of the case type.
func (c CaseType) Label() string {
	switch c {
	case CasePersonal:
		return "personal"
	case CaseSelfEmployed:
		return "self-employed"
	case CaseCorporate:
		return "corporate"
	}
	return string(c)
}
