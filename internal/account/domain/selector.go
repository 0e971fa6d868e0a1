package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Company is one remote company visible to a just-authorized account.
type Company struct {
	ID   int64
	Name string
}

// CompanyMismatchError is raised when the company a tenant was bound to no
// longer appears in the authorized list. Rebinding silently would hand the
// tenant someone else's data, so this is a hard stop.
type CompanyMismatchError struct {
	Expected  int64
	Available []int64
}

func (e *CompanyMismatchError) Error() string {
	ids := make([]string, 0, len(e.Available))
	for _, id := range e.Available {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("company %d not available for this account; authorized companies: [%s]",
		e.Expected, strings.Join(ids, ", "))
}

// SelectCompany picks the company to bind for an OAuth connection.
//
// With an existing account the bound company must appear in the list;
// otherwise the first company wins (fresh connection default).
func SelectCompany(companies []Company, existing *Account) (Company, error) {
	if len(companies) == 0 {
		return Company{}, ErrNoCompanyAvailable
	}

	if existing == nil {
		return companies[0], nil
	}

	available := make([]int64, 0, len(companies))
	for _, company := range companies {
		if company.ID == existing.ExternalCompanyID {
			return company, nil
		}
		available = append(available, company.ID)
	}

	return Company{}, &CompanyMismatchError{
		Expected:  existing.ExternalCompanyID,
		Available: available,
	}
}
