// Package accounts maps a support case back to the configured member
// account that owns it.
package accounts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/justeat/JustSupport/internal/config"
)

// ErrAccountNotFound means no configured role ARN contains the account id
// embedded in a case id.
var ErrAccountNotFound = errors.New("accounts: no configured account matches")

// Case ids look like case-<accountDigits>-<region+suffix>.
var caseAccountPattern = regexp.MustCompile(`case-(\d+)-`)

// ExtractAccountID returns the account digits embedded in a case id.
func ExtractAccountID(caseID string) (string, bool) {
	m := caseAccountPattern.FindStringSubmatch(caseID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Resolver scans the configured accounts linearly. The account list is
// expected to stay in the tens, so no index is kept.
type Resolver struct {
	accounts []config.Account
	extract  func(caseID string) (string, bool)
}

// NewResolver creates a resolver over the given accounts.
func NewResolver(accounts []config.Account) *Resolver {
	return &Resolver{accounts: accounts, extract: ExtractAccountID}
}

// Resolve returns the first account whose role ARN contains accountID.
func (r *Resolver) Resolve(accountID string) (config.Account, error) {
	if accountID == "" {
		return config.Account{}, fmt.Errorf("%w: empty account id", ErrAccountNotFound)
	}
	for _, a := range r.accounts {
		if strings.Contains(a.ARN, accountID) {
			return a, nil
		}
	}
	return config.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
}

// ForCase extracts the account id from caseID and resolves it.
func (r *Resolver) ForCase(caseID string) (config.Account, error) {
	accountID, ok := r.extract(caseID)
	if !ok {
		return config.Account{}, fmt.Errorf("%w: no account id in case %s", ErrAccountNotFound, caseID)
	}
	return r.Resolve(accountID)
}
