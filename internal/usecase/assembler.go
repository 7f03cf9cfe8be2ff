package usecase

import (
	"fmt"
	"strings"

	"github.com/example/id-verify/internal/account"
	"github.com/example/id-verify/internal/classifier"
	"github.com/example/id-verify/internal/session"
)

// BuildAccountRequest maps the reviewed identity record and the out-of-band
// credentials into the account-creation payload. An absent password is a
// programming-contract violation, not a user-facing validation error.
func BuildAccountRequest(rec classifier.Record, creds Credentials) (*account.CreateRequest, error) {
	if strings.TrimSpace(creds.Password) == "" {
		return nil, fmt.Errorf("%w: password missing from registration flow", session.ErrContractViolation)
	}

	return &account.CreateRequest{
		FirstName:         rec.FirstName,
		LastName:          rec.LastName,
		Email:             creds.Email,
		PhoneNumber:       creds.PhoneNumber,
		Password:          creds.Password,
		BirthDate:         rec.DateOfBirth,
		IDExpirationDate:  rec.ExpiryDate,
		BirthPlace:        rec.PlaceOfBirth,
		CardNumber:        rec.IDNumber,
		FatherFullName:    rec.FatherName,
		MotherFullName:    rec.MotherName,
		Address:           rec.Address,
		Gender:            rec.Gender,
		CivilStatusNumber: rec.CivilStatusNumber,
	}, nil
}
