package models

import "errors"

var ErrNoMembers = errors.New("no members to split expense")

// SplitEqually divides an amount in minor units across n members. The
// remainder cents go to the first members of the roster, so the shares always
// sum to the amount exactly.
func SplitEqually(amount Cents, n int) ([]Cents, error) {
	if n <= 0 {
		return nil, ErrNoMembers
	}

	base := amount / Cents(n)
	remainder := amount % Cents(n)

	shares := make([]Cents, n)
	for i := range shares {
		shares[i] = base
		if Cents(i) < remainder {
			shares[i]++
		}
	}
	return shares, nil
}
