package store

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrCustomerExists       = errors.New("customer already exists")
	ErrAdminExists          = errors.New("admin already exists")
	ErrSerializationFailure = errors.New("transaction serialization failure")
)
