package util

import (
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestToDomainErrorPassthrough(t *testing.T) {
	original := NewForbidden("no")
	mapped := ToDomainError(original)
	if mapped.Code != "FORBIDDEN" || mapped.HTTPStatus != http.StatusForbidden {
		t.Errorf("mapped = %s/%d", mapped.Code, mapped.HTTPStatus)
	}
}

func TestToDomainErrorRowMiss(t *testing.T) {
	mapped := ToDomainError(pgx.ErrNoRows)
	if mapped.Code != "NOT_FOUND" || mapped.HTTPStatus != http.StatusNotFound {
		t.Errorf("mapped = %s/%d", mapped.Code, mapped.HTTPStatus)
	}
}

func TestToDomainErrorUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	mapped := ToDomainError(pgErr)
	if mapped.Code != "CONFLICT" || mapped.HTTPStatus != http.StatusConflict {
		t.Errorf("mapped = %s/%d", mapped.Code, mapped.HTTPStatus)
	}
	if mapped.Details["constraint"] != "users_email_key" {
		t.Errorf("details = %v", mapped.Details)
	}
}

func TestToDomainErrorOpaqueInternal(t *testing.T) {
	mapped := ToDomainError(errors.New("pool exhausted"))
	if mapped.Code != "INTERNAL_ERROR" || mapped.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("mapped = %s/%d", mapped.Code, mapped.HTTPStatus)
	}
	if mapped.Message != "internal server error" {
		t.Errorf("message leaks detail: %q", mapped.Message)
	}
}
