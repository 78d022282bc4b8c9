// Package handler contains HTTP handlers grouped by surface in subpackages:
// tracking (public click/signup/event ingestion), portal (affiliate
// self-service) and admin (back-office review and settlement).
//
// This file exists so tooling (e.g. `swag init --dir ./internal/handler`) can
// treat `internal/handler` as a valid Go package and avoid "no Go files" warnings.
package handler

