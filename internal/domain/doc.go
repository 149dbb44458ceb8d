// Package domain provides shared domain types for the cutover deployment controller.
// These types flow between the rollout, rollback, incident and notification packages.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain
