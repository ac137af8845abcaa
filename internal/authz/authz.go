// Package authz holds the static role-to-action permission matrix. The
// matrix is data, loaded once at startup and never mutated; a missing entry
// means deny.
package authz

import (
	"fmt"
	"sort"
)

// Staff roles.
const (
	RoleAdmin        = "admin"
	RoleAttorney     = "attorney"
	RoleParalegal    = "paralegal"
	RoleInvestigator = "investigator"
	RoleAuditor      = "auditor"
)

// Actions. The sensitive read/export actions double as the audit event type
// written by the purpose gate.
const (
	ActionCaseCreate       = "case.create"
	ActionCaseRead         = "case.read"
	ActionEvidenceInit     = "evidence.init"
	ActionEvidenceFinalize = "evidence.finalize"
	ActionEvidenceDownload = "evidence.download"
	ActionManifestExport   = "manifest.export"
	ActionAuditQuery       = "audit.query"
	ActionAuditReplay      = "audit.replay"
	ActionTokenCreate      = "token.create"
	ActionTokenRevoke      = "token.revoke"
	ActionTokenList        = "token.list"
	ActionPackageExport    = "package.export"
	ActionJobRun           = "job.run"
)

var knownRoles = map[string]bool{
	RoleAdmin:        true,
	RoleAttorney:     true,
	RoleParalegal:    true,
	RoleInvestigator: true,
	RoleAuditor:      true,
}

var knownActions = map[string]bool{
	ActionCaseCreate:       true,
	ActionCaseRead:         true,
	ActionEvidenceInit:     true,
	ActionEvidenceFinalize: true,
	ActionEvidenceDownload: true,
	ActionManifestExport:   true,
	ActionAuditQuery:       true,
	ActionAuditReplay:      true,
	ActionTokenCreate:      true,
	ActionTokenRevoke:      true,
	ActionTokenList:        true,
	ActionPackageExport:    true,
	ActionJobRun:           true,
}

type grant struct {
	role   string
	action string
}

// Matrix maps (role, action) to allowed. Absent pairs are denied.
type Matrix struct {
	grants map[grant]bool
}

// Default returns the built-in permission matrix.
func Default() *Matrix {
	m := &Matrix{grants: make(map[grant]bool)}

	allow := func(role string, actions ...string) {
		for _, a := range actions {
			m.grants[grant{role: role, action: a}] = true
		}
	}

	allActions := make([]string, 0, len(knownActions))
	for a := range knownActions {
		allActions = append(allActions, a)
	}
	sort.Strings(allActions)

	allow(RoleAdmin, allActions...)
	allow(RoleAttorney,
		ActionCaseCreate, ActionCaseRead,
		ActionEvidenceInit, ActionEvidenceFinalize, ActionEvidenceDownload,
		ActionManifestExport, ActionAuditQuery, ActionAuditReplay,
		ActionTokenCreate, ActionTokenRevoke, ActionTokenList,
		ActionPackageExport)
	allow(RoleParalegal,
		ActionCaseRead,
		ActionEvidenceInit, ActionEvidenceFinalize, ActionEvidenceDownload,
		ActionManifestExport, ActionTokenList)
	allow(RoleInvestigator,
		ActionCaseRead,
		ActionEvidenceInit, ActionEvidenceFinalize, ActionEvidenceDownload,
		ActionAuditQuery)
	allow(RoleAuditor,
		ActionCaseRead, ActionAuditQuery, ActionAuditReplay, ActionManifestExport)

	return m
}

// Allowed reports whether role may perform action. Unknown pairs deny.
func (m *Matrix) Allowed(role, action string) bool {
	return m.grants[grant{role: role, action: action}]
}

// Validate checks every matrix entry against the closed role and action
// sets. Called at startup so a typo in the matrix fails the process instead
// of silently denying (or worse, being shadowed by a later grant).
func (m *Matrix) Validate() error {
	for g := range m.grants {
		if !knownRoles[g.role] {
			return fmt.Errorf("permission matrix references unknown role %q", g.role)
		}
		if !knownActions[g.action] {
			return fmt.Errorf("permission matrix references unknown action %q", g.action)
		}
	}
	return nil
}

// KnownRole reports whether role is in the closed role set.
func KnownRole(role string) bool {
	return knownRoles[role]
}
