package sync

// Action is a single intended permission change for one team
type Action struct {
	TeamID     string
	Repository string
}

// Plan represents the permission changes computed for one organization
type Plan struct {
	TeamID string
	Grant  []Action
	Revoke []Action
	InSync int // repositories already in the desired state
}

// Empty reports whether the plan requires no changes
func (p *Plan) Empty() bool {
	return len(p.Grant) == 0 && len(p.Revoke) == 0
}

// Summary accumulates counts across all organizations in one run
type Summary struct {
	Organizations int // organizations reconciled
	Skipped       int // organizations skipped (no usable team id, team unknown, errors)
	Granted       int // permissions granted (or would be, in dry-run)
	Revoked       int // permissions revoked (or would be, in dry-run)
	InSync        int // repositories already in the desired state
	Failed        int // individual permission changes that failed
}
