// Package conflict resolves divergent versions of the same record held by
// the local and the remote store. Resolution is pure and deterministic: the
// same inputs always produce field-identical output, whether invoked from a
// full migration or from a steady-state sync write.
package conflict

// Strategy selects the resolution policy.
type Strategy string

const (
	// StrategyKeepLocal always keeps the local version.
	StrategyKeepLocal Strategy = "keepLocal"

	// StrategyKeepCloud always keeps the remote version.
	StrategyKeepCloud Strategy = "keepCloud"

	// StrategySmartMerge keeps the more recently touched version and
	// merges field-by-field on an exact timestamp tie.
	StrategySmartMerge Strategy = "smartMerge"

	// StrategyDuplicate clones the local version under a new id so both
	// versions survive as distinct records.
	StrategyDuplicate Strategy = "duplicate"

	// StrategyAskUser falls back to smart merge: this engine has no
	// interactive channel.
	StrategyAskUser Strategy = "askUser"
)

// Normalize maps aliases onto executable strategies and defaults the empty
// strategy to smart merge.
func (s Strategy) Normalize() Strategy {
	switch s {
	case StrategyKeepLocal, StrategyKeepCloud, StrategySmartMerge, StrategyDuplicate:
		return s
	case StrategyAskUser:
		return StrategySmartMerge
	default:
		return StrategySmartMerge
	}
}

// Valid reports whether s names a recognized strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyKeepLocal, StrategyKeepCloud, StrategySmartMerge, StrategyDuplicate, StrategyAskUser:
		return true
	}
	return false
}
