package leave

// TypeRule carries per-code defaults applied to leave types created without
// explicit cap or encashment settings.
type TypeRule struct {
	AnnualCapDays *int
	Encashable    bool
}

type RuleTable map[string]TypeRule

func DefaultRules() RuleTable {
	sickCap := 15
	return RuleTable{
		"SL": {AnnualCapDays: &sickCap},
		"AL": {Encashable: true},
	}
}

func (t RuleTable) apply(lt *LeaveType) {
	rule, ok := t[lt.Code]
	if !ok {
		return
	}
	if lt.AnnualCapDays == nil && rule.AnnualCapDays != nil {
		capDays := *rule.AnnualCapDays
		lt.AnnualCapDays = &capDays
	}
	if rule.Encashable {
		lt.Encashable = true
	}
}
