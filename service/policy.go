package service

import "parish/config"

// Policy 预算引擎策略，对应配置中的 budget 段
type Policy struct {
	WriteRoles                    []string
	StrictLevelStep               bool
	EnforceClosedPeriod           bool
	EnforceStatusTransitions      bool
	EnforcePeriodOverlap          bool
	BlockReferencedTemplateDelete bool
}

// DefaultPolicy 全部保护开启，只有管理员可写
func DefaultPolicy() Policy {
	return Policy{
		WriteRoles:                    []string{RoleAdministrator},
		StrictLevelStep:               true,
		EnforceClosedPeriod:           true,
		EnforceStatusTransitions:      true,
		EnforcePeriodOverlap:          true,
		BlockReferencedTemplateDelete: true,
	}
}

// PolicyFromConfig 从配置构造策略
func PolicyFromConfig(cfg config.BudgetConfig) Policy {
	return Policy{
		WriteRoles:                    cfg.WriteRoles,
		StrictLevelStep:               cfg.StrictLevelStep,
		EnforceClosedPeriod:           cfg.EnforceClosedPeriod,
		EnforceStatusTransitions:      cfg.EnforceStatusTransitions,
		EnforcePeriodOverlap:          cfg.EnforcePeriodOverlap,
		BlockReferencedTemplateDelete: cfg.BlockReferencedTemplateDelete,
	}
}
