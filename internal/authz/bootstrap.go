package authz

import "fmt"

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 看板预置角色矩阵；admin 令牌在中间件中直接放行，不在此列
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: "dashboard_reader",
			Policies: []Policy{
				{Object: "/offer.list", Action: "GET"},
				{Object: "/redemption.list", Action: "GET"},
				{Object: "/payout.summary", Action: "GET"},
				{Object: "/payout.breakdown", Action: "GET"},
			},
		},
		{
			Role:     "influencer",
			Inherits: []string{"dashboard_reader"},
			Policies: []Policy{
				{Object: "/coupon.claim", Action: "POST"},
				{Object: "/link.create", Action: "POST"},
			},
		},
		{
			Role:     "business",
			Inherits: []string{"dashboard_reader"},
			Policies: []Policy{
				{Object: "/offer.create", Action: "POST"},
				{Object: "/offer.status", Action: "POST"},
				{Object: "/coupon.apply", Action: "POST"},
				{Object: "/business.pos.connect", Action: "POST"},
				{Object: "/business.pos.status", Action: "GET"},
				{Object: "/redemption.review", Action: "POST"},
				{Object: "/redemption.refund", Action: "POST"},
				{Object: "/redemption.signal", Action: "POST"},
			},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略，重复执行无副作用
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}

	for _, seed := range BuiltinRoleSeeds() {
		role, err := NormalizeRole(seed.Role)
		if err != nil {
			return err
		}

		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return err
			}
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole); err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
		}

		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("builtin policy action is required")
			}
			if _, err := s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), action); err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
		}
	}
	return nil
}
