package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	casbinTableName = "casbin_rule"
	rolePrefix      = "role:"
)

const defaultRBACModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// Policy 权限策略
type Policy struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

// Service 看板路由授权，策略持久化在 casbin_rule 表，运营可按角色追加授权
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 创建授权服务
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("authz db is nil")
	}

	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter failed: %w", err)
	}

	m, err := model.NewModelFromString(defaultRBACModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	enforcer.EnableAutoSave(true)

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy failed: %w", err)
	}

	return &Service{enforcer: enforcer}, nil
}

// EnforceRole 按令牌角色判定是否可访问路由
func (s *Service) EnforceRole(role, obj, act string) (bool, error) {
	if s == nil || s.enforcer == nil {
		return false, fmt.Errorf("authz service unavailable")
	}
	subject, err := NormalizeRole(role)
	if err != nil {
		return false, err
	}
	return s.enforcer.Enforce(subject, NormalizeObject(obj), NormalizeAction(act))
}

// GrantRolePolicy 为角色授予策略
func (s *Service) GrantRolePolicy(role, object, action string) error {
	normalizedRole, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	normalizedAction := NormalizeAction(action)
	if normalizedAction == "" {
		return fmt.Errorf("action is required")
	}
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	if _, err := s.enforcer.AddPolicy(normalizedRole, NormalizeObject(object), normalizedAction); err != nil {
		return fmt.Errorf("grant policy failed: %w", err)
	}
	return nil
}

// RevokeRolePolicy 撤销角色策略
func (s *Service) RevokeRolePolicy(role, object, action string) error {
	normalizedRole, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	normalizedAction := NormalizeAction(action)
	if normalizedAction == "" {
		return fmt.Errorf("action is required")
	}
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	if _, err := s.enforcer.RemovePolicy(normalizedRole, NormalizeObject(object), normalizedAction); err != nil {
		return fmt.Errorf("revoke policy failed: %w", err)
	}
	return nil
}

// GetRolePolicies 查询角色生效策略（含继承）
func (s *Service) GetRolePolicies(role string) ([]Policy, error) {
	normalizedRole, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	if s == nil || s.enforcer == nil {
		return nil, fmt.Errorf("authz service unavailable")
	}
	subjects := []string{normalizedRole}
	parents, err := s.enforcer.GetImplicitRolesForUser(normalizedRole)
	if err != nil {
		return nil, fmt.Errorf("get role parents failed: %w", err)
	}
	subjects = append(subjects, parents...)

	policyMap := map[string]Policy{}
	for _, subject := range subjects {
		rules, err := s.enforcer.GetFilteredPolicy(0, subject)
		if err != nil {
			return nil, fmt.Errorf("get role policies failed: %w", err)
		}
		for _, item := range convertPolicies(rules) {
			policyMap[item.Object+"|"+item.Action] = item
		}
	}
	result := make([]Policy, 0, len(policyMap))
	for _, item := range policyMap {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Object == result[j].Object {
			return result[i].Action < result[j].Action
		}
		return result[i].Object < result[j].Object
	})
	return result, nil
}

func convertPolicies(rules [][]string) []Policy {
	policies := make([]Policy, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		policies = append(policies, Policy{
			Subject: strings.TrimSpace(rule[0]),
			Object:  NormalizeObject(rule[1]),
			Action:  NormalizeAction(rule[2]),
		})
	}
	return policies
}

// NormalizeRole 统一角色名称
func NormalizeRole(role string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(role))
	if normalized == "" {
		return "", fmt.Errorf("role is required")
	}
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if !strings.HasPrefix(normalized, rolePrefix) {
		normalized = rolePrefix + normalized
	}
	if len(normalized) <= len(rolePrefix) {
		return "", fmt.Errorf("role is required")
	}
	return normalized, nil
}

// NormalizeObject 统一授权资源路径
func NormalizeObject(object string) string {
	normalized := strings.TrimSpace(object)
	if normalized == "" {
		return "/"
	}
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	return normalized
}

// NormalizeAction 统一授权动作
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}
