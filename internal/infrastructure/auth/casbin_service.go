package auth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	operatorRole     = "operator"
	profilesObject   = "profiles"
	listAction       = "list"
	operatorModelDef = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`
)

// CasbinService implements domain.OperatorPolicy. The policy is seeded from the
// configured operator identities and is read-only afterwards.
type CasbinService struct{ E *casbin.Enforcer }

// NewCasbinService builds the operator allow-list. When db is non-nil the seeded
// policy is also written to the casbin_rule table.
func NewCasbinService(operatorIDs []string, db *gorm.DB) (*CasbinService, error) {
	m, err := model.NewModelFromString(operatorModelDef)
	if err != nil {
		return nil, fmt.Errorf("load operator model: %w", err)
	}
	E, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if _, err := E.AddPolicy(operatorRole, profilesObject, listAction); err != nil {
		return nil, err
	}
	for _, id := range operatorIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := E.AddGroupingPolicy(id, operatorRole); err != nil {
			return nil, err
		}
	}

	if db != nil {
		adp, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, fmt.Errorf("create policy adapter: %w", err)
		}
		if err := adp.SavePolicy(E.GetModel()); err != nil {
			return nil, fmt.Errorf("save operator policy: %w", err)
		}
	}
	return &CasbinService{E}, nil
}

// CanListProfiles implements domain.OperatorPolicy. The default role manager links
// every name to itself, so membership is checked before enforcing.
func (s *CasbinService) CanListProfiles(userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || userID == operatorRole {
		return false, nil
	}
	roles, err := s.E.GetRolesForUser(userID)
	if err != nil {
		return false, err
	}
	if !slices.Contains(roles, operatorRole) {
		return false, nil
	}
	return s.E.Enforce(userID, profilesObject, listAction)
}

// Operators returns the identities holding the operator role
func (s *CasbinService) Operators() []string {
	users, _ := s.E.GetUsersForRole(operatorRole)
	return users
}
