package sdk

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-bexpr"
)

// DefaultAccessExpression grants access when any of the credential's
// authorization flags is set.
const DefaultAccessExpression = "hasGroupAccess == true or isNieUser == true or isLdapEnabled == true"

// AccessPolicy decides which credential claims imply authorization.
type AccessPolicy struct {
	expression string
	evaluator  *bexpr.Evaluator
}

// NewAccessPolicy compiles expression. An empty expression selects
// DefaultAccessExpression.
func NewAccessPolicy(expression string) (*AccessPolicy, error) {
	if strings.TrimSpace(expression) == "" {
		expression = DefaultAccessExpression
	}
	evaluator, err := bexpr.CreateEvaluator(expression)
	if err != nil {
		return nil, fmt.Errorf("compile access expression %q: %w", expression, err)
	}
	return &AccessPolicy{expression: expression, evaluator: evaluator}, nil
}

// Expression returns the source expression of the policy.
func (p *AccessPolicy) Expression() string {
	return p.expression
}

// Allows evaluates the policy against cred. Evaluation errors deny access.
func (p *AccessPolicy) Allows(cred *CachedCredential) bool {
	if cred == nil {
		return false
	}
	datum := map[string]any{
		"hasGroupAccess": cred.HasGroupAccess,
		"isNieUser":      cred.IsNieUser,
		"isLdapEnabled":  cred.IsLdapEnabled,
		"key":            cred.Key,
	}
	ok, err := p.evaluator.Evaluate(datum)
	if err != nil {
		return false
	}
	return ok
}
