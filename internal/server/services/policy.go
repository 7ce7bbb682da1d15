package services

import "github.com/dmitrijs2005/domainx/internal/common"

// Policy is what differs between the three account kinds.
type Policy struct {
	Kind string
	// RequiresApproval gates login until an administrator approves the account.
	RequiresApproval bool
	// CookieName is the role-scoped session cookie, empty when the kind uses
	// the Authorization header only.
	CookieName string
	// StrongPasswords requires a lowercase letter, an uppercase letter and a digit.
	StrongPasswords bool
}

var (
	BuyerPolicy = Policy{
		Kind:       common.KindBuyer,
		CookieName: "buyerToken",
	}
	ResellerPolicy = Policy{
		Kind:             common.KindReseller,
		RequiresApproval: true,
		CookieName:       "resellerToken",
	}
	AdminPolicy = Policy{
		Kind:            common.KindAdmin,
		StrongPasswords: true,
	}
)

// Policies lists every kind in route order.
var Policies = []Policy{BuyerPolicy, ResellerPolicy, AdminPolicy}
