package rest

import "github.com/dmitrijs2005/domainx/internal/server/services"

// requestValidator plugs the service field rules into echo's c.Validate.
type requestValidator struct{}

func (requestValidator) Validate(i interface{}) error {
	return services.Validate(i)
}
