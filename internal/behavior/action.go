// Package behavior defines what a simulated website visitor does: which pages
// it opens, how often, how long it pauses between them, and how each response
// is judged healthy or not.
//
// The package knows nothing about how many visitors run or how they are
// scheduled. That is the job of the performance engine, which drives one
// WebsiteUser per virtual user.
package behavior

import (
	"fmt"
	"strings"
)

// Action identifies one page visit.
type Action int

const (
	// Index visits the landing page.
	Index Action = iota
	// Features visits the features page.
	Features
	// Pricing visits the pricing page.
	Pricing
	// About visits the about page.
	About
	// Contact visits the contact page.
	Contact
)

// AllActions lists every action in declaration order.
var AllActions = []Action{Index, Features, Pricing, About, Contact}

// String returns the page name.
func (a Action) String() string {
	switch a {
	case Index:
		return "index"
	case Features:
		return "features"
	case Pricing:
		return "pricing"
	case About:
		return "about"
	case Contact:
		return "contact"
	default:
		return "unknown"
	}
}

// Path returns the fixed relative path requested by the action.
func (a Action) Path() string {
	switch a {
	case Index:
		return "/"
	case Features:
		return "/features"
	case Pricing:
		return "/pricing"
	case About:
		return "/about"
	case Contact:
		return "/contact"
	default:
		return ""
	}
}

// ParseAction resolves a page name (case-insensitive) to its action.
func ParseAction(name string) (Action, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, a := range AllActions {
		if a.String() == n {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", name)
}

// WeightedAction pairs an action with its relative selection weight.
type WeightedAction struct {
	Action Action
	Weight float64
}

// DefaultActions is the browsing mix of a typical visitor.
var DefaultActions = []WeightedAction{
	{Action: Index, Weight: 1},
	{Action: Features, Weight: 2},
	{Action: Pricing, Weight: 2},
	{Action: About, Weight: 1},
	{Action: Contact, Weight: 1},
}
