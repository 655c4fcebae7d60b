package ap2

import (
	"fmt"
	"strings"
)

const (
	// ProtocolVersion is the AP2 revision implemented by this module.
	ProtocolVersion = "v0.1"
	// ExtensionURI identifies AP2 in an agent card. Interoperating agents
	// must advertise the same value.
	ExtensionURI = "https://github.com/google-agentic-commerce/ap2/tree/" + ProtocolVersion
)

// Role is a participant category in the protocol.
type Role string

// Defines values for Role.
const (
	RoleMerchant            Role = "merchant"
	RoleShopper             Role = "shopper"
	RoleCredentialsProvider Role = "credentials-provider"
	RolePaymentProcessor    Role = "payment-processor"
)

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleMerchant, RoleShopper, RoleCredentialsProvider, RolePaymentProcessor:
		return true
	default:
		return false
	}
}

// ExtensionParams lists the roles an agent performs.
type ExtensionParams struct {
	Roles []Role `json:"roles" validate:"required,min=1,dive,ap2role"`
}

// Extension is the AP2 entry of an agent card's extensions list.
type Extension struct {
	URI         string          `json:"uri"`
	Description string          `json:"description"`
	Params      ExtensionParams `json:"params"`
}

// NewExtension builds the descriptor advertised by an agent performing roles.
func NewExtension(roles ...Role) (Extension, error) {
	params := ExtensionParams{Roles: roles}
	if err := validateStruct(params); err != nil {
		return Extension{}, err
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return Extension{
		URI:         ExtensionURI,
		Description: fmt.Sprintf("This agent supports AP2 with roles: %s", strings.Join(names, ", ")),
		Params:      params,
	}, nil
}

// Compatible reports whether a peer advertises the same protocol revision.
func (e Extension) Compatible(peer Extension) bool {
	return e.URI == peer.URI
}

// Supports reports whether the extension lists role.
func (e Extension) Supports(role Role) bool {
	for _, r := range e.Params.Roles {
		if r == role {
			return true
		}
	}
	return false
}
